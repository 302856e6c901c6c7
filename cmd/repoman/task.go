package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/repoman/pkg/executor/headless"
	"github.com/spf13/cobra"
)

func newTaskCmd(opts *globalOptions) *cobra.Command {
	var (
		scope  []string
		verify bool
		strict bool
		branch string
	)

	cmd := &cobra.Command{
		Use:   "task DESCRIPTION",
		Short: "Plan, apply, verify and commit an instruction",
		Long: `Run a task: plan the edits for DESCRIPTION within the scope, apply them
through the mutation pipeline, run the verification checks and commit the
changed files. Protected files are never touched and a failed verification
never commits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			orc, err := a.oracle()
			if err != nil {
				return err
			}

			execOpts := []headless.Option{
				headless.WithLogger(a.log.Logger),
				headless.WithConsole(a.console),
				headless.WithVerifier(a.runner()),
				headless.WithTokenCounter(a.tokenCounter()),
			}
			j, err := a.journal(ctx)
			if err != nil {
				a.console.Warningf("run journal unavailable: %v", err)
			} else if j != nil {
				defer j.Close()
				execOpts = append(execOpts, headless.WithJournal(j))
			}

			exec, err := headless.NewExecutor(a.repo, orc, a.guard, a.cfg.ExecutorConfig(a.root), execOpts...)
			if err != nil {
				return err
			}

			task := headless.Task{
				Instruction: args[0],
				Scope:       a.cfg.Tasks.Scope,
				Verify:      a.cfg.Tasks.Verify,
				Strict:      a.cfg.Tasks.Strict,
				DryRun:      a.cfg.Safety.DryRun,
				Branch:      branch,
			}
			if cmd.Flags().Changed("scope") {
				task.Scope = scope
			}
			if cmd.Flags().Changed("verify") {
				task.Verify = verify
			}
			if cmd.Flags().Changed("strict") {
				task.Strict = strict
			}

			result, err := exec.Execute(ctx, task)
			if result == nil {
				return err
			}
			return withCode(statusCode(result.Status), err)
		},
	}
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "Glob patterns limiting the files the task may change")
	cmd.Flags().BoolVar(&verify, "verify", false, "Run verification checks before committing")
	cmd.Flags().BoolVar(&strict, "strict", false, "Stop at the first rejected or failed mutation")
	cmd.Flags().StringVar(&branch, "branch", "", "Run the task on this branch (prefixed with repository.branch_prefix)")
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded task runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			j, err := a.journal(ctx)
			if err != nil {
				return err
			}
			if j == nil {
				return fmt.Errorf("the run journal is disabled (journal.enabled)")
			}
			defer j.Close()

			runs, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.out, "No runs recorded")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				status := string(r.Status)
				switch {
				case r.Canceled:
					status += " (canceled)"
				case r.DryRun:
					status += " (dry-run)"
				}
				commit := r.CommitSHA
				if len(commit) > 8 {
					commit = commit[:8]
				}
				rows = append(rows, []string{
					shortID(r.ID),
					r.StartTime.Local().Format("2006-01-02 15:04"),
					status,
					fmt.Sprintf("%d/%d", r.Changed, r.Outcomes),
					r.Duration().Round(time.Second).String(),
					commit,
					truncate(r.Instruction, 60),
				})
			}
			a.console.Table([]string{"ID", "STARTED", "STATUS", "CHANGED", "DURATION", "COMMIT", "INSTRUCTION"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "repoman v%s\n", version)
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
