package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/repoman/pkg/executor/headless"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read FILE",
		Short: "Print a repository file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.repo.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !snap.Existed {
				return fmt.Errorf("file not found: %s", snap.Path)
			}
			fmt.Fprint(a.out, snap.Content)
			return nil
		},
	}
}

func newWriteCmd(opts *globalOptions) *cobra.Command {
	var noCommit bool

	cmd := &cobra.Command{
		Use:   "write FILE CONTENT",
		Short: "Replace a file through the mutation pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := types.LiteralMutation(args[0], args[1])
			return applyAndCommit(cmd, a, req, "update "+args[0], noCommit)
		},
	}
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Do not commit the change")
	return cmd
}

func newRefactorCmd(opts *globalOptions) *cobra.Command {
	var noCommit bool

	cmd := &cobra.Command{
		Use:   "refactor FILE INSTRUCTIONS",
		Short: "Rewrite a file with the model and apply the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			snap, err := a.repo.Read(ctx, args[0])
			if err != nil {
				return err
			}
			if !snap.Existed {
				return fmt.Errorf("file not found: %s", snap.Path)
			}
			if a.guard.IsProtected(snap.Path) {
				return withCode(exitBlocked, fmt.Errorf("%s is protected", snap.Path))
			}

			orc, err := a.oracle()
			if err != nil {
				return err
			}
			a.console.Step("Refactoring " + snap.Path)
			content, err := orc.Propose(ctx, snap, args[1], "")
			if err != nil {
				return err
			}

			req := types.LiteralMutation(snap.Path, content)
			return applyAndCommit(cmd, a, req, args[1], noCommit)
		},
	}
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Do not commit the change")
	return cmd
}

// applyAndCommit runs one mutation through the pipeline and, when it changed
// the file and auto-commit is on, commits that file alone.
func applyAndCommit(cmd *cobra.Command, a *app, req types.MutationRequest, summary string, noCommit bool) error {
	ctx := cmd.Context()
	p, err := a.pipeline()
	if err != nil {
		return err
	}

	req.DryRun = a.cfg.Safety.DryRun
	outcome := p.Apply(ctx, req)
	a.console.Outcome(outcome)
	a.log.Info("mutation finished",
		zap.String("path", outcome.Path),
		zap.String("status", string(outcome.Status)),
		zap.Int("lines_added", outcome.LinesAdded),
		zap.Int("lines_removed", outcome.LinesRemoved))

	switch {
	case outcome.Status == types.StatusSkippedProtected:
		return withCode(exitBlocked, fmt.Errorf("%s is protected", outcome.Path))
	case outcome.Status.IsFailure():
		return fmt.Errorf("%s: %s", outcome.Status, outcome.ErrorMessage())
	case !outcome.Changed() || noCommit || !a.cfg.Repository.AutoCommit:
		return nil
	}

	message := headless.CommitMessage(a.cfg.Repository.CommitPrefix, summary, []string{outcome.Path})
	sha, err := a.repo.Commit(ctx, message, []string{outcome.Path})
	if errors.Is(err, repository.ErrNothingToCommit) {
		return nil
	}
	if err != nil {
		return err
	}
	a.console.GitOperation("Committed "+types.Commit{SHA: sha}.ShortSHA(), message)
	return nil
}

func newAnalyzeFileCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-file FILE TASK",
		Short: "Ask the model to review a file for a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			snap, err := a.repo.Read(ctx, args[0])
			if err != nil {
				return err
			}
			if !snap.Existed {
				return fmt.Errorf("file not found: %s", snap.Path)
			}

			orc, err := a.oracle()
			if err != nil {
				return err
			}
			review, err := orc.Analyze(ctx, snap, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, strings.TrimSpace(review))
			return nil
		},
	}
}
