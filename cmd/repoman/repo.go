package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/entrhq/repoman/pkg/config"
	"github.com/entrhq/repoman/pkg/executor/headless"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// stateDir holds logs, artifacts and the journal inside a repository.
const stateDir = ".repoman/"

var defaultAnalyzePatterns = []string{"**/*.py", "**/*.go", "**/*.js", "**/*.ts", "**/*.md"}

func newInitCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the default configuration to <repo>/` + config.DefaultPath + ` (or --config)
and add the repoman state directory to .gitignore.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.repoDir()
			if err != nil {
				return err
			}
			path := opts.configPath(dir)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)

			added, err := ensureIgnored(dir, stateDir)
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s to .gitignore\n", stateDir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// ensureIgnored appends entry to the .gitignore of dir unless a line already
// names it. It reports whether the file changed.
func ensureIgnored(dir, entry string) (bool, error) {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read .gitignore: %w", err)
	}

	trimmed := strings.TrimSuffix(entry, "/")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == entry || line == trimmed || line == "/"+entry || line == "/"+trimmed {
			return false, nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return true, nil
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config [KEY]",
		Short: "Print the effective configuration or one dotted key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.repoDir()
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath(dir))
			if err != nil {
				return err
			}
			cfg.LLM.APIKey = ""

			var value interface{} = cfg
			if len(args) == 1 {
				v, ok := cfg.Get(args[0])
				if !ok {
					return fmt.Errorf("unknown config key %q", args[0])
				}
				value = v
			}
			data, err := yaml.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the branch and the changed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.repo.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(a, st)

			commits, err := a.repo.RecentCommits(cmd.Context(), 5)
			if err != nil {
				a.log.Debug("no history", zap.Error(err))
				return nil
			}
			if len(commits) > 0 {
				a.console.Section("Recent Commits")
				for _, c := range commits {
					fmt.Fprintln(a.out, formatCommit(c))
				}
			}
			return nil
		},
	}
}

func printStatus(a *app, st repository.Status) {
	fmt.Fprintf(a.out, "Repository: %s\n", a.root)
	fmt.Fprintf(a.out, "Branch:     %s\n", st.Branch)
	if !st.Dirty() {
		fmt.Fprintln(a.out, "Working tree clean")
		return
	}
	for _, group := range []struct {
		title string
		paths []string
	}{
		{"Staged", st.Staged},
		{"Modified", st.Modified},
		{"Untracked", st.Untracked},
	} {
		if len(group.paths) == 0 {
			continue
		}
		fmt.Fprintf(a.out, "%s (%d):\n", group.title, len(group.paths))
		for _, p := range group.paths {
			fmt.Fprintf(a.out, "  %s\n", p)
		}
	}
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var patterns []string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Count repository files by pattern and show git status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.repo.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := countByPattern(files, patterns)
			if err != nil {
				return err
			}

			a.console.Section("Files")
			fmt.Fprintf(a.out, "Total: %d\n", len(files))
			for _, p := range patterns {
				fmt.Fprintf(a.out, "  %-20s %d\n", p, counts[p])
			}

			protected := 0
			for _, f := range files {
				if a.guard.IsProtected(f) {
					protected++
				}
			}
			fmt.Fprintf(a.out, "Protected: %d\n", protected)

			st, err := a.repo.Status(cmd.Context())
			if err != nil {
				return err
			}
			a.console.Section("Git Status")
			printStatus(a, st)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&patterns, "patterns", defaultAnalyzePatterns, "Glob patterns to count")
	return cmd
}

// countByPattern counts the files matching each pattern. A file may count
// towards several patterns.
func countByPattern(files, patterns []string) (map[string]int, error) {
	counts := make(map[string]int, len(patterns))
	for _, p := range patterns {
		m, err := headless.NewPatternMatcher([]string{p}, nil)
		if err != nil {
			return nil, err
		}
		counts[p] = len(m.Filter(files))
	}
	return counts, nil
}

func newDiffCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [PATHS...]",
		Short: "Show working tree changes against HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.repo.Diff(cmd.Context(), args...)
			if err != nil {
				return err
			}
			if d == "" {
				fmt.Fprintln(a.out, "No changes")
				return nil
			}
			fmt.Fprint(a.out, d)
			return nil
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [FILE]",
		Short: "Show the commits touching a file, or the repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			commits, err := a.repo.History(cmd.Context(), path, limit)
			if err != nil {
				return err
			}
			if len(commits) == 0 {
				fmt.Fprintln(a.out, "No commits")
				return nil
			}
			for _, c := range commits {
				fmt.Fprintln(a.out, formatCommit(c))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of commits")
	return cmd
}

func formatCommit(c types.Commit) string {
	subject := c.Message
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	return fmt.Sprintf("%s  %s  %-16s %s", c.ShortSHA(), c.Date.Format("2006-01-02"), c.Author, subject)
}

func newBranchCmd(opts *globalOptions) *cobra.Command {
	var noCheckout bool

	cmd := &cobra.Command{
		Use:   "branch NAME",
		Short: "Create a branch, prefixed with repository.branch_prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			name := headless.BranchName(a.cfg.Repository.BranchPrefix, args[0])
			if a.cfg.Safety.DryRun {
				a.console.Infof("Would create branch %s", name)
				return nil
			}
			if err := a.repo.CreateBranch(cmd.Context(), name, !noCheckout); err != nil {
				return err
			}
			if noCheckout {
				a.console.Successf("Created branch %s", name)
			} else {
				a.console.Successf("Created and checked out branch %s", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCheckout, "no-checkout", false, "Create the branch without switching to it")
	return cmd
}

func newCommitCmd(opts *globalOptions) *cobra.Command {
	var (
		message string
		files   []string
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit changes; the message is written by the model when -m is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if message == "" {
				message, err = describeChanges(cmd, a, files)
				if err != nil {
					return err
				}
				if message == "" {
					fmt.Fprintln(a.out, "Nothing to commit")
					return nil
				}
			}
			message = headless.PrefixMessage(a.cfg.Repository.CommitPrefix, message)

			if a.cfg.Safety.DryRun {
				a.console.Infof("Would commit: %s", message)
				return nil
			}

			sha, err := a.repo.Commit(ctx, message, files)
			if errors.Is(err, repository.ErrNothingToCommit) {
				fmt.Fprintln(a.out, "Nothing to commit")
				return nil
			}
			if err != nil {
				return err
			}
			a.console.GitOperation("Committed "+types.Commit{SHA: sha}.ShortSHA(), message)
			a.log.Info("manual commit", zap.String("sha", sha), zap.Strings("paths", files))

			if a.cfg.Repository.AutoPush {
				if err := a.repo.Push(ctx, a.cfg.Repository.Remote); err != nil {
					return err
				}
				a.console.GitOperation("Pushed to "+a.cfg.Repository.Remote, "")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	cmd.Flags().StringSliceVar(&files, "files", nil, "Paths to commit (default: every change)")
	return cmd
}

// describeChanges asks the model for a commit message. An empty message
// means there is nothing to commit. When the model cannot be reached, a
// message listing the changed files is used instead.
func describeChanges(cmd *cobra.Command, a *app, files []string) (string, error) {
	ctx := cmd.Context()
	d, err := a.repo.Diff(ctx, files...)
	if err != nil {
		return "", err
	}
	if d == "" {
		return "", nil
	}

	orc, err := a.oracle()
	if err == nil {
		var msg string
		msg, err = orc.Describe(ctx, d)
		if err == nil && msg != "" {
			return msg, nil
		}
		if err == nil {
			err = errors.New("empty message")
		}
	}
	a.console.Warningf("could not generate a commit message, using a file list: %v", err)

	paths := files
	if len(paths) == 0 {
		if paths, err = a.repo.ChangedFiles(ctx); err != nil {
			return "", err
		}
	}
	sort.Strings(paths)
	return headless.CommitMessage("", "update files", paths), nil
}
