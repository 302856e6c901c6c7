package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/entrhq/repoman/pkg/config"
	"github.com/entrhq/repoman/pkg/executor/headless"
	"github.com/entrhq/repoman/pkg/journal"
	"github.com/entrhq/repoman/pkg/llm/tokenizer"
	"github.com/entrhq/repoman/pkg/logging"
	"github.com/entrhq/repoman/pkg/oracle"
	"github.com/entrhq/repoman/pkg/pipeline"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/runner"
	"github.com/entrhq/repoman/pkg/security/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	repo    string
	config  string
	dryRun  bool
	verbose bool
	quiet   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "repoman",
		Short: "Unattended repository maintenance agent",
		Long: `repoman turns a free-form instruction into a bounded set of file edits,
applies them through safety gates, verifies the result and commits it.

Core Commands:
  task          Plan, apply, verify and commit an instruction
  runs          List recorded task runs

Repository:
  init, config, status, analyze, diff, history, branch, commit

Files:
  read, write, refactor, analyze-file

Checks:
  test, lint, format, run

Exit codes: 0 success, 1 error, 2 partial, 3 aborted, 4 blocked.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.repo, "repo", ".", "Repository directory")
	flags.StringVar(&opts.config, "config", "", "Config file (default: <repo>/"+config.DefaultPath+")")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Compute diffs without writing or committing")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print warnings, errors and the final summary")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		newInitCmd(opts),
		newConfigCmd(opts),
		newStatusCmd(opts),
		newAnalyzeCmd(opts),
		newDiffCmd(opts),
		newHistoryCmd(opts),
		newBranchCmd(opts),
		newCommitCmd(opts),
		newReadCmd(opts),
		newWriteCmd(opts),
		newRefactorCmd(opts),
		newAnalyzeFileCmd(opts),
		newTestCmd(opts),
		newLintCmd(opts),
		newFormatCmd(opts),
		newRunCmd(opts),
		newTaskCmd(opts),
		newRunsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// repoDir returns the absolute repository directory named by --repo.
func (o *globalOptions) repoDir() (string, error) {
	dir, err := filepath.Abs(o.repo)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository directory: %w", err)
	}
	return dir, nil
}

// configPath returns the config file used for the repository at dir.
func (o *globalOptions) configPath(dir string) string {
	if o.config != "" {
		return o.config
	}
	return filepath.Join(dir, config.DefaultPath)
}

// verbosity applies the --quiet and --verbose flags over the configured level.
func (o *globalOptions) verbosity(configured string) string {
	switch {
	case o.quiet:
		return "quiet"
	case o.verbose && configured != "debug":
		return "verbose"
	default:
		return configured
	}
}

// app is everything a command needs to work on one repository. It is built
// once per invocation and closed when the command returns.
type app struct {
	root    string
	cfg     *config.Config
	repo    *repository.GitRepository
	guard   *workspace.PathGuard
	log     *logging.Logger
	console *headless.Logger
	out     io.Writer
}

// open loads the configuration and opens the repository for cmd.
func (o *globalOptions) open(cmd *cobra.Command) (*app, error) {
	dir, err := o.repoDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configPath(dir))
	if err != nil {
		return nil, err
	}
	if o.dryRun {
		cfg.Safety.DryRun = true
	}
	cfg.Logging.Verbosity = o.verbosity(cfg.Logging.Verbosity)

	out := cmd.OutOrStdout()
	console := headless.NewLoggerTo(out, headless.ParseLogLevel(cfg.Logging.Verbosity))

	log, err := logging.NewLogger(config.Resolve(dir, cfg.Logging.Dir), cfg.Logging.Level)
	if log == nil {
		return nil, err
	}
	if err != nil {
		console.Verbosef("file logging unavailable: %v", err)
	}

	guard, err := workspace.NewPathGuard(cfg.Safety.ProtectedFiles)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("invalid protected patterns: %w", err)
	}

	repo, err := repository.Open(cmd.Context(), dir,
		repository.WithLogger(log.Logger),
		repository.WithAuthor(cfg.Repository.AuthorName, cfg.Repository.AuthorEmail))
	if err != nil {
		log.Close()
		return nil, err
	}

	log.Debug("repository opened",
		zap.String("root", repo.Root()),
		zap.String("command", cmd.Name()),
		zap.Bool("dry_run", cfg.Safety.DryRun))

	return &app{
		root:    repo.Root(),
		cfg:     cfg,
		repo:    repo,
		guard:   guard,
		log:     log,
		console: console,
		out:     out,
	}, nil
}

func (a *app) Close() {
	_ = a.log.Close()
}

// oracle builds the suggestion oracle from the LLM configuration.
func (a *app) oracle() (*oracle.LLMOracle, error) {
	provider, err := config.BuildProvider(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("provider", provider.Name()),
		zap.String("model", provider.GetModel()),
	}
	if p, ok := provider.(interface{ GetBaseURL() string }); ok {
		fields = append(fields, zap.String("base_url", p.GetBaseURL()))
	}
	a.log.Debug("llm provider ready", fields...)
	return oracle.New(provider, oracle.WithLogger(a.log.Logger)), nil
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	return pipeline.New(a.repo, a.guard, pipeline.WithLogger(a.log.Logger))
}

func (a *app) runner() *runner.Runner {
	return runner.New(a.root, runner.WithLogger(a.log.Logger))
}

// journal opens the run journal, or returns nil when it is disabled.
func (a *app) journal(ctx context.Context) (*journal.Journal, error) {
	if !a.cfg.Journal.Enabled {
		return nil, nil
	}
	return journal.Open(ctx, config.Resolve(a.root, a.cfg.Journal.Path), journal.WithLogger(a.log.Logger))
}

// tokenCounter returns the tiktoken counter, or nil when its encoding cannot
// be loaded; the oracle context then falls back to an estimate.
func (a *app) tokenCounter() oracle.TokenCounter {
	tok, err := tokenizer.New()
	if err != nil {
		a.log.Warn("tokenizer unavailable, estimating tokens", zap.Error(err))
		return nil
	}
	return tok
}
