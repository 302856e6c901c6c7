package headless

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/repoman/pkg/oracle"
	"github.com/entrhq/repoman/pkg/pipeline"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/runner"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyInstruction is returned when a task has no instruction.
var ErrEmptyInstruction = errors.New("task instruction is required")

// Task is one unit of work for the executor.
type Task struct {
	Instruction string

	// Scope restricts the files offered to the oracle. Empty means every file.
	Scope []string

	// Verify runs the verification checks before committing.
	Verify bool

	// Strict stops at the first mutation that is neither applied nor a dry run.
	Strict bool

	// DryRun computes every diff without writing or committing.
	DryRun bool

	// Branch is created (or checked out) before mutating. The configured
	// branch prefix is applied.
	Branch string
}

// Recorder stores finished task results. *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, result *types.TaskResult) error
}

// Executor implements the task execution loop: plan, mutate, verify, commit.
type Executor struct {
	repo           repository.Repository
	oracle         oracle.Oracle
	guard          pipeline.Protector
	pipeline       *pipeline.Pipeline
	contextBuilder *oracle.ContextBuilder
	tokenCounter   oracle.TokenCounter
	verifier       Verifier
	journal        Recorder
	artifactWriter *ArtifactWriter
	config         *Config
	console        *Logger
	logger         *zap.Logger

	// Execute calls are serialized: one working tree, one task at a time.
	mu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConsole sets the console reporter.
func WithConsole(c *Logger) Option {
	return func(e *Executor) {
		if c != nil {
			e.console = c
		}
	}
}

// WithVerifier replaces the command runner used for verification.
func WithVerifier(v Verifier) Option {
	return func(e *Executor) {
		if v != nil {
			e.verifier = v
		}
	}
}

// WithJournal records every finished task.
func WithJournal(r Recorder) Option {
	return func(e *Executor) { e.journal = r }
}

// WithTokenCounter sets the counter used to budget the planning context.
func WithTokenCounter(c oracle.TokenCounter) Option {
	return func(e *Executor) { e.tokenCounter = c }
}

// NewExecutor creates a task executor. The guard is passed to the mutation
// pipeline and is the only source of protection decisions.
func NewExecutor(repo repository.Repository, orc oracle.Oracle, guard pipeline.Protector, config *Config, opts ...Option) (*Executor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if orc == nil {
		return nil, fmt.Errorf("executor requires an oracle")
	}

	e := &Executor{
		repo:    repo,
		oracle:  orc,
		guard:   guard,
		config:  config,
		console: DiscardLogger(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	p, err := pipeline.New(repo, guard, pipeline.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.pipeline = p

	builderOpts := []oracle.ContextOption{
		oracle.WithTokenBudget(config.ContextTokens),
		oracle.WithContextLogger(e.logger),
	}
	if e.tokenCounter != nil {
		builderOpts = append(builderOpts, oracle.WithTokenCounter(e.tokenCounter))
	}
	e.contextBuilder = oracle.NewContextBuilder(repo, builderOpts...)

	if e.verifier == nil {
		e.verifier = runner.New(config.WorkspaceDir, runner.WithLogger(e.logger))
	}

	outputDir := config.Artifacts.OutputDir
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(config.WorkspaceDir, outputDir)
	}
	e.artifactWriter = NewArtifactWriter(outputDir)

	return e, nil
}

// Config returns the executor configuration.
func (e *Executor) Config() *Config {
	return e.config
}

// Execute runs a task to completion and returns its result. The result is
// returned even when an error is: the error reports an infrastructure or
// oracle failure, the result what happened up to that point. Task-level
// failures (rejected mutations, strict stops, failed verification, blocked
// scopes) are reported through the result status only.
func (e *Executor) Execute(ctx context.Context, task Task) (*types.TaskResult, error) {
	if strings.TrimSpace(task.Instruction) == "" {
		return nil, ErrEmptyInstruction
	}
	scope, err := NewPatternMatcher(task.Scope, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid scope: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	constraints := NewConstraintManager(e.config.Constraints)
	if t := e.config.Constraints.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	r := &run{
		executor:    e,
		task:        task,
		scope:       scope,
		constraints: constraints,
		dryRun:      task.DryRun || e.config.DryRun,
		strict:      task.Strict || e.config.Strict,
		visited:     make(map[types.TaskState]bool),
		result: &types.TaskResult{
			ID:          uuid.NewString(),
			Instruction: task.Instruction,
			Scope:       append([]string(nil), task.Scope...),
			Outcomes:    []types.MutationOutcome{},
			StartTime:   time.Now(),
		},
	}
	r.result.DryRun = r.dryRun

	e.console.Header("Repoman task: " + subjectLine(task.Instruction))
	e.logger.Info("task started",
		zap.String("task", r.result.ID),
		zap.Strings("scope", task.Scope),
		zap.Bool("dry_run", r.dryRun),
		zap.Bool("strict", r.strict))

	err = r.execute(ctx)
	r.result.EndTime = time.Now()

	state := r.constraints.GetCurrentState()
	e.logger.Debug("constraint usage",
		zap.String("task", r.result.ID),
		zap.Int("files", state.TotalFiles),
		zap.Int("lines_added", state.TotalLinesAdded),
		zap.Int("lines_removed", state.TotalLinesRemoved),
		zap.Int("context_tokens", state.TokensUsed),
		zap.Duration("elapsed", state.Elapsed))

	e.finish(ctx, r.result)
	return r.result, err
}

// run is the state of one Execute call.
type run struct {
	executor    *Executor
	task        Task
	scope       *PatternMatcher
	constraints *ConstraintManager
	result      *types.TaskResult
	visited     map[types.TaskState]bool
	dryRun      bool
	strict      bool
}

// transition moves the task to state. States are never revisited.
func (r *run) transition(state types.TaskState) {
	if r.visited[state] {
		r.executor.logger.Debug("ignoring repeated transition", zap.String("state", string(state)))
		return
	}
	r.visited[state] = true
	r.result.State = state
	r.result.Transitions = append(r.result.Transitions, types.Transition{State: state, At: time.Now()})
}

func (r *run) abort(status types.TaskStatus, msg string) {
	r.result.Status = status
	if msg != "" {
		r.result.Error = msg
	}
	r.transition(types.StateAborted)
}

// cancel stops the task, keeping whatever was already applied.
func (r *run) cancel(ctx context.Context) error {
	r.result.Canceled = true
	msg := "task canceled"
	if violation := r.constraints.CheckTimeout(); violation != nil {
		msg = violation.Error()
	} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = "task timeout exceeded"
	}
	status := types.TaskAborted
	if len(r.result.ChangedPaths()) > 0 {
		status = types.TaskPartial
	}
	r.executor.console.Warningf("%s after %d of %d steps", msg, len(r.result.Outcomes), len(r.result.Plan.Steps))
	r.abort(status, msg)
	return nil
}

func (r *run) execute(ctx context.Context) error {
	e := r.executor

	r.transition(types.StatePlanning)
	e.console.Section("Planning")

	files, err := e.repo.ListFiles(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		r.abort(types.TaskAborted, fmt.Sprintf("failed to list files: %v", err))
		return fmt.Errorf("list files: %w", err)
	}

	scoped := r.scope.Filter(files)
	candidates := make([]string, 0, len(scoped))
	for _, p := range scoped {
		if !e.guard.IsProtected(p) {
			candidates = append(candidates, p)
		}
	}
	if len(scoped) > 0 && len(candidates) == 0 {
		e.console.Warningf("all %d files in scope are protected", len(scoped))
		r.abort(types.TaskBlocked, "every file in scope is protected")
		return nil
	}
	e.console.Infof("%d files in scope, %d protected", len(candidates), len(scoped)-len(candidates))

	if err := r.prepareBranch(ctx); err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		r.abort(types.TaskAborted, err.Error())
		return err
	}

	contextFiles, err := e.contextBuilder.Gather(ctx, candidates)
	if err != nil {
		return r.cancel(ctx)
	}
	for _, f := range contextFiles {
		r.result.ContextTokens += f.Tokens
	}
	r.constraints.RecordTokenUsage(r.result.ContextTokens)
	e.console.Verbosef("context: %d files, %s tokens", len(contextFiles), formatNumber(r.result.ContextTokens))

	plan, err := e.oracle.Plan(ctx, oracle.PlanRequest{Instruction: r.task.Instruction, Files: contextFiles})
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		e.console.Errorf("planning failed: %v", err)
		e.logger.Error("planning failed", zap.String("task", r.result.ID), zap.Error(err))
		r.abort(types.TaskAborted, fmt.Sprintf("planning failed: %v", err))
		return fmt.Errorf("plan task: %w", err)
	}
	r.result.Plan = plan
	if plan.Summary != "" {
		e.console.Infof("Plan: %s", plan.Summary)
	}

	if err := r.constraints.CheckPlan(plan.Paths()); err != nil {
		e.console.Errorf("%v", err)
		r.abort(types.TaskAborted, err.Error())
		return nil
	}

	r.transition(types.StateMutating)
	if len(plan.Steps) == 0 {
		e.console.Successf("No changes needed")
		r.result.Status = types.TaskSuccess
		r.transition(types.StateDone)
		return nil
	}

	e.console.Section(fmt.Sprintf("Applying %d changes", len(plan.Steps)))
	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}

		outcome, err := r.mutate(ctx, step)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancel(ctx)
			}
			e.console.Errorf("oracle failed on %s: %v", step.Path, err)
			r.abort(types.TaskAborted, fmt.Sprintf("oracle failed on %s: %v", step.Path, err))
			return fmt.Errorf("propose %s: %w", step.Path, err)
		}
		r.record(outcome)

		if outcome.Diff != "" && (outcome.Status == types.StatusApplied || outcome.Status == types.StatusSkippedDryRun) {
			if violation := r.constraints.RecordFileModification(outcome.Path, outcome.LinesAdded, outcome.LinesRemoved); violation != nil {
				e.console.Errorf("%v", violation)
				r.abort(types.TaskAborted, violation.Error())
				return nil
			}
		}

		if r.strict && outcome.Status != types.StatusApplied && outcome.Status != types.StatusSkippedDryRun {
			msg := fmt.Sprintf("strict mode: %s is %s", outcome.Path, outcome.Status)
			if outcome.Err != nil {
				msg += ": " + outcome.Err.Error()
			}
			e.console.Errorf("%s", msg)
			r.abort(types.TaskAborted, msg)
			return nil
		}
	}

	counts := r.result.CountByStatus()
	if counts[types.StatusSkippedProtected] == len(r.result.Outcomes) {
		r.abort(types.TaskBlocked, "every planned change targets a protected path")
		return nil
	}

	changed := r.result.ChangedPaths()
	if r.task.Verify && len(changed) > 0 {
		r.transition(types.StateVerifying)
		if !r.verify(ctx) {
			if ctx.Err() != nil {
				return r.cancel(ctx)
			}
			e.console.Errorf("%s; changes left uncommitted", r.result.Error)
			r.abort(types.TaskAborted, "")
			return nil
		}
	}

	if e.config.Git.AutoCommit && !r.dryRun && len(changed) > 0 {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		r.transition(types.StateCommitting)
		r.commit(ctx)
	}

	r.result.Status = types.TaskSuccess
	if counts[types.StatusRejectedInvalidDiff]+counts[types.StatusFailedApply] > 0 {
		r.result.Status = types.TaskPartial
	}
	r.transition(types.StateDone)
	return nil
}

// mutate resolves an instruction step through the oracle when needed and
// drives it through the pipeline. Only an unavailable oracle or cancellation
// is returned as an error; every other failure is an outcome.
func (r *run) mutate(ctx context.Context, req types.MutationRequest) (types.MutationOutcome, error) {
	e := r.executor
	req.DryRun = req.DryRun || r.dryRun
	e.console.Debugf("step %s: resolved=%t instruction=%q", req.Path, req.Resolved(), req.Instruction)

	if !r.scope.IsAllowed(req.Path) {
		e.console.Warningf("%s is outside the task scope", req.Path)
		e.logger.Warn("plan step outside scope", zap.String("path", req.Path))
	}

	// Protected and already resolved requests go straight to the pipeline,
	// which skips the former without asking the oracle for anything.
	if req.Resolved() || req.Instruction == "" || e.guard.IsProtected(req.Path) {
		return e.pipeline.Apply(ctx, req), nil
	}

	snapshot, err := e.repo.Read(ctx, req.Path)
	if err != nil {
		return types.MutationOutcome{Path: req.Path, Status: types.StatusFailedApply, Err: err}, nil
	}

	e.console.Verbosef("asking the oracle for %s", req.Path)
	content, err := e.oracle.Propose(ctx, snapshot, req.Instruction, r.task.Instruction)
	if err != nil {
		if errors.Is(err, oracle.ErrOracleUnavailable) || ctx.Err() != nil {
			return types.MutationOutcome{}, err
		}
		return types.MutationOutcome{Path: req.Path, Status: types.StatusRejectedInvalidDiff, Err: err}, nil
	}

	return e.pipeline.Apply(ctx, req.WithContent(content)), nil
}

func (r *run) record(o types.MutationOutcome) {
	r.result.Outcomes = append(r.result.Outcomes, o)
	r.executor.console.Outcome(o)

	fields := []zap.Field{
		zap.String("task", r.result.ID),
		zap.String("path", o.Path),
		zap.String("status", string(o.Status)),
		zap.Int("lines_added", o.LinesAdded),
		zap.Int("lines_removed", o.LinesRemoved),
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}
	r.executor.logger.Info("mutation", fields...)
}

func (r *run) prepareBranch(ctx context.Context) error {
	e := r.executor
	if r.task.Branch == "" {
		if b, err := e.repo.CurrentBranch(ctx); err == nil {
			r.result.Branch = b
		}
		return nil
	}

	name := BranchName(e.config.Git.BranchPrefix, r.task.Branch)
	r.result.Branch = name
	if r.dryRun {
		e.console.Infof("Dry run: would work on branch %s", name)
		return nil
	}

	op := "Created branch " + name
	err := e.repo.CreateBranch(ctx, name, true)
	if errors.Is(err, repository.ErrBranchExists) {
		op = "Checked out existing branch " + name
		err = e.repo.CheckoutBranch(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("prepare branch %s: %w", name, err)
	}
	e.console.GitOperation(op, "")
	return nil
}

// finish reports, journals and archives a result. Failures here never change
// the task outcome.
func (e *Executor) finish(ctx context.Context, result *types.TaskResult) {
	ctx = context.WithoutCancel(ctx)
	summary := NewExecutionSummary(result)
	e.console.Summary(summary)

	e.logger.Info("task finished",
		zap.String("task", result.ID),
		zap.String("status", string(result.Status)),
		zap.String("state", string(result.State)),
		zap.Bool("canceled", result.Canceled),
		zap.String("commit", result.CommitSHA),
		zap.Duration("duration", result.Duration()))

	if e.journal != nil {
		if err := e.journal.Record(ctx, result); err != nil {
			e.console.Warningf("failed to record task in journal: %v", err)
			e.logger.Warn("journal record failed", zap.Error(err))
		}
	}

	if e.config.Artifacts.Enabled {
		if err := e.artifactWriter.WriteAll(summary); err != nil {
			e.console.Warningf("failed to write artifacts: %v", err)
			e.logger.Warn("artifact write failed", zap.Error(err))
		} else {
			e.console.Verbosef("Artifacts written to %s", e.artifactWriter.Dir(result.ID))
		}
	}
}
