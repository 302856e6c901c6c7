package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/repoman/pkg/llm"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

// LLMOracle implements Oracle by prompting a language model.
type LLMOracle struct {
	provider llm.Provider
	logger   *zap.Logger
}

var _ Oracle = (*LLMOracle)(nil)

// Option configures an LLMOracle.
type Option func(*LLMOracle)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *LLMOracle) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an oracle backed by provider.
func New(provider llm.Provider, opts ...Option) *LLMOracle {
	o := &LLMOracle{provider: provider, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan asks the model for a TaskPlan.
func (o *LLMOracle) Plan(ctx context.Context, req PlanRequest) (types.TaskPlan, error) {
	out, err := o.complete(ctx, planSystemPrompt, planPrompt(req))
	if err != nil {
		return types.TaskPlan{}, err
	}

	plan, err := ParsePlan(out)
	if err != nil {
		o.logger.Warn("unparseable plan", zap.Error(err), zap.Int("response_bytes", len(out)))
		return types.TaskPlan{}, err
	}
	o.logger.Info("plan received",
		zap.String("summary", plan.Summary),
		zap.Strings("paths", plan.Paths()))
	return plan, nil
}

// Propose asks the model for the full new content of one file. The trailing
// newline convention of the existing file is kept.
func (o *LLMOracle) Propose(ctx context.Context, snapshot types.FileSnapshot, instruction, repoContext string) (string, error) {
	out, err := o.complete(ctx, refactorSystemPrompt, refactorPrompt(snapshot, instruction, repoContext))
	if err != nil {
		return "", err
	}

	code := CleanCode(out)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w for %s", ErrEmptyProposal, snapshot.Path)
	}
	if !snapshot.Existed || strings.HasSuffix(snapshot.Content, "\n") {
		code += "\n"
	}
	return code, nil
}

// Analyze returns the model's review of a file for the given task.
func (o *LLMOracle) Analyze(ctx context.Context, snapshot types.FileSnapshot, task string) (string, error) {
	return o.complete(ctx, analysisSystemPrompt, analysisPrompt(snapshot, task))
}

// Describe returns a commit message for a diff.
func (o *LLMOracle) Describe(ctx context.Context, diff string) (string, error) {
	out, err := o.complete(ctx, commitSystemPrompt, commitPrompt(diff))
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), "`\"'"), nil
}

func (o *LLMOracle) complete(ctx context.Context, system, user string) (string, error) {
	o.logger.Debug("oracle request",
		zap.String("provider", o.provider.Name()),
		zap.String("model", o.provider.GetModel()),
		zap.Int("prompt_bytes", len(user)))

	out, err := o.provider.Complete(ctx, []llm.Message{
		llm.SystemMessage(system),
		llm.UserMessage(user),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrOracleUnavailable, o.provider.Name(), err)
	}
	return out, nil
}
