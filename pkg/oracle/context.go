package oracle

import (
	"context"

	"github.com/entrhq/repoman/pkg/llm/tokenizer"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultContextTokens bounds the file content sent with a plan request.
	DefaultContextTokens = 8000

	// DefaultConcurrency bounds parallel file reads.
	DefaultConcurrency = 8
)

// FileReader reads repository files. repository.FileStore satisfies it.
type FileReader interface {
	Read(ctx context.Context, path string) (types.FileSnapshot, error)
}

// TokenCounter counts tokens in a prompt fragment.
type TokenCounter interface {
	CountTokens(text string) int
}

// ContextBuilder gathers file contents for plan requests within a token budget.
type ContextBuilder struct {
	reader      FileReader
	counter     TokenCounter
	logger      *zap.Logger
	budget      int
	concurrency int
}

// ContextOption configures a ContextBuilder.
type ContextOption func(*ContextBuilder)

// WithTokenBudget sets the maximum number of content tokens.
func WithTokenBudget(n int) ContextOption {
	return func(b *ContextBuilder) {
		if n > 0 {
			b.budget = n
		}
	}
}

// WithTokenCounter replaces the token counter.
func WithTokenCounter(c TokenCounter) ContextOption {
	return func(b *ContextBuilder) {
		if c != nil {
			b.counter = c
		}
	}
}

// WithConcurrency bounds the number of parallel reads.
func WithConcurrency(n int) ContextOption {
	return func(b *ContextBuilder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithContextLogger sets the logger.
func WithContextLogger(l *zap.Logger) ContextOption {
	return func(b *ContextBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewContextBuilder creates a builder reading through reader. Without a
// counter, tokens are estimated from byte length.
func NewContextBuilder(reader FileReader, opts ...ContextOption) *ContextBuilder {
	b := &ContextBuilder{
		reader:      reader,
		counter:     (*tokenizer.Tokenizer)(nil),
		logger:      zap.NewNop(),
		budget:      DefaultContextTokens,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Gather reads paths concurrently and returns them in the given order.
// Contents are included until the budget is spent; every later file is
// listed with Omitted set. Unreadable files are omitted, not fatal. Only
// cancellation fails the call.
func (b *ContextBuilder) Gather(ctx context.Context, paths []string) ([]FileContext, error) {
	snapshots := make([]types.FileSnapshot, len(paths))
	readable := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, err := b.reader.Read(gctx, p)
			if err != nil {
				b.logger.Debug("context file unreadable", zap.String("path", p), zap.Error(err))
				return nil
			}
			snapshots[i] = snap
			readable[i] = snap.Existed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := make([]FileContext, len(paths))
	used := 0
	full := false
	for i, p := range paths {
		files[i] = FileContext{Path: p, Omitted: true}
		if full || !readable[i] {
			continue
		}
		tokens := b.counter.CountTokens(snapshots[i].Content)
		if used+tokens > b.budget {
			full = true
			continue
		}
		used += tokens
		files[i] = FileContext{Path: p, Content: snapshots[i].Content, Tokens: tokens}
	}

	b.logger.Debug("context gathered", zap.Int("files", len(paths)), zap.Int("tokens", used))
	return files, nil
}
