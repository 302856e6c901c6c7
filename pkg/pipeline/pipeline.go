// Package pipeline drives a single file mutation through the safety gates:
// protection, read, diff, dry-run, validation and atomic apply.
//
// The pipeline never talks to a language model. Requests reach it with their
// content already resolved, and it never returns an error: every result,
// including I/O failures, is a types.MutationOutcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/repoman/pkg/diff"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/security/workspace"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrUnresolvedContent is returned for requests carrying neither content nor a patch.
	ErrUnresolvedContent = errors.New("mutation has no resolved content")

	// ErrPathMismatch is returned when a patch targets another file than the request.
	ErrPathMismatch = errors.New("patch does not target the requested path")

	// ErrRoundTrip is returned when a computed diff does not reproduce the proposed content.
	ErrRoundTrip = errors.New("diff does not reproduce the proposed content")
)

// Protector decides whether a path may be mutated. *workspace.PathGuard implements it.
type Protector interface {
	IsProtected(path string) bool
}

// Resolver is implemented by file stores where one path can alias another,
// such as a directory reached through a symlink. Protection is checked on
// both the requested and the canonical path.
type Resolver interface {
	Canonical(path string) (string, error)
}

// Pipeline applies mutations to a repository.
type Pipeline struct {
	repo   repository.FileStore
	guard  Protector
	logger *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline over repo. The guard is mandatory; it is the only
// source of protection decisions and cannot be bypassed per request.
func New(repo repository.FileStore, guard Protector, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, fmt.Errorf("pipeline requires a repository")
	}
	if guard == nil {
		return nil, fmt.Errorf("pipeline requires a path guard")
	}
	p := &Pipeline{repo: repo, guard: guard, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Apply runs req through the gates and reports the outcome.
//
// Applying the same request twice yields applied, then applied with an
// empty diff.
func (p *Pipeline) Apply(ctx context.Context, req types.MutationRequest) types.MutationOutcome {
	path, ok := workspace.NormalizePath(req.Path)
	if !ok {
		path = req.Path
	}
	log := p.logger.With(zap.String("path", path))

	if p.guard.IsProtected(req.Path) {
		log.Info("skipping protected path")
		return types.MutationOutcome{Path: path, Status: types.StatusSkippedProtected}
	}
	if r, ok := p.repo.(Resolver); ok {
		target, err := r.Canonical(path)
		if err != nil {
			log.Warn("resolve failed", zap.Error(err))
			return failed(path, err)
		}
		if target != path && p.guard.IsProtected(target) {
			log.Info("skipping path that resolves to a protected path", zap.String("target", target))
			return types.MutationOutcome{Path: path, Status: types.StatusSkippedProtected}
		}
	}

	snapshot, err := p.repo.Read(ctx, path)
	if err != nil {
		log.Warn("read failed", zap.Error(err))
		return failed(path, err)
	}

	var out types.MutationOutcome
	switch {
	case req.Patch != "":
		out = p.applyPatch(ctx, snapshot, req)
	case req.Content != nil:
		out = p.applyContent(ctx, snapshot, *req.Content, req.DryRun)
	default:
		out = failed(path, ErrUnresolvedContent)
	}

	if out.Diff != "" {
		out.LinesAdded, out.LinesRemoved = diff.CountChanges(out.Diff)
	}
	log.Debug("mutation finished",
		zap.String("status", string(out.Status)),
		zap.Int("added", out.LinesAdded),
		zap.Int("removed", out.LinesRemoved),
		zap.Error(out.Err))
	return out
}

func (p *Pipeline) applyContent(ctx context.Context, snapshot types.FileSnapshot, content string, dryRun bool) types.MutationOutcome {
	path := snapshot.Path
	if snapshot.Existed && snapshot.Content == content {
		return types.MutationOutcome{Path: path, Status: types.StatusApplied}
	}

	d := diff.Unified(path, snapshot.Content, content, !snapshot.Existed)
	if dryRun {
		return types.MutationOutcome{Path: path, Status: types.StatusSkippedDryRun, Diff: d}
	}

	if err := p.repo.Validate(ctx, d); err != nil {
		return rejected(path, d, err)
	}
	if got, err := diff.ApplyText(snapshot.Content, d); err != nil || got != content {
		if err == nil {
			err = ErrRoundTrip
		}
		return rejected(path, d, err)
	}

	if err := p.repo.Write(ctx, path, content); err != nil {
		return types.MutationOutcome{Path: path, Status: types.StatusFailedApply, Diff: d, Err: err}
	}
	return types.MutationOutcome{Path: path, Status: types.StatusApplied, Diff: d}
}

func (p *Pipeline) applyPatch(ctx context.Context, snapshot types.FileSnapshot, req types.MutationRequest) types.MutationOutcome {
	path := snapshot.Path

	files, err := diff.Parse(req.Patch)
	if err != nil {
		return rejected(path, "", err)
	}
	if len(files) != 1 {
		return rejected(path, "", fmt.Errorf("%w: patch touches %d files", ErrPathMismatch, len(files)))
	}
	fd := files[0]
	if target, ok := workspace.NormalizePath(fd.Path()); !ok || target != path {
		return rejected(path, "", fmt.Errorf("%w: %s", ErrPathMismatch, fd.Path()))
	}

	switch {
	case fd.IsNew() && snapshot.Existed:
		return failed(path, fmt.Errorf("%w: %s already exists", repository.ErrPatchRejected, path))
	case !fd.IsNew() && !snapshot.Existed:
		return failed(path, fmt.Errorf("%w: %s does not exist", repository.ErrPatchRejected, path))
	}

	after, err := diff.Apply(snapshot.Content, fd)
	if err != nil {
		return failed(path, fmt.Errorf("%w: %w", repository.ErrPatchRejected, err))
	}
	if !fd.IsNew() && !fd.IsDelete() && after == snapshot.Content {
		return types.MutationOutcome{Path: path, Status: types.StatusApplied}
	}

	d := diff.Render(files)
	if req.DryRun {
		return types.MutationOutcome{Path: path, Status: types.StatusSkippedDryRun, Diff: d}
	}

	if err := p.repo.Validate(ctx, d); err != nil {
		return rejected(path, d, err)
	}
	if err := p.repo.Apply(ctx, d); err != nil {
		return types.MutationOutcome{Path: path, Status: types.StatusFailedApply, Diff: d, Err: err}
	}
	return types.MutationOutcome{Path: path, Status: types.StatusApplied, Diff: d}
}

func failed(path string, err error) types.MutationOutcome {
	return types.MutationOutcome{Path: path, Status: types.StatusFailedApply, Err: err}
}

func rejected(path, d string, err error) types.MutationOutcome {
	return types.MutationOutcome{Path: path, Status: types.StatusRejectedInvalidDiff, Diff: d, Err: err}
}
