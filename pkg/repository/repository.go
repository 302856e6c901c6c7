// Package repository is the working-copy abstraction used by the mutation
// pipeline and the task executor: file reads and atomic writes, diff
// validation and application, and the git operations around them.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/repoman/pkg/types"
)

var (
	// ErrPatchRejected is returned when a diff no longer matches the working tree.
	ErrPatchRejected = errors.New("patch rejected")

	// ErrNothingToCommit is returned when the paths to commit are clean.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrBranchExists is returned when creating a branch that already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrNotRepository is returned when the directory is not inside a git work tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrIOFailure matches every *IOError.
	ErrIOFailure = errors.New("io failure")
)

// IOError wraps a filesystem failure on a path.
type IOError struct {
	Err  error
	Op   string
	Path string
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIOFailure) true for any IOError.
func (e *IOError) Is(target error) bool { return target == ErrIOFailure }

// FileStore is the subset of a repository the mutation pipeline drives.
type FileStore interface {
	// Read returns the current snapshot; a missing file is not an error.
	Read(ctx context.Context, path string) (types.FileSnapshot, error)

	// Write replaces the file atomically, creating parent directories.
	Write(ctx context.Context, path, content string) error

	// Validate checks a diff structurally without touching the working tree.
	Validate(ctx context.Context, diff string) error

	// Apply applies a diff; every file ends either fully patched or unchanged.
	Apply(ctx context.Context, diff string) error
}

// Repository is a git working copy.
type Repository interface {
	FileStore

	// Diff returns the working tree against HEAD, optionally limited to paths.
	Diff(ctx context.Context, paths ...string) (string, error)

	// ChangedFiles lists modified, staged and untracked paths.
	ChangedFiles(ctx context.Context) ([]string, error)

	// ListFiles lists tracked and untracked, non-ignored files.
	ListFiles(ctx context.Context) ([]string, error)

	// Commit records the given paths, or every change when paths is empty.
	Commit(ctx context.Context, message string, paths []string) (string, error)

	CreateBranch(ctx context.Context, name string, checkout bool) error
	CheckoutBranch(ctx context.Context, name string) error
	CurrentBranch(ctx context.Context) (string, error)

	// History returns up to limit commits touching path, newest first.
	// An empty path returns the repository history.
	History(ctx context.Context, path string, limit int) ([]types.Commit, error)
}
