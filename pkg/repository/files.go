package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/entrhq/repoman/pkg/diff"
	"github.com/entrhq/repoman/pkg/security/workspace"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

// Files implements FileStore on a directory.
type Files struct {
	guard  *workspace.Guard
	logger *zap.Logger
}

// NewFiles creates a file store rooted at dir.
func NewFiles(dir string, logger *zap.Logger) (*Files, error) {
	guard, err := workspace.NewGuard(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Files{guard: guard, logger: logger}, nil
}

// Root returns the absolute root directory.
func (f *Files) Root() string {
	return f.guard.WorkspaceDir()
}

// Read returns the snapshot of path. A missing file yields Existed=false.
func (f *Files) Read(_ context.Context, path string) (types.FileSnapshot, error) {
	rel, abs, err := f.resolve(path)
	if err != nil {
		return types.FileSnapshot{}, err
	}

	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return types.FileSnapshot{Path: rel}, nil
	}
	if err != nil {
		return types.FileSnapshot{}, &IOError{Op: "read", Path: rel, Err: err}
	}
	return types.FileSnapshot{Path: rel, Content: string(data), Existed: true}, nil
}

// Write replaces path with content through a temporary file and a rename.
func (f *Files) Write(_ context.Context, path, content string) error {
	rel, abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := writeAtomic(abs, []byte(content)); err != nil {
		return &IOError{Op: "write", Path: rel, Err: err}
	}
	f.logger.Debug("wrote file", zap.String("path", rel), zap.Int("bytes", len(content)))
	return nil
}

// Canonical returns the repository-relative path that path names once
// symlinks are resolved, so "docs/a.yaml" under a "docs -> config" link
// yields "config/a.yaml".
func (f *Files) Canonical(path string) (string, error) {
	_, abs, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	rel, err := f.guard.MakeRelative(abs)
	if err != nil {
		return "", &IOError{Op: "resolve", Path: path, Err: err}
	}
	return rel, nil
}

// Validate parses the diff and checks that every path stays inside the workspace.
func (f *Files) Validate(_ context.Context, text string) error {
	files, err := diff.Parse(text)
	if err != nil {
		return err
	}
	for _, fd := range files {
		if _, ok := workspace.NormalizePath(fd.Path()); !ok {
			return fmt.Errorf("%w: invalid path %q", diff.ErrMalformed, fd.Path())
		}
	}
	return nil
}

// pendingWrite is one file of a patch, computed before anything is written.
type pendingWrite struct {
	rel, abs string
	before   types.FileSnapshot
	after    string
	remove   bool
}

// Apply applies a possibly multi-file diff. Every file is patched in memory
// first; a stale file rejects the whole diff before any write. If a write
// fails, files already written are restored.
func (f *Files) Apply(ctx context.Context, text string) error {
	files, err := diff.Parse(text)
	if err != nil {
		return err
	}

	pending := make([]pendingWrite, 0, len(files))
	for _, fd := range files {
		rel, abs, err := f.resolve(fd.Path())
		if err != nil {
			return err
		}
		before, err := f.Read(ctx, rel)
		if err != nil {
			return err
		}
		switch {
		case fd.IsNew() && before.Existed:
			return fmt.Errorf("%w: %s already exists", ErrPatchRejected, rel)
		case !fd.IsNew() && !before.Existed:
			return fmt.Errorf("%w: %s does not exist", ErrPatchRejected, rel)
		}
		after, err := diff.Apply(before.Content, fd)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPatchRejected, err)
		}
		pending = append(pending, pendingWrite{rel: rel, abs: abs, before: before, after: after, remove: fd.IsDelete()})
	}

	for i, p := range pending {
		var werr error
		if p.remove {
			werr = os.Remove(p.abs)
		} else {
			werr = writeAtomic(p.abs, []byte(p.after))
		}
		if werr != nil {
			f.rollback(pending[:i])
			return &IOError{Op: "apply", Path: p.rel, Err: werr}
		}
	}
	f.logger.Debug("applied patch", zap.Int("files", len(pending)))
	return nil
}

func (f *Files) rollback(done []pendingWrite) {
	for i := len(done) - 1; i >= 0; i-- {
		p := done[i]
		var err error
		if p.before.Existed {
			err = writeAtomic(p.abs, []byte(p.before.Content))
		} else {
			err = os.Remove(p.abs)
		}
		if err != nil {
			f.logger.Error("rollback failed", zap.String("path", p.rel), zap.Error(err))
		}
	}
}

func (f *Files) resolve(path string) (string, string, error) {
	rel, ok := workspace.NormalizePath(path)
	if !ok {
		return "", "", &IOError{Op: "resolve", Path: path, Err: workspace.ErrOutsideWorkspace}
	}
	abs, err := f.guard.Resolve(rel)
	if err != nil {
		return "", "", &IOError{Op: "resolve", Path: path, Err: err}
	}
	return rel, abs, nil
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it over the target, keeping the mode of an existing file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
