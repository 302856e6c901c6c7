// Package workspace enforces the boundaries of a repository working tree: which
// paths may be mutated at all (PathGuard) and how repository-relative paths map
// onto the filesystem without escaping the root (Guard).
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned when a path resolves outside the workspace root.
var ErrOutsideWorkspace = errors.New("path is outside workspace")

// Guard maps repository-relative paths onto a workspace directory.
type Guard struct {
	workspaceDir string // Absolute, symlink-free path to the workspace root
}

// NewGuard creates a guard for the given directory.
// The directory is made absolute and its symlinks are evaluated.
func NewGuard(workspaceDir string) (*Guard, error) {
	if workspaceDir == "" {
		return nil, fmt.Errorf("workspace directory cannot be empty")
	}

	absPath, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}

	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate workspace directory symlinks: %w", err)
	}

	return &Guard{workspaceDir: evalPath}, nil
}

// WorkspaceDir returns the absolute path of the workspace directory.
func (g *Guard) WorkspaceDir() string {
	return g.workspaceDir
}

// Resolve converts a repository-relative path to an absolute path inside the
// workspace. Symlinked parents that lead outside the workspace are rejected.
func (g *Guard) Resolve(rel string) (string, error) {
	clean, ok := NormalizePath(rel)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, rel)
	}

	absPath := filepath.Join(g.workspaceDir, filepath.FromSlash(clean))
	if !g.IsWithinWorkspace(absPath) {
		return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, rel)
	}
	return absPath, nil
}

// IsWithinWorkspace checks if an absolute path is the workspace or a child of it,
// after evaluating symlinks.
func (g *Guard) IsWithinWorkspace(absPath string) bool {
	evalPath := resolveSymlinks(absPath)
	return evalPath == g.workspaceDir ||
		strings.HasPrefix(evalPath, g.workspaceDir+string(filepath.Separator))
}

// MakeRelative converts an absolute path to a slash-separated path relative to the workspace.
func (g *Guard) MakeRelative(absPath string) (string, error) {
	if !g.IsWithinWorkspace(absPath) {
		return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, absPath)
	}

	relPath, err := filepath.Rel(g.workspaceDir, resolveSymlinks(absPath))
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}
	return filepath.ToSlash(relPath), nil
}

// resolveSymlinks resolves symlinks in a path that may not exist yet by
// resolving the deepest existing ancestor and re-appending the rest.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(components) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, components[i])
			}
			return resolved
		}

		dir := filepath.Dir(current)
		if dir == current {
			return path
		}
		components = append(components, filepath.Base(current))
		current = dir
	}
}
