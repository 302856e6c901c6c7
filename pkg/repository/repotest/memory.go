// Package repotest provides test doubles and fixtures for the repository package.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/entrhq/repoman/pkg/diff"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/types"
)

// Call is one recorded repository operation.
type Call struct {
	Op   string
	Path string
}

// Memory is an in-memory Repository that records every call in order.
// Failure hooks let tests inject validation, write and commit errors.
type Memory struct {
	ValidateErr func(diffText string) error
	WriteErr    func(path string) error
	CommitErr   error

	files    map[string]string
	branches map[string]bool
	branch   string
	commits  []types.Commit
	dirty    map[string]bool
	calls    []Call
	mu       sync.Mutex
}

var _ repository.Repository = (*Memory)(nil)

// NewMemory creates a repository holding files, all committed on "main".
func NewMemory(files map[string]string) *Memory {
	m := &Memory{
		files:    make(map[string]string),
		branches: map[string]bool{"main": true},
		branch:   "main",
		dirty:    make(map[string]bool),
	}
	for p, c := range files {
		m.files[p] = c
	}
	return m
}

func (m *Memory) record(op, path string) {
	m.calls = append(m.calls, Call{Op: op, Path: path})
}

// Calls returns the recorded calls.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsFor returns the recorded calls of one operation kind.
func (m *Memory) CallsFor(op string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Mutations returns the write and apply calls in order.
func (m *Memory) Mutations() []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == "write" || c.Op == "apply" {
			out = append(out, c)
		}
	}
	return out
}

// File returns the current content of path.
func (m *Memory) File(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[path]
	return c, ok
}

// Commits returns the recorded commits, oldest first.
func (m *Memory) Commits() []types.Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Commit(nil), m.commits...)
}

func (m *Memory) Read(_ context.Context, path string) (types.FileSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("read", path)
	c, ok := m.files[path]
	return types.FileSnapshot{Path: path, Content: c, Existed: ok}, nil
}

func (m *Memory) Write(_ context.Context, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("write", path)
	if m.WriteErr != nil {
		if err := m.WriteErr(path); err != nil {
			return &repository.IOError{Op: "write", Path: path, Err: err}
		}
	}
	m.files[path] = content
	m.dirty[path] = true
	return nil
}

func (m *Memory) Validate(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("validate", "")
	if m.ValidateErr != nil {
		if err := m.ValidateErr(text); err != nil {
			return err
		}
	}
	return diff.Validate(text)
}

func (m *Memory) Apply(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := diff.Parse(text)
	if err != nil {
		return err
	}
	results := make(map[string]string, len(files))
	removed := make(map[string]bool)
	for _, fd := range files {
		m.record("apply", fd.Path())
		before, existed := m.files[fd.Path()]
		if fd.IsNew() == existed {
			return fmt.Errorf("%w: %s", repository.ErrPatchRejected, fd.Path())
		}
		after, err := diff.Apply(before, fd)
		if err != nil {
			return fmt.Errorf("%w: %w", repository.ErrPatchRejected, err)
		}
		results[fd.Path()] = after
		removed[fd.Path()] = fd.IsDelete()
	}
	if m.WriteErr != nil {
		for p := range results {
			if err := m.WriteErr(p); err != nil {
				return &repository.IOError{Op: "apply", Path: p, Err: err}
			}
		}
	}
	for p, c := range results {
		if removed[p] {
			delete(m.files, p)
		} else {
			m.files[p] = c
		}
		m.dirty[p] = true
	}
	return nil
}

func (m *Memory) Diff(_ context.Context, paths ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("diff", strings.Join(paths, ","))
	return "", nil
}

func (m *Memory) ChangedFiles(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.dirty), nil
}

func (m *Memory) ListFiles(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("list", "")
	keys := make(map[string]bool, len(m.files))
	for p := range m.files {
		keys[p] = true
	}
	return sortedKeys(keys), nil
}

func (m *Memory) Commit(_ context.Context, message string, paths []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("commit", strings.Join(paths, ","))
	if m.CommitErr != nil {
		return "", m.CommitErr
	}

	if len(paths) == 0 {
		paths = sortedKeys(m.dirty)
	}
	var committed []string
	for _, p := range paths {
		if m.dirty[p] {
			committed = append(committed, p)
			delete(m.dirty, p)
		}
	}
	if len(committed) == 0 {
		return "", repository.ErrNothingToCommit
	}

	sha := fmt.Sprintf("%040x", len(m.commits)+1)
	m.commits = append(m.commits, types.Commit{SHA: sha, Message: message, Author: "repotest"})
	return sha, nil
}

// CommittedPaths returns the paths recorded by every commit call, in order.
func (m *Memory) CommittedPaths() [][]string {
	var out [][]string
	for _, c := range m.CallsFor("commit") {
		if c.Path == "" {
			out = append(out, nil)
			continue
		}
		out = append(out, strings.Split(c.Path, ","))
	}
	return out
}

func (m *Memory) CreateBranch(_ context.Context, name string, checkout bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("branch", name)
	if m.branches[name] {
		return fmt.Errorf("%w: %s", repository.ErrBranchExists, name)
	}
	m.branches[name] = true
	if checkout {
		m.branch = name
	}
	return nil
}

func (m *Memory) CheckoutBranch(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("checkout", name)
	if !m.branches[name] {
		return fmt.Errorf("unknown branch %s", name)
	}
	m.branch = name
	return nil
}

func (m *Memory) CurrentBranch(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branch, nil
}

func (m *Memory) History(_ context.Context, _ string, limit int) ([]types.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Commit
	for i := len(m.commits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.commits[i])
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
