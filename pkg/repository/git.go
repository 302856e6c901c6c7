package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/repoman/pkg/diff"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

// DefaultGitTimeout bounds every git invocation.
const DefaultGitTimeout = 30 * time.Second

// GitRepository is a Repository backed by the git command line.
type GitRepository struct {
	*Files

	logger      *zap.Logger
	authorName  string
	authorEmail string
	timeout     time.Duration
}

// Option configures a GitRepository.
type Option func(*GitRepository)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *GitRepository) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithAuthor sets the identity used for commits.
func WithAuthor(name, email string) Option {
	return func(g *GitRepository) {
		g.authorName = name
		g.authorEmail = email
	}
}

// WithTimeout sets the per-command git timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *GitRepository) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// Open returns the repository containing dir.
func Open(ctx context.Context, dir string, opts ...Option) (*GitRepository, error) {
	g := &GitRepository{logger: zap.NewNop(), timeout: DefaultGitTimeout}
	for _, opt := range opts {
		opt(g)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository directory: %w", err)
	}

	top, err := runGit(ctx, abs, g.timeout, nil, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
	}

	files, err := NewFiles(strings.TrimSpace(top), g.logger)
	if err != nil {
		return nil, err
	}
	g.Files = files
	return g, nil
}

// Diff returns the working tree against HEAD, including untracked files as creations.
func (g *GitRepository) Diff(ctx context.Context, paths ...string) (string, error) {
	var sb strings.Builder

	if g.hasHead(ctx) {
		args := append([]string{"diff", "--no-color", "--no-ext-diff", "HEAD", "--"}, paths...)
		out, err := g.execGit(ctx, args...)
		if err != nil {
			return "", fmt.Errorf("failed to diff working tree: %w", err)
		}
		sb.WriteString(out)
	}

	untrackedArgs := []string{"ls-files", "-z", "--others", "--exclude-standard"}
	if !g.hasHead(ctx) {
		untrackedArgs = append(untrackedArgs, "--cached")
	}
	out, err := g.execGit(ctx, append(append(untrackedArgs, "--"), paths...)...)
	if err != nil {
		return "", fmt.Errorf("failed to list untracked files: %w", err)
	}
	for _, p := range splitNul(out) {
		snap, err := g.Read(ctx, p)
		if err != nil || !snap.Existed {
			continue
		}
		sb.WriteString(diff.Unified(snap.Path, "", snap.Content, true))
	}
	return sb.String(), nil
}

// ChangedFiles lists every path with a staged, unstaged or untracked change.
func (g *GitRepository) ChangedFiles(ctx context.Context) ([]string, error) {
	st, err := g.Status(ctx)
	if err != nil {
		return nil, err
	}
	return st.Changed(), nil
}

// ListFiles lists tracked and untracked files that exist and are not ignored.
func (g *GitRepository) ListFiles(ctx context.Context) ([]string, error) {
	out, err := g.execGit(ctx, "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, p := range splitNul(out) {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Lstat(filepath.Join(g.Root(), filepath.FromSlash(p))); err != nil {
			continue
		}
		files = append(files, p)
	}
	return files, nil
}

// Commit stages and commits paths, or every change when paths is empty,
// and returns the new commit hash.
func (g *GitRepository) Commit(ctx context.Context, message string, paths []string) (string, error) {
	statusArgs := append([]string{"status", "--porcelain", "--untracked-files=all", "--"}, paths...)
	out, err := g.execGit(ctx, statusArgs...)
	if err != nil {
		return "", fmt.Errorf("failed to check git status: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrNothingToCommit
	}

	addArgs := append([]string{"add", "-A", "--"}, paths...)
	if _, err := g.execGit(ctx, addArgs...); err != nil {
		return "", fmt.Errorf("failed to stage changes: %w", err)
	}

	commitArgs := []string{"commit", "-m", message}
	if len(paths) > 0 {
		commitArgs = append(append(commitArgs, "--only", "--"), paths...)
	}
	if _, err := g.execGit(ctx, commitArgs...); err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}

	sha, err := g.execGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to read commit hash: %w", err)
	}
	sha = strings.TrimSpace(sha)
	g.logger.Info("created commit", zap.String("sha", sha), zap.Int("paths", len(paths)))
	return sha, nil
}

// CreateBranch creates name from HEAD and optionally switches to it.
func (g *GitRepository) CreateBranch(ctx context.Context, name string, checkout bool) error {
	if g.branchExists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	args := []string{"branch", name}
	if checkout {
		args = []string{"checkout", "-b", name}
	}
	if _, err := g.execGit(ctx, args...); err != nil {
		return fmt.Errorf("failed to create branch '%s': %w", name, err)
	}
	return nil
}

// CheckoutBranch switches to an existing branch.
func (g *GitRepository) CheckoutBranch(ctx context.Context, name string) error {
	if _, err := g.execGit(ctx, "checkout", name); err != nil {
		return fmt.Errorf("failed to checkout branch '%s': %w", name, err)
	}
	return nil
}

// CurrentBranch returns the checked out branch name.
func (g *GitRepository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.execGit(ctx, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// History returns up to limit commits touching path, newest first.
func (g *GitRepository) History(ctx context.Context, path string, limit int) ([]types.Commit, error) {
	if !g.hasHead(ctx) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	args := []string{
		"log", "-n", strconv.Itoa(limit),
		"--format=%H" + "%x1f" + "%an <%ae>" + "%x1f" + "%aI" + "%x1f" + "%s" + "%x1e",
	}
	if path != "" {
		args = append(args, "--", path)
	}
	out, err := g.execGit(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return parseLog(out), nil
}

// RecentCommits returns the latest commits of the current branch.
func (g *GitRepository) RecentCommits(ctx context.Context, limit int) ([]types.Commit, error) {
	return g.History(ctx, "", limit)
}

// Push pushes the current branch to remote.
func (g *GitRepository) Push(ctx context.Context, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if _, err := g.execGit(ctx, "push", remote, branch); err != nil {
		return fmt.Errorf("failed to push branch '%s': %w", branch, err)
	}
	return nil
}

// Status describes the state of the working tree.
type Status struct {
	Branch    string   `json:"branch"`
	Staged    []string `json:"staged"`
	Modified  []string `json:"modified"`
	Untracked []string `json:"untracked"`
}

// Dirty reports whether anything is changed.
func (s Status) Dirty() bool {
	return len(s.Staged)+len(s.Modified)+len(s.Untracked) > 0
}

// Changed returns every changed path once, staged first.
func (s Status) Changed() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{s.Staged, s.Modified, s.Untracked} {
		for _, p := range group {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// Status reports the branch and the staged, modified and untracked paths.
func (g *GitRepository) Status(ctx context.Context) (Status, error) {
	out, err := g.execGit(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return Status{}, fmt.Errorf("failed to get status: %w", err)
	}

	st := parseStatus(out)
	st.Branch, err = g.CurrentBranch(ctx)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

func parseStatus(out string) Status {
	var st Status
	entries := splitNul(out)
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if len(e) < 4 {
			continue
		}
		x, y, path := e[0], e[1], e[3:]
		if x == 'R' || x == 'C' {
			i++ // the source path follows
		}
		switch {
		case x == '?' && y == '?':
			st.Untracked = append(st.Untracked, path)
		default:
			if x != ' ' {
				st.Staged = append(st.Staged, path)
			}
			if y != ' ' {
				st.Modified = append(st.Modified, path)
			}
		}
	}
	return st
}

func parseLog(out string) []types.Commit {
	var commits []types.Commit
	for _, rec := range strings.Split(out, recordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 4)
		if len(fields) != 4 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, fields[2])
		commits = append(commits, types.Commit{
			SHA:     fields[0],
			Author:  fields[1],
			Date:    date,
			Message: fields[3],
		})
	}
	return commits
}

func (g *GitRepository) hasHead(ctx context.Context) bool {
	_, err := g.execGit(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

func (g *GitRepository) branchExists(ctx context.Context, name string) bool {
	_, err := g.execGit(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// execGit runs git in the repository root with the configured identity.
func (g *GitRepository) execGit(ctx context.Context, args ...string) (string, error) {
	var pre []string
	if g.authorName != "" {
		pre = append(pre, "-c", "user.name="+g.authorName)
	}
	if g.authorEmail != "" {
		pre = append(pre, "-c", "user.email="+g.authorEmail)
	}
	g.logger.Debug("git", zap.Strings("args", args))
	return runGit(ctx, g.Root(), g.timeout, pre, args...)
}

func runGit(ctx context.Context, dir string, timeout time.Duration, pre []string, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", append(pre, args...)...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git %s timed out after %s", args[0], timeout)
		}
		return "", fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func splitNul(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\x00") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
