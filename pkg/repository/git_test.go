package repository_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRepo(t *testing.T, files map[string]string) (*repository.GitRepository, string) {
	t.Helper()
	dir := repotest.InitGitRepo(t, files)
	repo, err := repository.Open(context.Background(), dir)
	require.NoError(t, err)
	return repo, dir
}

func TestOpen_NotRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	_, err := repository.Open(context.Background(), dir)
	if err == nil {
		t.Skip("temporary directory is inside a git work tree")
	}
	assert.True(t, errors.Is(err, repository.ErrNotRepository), "got %v", err)
}

func TestGitRepository_CommitOnlyGivenPaths(t *testing.T) {
	repo, dir := openRepo(t, map[string]string{"README.md": "# repo\n"})
	ctx := context.Background()

	require.NoError(t, repo.Write(ctx, "src/a.py", "print('a')\n"))
	require.NoError(t, repo.Write(ctx, "notes.txt", "scratch\n"))

	sha, err := repo.Commit(ctx, "[Repoman]: add a (1 file)", []string{"src/a.py"})
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	files := repotest.Git(t, dir, "show", "--name-only", "--format=", "HEAD")
	assert.Equal(t, "src/a.py", strings.TrimSpace(files))

	changed, err := repo.ChangedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, changed)
}

func TestGitRepository_CommitNothing(t *testing.T) {
	repo, _ := openRepo(t, nil)
	ctx := context.Background()

	_, err := repo.Commit(ctx, "msg", nil)
	assert.True(t, errors.Is(err, repository.ErrNothingToCommit), "got %v", err)

	_, err = repo.Commit(ctx, "msg", []string{"README.md"})
	assert.True(t, errors.Is(err, repository.ErrNothingToCommit), "got %v", err)
}

func TestGitRepository_CommitAll(t *testing.T) {
	repo, dir := openRepo(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.Write(ctx, "a.txt", "a\n"))
	require.NoError(t, repo.Write(ctx, "README.md", "# changed\n"))

	_, err := repo.Commit(ctx, "everything", nil)
	require.NoError(t, err)

	status := repotest.Git(t, dir, "status", "--porcelain")
	assert.Empty(t, strings.TrimSpace(status))
}

func TestGitRepository_Branches(t *testing.T) {
	repo, _ := openRepo(t, nil)
	ctx := context.Background()

	start, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", start)

	require.NoError(t, repo.CreateBranch(ctx, "repoman/feature", true))
	current, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "repoman/feature", current)

	err = repo.CreateBranch(ctx, "repoman/feature", false)
	assert.True(t, errors.Is(err, repository.ErrBranchExists), "got %v", err)

	require.NoError(t, repo.CreateBranch(ctx, "other", false))
	current, err = repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "repoman/feature", current, "creating without checkout keeps the branch")

	require.NoError(t, repo.CheckoutBranch(ctx, "main"))
	current, err = repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", current)
}

func TestGitRepository_History(t *testing.T) {
	repo, _ := openRepo(t, map[string]string{"a.txt": "1\n", "b.txt": "1\n"})
	ctx := context.Background()

	require.NoError(t, repo.Write(ctx, "a.txt", "2\n"))
	_, err := repo.Commit(ctx, "update a", []string{"a.txt"})
	require.NoError(t, err)

	require.NoError(t, repo.Write(ctx, "b.txt", "2\n"))
	_, err = repo.Commit(ctx, "update b", []string{"b.txt"})
	require.NoError(t, err)

	history, err := repo.History(ctx, "a.txt", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "update a", history[0].Message)
	assert.Equal(t, "Initial commit", history[1].Message)
	assert.Equal(t, "Test User <test@example.com>", history[0].Author)
	assert.False(t, history[0].Date.IsZero())
	assert.Len(t, history[0].ShortSHA(), 8)

	recent, err := repo.RecentCommits(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "update b", recent[0].Message)
}

func TestGitRepository_DiffIncludesUntracked(t *testing.T) {
	repo, _ := openRepo(t, map[string]string{"a.txt": "old\n"})
	ctx := context.Background()

	require.NoError(t, repo.Write(ctx, "a.txt", "new\n"))
	require.NoError(t, repo.Write(ctx, "b.txt", "fresh\n"))

	out, err := repo.Diff(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "-old")
	assert.Contains(t, out, "+new")
	assert.Contains(t, out, "+++ b/b.txt")
	assert.Contains(t, out, "+fresh")

	scoped, err := repo.Diff(ctx, "a.txt")
	require.NoError(t, err)
	assert.NotContains(t, scoped, "b.txt")
}

func TestGitRepository_ListFilesHonoursGitignore(t *testing.T) {
	repo, _ := openRepo(t, map[string]string{
		".gitignore": "build/\n",
		"src/a.go":   "package a\n",
	})
	ctx := context.Background()

	require.NoError(t, repo.Write(ctx, "build/out.bin", "bin"))
	require.NoError(t, repo.Write(ctx, "src/b.go", "package a\n"))

	files, err := repo.ListFiles(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".gitignore", "src/a.go", "src/b.go"}, files)
}

func TestGitRepository_Status(t *testing.T) {
	repo, dir := openRepo(t, map[string]string{"a.txt": "1\n", "b.txt": "1\n"})
	ctx := context.Background()

	require.NoError(t, repo.Write(ctx, "a.txt", "2\n"))
	require.NoError(t, repo.Write(ctx, "b.txt", "2\n"))
	repotest.Git(t, dir, "add", "b.txt")
	require.NoError(t, repo.Write(ctx, "c.txt", "new\n"))

	st, err := repo.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.True(t, st.Dirty())
	assert.Equal(t, []string{"b.txt"}, st.Staged)
	assert.Equal(t, []string{"a.txt"}, st.Modified)
	assert.Equal(t, []string{"c.txt"}, st.Untracked)
}
