package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/entrhq/repoman/pkg/diff"
	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/repository/repotest"
	"github.com/entrhq/repoman/pkg/security/workspace"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline(t *testing.T, repo repository.FileStore, patterns ...string) *Pipeline {
	t.Helper()
	if len(patterns) == 0 {
		patterns = workspace.DefaultProtectedPatterns
	}
	guard, err := workspace.NewPathGuard(patterns)
	require.NoError(t, err)
	p, err := New(repo, guard)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresGuard(t *testing.T) {
	_, err := New(repotest.NewMemory(nil), nil)
	assert.Error(t, err)
}

func TestApply_ProtectedPathIsNeverTouched(t *testing.T) {
	paths := []string{
		"config/settings.yaml",
		".git/config",
		".github/workflows/ci.yml",
		"config",
		"../outside.txt",
		"/etc/passwd",
		"",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			repo := repotest.NewMemory(map[string]string{"config/settings.yaml": "debug: false\n"})
			p := newPipeline(t, repo)

			for _, req := range []types.MutationRequest{
				types.LiteralMutation(path, "debug: true\n"),
				{Path: path, Patch: "--- a/config/settings.yaml\n+++ b/config/settings.yaml\n@@ -1 +1 @@\n-debug: false\n+debug: true\n"},
				{Path: path, Instruction: "enable debug"},
			} {
				out := p.Apply(context.Background(), req)
				assert.Equal(t, types.StatusSkippedProtected, out.Status)
				assert.NoError(t, out.Err)
			}
			assert.Empty(t, repo.Calls(), "protected paths must not be read or written")

			got, _ := repo.File("config/settings.yaml")
			assert.Equal(t, "debug: false\n", got)
		})
	}
}

func TestApply_LiteralCreate(t *testing.T) {
	repo := repotest.NewMemory(nil)
	p := newPipeline(t, repo)

	out := p.Apply(context.Background(), types.LiteralMutation("./src/a.py", "print('a')\nprint('b')\n"))
	require.Equal(t, types.StatusApplied, out.Status, out.ErrorMessage())
	assert.Equal(t, "src/a.py", out.Path)
	assert.Contains(t, out.Diff, "--- /dev/null\n+++ b/src/a.py\n")
	assert.Equal(t, 2, out.LinesAdded)
	assert.Equal(t, 0, out.LinesRemoved)

	got, ok := repo.File("src/a.py")
	require.True(t, ok)
	assert.Equal(t, "print('a')\nprint('b')\n", got)
}

func TestApply_Idempotent(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{"a.txt": "one\ntwo\n"})
	p := newPipeline(t, repo)
	req := types.LiteralMutation("a.txt", "one\n2\n")

	first := p.Apply(context.Background(), req)
	require.Equal(t, types.StatusApplied, first.Status)
	assert.NotEmpty(t, first.Diff)
	assert.True(t, first.Changed())

	second := p.Apply(context.Background(), req)
	assert.Equal(t, types.StatusApplied, second.Status)
	assert.Empty(t, second.Diff)
	assert.False(t, second.Changed())
	assert.Len(t, repo.Mutations(), 1)
}

func TestApply_DryRunNeverMutates(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{"a.txt": "before\n"})
	p := newPipeline(t, repo)

	literal := types.LiteralMutation("a.txt", "after\n")
	literal.DryRun = true
	out := p.Apply(context.Background(), literal)
	assert.Equal(t, types.StatusSkippedDryRun, out.Status)
	assert.Equal(t, "--- a/a.txt\n+++ b/a.txt\n@@ -1,1 +1,1 @@\n-before\n+after\n", out.Diff)
	assert.Equal(t, 1, out.LinesAdded)
	assert.Equal(t, 1, out.LinesRemoved)

	patch := types.MutationRequest{Path: "a.txt", Patch: out.Diff, DryRun: true}
	out = p.Apply(context.Background(), patch)
	assert.Equal(t, types.StatusSkippedDryRun, out.Status)

	created := types.LiteralMutation("new.txt", "x\n")
	created.DryRun = true
	out = p.Apply(context.Background(), created)
	assert.Equal(t, types.StatusSkippedDryRun, out.Status)

	assert.Empty(t, repo.Mutations())
	got, _ := repo.File("a.txt")
	assert.Equal(t, "before\n", got)
	_, exists := repo.File("new.txt")
	assert.False(t, exists)
}

func TestApply_InvalidDiffIsRejected(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{"src/b.py": "x = 1\n"})
	repo.ValidateErr = func(string) error { return diff.ErrMalformed }
	p := newPipeline(t, repo)

	out := p.Apply(context.Background(), types.LiteralMutation("src/b.py", "x = 2\n"))
	assert.Equal(t, types.StatusRejectedInvalidDiff, out.Status)
	assert.ErrorIs(t, out.Err, diff.ErrMalformed)
	assert.Empty(t, repo.Mutations())

	got, _ := repo.File("src/b.py")
	assert.Equal(t, "x = 1\n", got)
}

func TestApply_Patch(t *testing.T) {
	const base = "a\nb\nc\n"
	good := "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n"

	tests := []struct {
		name       string
		patch      string
		wantStatus types.MutationStatus
		wantErr    error
		wantFile   string
	}{
		{name: "applies", patch: good, wantStatus: types.StatusApplied, wantFile: "a\nB\nc\n"},
		{name: "malformed", patch: "--- a/f.txt\n+++ b/f.txt\nnot a hunk\n", wantStatus: types.StatusRejectedInvalidDiff, wantErr: diff.ErrMalformed, wantFile: base},
		{name: "stale", patch: "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-x\n+B\n c\n", wantStatus: types.StatusFailedApply, wantErr: repository.ErrPatchRejected, wantFile: base},
		{name: "other path", patch: "--- a/g.txt\n+++ b/g.txt\n@@ -1 +1 @@\n-a\n+b\n", wantStatus: types.StatusRejectedInvalidDiff, wantErr: ErrPathMismatch, wantFile: base},
		{name: "two files", patch: good + "--- a/g.txt\n+++ b/g.txt\n@@ -1 +1 @@\n-a\n+b\n", wantStatus: types.StatusRejectedInvalidDiff, wantErr: ErrPathMismatch, wantFile: base},
		{name: "creation of existing file", patch: "--- /dev/null\n+++ b/f.txt\n@@ -0,0 +1 @@\n+new\n", wantStatus: types.StatusFailedApply, wantErr: repository.ErrPatchRejected, wantFile: base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repotest.NewMemory(map[string]string{"f.txt": base, "g.txt": "a\n"})
			p := newPipeline(t, repo)

			out := p.Apply(context.Background(), types.MutationRequest{Path: "f.txt", Patch: tt.patch})
			assert.Equal(t, tt.wantStatus, out.Status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			} else {
				assert.NoError(t, out.Err)
			}
			got, _ := repo.File("f.txt")
			assert.Equal(t, tt.wantFile, got)
			g, _ := repo.File("g.txt")
			assert.Equal(t, "a\n", g)
		})
	}
}

func TestApply_PatchCreatesFile(t *testing.T) {
	repo := repotest.NewMemory(nil)
	p := newPipeline(t, repo)

	out := p.Apply(context.Background(), types.MutationRequest{
		Path:  "docs/new.md",
		Patch: "--- /dev/null\n+++ b/docs/new.md\n@@ -0,0 +1,2 @@\n+# Title\n+body\n",
	})
	require.Equal(t, types.StatusApplied, out.Status, out.ErrorMessage())
	assert.Equal(t, 2, out.LinesAdded)

	got, ok := repo.File("docs/new.md")
	require.True(t, ok)
	assert.Equal(t, "# Title\nbody\n", got)
}

func TestApply_WriteFailureLeavesFileUnchanged(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{"a.txt": "keep\n"})
	repo.WriteErr = func(string) error { return errors.New("disk full") }
	p := newPipeline(t, repo)

	out := p.Apply(context.Background(), types.LiteralMutation("a.txt", "lose\n"))
	assert.Equal(t, types.StatusFailedApply, out.Status)
	assert.ErrorIs(t, out.Err, repository.ErrIOFailure)
	assert.NotEmpty(t, out.Diff)

	got, _ := repo.File("a.txt")
	assert.Equal(t, "keep\n", got)
}

func TestApply_Unresolved(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{"a.txt": "x\n"})
	p := newPipeline(t, repo)

	out := p.Apply(context.Background(), types.MutationRequest{Path: "a.txt", Instruction: "do something"})
	assert.Equal(t, types.StatusFailedApply, out.Status)
	assert.ErrorIs(t, out.Err, ErrUnresolvedContent)
	assert.Empty(t, repo.Mutations())
}

func TestApply_CustomPatterns(t *testing.T) {
	repo := repotest.NewMemory(nil)
	p := newPipeline(t, repo, "**/*.lock", "secrets/*")

	tests := map[string]types.MutationStatus{
		"go.sum":              types.StatusApplied,
		"web/package.lock":    types.StatusSkippedProtected,
		"Cargo.lock":          types.StatusSkippedProtected,
		"secrets/key.pem":     types.StatusSkippedProtected,
		"secrets/nested/a.md": types.StatusApplied,
		"config/app.yaml":     types.StatusApplied,
	}
	for path, want := range tests {
		out := p.Apply(context.Background(), types.LiteralMutation(path, "x\n"))
		assert.Equal(t, want, out.Status, path)
	}
}

// The remaining tests run against a real directory.

func TestApply_OnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	files, err := repository.NewFiles(dir, nil)
	require.NoError(t, err)
	p := newPipeline(t, files)

	out := p.Apply(context.Background(), types.LiteralMutation("main.go", "package main\n\nfunc main() {}\n"))
	require.Equal(t, types.StatusApplied, out.Status, out.ErrorMessage())

	data, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc main() {}\n", string(data))

	out = p.Apply(context.Background(), types.MutationRequest{
		Path:  "main.go",
		Patch: "--- a/main.go\n+++ b/main.go\n@@ -3 +3 @@\n-func main() {}\n+func main() { println(1) }\n",
	})
	require.Equal(t, types.StatusApplied, out.Status, out.ErrorMessage())

	data, err = os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc main() { println(1) }\n", string(data))
}

func TestApply_OnDiskWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// A regular file in place of the parent directory makes the target unusable.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocker"), []byte("file\n"), 0o644))

	files, err := repository.NewFiles(dir, nil)
	require.NoError(t, err)
	p := newPipeline(t, files)

	out := p.Apply(context.Background(), types.LiteralMutation("blocker/child.txt", "x\n"))
	assert.Equal(t, types.StatusFailedApply, out.Status)
	assert.ErrorIs(t, out.Err, repository.ErrIOFailure)

	data, err := os.ReadFile(filepath.Join(dir, "blocker"))
	require.NoError(t, err)
	assert.Equal(t, "file\n", string(data))
}

func TestApply_OnDiskSymlinkToProtectedDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	settings := filepath.Join(dir, "config", "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("debug: false\n"), 0o644))
	require.NoError(t, os.Symlink("config", filepath.Join(dir, "docs")))

	files, err := repository.NewFiles(dir, nil)
	require.NoError(t, err)
	p := newPipeline(t, files)

	for _, req := range []types.MutationRequest{
		types.LiteralMutation("docs/settings.yaml", "debug: true\n"),
		{Path: "docs/settings.yaml", Patch: "--- a/docs/settings.yaml\n+++ b/docs/settings.yaml\n@@ -1 +1 @@\n-debug: false\n+debug: true\n"},
		types.LiteralMutation("docs/new.yaml", "x: 1\n"),
	} {
		out := p.Apply(context.Background(), req)
		assert.Equal(t, types.StatusSkippedProtected, out.Status, req.Path)
	}

	data, err := os.ReadFile(settings)
	require.NoError(t, err)
	assert.Equal(t, "debug: false\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "config", "new.yaml"))
}
