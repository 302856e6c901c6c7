package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathGuard_IsProtected(t *testing.T) {
	guard, err := NewPathGuard(DefaultProtectedPatterns)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "git internals", path: ".git/config", want: true},
		{name: "git dir itself", path: ".git", want: true},
		{name: "nested workflow", path: ".github/workflows/ci.yml", want: true},
		{name: "config file", path: "config/settings.yaml", want: true},
		{name: "deep config file", path: "config/env/prod/db.yaml", want: true},
		{name: "source file", path: "src/a.py", want: false},
		{name: "config-like name outside dir", path: "src/config.py", want: false},
		{name: "leading dot slash", path: "./config/settings.yaml", want: true},
		{name: "backslash separators", path: `config\settings.yaml`, want: true},
		{name: "backslash source", path: `src\a.py`, want: false},
		{name: "absolute path", path: "/etc/passwd", want: true},
		{name: "windows absolute path", path: `C:\Windows\system.ini`, want: true},
		{name: "parent traversal", path: "../outside.txt", want: true},
		{name: "inner traversal", path: "src/../../outside.txt", want: true},
		{name: "traversal back inside", path: "src/../a.py", want: true},
		{name: "empty path", path: "", want: true},
		{name: "root itself", path: ".", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.IsProtected(tt.path))
		})
	}
}

func TestPathGuard_PatternSemantics(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{name: "star stays in segment", pattern: "src/*.py", path: "src/a.py", want: true},
		{name: "star does not cross dirs", pattern: "src/*.py", path: "src/pkg/a.py", want: false},
		{name: "double star crosses dirs", pattern: "src/**/*.py", path: "src/pkg/deep/a.py", want: true},
		{name: "leading double star at root", pattern: "**/*.key", path: "server.key", want: true},
		{name: "leading double star nested", pattern: "**/*.key", path: "certs/prod/server.key", want: true},
		{name: "literal dir protects children", pattern: "vendor", path: "vendor/lib/x.go", want: true},
		{name: "literal file", pattern: "go.sum", path: "go.sum", want: true},
		{name: "braces", pattern: "*.{pem,key}", path: "id.pem", want: true},
		{name: "character class", pattern: "secret[0-9].txt", path: "secret7.txt", want: true},
		{name: "no match", pattern: "docs/**", path: "src/docs.go", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, err := NewPathGuard([]string{tt.pattern})
			require.NoError(t, err)
			assert.Equal(t, tt.want, guard.IsProtected(tt.path))
		})
	}
}

func TestPathGuard_EveryMatchIsProtected(t *testing.T) {
	patterns := []string{"config/**", "*.lock", "scripts/deploy/*"}
	guard, err := NewPathGuard(patterns)
	require.NoError(t, err)

	matching := []string{
		"config/a.yaml",
		"config/b/c.json",
		"yarn.lock",
		"scripts/deploy/run.sh",
	}
	for _, p := range matching {
		assert.True(t, guard.IsProtected(p), p)
	}
}

func TestNewPathGuard_InvalidPattern(t *testing.T) {
	_, err := NewPathGuard([]string{"src/[a-"})
	assert.Error(t, err)
}

func TestExpandPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
	}{
		{"src/*.py", []string{"src/*.py"}},
		{"config/**", []string{"config/**", "config"}},
		{"**/*.go", []string{"**/*.go", "*.go"}},
		{"src/**/*.py", []string{"src/**/*.py", "src/*.py"}},
		{"./secrets", []string{"secrets", "secrets/**"}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPattern(tt.pattern))
		})
	}
}

func TestPathGuard_PatternsIsCopy(t *testing.T) {
	guard, err := NewPathGuard([]string{"a/**"})
	require.NoError(t, err)

	got := guard.Patterns()
	got[0] = "changed"
	assert.Equal(t, []string{"a/**"}, guard.Patterns())
}

func TestPathGuard_EmptyPatterns(t *testing.T) {
	guard, err := NewPathGuard(nil)
	require.NoError(t, err)

	assert.False(t, guard.IsProtected("anything/at/all.txt"))
	assert.True(t, guard.IsProtected("../escape"))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "a/b.txt", want: "a/b.txt", wantOK: true},
		{in: "./a//b.txt", want: "a/b.txt", wantOK: true},
		{in: `a\b.txt`, want: "a/b.txt", wantOK: true},
		{in: "a/./b.txt", want: "a/b.txt", wantOK: true},
		{in: "/a", wantOK: false},
		{in: "a/../b", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizePath(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
