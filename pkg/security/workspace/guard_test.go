package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewGuard(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name         string
		workspaceDir string
		wantErr      bool
	}{
		{name: "valid existing directory", workspaceDir: tmpDir, wantErr: false},
		{name: "current directory", workspaceDir: ".", wantErr: false},
		{name: "empty directory", workspaceDir: "", wantErr: true},
		{name: "non-existent directory", workspaceDir: filepath.Join(tmpDir, "missing"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, err := NewGuard(tt.workspaceDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGuard() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && guard.WorkspaceDir() == "" {
				t.Error("NewGuard() created guard with empty workspace directory")
			}
		})
	}
}

func TestGuard_Resolve(t *testing.T) {
	tmpDir := t.TempDir()
	guard, err := NewGuard(tmpDir)
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "simple file", path: "a.txt", want: filepath.Join(guard.WorkspaceDir(), "a.txt")},
		{name: "nested new file", path: "src/pkg/new.go", want: filepath.Join(guard.WorkspaceDir(), "src", "pkg", "new.go")},
		{name: "traversal", path: "../x", wantErr: true},
		{name: "absolute", path: "/etc/passwd", wantErr: true},
		{name: "empty", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.Resolve(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrOutsideWorkspace) {
					t.Errorf("Resolve(%q) error = %v, want ErrOutsideWorkspace", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGuard_ResolveRejectsSymlinkEscape(t *testing.T) {
	workspaceDir := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(workspaceDir, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	guard, err := NewGuard(workspaceDir)
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	if _, err := guard.Resolve("link/secret.txt"); !errors.Is(err, ErrOutsideWorkspace) {
		t.Errorf("Resolve() through escaping symlink error = %v, want ErrOutsideWorkspace", err)
	}
}

func TestGuard_MakeRelative(t *testing.T) {
	guard, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	rel, err := guard.MakeRelative(filepath.Join(guard.WorkspaceDir(), "src", "a.go"))
	if err != nil {
		t.Fatalf("MakeRelative() error = %v", err)
	}
	if rel != "src/a.go" {
		t.Errorf("MakeRelative() = %q, want %q", rel, "src/a.go")
	}

	if _, err := guard.MakeRelative(filepath.Dir(guard.WorkspaceDir())); err == nil {
		t.Error("MakeRelative() outside workspace should fail")
	}
}
