package runner

import (
	"os"
	"path/filepath"
	"strings"
)

// Commands are the tools detected in a repository. Empty means none found.
type Commands struct {
	Test        string `json:"test,omitempty"`
	Lint        string `json:"lint,omitempty"`
	Format      string `json:"format,omitempty"`
	FormatCheck string `json:"format_check,omitempty"`
}

type marker struct {
	file    string
	command string
}

var testMarkers = []marker{
	{"go.mod", "go test ./..."},
	{"pytest.ini", "pytest"},
	{"setup.py", "pytest"},
	{"package.json", "npm test"},
	{"Cargo.toml", "cargo test"},
	{"Makefile", "make test"},
	{"tox.ini", "tox"},
}

var lintMarkers = []marker{
	{"go.mod", "go vet ./..."},
	{".flake8", "flake8"},
	{"pylint.rc", "pylint"},
	{".eslintrc.js", "eslint ."},
	{".eslintrc.json", "eslint ."},
}

// formatMarkers map to the fixing command and the check-only command.
var formatMarkers = []struct {
	file          string
	format, check string
}{
	{"go.mod", "gofmt -w .", "test -z \"$(gofmt -l .)\""},
	{"pyproject.toml", "black .", "black --check ."},
	{".prettierrc", "prettier --write .", "prettier --check ."},
}

// Detect inspects marker files in dir and resolves the test, lint and format commands.
func Detect(dir string) Commands {
	var c Commands
	c.Test = firstMarker(dir, testMarkers)
	c.Lint = firstMarker(dir, lintMarkers)
	for _, m := range formatMarkers {
		if exists(filepath.Join(dir, m.file)) {
			c.Format = m.format
			c.FormatCheck = m.check
			break
		}
	}
	return c
}

// Checks returns the verification checks for detected commands: the test
// command is required, the linter is advisory.
func (c Commands) Checks() []Check {
	var checks []Check
	if c.Test != "" {
		checks = append(checks, Check{Name: "test", Command: c.Test, Required: true})
	}
	if c.Lint != "" {
		checks = append(checks, Check{Name: "lint", Command: c.Lint, Required: false})
	}
	return checks
}

// WithArgs appends quoted arguments to a command.
func WithArgs(command string, args ...string) string {
	for _, a := range args {
		if a != "" {
			command += " " + shellQuote(a)
		}
	}
	return command
}

// ScriptCommand returns the command that runs a script file by extension.
func ScriptCommand(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python3 " + shellQuote(path)
	case ".sh":
		return "bash " + shellQuote(path)
	case ".js":
		return "node " + shellQuote(path)
	case ".go":
		return "go run " + shellQuote(path)
	default:
		return shellQuote(path)
	}
}

func firstMarker(dir string, markers []marker) string {
	for _, m := range markers {
		if exists(filepath.Join(dir, m.file)) {
			return m.command
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]{}!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
