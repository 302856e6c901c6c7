// Package config loads, validates and saves the repoman YAML configuration.
//
// A missing file means defaults. Keys absent from the file keep their
// default values because the file is decoded over DefaultConfig().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/repoman/pkg/logging"
	"github.com/entrhq/repoman/pkg/runner"
	"github.com/entrhq/repoman/pkg/security/workspace"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file location relative to the repository.
const DefaultPath = "config/repoman.yaml"

// Supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete repoman configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Repository RepositoryConfig `yaml:"repository" json:"repository"`
	Tasks      TasksConfig      `yaml:"tasks" json:"tasks"`
	Safety     SafetyConfig     `yaml:"safety" json:"safety"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" json:"artifacts"`
	Journal    JournalConfig    `yaml:"journal" json:"journal"`
}

// LLMConfig selects and tunes the language model behind the oracle.
type LLMConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	BaseURL     string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty" json:"-"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// RepositoryConfig controls git operations.
type RepositoryConfig struct {
	AutoCommit   bool   `yaml:"auto_commit" json:"auto_commit"`
	AutoPush     bool   `yaml:"auto_push" json:"auto_push"`
	CommitPrefix string `yaml:"commit_message_prefix" json:"commit_message_prefix"`
	BranchPrefix string `yaml:"branch_prefix" json:"branch_prefix"`
	AuthorName   string `yaml:"author_name,omitempty" json:"author_name,omitempty"`
	AuthorEmail  string `yaml:"author_email,omitempty" json:"author_email,omitempty"`
	Remote       string `yaml:"remote" json:"remote"`
}

// TasksConfig holds the defaults of the task command.
type TasksConfig struct {
	Timeout        time.Duration  `yaml:"timeout" json:"timeout"`
	Scope          []string       `yaml:"scope,omitempty" json:"scope,omitempty"`
	Verify         bool           `yaml:"verify" json:"verify"`
	FailFast       bool           `yaml:"fail_fast" json:"fail_fast"`
	Strict         bool           `yaml:"strict" json:"strict"`
	ContextTokens  int            `yaml:"context_tokens" json:"context_tokens"`
	VerifyCommands []runner.Check `yaml:"verify_commands,omitempty" json:"verify_commands,omitempty"`
}

// SafetyConfig holds the protections applied to every mutation.
type SafetyConfig struct {
	DryRun          bool     `yaml:"dry_run" json:"dry_run"`
	ProtectedFiles  []string `yaml:"protected_files" json:"protected_files"`
	MaxFiles        int      `yaml:"max_files" json:"max_files"`
	MaxLinesChanged int      `yaml:"max_lines_changed" json:"max_lines_changed"`
}

// LoggingConfig controls the session log file and the console.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Dir       string `yaml:"dir" json:"dir"`
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// ArtifactsConfig controls the per-task report files.
type ArtifactsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// JournalConfig controls the run history database.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     2 * time.Minute,
		},
		Repository: RepositoryConfig{
			AutoCommit:   true,
			CommitPrefix: "[Repoman]",
			BranchPrefix: "repoman/",
			Remote:       "origin",
		},
		Tasks: TasksConfig{
			Timeout:       10 * time.Minute,
			FailFast:      true,
			ContextTokens: 8000,
		},
		Safety: SafetyConfig{
			ProtectedFiles:  append([]string(nil), workspace.DefaultProtectedPatterns...),
			MaxFiles:        10,
			MaxLinesChanged: 500,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Dir:       ".repoman/logs",
			Verbosity: "normal",
		},
		Artifacts: ArtifactsConfig{
			OutputDir: ".repoman/artifacts",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    ".repoman/journal.db",
		},
	}
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path atomically, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create temp file for atomic write
	tmp, err := os.CreateTemp(dir, ".repoman-config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values repoman cannot work with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q (must be %q or %q)", c.LLM.Provider, ProviderOpenAI, ProviderAnthropic)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}

	limits := map[string]int64{
		"llm.max_tokens":           int64(c.LLM.MaxTokens),
		"llm.timeout":              int64(c.LLM.Timeout),
		"tasks.timeout":            int64(c.Tasks.Timeout),
		"tasks.context_tokens":     int64(c.Tasks.ContextTokens),
		"safety.max_files":         int64(c.Safety.MaxFiles),
		"safety.max_lines_changed": int64(c.Safety.MaxLinesChanged),
	}
	for key, v := range limits {
		if v < 0 {
			return fmt.Errorf("%s cannot be negative", key)
		}
	}

	if _, err := workspace.NewPathGuard(c.Safety.ProtectedFiles); err != nil {
		return fmt.Errorf("safety.protected_files: %w", err)
	}
	for _, p := range c.Tasks.Scope {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("tasks.scope: invalid pattern %q: %w", p, err)
		}
	}
	for i, check := range c.Tasks.VerifyCommands {
		if strings.TrimSpace(check.Command) == "" {
			return fmt.Errorf("tasks.verify_commands[%d] has no command", i)
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Verbosity {
	case "", "quiet", "normal", "verbose", "debug":
	default:
		return fmt.Errorf("logging.verbosity must be quiet, normal, verbose or debug, got %q", c.Logging.Verbosity)
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts.output_dir is required when artifacts are enabled")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	return nil
}

// Get returns the value at a dotted key such as "llm.model". Keys follow the
// YAML names.
func (c *Config) Get(key string) (interface{}, bool) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, false
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, false
	}

	var cur interface{} = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Resolve returns path joined with the repository directory unless it is
// already absolute.
func Resolve(repoDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoDir, path)
}
