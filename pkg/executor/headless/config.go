package headless

import (
	"fmt"
	"time"

	"github.com/entrhq/repoman/pkg/runner"
)

// Config represents the configuration of the task executor
type Config struct {
	// Workspace directory, used for check detection and artifacts
	WorkspaceDir string `yaml:"workspace_dir" json:"workspace_dir"`

	// Safety constraints
	Constraints ConstraintConfig `yaml:"constraints" json:"constraints"`

	// Verification checks run after mutations
	Verification VerificationConfig `yaml:"verification" json:"verification"`

	// Git configuration
	Git GitConfig `yaml:"git" json:"git"`

	// Artifacts configuration
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// ContextTokens bounds the file content sent to the oracle while planning
	ContextTokens int `yaml:"context_tokens" json:"context_tokens"`

	// DryRun forces every task to compute diffs without writing
	DryRun bool `yaml:"dry_run" json:"dry_run"`

	// Strict makes every task stop at its first failed mutation
	Strict bool `yaml:"strict" json:"strict"`
}

// ConstraintConfig defines safety constraints for a task
type ConstraintConfig struct {
	// File modification limits
	MaxFiles        int `yaml:"max_files" json:"max_files"`
	MaxLinesChanged int `yaml:"max_lines_changed" json:"max_lines_changed"`

	// Resource limits
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// VerificationConfig defines the checks run before committing
type VerificationConfig struct {
	// Checks to run; when empty the commands detected in the workspace are used
	Checks   []runner.Check `yaml:"checks" json:"checks"`
	FailFast bool           `yaml:"fail_fast" json:"fail_fast"`
}

// GitConfig defines git operation configuration
type GitConfig struct {
	AutoCommit   bool   `yaml:"auto_commit" json:"auto_commit"`
	AutoPush     bool   `yaml:"auto_push" json:"auto_push"`
	CommitPrefix string `yaml:"commit_message_prefix" json:"commit_message_prefix"`
	BranchPrefix string `yaml:"branch_prefix" json:"branch_prefix"`
	Remote       string `yaml:"remote" json:"remote"`
}

// LoggingConfig defines console configuration
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace directory is required")
	}

	// Validate constraints
	if c.Constraints.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	if c.Constraints.MaxFiles < 0 {
		return fmt.Errorf("max_files cannot be negative")
	}

	if c.Constraints.MaxLinesChanged < 0 {
		return fmt.Errorf("max_lines_changed cannot be negative")
	}

	if c.ContextTokens < 0 {
		return fmt.Errorf("context_tokens cannot be negative")
	}

	for i, check := range c.Verification.Checks {
		if check.Command == "" {
			return fmt.Errorf("verification check %d has no command", i)
		}
		if check.Timeout < 0 {
			return fmt.Errorf("verification check %q has a negative timeout", check.Name)
		}
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts require an output directory")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	// Validate log level
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		WorkspaceDir: ".",
		Constraints: ConstraintConfig{
			MaxFiles:        10,
			MaxLinesChanged: 500,
			Timeout:         10 * time.Minute,
		},
		Verification: VerificationConfig{
			FailFast: true,
		},
		Git: GitConfig{
			AutoCommit:   true,
			CommitPrefix: "[Repoman]",
			BranchPrefix: "repoman/",
			Remote:       "origin",
		},
		Artifacts: ArtifactConfig{
			Enabled:   false,
			OutputDir: ".repoman/artifacts",
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}
