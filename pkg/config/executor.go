package config

import (
	"github.com/entrhq/repoman/pkg/executor/headless"
)

// ExecutorConfig converts the file configuration into the task executor's
// configuration for the repository at workspaceDir.
func (c *Config) ExecutorConfig(workspaceDir string) *headless.Config {
	return &headless.Config{
		WorkspaceDir: workspaceDir,
		Constraints: headless.ConstraintConfig{
			MaxFiles:        c.Safety.MaxFiles,
			MaxLinesChanged: c.Safety.MaxLinesChanged,
			Timeout:         c.Tasks.Timeout,
		},
		Verification: headless.VerificationConfig{
			Checks:   c.Tasks.VerifyCommands,
			FailFast: c.Tasks.FailFast,
		},
		Git: headless.GitConfig{
			AutoCommit:   c.Repository.AutoCommit,
			AutoPush:     c.Repository.AutoPush,
			CommitPrefix: c.Repository.CommitPrefix,
			BranchPrefix: c.Repository.BranchPrefix,
			Remote:       c.Repository.Remote,
		},
		Artifacts: headless.ArtifactConfig{
			Enabled:   c.Artifacts.Enabled,
			OutputDir: Resolve(workspaceDir, c.Artifacts.OutputDir),
		},
		Logging: headless.LoggingConfig{
			Verbosity: c.Logging.Verbosity,
		},
		ContextTokens: c.Tasks.ContextTokens,
		DryRun:        c.Safety.DryRun,
		Strict:        c.Tasks.Strict,
	}
}
