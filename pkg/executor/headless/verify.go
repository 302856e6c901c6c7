package headless

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/repoman/pkg/runner"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

// Verifier runs verification checks. *runner.Runner implements it.
type Verifier interface {
	RunSuite(ctx context.Context, checks []runner.Check, failFast bool) runner.SuiteResult
}

// checks returns the configured verification checks, or the ones detected in
// the workspace when none are configured.
func (e *Executor) checks() []runner.Check {
	if len(e.config.Verification.Checks) > 0 {
		return e.config.Verification.Checks
	}
	return runner.Detect(e.config.WorkspaceDir).Checks()
}

// verify runs the checks and reports whether the commit may proceed.
func (r *run) verify(ctx context.Context) bool {
	e := r.executor
	checks := e.checks()
	if len(checks) == 0 {
		e.console.Warningf("verification requested but no checks are configured or detected")
		r.result.Verification = &types.Verification{Passed: true}
		return true
	}

	e.console.Section("Verifying")
	suite := e.verifier.RunSuite(ctx, checks, e.config.Verification.FailFast)
	for _, res := range suite.Results {
		e.console.Check(res)
		e.logger.Info("check finished",
			zap.String("name", res.Name),
			zap.Int("exit_code", res.ExitCode),
			zap.Bool("timed_out", res.TimedOut),
			zap.Duration("duration", res.Duration))
	}

	r.result.Verification = &types.Verification{Results: suite.Results, Passed: suite.Passed}
	if !suite.Passed {
		r.result.Error = FormatVerificationFailure(suite)
	}
	return suite.Passed
}

// FormatVerificationFailure describes the failed required checks of a suite
func FormatVerificationFailure(suite runner.SuiteResult) string {
	failed := suite.Failed()
	if len(failed) == 0 {
		return "verification failed"
	}

	names := make([]string, 0, len(failed))
	for _, res := range failed {
		switch {
		case res.TimedOut:
			names = append(names, fmt.Sprintf("%s (timed out)", res.Name))
		case res.Error != "":
			names = append(names, fmt.Sprintf("%s (%s)", res.Name, res.Error))
		default:
			names = append(names, fmt.Sprintf("%s (exit code %d)", res.Name, res.ExitCode))
		}
	}
	return "verification failed: " + strings.Join(names, ", ")
}
