package runner

import (
	"context"

	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

// SuiteResult aggregates the results of a sequence of checks.
type SuiteResult struct {
	Results []types.CommandResult `json:"results"`
	Passed  bool                  `json:"passed"`
}

// Failed returns the results of required checks that did not pass.
func (s SuiteResult) Failed() []types.CommandResult {
	var failed []types.CommandResult
	for _, r := range s.Results {
		if r.Required && !r.Passed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunSuite runs checks in order. With failFast it stops at the first failing
// required check; otherwise every check runs and the results are aggregated.
// Optional checks are recorded but never fail the suite. A canceled context
// stops the suite and fails it.
func (r *Runner) RunSuite(ctx context.Context, checks []Check, failFast bool) SuiteResult {
	suite := SuiteResult{
		Results: make([]types.CommandResult, 0, len(checks)),
		Passed:  true,
	}

	for _, check := range checks {
		if ctx.Err() != nil {
			suite.Passed = false
			break
		}

		result := r.Run(ctx, check)
		suite.Results = append(suite.Results, result)

		if result.Passed() {
			continue
		}
		if !check.Required {
			r.logger.Warn("optional check failed", zap.String("name", check.Name))
			continue
		}

		suite.Passed = false
		if failFast {
			break
		}
	}
	return suite
}
