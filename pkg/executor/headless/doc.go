// Package headless implements the task executor that runs repoman without a
// human in the loop: from cron, CI jobs or a terminal.
//
// A task turns one free-form instruction into a bounded, ordered sequence of
// file edits and carries it through a fixed state machine:
//
//	PLANNING ──▶ MUTATING ──▶ (VERIFYING) ──▶ (COMMITTING) ──▶ DONE
//	    │            │              │
//	    └────────────┴──────────────┴──────▶ ABORTED
//
// Planning lists the repository, keeps the files matching the task scope,
// drops protected ones and asks the oracle for a plan. Mutating drives each
// plan step, in order, through the mutation pipeline; instruction steps are
// resolved into content by the oracle first. Verification runs the configured
// (or detected) checks, and a failed verification always blocks the commit.
// Committing records only the paths the task changed.
//
// The executor provides:
//
//   - Safety constraints (maximum files, maximum lines changed, timeout)
//   - Strict mode, stopping at the first rejected or failed mutation
//   - Verification before commit
//   - Git integration for branches, commits and pushes
//   - Artifact generation (execution.json, summary.md, metrics.json)
//   - A leveled console reporter
//
// Example usage:
//
//	config := headless.DefaultConfig()
//	config.WorkspaceDir = "/path/to/project"
//
//	exec, err := headless.NewExecutor(repo, oracle, guard, config,
//	    headless.WithConsole(headless.NewLogger(headless.LogLevelNormal)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := exec.Execute(ctx, headless.Task{
//	    Instruction: "Add type hints to the public functions",
//	    Scope:       []string{"src/**/*.py"},
//	    Verify:      true,
//	})
package headless
