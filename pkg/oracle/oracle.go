// Package oracle produces change proposals for the task executor.
//
// The Oracle interface is the only thing the executor knows about language
// models. LLMOracle implements it on top of any llm.Provider; tests and other
// backends implement it directly.
package oracle

import (
	"context"
	"errors"

	"github.com/entrhq/repoman/pkg/types"
)

var (
	// ErrOracleUnavailable is returned when the backing model cannot be reached
	// or refuses the request. A task cannot continue without its oracle.
	ErrOracleUnavailable = errors.New("suggestion oracle unavailable")

	// ErrInvalidPlan is returned when the model's plan cannot be parsed.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrEmptyProposal is returned when the model proposes no content at all.
	ErrEmptyProposal = errors.New("empty proposal")
)

// FileContext is one file offered to the oracle while planning.
type FileContext struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`

	// Omitted is set when the file did not fit the token budget; only its
	// path is shown to the model.
	Omitted bool `json:"omitted,omitempty"`
}

// PlanRequest is the input of Oracle.Plan.
type PlanRequest struct {
	Instruction string
	Files       []FileContext
}

// Paths returns the paths of every file in the request.
func (r PlanRequest) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// Oracle turns instructions into plans and proposed file contents.
type Oracle interface {
	// Plan returns the ordered mutations that carry out the instruction.
	// An empty plan means no change is needed.
	Plan(ctx context.Context, req PlanRequest) (types.TaskPlan, error)

	// Propose returns the full new content of one file.
	Propose(ctx context.Context, snapshot types.FileSnapshot, instruction, repoContext string) (string, error)
}
