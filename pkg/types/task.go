package types

import "time"

// TaskState is a node of the task state machine.
type TaskState string

const (
	StatePlanning   TaskState = "PLANNING"
	StateMutating   TaskState = "MUTATING"
	StateVerifying  TaskState = "VERIFYING"
	StateCommitting TaskState = "COMMITTING"
	StateDone       TaskState = "DONE"
	StateAborted    TaskState = "ABORTED"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// TaskStatus is the outcome code surfaced to callers.
type TaskStatus string

const (
	TaskSuccess TaskStatus = "success" // TaskSuccess indicates every mutation was applied or intentionally skipped.
	TaskPartial TaskStatus = "partial" // TaskPartial indicates some mutations were rejected or failed, or the task was canceled.
	TaskAborted TaskStatus = "aborted" // TaskAborted indicates a strict-mode stop, a failed verification or an oracle failure.
	TaskBlocked TaskStatus = "blocked" // TaskBlocked indicates the entire scope was protected.
)

// TaskPlan is the ordered list of mutations derived from one instruction.
type TaskPlan struct {
	Summary string            `json:"summary,omitempty"`
	Steps   []MutationRequest `json:"steps"`
}

// Paths returns the target path of every step, in order.
func (p TaskPlan) Paths() []string {
	paths := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		paths = append(paths, s.Path)
	}
	return paths
}

// Transition records a state change of a task.
type Transition struct {
	State TaskState `json:"state"`
	At    time.Time `json:"at"`
}

// Verification holds the aggregated results of the verification checks.
type Verification struct {
	Results []CommandResult `json:"results"`
	Passed  bool            `json:"passed"`
}

// TaskResult is the structured report of one task execution. It is owned by the caller.
type TaskResult struct {
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Verification  *Verification     `json:"verification,omitempty"`
	ID            string            `json:"id"`
	Instruction   string            `json:"instruction"`
	CommitSHA     string            `json:"commit_sha,omitempty"`
	CommitMessage string            `json:"commit_message,omitempty"`
	CommitNote    string            `json:"commit_note,omitempty"`
	Branch        string            `json:"branch,omitempty"`
	Error         string            `json:"error,omitempty"`
	State         TaskState         `json:"state"`
	Status        TaskStatus        `json:"status"`
	Scope         []string          `json:"scope,omitempty"`
	Plan          TaskPlan          `json:"plan"`
	Outcomes      []MutationOutcome `json:"outcomes"`
	Transitions   []Transition      `json:"transitions"`
	ContextTokens int               `json:"context_tokens,omitempty"`
	DryRun        bool              `json:"dry_run,omitempty"`
	Canceled      bool              `json:"canceled,omitempty"`
}

// Duration returns the wall time of the task.
func (r *TaskResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// ChangedPaths returns the paths whose outcome modified the working tree, in plan order.
func (r *TaskResult) ChangedPaths() []string {
	var paths []string
	seen := make(map[string]bool)
	for _, o := range r.Outcomes {
		if o.Changed() && !seen[o.Path] {
			seen[o.Path] = true
			paths = append(paths, o.Path)
		}
	}
	return paths
}

// CountByStatus tallies outcomes per status.
func (r *TaskResult) CountByStatus() map[MutationStatus]int {
	counts := make(map[MutationStatus]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Commit is one entry of repository history.
type Commit struct {
	Date    time.Time `json:"date"`
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
}

// ShortSHA returns the abbreviated commit hash.
func (c Commit) ShortSHA() string {
	if len(c.SHA) > 8 {
		return c.SHA[:8]
	}
	return c.SHA
}
