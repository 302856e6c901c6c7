package types

import "time"

// ExitCodeUnknown is reported when a process was killed or never started.
const ExitCodeUnknown = -1

// CommandResult is the outcome of running one shell command.
type CommandResult struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Required bool          `json:"required"`
}

// Passed reports whether the command exited zero within its timeout.
func (r CommandResult) Passed() bool {
	return r.ExitCode == 0 && !r.TimedOut
}
