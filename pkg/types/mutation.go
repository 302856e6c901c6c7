package types

// MutationStatus is the terminal status of a single file mutation.
type MutationStatus string

const (
	StatusApplied             MutationStatus = "applied"               // StatusApplied indicates the proposed content is now in the working tree (possibly a no-op).
	StatusSkippedProtected    MutationStatus = "skipped_protected"     // StatusSkippedProtected indicates the path matched a protected pattern and was never touched.
	StatusSkippedDryRun       MutationStatus = "skipped_dry_run"       // StatusSkippedDryRun indicates a diff was computed but nothing was written.
	StatusRejectedInvalidDiff MutationStatus = "rejected_invalid_diff" // StatusRejectedInvalidDiff indicates the change failed structural validation.
	StatusFailedApply         MutationStatus = "failed_apply"          // StatusFailedApply indicates an I/O failure or a stale patch; the file is unchanged.
)

// IsFailure reports whether the status is a recorded rejection or failure.
func (s MutationStatus) IsFailure() bool {
	return s == StatusRejectedInvalidDiff || s == StatusFailedApply
}

// FileSnapshot is the content of a file at a point in time.
type FileSnapshot struct {
	// Path is relative to the repository root and slash separated.
	Path string `json:"path"`

	// Content is empty when the file does not exist.
	Content string `json:"content,omitempty"`

	// Existed is false for the creation case.
	Existed bool `json:"existed"`
}

// MutationRequest describes one change to one file.
//
// Exactly one of Content, Patch or Instruction drives the request. Instruction-only
// requests must be resolved into Content by the caller before reaching the pipeline.
type MutationRequest struct {
	// Path is the repository-relative target.
	Path string `json:"path"`

	// Instruction is the natural-language change for this file.
	Instruction string `json:"instruction,omitempty"`

	// Content is the literal proposed content.
	Content *string `json:"content,omitempty"`

	// Patch is a unified diff for this single file.
	Patch string `json:"patch,omitempty"`

	// DryRun computes the diff without writing.
	DryRun bool `json:"dry_run,omitempty"`
}

// Resolved reports whether the request carries a concrete change.
func (r MutationRequest) Resolved() bool {
	return r.Content != nil || r.Patch != ""
}

// WithContent returns a copy of the request carrying literal content.
func (r MutationRequest) WithContent(content string) MutationRequest {
	r.Content = &content
	return r
}

// LiteralMutation builds a request that replaces path with content.
func LiteralMutation(path, content string) MutationRequest {
	return MutationRequest{Path: path, Content: &content}
}

// MutationOutcome is the immutable result of driving one request through the pipeline.
type MutationOutcome struct {
	Err          error          `json:"-"`
	Path         string         `json:"path"`
	Status       MutationStatus `json:"status"`
	Diff         string         `json:"diff,omitempty"`
	LinesAdded   int            `json:"lines_added,omitempty"`
	LinesRemoved int            `json:"lines_removed,omitempty"`
}

// Changed reports whether the outcome modified the working tree.
func (o MutationOutcome) Changed() bool {
	return o.Status == StatusApplied && o.Diff != ""
}

// ErrorMessage returns the error text, or an empty string.
func (o MutationOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
