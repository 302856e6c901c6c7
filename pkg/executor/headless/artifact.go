package headless

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/repoman/pkg/types"
)

// ArtifactWriter handles writing execution artifacts
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a new artifact writer. Each task gets its own
// sub-directory named after its ID.
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
	}
}

// Dir returns the directory the artifacts of a task are written to
func (w *ArtifactWriter) Dir(taskID string) string {
	return filepath.Join(w.outputDir, taskID)
}

// WriteAll writes all artifact formats
func (w *ArtifactWriter) WriteAll(summary *ExecutionSummary) error {
	dir := w.Dir(summary.Result.ID)

	// Ensure output directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write JSON execution report
	if err := w.WriteExecutionJSON(dir, summary); err != nil {
		return fmt.Errorf("failed to write execution JSON: %w", err)
	}

	// Write markdown summary
	if err := w.WriteSummaryMarkdown(dir, summary); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}

	// Write metrics JSON
	if err := w.WriteMetricsJSON(dir, summary); err != nil {
		return fmt.Errorf("failed to write metrics JSON: %w", err)
	}

	return nil
}

// executionReport is the execution.json document: the task result with
// outcome errors rendered as text.
type executionReport struct {
	*types.TaskResult
	Errors        map[string]string  `json:"outcome_errors,omitempty"`
	FilesModified []FileModification `json:"files_modified"`
}

// WriteExecutionJSON writes the full execution report as JSON
func (w *ArtifactWriter) WriteExecutionJSON(dir string, summary *ExecutionSummary) error {
	path := filepath.Join(dir, "execution.json")

	report := executionReport{
		TaskResult:    summary.Result,
		FilesModified: summary.FilesModified,
	}
	for _, o := range summary.Result.Outcomes {
		if o.Err == nil {
			continue
		}
		if report.Errors == nil {
			report.Errors = make(map[string]string)
		}
		report.Errors[o.Path] = o.Err.Error()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution report: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write execution JSON: %w", writeErr)
	}

	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(dir string, summary *ExecutionSummary) error {
	path := filepath.Join(dir, "summary.md")
	r := summary.Result

	var md strings.Builder

	// Header
	md.WriteString("# Repoman Task Summary\n\n")
	md.WriteString(fmt.Sprintf("**Task:** %s\n\n", r.Instruction))
	md.WriteString(fmt.Sprintf("**Status:** %s (%s)\n\n", r.Status, r.State))
	if len(r.Scope) > 0 {
		md.WriteString(fmt.Sprintf("**Scope:** `%s`\n\n", strings.Join(r.Scope, "`, `")))
	}
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", r.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", r.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", r.Duration()))

	// Result
	md.WriteString("## Result\n\n")
	switch {
	case r.Error != "":
		md.WriteString(fmt.Sprintf("❌ **Error:** %s\n\n", r.Error))
	case r.Canceled:
		md.WriteString("⚠️ **Canceled**\n\n")
	case r.Status == types.TaskSuccess:
		md.WriteString("✅ **Success**\n\n")
	default:
		md.WriteString(fmt.Sprintf("⚠️ **%s**\n\n", r.Status))
	}

	// Outcomes
	if len(r.Outcomes) > 0 {
		md.WriteString("## Outcomes\n\n")
		md.WriteString("| File | Status | Lines |\n|---|---|---|\n")
		for _, o := range r.Outcomes {
			md.WriteString(fmt.Sprintf("| `%s` | %s | +%d/-%d |\n", o.Path, o.Status, o.LinesAdded, o.LinesRemoved))
		}
		md.WriteString("\n")
	}

	// Verification
	if r.Verification != nil && len(r.Verification.Results) > 0 {
		md.WriteString("## Verification\n\n")
		for _, result := range r.Verification.Results {
			status := "✅"
			if !result.Passed() {
				status = "❌"
			}
			md.WriteString(fmt.Sprintf("%s **%s** `%s`", status, result.Name, result.Command))
			if result.Required {
				md.WriteString(" (required)")
			}
			if result.TimedOut {
				md.WriteString(" timed out")
			}
			md.WriteString("\n")
			if result.Error != "" {
				md.WriteString(fmt.Sprintf("   Error: %s\n", result.Error))
			}
		}
		md.WriteString("\n")
	}

	// Git
	if r.CommitSHA != "" || r.CommitNote != "" {
		md.WriteString("## Git\n\n")
		if r.Branch != "" {
			md.WriteString(fmt.Sprintf("- **Branch:** %s\n", r.Branch))
		}
		if r.CommitSHA != "" {
			md.WriteString(fmt.Sprintf("- **Commit:** %s\n", r.CommitSHA))
		}
		if r.CommitNote != "" {
			md.WriteString(fmt.Sprintf("- **Note:** %s\n", r.CommitNote))
		}
		md.WriteString("\n")
	}

	// Metrics
	md.WriteString("## Metrics\n\n")
	md.WriteString(fmt.Sprintf("- **Files Modified:** %d\n", summary.Metrics.FilesModified))
	md.WriteString(fmt.Sprintf("- **Total Lines Added:** %d\n", summary.Metrics.TotalLinesAdded))
	md.WriteString(fmt.Sprintf("- **Total Lines Removed:** %d\n", summary.Metrics.TotalLinesRemoved))
	md.WriteString(fmt.Sprintf("- **Context Tokens:** %d\n", summary.Metrics.ContextTokens))
	md.WriteString(fmt.Sprintf("- **Plan Steps:** %d\n", summary.Metrics.PlanSteps))

	// Write file
	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}

// WriteMetricsJSON writes execution metrics as JSON
func (w *ArtifactWriter) WriteMetricsJSON(dir string, summary *ExecutionSummary) error {
	path := filepath.Join(dir, "metrics.json")

	data, err := json.MarshalIndent(summary.Metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write metrics JSON: %w", writeErr)
	}

	return nil
}

// ExecutionSummary pairs a task result with the figures derived from it
type ExecutionSummary struct {
	Result        *types.TaskResult
	FilesModified []FileModification
	Previewed     []FileModification
	Metrics       ExecutionMetrics
}

// ExecutionMetrics contains execution metrics
type ExecutionMetrics struct {
	Outcomes          map[types.MutationStatus]int `json:"outcomes"`
	Duration          time.Duration                `json:"duration"`
	FilesModified     int                          `json:"files_modified"`
	TotalLinesAdded   int                          `json:"total_lines_added"`
	TotalLinesRemoved int                          `json:"total_lines_removed"`
	ContextTokens     int                          `json:"context_tokens"`
	PlanSteps         int                          `json:"plan_steps"`
	ChecksRun         int                          `json:"checks_run"`
}

// NewExecutionSummary derives the summary of a finished task
func NewExecutionSummary(result *types.TaskResult) *ExecutionSummary {
	tracker := NewFileModificationTracker()
	for _, o := range result.Outcomes {
		tracker.Track(o)
	}
	added, removed := tracker.Totals()
	modified := tracker.GetModifiedFiles()

	metrics := ExecutionMetrics{
		Outcomes:          tracker.Counts(),
		Duration:          result.Duration(),
		FilesModified:     len(modified),
		TotalLinesAdded:   added,
		TotalLinesRemoved: removed,
		ContextTokens:     result.ContextTokens,
		PlanSteps:         len(result.Plan.Steps),
	}
	if result.Verification != nil {
		metrics.ChecksRun = len(result.Verification.Results)
	}

	return &ExecutionSummary{
		Result:        result,
		FilesModified: modified,
		Previewed:     tracker.GetPreviewedFiles(),
		Metrics:       metrics,
	}
}
