package headless

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/mattn/go-isatty"
)

// LogLevel represents the console verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only critical information (errors, warnings, final summary)
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows standard execution progress (default)
	LogLevelNormal
	// LogLevelVerbose shows detailed execution information
	LogLevelVerbose
	// LogLevelDebug shows all internal details for debugging
	LogLevelDebug
)

// Color palette shared by every console style.
var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
	amber       = lipgloss.Color("#FCD34D")
	softRed     = lipgloss.Color("#F87171")
)

// Logger is the user-facing console reporter of the task executor.
// Styling degrades to plain text when the writer is not a terminal.
type Logger struct {
	writer    io.Writer
	level     LogLevel
	highlight bool

	header  lipgloss.Style
	section lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
	cell    lipgloss.Style

	// Execution state
	startTime time.Time
	stepCount int
}

// NewLogger creates a console logger writing to stdout
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a console logger writing to w
func NewLoggerTo(w io.Writer, level LogLevel) *Logger {
	r := lipgloss.NewRenderer(w)
	return &Logger{
		writer:    w,
		level:     level,
		highlight: isTerminal(w),
		header:    r.NewStyle().Foreground(brightWhite).Bold(true),
		section:   r.NewStyle().Foreground(salmonPink).Bold(true),
		info:      r.NewStyle().Foreground(salmonPink),
		success:   r.NewStyle().Foreground(mintGreen).Bold(true),
		warning:   r.NewStyle().Foreground(amber),
		failure:   r.NewStyle().Foreground(softRed).Bold(true),
		muted:     r.NewStyle().Foreground(mutedGray),
		cell:      r.NewStyle().Padding(0, 1),
		startTime: time.Now(),
	}
}

// DiscardLogger returns a logger that prints nothing
func DiscardLogger() *Logger {
	return NewLoggerTo(io.Discard, LogLevelQuiet)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (l *Logger) println(style lipgloss.Style, s string) {
	fmt.Fprintln(l.writer, style.Render(s))
}

// Header prints a prominent header message
func (l *Logger) Header(message string) {
	if l.level >= LogLevelNormal {
		rule := strings.Repeat("=", 70)
		fmt.Fprintln(l.writer)
		l.println(l.header, rule)
		l.println(l.header, "  "+message)
		l.println(l.header, rule)
	}
}

// Section prints a section divider
func (l *Logger) Section(title string) {
	if l.level >= LogLevelNormal {
		fmt.Fprintln(l.writer)
		l.println(l.section, "▶ "+title)
		l.println(l.muted, strings.Repeat("─", 50))
	}
}

// Step prints a numbered step in the execution
func (l *Logger) Step(message string) {
	if l.level >= LogLevelNormal {
		l.stepCount++
		l.println(l.section, fmt.Sprintf("[%d] %s", l.stepCount, message))
	}
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		l.println(l.success, "✓ "+fmt.Sprintf(format, args...))
	}
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		l.println(l.info, fmt.Sprintf(format, args...))
	}
}

// Warningf prints a warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	if l.level >= LogLevelQuiet {
		l.println(l.warning, "⚠ Warning: "+fmt.Sprintf(format, args...))
	}
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level >= LogLevelQuiet {
		l.println(l.failure, "✗ Error: "+fmt.Sprintf(format, args...))
	}
}

// Verbosef prints detailed information (only in verbose mode)
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.println(l.muted, "→ "+fmt.Sprintf(format, args...))
	}
}

// Debugf prints debug information (only in debug mode)
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= LogLevelDebug {
		l.println(l.muted, "[DEBUG] "+fmt.Sprintf(format, args...))
	}
}

// Table prints rows under headers in a bordered table. It is command output
// and prints at every level.
func (l *Logger) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(l.muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return l.section.Padding(0, 1)
			}
			return l.cell
		})
	fmt.Fprintln(l.writer, t.Render())
}

// Outcome logs the result of one mutation. Dry-run diffs are always shown;
// applied diffs only in verbose mode.
func (l *Logger) Outcome(o types.MutationOutcome) {
	if l.level < LogLevelNormal {
		if o.Status.IsFailure() {
			l.Errorf("%s: %s", o.Path, o.ErrorMessage())
		}
		return
	}

	change := ""
	if o.LinesAdded > 0 || o.LinesRemoved > 0 {
		change = fmt.Sprintf(" (+%d/-%d)", o.LinesAdded, o.LinesRemoved)
	}

	switch o.Status {
	case types.StatusApplied:
		if o.Diff == "" {
			l.println(l.muted, fmt.Sprintf("  = Unchanged: %s", o.Path))
			return
		}
		l.println(l.success, fmt.Sprintf("  📝 Modified: %s%s", o.Path, change))
		if l.level >= LogLevelVerbose {
			l.Diff(o.Diff)
		}
	case types.StatusSkippedDryRun:
		l.println(l.info, fmt.Sprintf("  👁 Would modify: %s%s", o.Path, change))
		l.Diff(o.Diff)
	case types.StatusSkippedProtected:
		l.println(l.warning, fmt.Sprintf("  🔒 Protected: %s", o.Path))
	default:
		l.println(l.failure, fmt.Sprintf("  ✗ %s: %s", o.Status, o.Path))
		if msg := o.ErrorMessage(); msg != "" {
			l.println(l.muted, "    "+msg)
		}
	}
}

// Diff prints a unified diff, syntax highlighted on terminals
func (l *Logger) Diff(diff string) {
	if l.level < LogLevelNormal || diff == "" {
		return
	}
	if l.highlight {
		if err := quick.Highlight(l.writer, diff, "diff", "terminal256", "monokai"); err == nil {
			return
		}
	}
	fmt.Fprint(l.writer, diff)
	if !strings.HasSuffix(diff, "\n") {
		fmt.Fprintln(l.writer)
	}
}

// Check logs the result of one verification command
func (l *Logger) Check(result types.CommandResult) {
	if l.level < LogLevelNormal {
		return
	}
	if result.Passed() {
		l.println(l.success, fmt.Sprintf("  ✓ %s: passed (%s)", result.Name, result.Duration.Round(time.Millisecond)))
		return
	}

	reason := fmt.Sprintf("exit code %d", result.ExitCode)
	if result.TimedOut {
		reason = "timed out"
	}
	style := l.failure
	if !result.Required {
		style = l.warning
		reason += ", advisory"
	}
	l.println(style, fmt.Sprintf("  ✗ %s: failed (%s)", result.Name, reason))
	if l.level >= LogLevelVerbose {
		if out := strings.TrimSpace(result.Stdout + "\n" + result.Stderr); out != "" {
			l.println(l.muted, indent(out, "    "))
		}
	}
}

// GitOperation logs a git operation
func (l *Logger) GitOperation(operation, details string) {
	if l.level >= LogLevelNormal {
		l.println(l.section, "  🔀 Git: "+operation)
		if details != "" && l.level >= LogLevelVerbose {
			l.println(l.muted, indent(details, "    "))
		}
	}
}

// Summary prints a final execution summary
func (l *Logger) Summary(summary *ExecutionSummary) {
	r := summary.Result

	l.printSummaryHeader()
	l.printStatus(r)
	fmt.Fprintf(l.writer, "  Task: %s\n", r.Instruction)
	fmt.Fprintf(l.writer, "  Duration: %s\n", r.Duration().Round(time.Millisecond))
	l.printMetrics(summary)
	l.printModifiedFiles(summary)
	l.printVerification(r)
	l.printGitInfo(r)
	l.printError(r)
	l.println(l.header, strings.Repeat("=", 70))
	fmt.Fprintln(l.writer)
}

func (l *Logger) printSummaryHeader() {
	fmt.Fprintln(l.writer)
	l.println(l.header, strings.Repeat("=", 70))
	l.println(l.header, "  TASK SUMMARY")
	l.println(l.header, strings.Repeat("=", 70))
}

func (l *Logger) printStatus(r *types.TaskResult) {
	fmt.Fprint(l.writer, "  Status: ")
	switch r.Status {
	case types.TaskSuccess:
		l.println(l.success, "✓ SUCCESS")
	case types.TaskPartial:
		label := "⚠ PARTIAL"
		if r.Canceled {
			label += " (canceled)"
		}
		l.println(l.warning, label)
	case types.TaskBlocked:
		l.println(l.warning, "🔒 BLOCKED")
	case types.TaskAborted:
		l.println(l.failure, "✗ ABORTED")
	default:
		fmt.Fprintln(l.writer, r.Status)
	}
}

func (l *Logger) printMetrics(summary *ExecutionSummary) {
	m := summary.Metrics
	if m.PlanSteps == 0 {
		return
	}

	fmt.Fprintf(l.writer, "\n  📊 Metrics:\n")
	fmt.Fprintf(l.writer, "    Plan steps: %d\n", m.PlanSteps)
	fmt.Fprintf(l.writer, "    Files modified: %d\n", m.FilesModified)
	if m.TotalLinesAdded > 0 || m.TotalLinesRemoved > 0 {
		fmt.Fprintf(l.writer, "    Lines changed: +%d/-%d\n", m.TotalLinesAdded, m.TotalLinesRemoved)
	}
	for _, status := range []types.MutationStatus{
		types.StatusSkippedProtected,
		types.StatusSkippedDryRun,
		types.StatusRejectedInvalidDiff,
		types.StatusFailedApply,
	} {
		if n := m.Outcomes[status]; n > 0 {
			fmt.Fprintf(l.writer, "    %s: %d\n", status, n)
		}
	}
	if m.ContextTokens > 0 {
		fmt.Fprintf(l.writer, "    Context tokens: %s\n", formatNumber(m.ContextTokens))
	}
}

func (l *Logger) printModifiedFiles(summary *ExecutionSummary) {
	if l.level < LogLevelVerbose || len(summary.FilesModified) == 0 {
		return
	}

	fmt.Fprintf(l.writer, "\n  📝 Modified Files:\n")
	for _, mod := range summary.FilesModified {
		fmt.Fprintf(l.writer, "    • %s (+%d/-%d)\n", mod.Path, mod.LinesAdded, mod.LinesRemoved)
	}
}

func (l *Logger) printVerification(r *types.TaskResult) {
	if r.Verification == nil || len(r.Verification.Results) == 0 {
		return
	}

	fmt.Fprintf(l.writer, "\n  🎯 Verification:\n")
	for _, result := range r.Verification.Results {
		if result.Passed() {
			l.println(l.success, "    ✓ "+result.Name)
		} else {
			l.println(l.failure, "    ✗ "+result.Name)
		}
	}
}

func (l *Logger) printGitInfo(r *types.TaskResult) {
	if r.CommitSHA == "" && r.CommitNote == "" {
		return
	}

	fmt.Fprintf(l.writer, "\n  🔀 Git:\n")
	if r.Branch != "" {
		fmt.Fprintf(l.writer, "    Branch: %s\n", r.Branch)
	}
	if r.CommitSHA != "" {
		fmt.Fprintf(l.writer, "    Commit: %s\n", r.CommitSHA)
	}
	if r.CommitNote != "" {
		fmt.Fprintf(l.writer, "    Note: %s\n", r.CommitNote)
	}
}

func (l *Logger) printError(r *types.TaskResult) {
	if r.Error == "" {
		return
	}

	fmt.Fprintln(l.writer)
	l.println(l.failure, "  Error Details:")
	l.println(l.failure, "    "+r.Error)
}

// ParseLogLevel converts a verbosity name to a LogLevel
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "quiet":
		return LogLevelQuiet
	case "normal":
		return LogLevelNormal
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// formatNumber formats large numbers with commas for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
