package headless

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/repoman/pkg/security/workspace"
	"github.com/gobwas/glob"
)

// ConstraintManager enforces safety limits while a task mutates files
type ConstraintManager struct {
	config *ConstraintConfig

	// Runtime state tracking
	filesModified map[string]*FileModification
	tokensUsed    int
	startTime     time.Time

	mu sync.RWMutex
}

// FileModification tracks modifications to a single file
type FileModification struct {
	Path         string `json:"path"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// ConstraintViolation represents a constraint violation error
type ConstraintViolation struct {
	Type    ViolationType
	Message string
	Details map[string]interface{}
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation (%s): %s", e.Type, e.Message)
}

// ViolationType identifies the type of constraint that was violated
type ViolationType string

const (
	ViolationFileCount ViolationType = "file_count"
	ViolationLineCount ViolationType = "line_count"
	ViolationTimeout   ViolationType = "timeout"
)

// NewConstraintManager creates a new constraint manager
func NewConstraintManager(config ConstraintConfig) *ConstraintManager {
	return &ConstraintManager{
		config:        &config,
		filesModified: make(map[string]*FileModification),
		startTime:     time.Now(),
	}
}

// CheckPlan validates the number of distinct files a plan touches before any
// of them is mutated
func (cm *ConstraintManager) CheckPlan(paths []string) error {
	if cm.config.MaxFiles <= 0 {
		return nil
	}

	distinct := make(map[string]bool, len(paths))
	for _, p := range paths {
		distinct[normalize(p)] = true
	}
	if len(distinct) > cm.config.MaxFiles {
		return &ConstraintViolation{
			Type:    ViolationFileCount,
			Message: fmt.Sprintf("plan touches %d files, maximum is %d", len(distinct), cm.config.MaxFiles),
			Details: map[string]interface{}{
				"max_files":  cm.config.MaxFiles,
				"plan_files": len(distinct),
			},
		}
	}
	return nil
}

// RecordFileModification records a file modification and validates against limits
func (cm *ConstraintManager) RecordFileModification(path string, linesAdded, linesRemoved int) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	path = normalize(path)

	// Check if this is a new file modification
	if _, exists := cm.filesModified[path]; !exists {
		// Check file count limit
		if cm.config.MaxFiles > 0 && len(cm.filesModified) >= cm.config.MaxFiles {
			return &ConstraintViolation{
				Type:    ViolationFileCount,
				Message: fmt.Sprintf("maximum file count exceeded (%d)", cm.config.MaxFiles),
				Details: map[string]interface{}{
					"max_files":      cm.config.MaxFiles,
					"current_count":  len(cm.filesModified),
					"attempted_file": path,
				},
			}
		}
	}

	// Record modification
	if mod, exists := cm.filesModified[path]; exists {
		mod.LinesAdded += linesAdded
		mod.LinesRemoved += linesRemoved
	} else {
		cm.filesModified[path] = &FileModification{
			Path:         path,
			LinesAdded:   linesAdded,
			LinesRemoved: linesRemoved,
		}
	}

	// Check total lines changed limit
	if cm.config.MaxLinesChanged > 0 {
		totalLinesChanged := cm.calculateTotalLinesAdded() + cm.calculateTotalLinesRemoved()
		if totalLinesChanged > cm.config.MaxLinesChanged {
			return &ConstraintViolation{
				Type:    ViolationLineCount,
				Message: fmt.Sprintf("maximum lines changed exceeded (%d)", cm.config.MaxLinesChanged),
				Details: map[string]interface{}{
					"max_lines_changed": cm.config.MaxLinesChanged,
					"current_total":     totalLinesChanged,
					"file":              path,
				},
			}
		}
	}

	return nil
}

// RecordTokenUsage records the tokens sent to the oracle
func (cm *ConstraintManager) RecordTokenUsage(tokens int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tokensUsed += tokens
}

// CheckTimeout checks if execution has exceeded the timeout
func (cm *ConstraintManager) CheckTimeout() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.config.Timeout <= 0 {
		return nil // No timeout configured
	}

	elapsed := time.Since(cm.startTime)
	if elapsed > cm.config.Timeout {
		return &ConstraintViolation{
			Type:    ViolationTimeout,
			Message: fmt.Sprintf("execution timeout exceeded (%v)", cm.config.Timeout),
			Details: map[string]interface{}{
				"timeout": cm.config.Timeout,
				"elapsed": elapsed,
			},
		}
	}

	return nil
}

// GetCurrentState returns the current constraint state
func (cm *ConstraintManager) GetCurrentState() *ConstraintState {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	files := make([]FileModification, 0, len(cm.filesModified))
	for _, mod := range cm.filesModified {
		files = append(files, *mod)
	}

	return &ConstraintState{
		FilesModified:     files,
		TotalFiles:        len(cm.filesModified),
		TotalLinesAdded:   cm.calculateTotalLinesAdded(),
		TotalLinesRemoved: cm.calculateTotalLinesRemoved(),
		TokensUsed:        cm.tokensUsed,
		Elapsed:           time.Since(cm.startTime),
	}
}

// ConstraintState represents the current state of constraint tracking
type ConstraintState struct {
	FilesModified     []FileModification
	TotalFiles        int
	TotalLinesAdded   int
	TotalLinesRemoved int
	TokensUsed        int
	Elapsed           time.Duration
}

// calculateTotalLinesAdded calculates total lines added across all files
// Must be called with lock held
func (cm *ConstraintManager) calculateTotalLinesAdded() int {
	total := 0
	for _, mod := range cm.filesModified {
		total += mod.LinesAdded
	}
	return total
}

// calculateTotalLinesRemoved calculates total lines removed across all files
// Must be called with lock held
func (cm *ConstraintManager) calculateTotalLinesRemoved() int {
	total := 0
	for _, mod := range cm.filesModified {
		total += mod.LinesRemoved
	}
	return total
}

// PatternMatcher handles glob pattern matching for task scopes.
// Patterns are compiled with '/' as the separator so '*' stays within one
// path segment and '**' crosses directories.
type PatternMatcher struct {
	allowedPatterns []glob.Glob
	deniedPatterns  []glob.Glob
}

// NewPatternMatcher creates a new pattern matcher
func NewPatternMatcher(allowed, denied []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{}

	// Compile allowed patterns
	for _, pattern := range allowed {
		globs, err := compilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		pm.allowedPatterns = append(pm.allowedPatterns, globs...)
	}

	// Compile denied patterns
	for _, pattern := range denied {
		globs, err := compilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		pm.deniedPatterns = append(pm.deniedPatterns, globs...)
	}

	return pm, nil
}

// compilePattern compiles every variant of pattern, so "**/*.go" also
// matches "main.go" at the repository root.
func compilePattern(pattern string) ([]glob.Glob, error) {
	var globs []glob.Glob
	for _, variant := range workspace.ExpandPattern(pattern) {
		g, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// IsAllowed returns true if the path is allowed by the pattern rules
func (pm *PatternMatcher) IsAllowed(path string) bool {
	path = normalize(path)

	// Denied patterns take precedence
	for _, pattern := range pm.deniedPatterns {
		if pattern.Match(path) {
			return false
		}
	}

	// If no allowed patterns specified, allow all (except denied)
	if len(pm.allowedPatterns) == 0 {
		return true
	}

	// Check if path matches any allowed pattern
	for _, pattern := range pm.allowedPatterns {
		if pattern.Match(path) {
			return true
		}
	}

	return false
}

// Filter returns the allowed paths, preserving order
func (pm *PatternMatcher) Filter(paths []string) []string {
	var out []string
	for _, p := range paths {
		if pm.IsAllowed(p) {
			out = append(out, p)
		}
	}
	return out
}

func normalize(path string) string {
	if p, ok := workspace.NormalizePath(path); ok {
		return p
	}
	return path
}
