package headless

import (
	"sync"

	"github.com/entrhq/repoman/pkg/types"
)

// FileModificationTracker aggregates the mutation outcomes of a task per file.
// Applied changes are confirmed modifications; dry-run diffs are kept apart
// as previews so a dry run can still report what it would have changed.
type FileModificationTracker struct {
	modified []*FileModification
	previews []*FileModification
	index    map[string]*FileModification
	counts   map[types.MutationStatus]int
	mu       sync.Mutex
}

// NewFileModificationTracker creates a new file modification tracker.
func NewFileModificationTracker() *FileModificationTracker {
	return &FileModificationTracker{
		index:  make(map[string]*FileModification),
		counts: make(map[types.MutationStatus]int),
	}
}

// Track records one outcome. It reports whether the outcome carried a change.
func (t *FileModificationTracker) Track(o types.MutationOutcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[o.Status]++
	if o.Diff == "" {
		return false
	}

	var list *[]*FileModification
	key := o.Path
	switch o.Status {
	case types.StatusApplied:
		list = &t.modified
	case types.StatusSkippedDryRun:
		list = &t.previews
		key = "preview:" + o.Path
	default:
		return false
	}

	mod, ok := t.index[key]
	if !ok {
		mod = &FileModification{Path: o.Path}
		t.index[key] = mod
		*list = append(*list, mod)
	}
	mod.LinesAdded += o.LinesAdded
	mod.LinesRemoved += o.LinesRemoved
	return true
}

// GetModifiedFiles returns the confirmed modifications in first-touched order.
func (t *FileModificationTracker) GetModifiedFiles() []FileModification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyMods(t.modified)
}

// GetPreviewedFiles returns the dry-run modifications in first-touched order.
func (t *FileModificationTracker) GetPreviewedFiles() []FileModification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyMods(t.previews)
}

// Counts returns the number of outcomes per status.
func (t *FileModificationTracker) Counts() map[types.MutationStatus]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[types.MutationStatus]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Totals sums the lines of the confirmed modifications.
func (t *FileModificationTracker) Totals() (added, removed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.modified {
		added += m.LinesAdded
		removed += m.LinesRemoved
	}
	return added, removed
}

func copyMods(mods []*FileModification) []FileModification {
	out := make([]FileModification, 0, len(mods))
	for _, m := range mods {
		out = append(out, *m)
	}
	return out
}
