package diff

import (
	"fmt"
	"strings"
)

// Apply applies one file diff to content. Context and removed lines must match
// exactly at the positions the hunks name; otherwise ErrStale is returned and
// the input is left as it was.
func Apply(content string, f FileDiff) (string, error) {
	src := SplitLines(content)
	var out strings.Builder
	out.Grow(len(content))

	pos := 0
	for _, h := range f.Hunks {
		start := h.OldStart - 1
		if h.OldLines == 0 {
			start = h.OldStart
		}
		if start < pos || start > len(src) {
			return "", fmt.Errorf("%w: %s: hunk @@ -%d,%d is out of range", ErrStale, f.Path(), h.OldStart, h.OldLines)
		}
		for _, l := range src[pos:start] {
			out.WriteString(l)
		}

		idx := start
		for _, l := range h.Lines {
			switch l.Op {
			case OpContext, OpRemove:
				if idx >= len(src) || src[idx] != l.Text {
					return "", fmt.Errorf("%w: %s: line %d differs", ErrStale, f.Path(), idx+1)
				}
				if l.Op == OpContext {
					out.WriteString(l.Text)
				}
				idx++
			case OpAdd:
				out.WriteString(l.Text)
			}
		}
		pos = idx
	}
	for _, l := range src[pos:] {
		out.WriteString(l)
	}
	return out.String(), nil
}

// ApplyText parses a single-file diff and applies it to content.
func ApplyText(content, text string) (string, error) {
	files, err := Parse(text)
	if err != nil {
		return "", err
	}
	if len(files) != 1 {
		return "", fmt.Errorf("%w: expected one file, got %d", ErrMalformed, len(files))
	}
	return Apply(content, files[0])
}

// CountChanges returns the added and removed line counts of diff text.
// Unparseable text counts as zero.
func CountChanges(text string) (added, removed int) {
	files, err := Parse(text)
	if err != nil {
		return 0, 0
	}
	for _, f := range files {
		a, r := f.Stats()
		added += a
		removed += r
	}
	return added, removed
}
