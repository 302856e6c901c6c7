// Package diff computes, parses, validates and applies unified diffs.
//
// Diffs are computed with sergi/go-diff in line mode and rendered as unified
// text. The text is self-describing: it can be validated and applied without
// the snapshots it was computed from, and Apply(a, Unified(a, b)) == b holds
// byte for byte, including files without a trailing newline.
package diff

import (
	"errors"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// DevNull marks the missing side of a creation or deletion.
const DevNull = "/dev/null"

const noNewlineMarker = `\ No newline at end of file`

var (
	// ErrMalformed reports a diff that is not structurally valid.
	ErrMalformed = errors.New("malformed diff")

	// ErrStale reports a diff whose context no longer matches the content it is applied to.
	ErrStale = errors.New("diff does not match current content")
)

// Op identifies the kind of a diff line.
type Op byte

const (
	OpContext Op = ' '
	OpAdd     Op = '+'
	OpRemove  Op = '-'
)

// Line is one line of a hunk. Text keeps its trailing newline unless the
// line is the last one of a file that does not end with a newline.
type Line struct {
	Text string
	Op   Op
}

// Hunk is a contiguous group of changes with surrounding context.
type Hunk struct {
	Lines    []Line
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// FileDiff holds the hunks for one file. An empty OldPath marks a creation,
// an empty NewPath a deletion.
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Path returns the path the diff applies to.
func (f FileDiff) Path() string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OldPath
}

// IsNew reports whether the diff creates the file.
func (f FileDiff) IsNew() bool { return f.OldPath == "" }

// IsDelete reports whether the diff removes the file.
func (f FileDiff) IsDelete() bool { return f.NewPath == "" }

// Stats counts added and removed lines.
func (f FileDiff) Stats() (added, removed int) {
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			switch l.Op {
			case OpAdd:
				added++
			case OpRemove:
				removed++
			}
		}
	}
	return added, removed
}

// op is one line of the computed edit script.
type op struct {
	text string
	kind Op
	old  int // old lines before this op
	new  int // new lines before this op
}

// lineOps returns the line-level edit script from a to b.
func lineOps(a, b string) []op {
	oldLines := SplitLines(a)
	newLines := SplitLines(b)

	index := make(map[string]rune)
	var table []string
	encode := func(lines []string) []rune {
		out := make([]rune, len(lines))
		for i, l := range lines {
			r, ok := index[l]
			if !ok {
				r = indexRune(len(table))
				index[l] = r
				table = append(table, l)
			}
			out[i] = r
		}
		return out
	}
	ra, rb := encode(oldLines), encode(newLines)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ra, rb, false)

	var ops []op
	oldN, newN := 0, 0
	for _, d := range diffs {
		kind := OpContext
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = OpAdd
		case diffmatchpatch.DiffDelete:
			kind = OpRemove
		}
		for _, r := range []rune(d.Text) {
			ops = append(ops, op{text: table[runeIndex(r)], kind: kind, old: oldN, new: newN})
			if kind != OpAdd {
				oldN++
			}
			if kind != OpRemove {
				newN++
			}
		}
	}
	return ops
}

// indexRune maps a line index to a valid rune, skipping the surrogate range.
func indexRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

func runeIndex(r rune) int {
	if r >= 0xD800+0x800 {
		r -= 0x800
	}
	return int(r) - 1
}

// SplitLines splits content into lines, keeping each line's terminating newline.
// Empty content yields no lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
