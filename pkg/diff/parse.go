package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// extendedHeaders are git header lines tolerated between file diffs.
var extendedHeaders = []string{
	"diff ", "index ", "new file mode", "deleted file mode", "old mode", "new mode",
	"similarity index", "dissimilarity index",
}

// Parse reads unified diff text into file diffs. Any line that is neither a
// recognised header nor part of a hunk makes the whole diff malformed.
func Parse(text string) ([]FileDiff, error) {
	lines := SplitLines(text)
	var files []FileDiff

	i := 0
	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r\n")
		switch {
		case strings.HasPrefix(line, "--- "):
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, malformed(i+1, "missing +++ header")
			}
			fd := FileDiff{
				OldPath: headerPath(line[4:], "a/"),
				NewPath: headerPath(strings.TrimRight(lines[i+1], "\r\n")[4:], "b/"),
			}
			i += 2
			for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
				h, next, err := parseHunk(lines, i)
				if err != nil {
					return nil, err
				}
				fd.Hunks = append(fd.Hunks, h)
				i = next
			}
			files = append(files, fd)
		case strings.TrimSpace(line) == "" || isExtendedHeader(line):
			i++
		default:
			return nil, malformed(i+1, fmt.Sprintf("unexpected line %q", truncate(line)))
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file headers", ErrMalformed)
	}
	for _, f := range files {
		if err := validateFile(f); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// Validate performs the structural check of a diff without applying it.
func Validate(text string) error {
	_, err := Parse(text)
	return err
}

func parseHunk(lines []string, i int) (Hunk, int, error) {
	header := strings.TrimRight(lines[i], "\r\n")
	m := hunkHeader.FindStringSubmatch(header)
	if m == nil {
		return Hunk{}, 0, malformed(i+1, fmt.Sprintf("bad hunk header %q", truncate(header)))
	}

	h := Hunk{
		OldStart: atoi(m[1]),
		OldLines: countOrOne(m[2]),
		NewStart: atoi(m[3]),
		NewLines: countOrOne(m[4]),
	}

	i++
	oldSeen, newSeen := 0, 0
	for oldSeen < h.OldLines || newSeen < h.NewLines {
		if i >= len(lines) {
			return Hunk{}, 0, malformed(i, "truncated hunk")
		}
		raw := lines[i]
		if raw == "\n" {
			raw = " \n"
		}
		if !strings.HasSuffix(raw, "\n") {
			raw += "\n"
		}

		kind := Op(raw[0])
		switch kind {
		case OpContext:
			oldSeen++
			newSeen++
		case OpRemove:
			oldSeen++
		case OpAdd:
			newSeen++
		case '\\':
			if err := markNoNewline(&h, i); err != nil {
				return Hunk{}, 0, err
			}
			i++
			continue
		default:
			return Hunk{}, 0, malformed(i+1, fmt.Sprintf("unexpected hunk line %q", truncate(raw)))
		}
		if oldSeen > h.OldLines || newSeen > h.NewLines {
			return Hunk{}, 0, malformed(i+1, "hunk longer than its header")
		}
		h.Lines = append(h.Lines, Line{Op: kind, Text: raw[1:]})
		i++
	}

	if i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		if err := markNoNewline(&h, i); err != nil {
			return Hunk{}, 0, err
		}
		i++
	}
	return h, i, nil
}

func markNoNewline(h *Hunk, i int) error {
	if len(h.Lines) == 0 {
		return malformed(i+1, "no-newline marker without a preceding line")
	}
	last := &h.Lines[len(h.Lines)-1]
	last.Text = strings.TrimSuffix(last.Text, "\n")
	return nil
}

// validateFile checks the invariants that parsing alone does not enforce.
func validateFile(f FileDiff) error {
	if f.OldPath == "" && f.NewPath == "" {
		return fmt.Errorf("%w: both sides are %s", ErrMalformed, DevNull)
	}
	if f.OldPath != "" && f.NewPath != "" && f.OldPath != f.NewPath {
		return fmt.Errorf("%w: renames are not supported (%s -> %s)", ErrMalformed, f.OldPath, f.NewPath)
	}
	if !f.IsNew() && len(f.Hunks) == 0 {
		return fmt.Errorf("%w: %s has no hunks", ErrMalformed, f.Path())
	}

	prevEnd := 0
	for _, h := range f.Hunks {
		if f.IsNew() && (h.OldLines != 0 || h.OldStart != 0) {
			return fmt.Errorf("%w: %s is created but its hunk references old lines", ErrMalformed, f.Path())
		}
		if f.IsDelete() && h.NewLines != 0 {
			return fmt.Errorf("%w: %s is deleted but its hunk adds lines", ErrMalformed, f.Path())
		}
		start := h.OldStart
		if h.OldLines > 0 {
			start--
		}
		if start < prevEnd {
			return fmt.Errorf("%w: %s has overlapping or unordered hunks", ErrMalformed, f.Path())
		}
		prevEnd = start + h.OldLines
	}
	return nil
}

func headerPath(s, prefix string) string {
	if tab := strings.IndexByte(s, '\t'); tab >= 0 {
		s = s[:tab]
	}
	s = strings.TrimSpace(s)
	if s == DevNull {
		return ""
	}
	return strings.TrimPrefix(s, prefix)
}

func isExtendedHeader(line string) bool {
	for _, p := range extendedHeaders {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func malformed(lineNo int, msg string) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, lineNo, msg)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func countOrOne(s string) int {
	if s == "" {
		return 1
	}
	return atoi(s)
}

func truncate(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
