package diff

import "strings"

// FilePatch is the text of one file's section of a multi-file patch.
type FilePatch struct {
	Path string
	Text string
}

// SplitFiles cuts a multi-file patch at its file headers without validating
// the hunks, so one malformed section does not hide its siblings. Git
// "diff --git" preambles stay with the section they introduce. Text before
// the first header is dropped. Hunk bodies are skipped using the line counts
// of their "@@" headers, so a removed "-- x" line followed by an added "++ y"
// line is not taken for a file header.
func SplitFiles(text string) []FilePatch {
	lines := SplitLines(text)
	var (
		out     []FilePatch
		current *FilePatch
		pending []string

		// lines of the current hunk body still expected
		oldLeft, newLeft int
	)

	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimRight(line, "\r\n")

		if current != nil && (oldLeft > 0 || newLeft > 0) {
			if dOld, dNew, ok := bodyLine(trimmed); ok {
				oldLeft = max(0, oldLeft-dOld)
				newLeft = max(0, newLeft-dNew)
				current.Text += line
				continue
			}
			oldLeft, newLeft = 0, 0
		}
		if current != nil {
			if m := hunkHeader.FindStringSubmatch(trimmed); m != nil {
				oldLeft, newLeft = countOrOne(m[2]), countOrOne(m[4])
				current.Text += line
				continue
			}
		}

		if strings.HasPrefix(trimmed, "diff --git ") {
			flush()
			pending = append(pending[:0], line)
			continue
		}
		if strings.HasPrefix(trimmed, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") {
			flush()
			oldPath := headerPath(trimmed[4:], "a/")
			newPath := headerPath(strings.TrimRight(lines[i+1], "\r\n")[4:], "b/")
			path := newPath
			if path == "" {
				path = oldPath
			}
			current = &FilePatch{Path: path, Text: strings.Join(pending, "") + line + lines[i+1]}
			pending = pending[:0]
			i++
			continue
		}

		switch {
		case current != nil:
			current.Text += line
		case pending != nil:
			pending = append(pending, line)
		}
	}
	flush()
	return out
}

// bodyLine reports how many old and new lines a hunk body line accounts for.
func bodyLine(line string) (int, int, bool) {
	if line == "" {
		return 1, 1, true
	}
	switch line[0] {
	case ' ':
		return 1, 1, true
	case '-':
		return 1, 0, true
	case '+':
		return 0, 1, true
	case '\\':
		return 0, 0, true
	}
	return 0, 0, false
}
