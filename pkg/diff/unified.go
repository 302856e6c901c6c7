package diff

import (
	"fmt"
	"strings"
)

// Unified renders the change from before to after for path as unified diff text.
// created marks a file that does not exist yet. Identical content on an existing
// file yields an empty string.
func Unified(path, before, after string, created bool) string {
	if !created && before == after {
		return ""
	}

	var sb strings.Builder
	if created {
		sb.WriteString("--- " + DevNull + "\n")
	} else {
		sb.WriteString("--- a/" + path + "\n")
	}
	sb.WriteString("+++ b/" + path + "\n")

	for _, h := range hunks(lineOps(before, after)) {
		writeHunk(&sb, h)
	}
	return sb.String()
}

// hunks groups the edit script into hunks with ContextLines of context,
// merging changes separated by at most twice that many unchanged lines.
func hunks(ops []op) []Hunk {
	var out []Hunk
	n := len(ops)
	k := 0
	for k < n {
		if ops[k].kind == OpContext {
			k++
			continue
		}

		start := max(0, k-ContextLines)
		end := k
		j := k
		for j < n {
			if ops[j].kind != OpContext {
				j++
				end = j
				continue
			}
			r := j
			for r < n && ops[r].kind == OpContext {
				r++
			}
			if r < n && r-j <= 2*ContextLines {
				j = r
				continue
			}
			break
		}
		stop := min(n, end+ContextLines)

		h := Hunk{}
		for _, o := range ops[start:stop] {
			h.Lines = append(h.Lines, Line{Op: o.kind, Text: o.text})
			if o.kind != OpAdd {
				h.OldLines++
			}
			if o.kind != OpRemove {
				h.NewLines++
			}
		}
		h.OldStart = ops[start].old
		if h.OldLines > 0 {
			h.OldStart++
		}
		h.NewStart = ops[start].new
		if h.NewLines > 0 {
			h.NewStart++
		}
		out = append(out, h)
		k = stop
	}
	return out
}

func writeHunk(sb *strings.Builder, h Hunk) {
	fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
	for _, l := range h.Lines {
		sb.WriteByte(byte(l.Op))
		sb.WriteString(l.Text)
		if !strings.HasSuffix(l.Text, "\n") {
			sb.WriteString("\n" + noNewlineMarker + "\n")
		}
	}
}

// Render formats parsed file diffs back into unified text.
func Render(files []FileDiff) string {
	var sb strings.Builder
	for _, f := range files {
		if f.IsNew() {
			sb.WriteString("--- " + DevNull + "\n")
		} else {
			sb.WriteString("--- a/" + f.OldPath + "\n")
		}
		if f.IsDelete() {
			sb.WriteString("+++ " + DevNull + "\n")
		} else {
			sb.WriteString("+++ b/" + f.NewPath + "\n")
		}
		for _, h := range f.Hunks {
			writeHunk(&sb, h)
		}
	}
	return sb.String()
}
