package diff

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnified_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		before  string
		after   string
		created bool
	}{
		{name: "append line", before: "a\nb\n", after: "a\nb\nc\n"},
		{name: "remove line", before: "a\nb\nc\n", after: "a\nc\n"},
		{name: "replace middle", before: "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n", after: "1\n2\n3\n4\nfive\n6\n7\n8\n9\n10\n"},
		{name: "two distant changes", before: strings.Repeat("x\n", 20) + "end\n", after: "start\n" + strings.Repeat("x\n", 20) + "END\n"},
		{name: "add trailing newline", before: "a\nb", after: "a\nb\n"},
		{name: "remove trailing newline", before: "a\nb\n", after: "a\nb"},
		{name: "no trailing newline both", before: "a\nb", after: "a\nc"},
		{name: "empty to content", before: "", after: "hello\n"},
		{name: "content to empty", before: "hello\nworld\n", after: ""},
		{name: "create file", before: "", after: "package main\n\nfunc main() {}\n", created: true},
		{name: "create empty file", before: "", after: "", created: true},
		{name: "create without newline", before: "", after: "x", created: true},
		{name: "duplicate lines", before: "a\na\na\nb\na\n", after: "a\nb\na\na\na\n"},
		{name: "blank lines", before: "\n\n\n", after: "\n\nx\n\n"},
		{name: "crlf preserved", before: "a\r\nb\r\n", after: "a\r\nc\r\n"},
		{name: "line that looks like header", before: "-- x\n++ y\n", after: "--- x\n+++ y\n@@ z\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := Unified("src/file.txt", tt.before, tt.after, tt.created)
			require.NotEmpty(t, text)
			require.NoError(t, Validate(text))

			got, err := ApplyText(tt.before, text)
			require.NoError(t, err)
			assert.Equal(t, tt.after, got)
		})
	}
}

func TestUnified_RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vocab := []string{"alpha", "beta", "gamma", "", "delta", "}", "{"}

	randomContent := func() string {
		n := rng.Intn(30)
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteString(vocab[rng.Intn(len(vocab))])
			if i < n-1 || rng.Intn(3) > 0 {
				sb.WriteString("\n")
			}
		}
		return sb.String()
	}

	for i := 0; i < 300; i++ {
		before, after := randomContent(), randomContent()
		text := Unified("f.txt", before, after, false)
		if before == after {
			assert.Empty(t, text)
			continue
		}
		got, err := ApplyText(before, text)
		require.NoError(t, err, "before=%q after=%q\n%s", before, after, text)
		require.Equal(t, after, got, "before=%q after=%q\n%s", before, after, text)
	}
}

func TestUnified_Identical(t *testing.T) {
	assert.Empty(t, Unified("a.txt", "same\n", "same\n", false))
}

func TestUnified_Format(t *testing.T) {
	text := Unified("src/a.py", "print(1)\n", "print(2)\n", false)
	want := "--- a/src/a.py\n" +
		"+++ b/src/a.py\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-print(1)\n" +
		"+print(2)\n"
	if diff := cmp.Diff(want, text); diff != "" {
		t.Errorf("Unified() mismatch (-want +got):\n%s", diff)
	}

	created := Unified("src/new.py", "", "x = 1\n", true)
	assert.True(t, strings.HasPrefix(created, "--- /dev/null\n+++ b/src/new.py\n@@ -0,0 +1,1 @@\n"))
}

func TestUnified_ContextAndMerging(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	before := strings.Join(lines, "\n") + "\n"

	changed := append([]string(nil), lines...)
	changed[2] = "first"
	changed[25] = "second"
	after := strings.Join(changed, "\n") + "\n"

	files, err := Parse(Unified("f", before, after, false))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Len(t, files[0].Hunks, 2, "distant changes form separate hunks")

	changed = append([]string(nil), lines...)
	changed[10] = "first"
	changed[15] = "second"
	after = strings.Join(changed, "\n") + "\n"

	files, err = Parse(Unified("f", before, after, false))
	require.NoError(t, err)
	assert.Len(t, files[0].Hunks, 1, "close changes merge into one hunk")
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "prose", text: "Here is the updated file:\nprint(1)\n"},
		{name: "missing plus header", text: "--- a/x\n@@ -1 +1 @@\n-a\n+b\n"},
		{name: "bad hunk header", text: "--- a/x\n+++ b/x\n@@ nope @@\n"},
		{name: "truncated hunk", text: "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\n-b\n"},
		{name: "too many lines", text: "--- a/x\n+++ b/x\n@@ -1,1 +1,1 @@\n-a\n+b\n+c\n"},
		{name: "garbage in hunk", text: "--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n a\n*b\n"},
		{name: "no hunks on edit", text: "--- a/x\n+++ b/x\n"},
		{name: "rename", text: "--- a/x\n+++ b/y\n@@ -1 +1 @@\n-a\n+b\n"},
		{name: "overlapping hunks", text: "--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n a\n-b\n+c\n@@ -1,1 +1,1 @@\n-a\n+d\n"},
		{name: "marker first", text: "--- a/x\n+++ b/x\n@@ -1,1 +1,1 @@\n\\ No newline at end of file\n-a\n+b\n"},
		{name: "creation referencing old lines", text: "--- /dev/null\n+++ b/x\n@@ -1,1 +1,1 @@\n-a\n+b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.text)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestParse_GitHeaders(t *testing.T) {
	text := "diff --git a/src/a.go b/src/a.go\n" +
		"index 1111111..2222222 100644\n" +
		"--- a/src/a.go\n" +
		"+++ b/src/a.go\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n" +
		"diff --git a/src/b.go b/src/b.go\n" +
		"new file mode 100644\n" +
		"--- /dev/null\n" +
		"+++ b/src/b.go\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+package b\n" +
		"+\n"

	files, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "src/a.go", files[0].Path())
	assert.False(t, files[0].IsNew())
	assert.Equal(t, "src/b.go", files[1].Path())
	assert.True(t, files[1].IsNew())

	added, removed := files[1].Stats()
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, removed)
}

func TestApply_Stale(t *testing.T) {
	text := Unified("f", "a\nb\nc\n", "a\nB\nc\n", false)

	_, err := ApplyText("a\nx\nc\n", text)
	assert.True(t, errors.Is(err, ErrStale), "got %v", err)

	_, err = ApplyText("", text)
	assert.True(t, errors.Is(err, ErrStale), "got %v", err)
}

func TestApply_DoesNotFuzz(t *testing.T) {
	text := Unified("f", "a\nb\nc\n", "a\nB\nc\n", false)

	// Same lines shifted down by one must not apply at the new position.
	_, err := ApplyText("header\na\nb\nc\n", text)
	assert.True(t, errors.Is(err, ErrStale), "got %v", err)
}

func TestCountChanges(t *testing.T) {
	text := Unified("f", "a\nb\nc\n", "a\nx\ny\nc\n", false)
	added, removed := CountChanges(text)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)

	added, removed = CountChanges("not a diff")
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestRender_MatchesUnified(t *testing.T) {
	text := Unified("pkg/x.go", "a\nb\n", "a\nc", false)
	files, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, text, Render(files))
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a\n", "b"}, SplitLines("a\nb"))
	assert.Equal(t, []string{"a\n", "\n"}, SplitLines("a\n\n"))
}

func TestSplitFiles(t *testing.T) {
	patch := "diff --git a/a.go b/a.go\n" +
		"index 111..222 100644\n" +
		"--- a/a.go\n" +
		"+++ b/a.go\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n" +
		"--- /dev/null\n" +
		"+++ b/docs/new.md\n" +
		"@@ -0,0 +1 @@\n" +
		"+hello\n" +
		"--- a/gone.txt\n" +
		"+++ /dev/null\n" +
		"this line is garbage\n"

	files := SplitFiles(patch)
	if len(files) != 3 {
		t.Fatalf("got %d sections, want 3", len(files))
	}

	wantPaths := []string{"a.go", "docs/new.md", "gone.txt"}
	for i, f := range files {
		if f.Path != wantPaths[i] {
			t.Errorf("section %d path = %q, want %q", i, f.Path, wantPaths[i])
		}
	}

	if !strings.HasPrefix(files[0].Text, "diff --git a/a.go b/a.go\n") {
		t.Errorf("git preamble not kept with its section: %q", files[0].Text)
	}
	if err := Validate(files[0].Text); err != nil {
		t.Errorf("first section should validate: %v", err)
	}
	if err := Validate(files[1].Text); err != nil {
		t.Errorf("second section should validate: %v", err)
	}
	if err := Validate(files[2].Text); err == nil {
		t.Error("garbage section should not validate")
	}
}

func TestSplitFiles_HeaderLikeLinesInsideHunk(t *testing.T) {
	patch := "--- a/notes.md\n" +
		"+++ b/notes.md\n" +
		"@@ -1,2 +1,2 @@\n" +
		"--- x\n" +
		"+++ y\n" +
		" keep\n" +
		"--- a/b.go\n" +
		"+++ b/b.go\n" +
		"@@ -1 +1 @@\n" +
		"-1\n" +
		"+2\n"

	files := SplitFiles(patch)
	require.Len(t, files, 2)
	assert.Equal(t, "notes.md", files[0].Path)
	assert.Equal(t, "b.go", files[1].Path)
	assert.Contains(t, files[0].Text, "--- x\n+++ y\n keep\n")
	require.NoError(t, Validate(files[0].Text))
	require.NoError(t, Validate(files[1].Text))

	parsed, err := Parse(files[0].Text)
	require.NoError(t, err)
	got, err := Apply("-- x\nkeep\n", parsed[0])
	require.NoError(t, err)
	assert.Equal(t, "++ y\nkeep\n", got)
}

func TestSplitFiles_NoHeaders(t *testing.T) {
	if got := SplitFiles("just some prose\n"); len(got) != 0 {
		t.Errorf("expected no sections, got %v", got)
	}
}
