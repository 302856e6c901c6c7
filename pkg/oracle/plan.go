package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/repoman/pkg/diff"
	"github.com/entrhq/repoman/pkg/types"
)

type planStep struct {
	Content     *string `json:"content"`
	Path        string  `json:"path"`
	Action      string  `json:"action"`
	Instruction string  `json:"instruction"`
	Patch       string  `json:"patch"`
}

type planDocument struct {
	Summary string     `json:"summary"`
	Patch   string     `json:"patch"`
	Steps   []planStep `json:"steps"`
}

// ParsePlan decodes a model response into a TaskPlan. Markdown fences and
// prose around the JSON object are tolerated. A top-level "patch" is split
// into one Patch step per file, after any explicit steps.
func ParsePlan(text string) (types.TaskPlan, error) {
	raw := extractJSON(text)
	if raw == "" {
		return types.TaskPlan{}, fmt.Errorf("%w: no JSON object in response", ErrInvalidPlan)
	}

	var doc planDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return types.TaskPlan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	plan := types.TaskPlan{
		Summary: strings.TrimSpace(doc.Summary),
		Steps:   make([]types.MutationRequest, 0, len(doc.Steps)),
	}

	for i, s := range doc.Steps {
		req, err := s.request()
		if err != nil {
			return types.TaskPlan{}, fmt.Errorf("%w: step %d: %v", ErrInvalidPlan, i+1, err)
		}
		plan.Steps = append(plan.Steps, req)
	}

	if strings.TrimSpace(doc.Patch) != "" {
		files := diff.SplitFiles(doc.Patch)
		if len(files) == 0 {
			return types.TaskPlan{}, fmt.Errorf("%w: patch has no file headers", ErrInvalidPlan)
		}
		for _, f := range files {
			plan.Steps = append(plan.Steps, types.MutationRequest{Path: f.Path, Patch: f.Text})
		}
	}
	return plan, nil
}

func (s planStep) request() (types.MutationRequest, error) {
	path := strings.TrimPrefix(strings.TrimSpace(s.Path), "./")
	if path == "" {
		return types.MutationRequest{}, fmt.Errorf("missing path")
	}

	switch strings.ToLower(s.Action) {
	case "", "edit", "modify", "update", "create", "write":
	default:
		return types.MutationRequest{}, fmt.Errorf("unsupported action %q for %s", s.Action, path)
	}

	req := types.MutationRequest{Path: path, Instruction: strings.TrimSpace(s.Instruction)}
	switch {
	case s.Content != nil:
		req.Content = s.Content
	case s.Patch != "":
		req.Patch = s.Patch
	case req.Instruction == "":
		return types.MutationRequest{}, fmt.Errorf("%s has neither content nor instruction", path)
	}
	return req, nil
}

// extractJSON returns the outermost JSON object in text.
func extractJSON(text string) string {
	text = CleanCode(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

// CleanCode strips the markdown fence a model commonly wraps code in.
func CleanCode(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
