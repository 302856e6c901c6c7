package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/entrhq/repoman/pkg/llm"
	"github.com/entrhq/repoman/pkg/repository/repotest"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays canned responses and records prompts.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   [][]llm.Message
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, messages []llm.Message) (<-chan *llm.StreamChunk, error) {
	text, err := p.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan *llm.StreamChunk, 1)
	ch <- &llm.StreamChunk{Content: text, Finished: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Complete(_ context.Context, messages []llm.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, messages)
	if p.err != nil {
		return "", p.err
	}
	if len(p.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	out := p.responses[0]
	p.responses = p.responses[1:]
	return out, nil
}

func (p *scriptedProvider) GetModel() string { return "scripted" }
func (p *scriptedProvider) Name() string     { return "scripted" }

func strPtr(s string) *string { return &s }

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.TaskPlan
		wantErr bool
	}{
		{
			name:  "steps in order",
			input: `{"summary":"add greeting","steps":[{"path":"src/a.py","action":"create","content":"print('hi')\n"},{"path":"./src/b.py","action":"edit","instruction":"call a"}]}`,
			want: types.TaskPlan{
				Summary: "add greeting",
				Steps: []types.MutationRequest{
					{Path: "src/a.py", Content: strPtr("print('hi')\n")},
					{Path: "src/b.py", Instruction: "call a"},
				},
			},
		},
		{
			name:  "fenced with prose",
			input: "Here is the plan:\n```json\n{\"summary\":\"noop\",\"steps\":[]}\n```\n",
			want:  types.TaskPlan{Summary: "noop", Steps: []types.MutationRequest{}},
		},
		{
			name:  "explicit empty content is kept",
			input: `{"steps":[{"path":"empty.txt","content":""}]}`,
			want: types.TaskPlan{Steps: []types.MutationRequest{
				{Path: "empty.txt", Content: strPtr("")},
			}},
		},
		{
			name:  "patch split per file",
			input: `{"summary":"patch","patch":"--- a/x.go\n+++ b/x.go\n@@ -1 +1 @@\n-a\n+b\n--- /dev/null\n+++ b/y.go\n@@ -0,0 +1 @@\n+y\n"}`,
			want: types.TaskPlan{
				Summary: "patch",
				Steps: []types.MutationRequest{
					{Path: "x.go", Patch: "--- a/x.go\n+++ b/x.go\n@@ -1 +1 @@\n-a\n+b\n"},
					{Path: "y.go", Patch: "--- /dev/null\n+++ b/y.go\n@@ -0,0 +1 @@\n+y\n"},
				},
			},
		},
		{name: "not json", input: "I cannot help with that.", wantErr: true},
		{name: "broken json", input: `{"steps":[`, wantErr: true},
		{name: "missing path", input: `{"steps":[{"instruction":"x"}]}`, wantErr: true},
		{name: "nothing to do in step", input: `{"steps":[{"path":"a"}]}`, wantErr: true},
		{name: "unsupported action", input: `{"steps":[{"path":"a","action":"delete","instruction":"x"}]}`, wantErr: true},
		{name: "patch without headers", input: `{"patch":"just words"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlan(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePlan() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCleanCode(t *testing.T) {
	tests := map[string]string{
		"```python\nx = 1\n```":    "x = 1",
		"```\nx = 1\ny = 2\n```\n": "x = 1\ny = 2",
		"x = 1\n":                  "x = 1",
		"  \n```go\nfunc f() {}\n": "func f() {}",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanCode(in), "input %q", in)
	}
}

func TestLLMOracle_Plan(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"summary":"rename","steps":[{"path":"src/a.py","instruction":"rename foo to bar"}]}`,
	}}
	o := New(provider)

	plan, err := o.Plan(context.Background(), PlanRequest{
		Instruction: "rename foo",
		Files: []FileContext{
			{Path: "src/a.py", Content: "def foo(): pass\n"},
			{Path: "src/big.py", Omitted: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.py"}, plan.Paths())

	require.Len(t, provider.prompts, 1)
	msgs := provider.prompts[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	user := msgs[1].Content
	assert.Contains(t, user, "Task: rename foo")
	assert.Contains(t, user, "=== src/a.py ===\ndef foo(): pass\n")
	assert.Contains(t, user, "- src/big.py (content omitted)")
	assert.NotContains(t, user, "=== src/big.py ===")
}

func TestLLMOracle_Unavailable(t *testing.T) {
	boom := errors.New("connection refused")
	o := New(&scriptedProvider{err: boom})

	_, err := o.Plan(context.Background(), PlanRequest{Instruction: "x"})
	require.ErrorIs(t, err, ErrOracleUnavailable)
	assert.ErrorIs(t, err, boom)

	_, err = o.Propose(context.Background(), types.FileSnapshot{Path: "a"}, "x", "")
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestLLMOracle_InvalidPlanIsNotUnavailable(t *testing.T) {
	o := New(&scriptedProvider{responses: []string{"sorry"}})
	_, err := o.Plan(context.Background(), PlanRequest{Instruction: "x"})
	require.ErrorIs(t, err, ErrInvalidPlan)
	assert.False(t, errors.Is(err, ErrOracleUnavailable))
}

func TestLLMOracle_Propose(t *testing.T) {
	tests := []struct {
		name     string
		snapshot types.FileSnapshot
		response string
		want     string
		wantErr  error
	}{
		{
			name:     "keeps trailing newline",
			snapshot: types.FileSnapshot{Path: "a.py", Content: "x = 1\n", Existed: true},
			response: "```python\nx = 2\n```",
			want:     "x = 2\n",
		},
		{
			name:     "keeps missing trailing newline",
			snapshot: types.FileSnapshot{Path: "a.txt", Content: "x", Existed: true},
			response: "y\n",
			want:     "y",
		},
		{
			name:     "new files end with newline",
			snapshot: types.FileSnapshot{Path: "new.py"},
			response: "print('new')",
			want:     "print('new')\n",
		},
		{
			name:     "empty proposal",
			snapshot: types.FileSnapshot{Path: "a.py", Content: "x\n", Existed: true},
			response: "```\n```",
			wantErr:  ErrEmptyProposal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{responses: []string{tt.response}}
			got, err := New(provider).Propose(context.Background(), tt.snapshot, "change it", "plan: test")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, provider.prompts[0][1].Content, "plan: test")
		})
	}
}

func TestLLMOracle_AnalyzeAndDescribe(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"looks fine", "`fix: handle nil input`\n"}}
	o := New(provider)

	analysis, err := o.Analyze(context.Background(), types.FileSnapshot{Path: "a.go", Content: "package a"}, "find bugs")
	require.NoError(t, err)
	assert.Equal(t, "looks fine", analysis)
	assert.Contains(t, provider.prompts[0][1].Content, "suggestions for: find bugs")

	msg, err := o.Describe(context.Background(), "--- a/a.go\n+++ b/a.go\n")
	require.NoError(t, err)
	assert.Equal(t, "fix: handle nil input", msg)
}

type byteCounter struct{}

func (byteCounter) CountTokens(s string) int { return len(s) }

func TestContextBuilder_Gather(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{
		"a.txt": strings.Repeat("a", 10),
		"b.txt": strings.Repeat("b", 10),
		"c.txt": strings.Repeat("c", 1),
	})
	b := NewContextBuilder(repo, WithTokenCounter(byteCounter{}), WithTokenBudget(15), WithConcurrency(2))

	files, err := b.Gather(context.Background(), []string{"a.txt", "missing.txt", "b.txt", "c.txt"})
	require.NoError(t, err)

	want := []FileContext{
		{Path: "a.txt", Content: "aaaaaaaaaa", Tokens: 10},
		{Path: "missing.txt", Omitted: true},
		{Path: "b.txt", Omitted: true},
		{Path: "c.txt", Omitted: true},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("Gather() mismatch (-want +got):\n%s", diff)
	}
}

func TestContextBuilder_Canceled(t *testing.T) {
	repo := repotest.NewMemory(map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewContextBuilder(repo).Gather(ctx, []string{"a.txt"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanRequest_Paths(t *testing.T) {
	req := PlanRequest{Files: []FileContext{{Path: "a"}, {Path: "b", Omitted: true}}}
	assert.Equal(t, []string{"a", "b"}, req.Paths())
}
