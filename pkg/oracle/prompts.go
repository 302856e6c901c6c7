package oracle

import (
	"fmt"
	"strings"

	"github.com/entrhq/repoman/pkg/types"
)

const planSystemPrompt = `You are an automated repository maintenance agent.
Given a task and a set of repository files, decide which files must change.

Respond with a single JSON object and nothing else:
{
  "summary": "one line describing the change",
  "steps": [
    {"path": "relative/path", "action": "edit", "instruction": "what to change in this file"},
    {"path": "relative/new_file", "action": "create", "content": "full file content"}
  ]
}

Rules:
- Steps run in the order given. Put a step after every step it depends on.
- Use "content" when you know the complete new file, "instruction" otherwise.
- Instead of steps you may return a unified diff in a "patch" field.
- Paths are relative to the repository root and use forward slashes.
- Return an empty "steps" list if nothing needs to change.`

const refactorSystemPrompt = `You rewrite source files according to instructions.
Provide ONLY the complete new file content without explanations.`

const analysisSystemPrompt = `You review source code and give clear, actionable suggestions.`

const commitSystemPrompt = `You write concise git commit messages.
Provide only the commit message in conventional commit format.`

func planPrompt(req PlanRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", req.Instruction)

	if len(req.Files) == 0 {
		sb.WriteString("No existing files are in scope.\n")
		return sb.String()
	}

	sb.WriteString("Files in scope:\n")
	for _, f := range req.Files {
		if f.Omitted {
			fmt.Fprintf(&sb, "- %s (content omitted)\n", f.Path)
		} else {
			fmt.Fprintf(&sb, "- %s\n", f.Path)
		}
	}

	for _, f := range req.Files {
		if f.Omitted {
			continue
		}
		fmt.Fprintf(&sb, "\n=== %s ===\n%s", f.Path, f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func refactorPrompt(snapshot types.FileSnapshot, instruction, repoContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n", snapshot.Path)
	fmt.Fprintf(&sb, "Refactor the following code according to these instructions: %s\n\n", instruction)
	if repoContext != "" {
		fmt.Fprintf(&sb, "Context:\n%s\n\n", repoContext)
	}
	if snapshot.Existed {
		fmt.Fprintf(&sb, "Original code:\n```\n%s\n```\n", snapshot.Content)
	} else {
		sb.WriteString("The file does not exist yet; write it from scratch.\n")
	}
	return sb.String()
}

func analysisPrompt(snapshot types.FileSnapshot, task string) string {
	return fmt.Sprintf("Analyze the following code and provide suggestions for: %s\n\nFile: %s\n```\n%s\n```\n\nProvide a clear analysis and actionable suggestions.",
		task, snapshot.Path, snapshot.Content)
}

func commitPrompt(diff string) string {
	return fmt.Sprintf("Generate a concise commit message for the following changes:\n\n```\n%s\n```", diff)
}
