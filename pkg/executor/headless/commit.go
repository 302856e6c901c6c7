package headless

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/repoman/pkg/repository"
	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

// maxSubjectSummary bounds the summary part of a commit subject.
const maxSubjectSummary = 72

// Pusher is implemented by repositories that can publish commits.
type Pusher interface {
	Push(ctx context.Context, remote string) error
}

// CommitMessage builds the commit message of a task:
//
//	<prefix>: <summary> (<n> file|files)
//
//	- path/a
//	- path/b
//
// Paths are sorted, so identical inputs always give identical messages.
func CommitMessage(prefix, summary string, paths []string) string {
	summary = subjectLine(summary)

	noun := "files"
	if len(paths) == 1 {
		noun = "file"
	}

	var sb strings.Builder
	if prefix != "" {
		sb.WriteString(prefix)
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%s (%d %s)", summary, len(paths), noun)

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	if len(sorted) > 0 {
		sb.WriteString("\n\n")
		for _, p := range sorted {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// PrefixMessage applies the commit prefix to a manual commit message unless
// it already carries it.
func PrefixMessage(prefix, message string) string {
	if prefix == "" || strings.HasPrefix(message, prefix) {
		return message
	}
	return prefix + " " + message
}

// BranchName applies the branch prefix unless the name already carries it.
func BranchName(prefix, name string) string {
	if prefix == "" || strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

func subjectLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if r := []rune(s); len(r) > maxSubjectSummary {
		s = strings.TrimSpace(string(r[:maxSubjectSummary-3])) + "..."
	}
	if s == "" {
		s = "automated changes"
	}
	return s
}

// commit records the changed paths of a task. Only a nothing-to-commit
// result is expected; other failures are reported on the result without
// failing the task.
func (r *run) commit(ctx context.Context) {
	e := r.executor
	paths := r.result.ChangedPaths()

	summary := r.result.Plan.Summary
	if summary == "" {
		summary = r.result.Instruction
	}
	message := CommitMessage(e.config.Git.CommitPrefix, summary, paths)
	r.result.CommitMessage = message

	sha, err := e.repo.Commit(ctx, message, paths)
	switch {
	case errors.Is(err, repository.ErrNothingToCommit):
		r.result.CommitNote = "nothing to commit"
		e.console.GitOperation("Nothing to commit", "")
		return
	case err != nil:
		r.result.CommitNote = fmt.Sprintf("commit failed: %v", err)
		e.console.Warningf("failed to commit changes: %v", err)
		e.logger.Warn("commit failed", zap.String("task", r.result.ID), zap.Error(err))
		return
	}

	r.result.CommitSHA = sha
	e.console.GitOperation(fmt.Sprintf("Committed %s", shortSHA(sha)), message)
	e.logger.Info("committed", zap.String("task", r.result.ID), zap.String("sha", sha), zap.Strings("paths", paths))

	if !e.config.Git.AutoPush {
		return
	}
	pusher, ok := e.repo.(Pusher)
	if !ok {
		r.result.CommitNote = "push not supported by repository"
		return
	}
	remote := e.config.Git.Remote
	if remote == "" {
		remote = "origin"
	}
	if err := pusher.Push(ctx, remote); err != nil {
		r.result.CommitNote = fmt.Sprintf("push failed: %v", err)
		e.console.Warningf("failed to push to %s: %v", remote, err)
		e.logger.Warn("push failed", zap.String("remote", remote), zap.Error(err))
		return
	}
	e.console.GitOperation("Pushed to "+remote, "")
}

func shortSHA(sha string) string {
	return types.Commit{SHA: sha}.ShortSHA()
}
