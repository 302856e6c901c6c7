// Package main provides the repoman command line: an unattended repository
// maintenance agent that plans, applies, verifies and commits changes from a
// single instruction, plus the plumbing commands it is built from.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/repoman/pkg/types"
)

const version = "0.1.0"

// Exit codes of the repoman command.
const (
	exitSuccess = 0
	exitError   = 1
	exitPartial = 2
	exitAborted = 3
	exitBlocked = 4
)

func main() {
	// Cancel the context on SIGINT/SIGTERM so a running task stops between
	// mutations and still reports what it applied.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

// codeError carries a non-default exit code. A nil err means the command
// already reported the failure.
type codeError struct {
	code int
	err  error
}

func (e *codeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *codeError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	if code == exitSuccess {
		return err
	}
	return &codeError{code: code, err: err}
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitSuccess
	}
	var ce *codeError
	if errors.As(err, &ce) {
		if ce.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ce.err)
		}
		return ce.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

// statusCode maps a task status to the process exit code.
func statusCode(status types.TaskStatus) int {
	switch status {
	case types.TaskSuccess:
		return exitSuccess
	case types.TaskPartial:
		return exitPartial
	case types.TaskAborted:
		return exitAborted
	case types.TaskBlocked:
		return exitBlocked
	default:
		return exitError
	}
}
