package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/repoman/pkg/runner"
	"github.com/entrhq/repoman/pkg/types"
	"github.com/spf13/cobra"
)

func newTestCmd(opts *globalOptions) *cobra.Command {
	var (
		path    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the detected test command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			detected := runner.Detect(a.root)
			if detected.Test == "" {
				return errors.New("no test command detected")
			}
			return runCheck(cmd, a, runner.Check{
				Name:     "test",
				Command:  runner.WithArgs(detected.Test, path),
				Timeout:  timeout,
				Required: true,
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Test file or directory")
	cmd.Flags().DurationVar(&timeout, "timeout", runner.DefaultTimeout, "Test timeout")
	return cmd
}

func newLintCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run the detected linter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			detected := runner.Detect(a.root)
			if detected.Lint == "" {
				return errors.New("no linter detected")
			}
			return runCheck(cmd, a, runner.Check{Name: "lint", Command: detected.Lint, Required: true})
		},
	}
}

func newFormatCmd(opts *globalOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Run the detected formatter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			detected := runner.Detect(a.root)
			command := detected.Format
			if check {
				command = detected.FormatCheck
			}
			if command == "" {
				return errors.New("no formatter detected")
			}
			if !check && a.cfg.Safety.DryRun {
				a.console.Infof("Would run: %s", command)
				return nil
			}
			return runCheck(cmd, a, runner.Check{Name: "format", Command: command, Required: true})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only check formatting")
	return cmd
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run COMMAND",
		Short: "Run a shell command, or a script file by extension, in the repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			command := strings.Join(args, " ")
			if len(args) == 1 && isScript(cmd.Context(), a, args[0]) {
				command = runner.ScriptCommand(args[0])
			}
			if a.cfg.Safety.DryRun {
				a.console.Infof("Would run: %s", command)
				return nil
			}
			return runCheck(cmd, a, runner.Check{Name: "run", Command: command, Timeout: timeout, Required: true})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", runner.DefaultTimeout, "Command timeout")
	return cmd
}

// isScript reports whether arg names an existing file in the repository.
func isScript(ctx context.Context, a *app, arg string) bool {
	if strings.ContainsAny(arg, " \t") {
		return false
	}
	snap, err := a.repo.Read(ctx, arg)
	return err == nil && snap.Existed
}

// runCheck runs one command, prints its output and fails with the command's
// failure when it does not pass.
func runCheck(cmd *cobra.Command, a *app, check runner.Check) error {
	a.console.Step(check.Command)
	res := a.runner().Run(cmd.Context(), check)
	printCommandResult(a, res)
	if res.Passed() {
		return nil
	}
	return withCode(exitError, commandFailure(res))
}

func printCommandResult(a *app, res types.CommandResult) {
	if res.Stdout != "" {
		fmt.Fprint(a.out, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(a.out)
		}
	}
	if res.Stderr != "" {
		fmt.Fprint(a.out, res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			fmt.Fprintln(a.out)
		}
	}
	a.console.Check(res)
}

func commandFailure(res types.CommandResult) error {
	switch {
	case res.TimedOut:
		return fmt.Errorf("%s timed out after %s", res.Name, res.Duration.Round(time.Millisecond))
	case res.Error != "":
		return fmt.Errorf("%s failed: %s", res.Name, res.Error)
	default:
		return fmt.Errorf("%s failed with exit code %d", res.Name, res.ExitCode)
	}
}
