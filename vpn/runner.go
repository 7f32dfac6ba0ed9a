package vpn

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	Output   []byte
}

// Runner executes OS commands. A non-zero exit status is reported in the
// Result, not as an error; errors mean the command could not run at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// InputRunner is a Runner that can also write to the command's stdin.
// Secrets travel this way so they never show up in a process listing.
type InputRunner interface {
	Runner
	RunInput(ctx context.Context, input []byte, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and collects combined output.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return r.run(ctx, exec.CommandContext(ctx, name, args...))
}

// RunInput executes name with input on stdin.
func (r ExecRunner) RunInput(ctx context.Context, input []byte, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	return r.run(ctx, cmd)
}

func (ExecRunner) run(ctx context.Context, cmd *exec.Cmd) (Result, error) {
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return Result{ExitCode: exitErr.ExitCode(), Output: out}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	return Result{Output: out}, nil
}

func checkCommandExists(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
