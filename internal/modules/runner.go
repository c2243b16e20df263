package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for stdout/stderr to close after the
// command was killed.
const waitDelay = 2 * time.Second

// Runner executes one module command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, command string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, command string) ([]byte, error) {
	return f(ctx, command)
}

// ShellRunner runs commands locally through `<Shell> -c`.
type ShellRunner struct {
	Shell string
	Env   []string // appended to the inherited environment
}

// ExitError is returned when the command exits non-zero. Stdout is kept so
// the caller can report what the module printed.
type ExitError struct {
	Code   int
	Stdout []byte
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("exit status %d", e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (r ShellRunner) Run(ctx context.Context, command string) ([]byte, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	// kill the whole process group, not just the shell, when ctx ends
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return stdout.Bytes(), fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return stdout.Bytes(), &ExitError{Code: ee.ExitCode(), Stdout: stdout.Bytes(), Stderr: stderr.String()}
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}
