package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
)

// Runner executes one action. A non-zero exit must be reported as an error that ExitCodeOf
// understands, typically *ExitError.
type Runner interface {
	Run(ctx context.Context, action Action) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, action Action) error

func (f RunnerFunc) Run(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeOf extracts the exit status from err: 0 for nil, the command's status for an
// *ExitError, and -1 for anything that prevented the command from finishing.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// ShellRunner runs each action through a POSIX shell.
type ShellRunner struct {
	// Shell defaults to "sh".
	Shell  string
	Stdout io.Writer
	Stderr io.Writer
	// BaseEnv is the environment actions start from; nil means the current process environment.
	BaseEnv []string
}

var _ Runner = (*ShellRunner)(nil)

// NewShellRunner streams command output to the process stdout and stderr.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ShellRunner) Run(ctx context.Context, action Action) error {
	if action.Command == "" {
		return errors.New("pipeline: empty command")
	}
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	//nolint:gosec // Commands come from the operator's own configuration.
	cmd := exec.CommandContext(ctx, shell, "-c", action.Command)
	cmd.Dir = action.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Env = mergeEnv(r.baseEnv(), action.Env)

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Err: err}
	}
	return err
}

func (r *ShellRunner) baseEnv() []string {
	if r.BaseEnv != nil {
		return r.BaseEnv
	}
	return os.Environ()
}

// mergeEnv overlays extra onto base. Keys are appended in sorted order so the resulting
// environment is stable.
func mergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
