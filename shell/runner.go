package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// Runner executes confirmed commands.
//
// With Shell empty the command runs in the built-in bash interpreter,
// inheriting the process environment. Otherwise Shell is started as
// "<Shell> -c <cmd>".
type Runner struct {
	Shell  string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns a runner wired to the process's standard streams.
func NewRunner(shellPath string) *Runner {
	return &Runner{
		Shell:  shellPath,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes cmd and returns its exit status. err is only set when the
// command could not be started or was interrupted; a command that ran and
// exited non-zero returns that status with a nil error.
func (r *Runner) Run(ctx context.Context, cmd string) (int, error) {
	slog.Info("executing command", "command", Redact(cmd), "shell", r.shellName())
	if r.Shell != "" {
		return r.runExternal(ctx, cmd)
	}
	return r.runInterp(ctx, cmd)
}

func (r *Runner) shellName() string {
	if r.Shell == "" {
		return "builtin"
	}
	return r.Shell
}

func (r *Runner) dir() (string, error) {
	if r.Dir != "" {
		return r.Dir, nil
	}
	return os.Getwd()
}

func (r *Runner) runInterp(ctx context.Context, cmd string) (int, error) {
	prog, err := parse(cmd)
	if err != nil {
		return 0, fmt.Errorf("parse command: %w", err)
	}
	dir, err := r.dir()
	if err != nil {
		return 0, err
	}

	runner, err := interp.New(
		interp.StdIO(r.Stdin, r.Stdout, r.Stderr),
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.Dir(dir),
	)
	if err != nil {
		return 0, fmt.Errorf("create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	var status interp.ExitStatus
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &status):
		return int(status), nil
	default:
		return 1, err
	}
}

func (r *Runner) runExternal(ctx context.Context, cmd string) (int, error) {
	dir, err := r.dir()
	if err != nil {
		return 0, err
	}
	c := exec.CommandContext(ctx, r.Shell, "-c", cmd)
	c.Dir = dir
	c.Stdin = r.Stdin
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr

	err = c.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		return exitErr.ExitCode(), nil
	default:
		return 1, err
	}
}
