package process

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// ErrNoCommand is returned for a Command without a program name.
var ErrNoCommand = core.WithKind(errors.New("process: command name is required"), core.KindInvalidInput)

// Run executes cmd and waits for it to exit, collecting its output.
// A non-zero exit returns the Result together with a KindResource error;
// a cancelled ctx returns a KindCancelled error.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	var stdout, stderr bytes.Buffer
	c, err := command(ctx, cmd)
	if err != nil {
		return nil, err
	}
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err = c.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}
	if err != nil {
		return result, exitError(ctx, cmd, result.ExitCode, err, stderr.String())
	}
	return result, nil
}

func command(ctx context.Context, cmd Command) (*exec.Cmd, error) {
	if cmd.Name == "" {
		return nil, ErrNoCommand
	}
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdin = cmd.Stdin
	c.WaitDelay = cmd.grace()
	setProcessGroup(c)
	return c, nil
}

func exitError(ctx context.Context, cmd Command, code int, err error, stderr string) error {
	if ctx.Err() != nil {
		return core.WithKind(errors.Wrapf(ctx.Err(), "process %s: killed", cmd.Name), core.KindCancelled)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return core.WithKind(errors.Wrapf(err, "process %s", cmd.Name), core.KindResource)
	}
	err = errors.Wrapf(err, "process %s: exit code %d", cmd.Name, code)
	if tail := lastLines(stderr); tail != "" {
		err = errors.WithDetail(err, tail)
	}
	return core.WithKind(err, core.KindResource)
}

func lastLines(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	return s
}
