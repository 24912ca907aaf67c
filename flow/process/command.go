// Package process streams the output of child processes.
//
// A process stream starts its command when the stream is emitted and reports
// a non-zero exit as a resource error carrying the tail of stderr. Cancelling
// the stream terminates the process group, escalating to a kill once the
// command's grace period has passed.
package process

import (
	"io"
	"os"
	"sync"
	"time"
)

// DefaultGracePeriod is how long a cancelled process may take to exit after
// SIGTERM before it is killed.
const DefaultGracePeriod = 5 * time.Second

// stderrTail bounds how much stderr is kept for error details.
const stderrTail = 2048

// Command describes a child process.
type Command struct {
	// Name is the program to execute, looked up in PATH when it has no separator.
	Name string
	Args []string
	// Dir is the working directory; empty means the caller's.
	Dir string
	// Env holds KEY=VALUE pairs added to the caller's environment.
	Env         []string
	Stdin       io.Reader
	GracePeriod time.Duration
}

// Result holds the collected output of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Success reports whether the process exited with code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

func (c Command) grace() time.Duration {
	if c.GracePeriod <= 0 {
		return DefaultGracePeriod
	}
	return c.GracePeriod
}

// mergeEnv appends extra to the current environment. No extra variables
// means the child inherits the parent environment unchanged.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
