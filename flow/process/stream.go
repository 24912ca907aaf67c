package process

import (
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
	flowio "github.com/lguimbarda/chunkflow/flow/io"
)

// Source pulls chunks from a child process's stdout. The process starts on
// the first Pull, using that call's context for its lifetime. Once stdout is
// exhausted the process is reaped: a clean exit ends the stream, a non-zero
// exit is reported as a KindResource error. Close kills a process that is
// still running.
type Source[T any] struct {
	cmd  Command
	wrap func(io.Reader) core.Source[T]

	mu     sync.Mutex
	c      *exec.Cmd
	out    core.Source[T]
	stderr *tailBuffer
	done   bool
	waited bool
	closed bool
}

// NewSource returns a source that reads cmd's stdout through wrap.
func NewSource[T any](cmd Command, wrap func(io.Reader) core.Source[T]) *Source[T] {
	return &Source[T]{cmd: cmd, wrap: wrap}
}

// NewChunkSource returns a source of stdout chunks of at most size bytes.
func NewChunkSource(cmd Command, size int) *Source[[]byte] {
	return NewSource(cmd, func(r io.Reader) core.Source[[]byte] {
		return flowio.NewChunkSource(r, size).Streaming()
	})
}

// NewLineSource returns a source of stdout lines.
func NewLineSource(cmd Command) *Source[string] {
	return NewSource(cmd, func(r io.Reader) core.Source[string] {
		return flowio.NewLineSource(r)
	})
}

func (s *Source[T]) Pull(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, core.WithKind(err, core.KindCancelled)
	}
	if s.closed {
		return zero, errors.New("pull from closed source")
	}
	if s.done {
		return zero, core.ErrEndOfStream
	}
	if s.c == nil {
		if err := s.start(ctx); err != nil {
			s.done = true
			return zero, err
		}
	}

	chunk, err := s.out.Pull(ctx)
	if err == nil {
		return chunk, nil
	}
	s.done = true
	if errors.Is(err, core.ErrEndOfStream) {
		if werr := s.wait(ctx); werr != nil {
			return zero, werr
		}
		return zero, core.ErrEndOfStream
	}
	if ctx.Err() != nil {
		return zero, core.WithKind(ctx.Err(), core.KindCancelled)
	}
	return zero, err
}

func (s *Source[T]) start(ctx context.Context) error {
	c, err := command(ctx, s.cmd)
	if err != nil {
		return err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return core.WithKind(errors.Wrap(err, "stdout pipe"), core.KindResource)
	}
	s.stderr = &tailBuffer{max: stderrTail}
	c.Stderr = s.stderr
	if err := c.Start(); err != nil {
		return core.WithKind(errors.Wrapf(err, "start %s", s.cmd.Name), core.KindResource)
	}
	s.c = c
	s.out = s.wrap(stdout)
	return nil
}

func (s *Source[T]) wait(ctx context.Context) error {
	s.waited = true
	err := s.c.Wait()
	if err == nil {
		return nil
	}
	return exitError(ctx, s.cmd, s.c.ProcessState.ExitCode(), err, s.stderr.String())
}

func (s *Source[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.c == nil || s.waited {
		return nil
	}
	s.waited = true
	_ = killGroup(s.c)
	_ = s.c.Wait()
	return nil
}

// Chunks streams cmd's stdout in chunks of at most size bytes.
func Chunks(cmd Command, size int) core.Stream[[]byte] {
	return flow.Defer(func() core.Stream[[]byte] {
		return flow.FromSource[[]byte](NewChunkSource(cmd, size))
	})
}

// Lines streams cmd's stdout line by line, without line terminators.
func Lines(cmd Command) core.Stream[string] {
	return flow.Defer(func() core.Stream[string] {
		return flow.FromSource[string](NewLineSource(cmd))
	})
}

var errUpstream = errors.New("upstream failed")

// Pipe runs cmd once per stream, writing every input chunk to its stdin and
// emitting its stdout in chunks of at most size bytes. Stdin is closed when
// the input ends. An upstream error kills the process and is forwarded in
// place of whatever the process would have produced next.
func Pipe(cmd Command, size int) core.Transmitter[[]byte, []byte] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[[]byte]) <-chan core.Result[[]byte] {
		out := make(chan core.Result[[]byte])
		go func() {
			defer close(out)

			procCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			pr, pw := io.Pipe()
			defer pr.Close()

			upstream := make(chan error, 1)
			go func() {
				var failed error
				defer func() { upstream <- failed }()
				for res := range in {
					switch {
					case res.IsError():
						failed = res.Error()
						pw.CloseWithError(errUpstream)
						cancel()
						for range in {
						}
						return
					case res.IsValue():
						if _, err := pw.Write(res.Value()); err != nil {
							for range in {
							}
							return
						}
					}
				}
				pw.Close()
			}()

			stdinCmd := cmd
			stdinCmd.Stdin = pr
			src := NewChunkSource(stdinCmd, size)

			report := func(err error) {
				pr.Close()
				if up := <-upstream; up != nil {
					err = up
				}
				if err != nil {
					core.Send(ctx, out, core.Err[[]byte](err))
				}
			}

			for {
				chunk, err := src.Pull(procCtx)
				if err == nil {
					if !core.Send(ctx, out, core.Ok(chunk)) {
						_ = src.Close()
						report(nil)
						return
					}
					continue
				}
				_ = src.Close()
				if errors.Is(err, core.ErrEndOfStream) {
					err = nil
				}
				report(err)
				return
			}
		}()
		return out
	})
}
