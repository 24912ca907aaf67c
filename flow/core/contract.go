package core

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Source is a pull-based producer. Pull returns the next chunk, or
// ErrEndOfStream once the source is exhausted. Close releases whatever the
// source holds open and must be safe to call on every exit path.
type Source[T any] interface {
	Pull(ctx context.Context) (T, error)
	Close() error
}

// Sink consumes chunks in order. Write returns ErrBackPressure when the sink
// cannot accept the chunk yet; the caller must wait for readiness (see
// Pressured) and retry the same chunk. Close is the completion signal: it
// flushes and releases resources, and no Write follows it.
type Sink[T any] interface {
	Write(ctx context.Context, chunk T) error
	Close(ctx context.Context) error
}

// Aborter is implemented by sinks that tell a failed run from a completed
// one. Abort replaces Close when the stream ends with an error or is
// cancelled: the sink releases its resources, keeps err as the reason and
// must not publish partial output as complete. No Write follows it.
type Aborter interface {
	Abort(ctx context.Context, err error) error
}

// Finish ends sink with the outcome of the stream feeding it. A nil cause
// is normal completion and closes the sink; otherwise the sink is aborted
// with cause, or closed when it cannot be aborted.
func Finish[T any](ctx context.Context, sink Sink[T], cause error) error {
	if cause == nil {
		return sink.Close(ctx)
	}
	if a, ok := sink.(Aborter); ok {
		return a.Abort(ctx, cause)
	}
	return sink.Close(ctx)
}

// Pressured is implemented by sinks that can refuse input. Ready fires when
// the sink can accept at least one more chunk.
type Pressured interface {
	Ready() <-chan struct{}
}

// Deliver writes chunk to sink, suspending on back-pressure until the sink is
// ready again or ctx is done. A sink that returns ErrBackPressure without
// implementing Pressured is treated as failed.
func Deliver[T any](ctx context.Context, sink Sink[T], chunk T) error {
	for {
		if err := ctx.Err(); err != nil {
			return WithKind(err, KindCancelled)
		}
		err := sink.Write(ctx, chunk)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrBackPressure) {
			return err
		}
		p, ok := sink.(Pressured)
		if !ok {
			return errors.Wrap(err, "sink refused input and cannot signal readiness")
		}
		select {
		case <-ctx.Done():
			return WithKind(ctx.Err(), KindCancelled)
		case <-p.Ready():
		}
	}
}

// SourceFunc adapts a function to the Source interface. The function is
// called once per Pull; closeFn may be nil.
type SourceFunc[T any] struct {
	PullFn  func(context.Context) (T, error)
	CloseFn func() error
}

func (s SourceFunc[T]) Pull(ctx context.Context) (T, error) { return s.PullFn(ctx) }

func (s SourceFunc[T]) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// SinkFunc adapts a write function to the Sink interface. CloseFn and
// AbortFn may be nil; without AbortFn an abort falls back to CloseFn.
type SinkFunc[T any] struct {
	WriteFn func(context.Context, T) error
	CloseFn func(context.Context) error
	AbortFn func(context.Context, error) error
}

func (s SinkFunc[T]) Write(ctx context.Context, chunk T) error { return s.WriteFn(ctx, chunk) }

func (s SinkFunc[T]) Close(ctx context.Context) error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn(ctx)
}

func (s SinkFunc[T]) Abort(ctx context.Context, err error) error {
	if s.AbortFn == nil {
		return s.Close(ctx)
	}
	return s.AbortFn(ctx, err)
}
