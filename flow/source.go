package flow

import (
	"context"
	"iter"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// FromSlice creates a Stream that emits each element from the given slice.
// The stream completes after all elements have been emitted.
// Uses buffered channels to reduce goroutine synchronization overhead.
func FromSlice[T any](items []T) Stream[T] {
	const maxBufferSize = 512

	return Emit(func(ctx context.Context) <-chan Result[T] {
		// For small slices, use a fully-buffered channel (no goroutine needed)
		if len(items) <= maxBufferSize {
			out := make(chan Result[T], len(items))
			for _, item := range items {
				out <- Ok(item)
			}
			close(out)
			return out
		}

		out := make(chan Result[T], maxBufferSize)
		go func() {
			defer close(out)
			for _, item := range items {
				if !core.Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

// FromChannel creates a Stream that emits values received from the given channel.
// The stream completes when the input channel is closed.
// The caller is responsible for closing the input channel.
func FromChannel[T any](ch <-chan T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok {
						return
					}
					if !core.Send(ctx, out, Ok(item)) {
						return
					}
				}
			}
		}()
		return out
	})
}

// FromIter creates a Stream from an iterator sequence.
// The stream completes when the iterator is exhausted.
func FromIter[T any](seq iter.Seq[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for item := range seq {
				if !core.Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

// Empty creates a Stream that emits no values and completes immediately.
func Empty[T any]() Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		close(out)
		return out
	})
}

// Once creates a Stream that emits a single value and then completes.
func Once[T any](value T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T], 1)
		out <- Ok(value)
		close(out)
		return out
	})
}

// Generate creates a Stream that lazily generates values using the provided function.
// The function should return the next value and true to continue, or zero value and
// false to signal completion. An error is emitted and ends the stream.
func Generate[T any](fn func() (T, bool, error)) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for {
				value, ok, err := fn()
				if err != nil {
					core.Send(ctx, out, Err[T](err))
					return
				}
				if !ok {
					return
				}
				if !core.Send(ctx, out, Ok(value)) {
					return
				}
			}
		}()
		return out
	})
}

// FromError creates a Stream that immediately emits an error and completes.
func FromError[T any](err error) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			core.Send(ctx, out, Err[T](err))
		}()
		return out
	})
}

// Defer creates a Stream lazily, calling the factory function each time
// the stream is subscribed to. This allows for late binding of stream creation.
func Defer[T any](factory func() Stream[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		return factory().Emit(ctx)
	})
}

// Concat creates a Stream that emits all values from the first stream,
// then all values from the second stream, and so on.
func Concat[T any](streams ...Stream[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for _, stream := range streams {
				for res := range stream.Emit(ctx) {
					if !core.Send(ctx, out, res) {
						return
					}
				}
			}
		}()
		return out
	})
}

// FromSource adapts a pull Source into a Stream. The source is pulled one
// chunk at a time, only when the previous chunk has been handed off, and is
// closed on every exit path: end of stream, error or cancellation.
// A pull error is emitted once and ends the stream; so does a Close error
// after an otherwise clean run.
func FromSource[T any](src Source[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			clean := false
			defer func() {
				if err := src.Close(); err != nil && clean {
					core.Send(ctx, out, Err[T](errors.Wrap(err, "close source")))
				}
			}()

			for {
				if ctx.Err() != nil {
					return
				}
				chunk, err := src.Pull(ctx)
				if errors.Is(err, core.ErrEndOfStream) {
					clean = true
					return
				}
				if err != nil {
					core.Send(ctx, out, Err[T](err))
					return
				}
				if !core.Send(ctx, out, Ok(chunk)) {
					return
				}
			}
		}()
		return out
	})
}

// SliceSource returns a Source that yields items in order and then reports
// end of stream. It is safe for concurrent use.
func SliceSource[T any](items []T) Source[T] {
	return &sliceSource[T]{items: items}
}

type sliceSource[T any] struct {
	mu     sync.Mutex
	items  []T
	next   int
	closed bool
}

func (s *sliceSource[T]) Pull(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, core.WithKind(err, core.KindCancelled)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return zero, errors.New("pull from closed source")
	}
	if s.next >= len(s.items) {
		return zero, core.ErrEndOfStream
	}
	item := s.items[s.next]
	s.next++
	return item, nil
}

func (s *sliceSource[T]) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// FuncSource returns a Source backed by pull and an optional closeFn.
// pull must return core.ErrEndOfStream once exhausted.
func FuncSource[T any](pull func(context.Context) (T, error), closeFn func() error) Source[T] {
	return core.SourceFunc[T]{PullFn: pull, CloseFn: closeFn}
}
