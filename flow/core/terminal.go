package core

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Terminal functions consume a stream and produce a final result. Each one
// cancels production as soon as it returns, so an early error or an early
// answer stops every upstream stage.

// ErrEmptyStream is returned by First when the stream produced no value.
var ErrEmptyStream = errors.New("stream is empty")

// Slice collects every value, stopping at the first error.
func Slice[OUT any](ctx context.Context, in Stream[OUT]) ([]OUT, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result []OUT
	for res := range in.Emit(ctx) {
		if res.IsError() {
			return nil, res.Error()
		}
		if res.IsValue() {
			result = append(result, res.Value())
		}
	}
	return result, nil
}

// First returns the first value from the stream.
func First[OUT any](ctx context.Context, in Stream[OUT]) (OUT, error) {
	var zero OUT

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range in.Emit(ctx) {
		switch {
		case res.IsError():
			return zero, res.Error()
		case res.IsValue():
			return res.Value(), nil
		}
	}
	return zero, ErrEmptyStream
}

// Run executes the stream for side effects only.
func Run[OUT any](ctx context.Context, in Stream[OUT]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range in.Emit(ctx) {
		if res.IsError() {
			return res.Error()
		}
	}
	return nil
}

// Drain writes every value of the stream into sink, in order, honouring the
// sink's back-pressure. The sink is closed when the stream ends cleanly and
// aborted otherwise; the first error (from the stream, a write, or the
// finishing call) is returned and stops production.
func Drain[T any](ctx context.Context, in Stream[T], sink Sink[T]) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if ferr := Finish(context.WithoutCancel(ctx), sink, err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	for res := range in.Emit(ctx) {
		if res.IsError() {
			return res.Error()
		}
		if !res.IsValue() {
			continue
		}
		if err := Deliver(ctx, sink, res.Value()); err != nil {
			return err
		}
	}
	return ctx.Err()
}
