package flowerrors

import (
	"context"
	"sync/atomic"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// relay is the loop shared by the operators below: each result is passed to
// step, which returns what to forward and whether to forward it at all.
func relay[IN, OUT any](step func(core.Result[IN]) (core.Result[OUT], bool, bool)) core.Transmitter[IN, OUT] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[IN]) <-chan core.Result[OUT] {
		out := make(chan core.Result[OUT])

		go func() {
			defer close(out)

			for res := range in {
				if ctx.Err() != nil {
					return
				}
				next, forward, stop := step(res)
				if forward && !core.Send(ctx, out, next) {
					return
				}
				if stop {
					return
				}
			}
		}()

		return out
	})
}

// OnError creates a Transformer that calls a handler function when an error occurs.
// The handler is called for side effects; the error still passes through the stream.
func OnError[T any](handler func(error)) core.Transformer[T, T] {
	return relay(func(res core.Result[T]) (core.Result[T], bool, bool) {
		if res.IsError() {
			handler(res.Error())
		}
		return res, true, false
	})
}

// CatchError creates a Transformer that catches errors matching a predicate and handles them.
// If the handler returns a value, it replaces the error. If the handler returns an error,
// that error propagates. Non-matching errors pass through unchanged.
func CatchError[T any](predicate func(error) bool, handler func(error) (T, error)) core.Transformer[T, T] {
	return relay(func(res core.Result[T]) (core.Result[T], bool, bool) {
		if !res.IsError() || !predicate(res.Error()) {
			return res, true, false
		}
		value, err := handler(res.Error())
		if err != nil {
			return core.Err[T](err), true, false
		}
		return core.Ok(value), true, false
	})
}

// CatchKind is CatchError for every error of kind k.
func CatchKind[T any](k Kind, handler func(error) (T, error)) core.Transformer[T, T] {
	return CatchError(func(err error) bool { return core.KindOf(err) == k }, handler)
}

// FilterErrors creates a Transformer that drops errors matching a predicate.
// Non-matching errors pass through.
func FilterErrors[T any](predicate func(error) bool) core.Transformer[T, T] {
	return relay(func(res core.Result[T]) (core.Result[T], bool, bool) {
		return res, !res.IsError() || !predicate(res.Error()), false
	})
}

// IgnoreErrors creates a Transformer that drops all error results.
// Only values and sentinels pass through.
func IgnoreErrors[T any]() core.Transformer[T, T] {
	return FilterErrors[T](func(error) bool { return true })
}

// MapErrors creates a Transformer that transforms errors using a mapping function.
// Values and sentinels pass through unchanged.
func MapErrors[T any](mapper func(error) error) core.Transformer[T, T] {
	return relay(func(res core.Result[T]) (core.Result[T], bool, bool) {
		if res.IsError() {
			return core.Err[T](mapper(res.Error())), true, false
		}
		return res, true, false
	})
}

// CountErrors creates a Transformer that adds the number of errors seen to counter.
// Errors still pass through the stream.
func CountErrors[T any](counter *atomic.Int64) core.Transformer[T, T] {
	return relay(func(res core.Result[T]) (core.Result[T], bool, bool) {
		if res.IsError() {
			counter.Add(1)
		}
		return res, true, false
	})
}

// ThrowOnError creates a Transformer that ends the stream right after the
// first error, which it forwards.
func ThrowOnError[T any]() core.Transformer[T, T] {
	return relay(func(res core.Result[T]) (core.Result[T], bool, bool) {
		return res, true, res.IsError()
	})
}

// Materialized holds either a value or the error that replaced it.
type Materialized[T any] struct {
	Value   T
	Err     error
	IsValue bool
}

// Materialize turns every value and error into a Materialized value so
// downstream stages can handle both uniformly.
func Materialize[T any]() core.Transformer[T, Materialized[T]] {
	return relay(func(res core.Result[T]) (core.Result[Materialized[T]], bool, bool) {
		switch {
		case res.IsSentinel():
			return core.Sentinel[Materialized[T]](res.Sentinel()), true, false
		case res.IsError():
			return core.Ok(Materialized[T]{Err: res.Error()}), true, false
		default:
			return core.Ok(Materialized[T]{Value: res.Value(), IsValue: true}), true, false
		}
	})
}

// Dematerialize reverses Materialize.
func Dematerialize[T any]() core.Transformer[Materialized[T], T] {
	return relay(func(res core.Result[Materialized[T]]) (core.Result[T], bool, bool) {
		switch {
		case res.IsSentinel():
			return core.Sentinel[T](res.Sentinel()), true, false
		case res.IsError():
			return core.Err[T](res.Error()), true, false
		case res.Value().IsValue:
			return core.Ok(res.Value().Value), true, false
		default:
			return core.Err[T](res.Value().Err), true, false
		}
	})
}
