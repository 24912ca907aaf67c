package filter

import (
	"context"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Take passes through the first n chunks and then ends the stream. Inside a
// pipeline the stages feeding it are stopped and complete normally.
// If n <= 0, the stream is empty.
func Take[T any](n int) core.Transmitter[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])
		go func() {
			defer close(out)
			if n <= 0 {
				return
			}

			count := 0
			for res := range in {
				if !core.Send(ctx, out, res) {
					return
				}
				// only values count towards n
				if res.IsValue() {
					count++
					if count >= n {
						return
					}
				}
			}
		}()
		return out
	})
}

// TakeWhile passes chunks through while predicate holds and ends the stream
// at the first chunk that fails it.
func TakeWhile[T any](predicate func(T) bool) core.Transmitter[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])
		go func() {
			defer close(out)
			for res := range in {
				if res.IsValue() && !predicate(res.Value()) {
					return
				}
				if !core.Send(ctx, out, res) {
					return
				}
			}
		}()
		return out
	})
}

// Skip drops the first n chunks and passes the rest.
func Skip[T any](n int) core.Transmitter[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])
		go func() {
			defer close(out)
			skipped := 0
			for res := range in {
				if res.IsValue() && skipped < n {
					skipped++
					continue
				}
				if !core.Send(ctx, out, res) {
					return
				}
			}
		}()
		return out
	})
}
