package core

import (
	"context"
)

func fromSlice[T any](items []T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for _, item := range items {
				if !Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

func fromResults[T any](results ...Result[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for _, res := range results {
				if !Send(ctx, out, res) {
					return
				}
			}
		}()
		return out
	})
}

func values[T any](results []Result[T]) []T {
	var out []T
	for _, res := range results {
		if res.IsValue() {
			out = append(out, res.Value())
		}
	}
	return out
}
