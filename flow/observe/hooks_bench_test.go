package observe

import (
	"context"
	"testing"

	"github.com/lguimbarda/chunkflow/flow/core"
)

func fromSlice[T any](items []T) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], len(items))
		go func() {
			defer close(out)
			for _, item := range items {
				if !core.Send(ctx, out, core.Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

func benchmarkData(n int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = i
	}
	return data
}

func BenchmarkObserveNoHooks(b *testing.B) {
	ctx := context.Background()
	for b.Loop() {
		_, _ = core.Slice(ctx, core.Observe[int]().Apply(ctx, fromSlice(benchmarkData(1000))))
	}
}

func BenchmarkObserveWithCounter(b *testing.B) {
	ctx, _ := WithCounter[int](context.Background())
	for b.Loop() {
		_, _ = core.Slice(ctx, core.Observe[int]().Apply(ctx, fromSlice(benchmarkData(1000))))
	}
}

func BenchmarkMeter(b *testing.B) {
	ctx := context.Background()
	for b.Loop() {
		_, _ = core.Slice(ctx, Meter[int](nil).Apply(ctx, fromSlice(benchmarkData(1000))))
	}
}
