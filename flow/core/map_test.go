package core

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"
)

func TestApplyOptions(t *testing.T) {
	tests := []struct {
		name           string
		opts           []TransformOption
		wantBufferSize int
	}{
		{name: "default config", opts: nil, wantBufferSize: DefaultBufferSize},
		{name: "custom buffer size", opts: []TransformOption{WithBufferSize(128)}, wantBufferSize: 128},
		{name: "zero buffer size (unbuffered)", opts: []TransformOption{WithBufferSize(0)}, wantBufferSize: 0},
		{name: "negative clamps to zero", opts: []TransformOption{WithBufferSize(-4)}, wantBufferSize: 0},
		{name: "multiple options last wins", opts: []TransformOption{WithBufferSize(32), WithBufferSize(256)}, wantBufferSize: 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := applyOptions(tt.opts...)
			if cfg.BufferSize != tt.wantBufferSize {
				t.Errorf("BufferSize = %d, want %d", cfg.BufferSize, tt.wantBufferSize)
			}
		})
	}
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	upper := Map(func(s string) (string, error) { return strings.ToUpper(s), nil })

	got := values(upper.Apply(ctx, fromSlice([]string{"a", "b", "c"})).Collect(ctx))
	if want := []string{"A", "B", "C"}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMapErrorsAndSentinelsPassThrough(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	double := Map(func(n int) (int, error) { return n * 2, nil })

	results := double.Apply(ctx, fromResults(Ok(1), Err[int](boom), Sentinel[int](errors.New("mark")), Ok(3))).Collect(ctx)
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if results[0].Value() != 2 || results[3].Value() != 6 {
		t.Errorf("values = %d, %d; want 2, 6", results[0].Value(), results[3].Value())
	}
	if !errors.Is(results[1].Error(), boom) {
		t.Errorf("error result = %v, want boom", results[1].Error())
	}
	if !results[2].IsSentinel() {
		t.Error("sentinel not preserved")
	}
}

func TestMapRecoversPanics(t *testing.T) {
	ctx := context.Background()
	explode := Map(func(n int) (int, error) {
		if n == 2 {
			panic("two")
		}
		return n, nil
	})

	results := explode.Apply(ctx, fromSlice([]int{1, 2, 3})).Collect(ctx)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	var p ErrPanic
	if !errors.As(results[1].Error(), &p) {
		t.Errorf("results[1] = %v, want ErrPanic", results[1].Error())
	}
}

func TestFlatMap(t *testing.T) {
	ctx := context.Background()
	split := FlatMap(func(s string) ([]string, error) { return strings.Split(s, ","), nil })

	got := values(split.Apply(ctx, fromSlice([]string{"a,b", "c", "d,e,f"})).Collect(ctx))
	if want := []string{"a", "b", "c", "d", "e", "f"}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	parse := Convert(func(_ context.Context, s string) (int, bool, error) {
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		return n, true, err
	})

	results := parse.Apply(ctx, fromSlice([]string{"1", "", "x", "3"})).Collect(ctx)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (empty chunk dropped)", len(results))
	}
	if results[0].Value() != 1 || results[2].Value() != 3 {
		t.Errorf("values out of order: %v", values(results))
	}
	if !results[1].IsError() {
		t.Error("conversion error was not reported in place of the chunk")
	}
}

func TestConvertStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	counter := Convert(func(_ context.Context, n int) (int, bool, error) {
		seen++
		return n, true, nil
	})

	items := make([]int, 1000)
	ch := counter.ApplyWith(ctx, fromSlice(items), WithBufferSize(0)).Emit(ctx)
	<-ch
	cancel()
	for range ch {
	}
	if seen >= len(items) {
		t.Errorf("converted all %d chunks after cancellation", seen)
	}
}
