package flow_test

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/lguimbarda/chunkflow/flow"
)

func TestThrough(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	double := flow.Map(func(x int) (int, error) { return x * 2, nil })
	addOne := flow.Map(func(x int) (int, error) { return x + 1, nil })

	combined := flow.Through(double, addOne)
	result, err := flow.Slice(ctx, combined.Apply(ctx, flow.FromSlice([]int{1, 2, 3})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// (1*2)+1=3, (2*2)+1=5, (3*2)+1=7
	if expected := []int{3, 5, 7}; !slices.Equal(result, expected) {
		t.Errorf("got %v, want %v", result, expected)
	}
}

func TestChain(t *testing.T) {
	addOne := flow.Map(func(x int) (int, error) { return x + 1, nil })
	square := flow.Map(func(x int) (int, error) { return x * x, nil })

	tests := []struct {
		name         string
		transformers []flow.Transformer[int, int]
		input        []int
		expected     []int
	}{
		{name: "empty chain (identity)", transformers: nil, input: []int{1, 2, 3}, expected: []int{1, 2, 3}},
		{name: "single", transformers: []flow.Transformer[int, int]{addOne}, input: []int{1, 2}, expected: []int{2, 3}},
		{name: "left to right", transformers: []flow.Transformer[int, int]{addOne, square}, input: []int{1, 2}, expected: []int{4, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			got, err := flow.Slice(ctx, flow.Chain(tt.transformers...).Apply(ctx, flow.FromSlice(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPipeUppercaseConcat(t *testing.T) {
	ctx := context.Background()
	upper := flow.Map(func(s string) (string, error) { return strings.ToUpper(s), nil })

	got, err := flow.Slice(ctx, flow.Pipe(ctx, flow.FromSlice([]string{"a", "b", "c"}), upper))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, "") != "ABC" {
		t.Errorf("got %q, want ABC", strings.Join(got, ""))
	}
}

func TestApplyConvert(t *testing.T) {
	ctx := context.Background()
	evens := flow.Convert(func(_ context.Context, n int) (int, bool, error) { return n, n%2 == 0, nil })

	got, err := flow.Slice(ctx, flow.Apply(ctx, flow.FromSlice([]int{1, 2, 3, 4}), flow.Transformer[int, int](evens)))
	if err != nil || !slices.Equal(got, []int{2, 4}) {
		t.Errorf("got %v, %v", got, err)
	}
}
