package core

import (
	"context"
	"slices"
	"testing"
)

func TestHooksComposeFIFO(t *testing.T) {
	var order []string
	ctx := WithHooks(context.Background(), Hooks[int]{OnValue: func(int) { order = append(order, "first") }})
	ctx = WithHooks(ctx, Hooks[int]{OnValue: func(int) { order = append(order, "second") }})

	newHookInvoker[int](ctx).invokeValue(1)
	if want := []string{"first", "second"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestHooksAreTyped(t *testing.T) {
	called := false
	ctx := WithHooks(context.Background(), Hooks[string]{OnValue: func(string) { called = true }})

	newHookInvoker[int](ctx).invokeValue(1)
	if called {
		t.Error("string hooks fired for an int stream")
	}
}

func TestHooksDoNotLeakToParent(t *testing.T) {
	parent := WithHooks(context.Background(), Hooks[int]{})
	_ = WithHooks(parent, Hooks[int]{})

	if n := len(hookSets[int](parent)); n != 1 {
		t.Errorf("parent has %d hook sets, want 1", n)
	}
}

func TestWithSafeHooksRecovers(t *testing.T) {
	var recovered any
	ctx := WithSafeHooks(context.Background(), Hooks[int]{
		OnValue: func(int) { panic("hook") },
	}, func(r any) { recovered = r })

	results := Observe[int]().Apply(ctx, fromSlice([]int{1, 2})).Collect(ctx)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
	if recovered != "hook" {
		t.Errorf("recovered = %v, want hook", recovered)
	}
}
