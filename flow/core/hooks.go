package core

import (
	"context"
)

// Hooks holds typed observation callbacks for streams of T.
// All fields are optional. Hooks run synchronously on the stage goroutine,
// so they should be fast.
type Hooks[T any] struct {
	OnStart    func()      // stream begins processing
	OnValue    func(T)     // chunk received
	OnError    func(error) // error received
	OnSentinel func(error) // sentinel received
	OnComplete func()      // stream finished, also on cancellation
}

type hooksKey[T any] struct{}

// WithHooks attaches typed hooks to the context. Multiple calls compose in
// FIFO order.
//
// Example:
//
//	ctx := core.WithHooks(ctx, core.Hooks[string]{
//	    OnValue: func(s string) { log.Printf("chunk: %q", s) },
//	})
func WithHooks[T any](ctx context.Context, hooks Hooks[T]) context.Context {
	if ctx == nil {
		panic("nil context")
	}
	existing := hookSets[T](ctx)
	sets := make([]*Hooks[T], len(existing), len(existing)+1)
	copy(sets, existing)
	sets = append(sets, &hooks)
	return context.WithValue(ctx, hooksKey[T]{}, sets)
}

func hookSets[T any](ctx context.Context) []*Hooks[T] {
	if ctx == nil {
		return nil
	}
	sets, _ := ctx.Value(hooksKey[T]{}).([]*Hooks[T])
	return sets
}

// WithSafeHooks attaches hooks whose panics are recovered and passed to
// panicHandler (or discarded when it is nil) instead of crashing the stage.
func WithSafeHooks[T any](ctx context.Context, hooks Hooks[T], panicHandler func(any)) context.Context {
	if panicHandler == nil {
		panicHandler = func(any) {}
	}
	guard := func() {
		if r := recover(); r != nil {
			panicHandler(r)
		}
	}

	var safe Hooks[T]
	if fn := hooks.OnStart; fn != nil {
		safe.OnStart = func() { defer guard(); fn() }
	}
	if fn := hooks.OnValue; fn != nil {
		safe.OnValue = func(v T) { defer guard(); fn(v) }
	}
	if fn := hooks.OnError; fn != nil {
		safe.OnError = func(err error) { defer guard(); fn(err) }
	}
	if fn := hooks.OnSentinel; fn != nil {
		safe.OnSentinel = func(err error) { defer guard(); fn(err) }
	}
	if fn := hooks.OnComplete; fn != nil {
		safe.OnComplete = func() { defer guard(); fn() }
	}
	return WithHooks(ctx, safe)
}

// hookInvoker snapshots the hooks for one stream run.
type hookInvoker[T any] struct {
	sets []*Hooks[T]
}

func newHookInvoker[T any](ctx context.Context) hookInvoker[T] {
	return hookInvoker[T]{sets: hookSets[T](ctx)}
}

func (h hookInvoker[T]) invokeStart() {
	for _, hooks := range h.sets {
		if hooks.OnStart != nil {
			hooks.OnStart()
		}
	}
}

func (h hookInvoker[T]) invokeValue(v T) {
	for _, hooks := range h.sets {
		if hooks.OnValue != nil {
			hooks.OnValue(v)
		}
	}
}

func (h hookInvoker[T]) invokeError(err error) {
	for _, hooks := range h.sets {
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
	}
}

func (h hookInvoker[T]) invokeSentinel(err error) {
	for _, hooks := range h.sets {
		if hooks.OnSentinel != nil {
			hooks.OnSentinel(err)
		}
	}
}

func (h hookInvoker[T]) invokeComplete() {
	for _, hooks := range h.sets {
		if hooks.OnComplete != nil {
			hooks.OnComplete()
		}
	}
}
