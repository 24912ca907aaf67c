package core

import (
	"context"
	"iter"
)

// Emitter is a function that produces a channel of results; it implements
// Stream. Emitters answer the question: "How is the stream's data produced?".
type Emitter[OUT any] func(context.Context) <-chan Result[OUT]

func Emit[OUT any](emitter func(context.Context) <-chan Result[OUT]) Emitter[OUT] {
	return emitter
}

func (e Emitter[OUT]) Emit(ctx context.Context) <-chan Result[OUT] {
	return e(ctx)
}

func (e Emitter[OUT]) Collect(ctx context.Context) []Result[OUT] {
	return Collect(ctx, e)
}

func (e Emitter[OUT]) All(ctx context.Context) iter.Seq[Result[OUT]] {
	return All(ctx, e)
}

// Transmitter transforms one channel of results into another; it implements
// Transformer. Transmitters answer: "How is the stream's data transformed?".
type Transmitter[IN, OUT any] func(context.Context, <-chan Result[IN]) <-chan Result[OUT]

func Transmit[IN, OUT any](transmitter func(context.Context, <-chan Result[IN]) <-chan Result[OUT]) Transmitter[IN, OUT] {
	return transmitter
}

func (t Transmitter[IN, OUT]) Apply(_ context.Context, in Stream[IN]) Stream[OUT] {
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		return t(ctx, in.Emit(ctx))
	})
}

// Send delivers res on out unless ctx is done first. It reports whether the
// result was delivered.
func Send[T any](ctx context.Context, out chan<- Result[T], res Result[T]) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- res:
		return true
	}
}

// Observe creates a pass-through Transmitter that invokes the Hooks[T]
// registered on the context for every result it forwards.
func Observe[T any]() Transmitter[T, T] {
	return Transmit(func(ctx context.Context, in <-chan Result[T]) <-chan Result[T] {
		out := make(chan Result[T])
		hooks := newHookInvoker[T](ctx)

		go func() {
			defer close(out)
			hooks.invokeStart()
			defer hooks.invokeComplete()

			for res := range in {
				switch {
				case res.IsValue():
					hooks.invokeValue(res.Value())
				case res.IsError():
					hooks.invokeError(res.Error())
				default:
					hooks.invokeSentinel(res.Sentinel())
				}
				if !Send(ctx, out, res) {
					return
				}
			}
		}()

		return out
	})
}
