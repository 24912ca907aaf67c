// Package parallel runs chunk conversions concurrently without giving up
// ordering or fail-fast behavior.
package parallel

import (
	"context"

	"github.com/lguimbarda/chunkflow/flow/core"
)

type outcome[OUT any] struct {
	res  core.Result[OUT]
	skip bool
}

// Ordered applies c to up to n chunks at once and emits the results in input
// order. The first error, from c or from upstream, is emitted in its chunk's
// place and ends the stream: no later result follows it, even one already
// computed. Sentinels keep their position. If n <= 0, defaults to 1 worker.
func Ordered[IN, OUT any](n int, c core.Converter[IN, OUT]) core.Transmitter[IN, OUT] {
	if n <= 0 {
		n = 1
	}

	return core.Transmit(func(ctx context.Context, in <-chan core.Result[IN]) <-chan core.Result[OUT] {
		out := make(chan core.Result[OUT])

		go func() {
			defer close(out)
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			// slots are handed over in input order; each is filled once
			pending := make(chan chan outcome[OUT], n)
			sem := make(chan struct{}, n)

			go func() {
				defer close(pending)
				for res := range in {
					slot := make(chan outcome[OUT], 1)
					select {
					case pending <- slot:
					case <-ctx.Done():
						for range in {
						}
						return
					}
					switch {
					case res.IsError():
						slot <- outcome[OUT]{res: core.Err[OUT](res.Error())}
					case res.IsSentinel():
						slot <- outcome[OUT]{res: core.Sentinel[OUT](res.Sentinel())}
					default:
						select {
						case sem <- struct{}{}:
						case <-ctx.Done():
							slot <- outcome[OUT]{skip: true}
							continue
						}
						go func(v IN) {
							defer func() { <-sem }()
							slot <- convert(ctx, c, v)
						}(res.Value())
					}
				}
			}()

			for slot := range pending {
				var o outcome[OUT]
				select {
				case o = <-slot:
				case <-ctx.Done():
					return
				}
				if o.skip {
					continue
				}
				if !core.Send(ctx, out, o.res) || o.res.IsError() {
					return
				}
			}
		}()

		return out
	})
}

func convert[IN, OUT any](ctx context.Context, c core.Converter[IN, OUT], v IN) (o outcome[OUT]) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome[OUT]{res: core.Err[OUT](core.NewPanicError(r))}
		}
	}()
	res, emit, err := c(ctx, v)
	switch {
	case err != nil:
		return outcome[OUT]{res: core.Err[OUT](err)}
	case !emit:
		return outcome[OUT]{skip: true}
	default:
		return outcome[OUT]{res: core.Ok(res)}
	}
}
