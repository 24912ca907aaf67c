package core

import (
	"context"
)

// DefaultBufferSize is the default capacity of a stage's output channel.
// A bounded buffer is what turns a slow consumer into back-pressure on its
// producer: once it is full, the producer blocks on its next send.
const DefaultBufferSize = 64

// TransformConfig holds configuration options for transform operations.
type TransformConfig struct {
	BufferSize int
}

// TransformOption is a functional option for configuring transforms.
type TransformOption func(*TransformConfig)

// WithBufferSize sets the buffer size for the transform's output channel.
// Use 0 for unbuffered (lock-step) operation.
func WithBufferSize(size int) TransformOption {
	return func(c *TransformConfig) {
		c.BufferSize = size
	}
}

func applyOptions(opts ...TransformOption) TransformConfig {
	cfg := TransformConfig{BufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	return cfg
}

// Mapper maps a Result of type IN to a Result of type OUT (1:1).
// It answers the question: "What is done to each item in the flow?"
type Mapper[IN, OUT any] func(Result[IN]) (Result[OUT], error)

// Map creates a Mapper from a transformation function. Errors returned by
// mapFunc and panics inside it become error Results.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return func(res Result[IN]) (out Result[OUT], err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = Err[OUT](NewPanicError(r)), nil
			}
		}()

		if res.IsError() {
			return Err[OUT](res.Error()), nil
		}
		if res.IsSentinel() {
			return Sentinel[OUT](res.Sentinel()), nil
		}
		mapped, err := mapFunc(res.Value())
		if err != nil {
			return Err[OUT](err), nil
		}
		return Ok(mapped), nil
	}
}

// Apply transforms a stream using this Mapper with default configuration.
func (m Mapper[IN, OUT]) Apply(ctx context.Context, s Stream[IN]) Stream[OUT] {
	return m.ApplyWith(ctx, s)
}

// ApplyWith transforms a stream using this Mapper with custom options.
func (m Mapper[IN, OUT]) ApplyWith(_ context.Context, s Stream[IN], opts ...TransformOption) Stream[OUT] {
	cfg := applyOptions(opts...)
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		out := make(chan Result[OUT], cfg.BufferSize)
		go func() {
			defer close(out)
			for resIn := range s.Emit(ctx) {
				resOut, err := m(resIn)
				if err != nil {
					resOut = Err[OUT](err)
				}
				if !Send(ctx, out, resOut) {
					return
				}
			}
		}()
		return out
	})
}

// FlatMapper maps a Result of type IN to zero or more Results of type OUT.
// It answers the question: "How are items in the flow reduced or expanded?"
type FlatMapper[IN, OUT any] func(Result[IN]) ([]Result[OUT], error)

// FlatMap creates a FlatMapper from a function returning a slice.
func FlatMap[IN, OUT any](flatMapFunc func(IN) ([]OUT, error)) FlatMapper[IN, OUT] {
	return func(res Result[IN]) (outs []Result[OUT], err error) {
		defer func() {
			if r := recover(); r != nil {
				outs, err = []Result[OUT]{Err[OUT](NewPanicError(r))}, nil
			}
		}()

		if res.IsError() {
			return []Result[OUT]{Err[OUT](res.Error())}, nil
		}
		if res.IsSentinel() {
			return []Result[OUT]{Sentinel[OUT](res.Sentinel())}, nil
		}
		values, err := flatMapFunc(res.Value())
		if err != nil {
			return []Result[OUT]{Err[OUT](err)}, nil
		}
		results := make([]Result[OUT], len(values))
		for i, v := range values {
			results[i] = Ok(v)
		}
		return results, nil
	}
}

// Apply transforms a stream using this FlatMapper with default configuration.
func (fm FlatMapper[IN, OUT]) Apply(ctx context.Context, s Stream[IN]) Stream[OUT] {
	return fm.ApplyWith(ctx, s)
}

// ApplyWith transforms a stream using this FlatMapper with custom options.
func (fm FlatMapper[IN, OUT]) ApplyWith(_ context.Context, s Stream[IN], opts ...TransformOption) Stream[OUT] {
	cfg := applyOptions(opts...)
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		out := make(chan Result[OUT], cfg.BufferSize)
		go func() {
			defer close(out)
			for resIn := range s.Emit(ctx) {
				resOuts, err := fm(resIn)
				if err != nil {
					resOuts = []Result[OUT]{Err[OUT](err)}
				}
				for _, resOut := range resOuts {
					if !Send(ctx, out, resOut) {
						return
					}
				}
			}
		}()
		return out
	})
}

// Converter is a zero-or-one transform: each input chunk yields at most one
// output chunk. Returning emit=false drops the chunk; returning an error
// reports it downstream in place of the chunk, it is never dropped silently.
// The context lets effectful conversions abort their external work.
type Converter[IN, OUT any] func(ctx context.Context, in IN) (out OUT, emit bool, err error)

// Convert creates a Converter from fn.
func Convert[IN, OUT any](fn func(ctx context.Context, in IN) (OUT, bool, error)) Converter[IN, OUT] {
	return fn
}

func (c Converter[IN, OUT]) call(ctx context.Context, in IN) (out OUT, emit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero OUT
			out, emit, err = zero, false, NewPanicError(r)
		}
	}()
	return c(ctx, in)
}

// Apply transforms a stream using this Converter with default configuration.
func (c Converter[IN, OUT]) Apply(ctx context.Context, s Stream[IN]) Stream[OUT] {
	return c.ApplyWith(ctx, s)
}

// ApplyWith transforms a stream using this Converter with custom options.
// Chunks are converted one at a time, so output order is input order.
func (c Converter[IN, OUT]) ApplyWith(_ context.Context, s Stream[IN], opts ...TransformOption) Stream[OUT] {
	cfg := applyOptions(opts...)
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		out := make(chan Result[OUT], cfg.BufferSize)
		go func() {
			defer close(out)
			for res := range s.Emit(ctx) {
				var next Result[OUT]
				switch {
				case res.IsError():
					next = Err[OUT](res.Error())
				case res.IsSentinel():
					next = Sentinel[OUT](res.Sentinel())
				default:
					v, emit, err := c.call(ctx, res.Value())
					if err != nil {
						next = Err[OUT](err)
					} else if !emit {
						continue
					} else {
						next = Ok(v)
					}
				}
				if !Send(ctx, out, next) {
					return
				}
			}
		}()
		return out
	})
}
