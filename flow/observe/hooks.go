package observe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// WithValueHook attaches a callback for every chunk of type T.
func WithValueHook[T any](ctx context.Context, fn func(T)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnValue: fn})
}

// WithErrorHook attaches a callback for every error in a stream of T.
func WithErrorHook[T any](ctx context.Context, fn func(error)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnError: fn})
}

// Counter counts what passes an observed stream.
type Counter struct {
	values    atomic.Int64
	errors    atomic.Int64
	sentinels atomic.Int64
}

// Values returns the count of chunks.
func (c *Counter) Values() int64 { return c.values.Load() }

// Errors returns the count of errors.
func (c *Counter) Errors() int64 { return c.errors.Load() }

// Sentinels returns the count of sentinels.
func (c *Counter) Sentinels() int64 { return c.sentinels.Load() }

// Total returns the count of all results.
func (c *Counter) Total() int64 { return c.Values() + c.Errors() + c.Sentinels() }

// WithCounter attaches a fresh Counter to ctx for streams of T.
func WithCounter[T any](ctx context.Context) (context.Context, *Counter) {
	c := &Counter{}
	return core.WithHooks(ctx, core.Hooks[T]{
		OnValue:    func(T) { c.values.Add(1) },
		OnError:    func(error) { c.errors.Add(1) },
		OnSentinel: func(error) { c.sentinels.Add(1) },
	}), c
}

// ErrorCollector keeps every error seen by an observed stream.
type ErrorCollector struct {
	mu   sync.Mutex
	errs []error
}

// Errors returns a copy of the collected errors in arrival order.
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// Len returns the number of collected errors.
func (c *ErrorCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// WithErrorCollector attaches a fresh ErrorCollector to ctx for streams of T.
func WithErrorCollector[T any](ctx context.Context) (context.Context, *ErrorCollector) {
	c := &ErrorCollector{}
	return core.WithHooks(ctx, core.Hooks[T]{
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		},
	}), c
}

// WithLogging attaches hooks that log the life of a stream of T under the
// given stage name: start and completion at debug, each chunk at trace and
// each error at warn with its kind.
func WithLogging[T any](ctx context.Context, logger zerolog.Logger, stage string) context.Context {
	log := logger.With().Str("stage", stage).Logger()
	var chunks atomic.Int64

	return core.WithHooks(ctx, core.Hooks[T]{
		OnStart: func() {
			chunks.Store(0)
			log.Debug().Msg("stream started")
		},
		OnValue: func(v T) {
			n := chunks.Add(1)
			log.Trace().Int64("chunk", n).Interface("value", v).Msg("chunk")
		},
		OnError: func(err error) {
			log.Warn().Err(err).Stringer("kind", core.KindOf(err)).Msg("stream error")
		},
		OnComplete: func() {
			log.Debug().Int64("chunks", chunks.Load()).Msg("stream finished")
		},
	})
}
