package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// DefaultBufferSize is the capacity of the channel joining two stages.
// A capacity of one keeps at most one chunk in flight per link, so a slow
// sink holds back every producer behind it.
const DefaultBufferSize = 1

type options struct {
	bufferSize int
	logger     zerolog.Logger
	observers  []func(core.Transition)
}

// Option configures a pipeline.
type Option func(*options)

// WithBufferSize sets the capacity of the channels joining stages.
// Zero makes every hand-off synchronous.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size < 0 {
			size = 0
		}
		o.bufferSize = size
	}
}

// WithLogger sets the logger used for stage transitions and failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver registers fn to receive every stage transition of every run.
func WithObserver(fn func(core.Transition)) Option {
	return func(o *options) {
		o.observers = append(o.observers, fn)
	}
}

func applyOptions(opts []Option) options {
	o := options{bufferSize: DefaultBufferSize, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
