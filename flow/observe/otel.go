package observe

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Metric names recorded by Instruments.
const (
	MetricChunks = "chunkflow.chunks"
	MetricErrors = "chunkflow.errors"
	MetricBytes  = "chunkflow.bytes"
	MetricStages = "chunkflow.stages"
)

// Instruments are the OpenTelemetry counters chunk streams report to.
type Instruments struct {
	chunks metric.Int64Counter
	errs   metric.Int64Counter
	bytes  metric.Int64Counter
	stages metric.Int64Counter
}

// NewInstruments creates the chunkflow counters on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	chunks, err := meter.Int64Counter(MetricChunks, metric.WithDescription("chunks passed by a stage"))
	if err != nil {
		return nil, errors.Wrap(err, "create chunks counter")
	}
	errs, err := meter.Int64Counter(MetricErrors, metric.WithDescription("errors observed by a stage"))
	if err != nil {
		return nil, errors.Wrap(err, "create errors counter")
	}
	bytes, err := meter.Int64Counter(MetricBytes, metric.WithDescription("payload bytes passed by a stage"), metric.WithUnit("By"))
	if err != nil {
		return nil, errors.Wrap(err, "create bytes counter")
	}
	stages, err := meter.Int64Counter(MetricStages, metric.WithDescription("stages reaching a terminal state"))
	if err != nil {
		return nil, errors.Wrap(err, "create stages counter")
	}
	return &Instruments{chunks: chunks, errs: errs, bytes: bytes, stages: stages}, nil
}

// WithOtelMetrics attaches hooks recording chunk, error and byte counts for
// streams of T, tagged with the stage name. size reports the payload size
// of a chunk and may be nil when bytes are not meaningful.
func WithOtelMetrics[T any](ctx context.Context, inst *Instruments, stage string, size func(T) int) context.Context {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	return core.WithHooks(ctx, core.Hooks[T]{
		OnValue: func(v T) {
			inst.chunks.Add(ctx, 1, attrs)
			if size != nil {
				inst.bytes.Add(ctx, int64(size(v)), attrs)
			}
		},
		OnError: func(err error) {
			inst.errs.Add(ctx, 1, metric.WithAttributes(
				attribute.String("stage", stage),
				attribute.String("kind", core.KindOf(err).String()),
			))
		},
	})
}

// Transitions returns a pipeline observer that counts stages reaching a
// terminal state, tagged with stage name and state.
func (i *Instruments) Transitions(ctx context.Context) func(core.Transition) {
	return func(t core.Transition) {
		if !t.To.Terminal() {
			return
		}
		i.stages.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", t.Stage),
			attribute.String("state", t.To.String()),
		))
	}
}

// ByteLen is a size function for []byte chunks.
func ByteLen(b []byte) int { return len(b) }

// StringLen is a size function for string chunks.
func StringLen(s string) int { return len(s) }
