// Package observe provides pass-through stages and hooks for watching chunks
// flow: counters, timing, progress, structured logging and OpenTelemetry
// metrics. None of them change the data they see.
package observe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// tap forwards every result unchanged after handing it to inspect. done runs
// once the input closes or ctx is cancelled.
func tap[T any](start func(), inspect func(core.Result[T]), done func()) core.Transformer[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])
		go func() {
			defer close(out)
			if start != nil {
				start()
			}
			if done != nil {
				defer done()
			}

			for res := range in {
				inspect(res)
				if !core.Send(ctx, out, res) {
					return
				}
			}
		}()
		return out
	})
}

// StreamMetrics holds statistics about a stream's execution.
type StreamMetrics struct {
	// Counts
	TotalItems    int64
	ValueCount    int64
	ErrorCount    int64
	SentinelCount int64

	// Timing
	StartTime     time.Time
	EndTime       time.Time
	FirstItemTime time.Time
	LastItemTime  time.Time

	// Throughput
	ItemsPerSecond float64

	// Latency (time between items)
	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
}

// Duration returns how long the stream ran.
func (m StreamMetrics) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// Meter creates a Transformer that collects metrics about the stream.
// The onComplete callback is called with the final metrics when the stream completes.
func Meter[T any](onComplete func(StreamMetrics)) core.Transformer[T, T] {
	return MeterWithClock[T](clockz.RealClock, onComplete)
}

// MeterWithClock is Meter reading time from clock.
func MeterWithClock[T any](clock clockz.Clock, onComplete func(StreamMetrics)) core.Transformer[T, T] {
	var (
		metrics      StreamMetrics
		lastItemTime time.Time
		totalLatency time.Duration
		latencyCount int64
	)

	start := func() {
		metrics = StreamMetrics{StartTime: clock.Now(), MinLatency: time.Duration(1<<63 - 1)}
		lastItemTime = time.Time{}
		totalLatency, latencyCount = 0, 0
	}

	inspect := func(res core.Result[T]) {
		now := clock.Now()
		metrics.TotalItems++
		if metrics.TotalItems == 1 {
			metrics.FirstItemTime = now
		}
		metrics.LastItemTime = now

		if !lastItemTime.IsZero() {
			latency := now.Sub(lastItemTime)
			metrics.MinLatency = min(metrics.MinLatency, latency)
			metrics.MaxLatency = max(metrics.MaxLatency, latency)
			totalLatency += latency
			latencyCount++
		}
		lastItemTime = now

		switch {
		case res.IsError():
			metrics.ErrorCount++
		case res.IsSentinel():
			metrics.SentinelCount++
		default:
			metrics.ValueCount++
		}
	}

	done := func() {
		metrics.EndTime = clock.Now()
		if latencyCount == 0 {
			metrics.MinLatency = 0
		}
		if metrics.TotalItems > 0 {
			if d := metrics.Duration().Seconds(); d > 0 {
				metrics.ItemsPerSecond = float64(metrics.TotalItems) / d
			}
			if latencyCount > 0 {
				metrics.AvgLatency = totalLatency / time.Duration(latencyCount)
			}
		}
		if onComplete != nil {
			onComplete(metrics)
		}
	}

	return tap(start, inspect, done)
}

// LiveMetrics holds real-time metrics that can be read concurrently.
type LiveMetrics struct {
	totalItems    atomic.Int64
	valueCount    atomic.Int64
	errorCount    atomic.Int64
	sentinelCount atomic.Int64
	startTime     atomic.Int64 // Unix nano
	lastItemTime  atomic.Int64 // Unix nano
}

// TotalItems returns the total number of items processed.
func (m *LiveMetrics) TotalItems() int64 { return m.totalItems.Load() }

// ValueCount returns the number of successful values.
func (m *LiveMetrics) ValueCount() int64 { return m.valueCount.Load() }

// ErrorCount returns the number of errors.
func (m *LiveMetrics) ErrorCount() int64 { return m.errorCount.Load() }

// SentinelCount returns the number of sentinels.
func (m *LiveMetrics) SentinelCount() int64 { return m.sentinelCount.Load() }

// StartTime returns when the stream started.
func (m *LiveMetrics) StartTime() time.Time {
	return time.Unix(0, m.startTime.Load())
}

// LastItemTime returns when the last item was processed.
func (m *LiveMetrics) LastItemTime() time.Time {
	return time.Unix(0, m.lastItemTime.Load())
}

// Duration returns how long the stream has been running.
func (m *LiveMetrics) Duration() time.Duration {
	start := m.startTime.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// ItemsPerSecond returns the current throughput.
func (m *LiveMetrics) ItemsPerSecond() float64 {
	duration := m.Duration().Seconds()
	if duration <= 0 {
		return 0
	}
	return float64(m.TotalItems()) / duration
}

// MeterLive creates a Transformer that updates live metrics that can be
// read concurrently while the stream is running.
func MeterLive[T any](metrics *LiveMetrics) core.Transformer[T, T] {
	start := func() { metrics.startTime.Store(time.Now().UnixNano()) }
	inspect := func(res core.Result[T]) {
		metrics.totalItems.Add(1)
		metrics.lastItemTime.Store(time.Now().UnixNano())
		switch {
		case res.IsError():
			metrics.errorCount.Add(1)
		case res.IsSentinel():
			metrics.sentinelCount.Add(1)
		default:
			metrics.valueCount.Add(1)
		}
	}
	return tap(start, inspect, nil)
}

// ProgressReport holds information for progress reporting.
type ProgressReport struct {
	Processed int64
	Total     int64 // -1 if unknown
	Percent   float64
	Elapsed   time.Duration
	Remaining time.Duration // Estimated, -1 if unknown
}

// Progress creates a Transformer that reports how many chunks have passed.
// If total is known, pass it; otherwise pass -1. onProgress is called at most
// once per interval (every chunk when interval is 0) and once more at the end.
func Progress[T any](total int64, interval time.Duration, onProgress func(ProgressReport)) core.Transformer[T, T] {
	var processed int64
	var startTime, lastReport time.Time

	report := func() {
		elapsed := time.Since(startTime)
		r := ProgressReport{Processed: processed, Total: total, Elapsed: elapsed, Remaining: -1}
		if total > 0 {
			r.Percent = float64(processed) / float64(total) * 100
			if processed > 0 && elapsed > 0 {
				rate := float64(processed) / elapsed.Seconds()
				r.Remaining = time.Duration(float64(total-processed) / rate * float64(time.Second))
			}
		}
		if onProgress != nil {
			onProgress(r)
		}
	}

	start := func() {
		processed = 0
		startTime = time.Now()
		lastReport = startTime
	}
	inspect := func(res core.Result[T]) {
		if !res.IsValue() {
			return
		}
		processed++
		if time.Since(lastReport) >= interval {
			report()
			lastReport = time.Now()
		}
	}
	return tap(start, inspect, report)
}

// Spy creates a Transformer that allows inspection of all results, errors
// and sentinels included, without modification.
func Spy[T any](inspector func(core.Result[T])) core.Transformer[T, T] {
	return tap(nil, inspector, nil)
}
