// Package core defines the building blocks of a chunk pipeline: results and
// signals, streams and transformers, the Source and Sink contracts, the stage
// state machine and the error taxonomy shared by every other package.
package core

import (
	"context"
	"iter"
)

// Stream is a flow of chunks. It answers the question: "What operations
// will produce the stream's data?". Emit starts production; the returned
// channel is closed once the stream has ended, failed or been cancelled.
type Stream[OUT any] interface {
	Emit(context.Context) <-chan Result[OUT]

	Collect(context.Context) []Result[OUT]
	All(context.Context) iter.Seq[Result[OUT]]
}

// Collect gathers every Result, errors and sentinels included.
func Collect[OUT any](ctx context.Context, stream Stream[OUT]) []Result[OUT] {
	var results []Result[OUT]
	for res := range stream.Emit(ctx) {
		results = append(results, res)
	}
	return results
}

// All returns an iterator over every Result. Breaking out of the loop
// cancels production.
func All[OUT any](ctx context.Context, stream Stream[OUT]) iter.Seq[Result[OUT]] {
	return func(yield func(Result[OUT]) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		for res := range stream.Emit(ctx) {
			if !yield(res) {
				return
			}
		}
	}
}

// Transformer turns a Stream of IN into a Stream of OUT. It answers the
// question: "What operations are being applied to the stream's data?".
type Transformer[IN, OUT any] interface {
	Apply(context.Context, Stream[IN]) Stream[OUT]
}
