// Package pipeline wires a source, a chain of transforms and a sink into a
// runnable unit with fail-fast error handling.
//
// Each stage runs in its own goroutine and hands chunks to the next one over
// a bounded channel, so chunks reach the sink in source order and no faster
// than the sink accepts them. Every stage moves through the states
// idle -> active -> completed | errored exactly once per run.
//
// When a stage fails, the stages feeding it are cancelled and the error
// travels downstream behind the chunks already emitted, so the sink sees every
// chunk produced before the failure and then the failure itself:
//
//	report, err := pipeline.From("source", flow.FromSlice([]string{"a", "b", "c"})).
//		Through("upper", codec.Uppercase()).
//		Into("sink", sink.Concat()).
//		Run(ctx)
package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/tomb.v2"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
)

// Pipeline is a source followed by zero or more transforms, producing T.
// It is a description: nothing runs until Into(...).Run or Start.
// A Pipeline can be run any number of times if its source can.
type Pipeline[T any] struct {
	names []string
	opts  []Option
	build func(r *run, down context.Context) <-chan core.Result[T]
}

// From starts a pipeline whose source stage emits stream.
func From[T any](name string, stream core.Stream[T], opts ...Option) *Pipeline[T] {
	return &Pipeline[T]{
		names: []string{name},
		opts:  opts,
		build: func(r *run, down context.Context) <-chan core.Result[T] {
			return launch(r, 0, down, stream.Emit, nil)
		},
	}
}

// FromSource starts a pipeline whose source stage pulls from src. The source
// is closed before the stage reaches a terminal state.
func FromSource[T any](name string, src core.Source[T], opts ...Option) *Pipeline[T] {
	return From(name, flow.FromSource(src), opts...)
}

// Through appends a transform stage that keeps the chunk type.
func (p *Pipeline[T]) Through(name string, t core.Transformer[T, T]) *Pipeline[T] {
	return Via(p, name, t)
}

// Via appends a transform stage that changes the chunk type.
func Via[IN, OUT any](p *Pipeline[IN], name string, t core.Transformer[IN, OUT]) *Pipeline[OUT] {
	idx := len(p.names)
	return &Pipeline[OUT]{
		names: append(slices.Clone(p.names), name),
		opts:  p.opts,
		build: func(r *run, down context.Context) <-chan core.Result[OUT] {
			ctx, cancel := context.WithCancelCause(down)
			in := p.build(r, ctx)
			open := func(ctx context.Context) <-chan core.Result[OUT] {
				return t.Apply(ctx, core.Emit(func(context.Context) <-chan core.Result[IN] { return in })).Emit(ctx)
			}
			settle := func() {
				for range in {
				}
			}
			return launchWith(r, idx, ctx, cancel, down, open, settle)
		},
	}
}

// Into terminates the pipeline with a sink stage.
func (p *Pipeline[T]) Into(name string, sink core.Sink[T]) *Runnable[T] {
	return &Runnable[T]{pipeline: p, name: name, sink: sink}
}

// Runnable is a complete pipeline: source, transforms and sink.
type Runnable[T any] struct {
	pipeline *Pipeline[T]
	name     string
	sink     core.Sink[T]
}

// Names returns the stage names in pipeline order, sink last.
func (x *Runnable[T]) Names() []string {
	return append(slices.Clone(x.pipeline.names), x.name)
}

// Run executes the pipeline and blocks until every stage is terminal.
// The returned error is the first stage failure, or the cancellation reason.
func (x *Runnable[T]) Run(ctx context.Context) (Report, error) {
	return x.Start(ctx).Wait()
}

// Start launches the pipeline and returns at once.
func (x *Runnable[T]) Start(ctx context.Context) *Execution {
	opts := applyOptions(x.pipeline.opts)
	t, tctx := tomb.WithContext(ctx)
	r := newRun(uuid.NewString(), opts, t, x.Names())
	e := &Execution{run: r, started: time.Now()}

	// The sink goroutine is tracked first so the tomb stays alive while the
	// upstream stages are registered.
	sinkCtx, cancel := context.WithCancel(tctx)
	st := r.stages[len(r.stages)-1]
	ready := make(chan struct{})
	var in <-chan core.Result[T]
	t.Go(func() error {
		<-ready
		return x.drain(r, st, sinkCtx, cancel, in)
	})
	in = x.pipeline.build(r, sinkCtx)
	close(ready)

	r.logger.Debug().Strs("stages", x.Names()).Msg("pipeline started")
	return e
}

func (x *Runnable[T]) drain(r *run, st *core.Stage, ctx context.Context, cancel context.CancelFunc, in <-chan core.Result[T]) error {
	defer cancel()

	var res outcome
	res.interrupted = ctx.Err() != nil
	if !res.interrupted {
		r.start(st)
	loop:
		for item := range in {
			if ctx.Err() != nil {
				break
			}
			switch {
			case item.IsError():
				res.upstream = item.Error()
				break loop
			case item.IsValue():
				if err := core.Deliver(ctx, x.sink, item.Value()); err != nil {
					if ctx.Err() == nil {
						res.failure = core.NewStageError(st.Name(), err)
					}
					break loop
				}
				st.Count(1)
			}
		}
		res.interrupted = ctx.Err() != nil
	}
	cancel()
	for range in {
	}

	if err := core.Finish(context.WithoutCancel(ctx), x.sink, res.err()); err != nil && res.clean() {
		res.failure = core.NewStageError(st.Name(), err)
	}
	return r.finish(st, res)
}

// launch starts a stage whose output is produced by open under the stage's
// own context, a child of down.
func launch[T any](r *run, idx int, down context.Context, open func(context.Context) <-chan core.Result[T], settle func()) <-chan core.Result[T] {
	ctx, cancel := context.WithCancelCause(down)
	return launchWith(r, idx, ctx, cancel, down, open, settle)
}

func launchWith[T any](r *run, idx int, ctx context.Context, cancel context.CancelCauseFunc, down context.Context, open func(context.Context) <-chan core.Result[T], settle func()) <-chan core.Result[T] {
	out := make(chan core.Result[T], r.opts.bufferSize)
	st := r.stages[idx]

	r.tomb.Go(func() error {
		defer close(out)
		defer cancel(nil)

		res := relay(r, st, ctx, cancel, down, out, open(ctx))
		if settle != nil {
			settle()
		}
		if err := r.finish(st, res); err != nil && !res.interrupted {
			core.Send(down, out, core.Err[T](err))
		}
		return nil
	})
	return out
}

// errDownstreamDone cancels the stages feeding a transform that ended its
// output before its input was exhausted. They complete rather than error.
var errDownstreamDone = errors.New("downstream finished")

// interrupted reports whether ctx was cancelled for a reason other than a
// downstream stage finishing early.
func interrupted(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), errDownstreamDone)
}

// relay forwards chunks from in to out until in ends, an error arrives or
// ctx is cancelled. It then cancels ctx and drains in, so everything
// producing into it has stopped before the stage is settled.
func relay[T any](r *run, st *core.Stage, ctx context.Context, cancel context.CancelCauseFunc, down context.Context, out chan<- core.Result[T], in <-chan core.Result[T]) outcome {
	var res outcome
	res.interrupted = interrupted(ctx)
	if !res.interrupted {
		r.start(st)
	loop:
		for item := range in {
			if ctx.Err() != nil {
				break
			}
			switch {
			case item.IsError():
				err := item.Error()
				if origin := originOf(err); origin != "" && origin != st.Name() {
					res.upstream = err
				} else {
					res.failure = core.NewStageError(st.Name(), err)
				}
				break loop
			case item.IsEnd():
				continue
			default:
				if !core.Send(down, out, item) {
					break loop
				}
				if item.IsValue() {
					st.Count(1)
				}
			}
		}
		res.interrupted = interrupted(ctx)
	}
	if res.clean() {
		cancel(errDownstreamDone)
	} else {
		cancel(nil)
	}
	for range in {
	}
	return res
}

func originOf(err error) string {
	var se *core.StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
