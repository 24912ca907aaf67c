package pipeline

import (
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// run is the shared state of one pipeline execution.
type run struct {
	id     string
	opts   options
	tomb   *tomb.Tomb
	stages []*core.Stage
	logger zerolog.Logger

	mu       sync.Mutex
	firstErr error
}

func newRun(id string, opts options, t *tomb.Tomb, names []string) *run {
	r := &run{
		id:     id,
		opts:   opts,
		tomb:   t,
		logger: opts.logger.With().Str("run_id", id).Logger(),
	}
	for _, name := range names {
		st := core.NewStage(name)
		st.Observe(r.logTransition)
		for _, fn := range opts.observers {
			st.Observe(fn)
		}
		r.stages = append(r.stages, st)
	}
	return r
}

func (r *run) logTransition(t core.Transition) {
	ev := r.logger.Debug()
	if t.To == core.StateErrored && !core.IsCancellation(t.Err) && core.KindOf(t.Err) != core.KindPropagated {
		ev = r.logger.Error().Err(t.Err)
	}
	ev.Str("stage", t.Stage).
		Stringer("from", t.From).
		Stringer("to", t.To).
		Msg("stage transition")
}

func (r *run) start(st *core.Stage) {
	if err := st.Start(); err != nil {
		r.logger.Warn().Err(err).Str("stage", st.Name()).Msg("stage start rejected")
	}
}

// outcome is how a stage's loop ended.
type outcome struct {
	failure     error // this stage failed
	upstream    error // a failure arrived from an upstream stage
	interrupted bool  // the stage was cancelled
}

func (o outcome) clean() bool {
	return o.failure == nil && o.upstream == nil && !o.interrupted
}

func (o outcome) err() error {
	switch {
	case o.failure != nil:
		return o.failure
	case o.upstream != nil:
		return o.upstream
	case o.interrupted:
		return core.ErrCancelled
	default:
		return nil
	}
}

// finish moves st to its terminal state and returns the error the stage
// ended with, if any.
func (r *run) finish(st *core.Stage, res outcome) error {
	var err error
	switch {
	case res.failure != nil:
		r.record(res.failure)
		err = st.Fail(res.failure)
	case res.upstream != nil:
		err = st.Fail(core.WithKind(res.upstream, core.KindPropagated))
	case res.interrupted:
		err = st.Fail(core.ErrCancelled)
	default:
		err = st.Complete()
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("stage", st.Name()).Msg("terminal transition rejected")
	}
	return res.err()
}

func (r *run) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstErr == nil {
		r.firstErr = err
	}
}

func (r *run) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

// cancelReason explains why a run that had no stage failure did not complete.
func (r *run) cancelReason() error {
	err := r.tomb.Err()
	if err == nil || err == tomb.ErrStillAlive || !core.IsCancellation(err) {
		return core.ErrCancelled
	}
	return core.WithKind(err, core.KindCancelled)
}
