package pipeline

import (
	"sync"
	"time"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// StageReport is the final state of one stage.
type StageReport struct {
	Name   string
	State  core.StageState
	Err    error
	Chunks int64
}

// Report summarizes a finished run.
type Report struct {
	RunID string
	// State is StateCompleted only when every stage completed.
	State    core.StageState
	Stages   []StageReport
	Chunks   int64 // chunks accepted by the sink
	Err      error
	Duration time.Duration
}

// Stage returns the report of the named stage.
func (r Report) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}

// Execution is a running pipeline.
type Execution struct {
	run     *run
	started time.Time

	once   sync.Once
	report Report
}

// RunID identifies this execution in logs and reports.
func (e *Execution) RunID() string { return e.run.id }

// Stages returns the live stages in pipeline order.
func (e *Execution) Stages() []*core.Stage { return e.run.stages }

// Cancel halts every stage. Stages that have not finished end errored with
// a cancellation reason; chunks already accepted by the sink stay there.
func (e *Execution) Cancel() {
	e.run.tomb.Kill(core.ErrCancelled)
}

// Done is closed once every stage is terminal.
func (e *Execution) Done() <-chan struct{} {
	return e.run.tomb.Dead()
}

// Wait blocks until every stage is terminal and returns the run report.
func (e *Execution) Wait() (Report, error) {
	e.once.Do(func() {
		_ = e.run.tomb.Wait()
		e.report = e.run.report(time.Since(e.started))
		e.run.logReport(e.report)
	})
	return e.report, e.report.Err
}

func (r *run) report(d time.Duration) Report {
	rep := Report{RunID: r.id, State: core.StateCompleted, Duration: d}
	for _, st := range r.stages {
		sr := StageReport{Name: st.Name(), State: st.State(), Err: st.Err(), Chunks: st.Chunks()}
		if sr.State != core.StateCompleted {
			rep.State = core.StateErrored
		}
		rep.Stages = append(rep.Stages, sr)
	}
	if n := len(r.stages); n > 0 {
		rep.Chunks = r.stages[n-1].Chunks()
	}
	if rep.State == core.StateErrored {
		if rep.Err = r.failure(); rep.Err == nil {
			rep.Err = r.cancelReason()
		}
	}
	return rep
}

func (r *run) logReport(rep Report) {
	ev := r.logger.Info()
	if rep.Err != nil {
		ev = r.logger.Error().Err(rep.Err)
	}
	ev.Stringer("state", rep.State).
		Int64("chunks", rep.Chunks).
		Dur("duration", rep.Duration).
		Msg("pipeline finished")
}
