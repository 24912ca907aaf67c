package core

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Signal is the kind of message a stage passes downstream alongside chunks.
type Signal int

const (
	SignalData Signal = iota
	SignalEnd
	SignalError
)

func (s Signal) String() string {
	switch s {
	case SignalData:
		return "data"
	case SignalEnd:
		return "end"
	default:
		return "error"
	}
}

// SignalOf maps a Result to the signal it carries. Sentinels other than
// end-of-sequence are treated as data: they are forwarded, not terminal.
func SignalOf[T any](res Result[T]) Signal {
	switch {
	case res.IsError():
		return SignalError
	case res.IsEnd():
		return SignalEnd
	default:
		return SignalData
	}
}

// StageState is the lifecycle position of a stage.
type StageState int

const (
	StateIdle StageState = iota
	StateActive
	StateCompleted
	StateErrored
)

func (s StageState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition may leave s.
func (s StageState) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// Transition describes one state change of a stage.
type Transition struct {
	Stage string
	From  StageState
	To    StageState
	Err   error
	At    time.Time
}

// Stage tracks the state of one named pipeline participant:
// idle -> active -> (completed | errored), or idle -> errored when
// cancelled before it starts. Terminal states are final.
// A Stage is safe for concurrent use.
type Stage struct {
	name string

	mu        sync.Mutex
	state     StageState
	err       error
	chunks    int64
	observers []func(Transition)
}

// NewStage creates an idle stage.
func NewStage(name string) *Stage {
	return &Stage{name: name}
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Observe registers fn to be called after every transition, in registration order.
func (s *Stage) Observe(fn func(Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current state.
func (s *Stage) State() StageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error of an errored stage.
func (s *Stage) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Chunks returns how many chunks the stage has passed on.
func (s *Stage) Chunks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Count records n more chunks passed on by the stage.
func (s *Stage) Count(n int64) {
	s.mu.Lock()
	s.chunks += n
	s.mu.Unlock()
}

// Start moves an idle stage to active.
func (s *Stage) Start() error {
	return s.transition(StateActive, nil)
}

// Complete moves an active stage to completed.
func (s *Stage) Complete() error {
	return s.transition(StateCompleted, nil)
}

// Fail moves the stage to errored with err. A nil err records ErrCancelled.
func (s *Stage) Fail(err error) error {
	if err == nil {
		err = ErrCancelled
	}
	return s.transition(StateErrored, err)
}

func (s *Stage) transition(to StageState, err error) error {
	s.mu.Lock()
	from := s.state
	if !allowed(from, to) {
		s.mu.Unlock()
		return errors.Wrapf(ErrIllegalTransition, "stage %s: %s -> %s", s.name, from, to)
	}
	s.state = to
	s.err = err
	observers := s.observers
	s.mu.Unlock()

	t := Transition{Stage: s.name, From: from, To: to, Err: err, At: time.Now()}
	for _, fn := range observers {
		fn(t)
	}
	return nil
}

func allowed(from, to StageState) bool {
	switch from {
	case StateIdle:
		return to == StateActive || to == StateErrored
	case StateActive:
		return to == StateCompleted || to == StateErrored
	default:
		return false
	}
}
