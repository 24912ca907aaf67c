package core

import (
	"context"
	"io/fs"
	"net"
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure observed by a stage.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput is a chunk of the wrong type or shape.
	KindInvalidInput
	// KindResource is an unavailable external resource: missing file,
	// refused connection, failed write, non-zero process exit.
	KindResource
	// KindCancelled is an operation aborted by cancellation.
	KindCancelled
	// KindPropagated is a failure reported to a stage by another stage.
	KindPropagated
	// KindInternal is a recovered panic.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid-input"
	case KindResource:
		return "resource"
	case KindCancelled:
		return "cancelled"
	case KindPropagated:
		return "propagated"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var kindMarks = map[Kind]error{
	KindInvalidInput: errors.New("chunkflow: invalid-input"),
	KindResource:     errors.New("chunkflow: resource"),
	KindCancelled:    errors.New("chunkflow: cancelled"),
	KindPropagated:   errors.New("chunkflow: propagated"),
	KindInternal:     errors.New("chunkflow: internal"),
}

// classification order: an error marked propagated keeps that kind even when
// its cause carries a more specific one.
var kindOrder = []Kind{KindPropagated, KindCancelled, KindInternal, KindInvalidInput, KindResource}

// ErrCancelled is the reason recorded for stages halted by a cancellation request.
var ErrCancelled = WithKind(errors.New("pipeline cancelled"), KindCancelled)

// ErrBackPressure is returned by a Sink that cannot accept more input until
// it signals readiness again.
var ErrBackPressure = errors.New("sink is applying back-pressure")

// ErrIllegalTransition is returned when a stage is asked to leave a terminal state.
var ErrIllegalTransition = errors.New("illegal stage transition")

// WithKind marks err with kind k. A nil err stays nil.
func WithKind(err error, k Kind) error {
	if err == nil {
		return nil
	}
	mark, ok := kindMarks[k]
	if !ok {
		return err
	}
	return errors.Mark(err, mark)
}

// KindOf classifies err. Explicit marks win; otherwise context errors are
// KindCancelled and filesystem/network errors are KindResource.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindOrder {
		if errors.Is(err, kindMarks[k]) {
			return k
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, net.ErrClosed) {
		return KindResource
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return KindResource
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindResource
	}
	var panicErr ErrPanic
	if errors.As(err, &panicErr) {
		return KindInternal
	}
	return KindUnknown
}

// IsCancellation reports whether err is a cancellation.
func IsCancellation(err error) bool {
	return KindOf(err) == KindCancelled
}

// StageError attributes a failure to the stage where it originated.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + " (" + e.Kind.String() + "): " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err for stage, classifying it. An err that is already
// a *StageError is returned unchanged so attribution stays with the origin.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: KindOf(err), Err: err}
}
