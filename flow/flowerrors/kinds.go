// Package flowerrors is the error toolkit of chunkflow: the failure taxonomy
// shared by every stage, re-exported cockroachdb/errors helpers, and stream
// operators that recover from or reshape errors before they halt a pipeline.
package flowerrors

import (
	crdb "github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Kind classifies a failure.
type Kind = core.Kind

const (
	KindUnknown      = core.KindUnknown
	KindInvalidInput = core.KindInvalidInput
	KindResource     = core.KindResource
	KindCancelled    = core.KindCancelled
	KindPropagated   = core.KindPropagated
	KindInternal     = core.KindInternal
)

// StageError attributes a failure to the stage where it originated.
type StageError = core.StageError

// ErrCancelled is the reason recorded for stages halted by cancellation.
var ErrCancelled = core.ErrCancelled

var (
	// Classify returns the Kind of err.
	Classify = core.KindOf
	// WithKind marks err with a Kind.
	WithKind = core.WithKind
	// IsCancellation reports whether err is a cancellation.
	IsCancellation = core.IsCancellation
	// NewStageError attributes err to a stage.
	NewStageError = core.NewStageError
)

// cockroachdb/errors helpers, so callers need a single errors import.
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	Is            = crdb.Is
	As            = crdb.As
	Mark          = crdb.Mark
	Unwrap        = crdb.Unwrap
)

// StageOf returns the stage a failure originated in, or "" when err was
// never attributed.
func StageOf(err error) string {
	var se *core.StageError
	if crdb.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	return core.KindOf(err) == k
}
