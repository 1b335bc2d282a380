package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/brunobiangulo/distill/extract"
)

var (
	// ErrAcquisition marks a failure to obtain readable text.
	ErrAcquisition = errors.New("acquisition failed")

	// ErrRewriting marks a failure of the rewriting model.
	ErrRewriting = errors.New("rewriting failed")
)

// Failure kinds.
const (
	KindAcquisition   = "acquisition"
	KindEmptyDocument = "empty_document"
	KindEmptyResult   = "empty_result"
	KindExtraction    = "extraction"
	KindRewriting     = "rewriting"
	KindCanceled      = "canceled"
	KindDeadline      = "deadline_exceeded"
)

// Failure reports the stage at which a run stopped. errors.Is matches both
// the kind sentinel and the underlying cause.
type Failure struct {
	Stage  State  `json:"stage"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`

	sentinel error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %s", f.Stage, f.Kind, f.Reason)
}

func (f *Failure) Unwrap() []error {
	if f.sentinel == nil {
		return []error{f.Err}
	}
	return []error{f.sentinel, f.Err}
}

func newFailure(stage State, err error) *Failure {
	f := &Failure{Stage: stage, Reason: err.Error(), Err: err}
	switch {
	case errors.Is(err, context.Canceled):
		f.Kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		f.Kind = KindDeadline
	case stage == Acquiring:
		f.Kind, f.sentinel = KindAcquisition, ErrAcquisition
	case stage == Rewriting:
		f.Kind, f.sentinel = KindRewriting, ErrRewriting
	case errors.Is(err, extract.ErrEmptyDocument):
		f.Kind = KindEmptyDocument
	case errors.Is(err, extract.ErrEmptyResult):
		f.Kind = KindEmptyResult
	default:
		f.Kind = KindExtraction
	}
	return f
}
