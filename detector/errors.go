package detector

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why an analysis produced no verdict
type Kind int

const (
	// KindInputUnusable: no audio, undecodable audio, or too little of it
	KindInputUnusable Kind = iota + 1
	// KindPitchExtractionFailed: audio decoded but no usable voicing was found
	KindPitchExtractionFailed
	// KindInternal: a stage failed unexpectedly or produced an invalid record
	KindInternal
	// KindTimeout: the analysis deadline passed or the caller cancelled
	KindTimeout
)

var (
	ErrInputUnusable   = errors.New("no usable audio")
	ErrNoVoiceFeatures = errors.New("voice features not found")
	ErrInternal        = errors.New("analysis failed")
	ErrTimeout         = errors.New("analysis timed out")
)

func (k Kind) String() string {
	switch k {
	case KindInputUnusable:
		return "InputUnusable"
	case KindPitchExtractionFailed:
		return "PitchExtractionFailed"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Reason is the machine-readable failure reason reported to callers
func (k Kind) Reason() string {
	switch k {
	case KindInputUnusable:
		return "input_unusable"
	case KindPitchExtractionFailed:
		return "voice_features_not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "analysis_failed"
	}
}

// Sentinel returns the package error matching the kind
func (k Kind) Sentinel() error {
	switch k {
	case KindInputUnusable:
		return ErrInputUnusable
	case KindPitchExtractionFailed:
		return ErrNoVoiceFeatures
	case KindTimeout:
		return ErrTimeout
	default:
		return ErrInternal
	}
}

// AnalysisError is the only error type returned by the Analyzer. It
// matches its kind's sentinel with errors.Is and unwraps to the cause.
type AnalysisError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind.Sentinel())
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind.Sentinel(), e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of the error's kind
func (e *AnalysisError) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

func newError(kind Kind, stage string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Stage: stage, Err: err}
}

// stageError classifies an error returned by a stage. Context errors become
// timeouts; an existing AnalysisError is kept; anything else gets fallback.
func stageError(ctx context.Context, fallback Kind, stage string, err error) *AnalysisError {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return newError(KindTimeout, stage, err)
	}
	return newError(fallback, stage, err)
}

// KindOf returns the kind of an analysis error, or KindInternal for any
// other non-nil error. It returns 0 for nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
