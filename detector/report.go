package detector

import (
	"errors"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// StatusError is the status of a failure report
const StatusError = "Error"

// Report is the flat success document returned to callers. Values are
// rounded to two decimals.
type Report struct {
	Status   string   `json:"status"`
	Score    float64  `json:"score"`
	F0Mean   float64  `json:"F0_mean"`
	F0Min    float64  `json:"F0_min"`
	F0Max    float64  `json:"F0_max"`
	RangeF0  float64  `json:"rangeF0"`
	Jitter   float64  `json:"jitter_local"`
	HNRMean  float64  `json:"HNR_mean"`
	AIPoints int      `json:"ai_points"`
	Shimmer  *float64 `json:"shimmer"`
}

// Report renders the result for presentation
func (r *Result) Report() Report {
	f := r.Features.Rounded()
	rep := Report{
		Status:   r.Verdict.Status,
		Score:    r.Verdict.Score,
		F0Mean:   f.F0Mean,
		F0Min:    f.F0Min,
		F0Max:    f.F0Max,
		RangeF0:  f.RangeF0,
		Jitter:   f.JitterLocal,
		HNRMean:  f.HNRMean,
		AIPoints: r.Verdict.AIPoints,
	}
	if common.IsFinite(f.ShimmerLocal) {
		s := f.ShimmerLocal
		rep.Shimmer = &s
	}
	return rep
}

// ErrorReport is the failure document. Message is meant for people,
// Reason for programs.
type ErrorReport struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// NewErrorReport describes err without leaking internal detail
func NewErrorReport(err error) ErrorReport {
	kind := KindOf(err)
	if kind == 0 {
		kind = KindInternal
	}

	msg := "Analysis failed."
	switch kind {
	case KindInputUnusable:
		msg = "No usable audio was supplied."
	case KindPitchExtractionFailed:
		msg = "Voice features not found."
	case KindTimeout:
		msg = "Analysis timed out."
	}

	return ErrorReport{Status: StatusError, Message: msg, Reason: kind.Reason()}
}

// IsVerdictless reports whether err is an analysis outcome rather than a
// fault of the service: unusable input or no voicing.
func IsVerdictless(err error) bool {
	return errors.Is(err, ErrInputUnusable) || errors.Is(err, ErrNoVoiceFeatures)
}
