package detector

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// Features is the scalar summary the classifier scores. Values are never
// rounded; use Rounded for presentation.
type Features struct {
	F0Mean      float64 `json:"f0_mean"`      // Hz
	F0Min       float64 `json:"f0_min"`       // Hz
	F0Max       float64 `json:"f0_max"`       // Hz
	RangeF0     float64 `json:"range_f0"`     // F0Max - F0Min, Hz
	JitterLocal float64 `json:"jitter_local"` // Percent
	HNRMean     float64 `json:"hnr_mean"`     // dB

	// Reported but not scored; NaN when undefined
	ShimmerLocal float64 `json:"shimmer_local"`
}

// ErrInvalidFeatures is wrapped by Validate failures
var ErrInvalidFeatures = errors.New("invalid feature record")

// NewFeatures assembles and validates a feature record. RangeF0 is derived.
func NewFeatures(f0Mean, f0Min, f0Max, jitter, hnr, shimmer float64) (Features, error) {
	f := Features{
		F0Mean:       f0Mean,
		F0Min:        f0Min,
		F0Max:        f0Max,
		RangeF0:      f0Max - f0Min,
		JitterLocal:  jitter,
		HNRMean:      hnr,
		ShimmerLocal: shimmer,
	}
	if err := f.Validate(); err != nil {
		return Features{}, err
	}
	return f, nil
}

// Validate rejects records the classifier must never see
func (f Features) Validate() error {
	scored := []struct {
		name  string
		value float64
	}{
		{"f0_mean", f.F0Mean},
		{"f0_min", f.F0Min},
		{"f0_max", f.F0Max},
		{"range_f0", f.RangeF0},
		{"jitter_local", f.JitterLocal},
		{"hnr_mean", f.HNRMean},
	}

	var errs []error
	for _, s := range scored {
		if !common.IsFinite(s.value) {
			errs = append(errs, fmt.Errorf("%s is not finite", s.name))
		}
	}
	if common.IsFinite(f.F0Mean) && f.F0Mean <= 0 {
		errs = append(errs, fmt.Errorf("f0_mean must be positive, got %g", f.F0Mean))
	}
	if f.F0Max < f.F0Min {
		errs = append(errs, fmt.Errorf("f0_max (%g) below f0_min (%g)", f.F0Max, f.F0Min))
	}
	if math.Abs(f.RangeF0-(f.F0Max-f.F0Min)) > 1e-9 {
		errs = append(errs, fmt.Errorf("range_f0 (%g) differs from f0_max - f0_min", f.RangeF0))
	}
	if math.IsInf(f.ShimmerLocal, 0) {
		errs = append(errs, errors.New("shimmer is infinite"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFeatures, errors.Join(errs...))
	}
	return nil
}

// Rounded returns a copy with every value rounded to two decimals
func (f Features) Rounded() Features {
	return Features{
		F0Mean:       common.Round(f.F0Mean, 2),
		F0Min:        common.Round(f.F0Min, 2),
		F0Max:        common.Round(f.F0Max, 2),
		RangeF0:      common.Round(f.RangeF0, 2),
		JitterLocal:  common.Round(f.JitterLocal, 2),
		HNRMean:      common.Round(f.HNRMean, 2),
		ShimmerLocal: common.Round(f.ShimmerLocal, 2),
	}
}
