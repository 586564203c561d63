package harmonic

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/algorithms/stats"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// UndefinedHNR marks a frame that is silent or has no periodic component.
// Such frames never take part in averages.
const UndefinedHNR = -200.0

// MaxHNR bounds the per-frame HNR in both directions
const MaxHNR = 150.0

// HarmonicityParams configures cross-correlation harmonicity
type HarmonicityParams struct {
	TimeStep         float64 `json:"time_step" yaml:"time_step"`                 // Seconds between frames
	MinPitch         float64 `json:"min_pitch" yaml:"min_pitch"`                 // Lowest periodicity searched (Hz)
	SilenceThreshold float64 `json:"silence_threshold" yaml:"silence_threshold"` // Fraction of global peak
	PeriodsPerWindow float64 `json:"periods_per_window" yaml:"periods_per_window"`
}

// DefaultHarmonicityParams returns the settings used by the detector
func DefaultHarmonicityParams() HarmonicityParams {
	return HarmonicityParams{
		TimeStep:         0.01,
		MinPitch:         50,
		SilenceThreshold: 0.1,
		PeriodsPerWindow: 1.0,
	}
}

// Validate checks the parameters
func (p HarmonicityParams) Validate() error {
	switch {
	case p.TimeStep <= 0:
		return fmt.Errorf("time step must be positive, got %g", p.TimeStep)
	case p.MinPitch <= 0:
		return fmt.Errorf("minimum pitch must be positive, got %g", p.MinPitch)
	case p.SilenceThreshold < 0:
		return fmt.Errorf("silence threshold must not be negative, got %g", p.SilenceThreshold)
	case p.PeriodsPerWindow <= 0:
		return fmt.Errorf("periods per window must be positive, got %g", p.PeriodsPerWindow)
	}
	return nil
}

// HarmonicityContour holds one HNR value in dB per frame
type HarmonicityContour struct {
	FirstTime float64   `json:"first_time"`
	TimeStep  float64   `json:"time_step"`
	Values    []float64 `json:"values"`
}

// Mean returns the mean HNR over frames that are not UndefinedHNR, or NaN
// when every frame is undefined.
func (hc *HarmonicityContour) Mean() float64 {
	defined := make([]float64, 0, len(hc.Values))
	for _, v := range hc.Values {
		if v != UndefinedHNR {
			defined = append(defined, v)
		}
	}
	return common.Mean(defined)
}

// DefinedCount returns the number of frames with a defined HNR
func (hc *HarmonicityContour) DefinedCount() int {
	n := 0
	for _, v := range hc.Values {
		if v != UndefinedHNR {
			n++
		}
	}
	return n
}

// HNRFromCorrelation converts a normalised correlation into HNR in dB,
// clamped to ±MaxHNR.
func HNRFromCorrelation(r float64) float64 {
	switch {
	case r <= 1e-15:
		return -MaxHNR
	case r > 1-1e-15:
		return MaxHNR
	}
	return common.Clamp(10*math.Log10(r/(1-r)), -MaxHNR, MaxHNR)
}

// HarmonicityCC estimates harmonics-to-noise ratio with forward
// cross-correlation. Each frame correlates a window of PeriodsPerWindow
// lowest periods with the signal that follows it; the strongest normalised
// peak r gives HNR = 10*log10(r/(1-r)). Frames whose local peak is quiet
// relative to the whole signal are treated as unvoiced unless their
// correlation is strong enough to outweigh the silence penalty.
type HarmonicityCC struct {
	params HarmonicityParams
	logger logging.Logger
}

// NewHarmonicityCC creates a harmonicity estimator. A nil logger is replaced
// by a no-op.
func NewHarmonicityCC(params HarmonicityParams, logger logging.Logger) (*HarmonicityCC, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &HarmonicityCC{
		params: params,
		logger: logging.OrNoOp(logger).WithFields(logging.Fields{"component": "harmonicity"}),
	}, nil
}

// Compute returns the harmonicity contour of signal
func (h *HarmonicityCC) Compute(ctx context.Context, signal []float64, sampleRate int) (*HarmonicityContour, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	p := h.params
	dx := 1.0 / float64(sampleRate)
	duration := float64(len(signal)) * dx

	windowSamples := int(math.Floor(p.PeriodsPerWindow / p.MinPitch / dx))
	maxLag := int(math.Floor(1.0 / (p.MinPitch * dx)))
	minLag := 2
	if windowSamples < 2 || maxLag <= minLag {
		return nil, fmt.Errorf("analysis window too short at %d Hz", sampleRate)
	}

	// Each frame needs its window plus one longest period of look-ahead
	span := windowSamples + maxLag
	spanDuration := float64(span) * dx
	if duration < spanDuration {
		return nil, fmt.Errorf("signal of %.3fs is shorter than one analysis span (%.3fs)", duration, spanDuration)
	}

	numFrames := int(math.Floor((duration-spanDuration)/p.TimeStep)) + 1
	firstTime := 0.5*duration - 0.5*float64(numFrames)*p.TimeStep + 0.5*p.TimeStep

	centred := common.SubtractMean(signal)
	globalPeak := common.AbsMax(centred)

	cc := stats.NewCrossCorrelation(maxLag)
	contour := &HarmonicityContour{
		FirstTime: firstTime,
		TimeStep:  p.TimeStep,
		Values:    make([]float64, numFrames),
	}

	segment := make([]float64, span)
	for iframe := range numFrames {
		if iframe%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		t := firstTime + float64(iframe)*p.TimeStep
		start := int(math.Round(t/dx)) - span/2
		for j := range segment {
			k := start + j
			if k >= 0 && k < len(centred) {
				segment[j] = centred[k]
			} else {
				segment[j] = 0
			}
		}
		local := common.SubtractMean(segment)

		contour.Values[iframe] = UndefinedHNR
		if globalPeak == 0 {
			continue
		}
		intensity := common.AbsMax(local[:windowSamples]) / globalPeak
		if intensity == 0 {
			continue
		}

		strength, ok, err := h.bestCorrelation(cc, local, windowSamples, minLag, maxLag)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", iframe, err)
		}
		if !ok {
			continue
		}

		// Zero voicing threshold: the unvoiced hypothesis only scores in quiet frames
		unvoiced := 0.0
		if p.SilenceThreshold > 0 {
			unvoiced = math.Max(0, 2-intensity/p.SilenceThreshold)
		}
		if strength <= unvoiced {
			continue
		}

		contour.Values[iframe] = HNRFromCorrelation(strength)
	}

	h.logger.Debug("harmonicity computed", logging.Fields{
		"frames":  numFrames,
		"defined": contour.DefinedCount(),
	})

	return contour, nil
}

// bestCorrelation returns the largest normalised forward correlation peak
// of the frame. ok is false when no local maximum is positive.
func (h *HarmonicityCC) bestCorrelation(cc *stats.CrossCorrelation, frame []float64, windowSamples, minLag, maxLag int) (float64, bool, error) {
	reference := frame[:windowSamples]
	numerator, err := cc.Compute(reference, frame)
	if err != nil {
		return 0, false, err
	}
	energy := stats.SlidingEnergy(frame, windowSamples, maxLag)
	refEnergy := energy[0]
	if refEnergy <= 0 {
		return 0, false, nil
	}

	r := make([]float64, maxLag+1)
	for lag := range r {
		if d := refEnergy * energy[lag]; d > 0 {
			r[lag] = numerator[lag] / math.Sqrt(d)
		}
	}

	best, found := 0.0, false
	for i := minLag; i < maxLag; i++ {
		if r[i] <= 0 || r[i] <= r[i-1] || r[i] < r[i+1] {
			continue
		}
		_, strength := common.ParabolicPeak(r[i-1], r[i], r[i+1])
		if strength > 1 {
			strength = 1 / strength
		}
		if !found || strength > best {
			best, found = strength, true
		}
	}

	return best, found, nil
}
