package tonal

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/algorithms/stats"
	"github.com/RyanBlaney/sonido-voz/algorithms/windowing"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// ErrSignalTooShort is returned when the signal cannot hold a single
// analysis window
var ErrSignalTooShort = errors.New("signal shorter than one analysis window")

// PitchParams contains the parameters of the autocorrelation pitch tracker.
// The zero TimeStep selects 0.75/Floor.
type PitchParams struct {
	TimeStep float64 `json:"time_step" yaml:"time_step"` // Seconds between frame centres
	Floor    float64 `json:"floor" yaml:"floor"`         // Lowest admissible F0 (Hz)
	Ceiling  float64 `json:"ceiling" yaml:"ceiling"`     // Highest admissible F0 (Hz)

	MaxCandidates    int     `json:"max_candidates" yaml:"max_candidates"`
	PeriodsPerWindow float64 `json:"periods_per_window" yaml:"periods_per_window"`

	SilenceThreshold   float64 `json:"silence_threshold" yaml:"silence_threshold"`       // Fraction of global peak
	VoicingThreshold   float64 `json:"voicing_threshold" yaml:"voicing_threshold"`       // Normalised autocorrelation
	OctaveCost         float64 `json:"octave_cost" yaml:"octave_cost"`                   // Per octave below ceiling
	OctaveJumpCost     float64 `json:"octave_jump_cost" yaml:"octave_jump_cost"`         // Per octave between frames
	VoicedUnvoicedCost float64 `json:"voiced_unvoiced_cost" yaml:"voiced_unvoiced_cost"` // Per voicing transition
}

// DefaultPitchParams returns the 50-1000 Hz search used by the detector
func DefaultPitchParams() PitchParams {
	return PitchParams{
		TimeStep:           0,
		Floor:              50,
		Ceiling:            1000,
		MaxCandidates:      15,
		PeriodsPerWindow:   3.0,
		SilenceThreshold:   0.03,
		VoicingThreshold:   0.45,
		OctaveCost:         0.01,
		OctaveJumpCost:     0.35,
		VoicedUnvoicedCost: 0.14,
	}
}

// Validate reports parameter combinations the tracker cannot run with
func (p PitchParams) Validate() error {
	switch {
	case p.Floor <= 0:
		return fmt.Errorf("pitch floor must be positive, got %g", p.Floor)
	case p.Ceiling <= p.Floor:
		return fmt.Errorf("pitch ceiling (%g) must exceed floor (%g)", p.Ceiling, p.Floor)
	case p.TimeStep < 0:
		return fmt.Errorf("time step must not be negative, got %g", p.TimeStep)
	case p.MaxCandidates < 2:
		return fmt.Errorf("max candidates must be at least 2, got %d", p.MaxCandidates)
	case p.PeriodsPerWindow <= 0:
		return fmt.Errorf("periods per window must be positive, got %g", p.PeriodsPerWindow)
	}
	return nil
}

// EffectiveTimeStep resolves the zero TimeStep default
func (p PitchParams) EffectiveTimeStep() float64 {
	if p.TimeStep > 0 {
		return p.TimeStep
	}
	return 0.75 / p.Floor
}

// PitchCandidate is one hypothesis for a frame. Frequency 0 is the unvoiced
// hypothesis.
type PitchCandidate struct {
	Frequency float64 `json:"frequency"`
	Strength  float64 `json:"strength"`
}

type pitchFrame struct {
	intensity  float64 // local peak relative to the global peak
	candidates []PitchCandidate
}

// PitchTracker estimates an F0 contour with the autocorrelation method of
// Boersma (1993): per-frame normalised autocorrelation peaks become
// candidates and a Viterbi pass picks the cheapest path through them.
type PitchTracker struct {
	params PitchParams
	logger logging.Logger
}

// NewPitchTracker creates a tracker. A nil logger is replaced by a no-op.
func NewPitchTracker(params PitchParams, logger logging.Logger) (*PitchTracker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PitchTracker{
		params: params,
		logger: logging.OrNoOp(logger).WithFields(logging.Fields{"component": "pitch_tracker"}),
	}, nil
}

// Params returns the parameters the tracker was built with
func (pt *PitchTracker) Params() PitchParams {
	return pt.params
}

// Track computes the pitch contour of signal. The context is polled between
// frames so a pipeline deadline stops long inputs.
func (pt *PitchTracker) Track(ctx context.Context, signal []float64, sampleRate int) (*PitchContour, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	p := pt.params
	dx := 1.0 / float64(sampleRate)
	dt := p.EffectiveTimeStep()
	duration := float64(len(signal)) * dx

	windowDuration := p.PeriodsPerWindow / p.Floor
	windowSamples := int(math.Floor(windowDuration/dx)) / 2 * 2
	if windowSamples < 4 {
		return nil, fmt.Errorf("analysis window too short at %d Hz", sampleRate)
	}
	halfWindow := windowSamples / 2

	if duration < windowDuration {
		return nil, fmt.Errorf("%w: %.3fs < %.3fs", ErrSignalTooShort, duration, windowDuration)
	}

	numFrames := int(math.Floor((duration-windowDuration)/dt)) + 1
	firstTime := 0.5*duration - 0.5*float64(numFrames)*dt + 0.5*dt

	minLag := max(2, int(math.Floor(1.0/(dx*p.Ceiling))))
	maxLag := min(int(math.Floor(float64(windowSamples)/p.PeriodsPerWindow))+2, windowSamples-1)

	// 1.5 windows of zero padding keeps the lags of interest free of wrap-around
	ac := stats.NewAutoCorrelation(windowSamples + windowSamples/2)
	hann := windowing.NewHann(windowSamples)

	// Autocorrelation of the window itself, used to undo its taper
	windowR, err := ac.Compute(hann.GetCoefficients())
	if err != nil {
		return nil, fmt.Errorf("failed to correlate analysis window: %w", err)
	}
	for i := len(windowR) - 1; i >= 0; i-- {
		windowR[i] /= windowR[0]
	}

	centred := common.SubtractMean(signal)
	globalPeak := common.AbsMax(centred)

	frames := make([]pitchFrame, numFrames)
	buf := make([]float64, ac.FFTSize())
	segment := make([]float64, windowSamples)

	for iframe := range numFrames {
		if iframe%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		t := firstTime + float64(iframe)*dt
		centre := int(math.Round(t / dx))
		start := centre - halfWindow

		for j := range segment {
			k := start + j
			if k >= 0 && k < len(centred) {
				segment[j] = centred[k]
			} else {
				segment[j] = 0
			}
		}
		local := common.SubtractMean(segment)

		localPeak := common.AbsMax(local)
		frame := pitchFrame{
			candidates: []PitchCandidate{{Frequency: 0, Strength: 0}},
		}
		if globalPeak > 0 {
			frame.intensity = localPeak / globalPeak
		}

		if localPeak > 0 {
			clear(buf)
			if err := hann.Apply(buf, local); err != nil {
				return nil, err
			}
			r, err := ac.Compute(buf[:windowSamples])
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", iframe, err)
			}
			frame.candidates = append(frame.candidates,
				pt.findCandidates(r, windowR, minLag, maxLag, sampleRate)...)
		}

		frames[iframe] = frame
	}

	path := pt.findPath(frames, dt)

	contour := &PitchContour{
		FirstTime: firstTime,
		TimeStep:  dt,
		Duration:  duration,
		Floor:     p.Floor,
		Ceiling:   p.Ceiling,
		Frames:    make([]PitchFrame, numFrames),
	}
	voiced := 0
	for i, c := range path {
		f := PitchFrame{Time: firstTime + float64(i)*dt, Frequency: math.NaN(), Strength: c.Strength}
		if c.Frequency > 0 {
			f.Frequency = c.Frequency
			f.Voiced = true
			voiced++
		}
		contour.Frames[i] = f
	}

	pt.logger.Debug("pitch tracked", logging.Fields{
		"frames":      numFrames,
		"voiced":      voiced,
		"global_peak": globalPeak,
	})

	return contour, nil
}

// findCandidates picks the strongest normalised autocorrelation maxima.
// r is the raw autocorrelation of the windowed frame.
func (pt *PitchTracker) findCandidates(r, windowR []float64, minLag, maxLag, sampleRate int) []PitchCandidate {
	p := pt.params
	if r[0] <= 0 {
		return nil
	}

	hi := min(maxLag+1, len(r)-1, len(windowR)-1)
	norm := make([]float64, hi+1)
	for i := 0; i <= hi; i++ {
		if windowR[i] <= 0 {
			break
		}
		norm[i] = r[i] / (r[0] * windowR[i])
	}

	kept := make([]PitchCandidate, 0, p.MaxCandidates-1)
	keptScore := make([]float64, 0, p.MaxCandidates-1)

	for i := max(minLag, 1); i < hi; i++ {
		if norm[i] <= 0.5*p.VoicingThreshold || norm[i] <= norm[i-1] || norm[i] < norm[i+1] {
			continue
		}

		offset, strength := common.ParabolicPeak(norm[i-1], norm[i], norm[i+1])
		lag := float64(i) + offset
		if lag <= 0 {
			continue
		}
		frequency := float64(sampleRate) / lag
		if frequency < p.Floor || frequency > p.Ceiling {
			continue
		}
		// Short windows can push the normalised peak over 1
		if strength > 1 {
			strength = 1 / strength
		}

		score := strength - p.OctaveCost*math.Log2(p.Floor/frequency)
		cand := PitchCandidate{Frequency: frequency, Strength: strength}

		if len(kept) < p.MaxCandidates-1 {
			kept = append(kept, cand)
			keptScore = append(keptScore, score)
			continue
		}
		weakest := 0
		for k := range keptScore {
			if keptScore[k] < keptScore[weakest] {
				weakest = k
			}
		}
		if score > keptScore[weakest] {
			kept[weakest] = cand
			keptScore[weakest] = score
		}
	}

	return kept
}
