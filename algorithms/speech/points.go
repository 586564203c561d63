package speech

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/algorithms/stats"
	"github.com/RyanBlaney/sonido-voz/algorithms/tonal"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// ErrRangeMismatch is returned when the pitch contour was tracked with a
// different F0 range than the extractor was configured for. Mixing ranges
// corrupts every period-based measure downstream.
var ErrRangeMismatch = errors.New("pitch contour range does not match point extractor range")

// PointParams configures glottal pulse extraction
type PointParams struct {
	Floor   float64 `json:"floor" yaml:"floor"`
	Ceiling float64 `json:"ceiling" yaml:"ceiling"`

	// Correlation and peak thresholds for pulses inside a voiced stretch
	MinCorrelation float64 `json:"min_correlation" yaml:"min_correlation"`
	MinPeakRatio   float64 `json:"min_peak_ratio" yaml:"min_peak_ratio"`

	// Stricter thresholds for a pulse that falls past the stretch boundary
	EdgeCorrelation float64 `json:"edge_correlation" yaml:"edge_correlation"`
	EdgePeakRatio   float64 `json:"edge_peak_ratio" yaml:"edge_peak_ratio"`
}

// DefaultPointParams returns the 50-1000 Hz extraction used by the detector
func DefaultPointParams() PointParams {
	return PointParams{
		Floor:           50,
		Ceiling:         1000,
		MinCorrelation:  0.3,
		MinPeakRatio:    0.01,
		EdgeCorrelation: 0.7,
		EdgePeakRatio:   0.023333,
	}
}

// PointProcess is a strictly increasing sequence of pulse times in seconds
type PointProcess struct {
	Times []float64 `json:"times"`
}

// Len returns the number of points
func (pp *PointProcess) Len() int {
	return len(pp.Times)
}

// Periods returns the intervals between consecutive points
func (pp *PointProcess) Periods() []float64 {
	if len(pp.Times) < 2 {
		return nil
	}
	out := make([]float64, len(pp.Times)-1)
	for i := range out {
		out[i] = pp.Times[i+1] - pp.Times[i]
	}
	return out
}

// PointExtractor picks glottal pulses by waveform cross-correlation. Inside
// every voiced stretch of the contour it anchors on the absolute extremum
// closest to the middle and walks outwards one local period at a time,
// placing each new pulse where the waveform best matches the previous one.
type PointExtractor struct {
	params PointParams
	logger logging.Logger
}

// NewPointExtractor creates a point extractor. A nil logger is replaced by a
// no-op.
func NewPointExtractor(params PointParams, logger logging.Logger) (*PointExtractor, error) {
	if params.Floor <= 0 || params.Ceiling <= params.Floor {
		return nil, fmt.Errorf("invalid pitch range [%g, %g]", params.Floor, params.Ceiling)
	}
	return &PointExtractor{
		params: params,
		logger: logging.OrNoOp(logger).WithFields(logging.Fields{"component": "point_extractor"}),
	}, nil
}

type pulseWalker struct {
	signal     []float64
	sampleRate float64
	contour    *tonal.PitchContour
}

// Extract returns the pulses of signal for the voiced stretches of contour
func (pe *PointExtractor) Extract(ctx context.Context, signal []float64, sampleRate int, contour *tonal.PitchContour) (*PointProcess, error) {
	if contour == nil {
		return nil, fmt.Errorf("nil pitch contour")
	}
	if contour.Floor != pe.params.Floor || contour.Ceiling != pe.params.Ceiling {
		return nil, fmt.Errorf("%w: contour [%g, %g] Hz, extractor [%g, %g] Hz",
			ErrRangeMismatch, contour.Floor, contour.Ceiling, pe.params.Floor, pe.params.Ceiling)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	w := &pulseWalker{signal: signal, sampleRate: float64(sampleRate), contour: contour}
	p := pe.params
	var points []float64
	addedRight := math.Inf(-1)

	for _, iv := range contour.VoicedIntervals() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		maxPeak := w.absPeak(iv.Start, iv.End)
		middle := 0.5 * (iv.Start + iv.End)
		f0 := contour.ValueAt(middle)
		if math.IsNaN(f0) {
			continue
		}

		anchor, ok := w.extremum(middle-0.5/f0, middle+0.5/f0)
		if !ok {
			continue
		}
		points = append(points, anchor)

		// Leftwards from the anchor
		t := anchor
		for {
			f0 := contour.ValueAt(t)
			if math.IsNaN(f0) {
				break
			}
			corr, next, peak := w.bestMatch(t, 1/f0, t-1.25/f0, t-0.8/f0)
			if corr == -1 {
				next = t - 1/f0
			}
			if next < iv.Start {
				if corr > p.EdgeCorrelation && peak > p.EdgePeakRatio*maxPeak && next-addedRight > 0.8/f0 {
					points = append(points, next)
				}
				break
			}
			if corr > p.MinCorrelation && (peak == 0 || peak > p.MinPeakRatio*maxPeak) && next-addedRight > 0.8/f0 {
				points = append(points, next)
			}
			t = next
		}

		// Rightwards from the anchor
		t = anchor
		for {
			f0 := contour.ValueAt(t)
			if math.IsNaN(f0) {
				break
			}
			corr, next, peak := w.bestMatch(t, 1/f0, t+0.8/f0, t+1.25/f0)
			if corr == -1 {
				next = t + 1/f0
			}
			if next > iv.End {
				if corr > p.EdgeCorrelation && peak > p.EdgePeakRatio*maxPeak {
					points = append(points, next)
					addedRight = next
				}
				break
			}
			if corr > p.MinCorrelation && (peak == 0 || peak > p.MinPeakRatio*maxPeak) {
				points = append(points, next)
				addedRight = next
			}
			t = next
		}
	}

	points = mergePoints(points)

	pe.logger.Debug("pulses extracted", logging.Fields{"points": len(points)})

	return &PointProcess{Times: points}, nil
}

// mergePoints sorts points and collapses marks closer than a nanosecond,
// which appear where a walk meets a point already placed.
func mergePoints(points []float64) []float64 {
	slices.Sort(points)
	return slices.CompactFunc(points, func(a, b float64) bool { return math.Abs(b-a) < 1e-9 })
}

func (w *pulseWalker) index(t float64) int {
	return int(math.Round(t * w.sampleRate))
}

// absPeak returns the largest absolute sample in [t1, t2]
func (w *pulseWalker) absPeak(t1, t2 float64) float64 {
	lo := max(0, w.index(t1))
	hi := min(len(w.signal)-1, w.index(t2))
	if hi < lo {
		return 0
	}
	return common.AbsMax(w.signal[lo : hi+1])
}

// extremum returns the time of the largest absolute sample in [t1, t2],
// refined parabolically.
func (w *pulseWalker) extremum(t1, t2 float64) (float64, bool) {
	lo := max(0, w.index(t1))
	hi := min(len(w.signal)-1, w.index(t2))
	if hi < lo {
		return 0, false
	}

	best := lo
	for i := lo + 1; i <= hi; i++ {
		if math.Abs(w.signal[i]) > math.Abs(w.signal[best]) {
			best = i
		}
	}

	pos := float64(best)
	if best > 0 && best < len(w.signal)-1 {
		y1 := math.Abs(w.signal[best-1])
		y2 := math.Abs(w.signal[best])
		y3 := math.Abs(w.signal[best+1])
		if y1-2*y2+y3 < 0 {
			offset, _ := common.ParabolicPeak(y1, y2, y3)
			pos += offset
		}
	}

	return pos / w.sampleRate, true
}

// bestMatch searches [tmin, tmax] for the window centre whose waveform best
// matches the window of length windowLength centred at t. It returns the
// normalised correlation, the refined time and the absolute peak of the
// matching window. A correlation of -1 means a window fell off the signal.
func (w *pulseWalker) bestMatch(t, windowLength, tmin, tmax float64) (corr, tBest, peak float64) {
	half := int(math.Round(0.5 * windowLength * w.sampleRate))
	if half < 1 {
		return -1, t, 0
	}
	size := 2*half + 1

	centre := w.index(t)
	from := w.index(tmin)
	to := w.index(tmax)
	if to < from {
		from, to = to, from
	}

	if centre-half < 0 || centre+half >= len(w.signal) ||
		from-half < 0 || to+half >= len(w.signal) {
		return -1, t, 0
	}

	reference := w.signal[centre-half : centre-half+size]
	maxLag := to - from
	search := w.signal[from-half : to+half+1]

	numerator, err := stats.NewCrossCorrelation(maxLag).Compute(reference, search)
	if err != nil {
		return -1, t, 0
	}
	energy := stats.SlidingEnergy(search, size, maxLag)
	refEnergy := common.MeanSquare(reference) * float64(size)

	r := make([]float64, maxLag+1)
	best := 0
	for lag := range r {
		denom := math.Sqrt(refEnergy * energy[lag])
		if denom > 0 {
			r[lag] = numerator[lag] / denom
		}
		if r[lag] > r[best] {
			best = lag
		}
	}

	pos, value := common.RefineMaximum(r, best)
	tBest = float64(from) + pos
	matched := search[best : best+size]

	return value, tBest / w.sampleRate, common.AbsMax(matched)
}
