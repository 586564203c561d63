package speech

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// JitterParams bounds the periods that take part in perturbation measures
type JitterParams struct {
	ShortestPeriod     float64 `json:"shortest_period" yaml:"shortest_period"`           // Seconds
	LongestPeriod      float64 `json:"longest_period" yaml:"longest_period"`             // Seconds
	MaxPeriodFactor    float64 `json:"max_period_factor" yaml:"max_period_factor"`       // Largest ratio of neighbouring periods
	MaxAmplitudeFactor float64 `json:"max_amplitude_factor" yaml:"max_amplitude_factor"` // Shimmer only
}

// DefaultJitterParams returns the bounds used by the detector
func DefaultJitterParams() JitterParams {
	return JitterParams{
		ShortestPeriod:     0.0001,
		LongestPeriod:      0.02,
		MaxPeriodFactor:    1.3,
		MaxAmplitudeFactor: 1.6,
	}
}

// Validate checks the period bounds
func (p JitterParams) Validate() error {
	if p.ShortestPeriod <= 0 || p.LongestPeriod <= p.ShortestPeriod {
		return fmt.Errorf("invalid period bounds [%g, %g]", p.ShortestPeriod, p.LongestPeriod)
	}
	if p.MaxPeriodFactor < 1 {
		return fmt.Errorf("max period factor must be at least 1, got %g", p.MaxPeriodFactor)
	}
	if p.MaxAmplitudeFactor < 1 {
		return fmt.Errorf("max amplitude factor must be at least 1, got %g", p.MaxAmplitudeFactor)
	}
	return nil
}

func (p JitterParams) inRange(period float64) bool {
	return period >= p.ShortestPeriod && period <= p.LongestPeriod
}

func (p JitterParams) compatible(a, b float64) bool {
	return a <= b*p.MaxPeriodFactor && b <= a*p.MaxPeriodFactor
}

// admissible reports whether periods[i] counts towards the mean period: it
// must be in range, and at least one in-range neighbour must be within the
// period factor. A period without in-range neighbours is kept.
func (p JitterParams) admissible(periods []float64, i int) bool {
	if !p.inRange(periods[i]) {
		return false
	}

	neighbours, compatible := 0, 0
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(periods) || !p.inRange(periods[j]) {
			continue
		}
		neighbours++
		if p.compatible(periods[i], periods[j]) {
			compatible++
		}
	}

	return neighbours == 0 || compatible > 0
}

// MeanPeriod returns the mean of the admissible periods, or NaN if none
func MeanPeriod(pp *PointProcess, params JitterParams) float64 {
	periods := pp.Periods()
	kept := make([]float64, 0, len(periods))
	for i := range periods {
		if params.admissible(periods, i) {
			kept = append(kept, periods[i])
		}
	}
	return common.Mean(kept)
}

// JitterLocal returns the local jitter of the point process in percent: the
// mean absolute difference of consecutive periods divided by the mean
// period. Pairs with an out-of-range period or a ratio above MaxPeriodFactor
// are skipped. NaN is returned when the measure is undefined, which is the
// case for fewer than three points or no admissible pair.
func JitterLocal(pp *PointProcess, params JitterParams) float64 {
	if pp == nil || pp.Len() < 3 {
		return math.NaN()
	}

	periods := pp.Periods()
	var diffs []float64
	for i := 0; i+1 < len(periods); i++ {
		p1, p2 := periods[i], periods[i+1]
		if !params.inRange(p1) || !params.inRange(p2) || !params.compatible(p1, p2) {
			continue
		}
		diffs = append(diffs, math.Abs(p1-p2))
	}
	if len(diffs) == 0 {
		return math.NaN()
	}

	mean := MeanPeriod(pp, params)
	if !common.IsFinite(mean) || mean <= 0 {
		return math.NaN()
	}

	return floats.Sum(diffs) / float64(len(diffs)) / mean * 100.0
}

// PeriodAmplitudes returns the peak absolute amplitude of the signal within
// each period of the point process.
func PeriodAmplitudes(signal []float64, sampleRate int, pp *PointProcess) []float64 {
	if pp == nil || pp.Len() < 2 || sampleRate <= 0 {
		return nil
	}

	rate := float64(sampleRate)
	out := make([]float64, pp.Len()-1)
	for i := range out {
		lo := max(0, int(math.Round(pp.Times[i]*rate)))
		hi := min(len(signal), int(math.Round(pp.Times[i+1]*rate)))
		if hi > lo {
			out[i] = common.AbsMax(signal[lo:hi])
		}
	}
	return out
}

// ShimmerLocal returns the local shimmer in percent: the mean absolute
// difference of the peak amplitudes of consecutive periods divided by the
// mean peak amplitude. Pairs are skipped under the same period rules as
// JitterLocal and when the amplitude ratio exceeds MaxAmplitudeFactor.
// NaN means undefined.
func ShimmerLocal(signal []float64, sampleRate int, pp *PointProcess, params JitterParams) float64 {
	if pp == nil || pp.Len() < 3 {
		return math.NaN()
	}

	periods := pp.Periods()
	amps := PeriodAmplitudes(signal, sampleRate, pp)

	var diffs, used []float64
	for i := 0; i+1 < len(periods); i++ {
		p1, p2 := periods[i], periods[i+1]
		a1, a2 := amps[i], amps[i+1]
		if !params.inRange(p1) || !params.inRange(p2) || !params.compatible(p1, p2) {
			continue
		}
		if a1 <= 0 || a2 <= 0 || a1 > a2*params.MaxAmplitudeFactor || a2 > a1*params.MaxAmplitudeFactor {
			continue
		}
		diffs = append(diffs, math.Abs(a1-a2))
		used = append(used, a1, a2)
	}
	if len(diffs) == 0 {
		return math.NaN()
	}

	meanAmp := common.Mean(used)
	if meanAmp <= 0 {
		return math.NaN()
	}

	return floats.Sum(diffs) / float64(len(diffs)) / meanAmp * 100.0
}
