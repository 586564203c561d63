package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// PitchFrame is one analysis frame of a contour. Unvoiced frames carry a NaN
// frequency, never 0 Hz.
type PitchFrame struct {
	Time      float64 `json:"time"`      // Frame centre (s)
	Frequency float64 `json:"frequency"` // F0 (Hz), NaN when unvoiced
	Strength  float64 `json:"strength"`  // Strength of the chosen candidate
	Voiced    bool    `json:"voiced"`
}

// PitchContour is the output of PitchTracker
type PitchContour struct {
	FirstTime float64      `json:"first_time"`
	TimeStep  float64      `json:"time_step"`
	Duration  float64      `json:"duration"` // Duration of the analysed signal (s)
	Floor     float64      `json:"floor"`
	Ceiling   float64      `json:"ceiling"`
	Frames    []PitchFrame `json:"frames"`
}

// VoicedCount returns the number of voiced frames
func (pc *PitchContour) VoicedCount() int {
	n := 0
	for _, f := range pc.Frames {
		if f.Voiced {
			n++
		}
	}
	return n
}

// VoicedFrequencies returns the F0 values of the voiced frames in order
func (pc *PitchContour) VoicedFrequencies() []float64 {
	out := make([]float64, 0, len(pc.Frames))
	for _, f := range pc.Frames {
		if f.Voiced {
			out = append(out, f.Frequency)
		}
	}
	return out
}

// Mean returns the mean F0 over voiced frames, or NaN when none are voiced
func (pc *PitchContour) Mean() float64 {
	return common.Mean(pc.VoicedFrequencies())
}

// Max returns the highest F0 over voiced frames. The discrete maximum is
// refined with a parabola through its neighbours when both are voiced.
// NaN when no frame is voiced.
func (pc *PitchContour) Max() float64 {
	return pc.extremum(func(a, b float64) bool { return a > b }, common.RefineMaximum)
}

// Min returns the lowest F0 over voiced frames, refined like Max
func (pc *PitchContour) Min() float64 {
	return pc.extremum(func(a, b float64) bool { return a < b }, common.RefineMinimum)
}

func (pc *PitchContour) extremum(better func(a, b float64) bool, refine func([]float64, int) (float64, float64)) float64 {
	best := -1
	for i, f := range pc.Frames {
		if !f.Voiced {
			continue
		}
		if best < 0 || better(f.Frequency, pc.Frames[best].Frequency) {
			best = i
		}
	}
	if best < 0 {
		return math.NaN()
	}

	if best == 0 || best == len(pc.Frames)-1 ||
		!pc.Frames[best-1].Voiced || !pc.Frames[best+1].Voiced {
		return pc.Frames[best].Frequency
	}

	triple := []float64{
		pc.Frames[best-1].Frequency,
		pc.Frames[best].Frequency,
		pc.Frames[best+1].Frequency,
	}
	_, v := refine(triple, 1)
	return v
}

// ValueAt returns the F0 at time t, linearly interpolated between the two
// surrounding frames when both are voiced. It is NaN when the nearest frame
// is unvoiced or t lies outside the contour.
func (pc *PitchContour) ValueAt(t float64) float64 {
	if len(pc.Frames) == 0 {
		return math.NaN()
	}

	pos := (t - pc.FirstTime) / pc.TimeStep
	nearest := int(math.Round(pos))
	if nearest < 0 || nearest >= len(pc.Frames) {
		return math.NaN()
	}
	if !pc.Frames[nearest].Voiced {
		return math.NaN()
	}

	left := int(math.Floor(pos))
	right := left + 1
	if left < 0 || right >= len(pc.Frames) || !pc.Frames[left].Voiced || !pc.Frames[right].Voiced {
		return pc.Frames[nearest].Frequency
	}

	frac := pos - float64(left)
	return pc.Frames[left].Frequency + frac*(pc.Frames[right].Frequency-pc.Frames[left].Frequency)
}

// Interval is a half-open time span in seconds
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// VoicedIntervals returns the maximal runs of voiced frames as time spans.
// Each run extends half a time step beyond its outer frame centres, clipped
// to the signal duration.
func (pc *PitchContour) VoicedIntervals() []Interval {
	var out []Interval
	half := 0.5 * pc.TimeStep

	for i := 0; i < len(pc.Frames); {
		if !pc.Frames[i].Voiced {
			i++
			continue
		}
		j := i
		for j+1 < len(pc.Frames) && pc.Frames[j+1].Voiced {
			j++
		}
		out = append(out, Interval{
			Start: math.Max(0, pc.Frames[i].Time-half),
			End:   math.Min(pc.Duration, pc.Frames[j].Time+half),
		})
		i = j + 1
	}

	return out
}
