package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// ReferencePressure is the auditory threshold in Pascal used as the 0 dB
// reference for intensity.
const ReferencePressure = 2e-5

// DefaultTargetIntensity is the loudness every waveform is scaled to before
// feature extraction.
const DefaultTargetIntensity = 75.0

// Intensity returns the overall intensity of the signal in dB relative to
// ReferencePressure. Silent or empty input yields -Inf.
func Intensity(signal []float64) float64 {
	power := common.MeanSquare(signal)
	if power <= 0 {
		return math.Inf(-1)
	}
	return 10.0 * math.Log10(power/(ReferencePressure*ReferencePressure))
}

// ScaleIntensity returns a new waveform multiplied by the constant gain that
// brings its intensity to targetDB. The input is never modified.
//
// All-zero input is returned as an unscaled copy; there is no gain that can
// give silence a loudness, and the pitch stage reports it as unusable.
func ScaleIntensity(signal []float64, targetDB float64) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)

	current := Intensity(signal)
	if math.IsInf(current, -1) || math.IsNaN(current) {
		return out
	}

	gain := math.Pow(10, (targetDB-current)/20.0)
	for i := range out {
		out[i] *= gain
	}

	return out
}
