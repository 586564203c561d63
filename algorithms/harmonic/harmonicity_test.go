package harmonic

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 44100

func sineWave(freq, amplitude, seconds float64) []float64 {
	out := make([]float64, int(seconds*testRate))
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func newEstimator(t *testing.T) *HarmonicityCC {
	t.Helper()
	h, err := NewHarmonicityCC(DefaultHarmonicityParams(), nil)
	require.NoError(t, err)
	return h
}

func TestHarmonicitySineIsClean(t *testing.T) {
	h := newEstimator(t)
	contour, err := h.Compute(context.Background(), sineWave(150, 0.5, 1.0), testRate)
	require.NoError(t, err)

	assert.Equal(t, len(contour.Values), contour.DefinedCount())
	assert.Greater(t, contour.Mean(), 30.0)
	for _, v := range contour.Values {
		assert.LessOrEqual(t, v, MaxHNR)
	}
}

func TestHarmonicityNoiseIsRough(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := make([]float64, testRate)
	for i := range noise {
		noise[i] = rng.Float64()*2 - 1
	}

	h := newEstimator(t)
	contour, err := h.Compute(context.Background(), noise, testRate)
	require.NoError(t, err)

	require.Positive(t, contour.DefinedCount())
	assert.Less(t, contour.Mean(), 3.0)
}

func TestHarmonicitySilenceIsUndefined(t *testing.T) {
	h := newEstimator(t)
	contour, err := h.Compute(context.Background(), make([]float64, testRate/2), testRate)
	require.NoError(t, err)

	assert.Zero(t, contour.DefinedCount())
	assert.True(t, math.IsNaN(contour.Mean()))
}

func TestHarmonicityQuietFramesExcluded(t *testing.T) {
	loud := sineWave(200, 0.5, 0.5)
	quiet := sineWave(200, 0.005, 0.5)
	signal := append(loud, quiet...)

	h := newEstimator(t)
	contour, err := h.Compute(context.Background(), signal, testRate)
	require.NoError(t, err)

	defined := contour.DefinedCount()
	assert.Greater(t, defined, len(contour.Values)/3)
	assert.Less(t, defined, len(contour.Values)*2/3)
	// Excluded frames do not drag the mean down
	assert.Greater(t, contour.Mean(), 30.0)
}

func TestHNRFromCorrelation(t *testing.T) {
	assert.InDelta(t, 0.0, HNRFromCorrelation(0.5), 1e-12)
	assert.InDelta(t, 10*math.Log10(9), HNRFromCorrelation(0.9), 1e-12)
	assert.Equal(t, MaxHNR, HNRFromCorrelation(1))
	assert.Equal(t, -MaxHNR, HNRFromCorrelation(0))
}

func TestHarmonicityMeanSkipsSentinel(t *testing.T) {
	hc := &HarmonicityContour{Values: []float64{UndefinedHNR, 10, 20, UndefinedHNR}}
	assert.InDelta(t, 15.0, hc.Mean(), 1e-12)
	assert.Equal(t, 2, hc.DefinedCount())
}

func TestHarmonicityErrors(t *testing.T) {
	h := newEstimator(t)

	_, err := h.Compute(context.Background(), make([]float64, 100), testRate)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Compute(ctx, sineWave(150, 0.5, 0.5), testRate)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewHarmonicityCC(HarmonicityParams{}, nil)
	assert.Error(t, err)
}
