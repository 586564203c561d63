package speech

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-voz/algorithms/tonal"
)

const testRate = 44100

func sineWave(freq, seconds float64) []float64 {
	out := make([]float64, int(seconds*testRate))
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func trackContour(t *testing.T, signal []float64) *tonal.PitchContour {
	t.Helper()
	pt, err := tonal.NewPitchTracker(tonal.DefaultPitchParams(), nil)
	require.NoError(t, err)
	contour, err := pt.Track(context.Background(), signal, testRate)
	require.NoError(t, err)
	return contour
}

func TestPointExtractorSine(t *testing.T) {
	signal := sineWave(150, 1.0)
	contour := trackContour(t, signal)

	pe, err := NewPointExtractor(DefaultPointParams(), nil)
	require.NoError(t, err)
	pp, err := pe.Extract(context.Background(), signal, testRate, contour)
	require.NoError(t, err)

	// Roughly one pulse per cycle over the voiced part
	assert.Greater(t, pp.Len(), 120)
	assert.Less(t, pp.Len(), 160)

	for i := 1; i < pp.Len(); i++ {
		assert.Greater(t, pp.Times[i], pp.Times[i-1], "points must be strictly increasing")
	}
	for _, period := range pp.Periods() {
		assert.InDelta(t, 1.0/150, period, 0.0002)
	}

	jitter := JitterLocal(pp, DefaultJitterParams())
	require.False(t, math.IsNaN(jitter))
	assert.Less(t, jitter, 1.0)

	shimmer := ShimmerLocal(signal, testRate, pp, DefaultJitterParams())
	require.False(t, math.IsNaN(shimmer))
	assert.Less(t, shimmer, 1.0)
}

func TestPointExtractorSilence(t *testing.T) {
	signal := make([]float64, testRate/2)
	contour := trackContour(t, signal)

	pe, err := NewPointExtractor(DefaultPointParams(), nil)
	require.NoError(t, err)
	pp, err := pe.Extract(context.Background(), signal, testRate, contour)
	require.NoError(t, err)

	assert.Zero(t, pp.Len())
	assert.True(t, math.IsNaN(JitterLocal(pp, DefaultJitterParams())))
}

func TestPointExtractorRangeMismatch(t *testing.T) {
	signal := sineWave(150, 0.5)
	contour := trackContour(t, signal)

	params := DefaultPointParams()
	params.Ceiling = 600
	pe, err := NewPointExtractor(params, nil)
	require.NoError(t, err)

	_, err = pe.Extract(context.Background(), signal, testRate, contour)
	assert.ErrorIs(t, err, ErrRangeMismatch)
}

func TestPointExtractorCancelled(t *testing.T) {
	signal := sineWave(150, 0.5)
	contour := trackContour(t, signal)

	pe, err := NewPointExtractor(DefaultPointParams(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pe.Extract(ctx, signal, testRate, contour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergePointsKeepsDistinctMarks(t *testing.T) {
	got := mergePoints([]float64{0.3, 0.1, 0.2, 0.1 + 1e-12, 0.2})
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)

	assert.Equal(t, []float64{0.5}, mergePoints([]float64{0.5}))
	assert.Empty(t, mergePoints(nil))
}

func TestPointExtractorPulseCountAcrossPitches(t *testing.T) {
	pe, err := NewPointExtractor(DefaultPointParams(), nil)
	require.NoError(t, err)

	for _, freq := range []float64{100, 250, 400} {
		signal := sineWave(freq, 0.5)
		contour := trackContour(t, signal)

		pp, err := pe.Extract(context.Background(), signal, testRate, contour)
		require.NoError(t, err, freq)

		// About one mark per cycle over the voiced stretch
		cycles := 0.5 * freq
		assert.Greater(t, float64(pp.Len()), 0.7*cycles, "%g Hz", freq)
		assert.LessOrEqual(t, float64(pp.Len()), cycles+1, "%g Hz", freq)
		assert.False(t, math.IsNaN(JitterLocal(pp, DefaultJitterParams())), "%g Hz", freq)
	}
}
