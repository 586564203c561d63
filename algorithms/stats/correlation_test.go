package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directCorrelation(a, b []float64, lag int) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i+lag]
	}
	return sum
}

func TestAutoCorrelationMatchesDirectSum(t *testing.T) {
	frame := make([]float64, 300)
	for i := range frame {
		frame[i] = math.Sin(2*math.Pi*float64(i)/37) + 0.25*math.Cos(2*math.Pi*float64(i)/11)
	}

	ac := NewAutoCorrelation(2 * len(frame))
	assert.Equal(t, 1024, ac.FFTSize())

	r, err := ac.Compute(frame)
	require.NoError(t, err)
	require.Len(t, r, 512)

	padded := append(append([]float64{}, frame...), make([]float64, 300)...)
	for _, lag := range []int{0, 1, 37, 74, 150} {
		want := directCorrelation(frame[:len(frame)-lag], padded, lag)
		assert.InDelta(t, want, r[lag], 1e-8, "lag %d", lag)
	}
}

func TestAutoCorrelationRejectsOversizedFrame(t *testing.T) {
	_, err := NewAutoCorrelation(8).Compute(make([]float64, 9))
	assert.Error(t, err)

	_, err = NewAutoCorrelation(8).Compute(nil)
	assert.Error(t, err)
}

func TestCrossCorrelationMatchesDirectSum(t *testing.T) {
	search := make([]float64, 400)
	for i := range search {
		search[i] = math.Sin(float64(i)*0.21) * math.Exp(-float64(i)/500)
	}
	reference := search[:100]

	cc := NewCrossCorrelation(250)
	c, err := cc.Compute(reference, search)
	require.NoError(t, err)
	require.Len(t, c, 251)

	for _, lag := range []int{0, 3, 30, 250} {
		assert.InDelta(t, directCorrelation(reference, search, lag), c[lag], 1e-8, "lag %d", lag)
	}

	_, err = cc.Compute(reference, search[:200])
	assert.Error(t, err)
}

func TestSlidingEnergy(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	e := SlidingEnergy(x, 2, 3)
	assert.InDeltaSlice(t, []float64{5, 13, 25, 41}, e, 1e-12)

	assert.Equal(t, []float64{0, 0}, SlidingEnergy(x, 5, 1))
}
