package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanEmptyIsNaN(t *testing.T) {
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
}

func TestRMSAndAbsMax(t *testing.T) {
	data := []float64{3, -4}
	assert.InDelta(t, math.Sqrt(12.5), RMS(data), 1e-12)
	assert.Equal(t, 4.0, AbsMax(data))
	assert.Equal(t, 0.0, RMS(nil))
}

func TestSubtractMeanDoesNotMutate(t *testing.T) {
	data := []float64{1, 2, 3}
	out := SubtractMean(data)
	assert.Equal(t, []float64{1, 2, 3}, data)
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, out, 1e-12)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 123.46, Round(123.456, 2))
	assert.Equal(t, -0.01, Round(-0.0149, 2))
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
}

func TestParabolicPeakRecoversVertex(t *testing.T) {
	// y = -(x - 0.3)^2 + 5 sampled at -1, 0, 1
	f := func(x float64) float64 { return -(x-0.3)*(x-0.3) + 5 }
	offset, value := ParabolicPeak(f(-1), f(0), f(1))
	assert.InDelta(t, 0.3, offset, 1e-12)
	assert.InDelta(t, 5.0, value, 1e-12)

	offset, value = ParabolicPeak(1, 2, 3)
	assert.Equal(t, 0.0, offset)
	assert.Equal(t, 2.0, value)
}

func TestRefineExtremaBracketDiscreteValues(t *testing.T) {
	data := []float64{100, 180, 200, 190, 120}
	pos, maxV := RefineMaximum(data, 2)
	assert.GreaterOrEqual(t, maxV, 200.0)
	assert.InDelta(t, 2.0, pos, 0.5)

	data = []float64{150, 110, 100, 105, 140}
	pos, minV := RefineMinimum(data, 2)
	assert.LessOrEqual(t, minV, 100.0)
	assert.InDelta(t, 2.0, pos, 0.5)

	// Edges are returned unrefined
	_, v := RefineMaximum(data, 0)
	assert.Equal(t, 150.0, v)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 4096, NextPowerOfTwo(3969))
	assert.Equal(t, 1024, NextPowerOfTwo(1024))
	assert.Equal(t, 1, NextPowerOfTwo(0))
}
