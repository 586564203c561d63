package tonal

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 44100

func sineWave(freq, seconds float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func newTracker(t *testing.T) *PitchTracker {
	t.Helper()
	pt, err := NewPitchTracker(DefaultPitchParams(), nil)
	require.NoError(t, err)
	return pt
}

func TestPitchTrackerSine(t *testing.T) {
	tests := []struct {
		name string
		freq float64
	}{
		{"low male", 110},
		{"150 Hz", 150},
		{"high", 440},
	}

	pt := newTracker(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contour, err := pt.Track(context.Background(), sineWave(tt.freq, 1.0), testRate)
			require.NoError(t, err)
			require.NotEmpty(t, contour.Frames)

			assert.Greater(t, contour.VoicedCount(), len(contour.Frames)*9/10)
			assert.InDelta(t, tt.freq, contour.Mean(), tt.freq*0.01)
			assert.InDelta(t, tt.freq, contour.Min(), tt.freq*0.02)
			assert.InDelta(t, tt.freq, contour.Max(), tt.freq*0.02)
			assert.GreaterOrEqual(t, contour.Max(), contour.Min())
		})
	}
}

func TestPitchTrackerFrameGeometry(t *testing.T) {
	pt := newTracker(t)
	contour, err := pt.Track(context.Background(), sineWave(150, 1.0), testRate)
	require.NoError(t, err)

	assert.InDelta(t, 0.015, contour.TimeStep, 1e-12)
	// (1.0 - 0.06) / 0.015 + 1 frames, centred in the signal
	assert.Len(t, contour.Frames, 63)
	mid := contour.Frames[0].Time + contour.Frames[len(contour.Frames)-1].Time
	assert.InDelta(t, 1.0, mid, 1e-9)
}

func TestPitchTrackerSilence(t *testing.T) {
	pt := newTracker(t)
	contour, err := pt.Track(context.Background(), make([]float64, testRate/2), testRate)
	require.NoError(t, err)

	assert.Zero(t, contour.VoicedCount())
	assert.True(t, math.IsNaN(contour.Mean()))
	assert.True(t, math.IsNaN(contour.Max()))
	assert.Empty(t, contour.VoicedIntervals())
	for _, f := range contour.Frames {
		assert.True(t, math.IsNaN(f.Frequency))
	}
}

func TestPitchTrackerDeterministic(t *testing.T) {
	pt := newTracker(t)
	signal := sineWave(180, 0.5)

	a, err := pt.Track(context.Background(), signal, testRate)
	require.NoError(t, err)
	b, err := pt.Track(context.Background(), signal, testRate)
	require.NoError(t, err)
	assert.Equal(t, a.VoicedFrequencies(), b.VoicedFrequencies())
}

func TestPitchTrackerErrors(t *testing.T) {
	pt := newTracker(t)

	_, err := pt.Track(context.Background(), make([]float64, 100), testRate)
	assert.ErrorIs(t, err, ErrSignalTooShort)

	_, err = pt.Track(context.Background(), sineWave(150, 0.5), 0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pt.Track(ctx, sineWave(150, 0.5), testRate)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPitchParamsValidate(t *testing.T) {
	p := DefaultPitchParams()
	require.NoError(t, p.Validate())
	assert.InDelta(t, 0.015, p.EffectiveTimeStep(), 1e-12)

	bad := p
	bad.Ceiling = 40
	assert.Error(t, bad.Validate())

	bad = p
	bad.Floor = 0
	_, err := NewPitchTracker(bad, nil)
	assert.Error(t, err)
}
