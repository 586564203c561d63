package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("ffmpeg exited 1")
	err := fmt.Errorf("wrapped: %w", newError(KindInputUnusable, StageDecode, cause))

	assert.ErrorIs(t, err, ErrInputUnusable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNoVoiceFeatures)
	assert.Equal(t, KindInputUnusable, KindOf(err))
	assert.Contains(t, err.Error(), "decode")
}

func TestStageErrorClassification(t *testing.T) {
	ctx := context.Background()

	ae := stageError(ctx, KindInternal, StagePitch, errors.New("boom"))
	assert.Equal(t, KindInternal, ae.Kind)

	ae = stageError(ctx, KindInternal, StagePitch, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, ae.Kind)

	existing := newError(KindPitchExtractionFailed, StageJitter, nil)
	ae = stageError(ctx, KindInternal, StagePitch, existing)
	assert.Same(t, existing, ae)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	ae = stageError(cancelled, KindInputUnusable, StageDecode, errors.New("killed"))
	assert.Equal(t, KindTimeout, ae.Kind)
}

func TestKindReasons(t *testing.T) {
	assert.Equal(t, "input_unusable", KindInputUnusable.Reason())
	assert.Equal(t, "voice_features_not_found", KindPitchExtractionFailed.Reason())
	assert.Equal(t, "analysis_failed", KindInternal.Reason())
	assert.Equal(t, "timeout", KindTimeout.Reason())
	assert.Equal(t, Kind(0), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("other")))
}

func TestErrorReportDistinguishesCauses(t *testing.T) {
	noAudio := NewErrorReport(newError(KindInputUnusable, StageInput, nil))
	noVoice := NewErrorReport(newError(KindPitchExtractionFailed, StagePitch, nil))

	assert.Equal(t, StatusError, noAudio.Status)
	assert.Equal(t, "input_unusable", noAudio.Reason)
	assert.Equal(t, "voice_features_not_found", noVoice.Reason)
	assert.NotEqual(t, noAudio.Message, noVoice.Message)

	internal := NewErrorReport(errors.New("secret path /tmp/x"))
	assert.Equal(t, "analysis_failed", internal.Reason)
	assert.NotContains(t, internal.Message, "/tmp")

	assert.True(t, IsVerdictless(newError(KindInputUnusable, StageInput, nil)))
	assert.False(t, IsVerdictless(newError(KindTimeout, StageInput, nil)))
}

func TestReportJSONKeys(t *testing.T) {
	f, err := NewFeatures(150.126, 100, 320.5, 1.234, 12.3456, math.NaN())
	require.NoError(t, err)
	res := &Result{Features: f, Verdict: DefaultClassifier().Classify(f)}

	data, err := json.Marshal(res.Report())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"status", "score", "F0_mean", "F0_min", "F0_max", "rangeF0", "jitter_local", "HNR_mean", "ai_points", "shimmer"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, 150.13, doc["F0_mean"])
	assert.Equal(t, 220.5, doc["rangeF0"])
	assert.Equal(t, 12.35, doc["HNR_mean"])
	assert.Nil(t, doc["shimmer"])
	assert.Equal(t, float64(res.Verdict.AIPoints), doc["ai_points"])
}
