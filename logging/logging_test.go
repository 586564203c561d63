package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestDefaultLoggerFieldsAndLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&out, &errOut)

	child := logger.WithFields(Fields{"component": "pitch_tracker", "frames": 12})
	child.Debug("hidden at info level")
	child.Info("tracked pitch", Fields{"voiced": 9})
	child.Error(errors.New("boom"), "stage failed")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "[INFO] tracked pitch component=pitch_tracker frames=12 voiced=9")
	assert.Contains(t, errOut.String(), "[ERROR] stage failed: boom")

	// Parent is untouched by the child's fields
	logger.Info("plain")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.NotContains(t, lines[len(lines)-1], "component=")
}

func TestContextFields(t *testing.T) {
	var out bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&out, &out)

	ctx := ContextWithFields(context.Background(), Fields{"request_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"stage": "harmonicity"})

	logger.WithContext(ctx).Info("from context")
	assert.Contains(t, out.String(), "request_id=abc")
	assert.Contains(t, out.String(), "stage=harmonicity")

	_, ok := FieldsFromContext(context.Background())
	assert.False(t, ok)
}

func TestLogrusLoggerJSON(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogrusLogger(&out, "json", InfoLevel)

	logger.WithFields(Fields{"component": "server"}).
		Error(errors.New("decode failed"), "analysis failed", Fields{"reason": "input_unusable"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "analysis failed", entry["msg"])
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "input_unusable", entry["reason"])
	assert.Equal(t, "decode failed", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestLogrusLoggerLevel(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogrusLogger(&out, "text", WarnLevel)
	logger.Info("quiet")
	assert.Empty(t, out.String())

	logger.SetLevel(DebugLevel)
	logger.Debug("loud")
	assert.Contains(t, out.String(), "loud")
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, &NoOpLogger{}, OrNoOp(nil))

	l := NewDefaultLoggerWithWriters(io.Discard, io.Discard)
	assert.Same(t, l, OrNoOp(l))
}

func TestConsoleLogger(t *testing.T) {
	var out bytes.Buffer
	logger := NewConsoleLogger(&out, WarnLevel)

	logger.Info("quiet")
	logger.Warn("decoder missing", Fields{"path": "ffmpeg"})

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), "[WARN] decoder missing path=ffmpeg")
	// Buffers are never terminals
	assert.NotContains(t, out.String(), ColorYellow)
}
