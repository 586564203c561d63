package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-voz/detector"
	"github.com/RyanBlaney/sonido-voz/logging"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, detector.DefaultRules(), cfg.Classifier.Rules)
}

func TestLoadFromReaderEmptyYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromReaderOverrides(t *testing.T) {
	doc := `
server:
  listen: "127.0.0.1:9000"
  log_level: debug
  log_format: json
decoder:
  ffmpeg_path: /usr/local/bin/ffmpeg
  timeout: 5s
analysis:
  timeout: 10s
  pitch:
    ceiling: 800
  points:
    ceiling: 800
  jitter:
    longest_period: 0.025
classifier:
  decision_points: 2
  rules:
    - name: high_pitch_ceiling
      feature: f0_max
      threshold: 320
    - name: clean_voicing
      feature: hnr_mean
      threshold: 10
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.Decoder.FFmpegPath)
	assert.Equal(t, 5*time.Second, cfg.Decoder.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 800.0, cfg.Analysis.Pitch.Ceiling)
	assert.Equal(t, 50.0, cfg.Analysis.Pitch.Floor, "unset keys keep their defaults")
	assert.Equal(t, 0.025, cfg.Analysis.Jitter.LongestPeriod)
	require.Len(t, cfg.Classifier.Rules, 2)
	assert.Equal(t, 320.0, cfg.Classifier.Rules[0].Threshold)

	c, err := cfg.NewClassifier()
	require.NoError(t, err)
	assert.Len(t, c.Rules(), 2)
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listn: \":80\"\n"))
	assert.Error(t, err)
}

func TestValidateJoinsErrors(t *testing.T) {
	doc := `
server:
  listen: ""
  max_upload_bytes: 0
  log_level: loud
  log_format: xml
analysis:
  points:
    ceiling: 700
classifier:
  decision_points: 9
`
	_, err := LoadFromReader(strings.NewReader(doc))
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"server.listen", "max_upload_bytes", "log_level", "log_format", "analysis", "classifier"} {
		assert.Contains(t, msg, want)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonido-voz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":9100\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Server.LogFormat = "json"

	var out bytes.Buffer
	cfg.NewLogger(&out).Info("ready")
	assert.Contains(t, out.String(), `"msg":"ready"`)
}

func TestNewLoggerConsole(t *testing.T) {
	cfg := Default()
	cfg.Server.LogFormat = "console"
	cfg.Server.LogLevel = "debug"
	require.NoError(t, Validate(cfg))

	var out bytes.Buffer
	logger := cfg.NewLogger(&out)
	assert.IsType(t, &logging.DefaultLogger{}, logger)

	logger.Debug("tracking pitch", logging.Fields{"frames": 63})
	assert.Contains(t, out.String(), "[DEBUG] tracking pitch frames=63")
}
