package commands

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-voz/transcode"
)

func writeSineWAV(t *testing.T, dir string, freq float64) string {
	t.Helper()
	rate := transcode.TargetSampleRate
	samples := make([]float64, rate)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	path := filepath.Join(dir, "sine.wav")
	require.NoError(t, os.WriteFile(path, transcode.EncodeWAV(samples, rate), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFile, logLevel, logFormat, outputFormat = "", "", "", "json"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sonido-voz dev\n", out)
}

func TestAnalyzeJSON(t *testing.T) {
	path := writeSineWAV(t, t.TempDir(), 150)
	out, err := run(t, "analyze", "--log-level", "error", path)
	require.NoError(t, err)

	var res fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, path, res.File)
	require.NotNil(t, res.Result)
	assert.Nil(t, res.Error)
	assert.Equal(t, "Human Voice", res.Result.Status)
	assert.InDelta(t, 150, res.Result.F0Mean, 2)
}

func TestAnalyzeTextAndFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeSineWAV(t, dir, 150)
	bad := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(bad, []byte("junk"), 0o600))

	cfgPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("decoder:\n  ffmpeg_path: /nonexistent/ffmpeg\n"), 0o600))

	out, err := run(t, "analyze", "-c", cfgPath, "--log-level", "error", "--format", "text", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files")
	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "Human Voice")
	assert.Contains(t, out, "input_unusable")
}

func TestAnalyzeRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "analyze", "--format", "xml", "x.wav")
	assert.Error(t, err)
}

func TestAnalyzeReportsUnreadableFilePerFile(t *testing.T) {
	dir := t.TempDir()
	good := writeSineWAV(t, dir, 150)
	missing := filepath.Join(dir, "missing.wav")

	out, err := run(t, "analyze", "--log-level", "error", missing, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files")

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)

	assert.Equal(t, missing, results[0].File)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "input_unusable", results[0].Error.Reason)

	assert.Equal(t, good, results[1].File)
	require.NotNil(t, results[1].Result)
	assert.Equal(t, "Human Voice", results[1].Result.Status)
}
