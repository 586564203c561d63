package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-voz/logging"
)

// TargetSampleRate is the rate every decoder delivers
const TargetSampleRate = 44100

// MinPCMBytes is the smallest amount of decoded 16-bit PCM accepted as audio
const MinPCMBytes = 1000

var (
	// ErrNoUsableAudio means the input decoded to nothing worth analysing:
	// empty, unreadable, or below MinPCMBytes of PCM.
	ErrNoUsableAudio = errors.New("no usable audio")

	// ErrUnsupportedFormat means a native decoder does not handle the encoding
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrTranscodeFailed means the external transcoder exited with an error
	ErrTranscodeFailed = errors.New("transcode failed")
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64     `json:"-"` // Mono samples in [-1, 1)
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Source     *SourceInfo   `json:"source,omitempty"`
}

// SourceInfo describes the input before decoding, when known
type SourceInfo struct {
	Format     string `json:"format"`
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
}

// Decoder turns raw uploaded bytes into mono 44100 Hz PCM
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*AudioData, error)
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`   // Path to ffmpeg binary
	FFprobePath string        `json:"ffprobe_path" yaml:"ffprobe_path"` // Path to ffprobe binary
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`           // Per-call limit for external tools
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"` // Longer input is truncated, 0 = no limit
	Probe       bool          `json:"probe" yaml:"probe"`               // Run ffprobe first to log the input format
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:  "ffmpeg",  // Assume in PATH
		FFprobePath: "ffprobe", // Assume in PATH
		Timeout:     30 * time.Second,
		MaxDuration: 60 * time.Second,
		Probe:       false,
	}
}

// Validate checks the configuration without touching the filesystem
func (c *DecoderConfig) Validate() error {
	var errs []error
	if c.FFmpegPath == "" {
		errs = append(errs, errors.New("ffmpeg path is empty"))
	}
	if c.Probe && c.FFprobePath == "" {
		errs = append(errs, errors.New("ffprobe path is empty but probing is enabled"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative: %v", c.Timeout))
	}
	if c.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max duration must not be negative: %v", c.MaxDuration))
	}
	return errors.Join(errs...)
}

// FFmpegDecoder decodes any container ffmpeg understands by piping the
// bytes through it and reading back s16le mono PCM.
type FFmpegDecoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewFFmpegDecoder creates an ffmpeg-backed decoder. A nil config selects
// the defaults and a nil logger discards output.
func NewFFmpegDecoder(config *DecoderConfig, logger logging.Logger) *FFmpegDecoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &FFmpegDecoder{
		config: config,
		logger: logging.OrNoOp(logger).WithFields(logging.Fields{"component": "audio_decoder"}),
	}
}

// Decode pipes data through ffmpeg
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*AudioData, error) {
	logger := d.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":  "Decode",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNoUsableAudio)
	}

	var source *SourceInfo
	if d.config.Probe {
		info, err := d.Probe(ctx, data)
		if err != nil {
			logger.Warn("ffprobe could not identify input", logging.Fields{"error": err.Error()})
		} else {
			source = info
			logger.Debug("Audio metadata detected", logging.Fields{
				"input_sample_rate": info.SampleRate,
				"input_channels":    info.Channels,
				"input_codec":       info.Codec,
				"input_bitrate":     info.Bitrate,
			})
		}
	}

	args := append([]string{"-v", "error", "-i", "pipe:0"}, d.buildArgs()...)
	output, err := d.run(ctx, d.config.FFmpegPath, args, data, logger)
	if err != nil {
		return nil, err
	}

	audio, err := PCM16ToAudio(output, TargetSampleRate)
	if err != nil {
		return nil, err
	}
	audio.Source = source

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples":  len(audio.PCM),
		"output_duration": audio.Duration.Seconds(),
	})

	return audio, nil
}

// DecodeFile decodes an audio file by path
func (d *FFmpegDecoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return d.Decode(ctx, data)
}

// buildArgs builds the output half of the ffmpeg command line
func (d *FFmpegDecoder) buildArgs() []string {
	args := []string{}
	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}
	return append(args,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-f", "s16le",
		"pipe:1",
	)
}

func (d *FFmpegDecoder) run(ctx context.Context, path string, args []string, stdin []byte, logger logging.Logger) ([]byte, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Running external command", logging.Fields{
		"command": path,
		"args":    strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrTranscodeFailed, path, ctxErr)
		}
		logger.Error(err, "External command failed", logging.Fields{
			"stderr": strings.TrimSpace(stderr.String()),
		})
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrTranscodeFailed, path, err, strings.TrimSpace(stderr.String()))
	}

	return output, nil
}

// Probe runs ffprobe on data and returns what it reports about the first
// audio stream.
func (d *FFmpegDecoder) Probe(ctx context.Context, data []byte) (*SourceInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		"pipe:0",
	}
	output, err := d.run(ctx, d.config.FFprobePath, args, data, d.logger)
	if err != nil {
		return nil, err
	}
	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*SourceInfo, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio streams found", ErrNoUsableAudio)
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("%w: stream is not audio type: %s", ErrNoUsableAudio, stream.CodecType)
	}

	// Unparseable numbers are left at zero
	sampleRate, _ := strconv.Atoi(stream.SampleRate)
	bitrate, _ := strconv.Atoi(stream.BitRate)

	return &SourceInfo{
		Format:     stream.CodecLongName,
		Codec:      stream.CodecName,
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Bitrate:    bitrate,
	}, nil
}

// CheckAvailability reports whether the configured ffmpeg can be executed
func (d *FFmpegDecoder) CheckAvailability(ctx context.Context) error {
	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	return nil
}

// SupportedFormats lists common containers ffmpeg is expected to decode
func (d *FFmpegDecoder) SupportedFormats() []string {
	return []string{
		"webm", "ogg", "opus", "wav", "mp3", "m4a", "aac", "flac", "mp4",
		// FFmpeg supports many more formats
	}
}
