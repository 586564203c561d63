package transcode

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// PCM16ToAudio converts mono s16le bytes to AudioData. A trailing odd byte
// is dropped. Fewer than MinPCMBytes is reported as ErrNoUsableAudio.
func PCM16ToAudio(data []byte, sampleRate int) (*AudioData, error) {
	if len(data) < MinPCMBytes {
		return nil, fmt.Errorf("%w: %d bytes of decoded PCM, need at least %d", ErrNoUsableAudio, len(data), MinPCMBytes)
	}
	samples := bytesToFloat64(data)
	return newAudio(samples, sampleRate), nil
}

func newAudio(samples []float64, sampleRate int) *AudioData {
	return &AudioData{
		PCM:        samples,
		SampleRate: sampleRate,
		Channels:   1,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(sampleRate),
	}
}

// bytesToFloat64 converts s16le bytes to samples in [-1, 1)
func bytesToFloat64(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

// Float64ToPCM16 converts samples to s16le bytes, clipping to the 16-bit range
func Float64ToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// downmix averages interleaved channels into one
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Resample converts mono samples from one rate to another
func Resample(samples []float64, from, to int) ([]float64, error) {
	if from == to {
		return samples, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	return append(out, tail...), nil
}

// PCMDecoder interprets its input as raw s16le PCM with a declared layout.
// Multi-channel input is averaged to mono and other rates are resampled
// to TargetSampleRate.
type PCMDecoder struct {
	SampleRate int
	Channels   int
}

// NewPCMDecoder creates a raw PCM decoder
func NewPCMDecoder(sampleRate, channels int) *PCMDecoder {
	return &PCMDecoder{SampleRate: sampleRate, Channels: channels}
}

// Decode converts raw PCM bytes
func (d *PCMDecoder) Decode(ctx context.Context, data []byte) (*AudioData, error) {
	if d.SampleRate <= 0 || d.Channels <= 0 {
		return nil, fmt.Errorf("%w: pcm layout %d Hz x %d channels", ErrUnsupportedFormat, d.SampleRate, d.Channels)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return decodeInterleaved(data, d.SampleRate, d.Channels)
}

func decodeInterleaved(data []byte, sampleRate, channels int) (*AudioData, error) {
	if len(data) < MinPCMBytes {
		return nil, fmt.Errorf("%w: %d bytes of decoded PCM, need at least %d", ErrNoUsableAudio, len(data), MinPCMBytes)
	}

	samples := downmix(bytesToFloat64(data), channels)
	samples, err := Resample(samples, sampleRate, TargetSampleRate)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: resampling produced no samples", ErrNoUsableAudio)
	}

	return newAudio(samples, TargetSampleRate), nil
}
