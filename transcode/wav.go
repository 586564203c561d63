package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// wavInfo holds the format metadata extracted from a RIFF/WAVE header
type wavInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// parseWAV walks the RIFF chunks and returns the fmt fields and the data
// chunk. A data chunk whose declared size overruns the file is truncated to
// what is present, as written by recorders that never patch the header.
func parseWAV(wav []byte) (wavInfo, error) {
	if !IsWAV(wav) {
		return wavInfo{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedFormat)
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return wavInfo{}, errors.New("wav fmt chunk too short")
			}
			f := wav[body:]
			info.AudioFormat = int(binary.LittleEndian.Uint16(f[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			// WAVE_FORMAT_EXTENSIBLE carries the real format in the sub-format GUID
			if info.AudioFormat == wavFormatExtensible && chunkSize >= 26 && body+26 <= len(wav) {
				info.AudioFormat = int(binary.LittleEndian.Uint16(f[24:26]))
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return wavInfo{}, errors.New("wav data chunk before fmt chunk")
			}
			end := min(body+chunkSize, len(wav))
			info.Data = wav[body:end]
			return info, nil
		}

		// Chunks are word-aligned
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}

	return wavInfo{}, errors.New("wav missing data chunk")
}

// WAVDecoder decodes 16-bit PCM WAV files natively
type WAVDecoder struct{}

// NewWAVDecoder creates a WAV decoder
func NewWAVDecoder() *WAVDecoder {
	return &WAVDecoder{}
}

// Decode parses a RIFF/WAVE file. Only 16-bit integer PCM is accepted;
// anything else returns ErrUnsupportedFormat.
func (d *WAVDecoder) Decode(ctx context.Context, data []byte) (*AudioData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := parseWAV(data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNoUsableAudio, err)
	}

	if info.AudioFormat != wavFormatPCM || info.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: wav format %d with %d bits per sample", ErrUnsupportedFormat, info.AudioFormat, info.BitsPerSample)
	}
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: wav declares %d channels at %d Hz", ErrNoUsableAudio, info.Channels, info.SampleRate)
	}

	audio, err := decodeInterleaved(info.Data, info.SampleRate, info.Channels)
	if err != nil {
		return nil, err
	}
	audio.Source = &SourceInfo{
		Format:     "wav",
		Codec:      "pcm_s16le",
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
	}
	return audio, nil
}

// EncodeWAV writes mono samples as a 16-bit PCM WAV file
func EncodeWAV(samples []float64, sampleRate int) []byte {
	pcm := Float64ToPCM16(samples)

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// AutoDecoder decodes PCM16 WAV natively and hands everything else, including
// WAV encodings the native path rejects, to a fallback decoder.
type AutoDecoder struct {
	wav      *WAVDecoder
	fallback Decoder
}

// NewAutoDecoder creates a sniffing decoder. fallback may be nil, in which
// case only PCM16 WAV is accepted.
func NewAutoDecoder(fallback Decoder) *AutoDecoder {
	return &AutoDecoder{wav: NewWAVDecoder(), fallback: fallback}
}

// Decode picks the native WAV path when the header matches
func (d *AutoDecoder) Decode(ctx context.Context, data []byte) (*AudioData, error) {
	if IsWAV(data) {
		audio, err := d.wav.Decode(ctx, data)
		if err == nil || !errors.Is(err, ErrUnsupportedFormat) || d.fallback == nil {
			return audio, err
		}
	}
	if d.fallback == nil {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty input", ErrNoUsableAudio)
		}
		return nil, fmt.Errorf("%w: not a PCM16 WAV file and no transcoder configured", ErrUnsupportedFormat)
	}
	return d.fallback.Decode(ctx, data)
}
