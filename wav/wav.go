package wav

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Info holds decoded PCM audio. Samples are interleaved and scaled to the
// [-1, 1] range regardless of the source bit depth.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []float64
}

// Duration returns the playback length in seconds.
func (i *Info) Duration() float64 {
	if i.SampleRate <= 0 || i.Channels <= 0 {
		return 0
	}
	return float64(len(i.Samples)) / float64(i.Channels) / float64(i.SampleRate)
}

// ReadWavBytes decodes a RIFF/WAVE payload into PCM samples.
func ReadWavBytes(data []byte) (*Info, error) {
	decoder := gowav.NewDecoder(bytes.NewReader(data))
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav data: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("wav data has invalid format chunk")
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		bitDepth = 16
	}

	scale := float64(int64(1) << (bitDepth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}

	return &Info{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   bitDepth,
		Samples:    samples,
	}, nil
}

// ReadWavFile decodes a wav file from disk.
func ReadWavFile(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav file: %w", err)
	}
	return ReadWavBytes(data)
}

// ReadMP3Bytes decodes an MPEG-1 layer 3 payload. The decoder always yields
// 16-bit stereo at the stream's sample rate.
func ReadMP3Bytes(data []byte) (*Info, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3 data: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read mp3 stream: %w", err)
	}

	sampleCount := len(raw) / 2
	samples := make([]float64, 0, sampleCount)
	for i := 0; i+1 < len(raw); i += 2 {
		v := int16(raw[i]) | int16(raw[i+1])<<8
		samples = append(samples, float64(v)/32768.0)
	}

	return &Info{
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		BitDepth:   16,
		Samples:    samples,
	}, nil
}

// WriteWavFile encodes interleaved [-1, 1] samples as 16-bit linear PCM.
func WriteWavFile(path string, samples []float64, sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", channels)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer out.Close()

	enc := gowav.NewEncoder(out, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = clampInt16(s)
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}

// SamplesFromPCM16 converts raw little-endian 16-bit PCM bytes into
// interleaved [-1, 1] samples.
func SamplesFromPCM16(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data has odd byte length %d", len(data))
	}
	samples := make([]float64, len(data)/2)
	for i := 0; i < len(samples); i++ {
		v := int16(data[2*i]) | int16(data[2*i+1])<<8
		samples[i] = float64(v) / 32768.0
	}
	return samples, nil
}

func clampInt16(s float64) int {
	v := math.Round(s * 32767.0)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int(v)
}
