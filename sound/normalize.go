package sound

// Signal normalization pipeline.
//
// Uploaded clips arrive in whatever container the client recorded: wav and
// mp3 are decoded natively, anything else goes through the configured ffmpeg
// converter. Normalized output is always single-channel 16-bit linear PCM at
// a fixed rate: 44.1 kHz on the match path (what the recognition service
// expects) and 22.05 kHz on the analysis path, which additionally trims
// near-silence at the edges and truncates to a duration ceiling.

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"hummify/utils"
	"hummify/wav"
)

const (
	// MatchSampleRate is the canonical rate for recognition uploads.
	MatchSampleRate = 44100
	// AnalysisSampleRate is the canonical rate for local feature extraction.
	AnalysisSampleRate = 22050
	// MaxAnalysisSeconds caps analysis input by truncation, never stretching.
	MaxAnalysisSeconds = 30.0
	// silenceTopDB marks samples quieter than peak-minus-20dB as trimmable.
	silenceTopDB = 20.0

	trimFrameSize = 512
)

// DecodeError marks input audio no known parser could read. Handlers surface
// it as a bad request rather than a server fault.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode audio: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Normalizer decodes arbitrary uploads into canonical PCM. It is stateless
// and safe for concurrent use; one instance is built at startup.
type Normalizer struct {
	converter *wav.Converter
	tmpDir    string
}

// NewNormalizer builds a normalizer around the given converter. Temp decode
// artifacts are written under tmpDir and removed before Decode returns.
func NewNormalizer(converter *wav.Converter, tmpDir string) *Normalizer {
	if tmpDir == "" {
		tmpDir = "tmp"
	}
	return &Normalizer{converter: converter, tmpDir: tmpDir}
}

// Decode sniffs the container of a raw upload and produces a Clip in the
// source format (original rate and channel layout). Unknown containers are
// handed to ffmpeg; if that also fails the result is a DecodeError.
func (n *Normalizer) Decode(ctx context.Context, data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty audio payload")}
	}

	switch sniffContainer(data) {
	case "wav":
		info, err := wav.ReadWavBytes(data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return clipFromInfo(info), nil
	case "mp3":
		info, err := wav.ReadMP3Bytes(data)
		if err == nil {
			return clipFromInfo(info), nil
		}
		// fall through to ffmpeg; some mp3-sniffed files are other MPEG audio
	}

	return n.decodeWithFFmpeg(ctx, data)
}

// decodeWithFFmpeg materializes the payload on disk and round-trips it
// through the converter. Both temp files are removed on every exit path.
func (n *Normalizer) decodeWithFFmpeg(ctx context.Context, data []byte) (*Clip, error) {
	if err := utils.CreateFolder(n.tmpDir); err != nil {
		return nil, err
	}

	id := utils.GenerateUniqueID()
	inputPath := filepath.Join(n.tmpDir, fmt.Sprintf("in_%s", id))
	outputPath := filepath.Join(n.tmpDir, fmt.Sprintf("dec_%s.wav", id))
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	if err := os.WriteFile(inputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to stage upload for conversion: %w", err)
	}

	if err := n.converter.ConvertToWAV(ctx, inputPath, outputPath); err != nil {
		return nil, &DecodeError{Err: err}
	}

	info, err := wav.ReadWavFile(outputPath)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return clipFromInfo(info), nil
}

// ForMatch normalizes a decoded clip for the recognition upload:
// mono, 44.1 kHz.
func (n *Normalizer) ForMatch(c *Clip) *Clip {
	return Resample(ToMono(c), MatchSampleRate)
}

// ForAnalysis normalizes a decoded clip for feature extraction: mono,
// 22.05 kHz, edge silence trimmed, truncated to the duration ceiling.
func (n *Normalizer) ForAnalysis(c *Clip) *Clip {
	out := Resample(ToMono(c), AnalysisSampleRate)
	out = TrimSilence(out, silenceTopDB)
	return CapDuration(out, MaxAnalysisSeconds)
}

// ExportWav writes a clip as a request-scoped 16-bit wav artifact and returns
// its path. The caller owns deletion.
func (n *Normalizer) ExportWav(c *Clip) (string, error) {
	if err := utils.CreateFolder(n.tmpDir); err != nil {
		return "", err
	}
	path := filepath.Join(n.tmpDir, fmt.Sprintf("rec_%s.wav", utils.GenerateUniqueID()))
	if err := wav.WriteWavFile(path, c.Samples, c.SampleRate, c.Channels); err != nil {
		return "", err
	}
	return path, nil
}

// TrimSilence drops leading and trailing frames whose RMS sits below
// peak - topDB. A clip that is entirely silent collapses to empty; trimming
// never lengthens the clip.
func TrimSilence(c *Clip, topDB float64) *Clip {
	if len(c.Samples) == 0 || c.Channels != 1 {
		return c
	}

	var peak float64
	for _, s := range c.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return &Clip{Samples: nil, SampleRate: c.SampleRate, Channels: 1}
	}

	threshold := peak * math.Pow(10, -topDB/20)

	start := len(c.Samples)
	end := 0
	for off := 0; off < len(c.Samples); off += trimFrameSize {
		frameEnd := off + trimFrameSize
		if frameEnd > len(c.Samples) {
			frameEnd = len(c.Samples)
		}
		if frameRMS(c.Samples[off:frameEnd]) >= threshold {
			if off < start {
				start = off
			}
			end = frameEnd
		}
	}
	if start >= end {
		return &Clip{Samples: nil, SampleRate: c.SampleRate, Channels: 1}
	}

	trimmed := make([]float64, end-start)
	copy(trimmed, c.Samples[start:end])
	return &Clip{Samples: trimmed, SampleRate: c.SampleRate, Channels: 1}
}

// CapDuration truncates a clip to at most maxSeconds.
func CapDuration(c *Clip, maxSeconds float64) *Clip {
	limit := int(maxSeconds * float64(c.SampleRate) * float64(c.Channels))
	if limit <= 0 || len(c.Samples) <= limit {
		return c
	}
	capped := make([]float64, limit)
	copy(capped, c.Samples[:limit])
	return &Clip{Samples: capped, SampleRate: c.SampleRate, Channels: c.Channels}
}

func frameRMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func clipFromInfo(info *wav.Info) *Clip {
	return &Clip{
		Samples:    info.Samples,
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
	}
}

func sniffContainer(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return "wav"
	}
	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return "mp3"
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return "mp3"
	}
	return ""
}
