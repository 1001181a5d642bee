package wav

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Converter shells out to ffmpeg for container formats the native decoders
// don't cover, and for lossy re-encoding of rendered remixes. The binary path
// comes from configuration and is verified once at startup.
type Converter struct {
	ffmpegPath string
}

// NewConverter builds a converter around the given ffmpeg binary path.
// An empty path falls back to "ffmpeg" on $PATH.
func NewConverter(ffmpegPath string) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{ffmpegPath: ffmpegPath}
}

// Check verifies the configured ffmpeg binary can be resolved.
func (c *Converter) Check() error {
	if _, err := exec.LookPath(c.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", c.ffmpegPath, err)
	}
	return nil
}

// ConvertToWAV decodes any container ffmpeg understands into a PCM wav file.
func (c *Converter) ConvertToWAV(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-acodec", "pcm_s16le",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg wav conversion failed: %w (%s)", err, stderr.String())
	}
	return nil
}

// EncodeMP3 re-encodes a wav file as MP3 at a fixed bitrate.
func (c *Converter) EncodeMP3(ctx context.Context, inputPath, outputPath, bitrate string) error {
	if bitrate == "" {
		bitrate = "128k"
	}
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-b:a", bitrate,
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg mp3 encoding failed: %w (%s)", err, stderr.String())
	}
	return nil
}
