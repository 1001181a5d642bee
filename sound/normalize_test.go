package sound

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"hummify/wav"
)

// makeSine builds a synthetic tone clip, equal across all channels.
func makeSine(freq float64, seconds float64, sampleRate, channels int) *Clip {
	frames := int(seconds * float64(sampleRate))
	samples := make([]float64, frames*channels)
	for i := 0; i < frames; i++ {
		v := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}
	return &Clip{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

func TestForMatchProducesMonoAtCanonicalRate(t *testing.T) {
	t.Parallel()

	normalizer := NewNormalizer(wav.NewConverter(""), t.TempDir())
	clip := makeSine(440, 5, 8000, 2)

	out := normalizer.ForMatch(clip)
	if out.Channels != 1 {
		t.Fatalf("expected 1 channel, got %d", out.Channels)
	}
	if out.SampleRate != MatchSampleRate {
		t.Fatalf("expected %d Hz, got %d", MatchSampleRate, out.SampleRate)
	}
	if math.Abs(out.Duration()-5) > 0.01 {
		t.Fatalf("resampling changed duration: got %.3fs, want 5s", out.Duration())
	}
}

func TestForAnalysisCapsDuration(t *testing.T) {
	t.Parallel()

	normalizer := NewNormalizer(wav.NewConverter(""), t.TempDir())
	clip := makeSine(440, 40, AnalysisSampleRate, 1)

	out := normalizer.ForAnalysis(clip)
	if out.SampleRate != AnalysisSampleRate {
		t.Fatalf("expected %d Hz, got %d", AnalysisSampleRate, out.SampleRate)
	}
	if out.Duration() > MaxAnalysisSeconds+0.001 {
		t.Fatalf("duration %.3fs exceeds %.0fs ceiling", out.Duration(), MaxAnalysisSeconds)
	}
	if out.Duration() < MaxAnalysisSeconds-1 {
		t.Fatalf("cap truncated too much: %.3fs", out.Duration())
	}
}

func TestTrimSilenceRemovesQuietEdges(t *testing.T) {
	t.Parallel()

	rate := AnalysisSampleRate
	silence := make([]float64, rate/2)
	tone := makeSine(440, 1, rate, 1).Samples

	var samples []float64
	samples = append(samples, silence...)
	samples = append(samples, tone...)
	samples = append(samples, silence...)
	clip := &Clip{Samples: samples, SampleRate: rate, Channels: 1}

	trimmed := TrimSilence(clip, 20)
	if len(trimmed.Samples) > len(clip.Samples) {
		t.Fatalf("trimming increased length: %d > %d", len(trimmed.Samples), len(clip.Samples))
	}
	if trimmed.Duration() > 1.2 || trimmed.Duration() < 0.8 {
		t.Fatalf("expected ~1s after trim, got %.3fs", trimmed.Duration())
	}
}

func TestTrimSilenceCollapsesAllQuietClip(t *testing.T) {
	t.Parallel()

	clip := &Clip{Samples: make([]float64, 4096), SampleRate: AnalysisSampleRate, Channels: 1}
	trimmed := TrimSilence(clip, 20)
	if len(trimmed.Samples) != 0 {
		t.Fatalf("expected empty clip, got %d samples", len(trimmed.Samples))
	}
}

func TestCapDurationLeavesShortClipsAlone(t *testing.T) {
	t.Parallel()

	clip := makeSine(440, 2, AnalysisSampleRate, 1)
	out := CapDuration(clip, MaxAnalysisSeconds)
	if len(out.Samples) != len(clip.Samples) {
		t.Fatalf("cap modified a clip under the ceiling")
	}
}

func TestDecodeWavRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clip := makeSine(440, 1, 8000, 2)
	path := filepath.Join(dir, "in.wav")
	if err := wav.WriteWavFile(path, clip.Samples, clip.SampleRate, clip.Channels); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read wav: %v", err)
	}

	normalizer := NewNormalizer(wav.NewConverter(""), dir)
	decoded, err := normalizer.Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if decoded.SampleRate != 8000 || decoded.Channels != 2 {
		t.Fatalf("decoded format %dHz/%dch, want 8000Hz/2ch", decoded.SampleRate, decoded.Channels)
	}
	if decoded.FrameCount() != clip.FrameCount() {
		t.Fatalf("decoded %d frames, want %d", decoded.FrameCount(), clip.FrameCount())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	// Converter points at a binary that doesn't exist, so the ffmpeg
	// fallback fails too and the caller sees a client-facing DecodeError.
	normalizer := NewNormalizer(wav.NewConverter("definitely-not-ffmpeg"), t.TempDir())
	_, err := normalizer.Decode(context.Background(), []byte("this is not audio at all"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	normalizer := NewNormalizer(wav.NewConverter(""), t.TempDir())
	_, err := normalizer.Decode(context.Background(), nil)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError for empty payload, got %v", err)
	}
}

func TestExportWavCreatesReadableArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	normalizer := NewNormalizer(wav.NewConverter(""), dir)
	clip := normalizer.ForMatch(makeSine(440, 1, 8000, 2))

	path, err := normalizer.ExportWav(clip)
	if err != nil {
		t.Fatalf("ExportWav returned error: %v", err)
	}
	defer os.Remove(path)

	info, err := wav.ReadWavFile(path)
	if err != nil {
		t.Fatalf("exported artifact unreadable: %v", err)
	}
	if info.Channels != 1 || info.SampleRate != MatchSampleRate || info.BitDepth != 16 {
		t.Fatalf("artifact format %dHz/%dch/%dbit, want %dHz/1ch/16bit",
			info.SampleRate, info.Channels, info.BitDepth, MatchSampleRate)
	}
}
