package sound

// Clip is an immutable-by-convention PCM buffer. Samples are interleaved
// floats in [-1, 1]. Processing stages return new clips rather than mutating
// their input.
type Clip struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// FrameCount returns the number of sample frames (samples per channel).
func (c *Clip) FrameCount() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.FrameCount()) / float64(c.SampleRate)
}

// ToMono downmixes a clip by averaging channels. Mono clips are returned
// unchanged.
func ToMono(c *Clip) *Clip {
	if c.Channels <= 1 {
		return c
	}
	frames := c.FrameCount()
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Samples[i*c.Channels+ch]
		}
		mono[i] = sum / float64(c.Channels)
	}
	return &Clip{Samples: mono, SampleRate: c.SampleRate, Channels: 1}
}

// Resample converts a clip to a new sample rate using linear interpolation.
// Duration is preserved.
func Resample(c *Clip, targetRate int) *Clip {
	if targetRate <= 0 || c.SampleRate == targetRate || len(c.Samples) == 0 {
		return c
	}

	channels := SplitChannels(c)
	ratio := float64(targetRate) / float64(c.SampleRate)
	resampled := make([][]float64, len(channels))
	for i, ch := range channels {
		resampled[i] = resampleChannel(ch, ratio)
	}
	return JoinChannels(resampled, targetRate)
}

// SplitChannels de-interleaves a clip into per-channel sample slices.
func SplitChannels(c *Clip) [][]float64 {
	if c.Channels <= 1 {
		out := make([]float64, len(c.Samples))
		copy(out, c.Samples)
		return [][]float64{out}
	}
	frames := c.FrameCount()
	channels := make([][]float64, c.Channels)
	for ch := range channels {
		channels[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < c.Channels; ch++ {
			channels[ch][i] = c.Samples[i*c.Channels+ch]
		}
	}
	return channels
}

// JoinChannels interleaves per-channel slices back into a clip. All channels
// must have equal length.
func JoinChannels(channels [][]float64, sampleRate int) *Clip {
	if len(channels) == 0 {
		return &Clip{SampleRate: sampleRate, Channels: 1}
	}
	frames := len(channels[0])
	samples := make([]float64, frames*len(channels))
	for i := 0; i < frames; i++ {
		for ch := range channels {
			samples[i*len(channels)+ch] = channels[ch][i]
		}
	}
	return &Clip{Samples: samples, SampleRate: sampleRate, Channels: len(channels)}
}

// resampleChannel stretches or squeezes a channel by the given ratio of
// output samples per input sample.
func resampleChannel(samples []float64, ratio float64) []float64 {
	if ratio == 1 || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	step := 1.0 / ratio
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
