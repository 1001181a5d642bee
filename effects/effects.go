package effects

// Remix effect chain.
//
// Effects apply in a fixed order -- pitch, speed, reverse, echo, reverb --
// because the stages don't commute. Each stage takes a clip and returns a new
// one; parameters left at their defaults skip the stage entirely, so a
// default ChainSpec is a no-op.
//
// Pitch shifting is the resampling kind: raising pitch also shortens the clip
// (the classic chipmunk/demon effect), it is not phase-vocoder
// pitch-preserving shifting.

import (
	"fmt"
	"math"

	"hummify/sound"
)

const (
	echoDelaySeconds = 0.150
	echoMaxStrength  = 0.7

	minEchoIntensity   = 0
	maxEchoIntensity   = 100
	minReverbIntensity = 0
	maxReverbIntensity = 100
)

// InvalidParameterError reports an effect parameter outside its domain.
// It is a client error: no audio has been touched when it is returned.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// ChainSpec is an ordered set of effect parameters.
type ChainSpec struct {
	Pitch   int     // semitone offset, negative allowed, 0 = off
	Speed   float64 // playback factor, must be > 0, 1.0 = off
	Reverse bool
	Echo    int // intensity 0-100, 0 = off
	Reverb  int // intensity 0-100, 0 = off
}

// DefaultChainSpec returns the all-no-op spec.
func DefaultChainSpec() ChainSpec {
	return ChainSpec{Speed: 1.0}
}

// Validate rejects parameters outside their domain. Intensities are not
// errors when out of range; Normalized clamps them.
func (s ChainSpec) Validate() error {
	if s.Speed <= 0 {
		return &InvalidParameterError{Param: "speed", Reason: "must be a positive number"}
	}
	return nil
}

// Normalized returns a copy with echo and reverb clamped into [0, 100].
func (s ChainSpec) Normalized() ChainSpec {
	s.Echo = clampInt(s.Echo, minEchoIntensity, maxEchoIntensity)
	s.Reverb = clampInt(s.Reverb, minReverbIntensity, maxReverbIntensity)
	return s
}

// Apply runs the chain over a clip. The input is never mutated.
func Apply(c *sound.Clip, spec ChainSpec) (*sound.Clip, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Normalized()

	out := c
	if spec.Pitch != 0 {
		out = PitchShift(out, spec.Pitch)
	}
	if spec.Speed != 1.0 {
		out = SpeedChange(out, spec.Speed)
	}
	if spec.Reverse {
		out = Reverse(out)
	}
	if spec.Echo > 0 {
		out = Echo(out, spec.Echo)
	}
	if spec.Reverb > 0 {
		out = Reverb(out, spec.Reverb)
	}
	return out, nil
}

// PitchShift raises or lowers pitch by resampling: n semitones multiply the
// playback rate by 2^(n/12), so duration scales by 2^(-n/12).
func PitchShift(c *sound.Clip, semitones int) *sound.Clip {
	factor := math.Pow(2, float64(semitones)/12.0)
	return speedUp(c, factor)
}

// SpeedChange scales playback duration by 1/factor.
func SpeedChange(c *sound.Clip, factor float64) *sound.Clip {
	return speedUp(c, factor)
}

// Reverse flips the sample order of every channel.
func Reverse(c *sound.Clip) *sound.Clip {
	frames := c.FrameCount()
	out := make([]float64, len(c.Samples))
	for i := 0; i < frames; i++ {
		src := (frames - 1 - i) * c.Channels
		dst := i * c.Channels
		copy(out[dst:dst+c.Channels], c.Samples[src:src+c.Channels])
	}
	return &sound.Clip{Samples: out, SampleRate: c.SampleRate, Channels: c.Channels}
}

// EchoDecay computes the decay factor for an intensity in [0, 100]:
// 1 - (intensity/100 * 0.7). The delayed copy is attenuated so its level
// ends up (1 - decay) of the original; higher intensity means a louder echo.
func EchoDecay(intensity int) float64 {
	return 1 - (float64(intensity)/100.0)*echoMaxStrength
}

// Echo overlays a 150 ms delayed, attenuated copy of the clip onto itself.
// Summed samples clip at the 16-bit range.
func Echo(c *sound.Clip, intensity int) *sound.Clip {
	gain := 1 - EchoDecay(intensity)
	delayFrames := int(echoDelaySeconds * float64(c.SampleRate))
	delay := delayFrames * c.Channels

	out := make([]float64, len(c.Samples))
	copy(out, c.Samples)
	for i := delay; i < len(out); i++ {
		out[i] = clampSample(out[i] + c.Samples[i-delay]*gain)
	}
	return &sound.Clip{Samples: out, SampleRate: c.SampleRate, Channels: c.Channels}
}

// Reverb applies a flat gain boost of intensity/20 dB. A deliberately simple
// stand-in for convolution reverb.
func Reverb(c *sound.Clip, intensity int) *sound.Clip {
	gain := math.Pow(10, (float64(intensity)/20.0)/20.0)
	out := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = clampSample(s * gain)
	}
	return &sound.Clip{Samples: out, SampleRate: c.SampleRate, Channels: c.Channels}
}

// speedUp accelerates playback by the given factor: each channel is
// resampled to 1/factor of its length while the declared rate stays fixed.
func speedUp(c *sound.Clip, factor float64) *sound.Clip {
	if factor == 1 || len(c.Samples) == 0 {
		return c
	}
	channels := sound.SplitChannels(c)
	out := make([][]float64, len(channels))
	for i, ch := range channels {
		out[i] = resampleTo(ch, int(math.Round(float64(len(ch))/factor)))
	}
	return sound.JoinChannels(out, c.SampleRate)
}

// resampleTo linearly interpolates a channel to an exact target length.
func resampleTo(samples []float64, targetLen int) []float64 {
	if targetLen < 1 {
		targetLen = 1
	}
	if len(samples) == 0 {
		return make([]float64, 0)
	}
	out := make([]float64, targetLen)
	step := float64(len(samples)) / float64(targetLen)
	for i := range out {
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

func clampSample(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
