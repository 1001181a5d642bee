package sound

// Feature extraction.
//
// Computes a fixed-schema descriptor from analysis-normalized audio
// (mono, 22.05 kHz). The descriptor combines:
//
//   Temporal: RMS energy mean/std, zero crossing rate mean/std
//   Spectral: spectral centroid mean/std, spectral rolloff mean
//   Tonal:    12-bin chroma mean (pitch class energy), 13 MFCC means
//
// Frames of 2048 samples with a 512-sample hop are Hann-windowed and
// transformed with an FFT; per-frame values are aggregated into means and
// standard deviations. The vector is diagnostic: ranking of match results
// comes from the recognition service, not from these descriptors.

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	featureFrameSize = 2048
	featureHopSize   = 512

	rolloffPercent = 0.85
	melFilterCount = 26
	mfccCount      = 13
	chromaBins     = 12
)

// FeatureVector is the fixed-schema audio descriptor. It is immutable once
// produced and always derived from a single normalized clip.
type FeatureVector struct {
	SpectralCentroidMean float64             `json:"spectral_centroid_mean"`
	SpectralCentroidStd  float64             `json:"spectral_centroid_std"`
	SpectralRolloffMean  float64             `json:"spectral_rolloff_mean"`
	ZCRMean              float64             `json:"zcr_mean"`
	ZCRStd               float64             `json:"zcr_std"`
	RMSMean              float64             `json:"rms_mean"`
	RMSStd               float64             `json:"rms_std"`
	ChromaMean           [chromaBins]float64 `json:"chroma_mean"`
	MFCCMean             [mfccCount]float64  `json:"mfcc_mean"`
}

// ExtractFeatures computes the descriptor for a mono clip.
func ExtractFeatures(c *Clip) (*FeatureVector, error) {
	if len(c.Samples) == 0 {
		return nil, errors.New("no samples provided")
	}
	if c.SampleRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}
	if c.Channels != 1 {
		return nil, errors.New("feature extraction requires mono audio")
	}

	melBank := newMelFilterbank(melFilterCount, featureFrameSize, c.SampleRate)

	var (
		centroids []float64
		rolloffs  []float64
		zcrs      []float64
		rmss      []float64
		chromaSum [chromaBins]float64
		mfccSum   [mfccCount]float64
	)

	frames := 0
	for off := 0; off == 0 || off+featureFrameSize <= len(c.Samples); off += featureHopSize {
		frame := make([]float64, featureFrameSize)
		copy(frame, c.Samples[off:min(off+featureFrameSize, len(c.Samples))])

		zcrs = append(zcrs, zeroCrossingRate(frame))
		rmss = append(rmss, frameRMS(frame))

		window.Apply(frame, window.Hann)
		spectrum := fft.FFTReal(frame)
		binCount := featureFrameSize / 2
		magnitude := make([]float64, binCount)
		for i := 0; i < binCount; i++ {
			magnitude[i] = cmplx.Abs(spectrum[i])
		}
		binHz := float64(c.SampleRate) / featureFrameSize

		centroids = append(centroids, spectralCentroid(magnitude, binHz))
		rolloffs = append(rolloffs, spectralRolloff(magnitude, binHz, rolloffPercent))

		chroma := chromaFrame(magnitude, binHz)
		for i, v := range chroma {
			chromaSum[i] += v
		}
		coeffs := mfccFrame(magnitude, melBank)
		for i, v := range coeffs {
			mfccSum[i] += v
		}
		frames++
	}

	fv := &FeatureVector{}
	fv.SpectralCentroidMean, fv.SpectralCentroidStd = meanStd(centroids)
	fv.SpectralRolloffMean, _ = meanStd(rolloffs)
	fv.ZCRMean, fv.ZCRStd = meanStd(zcrs)
	fv.RMSMean, fv.RMSStd = meanStd(rmss)
	for i := range fv.ChromaMean {
		fv.ChromaMean[i] = chromaSum[i] / float64(frames)
	}
	for i := range fv.MFCCMean {
		fv.MFCCMean[i] = mfccSum[i] / float64(frames)
	}
	return fv, nil
}

func zeroCrossingRate(frame []float64) float64 {
	if len(frame) <= 1 {
		return 0
	}
	var count float64
	for i := 1; i < len(frame); i++ {
		if frame[i-1] == 0 || frame[i] == 0 {
			continue
		}
		if (frame[i-1] > 0) != (frame[i] > 0) {
			count++
		}
	}
	return count / float64(len(frame)-1)
}

func spectralCentroid(magnitude []float64, binHz float64) float64 {
	var weighted, total float64
	for i, m := range magnitude {
		weighted += float64(i) * binHz * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func spectralRolloff(magnitude []float64, binHz, percent float64) float64 {
	var total float64
	for _, m := range magnitude {
		total += m
	}
	if total == 0 {
		return 0
	}
	target := total * percent
	var cumulative float64
	for i, m := range magnitude {
		cumulative += m
		if cumulative >= target {
			return float64(i) * binHz
		}
	}
	return float64(len(magnitude)-1) * binHz
}

// chromaFrame folds spectral energy into 12 pitch classes (C=0 .. B=11),
// normalized so the strongest class in the frame is 1.
func chromaFrame(magnitude []float64, binHz float64) [chromaBins]float64 {
	var chroma [chromaBins]float64
	for i, m := range magnitude {
		freq := float64(i) * binHz
		if freq < 27.5 {
			continue
		}
		midi := 69 + 12*math.Log2(freq/440.0)
		class := ((int(math.Round(midi)) % chromaBins) + chromaBins) % chromaBins
		chroma[class] += m * m
	}
	var peak float64
	for _, v := range chroma {
		if v > peak {
			peak = v
		}
	}
	if peak > 0 {
		for i := range chroma {
			chroma[i] /= peak
		}
	}
	return chroma
}

// mfccFrame projects the power spectrum onto a mel filterbank, takes log
// energies, and decorrelates with a DCT-II keeping the first 13 coefficients.
func mfccFrame(magnitude []float64, melBank [][]float64) [mfccCount]float64 {
	logEnergies := make([]float64, len(melBank))
	for f, filter := range melBank {
		var energy float64
		for i, w := range filter {
			if w == 0 {
				continue
			}
			energy += w * magnitude[i] * magnitude[i]
		}
		logEnergies[f] = math.Log(energy + 1e-10)
	}

	var coeffs [mfccCount]float64
	n := float64(len(logEnergies))
	for k := 0; k < mfccCount; k++ {
		var sum float64
		for i, e := range logEnergies {
			sum += e * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*n))
		}
		coeffs[k] = sum
	}
	return coeffs
}

// newMelFilterbank builds triangular filters spaced evenly on the mel scale
// between 0 Hz and Nyquist, mapped onto FFT bins.
func newMelFilterbank(filterCount, fftSize, sampleRate int) [][]float64 {
	binCount := fftSize / 2
	maxMel := hzToMel(float64(sampleRate) / 2)

	points := make([]int, filterCount+2)
	for i := range points {
		hz := melToHz(maxMel * float64(i) / float64(filterCount+1))
		bin := int(hz / (float64(sampleRate) / float64(fftSize)))
		if bin >= binCount {
			bin = binCount - 1
		}
		points[i] = bin
	}

	bank := make([][]float64, filterCount)
	for f := 0; f < filterCount; f++ {
		filter := make([]float64, binCount)
		left, center, right := points[f], points[f+1], points[f+2]
		for i := left; i <= right && i < binCount; i++ {
			switch {
			case i < center && center > left:
				filter[i] = float64(i-left) / float64(center-left)
			case i == center:
				filter[i] = 1
			case right > center:
				filter[i] = float64(right-i) / float64(right-center)
			}
		}
		bank[f] = filter
	}
	return bank
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}
