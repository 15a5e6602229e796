package tts

import "math"

const (
	// TargetLoudness is the speech level clips are normalized to (LUFS).
	TargetLoudness = -16.0

	silenceFloor       = -60.0
	minMeasureDuration = 2 // seconds
	stretchFrame       = 1024
)

// Loudness estimates integrated loudness as mean-square power on the BS.1770
// scale, without K-weighting or gating. It returns -Inf for silence.
func Loudness(samples []float64) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	ms := sum / float64(len(samples))
	if ms == 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(ms)
}

// NormalizeLoudness applies gain towards target when the clip is at least two
// seconds long and not near silence, then clips every sample to [-1, 1].
func NormalizeLoudness(samples []float64, sampleRate int, target float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	if sampleRate > 0 && len(out) >= sampleRate*minMeasureDuration {
		l := Loudness(out)
		if !math.IsInf(l, 0) && !math.IsNaN(l) && l > silenceFloor {
			gain := math.Pow(10, (target-l)/20)
			for i := range out {
				out[i] *= gain
			}
		}
	}
	for i := range out {
		out[i] = clip(out[i])
	}
	return out
}

// TimeStretch changes duration by 1/rate without changing pitch, using
// windowed overlap-add. rate > 1 speeds speech up.
func TimeStretch(samples []float64, rate float64) []float64 {
	if rate <= 0 || len(samples) < stretchFrame {
		return samples
	}
	synthHop := stretchFrame / 4
	analysisHop := float64(synthHop) * rate
	outLen := int(float64(len(samples)) / rate)
	out := make([]float64, outLen+stretchFrame)
	norm := make([]float64, outLen+stretchFrame)

	window := make([]float64, stretchFrame)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(stretchFrame-1))
	}

	for k := 0; ; k++ {
		src := int(float64(k) * analysisHop)
		dst := k * synthHop
		if src+stretchFrame > len(samples) || dst >= outLen {
			break
		}
		for i := 0; i < stretchFrame; i++ {
			out[dst+i] += samples[src+i] * window[i]
			norm[dst+i] += window[i]
		}
	}
	for i := range out {
		if norm[i] > 1e-3 {
			out[i] /= norm[i]
		}
	}
	return out[:outLen]
}
