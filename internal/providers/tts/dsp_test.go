package tts

import (
	"math"
	"testing"
)

func sine(n, sampleRate int, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate))
	}
	return out
}

func TestTimeStretchLength(t *testing.T) {
	in := sine(16000, 8000, 0.5)
	for _, rate := range []float64{0.5, 0.8, 1.25, 1.5} {
		out := TimeStretch(in, rate)
		want := int(float64(len(in)) / rate)
		if len(out) != want {
			t.Fatalf("rate %.2f: len = %d, want %d", rate, len(out), want)
		}
	}
}

func TestTimeStretchShortInputUntouched(t *testing.T) {
	in := sine(100, 8000, 0.5)
	if out := TimeStretch(in, 1.5); len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
}

func TestNormalizeLoudnessGain(t *testing.T) {
	in := sine(8000*3, 8000, 0.05)
	out := NormalizeLoudness(in, 8000, TargetLoudness)
	if got := Loudness(out); math.Abs(got-TargetLoudness) > 0.1 {
		t.Fatalf("loudness = %.2f, want %.1f", got, TargetLoudness)
	}
	if in[100] != sine(8000*3, 8000, 0.05)[100] {
		t.Fatalf("input was modified")
	}
}

func TestNormalizeLoudnessSkipsShortAndSilent(t *testing.T) {
	short := sine(8000, 8000, 0.05)
	out := NormalizeLoudness(short, 8000, TargetLoudness)
	for i := range short {
		if out[i] != short[i] {
			t.Fatalf("short clip changed at %d", i)
		}
	}

	silent := make([]float64, 8000*3)
	out = NormalizeLoudness(silent, 8000, TargetLoudness)
	for i := range out {
		if out[i] != 0 {
			t.Fatalf("silent clip changed at %d", i)
		}
	}
}

func TestNormalizeLoudnessClips(t *testing.T) {
	in := []float64{1.5, -2, 0.25}
	out := NormalizeLoudness(in, 8000, TargetLoudness)
	want := []float64{1, -1, 0.25}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}
