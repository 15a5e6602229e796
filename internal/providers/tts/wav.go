package tts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const outputBitDepth = 16

// pcm is a mono clip with samples in [-1, 1].
type pcm struct {
	samples    []float64
	sampleRate int
}

func (p pcm) duration() time.Duration {
	if p.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.samples)) / float64(p.sampleRate) * float64(time.Second))
}

// decodeWAV reads integer PCM and mixes it down to mono.
func decodeWAV(raw []byte) (pcm, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return pcm{}, errors.New("tts: engine output is not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, fmt.Errorf("tts: decode WAV: %w", err)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = outputBitDepth
	}
	scale := math.Pow(2, float64(depth-1))
	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		out[i] = sum / float64(channels) / scale
	}
	return pcm{samples: out, sampleRate: int(dec.SampleRate)}, nil
}

// encodeWAV writes 16-bit mono PCM.
func encodeWAV(w io.WriteSeeker, p pcm) error {
	enc := wav.NewEncoder(w, p.sampleRate, outputBitDepth, 1, 1)
	const peak = 1<<(outputBitDepth-1) - 1
	data := make([]int, len(p.samples))
	for i, s := range p.samples {
		data[i] = int(math.Round(clip(s) * peak))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: p.sampleRate},
		Data:           data,
		SourceBitDepth: outputBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("tts: encode WAV: %w", err)
	}
	return enc.Close()
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
