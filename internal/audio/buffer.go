// Package audio holds decoded sample buffers and the WAV bridge.
package audio

import (
	"fmt"
	"math"

	"github.com/verte-zerg/tapas/internal/model"
)

// Supported input ranges.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxChannels   = 8
)

// Buffer is decoded PCM. Samples are interleaved floats in [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Validate checks the layout is one the detector understands.
func (b Buffer) Validate() error {
	if b.SampleRate < MinSampleRate || b.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio: sample rate %d outside [%d, %d]: %w", b.SampleRate, MinSampleRate, MaxSampleRate, model.ErrUnsupportedFormat)
	}
	if b.Channels < 1 || b.Channels > MaxChannels {
		return fmt.Errorf("audio: %d channels outside [1, %d]: %w", b.Channels, MaxChannels, model.ErrUnsupportedFormat)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("audio: %d samples is not a multiple of %d channels: %w", len(b.Samples), b.Channels, model.ErrUnsupportedFormat)
	}
	return nil
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono averages interleaved channels. A mono buffer is returned as a copy.
func (b Buffer) Mono() []float64 {
	frames := b.Frames()
	out := make([]float64, frames)
	if b.Channels == 1 {
		copy(out, b.Samples)
		return out
	}
	inv := 1.0 / float64(b.Channels)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * b.Channels
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[base+c]
		}
		out[i] = sum * inv
	}
	return out
}

// Peak returns the largest absolute sample.
func (b Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		peak = math.Max(peak, math.Abs(s))
	}
	return peak
}
