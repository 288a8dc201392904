// Package capture collects live input for a practice run.
package capture

import (
	"sync"

	"github.com/verte-zerg/tapas/internal/audio"
)

// SampleBuffer is an append-only PCM buffer with a single writer and any
// number of readers. Samples already appended never change.
type SampleBuffer struct {
	mu         sync.RWMutex
	samples    []float64
	sampleRate int
	channels   int
}

// NewSampleBuffer returns an empty buffer for the given layout.
func NewSampleBuffer(sampleRate, channels int) *SampleBuffer {
	return &SampleBuffer{sampleRate: sampleRate, channels: channels}
}

// Append adds interleaved samples. Only the recorder goroutine calls it.
func (b *SampleBuffer) Append(samples ...float64) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// Len returns the number of samples appended so far.
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Snapshot copies the current contents into an audio.Buffer.
func (b *SampleBuffer) Snapshot() audio.Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]float64, len(b.samples))
	copy(out, b.samples)
	return audio.Buffer{Samples: out, SampleRate: b.sampleRate, Channels: b.channels}
}

// NewCursor returns a reader positioned at the start of the buffer.
func (b *SampleBuffer) NewCursor() *Cursor {
	return &Cursor{buf: b}
}

// Cursor reads a SampleBuffer incrementally. Its position only moves forward.
type Cursor struct {
	buf *SampleBuffer
	pos int
}

// Next copies up to max samples appended since the previous call. max <= 0 means everything available.
func (c *Cursor) Next(max int) []float64 {
	c.buf.mu.RLock()
	defer c.buf.mu.RUnlock()
	end := len(c.buf.samples)
	if max > 0 && c.pos+max < end {
		end = c.pos + max
	}
	if end <= c.pos {
		return nil
	}
	out := make([]float64, end-c.pos)
	copy(out, c.buf.samples[c.pos:end])
	c.pos = end
	return out
}

// Pos returns the number of samples consumed.
func (c *Cursor) Pos() int {
	return c.pos
}
