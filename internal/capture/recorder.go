package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/onset"
)

// Recorder captures a performance while the scheduler plays.
type Recorder interface {
	// Record blocks until ctx is cancelled or the source ends.
	Record(ctx context.Context) error
	// Onsets returns detected taps with times in seconds relative to origin.
	Onsets(origin time.Time) ([]model.Onset, error)
}

const readChunk = 4096

// StreamRecorder reads raw signed 16-bit little-endian PCM, e.g. `arecord -f S16_LE -t raw`.
type StreamRecorder struct {
	src      io.Reader
	buf      *SampleBuffer
	detector *onset.Detector
	clock    clock.Clock
	log      *logrus.Logger

	mu      sync.Mutex
	started time.Time
}

// NewStreamRecorder wraps src. If src is an io.Closer it is closed when recording stops.
func NewStreamRecorder(src io.Reader, sampleRate, channels int, det *onset.Detector, clk clock.Clock, log *logrus.Logger) *StreamRecorder {
	return &StreamRecorder{
		src:      src,
		buf:      NewSampleBuffer(sampleRate, channels),
		detector: det,
		clock:    clk,
		log:      log,
	}
}

// Buffer exposes the captured samples, e.g. for a level meter.
func (r *StreamRecorder) Buffer() *SampleBuffer {
	return r.buf
}

// Record implements Recorder.
func (r *StreamRecorder) Record(ctx context.Context) error {
	r.mu.Lock()
	r.started = r.clock.Now()
	r.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	if closer, ok := r.src.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				if err := closer.Close(); err != nil {
					r.log.WithError(err).Debug("capture source close")
				}
			case <-stop:
			}
		}()
	}

	reader := bufio.NewReaderSize(r.src, readChunk)
	raw := make([]byte, readChunk)
	var carry []byte
	for {
		n, err := reader.Read(raw)
		if n > 0 {
			data := append(carry, raw[:n]...)
			whole := len(data) &^ 1
			r.buf.Append(decodeS16LE(data[:whole])...)
			carry = append(carry[:0], data[whole:]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				r.log.WithField("samples", r.buf.Len()).Debug("capture stopped")
				return nil
			}
			return fmt.Errorf("failed to read capture stream: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Onsets implements Recorder. Times are shifted from capture start to origin.
func (r *StreamRecorder) Onsets(origin time.Time) ([]model.Onset, error) {
	onsets, err := r.detector.Detect(r.buf.Snapshot())
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	shift := r.started.Sub(origin).Seconds()
	r.mu.Unlock()
	for i := range onsets {
		onsets[i].Time += shift
	}
	return onsets, nil
}

func decodeS16LE(data []byte) []float64 {
	out := make([]float64, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		out[i] = float64(v) / 32768
	}
	return out
}

// EncodeS16LE converts float samples to raw little-endian PCM. Used to feed recorded buffers back through a stream.
func EncodeS16LE(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Round(math.Max(-1, math.Min(1, s)) * 32767)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// TapRecorder collects key presses as onsets.
type TapRecorder struct {
	clock clock.Clock

	mu   sync.Mutex
	taps []time.Time
}

// NewTapRecorder returns an empty recorder.
func NewTapRecorder(clk clock.Clock) *TapRecorder {
	return &TapRecorder{clock: clk}
}

// Tap records a press at the current clock time.
func (r *TapRecorder) Tap() {
	r.TapAt(r.clock.Now())
}

// TapAt records a press at t.
func (r *TapRecorder) TapAt(t time.Time) {
	r.mu.Lock()
	r.taps = append(r.taps, t)
	r.mu.Unlock()
}

// Count returns the number of taps so far.
func (r *TapRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.taps)
}

// Record implements Recorder. Taps arrive through Tap, so it only waits.
func (r *TapRecorder) Record(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Onsets implements Recorder.
func (r *TapRecorder) Onsets(origin time.Time) ([]model.Onset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Onset, len(r.taps))
	for i, t := range r.taps {
		out[i] = model.Onset{Time: t.Sub(origin).Seconds(), Strength: 1}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}
