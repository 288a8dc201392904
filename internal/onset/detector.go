// Package onset extracts tap onsets from decoded audio.
//
// The envelope is short-time energy over overlapping frames. Novelty is the
// half-wave rectified energy increase between consecutive frames, so each
// novelty value describes the hop-sized segment that just entered the frame.
// The signal is treated as zero-padded before its start, which lets a tap in
// the very first samples register.
package onset

import (
	"fmt"
	"math"
	"sort"

	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/model"
)

// Params tunes the detector. Times are in seconds.
type Params struct {
	FrameSeconds  float64
	HopSeconds    float64
	WindowSeconds float64
	// K scales the local standard deviation added to the local median.
	K float64
	// Floor is the minimum novelty, in mean-square amplitude units, that can ever count as an onset.
	Floor         float64
	MinInterOnset float64
	Interpolate   bool
}

// DefaultParams returns the tuned defaults for hand claps and stick taps.
func DefaultParams() Params {
	return Params{
		FrameSeconds:  0.010,
		HopSeconds:    0.0025,
		WindowSeconds: 0.5,
		K:             1.5,
		Floor:         1e-4,
		MinInterOnset: 0.05,
		Interpolate:   true,
	}
}

// Validate checks params are usable.
func (p Params) Validate() error {
	switch {
	case p.FrameSeconds <= 0:
		return fmt.Errorf("onset: frame %v must be > 0: %w", p.FrameSeconds, model.ErrInvalidParameter)
	case p.HopSeconds <= 0 || p.HopSeconds > p.FrameSeconds:
		return fmt.Errorf("onset: hop %v must be in (0, frame]: %w", p.HopSeconds, model.ErrInvalidParameter)
	case p.WindowSeconds <= 0:
		return fmt.Errorf("onset: threshold window %v must be > 0: %w", p.WindowSeconds, model.ErrInvalidParameter)
	case p.K < 0 || p.Floor < 0 || p.MinInterOnset < 0:
		return fmt.Errorf("onset: k, floor and min inter-onset must be >= 0: %w", model.ErrInvalidParameter)
	}
	return nil
}

// Detector finds onsets. It holds no per-buffer state, so Detect can be called repeatedly.
type Detector struct {
	params Params
}

// New returns a detector for p.
func New(p Params) (*Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: p}, nil
}

// Params returns the detector settings.
func (d *Detector) Params() Params {
	return d.params
}

// Detect analyzes the whole buffer in one pass and returns onsets ordered by time.
func (d *Detector) Detect(buf audio.Buffer) ([]model.Onset, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("onset: %w", err)
	}
	mono := buf.Mono()
	sr := float64(buf.SampleRate)
	frameLen := maxInt(2, int(math.Round(d.params.FrameSeconds*sr)))
	hop := maxInt(1, int(math.Round(d.params.HopSeconds*sr)))
	if hop > frameLen {
		hop = frameLen
	}
	if len(mono) < frameLen {
		return nil, fmt.Errorf("onset: %d frames shorter than one %d-sample analysis frame: %w", len(mono), frameLen, model.ErrEmptyAudio)
	}

	nov := novelty(mono, frameLen, hop)
	th := newThreshold(nov, maxInt(1, int(math.Round(d.params.WindowSeconds/d.params.HopSeconds))), d.params.K)

	var onsets []model.Onset
	last := math.Inf(-1)
	for k, v := range nov {
		if v < d.params.Floor || v <= 0 {
			continue
		}
		left, right := at(nov, k-1), at(nov, k+1)
		if !(v > left && v >= right) {
			continue
		}
		if v <= th.at(k) {
			continue
		}
		pos := float64(k) + 0.5
		if d.params.Interpolate {
			pos += parabolicOffset(left, v, right)
		}
		t := pos * float64(hop) / sr
		if t-last < d.params.MinInterOnset {
			continue
		}
		onsets = append(onsets, model.Onset{Time: t, Strength: v})
		last = t
	}
	return onsets, nil
}

// novelty returns one value per hop segment [k*hop, (k+1)*hop).
func novelty(x []float64, frameLen, hop int) []float64 {
	prefix := make([]float64, len(x)+1)
	for i, s := range x {
		prefix[i+1] = prefix[i] + s*s
	}
	n := len(x) / hop
	out := make([]float64, n)
	prev := 0.0
	inv := 1.0 / float64(frameLen)
	for k := 0; k < n; k++ {
		end := (k + 1) * hop
		start := end - frameLen
		if start < 0 {
			start = 0
		}
		e := (prefix[end] - prefix[start]) * inv
		if diff := e - prev; diff > 0 {
			out[k] = diff
		}
		prev = e
	}
	return out
}

// parabolicOffset returns the vertex offset of the parabola through three points, in [-0.5, 0.5].
func parabolicOffset(left, center, right float64) float64 {
	den := left - 2*center + right
	if den >= 0 {
		return 0
	}
	off := 0.5 * (left - right) / den
	return math.Max(-0.5, math.Min(0.5, off))
}

// threshold computes median + k*std over a centred window, lazily per frame.
type threshold struct {
	values  []float64
	sum     []float64
	sumSq   []float64
	half    int
	k       float64
	scratch []float64
}

func newThreshold(values []float64, window int, k float64) *threshold {
	th := &threshold{
		values: values,
		sum:    make([]float64, len(values)+1),
		sumSq:  make([]float64, len(values)+1),
		half:   window / 2,
		k:      k,
	}
	for i, v := range values {
		th.sum[i+1] = th.sum[i] + v
		th.sumSq[i+1] = th.sumSq[i] + v*v
	}
	return th
}

func (th *threshold) at(k int) float64 {
	lo := maxInt(0, k-th.half)
	hi := minInt(len(th.values), k+th.half+1)
	n := float64(hi - lo)
	mean := (th.sum[hi] - th.sum[lo]) / n
	variance := (th.sumSq[hi]-th.sumSq[lo])/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	th.scratch = append(th.scratch[:0], th.values[lo:hi]...)
	sort.Float64s(th.scratch)
	return median(th.scratch) + th.k*math.Sqrt(variance)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func at(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return 0
	}
	return values[i]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
