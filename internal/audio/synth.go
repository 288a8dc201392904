package audio

import (
	"math"
	"math/rand"
	"time"

	"github.com/verte-zerg/tapas/internal/model"
)

// Click tone settings used for playback and exported click tracks.
const (
	ClickFreq       = 1000.0
	AccentClickFreq = 1600.0
	ClickLength     = 0.03
	clickDecay      = 0.006
	tapDecay        = 0.005
	tapLength       = 0.04
)

// ClickSamples renders one decaying sine click as mono samples.
func ClickSamples(sampleRate int, freq, length, amp float64) []float64 {
	n := int(length * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = amp * math.Exp(-t/clickDecay) * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

// RenderClicks renders a timeline as a mono click track. Accented slots are louder and higher.
func RenderClicks(tl model.Timeline, sampleRate int) Buffer {
	frames := int(math.Ceil((tl.Duration + ClickLength) * float64(sampleRate)))
	buf := Buffer{Samples: make([]float64, frames), SampleRate: sampleRate, Channels: 1}
	normal := ClickSamples(sampleRate, ClickFreq, ClickLength, 0.5)
	accent := ClickSamples(sampleRate, AccentClickFreq, ClickLength, 0.9)
	for _, ev := range tl.Events {
		click := normal
		if ev.Accent >= 1 {
			click = accent
		}
		mix(buf.Samples, click, int(math.Round(ev.Offset*float64(sampleRate))), 0.4+0.6*ev.Accent)
	}
	return buf
}

// Performer synthesizes a human-ish tap performance from a timeline.
type Performer struct {
	rnd *rand.Rand
}

// NewPerformer returns a Performer seeded with seed; zero uses the current time.
func NewPerformer(seed int64) *Performer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Performer{rnd: rand.New(rand.NewSource(seed))}
}

// Taps returns tap times for the scored events, shifted by lag with gaussian
// jitter of the given standard deviation. Each event is skipped with probability missPct.
func (p *Performer) Taps(tl model.Timeline, lag, jitter, missPct float64) []float64 {
	events := tl.ScoredEvents()
	out := make([]float64, 0, len(events))
	for _, ev := range events {
		if missPct > 0 && p.rnd.Float64() < missPct {
			continue
		}
		t := ev.Offset + lag
		if jitter > 0 {
			t += p.rnd.NormFloat64() * jitter
		}
		out = append(out, t)
	}
	return out
}

// RenderTaps renders percussive noise bursts at the given times over optional background noise.
func (p *Performer) RenderTaps(times []float64, sampleRate int, duration, noise float64) Buffer {
	frames := int(math.Ceil(duration * float64(sampleRate)))
	buf := Buffer{Samples: make([]float64, frames), SampleRate: sampleRate, Channels: 1}
	if noise > 0 {
		for i := range buf.Samples {
			buf.Samples[i] = noise * (p.rnd.Float64()*2 - 1)
		}
	}
	n := int(tapLength * float64(sampleRate))
	burst := make([]float64, n)
	for _, at := range times {
		for i := range burst {
			t := float64(i) / float64(sampleRate)
			burst[i] = math.Exp(-t/tapDecay) * (p.rnd.Float64()*2 - 1)
		}
		mix(buf.Samples, burst, int(math.Round(at*float64(sampleRate))), 0.8)
	}
	return buf
}

func mix(dst, src []float64, start int, gain float64) {
	for i, s := range src {
		j := start + i
		if j < 0 {
			continue
		}
		if j >= len(dst) {
			return
		}
		dst[j] += gain * s
	}
}
