package emit

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/gen2brain/beeep"

	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/model"
)

// SystemBeep sounds the OS beeper for each click.
type SystemBeep struct {
	Duration time.Duration
	beep     func(freq float64, durationMs int) error
}

// NewSystemBeep returns a beeper emitting clicks of the given length.
func NewSystemBeep(d time.Duration) *SystemBeep {
	return &SystemBeep{Duration: d, beep: beeep.Beep}
}

// Emit implements Emitter. A missing beeper is fatal since every later click would fail too.
func (b *SystemBeep) Emit(ev model.ClickEvent) error {
	freq := audio.ClickFreq
	if ev.Accent >= 1 {
		freq = audio.AccentClickFreq
	}
	if err := b.beep(freq, int(b.Duration.Milliseconds())); err != nil {
		return Fatal(fmt.Errorf("system beep: %w", err))
	}
	return nil
}

var speakerOnce struct {
	sync.Once
	rate int
	err  error
}

// Speaker plays pre-rendered clicks through the default audio output.
type Speaker struct {
	normal []float64
	accent []float64
	rate   int
	play   func(s ...beep.Streamer)
}

// NewSpeaker opens the audio device at sampleRate with a 10 ms buffer. The
// device is opened once per process; later calls reuse its rate.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	speakerOnce.Do(func() {
		sr := beep.SampleRate(sampleRate)
		speakerOnce.rate = sampleRate
		speakerOnce.err = speaker.Init(sr, sr.N(10*time.Millisecond))
	})
	if speakerOnce.err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", speakerOnce.err)
	}
	rate := speakerOnce.rate
	return &Speaker{
		normal: audio.ClickSamples(rate, audio.ClickFreq, audio.ClickLength, 0.5),
		accent: audio.ClickSamples(rate, audio.AccentClickFreq, audio.ClickLength, 0.9),
		rate:   rate,
		play:   speaker.Play,
	}, nil
}

// Emit implements Emitter. Playback is queued on the mixer and never blocks.
func (s *Speaker) Emit(ev model.ClickEvent) error {
	samples := s.normal
	if ev.Accent >= 1 {
		samples = s.accent
	}
	gain := 0.4 + 0.6*ev.Accent
	scaled := make([]float64, len(samples))
	for i, v := range samples {
		scaled[i] = v * gain
	}
	s.play(audio.Streamer(audio.Buffer{Samples: scaled, SampleRate: s.rate, Channels: 1}))
	return nil
}
