// Package scheduler fires click events at absolute deadlines.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/model"
)

const (
	// DefaultSpinWindow is the tail of each wait spent spinning instead of sleeping.
	DefaultSpinWindow = 2 * time.Millisecond
	// DefaultLateThreshold is the overrun past a deadline after which an event is flagged late.
	DefaultLateThreshold = 10 * time.Millisecond
)

// Config tunes the wait strategy.
type Config struct {
	SpinWindow    time.Duration
	LateThreshold time.Duration
	LeadIn        time.Duration
}

// DefaultConfig returns the documented jitter budget.
func DefaultConfig() Config {
	return Config{
		SpinWindow:    DefaultSpinWindow,
		LateThreshold: DefaultLateThreshold,
		LeadIn:        100 * time.Millisecond,
	}
}

// Fired records one emitted event.
type Fired struct {
	Event    model.ClickEvent
	Deadline time.Time
	FiredAt  time.Time
	Late     bool
	Err      error
}

// Report summarizes a run.
type Report struct {
	Start     time.Time
	Fired     []Fired
	Late      int
	Failed    int
	Cancelled bool
}

// FiredEvents returns the events that were emitted, in order.
func (r Report) FiredEvents() []model.ClickEvent {
	out := make([]model.ClickEvent, len(r.Fired))
	for i, f := range r.Fired {
		out[i] = f.Event
	}
	return out
}

// MaxLateness returns the largest observed fire delay past a deadline.
func (r Report) MaxLateness() time.Duration {
	var worst time.Duration
	for _, f := range r.Fired {
		if d := f.FiredAt.Sub(f.Deadline); d > worst {
			worst = d
		}
	}
	return worst
}

// Scheduler drives an emitter through a timeline.
type Scheduler struct {
	clock  clock.Clock
	cfg    Config
	log    *logrus.Logger
	lateRL *rate.Limiter
}

// New creates a Scheduler. Tests pass a fake clock.
func New(clk clock.Clock, cfg Config, log *logrus.Logger) *Scheduler {
	if cfg.SpinWindow < 0 {
		cfg.SpinWindow = 0
	}
	if cfg.LateThreshold <= 0 {
		cfg.LateThreshold = DefaultLateThreshold
	}
	return &Scheduler{
		clock:  clk,
		cfg:    cfg,
		log:    log,
		lateRL: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Run starts the timeline LeadIn after now.
func (s *Scheduler) Run(ctx context.Context, tl model.Timeline, em emit.Emitter) (Report, error) {
	return s.RunAt(ctx, s.clock.Now().Add(s.cfg.LeadIn), tl, em)
}

// RunAt fires every event at start+offset. Each deadline is derived from start,
// so overhead on one event never shifts the next. Cancellation is observed
// before each wait and on wake-up; nothing fires after it.
func (s *Scheduler) RunAt(ctx context.Context, start time.Time, tl model.Timeline, em emit.Emitter) (Report, error) {
	report := Report{Start: start, Fired: make([]Fired, 0, len(tl.Events))}
	s.log.WithFields(logrus.Fields{"events": len(tl.Events), "tempo": tl.Tempo}).Debug("scheduler start")

	for _, ev := range tl.Events {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		deadline := start.Add(offsetDuration(ev.Offset))
		if !s.waitUntil(ctx, deadline) {
			report.Cancelled = true
			break
		}

		firedAt := s.clock.Now()
		err := safeEmit(em, ev)
		f := Fired{Event: ev, Deadline: deadline, FiredAt: firedAt, Err: err}
		if lateness := firedAt.Sub(deadline); lateness > s.cfg.LateThreshold {
			f.Late = true
			report.Late++
			if s.lateRL.Allow() {
				s.log.WithFields(eventFields(ev)).WithField("late_ms", lateness.Milliseconds()).Warn("click fired late")
			}
		}
		report.Fired = append(report.Fired, f)

		if err != nil {
			if errors.Is(err, emit.ErrFatal) {
				s.log.WithFields(eventFields(ev)).WithError(err).Error("click output failed, stopping run")
				return report, fmt.Errorf("scheduler: event %d: %w: %w", ev.Index, model.ErrPlaybackFailed, err)
			}
			report.Failed++
			s.log.WithFields(eventFields(ev)).WithError(err).Warn("click emit failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		"fired":     len(report.Fired),
		"late":      report.Late,
		"failed":    report.Failed,
		"cancelled": report.Cancelled,
	}).Debug("scheduler done")
	return report, nil
}

// waitUntil sleeps until deadline-SpinWindow, then spins. It returns false on cancellation.
func (s *Scheduler) waitUntil(ctx context.Context, deadline time.Time) bool {
	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return ctx.Err() == nil
		}
		if remaining > s.cfg.SpinWindow {
			timer := s.clock.NewTimer(remaining - s.cfg.SpinWindow)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C():
			}
			continue
		}
		if ctx.Err() != nil {
			return false
		}
		runtime.Gosched()
	}
}

// safeEmit turns a panic inside the emitter into a non-fatal error for ev.
func safeEmit(em emit.Emitter, ev model.ClickEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("emit panicked: %v", r)
		}
	}()
	return em.Emit(ev)
}

func offsetDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

func eventFields(ev model.ClickEvent) logrus.Fields {
	return logrus.Fields{
		"event": ev.Index,
		"bar":   ev.Bar,
		"beat":  ev.Beat,
		"slot":  ev.Slot,
	}
}
