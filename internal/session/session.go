// Package session runs a live practice pass: clicks out, performance in.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/capture"
	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/scheduler"
)

// DefaultTail is how long capture keeps running after the last click.
const DefaultTail = 400 * time.Millisecond

// Result is what a run produced. On a cancelled run Timeline only holds the events that fired.
type Result struct {
	Timeline model.Timeline
	Report   scheduler.Report
	Onsets   []model.Onset
	Partial  bool
}

// Session couples a scheduler with a recorder.
type Session struct {
	sched *scheduler.Scheduler
	clock clock.Clock
	tail  time.Duration
	log   *logrus.Logger
}

// New returns a Session. A negative tail is treated as zero.
func New(sched *scheduler.Scheduler, clk clock.Clock, tail time.Duration, log *logrus.Logger) *Session {
	if tail < 0 {
		tail = 0
	}
	return &Session{sched: sched, clock: clk, tail: tail, log: log}
}

// Run plays tl through em while rec captures. The recorder is stopped once the
// scheduler finishes and the tail has elapsed, or as soon as either side fails.
// Cancelling ctx yields a partial result rather than an error.
func (s *Session) Run(ctx context.Context, tl model.Timeline, em emit.Emitter, rec capture.Recorder) (Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	recCtx, stopRecorder := context.WithCancel(gctx)
	defer stopRecorder()

	var report scheduler.Report
	g.Go(func() error {
		if err := rec.Record(recCtx); err != nil {
			return fmt.Errorf("failed to record: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stopRecorder()
		r, err := s.sched.Run(gctx, tl, em)
		report = r
		if err != nil {
			return err
		}
		if !r.Cancelled {
			s.waitTail(gctx)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{Timeline: tl, Report: report}, err
	}

	res := Result{Timeline: tl, Report: report, Partial: report.Cancelled}
	if report.Cancelled {
		res.Timeline.Events = report.FiredEvents()
		res.Timeline.Duration = playedDuration(tl, len(report.Fired))
		s.log.WithField("fired", len(report.Fired)).Info("run cancelled, scoring the clicks that played")
	}

	onsets, err := rec.Onsets(report.Start)
	switch {
	case errors.Is(err, model.ErrEmptyAudio):
		s.log.WithError(err).Warn("capture too short to analyze")
	case err != nil:
		return res, fmt.Errorf("failed to detect onsets: %w", err)
	default:
		res.Onsets = onsets
	}
	s.log.WithFields(logrus.Fields{
		"events":  len(res.Timeline.Events),
		"onsets":  len(res.Onsets),
		"late":    report.Late,
		"partial": res.Partial,
	}).Debug("session done")
	return res, nil
}

// playedDuration is the span covered by the first fired events of tl: up to
// the next planned click, or the full duration when every click fired.
func playedDuration(tl model.Timeline, fired int) float64 {
	if fired <= 0 {
		return 0
	}
	if fired < len(tl.Events) {
		return tl.Events[fired].Offset
	}
	return tl.Duration
}

func (s *Session) waitTail(ctx context.Context) {
	if s.tail == 0 {
		return
	}
	timer := s.clock.NewTimer(s.tail)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C():
	}
}
