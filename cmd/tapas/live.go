package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/capture"
	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/logger"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/onset"
	"github.com/verte-zerg/tapas/internal/tui"
)

// liveOptions select how clicks are played and taps captured.
type liveOptions struct {
	capture    string
	sampleRate int
	channels   int
	beep       bool
	speaker    bool
	detector   onset.Params
	title      string
	notes      []string
	footer     *tui.FooterStats
}

type runFunc func(ctx context.Context, em emit.Emitter, rec capture.Recorder) error

func (o liveOptions) validate() error {
	switch o.capture {
	case captureKeys, captureStdin:
	default:
		return fmt.Errorf("--capture must be %q or %q", captureKeys, captureStdin)
	}
	if o.sampleRate < audio.MinSampleRate || o.sampleRate > audio.MaxSampleRate {
		return fmt.Errorf("--sample-rate must be between %d and %d", audio.MinSampleRate, audio.MaxSampleRate)
	}
	if o.channels < 1 || o.channels > audio.MaxChannels {
		return fmt.Errorf("--channels must be between 1 and %d", audio.MaxChannels)
	}
	return nil
}

func soundEmitters(o liveOptions) (emit.Multi, error) {
	var out emit.Multi
	if o.beep {
		out = append(out, emit.NewSystemBeep(defaultBeepMs*time.Millisecond))
	}
	if o.speaker {
		spk, err := emit.NewSpeaker(o.sampleRate)
		if err != nil {
			return nil, err
		}
		out = append(out, spk)
	}
	return out, nil
}

// runLive plays tl while capturing taps and hands both ends to run. The
// stream recorder is returned when audio came from stdin so callers can keep it.
func runLive(cmd *cobra.Command, o liveOptions, tl model.Timeline, run runFunc) (*capture.StreamRecorder, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	sounds, err := soundEmitters(o)
	if err != nil {
		return nil, err
	}
	if o.capture == captureKeys {
		return nil, runKeys(cmd, o, tl, sounds, run)
	}
	det, err := onset.New(o.detector)
	if err != nil {
		return nil, err
	}
	rec := capture.NewStreamRecorder(cmd.InOrStdin(), o.sampleRate, o.channels, det, clock.RealClock{}, logger.GetProjectLogger())
	em := append(emit.Multi{emit.NewTerminal(cmd.ErrOrStderr())}, sounds...)
	return rec, run(cmd.Context(), em, rec)
}

// runKeys drives the flash view; key presses become taps. Log output is held
// back while the alternate screen is active.
func runKeys(cmd *cobra.Command, o liveOptions, tl model.Timeline, sounds emit.Multi, run runFunc) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("keyboard capture needs a terminal; pipe audio with --capture %s instead", captureStdin)
	}
	log := logger.GetProjectLogger()
	var held bytes.Buffer
	prev := log.Out
	log.SetOutput(&held)
	defer func() {
		log.SetOutput(prev)
		replayHeldLogs(prev, held.Bytes())
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	taps := capture.NewTapRecorder(clock.RealClock{})
	flash := tui.NewFlash()
	view := tui.NewModel(tui.Options{
		Title:    o.title,
		Notes:    o.notes,
		Timeline: tl,
		Flash:    flash,
		Tapper:   taps,
		Cancel:   cancel,
		Footer:   o.footer,
	})
	program := tea.NewProgram(view, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := run(ctx, append(emit.Multi{flash}, sounds...), taps)
		done <- err
		program.Send(tui.DoneMsg{Err: err})
	}()
	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	cancel()
	return <-done
}

func replayHeldLogs(w io.Writer, held []byte) {
	if len(held) == 0 {
		return
	}
	if _, err := w.Write(held); err != nil {
		logErrf("failed to replay log output: %v\n", err)
	}
}
