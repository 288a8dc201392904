// Package emit defines click emitters driven by the scheduler.
package emit

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/verte-zerg/tapas/internal/model"
)

// ErrFatal marks an emitter failure that must end the run (e.g. the output device went away).
var ErrFatal = errors.New("fatal emitter failure")

// Emitter performs the action associated with a click event.
type Emitter interface {
	Emit(ev model.ClickEvent) error
}

// Func adapts a function to the Emitter interface.
type Func func(ev model.ClickEvent) error

// Emit calls f(ev).
func (f Func) Emit(ev model.ClickEvent) error {
	return f(ev)
}

// Fatal wraps err so the scheduler aborts the run.
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// Multi fans an event out to several emitters. Every emitter runs even if an
// earlier one fails; a fatal error from any of them is reported as fatal.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ev model.ClickEvent) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Terminal writes one line per click, marking accents.
type Terminal struct {
	w io.Writer
}

// NewTerminal returns a text emitter writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Emit implements Emitter.
func (t *Terminal) Emit(ev model.ClickEvent) error {
	if _, err := fmt.Fprintln(t.w, FormatClick(ev)); err != nil {
		return Fatal(err)
	}
	return nil
}

// FormatClick renders a click as "bar.beat.slot" followed by an accent marker.
func FormatClick(ev model.ClickEvent) string {
	var b strings.Builder
	if ev.Scored {
		fmt.Fprintf(&b, "%3d.%d.%d ", ev.Bar+1, ev.Beat+1, ev.Slot+1)
	} else {
		fmt.Fprintf(&b, " in.%d.%d ", ev.Beat+1, ev.Slot+1)
	}
	switch {
	case ev.Accent >= 1:
		b.WriteString("###")
	case ev.Accent >= 0.5:
		b.WriteString("## ")
	case ev.Accent > 0:
		b.WriteString("#  ")
	default:
		b.WriteString(".  ")
	}
	return b.String()
}
