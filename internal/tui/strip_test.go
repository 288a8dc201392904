package tui

import (
	"strings"
	"testing"

	"github.com/verte-zerg/tapas/internal/model"
)

func TestBarEventsSeparatesCountIn(t *testing.T) {
	tl := testTimeline()
	if got := barEvents(tl.Events, -1); len(got) != 2 || got[0].Scored {
		t.Fatalf("expected count-in bar first, got %+v", got)
	}
	got := barEvents(tl.Events, 3)
	if len(got) != 4 || got[0].Index != 2 || got[3].Index != 5 {
		t.Fatalf("unexpected first scored bar: %+v", got)
	}
	if got := barEvents(tl.Events, 9); got[0].Bar != 1 || len(got) != 4 {
		t.Fatalf("unexpected last bar: %+v", got)
	}
}

func TestBuildStyledCellsCursor(t *testing.T) {
	events := barEvents(testTimeline().Events, 3)
	cells := buildStyledCells(events, 3)
	// 4 clicks with a gap between each beat.
	if len(cells) != 7 {
		t.Fatalf("expected 7 cells, got %d", len(cells))
	}
	if cells[0].s != playedStyle.Render("#") {
		t.Fatalf("expected played accent for first click")
	}
	if !cells[1].isSpace {
		t.Fatalf("expected beat gap")
	}
	if cells[2].s != cursorStyle.Render(".") {
		t.Fatalf("expected cursor on current click")
	}
	if cells[4].s != pendingStyle.Render(".") {
		t.Fatalf("expected pending style after cursor")
	}
}

func TestBuildStyledCellsBeforeStart(t *testing.T) {
	events := barEvents(testTimeline().Events, -1)
	for _, c := range buildStyledCells(events, -1) {
		if !c.isSpace && c.s != pendingStyle.Render(".") {
			t.Fatalf("expected pending cells before the first click, got %q", c.s)
		}
	}
}

func TestAccentGlyph(t *testing.T) {
	cases := map[float64]rune{1: '#', 0.6: '+', 0.2: '-', 0: '.'}
	for accent, want := range cases {
		if got := accentGlyph(accent); got != want {
			t.Fatalf("accent %.1f: got %q want %q", accent, got, want)
		}
	}
}

func TestWrapStyledCellsBreaksAtBeats(t *testing.T) {
	var events []model.ClickEvent
	for i := 0; i < 8; i++ {
		events = append(events, model.ClickEvent{Index: i, Beat: i / 2, Slot: i % 2, Scored: true})
	}
	cells := buildStyledCells(events, -1)
	out := wrapStyledCells(cells, 5)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	plain := pendingStyle.Render(".")
	if lines[0] != plain+plain+" "+plain+plain {
		t.Fatalf("unexpected first line %q", lines[0])
	}
}

func TestWrapStyledCellsHardBreak(t *testing.T) {
	var events []model.ClickEvent
	for i := 0; i < 6; i++ {
		events = append(events, model.ClickEvent{Index: i, Slot: i})
	}
	out := wrapStyledCells(buildStyledCells(events, -1), 4)
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one hard break, got %q", out)
	}
}
