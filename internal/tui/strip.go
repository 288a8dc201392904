package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tapas/internal/model"
)

type styledCell struct {
	s       string
	width   int
	isSpace bool
}

// barEvents returns the events sharing a bar with the event at pos. Count-in
// bars are kept apart from scored bar 0. A negative pos selects the first bar.
func barEvents(events []model.ClickEvent, pos int) []model.ClickEvent {
	if len(events) == 0 {
		return nil
	}
	if pos < 0 || pos >= len(events) {
		pos = 0
	}
	ref := events[pos]
	start := pos
	for start > 0 && sameBar(events[start-1], ref) {
		start--
	}
	end := pos + 1
	for end < len(events) && sameBar(events[end], ref) {
		end++
	}
	return events[start:end]
}

func sameBar(a, b model.ClickEvent) bool {
	return a.Bar == b.Bar && a.Scored == b.Scored
}

func accentGlyph(accent float64) rune {
	switch {
	case accent >= 1:
		return '#'
	case accent >= 0.5:
		return '+'
	case accent > 0:
		return '-'
	default:
		return '.'
	}
}

// buildStyledCells renders one cell per click with a gap between beats.
// Clicks before current are shown as played and current gets the cursor.
func buildStyledCells(events []model.ClickEvent, current int) []styledCell {
	out := make([]styledCell, 0, len(events)*2)
	for i, ev := range events {
		if i > 0 && ev.Beat != events[i-1].Beat {
			out = append(out, styledCell{s: " ", width: 1, isSpace: true})
		}
		style := pendingStyle
		switch {
		case ev.Index == current:
			style = cursorStyle
		case current >= 0 && ev.Index < current:
			style = playedStyle
		}
		glyph := accentGlyph(ev.Accent)
		out = append(out, styledCell{
			s:     style.Render(string(glyph)),
			width: runewidth.RuneWidth(glyph),
		})
	}
	return out
}

func renderStyledCells(cells []styledCell) string {
	var b strings.Builder
	for _, item := range cells {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledCells breaks long bars at beat gaps, falling back to a hard break.
func wrapStyledCells(cells []styledCell, width int) string {
	if width <= 0 {
		return renderStyledCells(cells)
	}
	var out strings.Builder
	line := make([]styledCell, 0, len(cells))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(cells); {
		item := cells[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if item.isSpace {
				out.WriteString(renderStyledCells(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
				i++
				continue
			}
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledCells(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledCell{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledCells(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledCells(line))
	return out.String()
}

func lineWidthOf(line []styledCell) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledCell) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
