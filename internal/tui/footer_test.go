package tui

import (
	"strings"
	"testing"

	"github.com/verte-zerg/tapas/internal/model"
)

func TestRenderFooterFormats(t *testing.T) {
	m := NewModel(Options{
		Timeline: testTimeline(),
		Tapper:   &countTapper{},
		Footer:   &FooterStats{Count: 4, LastScore: 82.4, AvgScore: 76.04},
	})
	m.fired = 4
	m.taps = 3
	out := m.renderFooter()
	if !containsAll(out, []string{"Progress 50%", "Taps 3", "Last 82.4", "Avg 76.0 over 4", "q to stop"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
}

func TestRenderFooterWithoutHistory(t *testing.T) {
	m := NewModel(Options{Timeline: testTimeline()})
	out := m.renderFooter()
	if strings.Contains(out, "Last") || strings.Contains(out, "Taps") {
		t.Fatalf("unexpected footer segments: %s", out)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func testTimeline() model.Timeline {
	tl := model.Timeline{Tempo: 120, Meter: model.Meter{Beats: 4, Unit: 4}, Subdivision: 1}
	idx := 0
	for beat := 0; beat < 2; beat++ {
		tl.Events = append(tl.Events, model.ClickEvent{Index: idx, Offset: float64(idx) * 0.5, Beat: beat})
		idx++
	}
	for bar := 0; bar < 2; bar++ {
		for beat := 0; beat < 4; beat++ {
			accent := 0.0
			if beat == 0 {
				accent = 1
			}
			tl.Events = append(tl.Events, model.ClickEvent{
				Index:  idx,
				Offset: float64(idx) * 0.5,
				Bar:    bar,
				Beat:   beat,
				Accent: accent,
				Scored: true,
			})
			idx++
		}
	}
	tl.Duration = float64(idx) * 0.5
	return tl
}
