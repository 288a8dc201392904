package timeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/verte-zerg/tapas/internal/model"
)

type exportEvent struct {
	Index  int     `json:"index"`
	Offset float64 `json:"offset"`
	Bar    int     `json:"bar"`
	Beat   int     `json:"beat"`
	Slot   int     `json:"slot"`
	Accent float64 `json:"accent"`
	Scored bool    `json:"scored"`
}

type exportTimeline struct {
	Tempo       float64       `json:"tempo"`
	Meter       string        `json:"meter"`
	Subdivision int           `json:"subdivision"`
	Swing       float64       `json:"swing"`
	Duration    float64       `json:"duration"`
	Events      []exportEvent `json:"events"`
}

// WriteJSON writes the timeline as an indented JSON reference document.
func WriteJSON(w io.Writer, tl model.Timeline) error {
	doc := exportTimeline{
		Tempo:       tl.Tempo,
		Meter:       fmt.Sprintf("%d/%d", tl.Meter.Beats, tl.Meter.Unit),
		Subdivision: tl.Subdivision,
		Swing:       tl.Swing,
		Duration:    tl.Duration,
		Events:      make([]exportEvent, len(tl.Events)),
	}
	for i, ev := range tl.Events {
		doc.Events[i] = exportEvent(ev)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	return nil
}

// WriteCSV writes one row per click event.
func WriteCSV(w io.Writer, tl model.Timeline) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "offset", "bar", "beat", "slot", "accent", "scored"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, ev := range tl.Events {
		row := []string{
			strconv.Itoa(ev.Index),
			strconv.FormatFloat(ev.Offset, 'f', 6, 64),
			strconv.Itoa(ev.Bar),
			strconv.Itoa(ev.Beat),
			strconv.Itoa(ev.Slot),
			strconv.FormatFloat(ev.Accent, 'f', 2, 64),
			strconv.FormatBool(ev.Scored),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
