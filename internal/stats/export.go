package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/verte-zerg/tapas/internal/model"
)

type exportPair struct {
	Kind       string  `json:"kind"`
	EventIndex int     `json:"event_index"`
	OnsetIndex int     `json:"onset_index"`
	Expected   float64 `json:"expected"`
	Detected   float64 `json:"detected"`
	Error      float64 `json:"error"`
}

type exportMetrics struct {
	Matched        int     `json:"matched"`
	Misses         int     `json:"misses"`
	Extras         int     `json:"extras"`
	MeanError      float64 `json:"mean_error"`
	MeanAbsError   float64 `json:"mean_abs_error"`
	ErrorVariance  float64 `json:"error_variance"`
	MissRate       float64 `json:"miss_rate"`
	ExtraRate      float64 `json:"extra_rate"`
	Score          float64 `json:"score"`
	ZeroConfidence bool    `json:"zero_confidence"`
}

type exportAttempt struct {
	ID             string        `json:"id"`
	Preset         string        `json:"preset"`
	Tempo          float64       `json:"tempo"`
	TimelineLength int           `json:"timeline_length"`
	LatencyMs      float64       `json:"latency_ms"`
	Device         string        `json:"device"`
	Source         string        `json:"source"`
	CreatedAt      string        `json:"created_at"`
	DurationMs     int64         `json:"duration_ms"`
	Metrics        exportMetrics `json:"metrics"`
	Pairs          []exportPair  `json:"pairs"`
}

// WriteAttemptJSON writes an attempt with its pairs as indented JSON.
func WriteAttemptJSON(w io.Writer, a model.Attempt) error {
	doc := exportAttempt{
		ID:             a.ID,
		Preset:         a.PresetName,
		Tempo:          a.Tempo,
		TimelineLength: a.TimelineLength,
		LatencyMs:      float64(a.Latency) / float64(time.Millisecond),
		Device:         a.Device,
		Source:         a.Source,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:     a.DurationMs,
		Metrics:        exportMetrics(a.Metrics),
		Pairs:          make([]exportPair, len(a.Pairs)),
	}
	for i, p := range a.Pairs {
		doc.Pairs[i] = exportPair{
			Kind:       p.Kind.String(),
			EventIndex: p.EventIndex,
			OnsetIndex: p.OnsetIndex,
			Expected:   p.Expected,
			Detected:   p.Detected,
			Error:      p.Error,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}
	return nil
}

// WritePairsCSV writes one row per matched pair. Absent sides are left empty.
func WritePairsCSV(w io.Writer, pairs []model.MatchedPair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"kind", "event_index", "onset_index", "expected", "detected", "error_ms"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, p := range pairs {
		row := []string{p.Kind.String(), "", "", "", "", ""}
		if p.EventIndex >= 0 {
			row[1] = strconv.Itoa(p.EventIndex)
			row[3] = strconv.FormatFloat(p.Expected, 'f', 6, 64)
		}
		if p.OnsetIndex >= 0 {
			row[2] = strconv.Itoa(p.OnsetIndex)
			row[4] = strconv.FormatFloat(p.Detected, 'f', 6, 64)
		}
		if p.Kind == model.PairMatch {
			row[5] = strconv.FormatFloat(p.Error*1000, 'f', 3, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
