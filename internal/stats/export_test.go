package stats

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/tapas/internal/model"
)

func TestWriteAttemptJSON(t *testing.T) {
	a := model.Attempt{
		ID:         "abc",
		PresetName: "groove",
		Latency:    25 * time.Millisecond,
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Metrics:    model.Metrics{Matched: 1, Score: 88},
		Pairs:      []model.MatchedPair{{Kind: model.PairMatch, Expected: 0.5, Detected: 0.51, Error: 0.01}},
	}
	var buf bytes.Buffer
	if err := WriteAttemptJSON(&buf, a); err != nil {
		t.Fatalf("write: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc["latency_ms"].(float64) != 25 || doc["created_at"] != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected document: %v", doc)
	}
	pairs := doc["pairs"].([]any)
	if pairs[0].(map[string]any)["kind"] != "match" {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
}

func TestWritePairsCSVLeavesAbsentSidesEmpty(t *testing.T) {
	pairs := []model.MatchedPair{
		{Kind: model.PairMatch, EventIndex: 0, OnsetIndex: 0, Expected: 0, Detected: 0.012, Error: 0.012},
		{Kind: model.PairMiss, EventIndex: 1, OnsetIndex: -1, Expected: 0.5},
		{Kind: model.PairExtra, EventIndex: -1, OnsetIndex: 1, Detected: 0.7},
	}
	var buf bytes.Buffer
	if err := WritePairsCSV(&buf, pairs); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"kind,event_index,onset_index,expected,detected,error_ms",
		"match,0,0,0.000000,0.012000,12.000",
		"miss,1,,0.500000,,",
		"extra,,1,,0.700000,",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}
