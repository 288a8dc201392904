package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Preset", "Score", "MAE"}
	rows := [][]string{
		{"shuffle", "91.2", "12"},
		{"7/8 é", "8.0", "140"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Preset  Score MAE" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "shuffle  91.2  12" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "7/8 é     8.0 140" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableTrimsTrailingPadding(t *testing.T) {
	lines := formatTable([]string{"A", "Note"}, [][]string{{"x", ""}, {"yy", "ok"}}, nil)
	if lines[1] != "x" {
		t.Fatalf("expected trailing blanks trimmed, got %q", lines[1])
	}
	if lines[2] != "yy ok" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}
