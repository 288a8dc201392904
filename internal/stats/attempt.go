package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/hako/durafmt"

	"github.com/verte-zerg/tapas/internal/model"
)

// SlotStat aggregates timing at one position of the bar.
type SlotStat struct {
	Beat         int
	Slot         int
	Count        int
	Misses       int
	MeanError    float64
	MeanAbsError float64
}

// RenderAttempt prints the headline numbers of one scored run.
func RenderAttempt(w io.Writer, a model.Attempt) error {
	m := a.Metrics
	if m.ZeroConfidence {
		_, err := fmt.Fprintf(w, "No taps detected across %d clicks; check the capture input.\n", a.TimelineLength)
		return err
	}
	lines := []string{
		fmt.Sprintf("Score: %.1f", m.Score),
		fmt.Sprintf("Timing: MAE %.1f ms, mean %+.1f ms (%s), spread %.1f ms",
			m.MeanAbsError*1000, m.MeanError*1000, tendency(m.MeanError), stddevMs(m.ErrorVariance)),
		fmt.Sprintf("Taps: %d/%d matched, %d missed, %d extra", m.Matched, a.TimelineLength, m.Misses, m.Extras),
		fmt.Sprintf("Length: %s", durafmt.Parse(time.Duration(a.DurationMs)*time.Millisecond).LimitFirstN(2).String()),
	}
	if a.Latency != 0 {
		lines = append(lines, fmt.Sprintf("Latency correction: %d ms (%s)", a.Latency.Milliseconds(), a.Device))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// SlotStats groups pairs by bar position. Positions with the largest absolute error come first.
func SlotStats(tl model.Timeline, pairs []model.MatchedPair) []SlotStat {
	byIndex := make(map[int]model.ClickEvent, len(tl.Events))
	for _, ev := range tl.Events {
		byIndex[ev.Index] = ev
	}
	type key struct{ beat, slot int }
	acc := map[key]*SlotStat{}
	for _, p := range pairs {
		if p.Kind == model.PairExtra {
			continue
		}
		ev, ok := byIndex[p.EventIndex]
		if !ok {
			continue
		}
		k := key{ev.Beat, ev.Slot}
		st := acc[k]
		if st == nil {
			st = &SlotStat{Beat: ev.Beat, Slot: ev.Slot}
			acc[k] = st
		}
		if p.Kind == model.PairMiss {
			st.Misses++
			continue
		}
		st.Count++
		st.MeanError += p.Error
		st.MeanAbsError += math.Abs(p.Error)
	}
	out := make([]SlotStat, 0, len(acc))
	for _, st := range acc {
		if st.Count > 0 {
			st.MeanError /= float64(st.Count)
			st.MeanAbsError /= float64(st.Count)
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanAbsError == out[j].MeanAbsError {
			if out[i].Beat == out[j].Beat {
				return out[i].Slot < out[j].Slot
			}
			return out[i].Beat < out[j].Beat
		}
		return out[i].MeanAbsError > out[j].MeanAbsError
	})
	return out
}

// RenderSlotTable prints the weakest bar positions, at most top rows (all when top <= 0).
func RenderSlotTable(w io.Writer, slots []SlotStat, top int) error {
	if len(slots) == 0 {
		return nil
	}
	if top > 0 && len(slots) > top {
		slots = slots[:top]
	}
	if _, err := fmt.Fprintln(w, "Weakest positions"); err != nil {
		return err
	}
	headers := []string{"Pos", "Taps", "Miss", "MAE ms", "Mean ms"}
	rows := make([][]string, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, []string{
			fmt.Sprintf("%d.%d", s.Beat+1, s.Slot+1),
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%d", s.Misses),
			fmt.Sprintf("%.1f", s.MeanAbsError*1000),
			fmt.Sprintf("%+.1f", s.MeanError*1000),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func tendency(meanError float64) string {
	switch {
	case meanError > 0.002:
		return "late"
	case meanError < -0.002:
		return "early"
	default:
		return "centred"
	}
}

func stddevMs(variance float64) float64 {
	return math.Sqrt(math.Max(variance, 0)) * 1000
}
