// Package align pairs expected click times with detected onsets and scores the result.
//
// The pairing is a banded dynamic program over (events consumed, onsets
// consumed). A match is only legal inside an event's deviation window, and a
// legal match always costs less than the miss plus extra it replaces, so the
// optimal path is also the one with the most plausible pairs. Pairs never cross.
package align

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/verte-zerg/tapas/internal/model"
)

const (
	// DefaultBandSlack widens every DP row by this many onsets on both sides.
	DefaultBandSlack = 4
	// soloDeviation is the match window of a timeline with a single scored event.
	soloDeviation = 0.25
	costEpsilon   = 1e-9
)

// Params controls pairing. Zero values select the adaptive defaults.
type Params struct {
	// MaxDeviation is a fixed match window in seconds. Zero means half the
	// smaller gap to the neighbouring events, per event.
	MaxDeviation float64
	MissPenalty  float64
	ExtraPenalty float64
	BandSlack    int
	Score        ScoreParams
}

// DefaultParams returns adaptive windows and the default score constants.
func DefaultParams() Params {
	return Params{BandSlack: DefaultBandSlack, Score: DefaultScoreParams()}
}

// Validate checks the params.
func (p Params) Validate() error {
	if p.MaxDeviation < 0 || p.MissPenalty < 0 || p.ExtraPenalty < 0 {
		return fmt.Errorf("align: deviation and penalties must be >= 0: %w", model.ErrInvalidParameter)
	}
	if p.BandSlack < 0 {
		return fmt.Errorf("align: band slack %d must be >= 0: %w", p.BandSlack, model.ErrInvalidParameter)
	}
	return p.Score.Validate()
}

// Result is the pairing and its metrics.
type Result struct {
	Pairs   []model.MatchedPair
	Metrics model.Metrics
}

// Matches returns only the matched pairs.
func (r Result) Matches() []model.MatchedPair {
	var out []model.MatchedPair
	for _, p := range r.Pairs {
		if p.Kind == model.PairMatch {
			out = append(out, p)
		}
	}
	return out
}

type move byte

const (
	moveNone move = iota
	moveDiag
	moveMiss
	moveExtra
)

type cell struct {
	cost    float64
	matches int
	idxSum  int
	ok      bool
}

// better reports whether candidate c beats the incumbent b. Ties keep b, so
// callers offer candidates in diag, miss, extra order.
func better(c, b cell) bool {
	if !b.ok {
		return true
	}
	if c.cost < b.cost-costEpsilon {
		return true
	}
	if c.cost > b.cost+costEpsilon {
		return false
	}
	if c.matches != b.matches {
		return c.matches > b.matches
	}
	return c.idxSum < b.idxSum
}

// Align pairs the scored events of tl with onsets. Onset times are in seconds
// on the timeline's time base; latency is subtracted from them before pricing.
func Align(tl model.Timeline, onsets []model.Onset, latency time.Duration, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	events := tl.ScoredEvents()
	n := len(events)
	if n == 0 {
		return Result{}, fmt.Errorf("align: no scored events: %w", model.ErrEmptyTimeline)
	}
	lat := latency.Seconds()

	expected := make([]float64, n)
	for i, ev := range events {
		expected[i] = ev.Offset
	}
	dev := deviations(expected, p.MaxDeviation)

	// Taps played along with the count-in are not part of the take.
	cutoff := math.Inf(-1)
	if hasCountIn(tl, expected[0]) {
		cutoff = expected[0] - dev[0] - costEpsilon
	}
	sorted := make([]model.Onset, 0, len(onsets))
	for _, o := range onsets {
		if o.Time-lat >= cutoff {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	m := len(sorted)

	if m == 0 {
		return zeroConfidence(events, p.Score), nil
	}

	adjusted := make([]float64, m)
	for j, o := range sorted {
		adjusted[j] = o.Time - lat
	}

	maxDev := 0.0
	for _, d := range dev {
		maxDev = math.Max(maxDev, d)
	}
	missPen := p.MissPenalty
	if missPen == 0 {
		missPen = maxDev
	}
	extraPen := p.ExtraPenalty
	if extraPen == 0 {
		extraPen = maxDev
	}

	lo, hi := bands(expected, adjusted, dev, p.BandSlack)

	rowStart := make([]int, n+2)
	for i := 0; i <= n; i++ {
		rowStart[i+1] = rowStart[i] + hi[i] - lo[i] + 1
	}
	back := make([]move, rowStart[n+1])

	width := 0
	for i := 0; i <= n; i++ {
		if w := hi[i] - lo[i] + 1; w > width {
			width = w
		}
	}
	prev := make([]cell, width)
	cur := make([]cell, width)

	// Row 0: only extras before the first event.
	cur[0] = cell{ok: true}
	for j := lo[0] + 1; j <= hi[0]; j++ {
		c := cur[j-1-lo[0]]
		cur[j-lo[0]] = cell{cost: c.cost + extraPen, matches: c.matches, idxSum: c.idxSum, ok: true}
		back[rowStart[0]+j-lo[0]] = moveExtra
	}

	for i := 1; i <= n; i++ {
		prev, cur = cur, prev
		pLo, pHi := lo[i-1], hi[i-1]
		cLo, cHi := lo[i], hi[i]
		t, d := expected[i-1], dev[i-1]
		for j := cLo; j <= cHi; j++ {
			best := cell{}
			mv := moveNone
			if j-1 >= pLo && j-1 <= pHi {
				if pc := prev[j-1-pLo]; pc.ok {
					if e := math.Abs(adjusted[j-1] - t); e <= d+costEpsilon {
						c := cell{cost: pc.cost + e, matches: pc.matches + 1, idxSum: pc.idxSum + j - 1, ok: true}
						if better(c, best) {
							best, mv = c, moveDiag
						}
					}
				}
			}
			if j >= pLo && j <= pHi {
				if pc := prev[j-pLo]; pc.ok {
					c := cell{cost: pc.cost + missPen, matches: pc.matches, idxSum: pc.idxSum, ok: true}
					if better(c, best) {
						best, mv = c, moveMiss
					}
				}
			}
			if j-1 >= cLo {
				if lc := cur[j-1-cLo]; lc.ok {
					c := cell{cost: lc.cost + extraPen, matches: lc.matches, idxSum: lc.idxSum, ok: true}
					if better(c, best) {
						best, mv = c, moveExtra
					}
				}
			}
			cur[j-cLo] = best
			back[rowStart[i]+j-cLo] = mv
		}
	}

	pairs := make([]model.MatchedPair, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch back[rowStart[i]+j-lo[i]] {
		case moveDiag:
			ev := events[i-1]
			pairs = append(pairs, model.MatchedPair{
				Kind:       model.PairMatch,
				EventIndex: ev.Index,
				OnsetIndex: j - 1,
				Expected:   ev.Offset,
				Detected:   sorted[j-1].Time,
				Error:      adjusted[j-1] - ev.Offset,
			})
			i--
			j--
		case moveMiss:
			ev := events[i-1]
			pairs = append(pairs, model.MatchedPair{Kind: model.PairMiss, EventIndex: ev.Index, OnsetIndex: -1, Expected: ev.Offset})
			i--
		case moveExtra:
			pairs = append(pairs, model.MatchedPair{Kind: model.PairExtra, EventIndex: -1, OnsetIndex: j - 1, Detected: sorted[j-1].Time})
			j--
		default:
			return Result{}, fmt.Errorf("align: broken back-pointer at (%d, %d)", i, j)
		}
	}
	for a, b := 0, len(pairs)-1; a < b; a, b = a+1, b-1 {
		pairs[a], pairs[b] = pairs[b], pairs[a]
	}

	return Result{Pairs: pairs, Metrics: Summarize(pairs, n, m, p.Score)}, nil
}

// hasCountIn reports whether unscored clicks precede the first scored one.
func hasCountIn(tl model.Timeline, first float64) bool {
	for _, ev := range tl.Events {
		if !ev.Scored && ev.Offset < first {
			return true
		}
	}
	return false
}

// deviations returns the match window of every event.
func deviations(expected []float64, fixed float64) []float64 {
	out := make([]float64, len(expected))
	for i := range expected {
		if fixed > 0 {
			out[i] = fixed
			continue
		}
		gap := math.Inf(1)
		if i > 0 {
			gap = math.Min(gap, expected[i]-expected[i-1])
		}
		if i+1 < len(expected) {
			gap = math.Min(gap, expected[i+1]-expected[i])
		}
		if math.IsInf(gap, 1) {
			out[i] = soloDeviation
			continue
		}
		out[i] = gap / 2
	}
	return out
}

// bands returns the inclusive onset-count range of each DP row. Row i has
// consumed i events: it starts at the onsets preceding the last consumed
// event's window and ends after the next event's window.
func bands(expected, adjusted, dev []float64, slack int) ([]int, []int) {
	n, m := len(expected), len(adjusted)
	count := func(x float64) int { return sort.SearchFloat64s(adjusted, x) }
	lo := make([]int, n+1)
	hi := make([]int, n+1)
	for i := 0; i <= n; i++ {
		if i > 0 {
			lo[i] = maxInt(lo[i-1], count(expected[i-1]-dev[i-1])-slack)
			if lo[i] < 0 {
				lo[i] = 0
			}
		}
		if i < n {
			// Onsets equal to the window edge still count as inside.
			hi[i] = minInt(m, upperCount(adjusted, expected[i]+dev[i])+slack)
		} else {
			hi[i] = m
		}
		if i > 0 && hi[i] < hi[i-1] {
			hi[i] = hi[i-1]
		}
		if hi[i] < lo[i] {
			hi[i] = lo[i]
		}
	}
	return lo, hi
}

// upperCount returns the number of values <= x.
func upperCount(sorted []float64, x float64) int {
	return sort.Search(len(sorted), func(k int) bool { return sorted[k] > x+costEpsilon })
}

func zeroConfidence(events []model.ClickEvent, sp ScoreParams) Result {
	pairs := make([]model.MatchedPair, len(events))
	for i, ev := range events {
		pairs[i] = model.MatchedPair{Kind: model.PairMiss, EventIndex: ev.Index, OnsetIndex: -1, Expected: ev.Offset}
	}
	metrics := Summarize(pairs, len(events), 0, sp)
	metrics.Score = 0
	metrics.ZeroConfidence = true
	return Result{Pairs: pairs, Metrics: metrics}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
