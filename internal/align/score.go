package align

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/tapas/internal/model"
)

// ScoreParams weights the composite score
// 100 * exp(-(MAE/MAEScale + Var/VarScale + MissWeight*missRate + ExtraWeight*extraRate)).
type ScoreParams struct {
	MAEScale    float64
	VarScale    float64
	MissWeight  float64
	ExtraWeight float64
}

// DefaultScoreParams returns 200 ms, 0.001 s², 2 and 1.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{MAEScale: 0.2, VarScale: 0.001, MissWeight: 2, ExtraWeight: 1}
}

// Validate checks the scales are positive and the weights non-negative.
func (sp ScoreParams) Validate() error {
	if sp.MAEScale <= 0 || sp.VarScale <= 0 {
		return fmt.Errorf("align: score scales must be > 0: %w", model.ErrInvalidParameter)
	}
	if sp.MissWeight < 0 || sp.ExtraWeight < 0 {
		return fmt.Errorf("align: score weights must be >= 0: %w", model.ErrInvalidParameter)
	}
	return nil
}

// Score maps the metrics to 0..100; higher is tighter.
func (sp ScoreParams) Score(m model.Metrics) float64 {
	penalty := m.MeanAbsError/sp.MAEScale +
		m.ErrorVariance/sp.VarScale +
		sp.MissWeight*m.MissRate +
		sp.ExtraWeight*m.ExtraRate
	return 100 * math.Exp(-penalty)
}

// Summarize computes metrics for pairs over n expected events and m onsets.
func Summarize(pairs []model.MatchedPair, n, m int, sp ScoreParams) model.Metrics {
	var out model.Metrics
	var sum, sumAbs float64
	for _, p := range pairs {
		switch p.Kind {
		case model.PairMatch:
			out.Matched++
			sum += p.Error
			sumAbs += math.Abs(p.Error)
		case model.PairMiss:
			out.Misses++
		case model.PairExtra:
			out.Extras++
		}
	}
	if out.Matched > 0 {
		k := float64(out.Matched)
		out.MeanError = sum / k
		out.MeanAbsError = sumAbs / k
		var ss float64
		for _, p := range pairs {
			if p.Kind == model.PairMatch {
				d := p.Error - out.MeanError
				ss += d * d
			}
		}
		out.ErrorVariance = ss / k
	}
	if n > 0 {
		out.MissRate = float64(out.Misses) / float64(n)
	}
	if m > 0 {
		out.ExtraRate = float64(out.Extras) / float64(m)
	}
	out.Score = sp.Score(out)
	return out
}

// AttemptInfo is the context of a scored run that the result itself does not carry.
type AttemptInfo struct {
	PresetName string
	Latency    time.Duration
	Device     string
	Source     string
	CreatedAt  time.Time
}

// NewAttempt builds the record persisted for one scored run.
func NewAttempt(tl model.Timeline, res Result, info AttemptInfo) model.Attempt {
	return model.Attempt{
		ID:             uuid.NewString(),
		PresetName:     info.PresetName,
		Tempo:          tl.Tempo,
		TimelineLength: len(tl.ScoredEvents()),
		Pairs:          res.Pairs,
		Metrics:        res.Metrics,
		Latency:        info.Latency,
		Device:         info.Device,
		Source:         info.Source,
		CreatedAt:      info.CreatedAt,
		DurationMs:     int64(math.Round(tl.Duration * 1000)),
	}
}
