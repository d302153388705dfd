package sweep

import (
	"sort"
	"time"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Status is the lifecycle state of one combination.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusScored    Status = "scored"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Outcome records what happened to one combination.
type Outcome struct {
	Index     int               `json:"index"`
	Params    strategy.Params   `json:"params"`
	Status    Status            `json:"status"`
	Discarded bool              `json:"discarded,omitempty"`
	Score     float64           `json:"score"`
	Metrics   *backtest.Metrics `json:"metrics,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// Ranked reports whether the outcome takes part in the ranking.
func (o Outcome) Ranked() bool {
	return o.Status == StatusScored && !o.Discarded && o.Metrics != nil
}

// Diagnostic explains why a combination was not ranked.
type Diagnostic struct {
	Index  int    `json:"index"`
	Params string `json:"params"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Report is the outcome of a sweep.
type Report struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Strategy    string           `json:"strategy"`
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	Total       int              `json:"total_combinations"`
	Scored      int              `json:"scored"`
	Discarded   int              `json:"discarded"`
	Failed      int              `json:"failed"`
	Abandoned   int              `json:"abandoned"`
	Outcomes    []Outcome        `json:"outcomes"`
	Ranked      []Outcome        `json:"ranked"`
	Best        *Outcome         `json:"best,omitempty"`
	BestResult  *backtest.Result `json:"best_result,omitempty"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Elapsed     time.Duration    `json:"elapsed"`
}

// Successful returns the number of ranked combinations.
func (r *Report) Successful() int {
	return len(r.Ranked)
}

// Policy decides how combinations are scored and filtered.
type Policy struct {
	// MinTrades discards combinations with fewer executed fills.
	MinTrades int
	// Score maps metrics to the primary ranking key. Nil scores by Calmar.
	Score func(backtest.Metrics) float64
}

// DefaultPolicy scores by Calmar and requires five fills.
func DefaultPolicy() Policy {
	return Policy{MinTrades: 5}
}

func (p Policy) score(m backtest.Metrics) float64 {
	if p.Score != nil {
		return p.Score(m)
	}
	return m.CalmarRatio
}

// Rank returns the ranked outcomes best first: score descending, then
// Sharpe descending, then fewer fills, then enumeration index.
func Rank(outcomes []Outcome) []Outcome {
	ranked := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Ranked() {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metrics.SharpeRatio != b.Metrics.SharpeRatio {
			return a.Metrics.SharpeRatio > b.Metrics.SharpeRatio
		}
		if a.Metrics.TradeCount != b.Metrics.TradeCount {
			return a.Metrics.TradeCount < b.Metrics.TradeCount
		}
		return a.Index < b.Index
	})
	return ranked
}
