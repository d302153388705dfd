package backtest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
	"github.com/newthinker/quantsweep/internal/marketdata"
	"github.com/newthinker/quantsweep/internal/marketdata/mdtest"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
	"github.com/newthinker/quantsweep/internal/strategy/mean_reversion"
	"github.com/newthinker/quantsweep/internal/strategy/momentum"
)

// scriptedGenerator returns fixed instructions on chosen snapshot dates.
type scriptedGenerator struct {
	script map[time.Time][]core.TradingInstruction
	err    error
	calls  int
}

func (s *scriptedGenerator) Name() string { return "scripted" }

func (s *scriptedGenerator) GenerateSignals(snap *snapshot.DataSnapshot, _ portfolio.State) ([]core.TradingInstruction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.script[snap.AsOf()], nil
}

type countingRecorder struct {
	mu          sync.Mutex
	simulations map[string]int
	fills       map[string]int
	rejections  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		simulations: map[string]int{},
		fills:       map[string]int{},
		rejections:  map[string]int{},
	}
}

func (r *countingRecorder) RecordSimulation(_, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulations[status]++
}

func (r *countingRecorder) RecordFill(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills[status]++
}

func (r *countingRecorder) RecordRejection(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections[code]++
}

func zeroCost(capital float64) backtest.Config {
	return backtest.Config{
		InitialCapital: capital,
		Snapshot:       snapshot.DefaultConfig(),
		Metrics:        backtest.DefaultMetricsConfig(),
	}
}

func TestEngine_MomentumScenario(t *testing.T) {
	bars := mdtest.FromCloses(mdtest.Linear(100, 159, 60), 100000)
	store := marketdata.MustStore(map[string][]core.PriceBar{"600000": bars})

	engine, err := backtest.NewEngine(store, zeroCost(1_000_000))
	require.NoError(t, err)
	gen, err := momentum.New(momentum.DefaultConfig())
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), gen)
	require.NoError(t, err)

	var buys, sells int
	for _, inv := range res.Invocations {
		assert.Equal(t, inv.Instructions, inv.Accepted)
	}
	for _, f := range res.Fills {
		switch f.Instruction.Action {
		case core.ActionBuy:
			buys++
		case core.ActionSell:
			sells++
		}
	}
	assert.Equal(t, 1, buys)
	assert.Equal(t, 0, sells)
	assert.Empty(t, res.Rejections)

	// signal on day 20 (first 20-day return), filled at day 21's open
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Fills[0].ExecutedAt.Equal(bars[21].Date))
	assert.Equal(t, 121.0, res.Fills[0].ExecutionPrice)

	require.Len(t, res.EquityCurve, 60)
	assert.Greater(t, res.FinalEquity(), 1_000_000.0)
	assert.InDelta(t, 1_000_000-121_000+159_000, res.FinalEquity(), 1e-6)
	assert.Equal(t, 1, res.Metrics.TradeCount)
	require.Len(t, res.Trades, 1)
	assert.False(t, res.Trades[0].IsClosed())
}

// replayPositionValue recomputes the holdings implied by executed fills up to
// date and values them at the latest close.
func replayPositionValue(store *marketdata.Store, fills []execution.FillResult, date time.Time) float64 {
	qty := map[string]int64{}
	for _, f := range fills {
		if !f.Executed() || f.ExecutedAt.After(date) {
			continue
		}
		if f.Instruction.Action == core.ActionBuy {
			qty[f.Instruction.Symbol] += f.Quantity
		} else {
			qty[f.Instruction.Symbol] -= f.Quantity
		}
	}
	var value float64
	for symbol, q := range qty {
		price, _ := store.LatestClose(symbol, date)
		value += float64(q) * price
	}
	return value
}

func TestEngine_LedgerInvariants(t *testing.T) {
	store := marketdata.MustStore(map[string][]core.PriceBar{
		"600000": mdtest.RandomWalk(11, 250, 10),
		"600036": mdtest.RandomWalk(12, 250, 30),
		"000001": mdtest.RandomWalk(13, 250, 15),
		"000002": mdtest.RandomWalk(14, 250, 8),
	})
	cfg := zeroCost(60_000)
	cfg.Costs = execution.DefaultCostConfig()

	engine, err := backtest.NewEngine(store, cfg)
	require.NoError(t, err)

	mrCfg := mean_reversion.DefaultConfig()
	mrCfg.LookbackPeriod = 5
	mrCfg.BuyThreshold = -0.01
	mrCfg.SellThreshold = 0.01
	gen, err := mean_reversion.New(mrCfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), gen)
	require.NoError(t, err)
	require.NotEmpty(t, res.Fills, "scenario should trade")

	for _, p := range res.EquityCurve {
		assert.GreaterOrEqual(t, p.Cash, 0.0, "cash on %s", p.Date)
		assert.InDelta(t, p.Cash+p.PositionValue, p.TotalEquity, 1e-6)
		assert.InDelta(t, replayPositionValue(store, res.Fills, p.Date), p.PositionValue, 1e-6, "position value on %s", p.Date)
	}
}

func TestEngine_ContractViolations(t *testing.T) {
	bars := mdtest.FromCloses(mdtest.Linear(10, 20, 40), 1000)
	young := mdtest.FromCloses(mdtest.Linear(5, 6, 40), 1000)[30:]
	store := marketdata.MustStore(map[string][]core.PriceBar{"OLD": bars, "NEW": young})

	d := bars[25].Date
	script := map[time.Time][]core.TradingInstruction{
		d: {
			{Symbol: "NEW", Action: core.ActionBuy, Quantity: 10},                               // not visible yet
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 10, GeneratedAt: bars[26].Date},   // from the future
			{Symbol: "OLD", Action: core.Action(0), Quantity: 10},                               // unknown action
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 0},                                // empty
			{Symbol: "OLD", Action: core.ActionSell, Quantity: 10},                              // nothing held
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 10, Reason: "accepted"},           // ok
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 10, Reason: "duplicate in batch"}, // second buy
		},
		bars[27].Date: {
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 5},   // already held
			{Symbol: "OLD", Action: core.ActionSell, Quantity: 11}, // more than held
			{Symbol: "OLD", Action: core.ActionSell, Quantity: 4},  // ok
		},
	}

	rec := newCountingRecorder()
	engine, err := backtest.NewEngine(store, zeroCost(10_000), backtest.WithRecorder(rec))
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), &scriptedGenerator{script: script})
	require.NoError(t, err)

	var contract, inconsistent int
	for _, r := range res.Rejections {
		assert.Equal(t, backtest.StageValidation, r.Stage)
		switch r.Code {
		case core.ErrContractViolation.Code:
			contract++
		case core.ErrInconsistentState.Code:
			inconsistent++
		}
	}
	assert.Equal(t, 4, contract)
	assert.Equal(t, 4, inconsistent)

	require.Len(t, res.Fills, 2)
	assert.Equal(t, "accepted", res.Fills[0].Instruction.Reason)
	assert.True(t, res.Fills[0].Instruction.GeneratedAt.Equal(d), "unset generation date is stamped")
	assert.Equal(t, int64(4), res.Fills[1].Quantity)

	assert.Equal(t, 4, rec.rejections[core.ErrContractViolation.Code])
	assert.Equal(t, 2, rec.fills[string(execution.FillExecuted)])
	assert.Equal(t, 1, rec.simulations["ok"])
}

func TestEngine_BuyAfterSellInSameBatchRejected(t *testing.T) {
	bars := mdtest.FromCloses(mdtest.Linear(10, 20, 40), 1000)
	store := marketdata.MustStore(map[string][]core.PriceBar{"OLD": bars})

	unreachable := 1e9
	script := map[time.Time][]core.TradingInstruction{
		bars[25].Date: {
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 10},
		},
		bars[27].Date: {
			{Symbol: "OLD", Action: core.ActionSell, Quantity: 10, LimitPrice: &unreachable},
			{Symbol: "OLD", Action: core.ActionBuy, Quantity: 10, Reason: "re-entry"},
		},
	}
	engine, err := backtest.NewEngine(store, zeroCost(10_000))
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), &scriptedGenerator{script: script})
	require.NoError(t, err)

	require.Len(t, res.Rejections, 2)
	assert.Equal(t, backtest.StageValidation, res.Rejections[0].Stage)
	assert.Equal(t, core.ErrInconsistentState.Code, res.Rejections[0].Code)
	assert.Equal(t, "re-entry", res.Rejections[0].Instruction.Reason)
	assert.Equal(t, backtest.StageExecution, res.Rejections[1].Stage)
	assert.Equal(t, core.ErrLimitNotReached.Code, res.Rejections[1].Code)

	assert.Equal(t, 1, res.Metrics.TradeCount)
	last := res.EquityCurve[len(res.EquityCurve)-1]
	assert.InDelta(t, 10*bars[len(bars)-1].Close, last.PositionValue, 1e-9, "still holds exactly 10 shares")
}

func TestEngine_ExecutionRejectionsAudited(t *testing.T) {
	a := mdtest.FromCloses(mdtest.Linear(10, 20, 40), 1000)
	// B stops trading after day 25, so an order placed that day has no next bar
	b := mdtest.FromCloses(mdtest.Linear(50, 60, 40), 1000)[:26]
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": a, "B": b})

	script := map[time.Time][]core.TradingInstruction{
		a[25].Date: {
			{Symbol: "B", Action: core.ActionBuy, Quantity: 10},
			{Symbol: "A", Action: core.ActionBuy, Quantity: 1_000_000},
		},
	}
	engine, err := backtest.NewEngine(store, zeroCost(10_000))
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), &scriptedGenerator{script: script})
	require.NoError(t, err)

	require.Len(t, res.Rejections, 2)
	assert.Equal(t, backtest.StageExecution, res.Rejections[0].Stage)
	assert.Equal(t, core.ErrNoPrice.Code, res.Rejections[0].Code)
	assert.Equal(t, core.ErrInsufficientCash.Code, res.Rejections[1].Code)
	assert.True(t, res.Rejections[0].Date.Equal(a[26].Date))

	assert.Zero(t, res.Metrics.TradeCount)
	for _, p := range res.EquityCurve {
		assert.Equal(t, 10_000.0, p.TotalEquity)
	}
}

func TestEngine_GeneratorErrorAbortsRun(t *testing.T) {
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": mdtest.FromCloses(mdtest.Linear(10, 20, 30), 1000)})
	rec := newCountingRecorder()
	engine, err := backtest.NewEngine(store, zeroCost(10_000), backtest.WithRecorder(rec))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = engine.Run(context.Background(), &scriptedGenerator{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStrategyFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.simulations["failed"])
}

func TestEngine_SkipsGenerationWithoutSnapshot(t *testing.T) {
	bars := mdtest.FromCloses(mdtest.Linear(10, 20, 25), 1000)
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": bars})
	engine, err := backtest.NewEngine(store, zeroCost(10_000))
	require.NoError(t, err)

	gen := &scriptedGenerator{}
	res, err := engine.Run(context.Background(), gen)
	require.NoError(t, err)

	// snapshots are valid from the 20th bar; the last date only gets marked
	assert.Equal(t, 5, gen.calls)
	assert.Len(t, res.Invocations, 5)
	assert.Len(t, res.EquityCurve, 25)
}

func TestEngine_DateRange(t *testing.T) {
	bars := mdtest.FromCloses(mdtest.Linear(10, 20, 30), 1000)
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": bars})

	cfg := zeroCost(10_000)
	cfg.Start, cfg.End = bars[10].Date, bars[20].Date
	engine, err := backtest.NewEngine(store, cfg)
	require.NoError(t, err)
	assert.Len(t, engine.Dates(), 11)

	cfg.Start, cfg.End = bars[29].Date.AddDate(0, 0, 1), time.Time{}
	_, err = backtest.NewEngine(store, cfg)
	assert.ErrorIs(t, err, core.ErrEmptyDateRange)

	cfg.Start, cfg.End = bars[20].Date, bars[10].Date
	_, err = backtest.NewEngine(store, cfg)
	assert.ErrorIs(t, err, core.ErrEmptyDateRange)
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": mdtest.FromCloses(mdtest.Linear(10, 20, 30), 1000)})

	_, err := backtest.NewEngine(store, zeroCost(0))
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	cfg := zeroCost(1000)
	cfg.Costs.SlippageRate = 2
	_, err = backtest.NewEngine(store, cfg)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = backtest.NewEngine(nil, zeroCost(1000))
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestEngine_ContextCancelled(t *testing.T) {
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": mdtest.FromCloses(mdtest.Linear(10, 20, 30), 1000)})
	engine, err := backtest.NewEngine(store, zeroCost(1000))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx, &scriptedGenerator{})
	assert.ErrorIs(t, err, context.Canceled)
}

var _ strategy.SignalGenerator = (*scriptedGenerator)(nil)
