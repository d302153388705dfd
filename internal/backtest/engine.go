package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
	"github.com/newthinker/quantsweep/internal/marketdata"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Recorder receives operational measurements from runs.
type Recorder interface {
	RecordSimulation(strategy, status string, elapsed time.Duration)
	RecordFill(status string)
	RecordRejection(code string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSimulation(string, string, time.Duration) {}
func (nopRecorder) RecordFill(string)                              {}
func (nopRecorder) RecordRejection(string)                         {}

// Config describes one simulation.
type Config struct {
	InitialCapital float64
	// Start and End bound the simulated dates; zero leaves a side open.
	Start    time.Time
	End      time.Time
	Costs    execution.CostConfig
	Snapshot snapshot.Config
	Metrics  MetricsConfig
}

// Engine replays a strategy day by day over a price store. The engine holds
// no per-run state, so one Engine may serve concurrent runs with distinct
// generators.
type Engine struct {
	store    *marketdata.Store
	cfg      Config
	dates    []time.Time
	builder  *snapshot.Builder
	logger   *zap.Logger
	recorder Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine validates cfg against store. It fails with
// core.ErrEmptyDateRange when fewer than two trading dates fall in range,
// since a signal day always needs a following execution day.
func NewEngine(store *marketdata.Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "price store")
	}
	if cfg.InitialCapital <= 0 {
		return nil, core.Errorf(core.ErrConfigInvalid, "initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		return nil, core.Errorf(core.ErrEmptyDateRange, "end %s before start %s",
			cfg.End.Format(core.DateLayout), cfg.Start.Format(core.DateLayout))
	}
	if err := cfg.Costs.Validate(); err != nil {
		return nil, err
	}

	dates := store.TradingDates(cfg.Start, cfg.End)
	if len(dates) < 2 {
		return nil, core.Errorf(core.ErrEmptyDateRange, "%d trading dates between %s and %s",
			len(dates), cfg.Start.Format(core.DateLayout), cfg.End.Format(core.DateLayout))
	}

	e := &Engine{
		store:    store,
		cfg:      cfg,
		dates:    dates,
		builder:  snapshot.NewBuilder(cfg.Snapshot),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dates returns the simulated trading dates.
func (e *Engine) Dates() []time.Time {
	return append([]time.Time(nil), e.dates...)
}

// Run simulates gen over every trading date. For each date but the last:
// build the snapshot as of that date, generate and validate instructions,
// fill them at the next date's open, then mark the portfolio at the next
// date's close. The first date is marked before the loop, so the curve holds
// one point per trading date.
//
// A generator error aborts the run with core.ErrStrategyFailed; a ledger
// invariant breach aborts it with core.ErrLedgerInvariant.
func (e *Engine) Run(ctx context.Context, gen strategy.SignalGenerator) (res *Result, err error) {
	started := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		e.recorder.RecordSimulation(gen.Name(), status, time.Since(started))
	}()

	sim, err := execution.NewSimulator(e.cfg.Costs, e.logger)
	if err != nil {
		return nil, err
	}
	ledger := portfolio.NewLedger(e.cfg.InitialCapital)

	res = &Result{
		ID:             uuid.NewString(),
		Strategy:       gen.Name(),
		Start:          e.dates[0],
		End:            e.dates[len(e.dates)-1],
		InitialCapital: e.cfg.InitialCapital,
		EquityCurve:    make([]portfolio.EquityPoint, 0, len(e.dates)),
	}

	e.logger.Info("backtest started",
		zap.String("run_id", res.ID),
		zap.String("strategy", gen.Name()),
		zap.Time("start", res.Start),
		zap.Time("end", res.End),
		zap.Int("symbols", len(e.store.Symbols())),
		zap.Float64("initial_capital", e.cfg.InitialCapital))

	res.EquityCurve = append(res.EquityCurve, ledger.MarkToMarket(e.dates[0], e.store.LatestClose))

	for i := 0; i < len(e.dates)-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		asOf, next := e.dates[i], e.dates[i+1]

		batch, err := e.signals(gen, asOf, ledger.State(), res)
		if err != nil {
			return nil, err
		}

		if len(batch) > 0 {
			fills := sim.Execute(next, batch, e.nextBars(next, batch), ledger.Cash())
			for _, fill := range fills {
				e.recorder.RecordFill(string(fill.Status))
				if !fill.Executed() {
					e.reject(res, next, StageExecution, fill.Code, fill.Reason, fill.Instruction)
				} else if err := ledger.Apply(fill); err != nil {
					return nil, err
				}
				res.Fills = append(res.Fills, fill)
			}
		}

		point := ledger.MarkToMarket(next, e.store.LatestClose)
		if point.Cash < 0 {
			return nil, core.Errorf(core.ErrLedgerInvariant, "cash %.2f on %s", point.Cash, next.Format(core.DateLayout))
		}
		res.EquityCurve = append(res.EquityCurve, point)

		e.logger.Debug("day complete",
			zap.Time("date", next),
			zap.Int("instructions", len(batch)),
			zap.Float64("equity", point.TotalEquity),
			zap.Float64("cash", point.Cash))
	}

	last := res.End
	res.Trades = BuildTrades(res.Fills, func(symbol string) (float64, bool) {
		return e.store.LatestClose(symbol, last)
	})
	res.Metrics = CalculateMetrics(res.EquityCurve, res.Fills, e.cfg.Metrics)

	e.logger.Info("backtest finished",
		zap.String("run_id", res.ID),
		zap.String("strategy", gen.Name()),
		zap.Float64("final_equity", res.Metrics.FinalEquity),
		zap.Float64("total_return", res.Metrics.TotalReturn),
		zap.Float64("calmar", res.Metrics.CalmarRatio),
		zap.Int("fills", res.Metrics.TradeCount),
		zap.Int("rejections", len(res.Rejections)),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

// signals builds the snapshot for asOf, calls the generator and keeps the
// instructions that honour the generator contract.
func (e *Engine) signals(gen strategy.SignalGenerator, asOf time.Time, state portfolio.State, res *Result) ([]core.TradingInstruction, error) {
	snap := e.builder.Build(asOf, e.store)
	if !snap.Valid() {
		return nil, nil
	}

	instructions, err := gen.GenerateSignals(snap, state)
	if err != nil {
		return nil, core.WrapError(core.ErrStrategyFailed,
			fmt.Errorf("%s on %s: %w", gen.Name(), asOf.Format(core.DateLayout), err))
	}

	batch := e.validate(snap, state, instructions, res)
	res.Invocations = append(res.Invocations, Invocation{
		Date:         snap.AsOf(),
		Generator:    gen.Name(),
		Instructions: len(instructions),
		Accepted:     len(batch),
	})
	return batch, nil
}

// validate drops instructions that reference data invisible as of the
// snapshot date or that contradict the portfolio, recording each as an
// audit entry. Buys are checked against the holdings at the start of the
// day: a sell earlier in the batch may still be rejected at execution, so
// it never frees the symbol for a buy.
func (e *Engine) validate(snap *snapshot.DataSnapshot, state portfolio.State, instructions []core.TradingInstruction, res *Result) []core.TradingInstruction {
	asOf := snap.AsOf()
	sellable := make(map[string]int64, len(state.Positions))
	for symbol, pos := range state.Positions {
		sellable[symbol] = pos.Quantity
	}
	bought := make(map[string]bool)

	batch := make([]core.TradingInstruction, 0, len(instructions))
	for _, inst := range instructions {
		if inst.GeneratedAt.IsZero() {
			inst.GeneratedAt = asOf
		}

		var code *core.Error
		var reason string
		switch {
		case inst.GeneratedAt.After(asOf):
			code, reason = core.ErrContractViolation, fmt.Sprintf("generated at %s after snapshot date", inst.GeneratedAt.Format(core.DateLayout))
		case !snap.Has(inst.Symbol):
			code, reason = core.ErrContractViolation, fmt.Sprintf("%s not visible as of %s", inst.Symbol, asOf.Format(core.DateLayout))
		case !inst.Action.Valid():
			code, reason = core.ErrContractViolation, fmt.Sprintf("unknown action %s", inst.Action)
		case inst.Quantity <= 0:
			code, reason = core.ErrContractViolation, fmt.Sprintf("quantity %d", inst.Quantity)
		case inst.Action == core.ActionBuy && (state.Has(inst.Symbol) || bought[inst.Symbol]):
			code, reason = core.ErrInconsistentState, fmt.Sprintf("buy of held symbol %s", inst.Symbol)
		case inst.Action == core.ActionSell && sellable[inst.Symbol] <= 0:
			code, reason = core.ErrInconsistentState, fmt.Sprintf("sell of %s with zero quantity", inst.Symbol)
		case inst.Action == core.ActionSell && inst.Quantity > sellable[inst.Symbol]:
			code, reason = core.ErrInconsistentState, fmt.Sprintf("sell of %d %s with %d held", inst.Quantity, inst.Symbol, sellable[inst.Symbol])
		}

		if code != nil {
			e.reject(res, asOf, StageValidation, code.Code, reason, inst)
			continue
		}

		if inst.Action == core.ActionBuy {
			bought[inst.Symbol] = true
		} else {
			sellable[inst.Symbol] -= inst.Quantity
		}
		batch = append(batch, inst)
	}
	return batch
}

func (e *Engine) reject(res *Result, date time.Time, stage AuditStage, code, reason string, inst core.TradingInstruction) {
	res.Rejections = append(res.Rejections, AuditEntry{
		Date:        date,
		Stage:       stage,
		Code:        code,
		Reason:      reason,
		Instruction: inst,
	})
	e.recorder.RecordRejection(code)
	e.logger.Warn("instruction rejected",
		zap.Time("date", date),
		zap.String("stage", string(stage)),
		zap.String("code", code),
		zap.String("symbol", inst.Symbol),
		zap.Stringer("action", inst.Action),
		zap.String("reason", reason))
}

func (e *Engine) nextBars(date time.Time, batch []core.TradingInstruction) map[string]core.PriceBar {
	bars := make(map[string]core.PriceBar, len(batch))
	for _, inst := range batch {
		if bar, ok := e.store.BarOn(inst.Symbol, date); ok {
			bars[inst.Symbol] = bar
		}
	}
	return bars
}
