// Package sweep runs one strategy over a grid of parameter combinations and
// ranks the results.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/marketdata"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Recorder receives sweep measurements in addition to per-run ones.
type Recorder interface {
	backtest.Recorder
	RecordCombination(status string)
	WorkerStarted()
	WorkerFinished()
}

type nopRecorder struct{}

func (nopRecorder) RecordSimulation(string, string, time.Duration) {}
func (nopRecorder) RecordFill(string)                              {}
func (nopRecorder) RecordRejection(string)                         {}
func (nopRecorder) RecordCombination(string)                       {}
func (nopRecorder) WorkerStarted()                                 {}
func (nopRecorder) WorkerFinished()                                {}

// Runner executes sweep plans against a shared, read-only price store.
type Runner struct {
	registry *strategy.Registry
	store    *marketdata.Store
	base     backtest.Config
	policy   Policy
	workers  int
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder shared by the runner and its engines.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithWorkers sets the default worker count used when a plan leaves it unset.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithTimeout sets the default sweep timeout used when a plan leaves it unset.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithPolicy replaces the scoring policy.
func WithPolicy(p Policy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// NewRunner creates a runner. base supplies everything a plan does not
// override: costs, snapshot and metric settings.
func NewRunner(registry *strategy.Registry, store *marketdata.Store, base backtest.Config, opts ...Option) (*Runner, error) {
	if registry == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "strategy registry")
	}
	if store == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "price store")
	}
	r := &Runner{
		registry: registry,
		store:    store,
		base:     base,
		policy:   DefaultPolicy(),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run expands the plan's grid and simulates every combination on a bounded
// worker pool. Configuration problems are returned before any simulation
// starts. A combination that errors or panics is reported as failed without
// affecting the others. When the timeout elapses, combinations that have not
// started are abandoned; started ones run to completion.
//
// If no combination ends up ranked, the report is returned together with
// core.ErrSweepFailed carrying every reason.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Report, error) {
	started := time.Now()
	if plan == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "sweep plan")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	reg, ok := r.registry.Get(plan.Strategy)
	if !ok {
		return nil, core.Errorf(core.ErrUnknownStrategy, "%q", plan.Strategy)
	}
	for _, key := range append(plan.Grid.Keys(), plan.Fixed.Keys()...) {
		if _, known := reg.Defaults[key]; !known {
			return nil, core.Errorf(core.ErrMalformedGrid, "%s does not accept %q", plan.Strategy, key)
		}
	}

	combos, err := Expand(plan.Grid, plan.Fixed)
	if err != nil {
		return nil, err
	}
	if err := r.checkTypes(plan.Strategy, combos); err != nil {
		return nil, err
	}
	engine, err := r.engine(plan)
	if err != nil {
		return nil, err
	}

	policy := r.policy
	policy.MinTrades = plan.MinTradesOr(policy.MinTrades)
	workers := plan.Workers
	if workers <= 0 {
		workers = r.workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	timeout := plan.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	dates := engine.Dates()
	report := &Report{
		ID:        uuid.NewString(),
		Name:      plan.Name,
		Strategy:  plan.Strategy,
		Start:     dates[0],
		End:       dates[len(dates)-1],
		Total:     len(combos),
		CreatedAt: started,
	}

	r.logger.Info("sweep started",
		zap.String("sweep_id", report.ID),
		zap.String("strategy", plan.Strategy),
		zap.Int("combinations", len(combos)),
		zap.Int("workers", workers),
		zap.Duration("timeout", timeout))

	outcomes := make([]Outcome, len(combos))
	for i, c := range combos {
		outcomes[i] = Outcome{Index: c.Index, Params: c.Params, Status: StatusPending}
	}
	results := make([]*backtest.Result, len(combos))

	gate := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		gate, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var done atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range combos {
		if gate.Err() != nil {
			break
		}
		g.Go(func() error {
			if gate.Err() != nil {
				return nil
			}
			outcomes[i].Status = StatusRunning
			outcomes[i], results[i] = r.runCombination(context.WithoutCancel(gate), engine, plan.Strategy, combos[i], policy)
			r.logProgress(int(done.Add(1)), len(combos), outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	for i := range outcomes {
		if outcomes[i].Status == StatusPending {
			outcomes[i].Status = StatusAbandoned
			outcomes[i].Reason = "not started before the sweep deadline"
			r.recorder.RecordCombination(string(StatusAbandoned))
		}
	}

	err = r.finish(report, outcomes, results)
	report.Elapsed = time.Since(started)

	fields := []zap.Field{
		zap.String("sweep_id", report.ID),
		zap.Int("total", report.Total),
		zap.Int("ranked", report.Successful()),
		zap.Int("discarded", report.Discarded),
		zap.Int("failed", report.Failed),
		zap.Int("abandoned", report.Abandoned),
		zap.Duration("elapsed", report.Elapsed),
	}
	if report.Best != nil {
		fields = append(fields,
			zap.String("best_params", report.Best.Params.Fingerprint()),
			zap.Float64("best_score", report.Best.Score))
	}
	if err != nil {
		r.logger.Error("sweep failed", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("sweep finished", fields...)
	}
	return report, err
}

// checkTypes builds every combination once so a value of the wrong type
// fails the sweep before anything is simulated. A combination that decodes
// but is rejected by the strategy's own validation still runs, and fails on
// its own.
func (r *Runner) checkTypes(name string, combos []Combination) error {
	for _, c := range combos {
		if _, err := r.registry.New(name, c.Params); errors.Is(err, core.ErrParameterType) {
			return core.WrapError(core.ErrMalformedGrid,
				fmt.Errorf("combination #%d [%s]: %w", c.Index, c.Params.Fingerprint(), err))
		}
	}
	return nil
}

func (r *Runner) engine(plan *Plan) (*backtest.Engine, error) {
	store := r.store
	if len(plan.Symbols) > 0 {
		var err error
		if store, err = store.Subset(plan.Symbols); err != nil {
			return nil, err
		}
	}
	start, end, err := plan.Range()
	if err != nil {
		return nil, err
	}

	cfg := r.base
	cfg.InitialCapital = plan.InitialCapital
	cfg.Start, cfg.End = start, end
	cfg.Costs = plan.Costs.Apply(cfg.Costs)
	return backtest.NewEngine(store, cfg,
		backtest.WithLogger(r.logger.Named("engine")),
		backtest.WithRecorder(r.recorder))
}

// runCombination builds a fresh generator and simulates it. Panics are
// turned into a failed outcome.
func (r *Runner) runCombination(ctx context.Context, engine *backtest.Engine, name string, c Combination, policy Policy) (out Outcome, res *backtest.Result) {
	out = Outcome{Index: c.Index, Params: c.Params, Status: StatusRunning}
	started := time.Now()

	r.recorder.WorkerStarted()
	defer r.recorder.WorkerFinished()
	defer func() {
		if p := recover(); p != nil {
			out.Status = StatusFailed
			out.Metrics = nil
			out.Reason = fmt.Sprintf("panic: %v", p)
			res = nil
			r.logger.Error("combination panicked",
				zap.Int("index", c.Index),
				zap.String("params", c.Params.Fingerprint()),
				zap.Any("panic", p),
				zap.Stack("stack"))
		}
		out.Elapsed = time.Since(started)
		status := string(out.Status)
		if out.Discarded {
			status = "discarded"
		}
		r.recorder.RecordCombination(status)
	}()

	gen, err := r.registry.New(name, c.Params)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out, nil
	}
	res, err = engine.Run(ctx, gen)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out, nil
	}
	res.Params = c.Params

	m := res.Metrics
	out.Status = StatusScored
	out.Metrics = &m
	out.RunID = res.ID
	out.Score = policy.score(m)
	if m.TradeCount < policy.MinTrades {
		out.Discarded = true
		out.Reason = fmt.Sprintf("%d fills, minimum is %d", m.TradeCount, policy.MinTrades)
	}
	return out, res
}

func (r *Runner) logProgress(n, total int, o Outcome) {
	progress := fmt.Sprintf("%d/%d", n, total)
	params := o.Params.Fingerprint()
	switch {
	case o.Status == StatusFailed:
		r.logger.Warn("combination failed",
			zap.String("progress", progress),
			zap.String("params", params),
			zap.String("reason", o.Reason))
	case o.Discarded:
		r.logger.Info("combination discarded",
			zap.String("progress", progress),
			zap.String("params", params),
			zap.String("reason", o.Reason))
	default:
		r.logger.Info("combination scored",
			zap.String("progress", progress),
			zap.String("params", params),
			zap.Float64("calmar", o.Metrics.CalmarRatio),
			zap.Float64("sharpe", o.Metrics.SharpeRatio),
			zap.Float64("max_drawdown", o.Metrics.MaxDrawdown),
			zap.Int("trades", o.Metrics.TradeCount),
			zap.Duration("elapsed", o.Elapsed))
	}
}

// finish counts outcomes, ranks them and collects diagnostics.
func (r *Runner) finish(report *Report, outcomes []Outcome, results []*backtest.Result) error {
	var errs []error
	for _, o := range outcomes {
		var base *core.Error
		switch {
		case o.Status == StatusFailed:
			report.Failed++
			base = core.ErrCombinationFailed
		case o.Status == StatusAbandoned:
			report.Abandoned++
			base = core.ErrSweepTimeout
		case o.Discarded:
			report.Scored++
			report.Discarded++
			base = core.ErrTooFewTrades
		default:
			report.Scored++
			continue
		}

		params := o.Params.Fingerprint()
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Index:  o.Index,
			Params: params,
			Code:   base.Code,
			Reason: o.Reason,
		})
		errs = append(errs, core.Errorf(base, "#%d [%s]: %s", o.Index, params, o.Reason))
	}

	report.Outcomes = outcomes
	report.Ranked = Rank(outcomes)
	if len(report.Ranked) == 0 {
		return core.WrapError(core.ErrSweepFailed, multierr.Combine(errs...))
	}

	best := report.Ranked[0]
	report.Best = &best
	report.BestResult = results[best.Index]
	return nil
}
