// Package app wires configuration, data loading, strategies, metrics and
// the result archive behind the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/config"
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/marketdata"
	"github.com/newthinker/quantsweep/internal/metrics"
	"github.com/newthinker/quantsweep/internal/storage/archive"
	"github.com/newthinker/quantsweep/internal/strategy"
	"github.com/newthinker/quantsweep/internal/strategy/builtins"
	"github.com/newthinker/quantsweep/internal/sweep"
)

// App is the main application orchestrator
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	source   marketdata.Source
	registry *strategy.Registry
	metrics  *metrics.Registry
	archive  *archive.Archive
}

// Option configures an App.
type Option func(*App)

// WithSource replaces the configured price source.
func WithSource(src marketdata.Source) Option {
	return func(a *App) {
		if src != nil {
			a.source = src
		}
	}
}

// WithStorage replaces the configured archive backend.
func WithStorage(s archive.Storage) Option {
	return func(a *App) {
		if s != nil {
			a.archive = archive.New(s)
		}
	}
}

// New creates a new App instance from a validated config.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := strategy.NewRegistry(logger.Named("strategy"))
	if err := builtins.Register(registry); err != nil {
		return nil, fmt.Errorf("registering strategies: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
	}

	switch cfg.Data.Source {
	case "parquet":
		a.source = marketdata.NewParquetSource(cfg.Data.Dir)
	default:
		a.source = marketdata.NewCSVSource(cfg.Data.Dir)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	st, err := openStorage(cfg.Archive)
	if err != nil {
		return nil, err
	}
	if st != nil {
		a.archive = archive.New(st)
	}

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func openStorage(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown archive type %q", cfg.Type)
	}
}

// Registry returns the strategy registry.
func (a *App) Registry() *strategy.Registry {
	return a.registry
}

// Metrics returns the metrics registry, nil when metrics are disabled.
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// LoadStore loads the full history of symbols up to end. History before the
// simulated start is kept so the first snapshots have their lookback.
func (a *App) LoadStore(ctx context.Context, symbols []string, end time.Time) (*marketdata.Store, error) {
	if len(symbols) == 0 {
		symbols = a.cfg.Data.Symbols
	}
	started := time.Now()
	store, err := a.source.Load(ctx, symbols, time.Time{}, end)
	if err != nil {
		return nil, fmt.Errorf("loading prices: %w", err)
	}
	a.logger.Info("prices loaded",
		zap.String("source", a.cfg.Data.Source),
		zap.Int("symbols", len(store.Symbols())),
		zap.Duration("elapsed", time.Since(started)))
	return store, nil
}

// BacktestRequest selects the strategy and window of a single run.
type BacktestRequest struct {
	Strategy string
	// Preset names a configured parameter set; it also selects the strategy
	// when Strategy is empty.
	Preset  string
	Params  strategy.Params
	Symbols []string
	Start   string
	End     string
}

// Backtest runs one simulation and archives the result when an archive is
// configured.
func (a *App) Backtest(ctx context.Context, req BacktestRequest) (*backtest.Result, error) {
	name, params, err := a.resolve(req)
	if err != nil {
		return nil, err
	}

	bt := a.cfg.Backtest
	if req.Start != "" {
		bt.Start = req.Start
	}
	if req.End != "" {
		bt.End = req.End
	}
	engineCfg, err := bt.EngineConfig()
	if err != nil {
		return nil, err
	}

	gen, err := a.registry.New(name, params)
	if err != nil {
		return nil, err
	}
	store, err := a.LoadStore(ctx, req.Symbols, engineCfg.End)
	if err != nil {
		return nil, err
	}

	opts := []backtest.Option{backtest.WithLogger(a.logger.Named("engine"))}
	if a.metrics != nil {
		opts = append(opts, backtest.WithRecorder(a.metrics))
	}
	engine, err := backtest.NewEngine(store, engineCfg, opts...)
	if err != nil {
		return nil, err
	}

	res, err := engine.Run(ctx, gen)
	if err != nil {
		return nil, err
	}
	reg, _ := a.registry.Get(name)
	res.Params = reg.Defaults.Merge(params)

	if a.archive != nil {
		p, err := a.archive.SaveRun(ctx, res)
		if err != nil {
			return res, fmt.Errorf("archiving run: %w", err)
		}
		a.logger.Info("run archived", zap.String("path", p))
	}
	return res, nil
}

func (a *App) resolve(req BacktestRequest) (string, strategy.Params, error) {
	name := req.Strategy
	params := strategy.Params{}
	if req.Preset != "" {
		preset, err := a.cfg.Preset(req.Preset)
		if err != nil {
			return "", nil, err
		}
		if name == "" {
			name = preset.Strategy
		}
		if name != preset.Strategy {
			return "", nil, core.Errorf(core.ErrConfigInvalid, "preset %q is for %s, not %s", req.Preset, preset.Strategy, name)
		}
		params = preset.StrategyParams()
	}
	if name == "" {
		return "", nil, core.Errorf(core.ErrConfigMissing, "strategy or preset")
	}
	return name, params.Merge(req.Params), nil
}

// Sweep runs a parameter sweep and archives its report. A report is
// returned alongside core.ErrSweepFailed when nothing could be ranked.
func (a *App) Sweep(ctx context.Context, plan *sweep.Plan) (*sweep.Report, error) {
	if plan == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "sweep plan")
	}
	if plan.Start == "" {
		plan.Start = a.cfg.Backtest.Start
	}
	if plan.End == "" {
		plan.End = a.cfg.Backtest.End
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	_, end, err := plan.Range()
	if err != nil {
		return nil, err
	}

	store, err := a.LoadStore(ctx, plan.Symbols, end)
	if err != nil {
		return nil, err
	}
	base, err := a.cfg.Backtest.EngineConfig()
	if err != nil {
		return nil, err
	}

	opts := []sweep.Option{
		sweep.WithLogger(a.logger.Named("sweep")),
		sweep.WithWorkers(a.cfg.Sweep.Workers),
		sweep.WithTimeout(a.cfg.Sweep.Timeout),
		sweep.WithPolicy(sweep.Policy{MinTrades: a.cfg.Sweep.MinTrades}),
	}
	if a.metrics != nil {
		opts = append(opts, sweep.WithRecorder(a.metrics))
	}
	runner, err := sweep.NewRunner(a.registry, store, base, opts...)
	if err != nil {
		return nil, err
	}

	report, runErr := runner.Run(ctx, plan)
	if report != nil && a.archive != nil {
		p, err := a.archive.SaveSweep(ctx, report)
		if err != nil {
			return report, fmt.Errorf("archiving sweep: %w", err)
		}
		a.logger.Info("sweep archived", zap.String("path", p))
	}
	return report, runErr
}

// Close flushes metrics to the configured textfile.
func (a *App) Close() error {
	if a.metrics == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
