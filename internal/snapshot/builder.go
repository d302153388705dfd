package snapshot

import (
	"time"

	"github.com/newthinker/quantsweep/internal/core"
)

// DefaultMinLookback is the minimum number of bars a symbol needs before it
// appears in a snapshot.
const DefaultMinLookback = 20

// BarSource is the read side of the price series store.
type BarSource interface {
	Symbols() []string
	BarsThrough(symbol string, asOf time.Time) []core.PriceBar
}

// Config controls snapshot construction.
type Config struct {
	MinLookback int          `mapstructure:"min_lookback"`
	Factors     FactorConfig `mapstructure:"factors"`
}

// DefaultConfig returns the standard lookback and factor windows.
func DefaultConfig() Config {
	return Config{
		MinLookback: DefaultMinLookback,
		Factors:     DefaultFactorConfig(),
	}
}

// Builder produces one DataSnapshot per simulated day.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder. Non-positive settings fall back to defaults.
func NewBuilder(cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.MinLookback <= 0 {
		cfg.MinLookback = def.MinLookback
	}
	f := &cfg.Factors
	if f.VolumeWindow <= 0 {
		f.VolumeWindow = def.Factors.VolumeWindow
	}
	if f.MomentumWindow <= 0 {
		f.MomentumWindow = def.Factors.MomentumWindow
	}
	if f.MAWindow <= 0 {
		f.MAWindow = def.Factors.MAWindow
	}
	if f.RangeWindow <= 0 {
		f.RangeWindow = def.Factors.RangeWindow
	}
	if f.ReturnWindow <= 0 {
		f.ReturnWindow = def.Factors.ReturnWindow
	}
	return &Builder{cfg: cfg}
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build truncates every symbol to bars dated on or before asOf and computes
// factors from the truncated slices. Symbols with fewer than MinLookback
// bars are left out. Build never fails; a snapshot with no symbols reports
// Valid() == false.
func (b *Builder) Build(asOf time.Time, src BarSource) *DataSnapshot {
	snap := &DataSnapshot{
		asOf:    core.Day(asOf),
		bars:    make(map[string][]core.PriceBar),
		factors: make(map[string]map[string]Factor),
	}

	for _, symbol := range src.Symbols() {
		bars := src.BarsThrough(symbol, snap.asOf)
		if len(bars) < b.cfg.MinLookback {
			continue
		}
		snap.bars[symbol] = bars
		snap.factors[symbol] = ComputeFactors(bars, b.cfg.Factors)
	}
	return snap
}
