package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// EnvPrefix prefixes environment overrides, e.g. QUANTSWEEP_DATA_DIR.
const EnvPrefix = "QUANTSWEEP"

type Config struct {
	Log      LogConfig               `mapstructure:"log"`
	Data     DataConfig              `mapstructure:"data"`
	Backtest BacktestConfig          `mapstructure:"backtest"`
	Sweep    SweepConfig             `mapstructure:"sweep"`
	Archive  ArchiveConfig           `mapstructure:"archive"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
	Presets  map[string]PresetConfig `mapstructure:"presets"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DataConfig selects the price feed.
type DataConfig struct {
	Source  string   `mapstructure:"source"` // "csv" or "parquet"
	Dir     string   `mapstructure:"dir"`
	Symbols []string `mapstructure:"symbols"`
}

// BacktestConfig holds simulation defaults shared by single runs and sweeps.
type BacktestConfig struct {
	InitialCapital float64                `mapstructure:"initial_capital"`
	Start          string                 `mapstructure:"start"`
	End            string                 `mapstructure:"end"`
	Costs          execution.CostConfig   `mapstructure:"costs"`
	Snapshot       snapshot.Config        `mapstructure:"snapshot"`
	Metrics        backtest.MetricsConfig `mapstructure:"metrics"`
}

type SweepConfig struct {
	Workers   int           `mapstructure:"workers"` // 0 means one per CPU
	Timeout   time.Duration `mapstructure:"timeout"`
	MinTrades int           `mapstructure:"min_trades"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "", "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// PresetConfig is a named strategy parameter set.
type PresetConfig struct {
	Strategy    string         `mapstructure:"strategy"`
	Description string         `mapstructure:"description"`
	Params      map[string]any `mapstructure:"params"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Data: DataConfig{
			Source: "csv",
			Dir:    "data",
		},
		Backtest: BacktestConfig{
			InitialCapital: 1_000_000,
			Costs:          execution.DefaultCostConfig(),
			Snapshot:       snapshot.DefaultConfig(),
			Metrics:        backtest.DefaultMetricsConfig(),
		},
		Sweep: SweepConfig{
			Timeout:   30 * time.Minute,
			MinTrades: 5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Presets: DefaultPresets(),
	}
}

// DefaultPresets returns the bundled mean-reversion and momentum presets.
func DefaultPresets() map[string]PresetConfig {
	return map[string]PresetConfig{
		"conservative": {
			Strategy:    "mean_reversion",
			Description: "Mean reversion with a deep entry, low risk",
			Params:      map[string]any{"lookback_period": 20, "buy_threshold": -0.10, "sell_threshold": 0.02},
		},
		"balanced": {
			Strategy:    "mean_reversion",
			Description: "Mean reversion with the best parameters of the reference sweep",
			Params:      map[string]any{"lookback_period": 20, "buy_threshold": -0.08, "sell_threshold": 0.02},
		},
		"aggressive": {
			Strategy:    "mean_reversion",
			Description: "Mean reversion with a short lookback and shallow entry, high risk",
			Params:      map[string]any{"lookback_period": 15, "buy_threshold": -0.05, "sell_threshold": 0.03},
		},
		"momentum_conservative": {
			Strategy:    "momentum",
			Description: "Momentum with a high entry bar and modest target",
			Params: map[string]any{"momentum_period": 15, "buy_threshold": 0.08, "sell_threshold": -0.05,
				"profit_target": 0.06, "max_hold_days": 25},
		},
		"momentum_balanced": {
			Strategy:    "momentum",
			Description: "Momentum balancing return and risk",
			Params: map[string]any{"momentum_period": 10, "buy_threshold": 0.05, "sell_threshold": -0.03,
				"profit_target": 0.08, "max_hold_days": 20},
		},
		"momentum_aggressive": {
			Strategy:    "momentum",
			Description: "Short-term momentum with a wide target",
			Params: map[string]any{"momentum_period": 5, "buy_threshold": 0.03, "sell_threshold": -0.02,
				"profit_target": 0.12, "max_hold_days": 15},
		},
	}
}

// Preset returns a named preset.
func (c *Config) Preset(name string) (PresetConfig, error) {
	p, ok := c.Presets[name]
	if !ok {
		return PresetConfig{}, core.Errorf(core.ErrConfigMissing, "preset %q", name)
	}
	return p, nil
}

// PresetNames returns the preset names in sorted order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StrategyParams returns a copy of the preset parameters.
func (p PresetConfig) StrategyParams() strategy.Params {
	return strategy.Params(p.Params).Clone()
}

// EngineConfig converts the backtest section into an engine configuration.
func (b BacktestConfig) EngineConfig() (backtest.Config, error) {
	cfg := backtest.Config{
		InitialCapital: b.InitialCapital,
		Costs:          b.Costs,
		Snapshot:       b.Snapshot,
		Metrics:        b.Metrics,
	}
	var err error
	if b.Start != "" {
		if cfg.Start, err = core.ParseDate(b.Start); err != nil {
			return backtest.Config{}, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	if b.End != "" {
		if cfg.End, err = core.ParseDate(b.End); err != nil {
			return backtest.Config{}, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Data validation
	switch c.Data.Source {
	case "csv", "parquet":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.source must be csv or parquet, got %q", c.Data.Source))
	}
	if c.Data.Dir == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.dir required"))
	}

	// Backtest validation
	if c.Backtest.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %v", c.Backtest.InitialCapital))
	}
	if err := c.Backtest.Costs.Validate(); err != nil {
		return err
	}
	if _, err := c.Backtest.EngineConfig(); err != nil {
		return err
	}
	if c.Backtest.Metrics.TradingDaysPerYear < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("trading_days_per_year cannot be negative, got %d", c.Backtest.Metrics.TradingDaysPerYear))
	}

	// Sweep validation
	if c.Sweep.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep workers cannot be negative, got %d", c.Sweep.Workers))
	}
	if c.Sweep.MinTrades < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_trades cannot be negative, got %d", c.Sweep.MinTrades))
	}
	if c.Sweep.Timeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep timeout cannot be negative, got %s", c.Sweep.Timeout))
	}

	// Archive validation - if type set, check config exists
	switch c.Archive.Type {
	case "":
	case "localfs":
		if c.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive path required when type is localfs"))
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when archive type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Archive.Type))
	}

	for name, p := range c.Presets {
		if p.Strategy == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("preset %q has no strategy", name))
		}
	}

	return nil
}
