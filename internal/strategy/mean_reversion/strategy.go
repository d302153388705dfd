package mean_reversion

import (
	"fmt"
	"strings"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Name is the registry name.
const Name = "mean_reversion"

// Config holds the mean reversion parameters.
type Config struct {
	LookbackPeriod int `mapstructure:"lookback_period"`
	// BuyThreshold is the (negative) deviation from the mean that triggers a buy.
	BuyThreshold float64 `mapstructure:"buy_threshold"`
	// SellThreshold is the deviation from the mean that triggers a sell.
	SellThreshold float64 `mapstructure:"sell_threshold"`
	StopLoss      float64 `mapstructure:"stop_loss_threshold"`
	ProfitTarget  float64 `mapstructure:"profit_target"`
	MaxHoldDays   int     `mapstructure:"max_hold_days"`
	PositionSize  int64   `mapstructure:"position_size"`
}

// DefaultConfig returns the balanced preset.
func DefaultConfig() Config {
	return Config{
		LookbackPeriod: 20,
		BuyThreshold:   -0.08,
		SellThreshold:  0.02,
		StopLoss:       0.08,
		ProfitTarget:   0.10,
		MaxHoldDays:    15,
		PositionSize:   1000,
	}
}

// Validate checks the parameters are usable.
func (c Config) Validate() error {
	switch {
	case c.LookbackPeriod < 2:
		return fmt.Errorf("lookback_period must be at least 2, got %d", c.LookbackPeriod)
	case c.BuyThreshold >= 0:
		return fmt.Errorf("buy_threshold must be negative, got %v", c.BuyThreshold)
	case c.BuyThreshold >= c.SellThreshold:
		return fmt.Errorf("buy_threshold %v must be below sell_threshold %v", c.BuyThreshold, c.SellThreshold)
	case c.StopLoss < 0 || c.ProfitTarget < 0:
		return fmt.Errorf("stop_loss_threshold and profit_target must not be negative")
	case c.MaxHoldDays < 0:
		return fmt.Errorf("max_hold_days must not be negative, got %d", c.MaxHoldDays)
	case c.PositionSize <= 0:
		return fmt.Errorf("position_size must be positive, got %d", c.PositionSize)
	}
	return nil
}

// Defaults returns DefaultConfig as registry parameters.
func Defaults() strategy.Params {
	c := DefaultConfig()
	return strategy.Params{
		"lookback_period":     c.LookbackPeriod,
		"buy_threshold":       c.BuyThreshold,
		"sell_threshold":      c.SellThreshold,
		"stop_loss_threshold": c.StopLoss,
		"profit_target":       c.ProfitTarget,
		"max_hold_days":       c.MaxHoldDays,
		"position_size":       int(c.PositionSize),
	}
}

// ConfigFromParams decodes registry parameters over DefaultConfig.
func ConfigFromParams(p strategy.Params) (Config, error) {
	c := DefaultConfig()
	err := p.Decode(&c)
	return c, err
}

// MeanReversion buys when the close falls well below its trailing mean and
// exits on recovery, stop loss, profit target or time.
type MeanReversion struct {
	cfg Config
}

func New(cfg Config) (*MeanReversion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MeanReversion{cfg: cfg}, nil
}

// Factory builds a MeanReversion from registry parameters.
func Factory(p strategy.Params) (strategy.SignalGenerator, error) {
	cfg, err := ConfigFromParams(p)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Registration describes the strategy to a registry.
func Registration() strategy.Registration {
	return strategy.Registration{
		Name:        Name,
		Description: "Buy on deviation below the N-day mean, sell on recovery, stop loss, target or time stop",
		Defaults:    Defaults(),
		Factory:     Factory,
	}
}

func (m *MeanReversion) Name() string {
	return Name
}

func (m *MeanReversion) GenerateSignals(snap *snapshot.DataSnapshot, state portfolio.State) ([]core.TradingInstruction, error) {
	var out []core.TradingInstruction

	for _, symbol := range snap.Symbols() {
		closes := snap.Closes(symbol)
		deviation, ok := m.deviation(closes)
		pos, held := state.Position(symbol)

		if held {
			if reasons := m.exitReasons(snap, pos, closes[len(closes)-1], deviation, ok); len(reasons) > 0 {
				out = append(out, strategy.Instruction(snap, symbol, core.ActionSell, pos.Quantity,
					"mean reversion exit: "+strings.Join(reasons, "; ")))
			}
			continue
		}

		if ok && deviation <= m.cfg.BuyThreshold {
			out = append(out, strategy.Instruction(snap, symbol, core.ActionBuy, m.cfg.PositionSize,
				fmt.Sprintf("%.2f%% below %d-day mean", -deviation*100, m.cfg.LookbackPeriod)))
		}
	}
	return out, nil
}

// deviation compares the latest close with the mean of the preceding
// LookbackPeriod closes.
func (m *MeanReversion) deviation(closes []float64) (float64, bool) {
	n := m.cfg.LookbackPeriod
	if len(closes) < n+1 {
		return 0, false
	}
	var sum float64
	for _, c := range closes[len(closes)-1-n : len(closes)-1] {
		sum += c
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - mean) / mean, true
}

func (m *MeanReversion) exitReasons(snap *snapshot.DataSnapshot, pos portfolio.Position, price, deviation float64, hasDeviation bool) []string {
	var reasons []string
	if pos.AverageCost > 0 {
		pnl := price/pos.AverageCost - 1
		if m.cfg.ProfitTarget > 0 && pnl >= m.cfg.ProfitTarget {
			reasons = append(reasons, fmt.Sprintf("profit %.2f%%", pnl*100))
		}
		if m.cfg.StopLoss > 0 && pnl <= -m.cfg.StopLoss {
			reasons = append(reasons, fmt.Sprintf("stop loss %.2f%%", pnl*100))
		}
	}
	if hasDeviation && deviation >= m.cfg.SellThreshold {
		reasons = append(reasons, fmt.Sprintf("reverted to %.2f%% above mean", deviation*100))
	}
	if m.cfg.MaxHoldDays > 0 {
		if days := strategy.DaysHeld(snap, pos); days >= m.cfg.MaxHoldDays {
			reasons = append(reasons, fmt.Sprintf("held %d days", days))
		}
	}
	return reasons
}
