package momentum

import (
	"fmt"
	"strings"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/indicator"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Name is the registry name.
const Name = "momentum"

// Config holds the momentum rule parameters.
type Config struct {
	// Period is the lookback of the rate of change, in trading days.
	Period int `mapstructure:"momentum_period"`
	// BuyThreshold opens a position when the return exceeds it.
	BuyThreshold float64 `mapstructure:"buy_threshold"`
	// SellThreshold closes a position when the return falls to it.
	SellThreshold float64 `mapstructure:"sell_threshold"`
	// ProfitTarget closes a position at this unrealized gain; 0 disables.
	ProfitTarget float64 `mapstructure:"profit_target"`
	// MaxHoldDays closes a position after this many trading days; 0 disables.
	MaxHoldDays int `mapstructure:"max_hold_days"`
	// PositionSize is the number of shares bought per entry.
	PositionSize int64 `mapstructure:"position_size"`
}

// DefaultConfig returns a 20-day momentum rule with exits on reversal only.
func DefaultConfig() Config {
	return Config{
		Period:        20,
		BuyThreshold:  0.05,
		SellThreshold: -0.03,
		PositionSize:  1000,
	}
}

// Validate checks the parameters are usable.
func (c Config) Validate() error {
	switch {
	case c.Period <= 0:
		return fmt.Errorf("momentum_period must be positive, got %d", c.Period)
	case c.SellThreshold >= c.BuyThreshold:
		return fmt.Errorf("sell_threshold %v must be below buy_threshold %v", c.SellThreshold, c.BuyThreshold)
	case c.ProfitTarget < 0:
		return fmt.Errorf("profit_target must not be negative, got %v", c.ProfitTarget)
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
		"momentum_period": c.Period,
		"buy_threshold":   c.BuyThreshold,
		"sell_threshold":  c.SellThreshold,
		"profit_target":   c.ProfitTarget,
		"max_hold_days":   c.MaxHoldDays,
		"position_size":   int(c.PositionSize),
	}
}

// ConfigFromParams decodes registry parameters over DefaultConfig.
func ConfigFromParams(p strategy.Params) (Config, error) {
	c := DefaultConfig()
	err := p.Decode(&c)
	return c, err
}

// Momentum buys symbols whose trailing return exceeds a threshold and sells
// them when the return reverses, a profit target is hit or the holding
// period runs out.
type Momentum struct {
	cfg Config
}

// New creates a momentum strategy
func New(cfg Config) (*Momentum, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Momentum{cfg: cfg}, nil
}

// Factory builds a Momentum from registry parameters.
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
		Description: "Buy on N-day return above a threshold, sell on reversal, target or time stop",
		Defaults:    Defaults(),
		Factory:     Factory,
	}
}

func (m *Momentum) Name() string {
	return Name
}

// GenerateSignals emits exits for held symbols first, then entries.
func (m *Momentum) GenerateSignals(snap *snapshot.DataSnapshot, state portfolio.State) ([]core.TradingInstruction, error) {
	var out []core.TradingInstruction

	for _, symbol := range snap.Symbols() {
		pos, held := state.Position(symbol)
		if !held {
			continue
		}
		if reasons := m.exitReasons(snap, pos); len(reasons) > 0 {
			out = append(out, strategy.Instruction(snap, symbol, core.ActionSell, pos.Quantity,
				"momentum exit: "+strings.Join(reasons, "; ")))
		}
	}

	for _, symbol := range snap.Symbols() {
		if state.Has(symbol) {
			continue
		}
		roc, ok := indicator.ROC(snap.Closes(symbol), m.cfg.Period)
		if !ok || roc <= m.cfg.BuyThreshold {
			continue
		}
		out = append(out, strategy.Instruction(snap, symbol, core.ActionBuy, m.cfg.PositionSize,
			fmt.Sprintf("%d-day return %.2f%% > %.2f%%", m.cfg.Period, roc*100, m.cfg.BuyThreshold*100)))
	}
	return out, nil
}

func (m *Momentum) exitReasons(snap *snapshot.DataSnapshot, pos portfolio.Position) []string {
	var reasons []string

	if roc, ok := indicator.ROC(snap.Closes(pos.Symbol), m.cfg.Period); ok && roc <= m.cfg.SellThreshold {
		reasons = append(reasons, fmt.Sprintf("return %.2f%% <= %.2f%%", roc*100, m.cfg.SellThreshold*100))
	}
	if m.cfg.ProfitTarget > 0 && pos.AverageCost > 0 {
		if bar, ok := snap.Latest(pos.Symbol); ok {
			if pnl := bar.Close/pos.AverageCost - 1; pnl >= m.cfg.ProfitTarget {
				reasons = append(reasons, fmt.Sprintf("profit %.2f%% >= %.2f%%", pnl*100, m.cfg.ProfitTarget*100))
			}
		}
	}
	if m.cfg.MaxHoldDays > 0 {
		if days := strategy.DaysHeld(snap, pos); days >= m.cfg.MaxHoldDays {
			reasons = append(reasons, fmt.Sprintf("held %d days", days))
		}
	}
	return reasons
}
