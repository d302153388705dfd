package volume_surge

import (
	"fmt"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Name is the registry name.
const Name = "volume_surge"

// VolumeSurge buys on abnormal volume and holds for a fixed number of days.
type VolumeSurge struct {
	threshold    float64
	maxHoldDays  int
	stopLoss     float64
	positionSize int64
}

// Defaults returns the registry parameters.
func Defaults() strategy.Params {
	return strategy.Params{
		"surge_threshold": 2.0,
		"max_hold_days":   5,
		"stop_loss":       0.05,
		"position_size":   1000,
	}
}

// New creates a volume surge strategy
func New(threshold float64, maxHoldDays int, stopLoss float64, positionSize int64) (*VolumeSurge, error) {
	if threshold <= 1 {
		return nil, fmt.Errorf("surge_threshold must exceed 1, got %v", threshold)
	}
	if maxHoldDays <= 0 {
		return nil, fmt.Errorf("max_hold_days must be positive, got %d", maxHoldDays)
	}
	if stopLoss < 0 {
		return nil, fmt.Errorf("stop_loss must not be negative, got %v", stopLoss)
	}
	if positionSize <= 0 {
		return nil, fmt.Errorf("position_size must be positive, got %d", positionSize)
	}
	return &VolumeSurge{
		threshold:    threshold,
		maxHoldDays:  maxHoldDays,
		stopLoss:     stopLoss,
		positionSize: positionSize,
	}, nil
}

type params struct {
	Threshold    float64 `mapstructure:"surge_threshold"`
	MaxHoldDays  int     `mapstructure:"max_hold_days"`
	StopLoss     float64 `mapstructure:"stop_loss"`
	PositionSize int64   `mapstructure:"position_size"`
}

// Factory builds a VolumeSurge from registry parameters.
func Factory(p strategy.Params) (strategy.SignalGenerator, error) {
	c := params{Threshold: 2.0, MaxHoldDays: 5, StopLoss: 0.05, PositionSize: 1000}
	if err := p.Decode(&c); err != nil {
		return nil, err
	}
	return New(c.Threshold, c.MaxHoldDays, c.StopLoss, c.PositionSize)
}

// Registration describes the strategy to a registry.
func Registration() strategy.Registration {
	return strategy.Registration{
		Name:        Name,
		Description: "Buy when volume exceeds a multiple of its 20-day average, hold for a fixed period",
		Defaults:    Defaults(),
		Factory:     Factory,
	}
}

func (v *VolumeSurge) Name() string {
	return Name
}

func (v *VolumeSurge) GenerateSignals(snap *snapshot.DataSnapshot, state portfolio.State) ([]core.TradingInstruction, error) {
	var out []core.TradingInstruction

	for _, symbol := range snap.Symbols() {
		if pos, held := state.Position(symbol); held {
			if reason := v.exitReason(snap, pos); reason != "" {
				out = append(out, strategy.Instruction(snap, symbol, core.ActionSell, pos.Quantity, reason))
			}
			continue
		}

		surge, ok := snap.Factor(symbol, snapshot.FactorVolumeSurge)
		if !ok || !surge.OK() || surge.Value <= v.threshold {
			continue
		}
		out = append(out, strategy.Instruction(snap, symbol, core.ActionBuy, v.positionSize,
			fmt.Sprintf("volume surge %.2fx", surge.Value)))
	}
	return out, nil
}

func (v *VolumeSurge) exitReason(snap *snapshot.DataSnapshot, pos portfolio.Position) string {
	if days := strategy.DaysHeld(snap, pos); days >= v.maxHoldDays {
		return fmt.Sprintf("held %d days", days)
	}
	if bar, ok := snap.Latest(pos.Symbol); ok && v.stopLoss > 0 && pos.AverageCost > 0 {
		if pnl := bar.Close/pos.AverageCost - 1; pnl <= -v.stopLoss {
			return fmt.Sprintf("stop loss %.2f%%", pnl*100)
		}
	}
	return ""
}
