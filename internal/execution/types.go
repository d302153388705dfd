// Package execution turns trading instructions into simulated fills at the
// next trading day's open.
package execution

import (
	"time"

	"github.com/newthinker/quantsweep/internal/core"
)

// FillStatus is the outcome of a single instruction.
type FillStatus string

const (
	// FillExecuted indicates the instruction was filled in full.
	FillExecuted FillStatus = "executed"
	// FillRejected indicates the instruction had no effect.
	FillRejected FillStatus = "rejected"
)

// CostConfig holds the transaction cost rates applied to every fill.
type CostConfig struct {
	// CommissionRate is charged on trade value on both sides.
	CommissionRate float64 `mapstructure:"commission_rate" yaml:"commission_rate" json:"commission_rate"`
	// StampDutyRate is charged on trade value on sells only.
	StampDutyRate float64 `mapstructure:"stamp_duty_rate" yaml:"stamp_duty_rate" json:"stamp_duty_rate"`
	// SlippageRate moves the fill price against the trader.
	SlippageRate float64 `mapstructure:"slippage_rate" yaml:"slippage_rate" json:"slippage_rate"`
}

// DefaultCostConfig returns A-share style retail costs.
func DefaultCostConfig() CostConfig {
	return CostConfig{
		CommissionRate: 0.0003,
		StampDutyRate:  0.001,
		SlippageRate:   0.001,
	}
}

// Validate checks every rate lies in [0, 1).
func (c CostConfig) Validate() error {
	rates := []struct {
		name  string
		value float64
	}{
		{"commission_rate", c.CommissionRate},
		{"stamp_duty_rate", c.StampDutyRate},
		{"slippage_rate", c.SlippageRate},
	}
	for _, r := range rates {
		if r.value < 0 || r.value >= 1 {
			return core.Errorf(core.ErrConfigInvalid, "%s must be in [0, 1), got %v", r.name, r.value)
		}
	}
	return nil
}

// FillResult records what happened to one instruction. It is never
// modified after creation.
type FillResult struct {
	Instruction core.TradingInstruction `json:"instruction"`
	Status      FillStatus              `json:"status"`
	// ExecutionPrice is the slippage-adjusted open of the execution day.
	ExecutionPrice float64 `json:"execution_price"`
	Quantity       int64   `json:"quantity"`
	// TradeValue is ExecutionPrice * Quantity.
	TradeValue float64 `json:"trade_value"`
	Commission float64 `json:"commission"`
	StampDuty  float64 `json:"stamp_duty"`
	// TotalCost is Commission + StampDuty.
	TotalCost  float64   `json:"total_cost"`
	ExecutedAt time.Time `json:"executed_at"`
	// Code is the core error code of a rejection.
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Executed reports whether the fill changed the portfolio.
func (f FillResult) Executed() bool {
	return f.Status == FillExecuted
}

// CashDelta is the signed cash movement of an executed fill.
func (f FillResult) CashDelta() float64 {
	if !f.Executed() {
		return 0
	}
	if f.Instruction.Action == core.ActionBuy {
		return -(f.TradeValue + f.TotalCost)
	}
	return f.TradeValue - f.TotalCost
}
