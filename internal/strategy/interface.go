package strategy

import (
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
)

// SignalGenerator turns one day's snapshot and portfolio state into trading
// instructions. Implementations hold only their immutable parameters: any
// state that spans days, such as how long a position has been held, must be
// derived from the arguments.
type SignalGenerator interface {
	Name() string
	GenerateSignals(snap *snapshot.DataSnapshot, state portfolio.State) ([]core.TradingInstruction, error)
}

// Factory builds a generator from fully merged parameters.
type Factory func(params Params) (SignalGenerator, error)

// Registration describes a strategy available to the registry.
type Registration struct {
	Name        string
	Description string
	// Defaults lists every accepted parameter with its default value.
	Defaults Params
	Factory  Factory
}

// Instruction builds an instruction stamped with the snapshot date.
func Instruction(snap *snapshot.DataSnapshot, symbol string, action core.Action, qty int64, reason string) core.TradingInstruction {
	return core.TradingInstruction{
		Symbol:      symbol,
		Action:      action,
		Quantity:    qty,
		Reason:      reason,
		GeneratedAt: snap.AsOf(),
	}
}

// DaysHeld counts the trading days of pos visible in snap since it was opened.
func DaysHeld(snap *snapshot.DataSnapshot, pos portfolio.Position) int {
	return snap.BarsSince(pos.Symbol, pos.OpenedAt)
}
