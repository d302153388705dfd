package portfolio

import (
	"sort"
	"time"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
)

// PriceLookup returns the latest close of symbol on or before date.
type PriceLookup func(symbol string, date time.Time) (float64, bool)

// Ledger is the single mutable owner of cash and positions for one
// simulation. It is not safe for concurrent use; each simulation owns one.
type Ledger struct {
	cash      float64
	positions map[string]*Position
}

// NewLedger creates a ledger holding only cash.
func NewLedger(initialCash float64) *Ledger {
	return &Ledger{
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Apply books an executed fill. Rejected fills are ignored. A fill that
// would drive cash negative or sell more than is held returns
// core.ErrLedgerInvariant and leaves the ledger unchanged.
func (l *Ledger) Apply(fill execution.FillResult) error {
	if !fill.Executed() {
		return nil
	}

	inst := fill.Instruction
	qty := fill.Quantity
	if qty <= 0 {
		return core.Errorf(core.ErrLedgerInvariant, "%s fill with quantity %d", inst.Symbol, qty)
	}

	switch inst.Action {
	case core.ActionBuy:
		cost := fill.TradeValue + fill.TotalCost
		if cost > l.cash {
			return core.Errorf(core.ErrLedgerInvariant, "buy %s costs %.2f with cash %.2f", inst.Symbol, cost, l.cash)
		}
		l.cash -= cost

		pos, exists := l.positions[inst.Symbol]
		if !exists {
			pos = &Position{Symbol: inst.Symbol, OpenedAt: core.Day(fill.ExecutedAt)}
			l.positions[inst.Symbol] = pos
		}
		// new avg cost = (old_cost * old_qty + fill_price * fill_qty) / (old_qty + fill_qty)
		total := float64(pos.Quantity)*pos.AverageCost + fill.ExecutionPrice*float64(qty)
		pos.Quantity += qty
		pos.AverageCost = total / float64(pos.Quantity)
		pos.LastPrice = fill.ExecutionPrice

	case core.ActionSell:
		pos, exists := l.positions[inst.Symbol]
		if !exists || pos.Quantity < qty {
			var held int64
			if exists {
				held = pos.Quantity
			}
			return core.Errorf(core.ErrLedgerInvariant, "sell %d %s with %d held", qty, inst.Symbol, held)
		}
		l.cash += fill.TradeValue - fill.TotalCost
		pos.Quantity -= qty
		pos.LastPrice = fill.ExecutionPrice
		if pos.Quantity == 0 {
			delete(l.positions, inst.Symbol)
		}

	default:
		return core.Errorf(core.ErrLedgerInvariant, "unknown action %s", inst.Action)
	}
	return nil
}

// MarkToMarket refreshes every position's last price from lookup and
// returns the day's valuation. A symbol without a price keeps its previous
// last price.
func (l *Ledger) MarkToMarket(date time.Time, lookup PriceLookup) EquityPoint {
	var positionValue float64
	for _, symbol := range l.symbols() {
		pos := l.positions[symbol]
		if price, ok := lookup(symbol, date); ok && price > 0 {
			pos.LastPrice = price
		}
		positionValue += pos.MarketValue()
	}
	return EquityPoint{
		Date:          core.Day(date),
		TotalEquity:   l.cash + positionValue,
		Cash:          l.cash,
		PositionValue: positionValue,
	}
}

// TotalEquity is cash plus the value of all positions at their last price.
func (l *Ledger) TotalEquity() float64 {
	equity := l.cash
	for _, symbol := range l.symbols() {
		equity += l.positions[symbol].MarketValue()
	}
	return equity
}

// symbols returns held symbols in sorted order so that sums are reproducible
// across runs.
func (l *Ledger) symbols() []string {
	out := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// State returns a deep copy of the ledger.
func (l *Ledger) State() State {
	positions := make(map[string]Position, len(l.positions))
	for symbol, pos := range l.positions {
		positions[symbol] = *pos
	}
	return State{
		Cash:        l.cash,
		Positions:   positions,
		TotalEquity: l.TotalEquity(),
	}
}
