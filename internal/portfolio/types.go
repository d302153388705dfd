// Package portfolio owns cash and positions during a simulation.
package portfolio

import (
	"sort"
	"time"
)

// Position is a long holding in one symbol. A position with zero quantity
// does not exist; it is removed when fully closed.
type Position struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	// AverageCost is the quantity-weighted fill price, excluding fees.
	AverageCost float64 `json:"average_cost"`
	// LastPrice is the most recent close seen by mark-to-market.
	LastPrice float64 `json:"last_price"`
	// OpenedAt is the fill date of the first buy of the current holding.
	OpenedAt time.Time `json:"opened_at"`
}

// MarketValue is Quantity * LastPrice.
func (p Position) MarketValue() float64 {
	return float64(p.Quantity) * p.LastPrice
}

// UnrealizedReturn is LastPrice relative to AverageCost, or 0 without a cost.
func (p Position) UnrealizedReturn() float64 {
	if p.AverageCost <= 0 {
		return 0
	}
	return p.LastPrice/p.AverageCost - 1
}

// State is a snapshot of the ledger handed to signal generators. It is a
// deep copy; changing it does not affect the ledger.
type State struct {
	Cash        float64             `json:"cash"`
	Positions   map[string]Position `json:"positions"`
	TotalEquity float64             `json:"total_equity"`
}

// Position returns the holding for symbol, if any.
func (s State) Position(symbol string) (Position, bool) {
	p, ok := s.Positions[symbol]
	return p, ok
}

// Has reports whether symbol is currently held.
func (s State) Has(symbol string) bool {
	_, ok := s.Positions[symbol]
	return ok
}

// PositionValue sums the market value of every holding.
func (s State) PositionValue() float64 {
	symbols := make([]string, 0, len(s.Positions))
	for symbol := range s.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var total float64
	for _, symbol := range symbols {
		total += s.Positions[symbol].MarketValue()
	}
	return total
}

// EquityPoint is the portfolio valuation at the close of one simulated day.
type EquityPoint struct {
	Date          time.Time `json:"date"`
	TotalEquity   float64   `json:"total_equity"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
}
