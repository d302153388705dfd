// Package snapshot builds the point-in-time view of the market a strategy is
// allowed to see on a simulated day.
package snapshot

import (
	"sort"
	"time"

	"github.com/newthinker/quantsweep/internal/core"
)

// DataSnapshot is the market as of one date: per symbol, only bars dated on
// or before AsOf and factors derived from those bars. It is read-only;
// accessors hand out copies.
type DataSnapshot struct {
	asOf    time.Time
	bars    map[string][]core.PriceBar
	factors map[string]map[string]Factor
}

// AsOf returns the snapshot date.
func (s *DataSnapshot) AsOf() time.Time {
	return s.asOf
}

// Valid reports whether at least one symbol made it into the snapshot.
func (s *DataSnapshot) Valid() bool {
	return s != nil && len(s.bars) > 0
}

// Symbols returns the visible symbols in sorted order.
func (s *DataSnapshot) Symbols() []string {
	symbols := make([]string, 0, len(s.bars))
	for symbol := range s.bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Has reports whether symbol is visible in the snapshot.
func (s *DataSnapshot) Has(symbol string) bool {
	_, ok := s.bars[symbol]
	return ok
}

// Len returns the number of visible bars for symbol.
func (s *DataSnapshot) Len(symbol string) int {
	return len(s.bars[symbol])
}

// Bars returns a copy of the visible bars for symbol, oldest first.
func (s *DataSnapshot) Bars(symbol string) []core.PriceBar {
	bars := s.bars[symbol]
	out := make([]core.PriceBar, len(bars))
	copy(out, bars)
	return out
}

// Latest returns the most recent visible bar for symbol.
func (s *DataSnapshot) Latest(symbol string) (core.PriceBar, bool) {
	bars := s.bars[symbol]
	if len(bars) == 0 {
		return core.PriceBar{}, false
	}
	return bars[len(bars)-1], true
}

// Closes returns the visible closing prices for symbol.
func (s *DataSnapshot) Closes(symbol string) []float64 {
	bars := s.bars[symbol]
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// BarsSince counts visible bars of symbol dated strictly after t. Used to
// derive holding periods from a position's open date.
func (s *DataSnapshot) BarsSince(symbol string, t time.Time) int {
	bars := s.bars[symbol]
	day := core.Day(t)
	i := sort.Search(len(bars), func(i int) bool {
		return bars[i].Date.After(day)
	})
	return len(bars) - i
}

// Factor returns a single factor for symbol.
func (s *DataSnapshot) Factor(symbol, name string) (Factor, bool) {
	f, ok := s.factors[symbol][name]
	return f, ok
}

// Factors returns a copy of every factor computed for symbol.
func (s *DataSnapshot) Factors(symbol string) map[string]Factor {
	src := s.factors[symbol]
	out := make(map[string]Factor, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// MaxDate returns the latest bar date across all symbols, or the zero time
// for an empty snapshot.
func (s *DataSnapshot) MaxDate() time.Time {
	var latest time.Time
	for _, bars := range s.bars {
		if n := len(bars); n > 0 && bars[n-1].Date.After(latest) {
			latest = bars[n-1].Date
		}
	}
	return latest
}
