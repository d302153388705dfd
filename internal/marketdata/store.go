// Package marketdata holds the in-memory price series the simulator reads
// from, plus loaders that fill it from local files.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/newthinker/quantsweep/internal/core"
)

// Source loads bars for a universe of symbols within [start, end].
type Source interface {
	Load(ctx context.Context, symbols []string, start, end time.Time) (*Store, error)
}

// Store is an in-memory, per-symbol ordered sequence of daily bars. It is
// populated once up front and then only read, so it is safe to share
// between concurrent simulations.
type Store struct {
	series map[string][]core.PriceBar
}

// NewStore creates a Store from a symbol -> bars mapping. Bars are sorted by
// date; a duplicate date or an invalid bar is rejected.
func NewStore(data map[string][]core.PriceBar) (*Store, error) {
	s := &Store{series: make(map[string][]core.PriceBar, len(data))}
	for symbol, bars := range data {
		if err := s.Add(symbol, bars); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustStore is NewStore that panics on error. Intended for fixtures.
func MustStore(data map[string][]core.PriceBar) *Store {
	s, err := NewStore(data)
	if err != nil {
		panic(err)
	}
	return s
}

// Add ingests bars for a symbol, replacing any existing series.
func (s *Store) Add(symbol string, bars []core.PriceBar) error {
	if symbol == "" {
		return core.Errorf(core.ErrInvalidBar, "empty symbol")
	}

	series := make([]core.PriceBar, len(bars))
	for i, b := range bars {
		if !b.IsValid() {
			return core.Errorf(core.ErrInvalidBar, "%s bar %d (%s)", symbol, i, b.Date.Format(core.DateLayout))
		}
		b.Date = core.Day(b.Date)
		series[i] = b
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
	for i := 1; i < len(series); i++ {
		if series[i].Date.Equal(series[i-1].Date) {
			return core.Errorf(core.ErrDuplicateBar, "%s on %s", symbol, series[i].Date.Format(core.DateLayout))
		}
	}

	s.series[symbol] = series
	return nil
}

// Symbols returns all symbols in sorted order.
func (s *Store) Symbols() []string {
	symbols := make([]string, 0, len(s.series))
	for symbol := range s.series {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Len returns the number of bars held for a symbol.
func (s *Store) Len(symbol string) int {
	return len(s.series[symbol])
}

// BarsThrough returns the bars of symbol dated on or before asOf. The
// returned slice has its capacity clipped so appends cannot reach bars
// beyond asOf; callers must treat it as read-only.
func (s *Store) BarsThrough(symbol string, asOf time.Time) []core.PriceBar {
	series := s.series[symbol]
	cutoff := core.Day(asOf)
	n := sort.Search(len(series), func(i int) bool {
		return series[i].Date.After(cutoff)
	})
	return series[:n:n]
}

// BarOn returns the bar of symbol dated exactly on date.
func (s *Store) BarOn(symbol string, date time.Time) (core.PriceBar, bool) {
	series := s.series[symbol]
	day := core.Day(date)
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Date.Before(day)
	})
	if i < len(series) && series[i].Date.Equal(day) {
		return series[i], true
	}
	return core.PriceBar{}, false
}

// LatestClose returns the most recent close of symbol on or before date.
func (s *Store) LatestClose(symbol string, date time.Time) (float64, bool) {
	bars := s.BarsThrough(symbol, date)
	if len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}

// BarsOn collects the bar of every symbol trading on date.
func (s *Store) BarsOn(date time.Time) map[string]core.PriceBar {
	out := make(map[string]core.PriceBar)
	for symbol := range s.series {
		if bar, ok := s.BarOn(symbol, date); ok {
			out[symbol] = bar
		}
	}
	return out
}

// TradingDates returns the sorted union of bar dates across all symbols
// within [start, end]. A zero start or end leaves that side unbounded.
func (s *Store) TradingDates(start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, series := range s.series {
		for _, b := range series {
			if !start.IsZero() && b.Date.Before(core.Day(start)) {
				continue
			}
			if !end.IsZero() && b.Date.After(core.Day(end)) {
				continue
			}
			seen[b.Date] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}

// Subset returns a store restricted to the given symbols. Unknown symbols are
// reported as core.ErrSymbolNotFound. Bars are shared, not copied.
func (s *Store) Subset(symbols []string) (*Store, error) {
	out := &Store{series: make(map[string][]core.PriceBar, len(symbols))}
	for _, symbol := range symbols {
		series, ok := s.series[symbol]
		if !ok {
			return nil, core.Errorf(core.ErrSymbolNotFound, "%s", symbol)
		}
		out.series[symbol] = series
	}
	return out, nil
}
