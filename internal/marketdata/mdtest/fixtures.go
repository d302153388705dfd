// Package mdtest builds deterministic price series for tests.
package mdtest

import (
	"math/rand"
	"time"

	"github.com/newthinker/quantsweep/internal/core"
)

// Start is the first fixture date (a Monday).
var Start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// Dates returns n consecutive weekdays beginning at Start.
func Dates(n int) []time.Time {
	dates := make([]time.Time, 0, n)
	for d := Start; len(dates) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// FromCloses builds bars whose open, high, low and close all equal the given
// closes, with a constant volume.
func FromCloses(closes []float64, volume int64) []core.PriceBar {
	dates := Dates(len(closes))
	bars := make([]core.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = core.PriceBar{
			Date:   dates[i],
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: volume,
			Amount: c * float64(volume),
		}
	}
	return bars
}

// Linear returns n closes moving linearly from first to last.
func Linear(first, last float64, n int) []float64 {
	closes := make([]float64, n)
	if n == 1 {
		closes[0] = first
		return closes
	}
	step := (last - first) / float64(n-1)
	for i := range closes {
		closes[i] = first + step*float64(i)
	}
	return closes
}

// RandomWalk returns n bars following a seeded random walk with intraday
// ranges and varying volume.
func RandomWalk(seed int64, n int, startPrice float64) []core.PriceBar {
	rng := rand.New(rand.NewSource(seed))
	dates := Dates(n)
	bars := make([]core.PriceBar, n)
	price := startPrice
	for i := range bars {
		open := price * (1 + (rng.Float64()-0.5)*0.01)
		closePrice := open * (1 + rng.NormFloat64()*0.02)
		if closePrice < 1 {
			closePrice = 1
		}
		high := max(open, closePrice) * (1 + rng.Float64()*0.01)
		low := min(open, closePrice) * (1 - rng.Float64()*0.01)
		volume := int64(100000 + rng.Intn(400000))
		bars[i] = core.PriceBar{
			Date:   dates[i],
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
			Amount: closePrice * float64(volume),
		}
		price = closePrice
	}
	return bars
}
