package backtest

import (
	"sort"
	"time"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
)

// LastPrice resolves the mark for a trade still open at the end of a run.
type LastPrice func(symbol string) (float64, bool)

type openTrade struct {
	trade     Trade
	held      int64
	buyValue  float64
	sellValue float64
	sold      int64
	basis     float64 // buy value plus buy costs
}

// BuildTrades reconstructs round trips from the fill log. Trades still open
// at the end are valued with last when it is non-nil and dropped otherwise.
func BuildTrades(fills []execution.FillResult, last LastPrice) []Trade {
	var trades []Trade
	open := make(map[string]*openTrade)

	for _, f := range fills {
		if !f.Executed() {
			continue
		}
		symbol := f.Instruction.Symbol
		ot := open[symbol]

		switch f.Instruction.Action {
		case core.ActionBuy:
			if ot == nil {
				ot = &openTrade{trade: Trade{Symbol: symbol, EntryDate: f.ExecutedAt}}
				open[symbol] = ot
			}
			ot.held += f.Quantity
			ot.trade.Quantity += f.Quantity
			ot.buyValue += f.TradeValue
			ot.basis += f.TradeValue + f.TotalCost
			ot.trade.Costs += f.TotalCost
			ot.trade.PnL -= f.TradeValue + f.TotalCost

		case core.ActionSell:
			if ot == nil {
				continue
			}
			ot.held -= f.Quantity
			ot.sold += f.Quantity
			ot.sellValue += f.TradeValue
			ot.trade.Costs += f.TotalCost
			ot.trade.PnL += f.TradeValue - f.TotalCost
			if ot.held <= 0 {
				trades = append(trades, ot.finish(f.ExecutedAt))
				delete(open, symbol)
			}
		}
	}

	if last != nil {
		symbols := make([]string, 0, len(open))
		for symbol := range open {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			ot := open[symbol]
			price, ok := last(symbol)
			if !ok {
				continue
			}
			ot.trade.PnL += float64(ot.held) * price
			ot.sellValue += float64(ot.held) * price
			ot.sold += ot.held
			trades = append(trades, ot.finish(time.Time{}))
		}
	}
	return trades
}

func (ot *openTrade) finish(exit time.Time) Trade {
	t := ot.trade
	t.ExitDate = exit
	if t.Quantity > 0 {
		t.EntryPrice = ot.buyValue / float64(t.Quantity)
	}
	if ot.sold > 0 {
		t.ExitPrice = ot.sellValue / float64(ot.sold)
	}
	if ot.basis > 0 {
		t.Return = t.PnL / ot.basis
	}
	return t
}
