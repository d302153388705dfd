package execution

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/core"
)

// Simulator fills instructions against next-day opening prices. It holds no
// portfolio state; feasibility is checked against the cash passed in.
type Simulator struct {
	costs  CostConfig
	logger *zap.Logger
}

// NewSimulator creates a Simulator after validating costs.
func NewSimulator(costs CostConfig, logger *zap.Logger) (*Simulator, error) {
	if err := costs.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{costs: costs, logger: logger}, nil
}

// Costs returns the cost configuration.
func (s *Simulator) Costs() CostConfig {
	return s.costs
}

// Quote prices a fill of qty at the given open without checking feasibility.
func (s *Simulator) Quote(action core.Action, open float64, qty int64) (price, value, commission, stampDuty float64) {
	switch action {
	case core.ActionBuy:
		price = open * (1 + s.costs.SlippageRate)
	case core.ActionSell:
		price = open * (1 - s.costs.SlippageRate)
	}
	value = price * float64(qty)
	commission = value * s.costs.CommissionRate
	if action == core.ActionSell {
		stampDuty = value * s.costs.StampDutyRate
	}
	return price, value, commission, stampDuty
}

// Execute fills instructions in order on date using nextBars, the bars of
// that date. available is the cash at the start of the batch; executed sells
// credit their proceeds to it and executed buys debit it, so later buys in
// the same batch see the running balance. Exactly one FillResult is returned
// per instruction.
func (s *Simulator) Execute(date time.Time, instructions []core.TradingInstruction, nextBars map[string]core.PriceBar, available float64) []FillResult {
	results := make([]FillResult, 0, len(instructions))
	cash := available

	for _, inst := range instructions {
		fill := s.fill(date, inst, nextBars, cash)
		cash += fill.CashDelta()
		if !fill.Executed() {
			s.logger.Debug("instruction rejected",
				zap.String("symbol", inst.Symbol),
				zap.Stringer("action", inst.Action),
				zap.String("code", fill.Code),
				zap.String("reason", fill.Reason))
		}
		results = append(results, fill)
	}
	return results
}

func (s *Simulator) fill(date time.Time, inst core.TradingInstruction, nextBars map[string]core.PriceBar, cash float64) FillResult {
	result := FillResult{
		Instruction: inst,
		Status:      FillRejected,
		Quantity:    inst.Quantity,
		ExecutedAt:  core.Day(date),
	}

	if !inst.Action.Valid() || inst.Quantity <= 0 {
		return reject(result, core.ErrContractViolation, fmt.Sprintf("%s of %d shares", inst.Action, inst.Quantity))
	}

	bar, ok := nextBars[inst.Symbol]
	if !ok || bar.Open <= 0 {
		return reject(result, core.ErrNoPrice, fmt.Sprintf("%s has no bar on %s", inst.Symbol, result.ExecutedAt.Format(core.DateLayout)))
	}

	price, value, commission, stampDuty := s.Quote(inst.Action, bar.Open, inst.Quantity)
	result.ExecutionPrice = price
	result.TradeValue = value
	result.Commission = commission
	result.StampDuty = stampDuty
	result.TotalCost = commission + stampDuty

	if inst.LimitPrice != nil {
		limit := *inst.LimitPrice
		if inst.Action == core.ActionBuy && price > limit {
			return reject(result, core.ErrLimitNotReached, fmt.Sprintf("buy fill %.4f above limit %.4f", price, limit))
		}
		if inst.Action == core.ActionSell && price < limit {
			return reject(result, core.ErrLimitNotReached, fmt.Sprintf("sell fill %.4f below limit %.4f", price, limit))
		}
	}

	if inst.Action == core.ActionBuy {
		if need := value + result.TotalCost; need > cash {
			return reject(result, core.ErrInsufficientCash, fmt.Sprintf("need %.2f, have %.2f", need, cash))
		}
	}

	result.Status = FillExecuted
	return result
}

func reject(result FillResult, code *core.Error, reason string) FillResult {
	result.Status = FillRejected
	result.Code = code.Code
	result.Reason = reason
	return result
}
