package backtest

import (
	"time"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Result holds the complete backtest output
type Result struct {
	ID             string                  `json:"id"`
	Strategy       string                  `json:"strategy"`
	Params         strategy.Params         `json:"params,omitempty"`
	Start          time.Time               `json:"start"`
	End            time.Time               `json:"end"`
	InitialCapital float64                 `json:"initial_capital"`
	EquityCurve    []portfolio.EquityPoint `json:"equity_curve"`
	Fills          []execution.FillResult  `json:"fills"`
	Rejections     []AuditEntry            `json:"rejections"`
	Invocations    []Invocation            `json:"invocations"`
	Trades         []Trade                 `json:"trades"`
	Metrics        Metrics                 `json:"metrics"`
}

// FinalEquity returns the last equity point's value, or the initial capital
// for an empty curve.
func (r *Result) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return r.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1].TotalEquity
}

// AuditStage tells where an instruction was dropped.
type AuditStage string

const (
	// StageValidation marks instructions that broke the generator contract.
	StageValidation AuditStage = "validation"
	// StageExecution marks instructions the simulator could not fill.
	StageExecution AuditStage = "execution"
)

// AuditEntry records one dropped instruction.
type AuditEntry struct {
	Date        time.Time               `json:"date"`
	Stage       AuditStage              `json:"stage"`
	Code        string                  `json:"code"`
	Reason      string                  `json:"reason"`
	Instruction core.TradingInstruction `json:"instruction"`
}

// Invocation records one call of the generator.
type Invocation struct {
	Date         time.Time `json:"date"`
	Generator    string    `json:"generator"`
	Instructions int       `json:"instructions"`
	Accepted     int       `json:"accepted"`
}

// Trade is a round trip in one symbol, from the first buy until the
// position is flat again.
type Trade struct {
	Symbol    string    `json:"symbol"`
	EntryDate time.Time `json:"entry_date"`
	// ExitDate is zero while the position is still open.
	ExitDate time.Time `json:"exit_date,omitempty"`
	// Quantity is the total number of shares bought.
	Quantity   int64   `json:"quantity"`
	EntryPrice float64 `json:"entry_price"` // average buy fill
	ExitPrice  float64 `json:"exit_price"`  // average sell fill, or last close if open
	Costs      float64 `json:"costs"`
	PnL        float64 `json:"pnl"`    // net of costs
	Return     float64 `json:"return"` // PnL over buy value plus buy costs
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// IsClosed returns true if the trade has an exit
func (t Trade) IsClosed() bool {
	return !t.ExitDate.IsZero()
}

// Metrics holds performance statistics. Ratios are fractions, not
// percentages.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	// WinRate is the fraction of days with a positive return.
	WinRate float64 `json:"win_rate"`
	// TradeWinRate is the fraction of closed round trips with a profit.
	TradeWinRate    float64 `json:"trade_win_rate"`
	TradeCount      int     `json:"trade_count"` // executed fills
	RoundTrips      int     `json:"round_trips"` // closed trades
	TotalCommission float64 `json:"total_commission"`
	TotalStampDuty  float64 `json:"total_stamp_duty"`
	TotalCosts      float64 `json:"total_costs"`
	FinalEquity     float64 `json:"final_equity"`
	TradingDays     int     `json:"trading_days"`
}
