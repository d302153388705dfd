package ma_crossover

import (
	"fmt"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/indicator"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Name is the registry name.
const Name = "ma_crossover"

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod   int
	slowPeriod   int
	positionSize int64
	average      func([]float64, int) []float64
	label        string
}

// New creates a new MA Crossover strategy. exponential switches both
// averages from SMA to EMA.
func New(fastPeriod, slowPeriod int, positionSize int64, exponential bool) (*MACrossover, error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod {
		return nil, fmt.Errorf("need 0 < fast_period < slow_period, got %d/%d", fastPeriod, slowPeriod)
	}
	if positionSize <= 0 {
		return nil, fmt.Errorf("position_size must be positive, got %d", positionSize)
	}
	m := &MACrossover{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		positionSize: positionSize,
		average:      indicator.SMA,
		label:        "MA",
	}
	if exponential {
		m.average, m.label = indicator.EMA, "EMA"
	}
	return m, nil
}

// Defaults returns the registry parameters.
func Defaults() strategy.Params {
	return strategy.Params{
		"fast_period":   5,
		"slow_period":   20,
		"position_size": 1000,
		"exponential":   false,
	}
}

type params struct {
	FastPeriod   int   `mapstructure:"fast_period"`
	SlowPeriod   int   `mapstructure:"slow_period"`
	PositionSize int64 `mapstructure:"position_size"`
	Exponential  bool  `mapstructure:"exponential"`
}

// Factory builds an MACrossover from registry parameters.
func Factory(p strategy.Params) (strategy.SignalGenerator, error) {
	c := params{FastPeriod: 5, SlowPeriod: 20, PositionSize: 1000}
	if err := p.Decode(&c); err != nil {
		return nil, err
	}
	return New(c.FastPeriod, c.SlowPeriod, c.PositionSize, c.Exponential)
}

// Registration describes the strategy to a registry.
func Registration() strategy.Registration {
	return strategy.Registration{
		Name:        Name,
		Description: "Buy on golden cross, sell on death cross",
		Defaults:    Defaults(),
		Factory:     Factory,
	}
}

func (m *MACrossover) Name() string {
	return Name
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("%s Crossover (%d/%d)", m.label, m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) GenerateSignals(snap *snapshot.DataSnapshot, state portfolio.State) ([]core.TradingInstruction, error) {
	var out []core.TradingInstruction

	for _, symbol := range snap.Symbols() {
		prices := snap.Closes(symbol)
		if len(prices) < m.slowPeriod+1 {
			continue // Not enough data
		}

		fastMA := m.average(prices, m.fastPeriod)
		slowMA := m.average(prices, m.slowPeriod)

		// Get current and previous values
		currFast := fastMA[len(fastMA)-1]
		prevFast := fastMA[len(fastMA)-2]
		currSlow := slowMA[len(slowMA)-1]
		prevSlow := slowMA[len(slowMA)-2]

		pos, held := state.Position(symbol)

		// Golden Cross: fast crosses above slow
		if !held && prevFast <= prevSlow && currFast > currSlow {
			out = append(out, strategy.Instruction(snap, symbol, core.ActionBuy, m.positionSize,
				fmt.Sprintf("Golden Cross: %s%d (%.2f) crossed above %s%d (%.2f)", m.label, m.fastPeriod, currFast, m.label, m.slowPeriod, currSlow)))
		}

		// Death Cross: fast crosses below slow
		if held && prevFast >= prevSlow && currFast < currSlow {
			out = append(out, strategy.Instruction(snap, symbol, core.ActionSell, pos.Quantity,
				fmt.Sprintf("Death Cross: %s%d (%.2f) crossed below %s%d (%.2f)", m.label, m.fastPeriod, currFast, m.label, m.slowPeriod, currSlow)))
		}
	}
	return out, nil
}
