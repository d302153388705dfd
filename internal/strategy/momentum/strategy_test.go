package momentum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/marketdata"
	"github.com/newthinker/quantsweep/internal/marketdata/mdtest"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
	"github.com/newthinker/quantsweep/internal/strategy/momentum"
)

func build(closes []float64, asOf int) (*snapshot.DataSnapshot, []core.PriceBar) {
	bars := mdtest.FromCloses(closes, 1000)
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": bars})
	return snapshot.NewBuilder(snapshot.DefaultConfig()).Build(bars[asOf].Date, store), bars
}

func TestMomentum_ImplementsSignalGenerator(t *testing.T) {
	var _ strategy.SignalGenerator = (*momentum.Momentum)(nil)
}

func TestMomentum_BuysWhenReturnExceedsThreshold(t *testing.T) {
	gen, err := momentum.New(momentum.DefaultConfig())
	require.NoError(t, err)
	closes := mdtest.Linear(100, 159, 60)

	// 20 bars: visible, but no 20-day return yet
	snap, _ := build(closes, 19)
	signals, err := gen.GenerateSignals(snap, portfolio.State{})
	require.NoError(t, err)
	assert.Empty(t, signals)

	snap, bars := build(closes, 20)
	signals, err = gen.GenerateSignals(snap, portfolio.State{})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, core.ActionBuy, signals[0].Action)
	assert.Equal(t, int64(1000), signals[0].Quantity)
	assert.True(t, signals[0].GeneratedAt.Equal(bars[20].Date))
}

func TestMomentum_HoldsWhileTrendPersists(t *testing.T) {
	gen, _ := momentum.New(momentum.DefaultConfig())
	snap, bars := build(mdtest.Linear(100, 159, 60), 45)
	state := portfolio.State{Positions: map[string]portfolio.Position{
		"A": {Symbol: "A", Quantity: 1000, AverageCost: 121, OpenedAt: bars[21].Date},
	}}

	signals, err := gen.GenerateSignals(snap, state)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentum_SellsOnReversal(t *testing.T) {
	gen, _ := momentum.New(momentum.DefaultConfig())
	snap, bars := build(mdtest.Linear(150, 100, 40), 39)
	state := portfolio.State{Positions: map[string]portfolio.Position{
		"A": {Symbol: "A", Quantity: 700, AverageCost: 140, OpenedAt: bars[10].Date},
	}}

	signals, err := gen.GenerateSignals(snap, state)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, core.ActionSell, signals[0].Action)
	assert.Equal(t, int64(700), signals[0].Quantity)
	assert.Contains(t, signals[0].Reason, "return")
}

func TestMomentum_TimeStopAndProfitTarget(t *testing.T) {
	cfg := momentum.DefaultConfig()
	cfg.MaxHoldDays = 10
	cfg.ProfitTarget = 0.5
	gen, err := momentum.New(cfg)
	require.NoError(t, err)

	snap, bars := build(mdtest.Linear(100, 159, 60), 40)
	state := portfolio.State{Positions: map[string]portfolio.Position{
		"A": {Symbol: "A", Quantity: 100, AverageCost: 90, OpenedAt: bars[30].Date},
	}}

	signals, err := gen.GenerateSignals(snap, state)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Contains(t, signals[0].Reason, "held 10 days")
	assert.Contains(t, signals[0].Reason, "profit")
}

func TestConfigFromParams(t *testing.T) {
	cfg, err := momentum.ConfigFromParams(strategy.Params{
		"momentum_period": 10,
		"buy_threshold":   0.08,
		"position_size":   500.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Period)
	assert.Equal(t, 0.08, cfg.BuyThreshold)
	assert.Equal(t, int64(500), cfg.PositionSize)
	assert.Equal(t, -0.03, cfg.SellThreshold)

	_, err = momentum.ConfigFromParams(strategy.Params{"momentum_period": "twenty"})
	assert.ErrorIs(t, err, core.ErrParameterType)
	_, err = momentum.ConfigFromParams(strategy.Params{"momentum_period": 12.5})
	assert.ErrorIs(t, err, core.ErrParameterType)
}

func TestConfig_Validate(t *testing.T) {
	bad := []momentum.Config{
		{Period: 0, BuyThreshold: 0.05, SellThreshold: -0.03, PositionSize: 1},
		{Period: 5, BuyThreshold: 0.01, SellThreshold: 0.02, PositionSize: 1},
		{Period: 5, BuyThreshold: 0.05, SellThreshold: -0.03, PositionSize: 0},
		{Period: 5, BuyThreshold: 0.05, SellThreshold: -0.03, PositionSize: 1, MaxHoldDays: -1},
	}
	for _, c := range bad {
		_, err := momentum.New(c)
		assert.Error(t, err, "%+v", c)
	}
}
