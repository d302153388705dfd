package volume_surge

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
)

func surgeSnapshot(lastVolume int64) (*snapshot.DataSnapshot, []core.PriceBar) {
	bars := mdtest.FromCloses(mdtest.Linear(10, 12, 30), 1000)
	bars[len(bars)-1].Volume = lastVolume
	store := marketdata.MustStore(map[string][]core.PriceBar{"A": bars})
	return snapshot.NewBuilder(snapshot.DefaultConfig()).Build(bars[len(bars)-1].Date, store), bars
}

func TestVolumeSurge_ImplementsSignalGenerator(t *testing.T) {
	var _ strategy.SignalGenerator = (*VolumeSurge)(nil)
}

func TestVolumeSurge_BuysOnSurge(t *testing.T) {
	gen, err := Factory(Defaults())
	require.NoError(t, err)

	snap, _ := surgeSnapshot(5000)
	signals, err := gen.GenerateSignals(snap, portfolio.State{})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, core.ActionBuy, signals[0].Action)
	assert.Contains(t, signals[0].Reason, "4.17x")

	snap, _ = surgeSnapshot(1500)
	signals, _ = gen.GenerateSignals(snap, portfolio.State{})
	assert.Empty(t, signals)
}

func TestVolumeSurge_ExitsAfterHoldingPeriod(t *testing.T) {
	gen, _ := New(2.0, 5, 0, 100)
	snap, bars := surgeSnapshot(1000)

	fresh := portfolio.State{Positions: map[string]portfolio.Position{
		"A": {Symbol: "A", Quantity: 100, AverageCost: 11, OpenedAt: bars[27].Date},
	}}
	signals, _ := gen.GenerateSignals(snap, fresh)
	assert.Empty(t, signals)

	stale := portfolio.State{Positions: map[string]portfolio.Position{
		"A": {Symbol: "A", Quantity: 100, AverageCost: 11, OpenedAt: bars[24].Date},
	}}
	signals, _ = gen.GenerateSignals(snap, stale)
	require.Len(t, signals, 1)
	assert.Equal(t, core.ActionSell, signals[0].Action)
}

func TestVolumeSurge_StopLoss(t *testing.T) {
	gen, _ := New(2.0, 50, 0.05, 100)
	snap, bars := surgeSnapshot(1000)
	state := portfolio.State{Positions: map[string]portfolio.Position{
		"A": {Symbol: "A", Quantity: 100, AverageCost: 20, OpenedAt: bars[28].Date},
	}}

	signals, _ := gen.GenerateSignals(snap, state)
	require.Len(t, signals, 1)
	assert.Contains(t, signals[0].Reason, "stop loss")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(1.0, 5, 0, 100)
	assert.Error(t, err)
	_, err = New(2.0, 0, 0, 100)
	assert.Error(t, err)
	_, err = New(2.0, 5, -1, 100)
	assert.Error(t, err)
}
