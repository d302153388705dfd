package ma_crossover

import (
	"testing"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/marketdata"
	"github.com/newthinker/quantsweep/internal/marketdata/mdtest"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
	"github.com/newthinker/quantsweep/internal/strategy"
)

func TestMACrossover_ImplementsSignalGenerator(t *testing.T) {
	var _ strategy.SignalGenerator = (*MACrossover)(nil)
}

func snapOf(t *testing.T, prices []float64) *snapshot.DataSnapshot {
	t.Helper()
	bars := mdtest.FromCloses(prices, 1000)
	store := marketdata.MustStore(map[string][]core.PriceBar{"TEST": bars})
	return snapshot.NewBuilder(snapshot.Config{MinLookback: 2}).Build(bars[len(bars)-1].Date, store)
}

func TestMACrossover_Name(t *testing.T) {
	s, err := New(5, 10, 100, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "ma_crossover" {
		t.Errorf("expected 'ma_crossover', got '%s'", s.Name())
	}
	if s.Description() != "MA Crossover (5/10)" {
		t.Errorf("unexpected description %q", s.Description())
	}
}

func TestMACrossover_InvalidPeriods(t *testing.T) {
	if _, err := New(10, 5, 100, false); err == nil {
		t.Error("expected error when fast >= slow")
	}
	if _, err := New(2, 4, 0, false); err == nil {
		t.Error("expected error for zero position size")
	}
}

func TestMACrossover_GoldenCross(t *testing.T) {
	s, _ := New(2, 4, 100, false)

	// prevFast = (85 + 80) / 2 = 82.5, prevSlow = (95 + 90 + 85 + 80) / 4 = 87.5
	// currFast = (80 + 120) / 2 = 100, currSlow = (90 + 85 + 80 + 120) / 4 = 93.75
	prices := []float64{100, 95, 90, 85, 80, 120}

	signals, err := s.GenerateSignals(snapOf(t, prices), portfolio.State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected one signal for golden cross, got %d", len(signals))
	}
	if signals[0].Action != core.ActionBuy {
		t.Errorf("expected Buy action for golden cross, got %s", signals[0].Action)
	}
	if signals[0].Quantity != 100 {
		t.Errorf("expected quantity 100, got %d", signals[0].Quantity)
	}
}

func TestMACrossover_GoldenCrossIgnoredWhenHeld(t *testing.T) {
	s, _ := New(2, 4, 100, false)
	state := portfolio.State{Positions: map[string]portfolio.Position{"TEST": {Symbol: "TEST", Quantity: 100}}}

	signals, _ := s.GenerateSignals(snapOf(t, []float64{100, 95, 90, 85, 80, 120}), state)
	if len(signals) != 0 {
		t.Errorf("expected no signal for a held symbol, got %d", len(signals))
	}
}

func TestMACrossover_DeathCross(t *testing.T) {
	s, _ := New(2, 4, 100, false)
	state := portfolio.State{Positions: map[string]portfolio.Position{"TEST": {Symbol: "TEST", Quantity: 300}}}

	signals, err := s.GenerateSignals(snapOf(t, []float64{80, 85, 90, 95, 100, 60}), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 || signals[0].Action != core.ActionSell {
		t.Fatalf("expected one sell, got %+v", signals)
	}
	if signals[0].Quantity != 300 {
		t.Errorf("expected to sell the whole position, got %d", signals[0].Quantity)
	}
}

func TestMACrossover_NotEnoughData(t *testing.T) {
	s, _ := New(5, 20, 100, false)

	signals, err := s.GenerateSignals(snapOf(t, mdtest.Linear(10, 20, 15)), portfolio.State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("expected no signals with insufficient data, got %d", len(signals))
	}
}

func TestFactory_Params(t *testing.T) {
	gen, err := Factory(strategy.Params{"fast_period": 3.0, "slow_period": 9, "position_size": 200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := gen.(*MACrossover)
	if m.fastPeriod != 3 || m.slowPeriod != 9 || m.positionSize != 200 {
		t.Errorf("unexpected config %+v", m)
	}

	if _, err := Factory(strategy.Params{"fast_period": 2.5}); err == nil {
		t.Error("expected error for fractional period")
	}
}

func TestMACrossover_Exponential(t *testing.T) {
	gen, err := Factory(strategy.Params{"fast_period": 2, "slow_period": 4, "position_size": 100, "exponential": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := gen.(*MACrossover).Description(); d != "EMA Crossover (2/4)" {
		t.Errorf("unexpected description %q", d)
	}

	// fast EMA: 82.5 -> 107.5, slow EMA: 87.5 -> 100.5
	signals, err := gen.GenerateSignals(snapOf(t, []float64{100, 95, 90, 85, 80, 120}), portfolio.State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 || signals[0].Action != core.ActionBuy {
		t.Fatalf("expected one buy on EMA golden cross, got %+v", signals)
	}
}
