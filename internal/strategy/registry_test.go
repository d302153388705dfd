package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/portfolio"
	"github.com/newthinker/quantsweep/internal/snapshot"
)

type mockGenerator struct {
	params Params
}

func (m *mockGenerator) Name() string { return "mock" }
func (m *mockGenerator) GenerateSignals(*snapshot.DataSnapshot, portfolio.State) ([]core.TradingInstruction, error) {
	return nil, nil
}

func mockRegistration(name string) Registration {
	return Registration{
		Name:        name,
		Description: "mock strategy",
		Defaults:    Params{"period": 10, "threshold": 0.5},
		Factory: func(p Params) (SignalGenerator, error) {
			if period, _ := p.Int("period", 0); period <= 0 {
				return nil, assert.AnError
			}
			return &mockGenerator{params: p}, nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(mockRegistration("mock")))

	got, ok := reg.Get("mock")
	require.True(t, ok)
	assert.Equal(t, "mock strategy", got.Description)

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicatesAndIncomplete(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(mockRegistration("mock")))

	assert.ErrorIs(t, reg.Register(mockRegistration("mock")), core.ErrInvalidParameter)
	assert.ErrorIs(t, reg.Register(Registration{Name: "nofactory"}), core.ErrInvalidParameter)
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(mockRegistration(name)))
	}

	var names []string
	for _, r := range reg.List() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestRegistry_NewMergesDefaults(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(mockRegistration("mock")))

	gen, err := reg.New("mock", Params{"threshold": 0.9})
	require.NoError(t, err)
	assert.Equal(t, Params{"period": 10, "threshold": 0.9}, gen.(*mockGenerator).params)

	// each call builds a fresh instance
	again, err := reg.New("mock", nil)
	require.NoError(t, err)
	assert.NotSame(t, gen, again)
}

func TestRegistry_NewErrors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(mockRegistration("mock")))

	_, err := reg.New("missing", nil)
	assert.ErrorIs(t, err, core.ErrUnknownStrategy)

	_, err = reg.New("mock", Params{"perod": 5})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, err = reg.New("mock", Params{"period": 0})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
	assert.ErrorIs(t, err, assert.AnError)
}
