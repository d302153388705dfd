package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantsweep/internal/core"
)

func TestParams_Getters(t *testing.T) {
	p := Params{
		"int":      20,
		"int64":    int64(5),
		"float":    0.05,
		"whole":    10.0,
		"json":     json.Number("1.5"),
		"flag":     true,
		"fraction": 2.5,
		"text":     "abc",
	}

	n, err := p.Int("int", 0)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = p.Int("int64", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = p.Int("whole", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	f, err := p.Float("int", 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, f)

	f, err = p.Float("json", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	b, err := p.Bool("flag", false)
	require.NoError(t, err)
	assert.True(t, b)

	f, err = p.Float("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, f)

	_, err = p.Int("fraction", 0)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, err = p.Float("text", 0)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	_, err = p.Bool("int", false)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestParams_MergeDoesNotMutate(t *testing.T) {
	base := Params{"a": 1, "b": 2}
	merged := base.Merge(Params{"b": 3, "c": 4})

	assert.Equal(t, Params{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, Params{"a": 1, "b": 2}, base)
}

func TestParams_Fingerprint(t *testing.T) {
	a := Params{"lookback_period": 20, "buy_threshold": -0.08}
	b := Params{"buy_threshold": -0.08, "lookback_period": 20}

	assert.Equal(t, "buy_threshold=-0.08,lookback_period=20", a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "", Params{}.Fingerprint())
}

func TestParams_Decode(t *testing.T) {
	type config struct {
		Period    int     `mapstructure:"period"`
		Threshold float64 `mapstructure:"threshold"`
		Size      int64   `mapstructure:"size"`
		Enabled   bool    `mapstructure:"enabled"`
	}

	c := config{Period: 20, Threshold: 0.05, Size: 100}
	require.NoError(t, Params{"period": 10.0, "threshold": 1, "enabled": true}.Decode(&c))
	assert.Equal(t, config{Period: 10, Threshold: 1, Size: 100, Enabled: true}, c)

	tests := []struct {
		name   string
		params Params
	}{
		{"string for int", Params{"period": "twenty"}},
		{"string for float", Params{"threshold": "high"}},
		{"fractional int", Params{"size": 2.5}},
		{"number for bool", Params{"enabled": 1}},
		{"undeclared key", Params{"bogus": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c config
			err := tt.params.Decode(&c)
			assert.ErrorIs(t, err, core.ErrInvalidParameter)
			assert.ErrorIs(t, err, core.ErrParameterType)
		})
	}
}
