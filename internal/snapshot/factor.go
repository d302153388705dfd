package snapshot

import (
	"math"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/indicator"
)

// Factor names. Window-based names carry the default window as suffix.
const (
	FactorVolumeSurge      = "volume_surge"
	FactorMomentumStrength = "momentum_strength"
	FactorMAArrangement    = "ma_arrangement"
	FactorHigh20           = "high_20"
	FactorLow20            = "low_20"
	FactorMA20             = "ma_20"
	FactorReturn20         = "return_20"
)

// Neutral sentinels substituted when a factor cannot be computed.
const (
	NeutralVolumeSurge      = 1.0
	NeutralMomentumStrength = -50.0
	NeutralMAArrangement    = 0.0
	NeutralReturn           = 0.0
)

// FactorStatus tells a usable value apart from a substituted sentinel.
type FactorStatus int

const (
	// FactorOK is a value computed from a full window.
	FactorOK FactorStatus = iota
	// FactorNeutral means the window was complete but degenerate (a zero
	// denominator); Value holds the neutral sentinel.
	FactorNeutral
	// FactorInsufficient means the slice is shorter than the window; Value
	// holds the neutral sentinel.
	FactorInsufficient
)

func (s FactorStatus) String() string {
	switch s {
	case FactorOK:
		return "ok"
	case FactorNeutral:
		return "neutral"
	case FactorInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// Factor is one derived value for a symbol on the snapshot date.
type Factor struct {
	Value  float64      `json:"value"`
	Status FactorStatus `json:"status"`
}

// OK reports whether the factor was computed rather than substituted.
func (f Factor) OK() bool {
	return f.Status == FactorOK
}

// ok wraps a computed value. A value that overflowed to NaN or Inf is
// replaced by the factor's neutral sentinel.
func ok(v, sentinel float64) Factor {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutral(sentinel)
	}
	return Factor{Value: v, Status: FactorOK}
}

func neutral(v float64) Factor      { return Factor{Value: v, Status: FactorNeutral} }
func insufficient(v float64) Factor { return Factor{Value: v, Status: FactorInsufficient} }

// FactorConfig holds the rolling windows used for factor computation.
type FactorConfig struct {
	VolumeWindow   int `mapstructure:"volume_window"`
	MomentumWindow int `mapstructure:"momentum_window"`
	MAWindow       int `mapstructure:"ma_window"`
	RangeWindow    int `mapstructure:"range_window"`
	ReturnWindow   int `mapstructure:"return_window"`
}

// DefaultFactorConfig returns the standard windows.
func DefaultFactorConfig() FactorConfig {
	return FactorConfig{
		VolumeWindow:   20,
		MomentumWindow: 14,
		MAWindow:       20,
		RangeWindow:    20,
		ReturnWindow:   20,
	}
}

// ComputeFactors derives every factor from bars. The caller guarantees bars
// are already truncated to the snapshot date; nothing here looks further
// than the last element.
func ComputeFactors(bars []core.PriceBar, cfg FactorConfig) map[string]Factor {
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = float64(b.Volume)
	}

	return map[string]Factor{
		FactorVolumeSurge:      volumeSurge(volumes, cfg.VolumeWindow),
		FactorMomentumStrength: momentumStrength(closes, highs, lows, cfg.MomentumWindow),
		FactorMAArrangement:    maArrangement(closes, cfg.MAWindow),
		FactorHigh20:           windowExtreme(highs, cfg.RangeWindow, indicator.RollingMax),
		FactorLow20:            windowExtreme(lows, cfg.RangeWindow, indicator.RollingMin),
		FactorMA20:             movingAverage(closes, cfg.MAWindow),
		FactorReturn20:         trailingReturn(closes, cfg.ReturnWindow),
	}
}

// volumeSurge is latest volume over the trailing average volume.
func volumeSurge(volumes []float64, window int) Factor {
	avg, has := indicator.LastSMA(volumes, window)
	if !has {
		return insufficient(NeutralVolumeSurge)
	}
	if avg <= 0 {
		return neutral(NeutralVolumeSurge)
	}
	return ok(volumes[len(volumes)-1]/avg, NeutralVolumeSurge)
}

// momentumStrength is a Williams %R reading in [-100, 0].
func momentumStrength(closes, highs, lows []float64, window int) Factor {
	if window <= 0 || len(closes) < window {
		return insufficient(NeutralMomentumStrength)
	}
	hh := indicator.RollingMax(highs[len(highs)-window:], window)[0]
	ll := indicator.RollingMin(lows[len(lows)-window:], window)[0]
	if hh == ll {
		return neutral(NeutralMomentumStrength)
	}
	return ok(-100*(closes[len(closes)-1]-ll)/(hh-ll), NeutralMomentumStrength)
}

// maArrangement is the relative distance of the close from its moving average.
func maArrangement(closes []float64, window int) Factor {
	ma, has := indicator.LastSMA(closes, window)
	if !has {
		return insufficient(NeutralMAArrangement)
	}
	if ma == 0 {
		return neutral(NeutralMAArrangement)
	}
	return ok((closes[len(closes)-1]-ma)/ma, NeutralMAArrangement)
}

func movingAverage(closes []float64, window int) Factor {
	ma, has := indicator.LastSMA(closes, window)
	if !has {
		return insufficient(0)
	}
	return ok(ma, 0)
}

func windowExtreme(values []float64, window int, fn func([]float64, int) []float64) Factor {
	if window <= 0 || len(values) < window {
		return insufficient(0)
	}
	return ok(fn(values[len(values)-window:], window)[0], 0)
}

func trailingReturn(closes []float64, window int) Factor {
	if window <= 0 || len(closes) < window+1 {
		return insufficient(NeutralReturn)
	}
	r, has := indicator.ROC(closes, window)
	if !has {
		return neutral(NeutralReturn)
	}
	return ok(r, NeutralReturn)
}
