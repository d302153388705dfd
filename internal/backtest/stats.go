package backtest

import (
	"math"

	"github.com/newthinker/quantsweep/internal/execution"
	"github.com/newthinker/quantsweep/internal/portfolio"
)

// MetricsConfig holds the constants used by CalculateMetrics.
type MetricsConfig struct {
	RiskFreeRate       float64 `mapstructure:"risk_free_rate"`
	TradingDaysPerYear int     `mapstructure:"trading_days_per_year"`
	// CalmarEpsilon floors the drawdown in the Calmar denominator.
	CalmarEpsilon float64 `mapstructure:"calmar_epsilon"`
}

// DefaultMetricsConfig returns 252 trading days, no risk-free rate and a
// 1e-6 Calmar floor.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		TradingDaysPerYear: 252,
		CalmarEpsilon:      1e-6,
	}
}

// CalculateMetrics computes performance statistics from the equity curve
// and the fill log.
func CalculateMetrics(curve []portfolio.EquityPoint, fills []execution.FillResult, cfg MetricsConfig) Metrics {
	if cfg.TradingDaysPerYear <= 0 {
		cfg.TradingDaysPerYear = 252
	}
	if cfg.CalmarEpsilon <= 0 {
		cfg.CalmarEpsilon = 1e-6
	}

	var m Metrics
	for _, f := range fills {
		if !f.Executed() {
			continue
		}
		m.TradeCount++
		m.TotalCommission += f.Commission
		m.TotalStampDuty += f.StampDuty
	}
	m.TotalCosts = m.TotalCommission + m.TotalStampDuty

	var wins int
	for _, t := range BuildTrades(fills, nil) {
		m.RoundTrips++
		if t.IsWin() {
			wins++
		}
	}
	if m.RoundTrips > 0 {
		m.TradeWinRate = float64(wins) / float64(m.RoundTrips)
	}

	m.TradingDays = len(curve)
	if len(curve) == 0 {
		return m
	}
	m.FinalEquity = curve[len(curve)-1].TotalEquity

	returns := dailyReturns(curve)
	if len(returns) == 0 {
		return m
	}

	initial := curve[0].TotalEquity
	if initial > 0 {
		m.TotalReturn = m.FinalEquity/initial - 1
	}
	years := float64(cfg.TradingDaysPerYear) / float64(len(returns))
	if m.TotalReturn > -1 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, years) - 1
	} else {
		m.AnnualizedReturn = -1
	}

	m.Volatility = stdDev(returns) * math.Sqrt(float64(cfg.TradingDaysPerYear))
	if m.Volatility > 0 {
		m.SharpeRatio = (m.AnnualizedReturn - cfg.RiskFreeRate) / m.Volatility
	}

	m.MaxDrawdown = calculateMaxDrawdown(curve)
	m.CalmarRatio = m.AnnualizedReturn / math.Max(m.MaxDrawdown, cfg.CalmarEpsilon)

	var positive int
	for _, r := range returns {
		if r > 0 {
			positive++
		}
	}
	m.WinRate = float64(positive) / float64(len(returns))
	return m
}

// dailyReturns is the simple percentage change between consecutive points.
func dailyReturns(curve []portfolio.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalEquity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, curve[i].TotalEquity/prev-1)
	}
	return returns
}

// stdDev is the population standard deviation.
func stdDev(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// calculateMaxDrawdown finds the largest peak-to-trough decline
func calculateMaxDrawdown(curve []portfolio.EquityPoint) float64 {
	var maxDD, peak float64
	for _, p := range curve {
		if p.TotalEquity > peak {
			peak = p.TotalEquity
		}
		if peak > 0 {
			if dd := (peak - p.TotalEquity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
