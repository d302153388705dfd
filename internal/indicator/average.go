// Package indicator holds the rolling-window kernels shared by the snapshot
// factors and the strategies.
package indicator

// SMA returns the simple moving average of every full window.
// result[i] covers values[i : i+period], so len(result) is
// len(values)-period+1, or zero when the history is shorter than period.
func SMA(values []float64, period int) []float64 {
	sum, ok := seed(values, period)
	if !ok {
		return []float64{}
	}

	n := float64(period)
	out := make([]float64, 1, len(values)-period+1)
	out[0] = sum / n
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		out = append(out, sum/n)
	}
	return out
}

// EMA returns the exponential moving average with smoothing 2/(period+1),
// seeded with the SMA of the first window. Output is aligned like SMA.
func EMA(values []float64, period int) []float64 {
	sum, ok := seed(values, period)
	if !ok {
		return []float64{}
	}

	alpha := 2 / float64(period+1)
	avg := sum / float64(period)
	out := make([]float64, 1, len(values)-period+1)
	out[0] = avg
	for _, v := range values[period:] {
		avg += alpha * (v - avg)
		out = append(out, avg)
	}
	return out
}

// LastSMA returns the mean of the trailing period values.
// ok is false when fewer than period values are available.
func LastSMA(values []float64, period int) (avg float64, ok bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum, _ := seed(values[len(values)-period:], period)
	return sum / float64(period), true
}

func seed(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	return sum, true
}
