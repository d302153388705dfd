package indicator

// RollingMax returns the maximum of each trailing window.
// Output is aligned like SMA: result[i] covers values[i : i+period].
func RollingMax(values []float64, period int) []float64 {
	return rolling(values, period, func(a, b float64) bool { return a > b })
}

// RollingMin returns the minimum of each trailing window.
func RollingMin(values []float64, period int) []float64 {
	return rolling(values, period, func(a, b float64) bool { return a < b })
}

// rolling keeps a monotonic deque of indices so each window costs O(1) amortized.
func rolling(values []float64, period int, better func(a, b float64) bool) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(values)-period+1)
	deque := make([]int, 0, period)

	for i, v := range values {
		for len(deque) > 0 && deque[0] <= i-period {
			deque = deque[1:]
		}
		for len(deque) > 0 && !better(values[deque[len(deque)-1]], v) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)

		if i >= period-1 {
			result = append(result, values[deque[0]])
		}
	}

	return result
}

// ROC returns the rate of change of the last value against the value
// period steps earlier: values[n-1]/values[n-1-period] - 1.
// ok is false when the history is too short or the base is zero.
func ROC(values []float64, period int) (roc float64, ok bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	base := values[len(values)-1-period]
	if base == 0 {
		return 0, false
	}
	return values[len(values)-1]/base - 1, true
}
