package indicator

import (
	"math"
)

// nanSeries returns a series of n undefined values.
func nanSeries(n int) []float64 {
	series := make([]float64, n)
	for idx := range series {
		series[idx] = math.NaN()
	}

	return series
}

// firstValid returns the index of the first defined value, or -1.
func firstValid(values []float64) int {
	for idx := range values {
		if !math.IsNaN(values[idx]) {
			return idx
		}
	}

	return -1
}

// SMA returns the simple moving average series of the provided values. Windows
// containing an undefined value produce an undefined average.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}

	for idx := period - 1; idx < len(values); idx++ {
		var sum float64
		for _, v := range values[idx-period+1 : idx+1] {
			sum += v
		}
		out[idx] = sum / float64(period)
	}

	return out
}

// EMA returns the exponential moving average series of the provided values,
// seeded with the simple average of the first period defined values and
// smoothed with alpha = 2 / (period + 1).
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	first := firstValid(values)
	if period <= 0 || first < 0 || len(values)-first < period {
		return out
	}

	seedIdx := first + period - 1
	var sum float64
	for _, v := range values[first : seedIdx+1] {
		sum += v
	}
	out[seedIdx] = sum / float64(period)

	alpha := 2 / float64(period+1)
	for idx := seedIdx + 1; idx < len(values); idx++ {
		out[idx] = alpha*values[idx] + (1-alpha)*out[idx-1]
	}

	return out
}

// RSI returns the relative strength index series of the provided closes using
// Wilder smoothing. A window without any movement reads as neutral (50).
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var gain, loss float64
	for idx := 1; idx <= period; idx++ {
		delta := closes[idx] - closes[idx-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = rsiValue(gain, loss)

	n := float64(period)
	for idx := period + 1; idx < len(closes); idx++ {
		delta := closes[idx] - closes[idx-1]
		var up, down float64
		if delta > 0 {
			up = delta
		} else {
			down = -delta
		}
		gain = (gain*(n-1) + up) / n
		loss = (loss*(n-1) + down) / n
		out[idx] = rsiValue(gain, loss)
	}

	return out
}

// rsiValue converts average gain and loss into an RSI reading.
func rsiValue(gain float64, loss float64) float64 {
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}

	rs := gain / loss
	return 100 - 100/(1+rs)
}

// MACD returns the macd line and its signal line for the provided closes.
func MACD(closes []float64, fast int, slow int, signal int) ([]float64, []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := nanSeries(len(closes))
	for idx := range closes {
		if math.IsNaN(fastEMA[idx]) || math.IsNaN(slowEMA[idx]) {
			continue
		}
		line[idx] = fastEMA[idx] - slowEMA[idx]
	}

	return line, EMA(line, signal)
}

// Bollinger returns the upper, middle and lower volatility bands of the
// provided closes using the population standard deviation.
func Bollinger(closes []float64, period int, width float64) ([]float64, []float64, []float64) {
	middle := SMA(closes, period)
	upper := nanSeries(len(closes))
	lower := nanSeries(len(closes))

	for idx := range closes {
		if math.IsNaN(middle[idx]) {
			continue
		}

		var variance float64
		for _, v := range closes[idx-period+1 : idx+1] {
			d := v - middle[idx]
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))

		upper[idx] = middle[idx] + width*std
		lower[idx] = middle[idx] - width*std
	}

	return upper, middle, lower
}

// Stochastic returns the slow %K and %D series. A window with no range reads
// as neutral (50).
func Stochastic(highs []float64, lows []float64, closes []float64, fastK int, slowK int, slowD int) ([]float64, []float64) {
	raw := nanSeries(len(closes))
	if fastK <= 0 || len(highs) != len(closes) || len(lows) != len(closes) {
		return raw, nanSeries(len(closes))
	}

	for idx := fastK - 1; idx < len(closes); idx++ {
		highest := highs[idx]
		lowest := lows[idx]
		for j := idx - fastK + 1; j <= idx; j++ {
			highest = math.Max(highest, highs[j])
			lowest = math.Min(lowest, lows[j])
		}

		diff := highest - lowest
		if diff == 0 {
			raw[idx] = 50
			continue
		}
		raw[idx] = 100 * (closes[idx] - lowest) / diff
	}

	k := SMA(raw, slowK)
	return k, SMA(k, slowD)
}

// Fill forward-fills gaps of the provided series then backward-fills the
// leading undefined values from the first defined one. It reports false when
// the series has no defined value at all.
func Fill(series []float64) bool {
	first := firstValid(series)
	if first < 0 {
		return false
	}

	for idx := first + 1; idx < len(series); idx++ {
		if math.IsNaN(series[idx]) {
			series[idx] = series[idx-1]
		}
	}

	for idx := 0; idx < first; idx++ {
		series[idx] = series[first]
	}

	return true
}
