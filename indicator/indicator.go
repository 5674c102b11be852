// Package indicator implements the rolling-window indicator kernels (C1):
// simple moving average, rolling standard deviation (selectable ddof), the
// exponential moving average, Wilder's RMA, RSI, MACD, ATR, OBV, and the
// crossover primitives the signal generator builds strategies from.
//
// Every kernel is a pure function on a float64 slice (or, where the
// computation needs high/low/close jointly, on parallel high/low/close
// slices) that returns a slice of equal length. Undefined warm-up values are
// NaN, following the teacher's indicators.go convention, except where
// spec.md §4.1 pins a different value (RSI's avg_loss==0 case).
package indicator

import "math"

// SMA returns the n-period simple moving average, aligned to x. Indices
// before the first full window are NaN.
func SMA(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if n <= 0 || len(x) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= n {
			sum -= x[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RollingStd returns the n-period rolling standard deviation of x. ddof
// selects the normalization: 0 for the biased (population) estimator used
// by Bollinger Bands, 1 for the unbiased (sample) estimator used by the
// Sharpe/Sortino denominators — the spec pins this split explicitly
// (SPEC_FULL.md §9 / spec.md §9 design notes) rather than leaving one
// convention to silently win.
func RollingStd(x []float64, n int, ddof int) []float64 {
	out := make([]float64, len(x))
	if n <= 1 || len(x) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum, sumSq float64
	for i := range x {
		v := x[i]
		sum += v
		sumSq += v * v
		if i >= n {
			y := x[i-n]
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			denom := float64(n - ddof)
			if denom <= 0 {
				denom = 1
			}
			variance := (sumSq - float64(n)*mean*mean) / denom
			out[i] = math.Sqrt(math.Max(variance, 0))
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the exponential moving average of x with span s (alpha =
// 2/(s+1)), recursive form with no "adjust" correction, seeded from the
// first value — matching the teacher's EMA convention referenced from
// strategy.go.
func EMA(x []float64, s int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	if s <= 0 {
		s = 1
	}
	alpha := 2.0 / (float64(s) + 1.0)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha*x[i] + (1-alpha)*out[i-1]
	}
	return out
}

// WilderRMA returns Wilder's running moving average of x with period p
// (alpha = 1/p), recursive form seeded from the simple mean of the first p
// values, matching the RSI smoothing convention of spec.md §4.1.
func WilderRMA(x []float64, p int) []float64 {
	out := make([]float64, len(x))
	if p <= 0 || len(x) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i := range out {
		out[i] = math.NaN()
	}
	if len(x) <= p {
		return out
	}
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	seed /= float64(p)
	out[p-1] = seed
	prev := seed
	alpha := 1.0 / float64(p)
	for i := p; i < len(x); i++ {
		prev = alpha*x[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's
// smoothing of gains and losses. When avg_loss is zero, RSI is defined as
// 100 per spec.md §4.1. Warm-up bars (before the first full window) are
// NaN.
func RSI(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(closes) < 2 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := WilderRMA(gains, n)
	avgLoss := WilderRMA(losses, n)
	for i := range closes {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		if avgLoss[i] == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD returns the MACD line (ema(fast) - ema(slow)), the signal line
// (ema(signal) of the MACD line), and the histogram (macd - signal).
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	sig = EMA(macd, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist
}

// TrueRange needs high/low/close so it takes parallel slices rather than a
// domain Candle type, keeping this package dependency-free of the module
// root (avoids an import cycle with the stratester package).
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		if i == 0 {
			out[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR returns the n-period Average True Range, Wilder-smoothed.
func ATR(high, low, close []float64, n int) []float64 {
	tr := TrueRange(high, low, close)
	return WilderRMA(tr, n)
}

// OBV returns the On-Balance Volume series: a running sum of volume signed
// by the direction of the close-to-close price change (zero on no change).
func OBV(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// CrossAbove reports, for every bar i, whether a crossed above b at i:
// a[i-1] <= b[i-1] and a[i] > b[i]. Bar 0 is always false, and equal
// values never count as a cross (spec.md §4.1, §8 property 10).
func CrossAbove(a, b []float64) []bool {
	out := make([]bool, len(a))
	for i := 1; i < len(a); i++ {
		if math.IsNaN(a[i-1]) || math.IsNaN(b[i-1]) || math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		out[i] = a[i-1] <= b[i-1] && a[i] > b[i]
	}
	return out
}

// CrossBelow is the symmetric counterpart of CrossAbove.
func CrossBelow(a, b []float64) []bool {
	out := make([]bool, len(a))
	for i := 1; i < len(a); i++ {
		if math.IsNaN(a[i-1]) || math.IsNaN(b[i-1]) || math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		out[i] = a[i-1] >= b[i-1] && a[i] < b[i]
	}
	return out
}
