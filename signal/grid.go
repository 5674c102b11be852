package signal

import (
	"math"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
)

// GridStrategy lays N price levels below a rolling high and enters on each
// as price reaches it; it exits the whole ladder once price recovers to a
// profit target above the rolling low (spec.md §4.2).
//
// Unlike the crossover-style strategies, the ladder's entry count resets
// only when the position is flat, which is state the vectorized indicator
// kernels can't express on their own — so Generate tracks that single piece
// of state (how many of the N levels have already fired since the last
// exit) in one forward, causal pass over the series. Every decision at bar
// i still reads only bars <= i, preserving the no-look-ahead invariant
// (spec.md §8 property 9); this is just a loop instead of an array op.
type GridStrategy struct{}

func (GridStrategy) Kind() Kind { return KindGrid }

func (GridStrategy) Validate(p Params) error {
	levels := int(p.Get("levels", 3))
	lookback := int(p.Get("lookback", 20))
	spacing := p.Get("spacing_pct", 0.01)
	target := p.Get("target_pct", 0.01)
	if levels <= 0 {
		return errs.NewConfigError("grid: levels must be > 0")
	}
	if lookback <= 1 {
		return errs.NewConfigError("grid: lookback must be > 1")
	}
	if spacing <= 0 || target <= 0 {
		return errs.NewConfigError("grid: spacing_pct and target_pct must be > 0")
	}
	return nil
}

func (s GridStrategy) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	n := len(closes)
	levels := int(p.Get("levels", 3))
	lookback := int(p.Get("lookback", 20))
	spacing := p.Get("spacing_pct", 0.01)
	target := p.Get("target_pct", 0.01)

	rollingHigh := rollingExtreme(closes, lookback, true)
	rollingLow := rollingExtreme(closes, lookback, false)

	longEntries := make([]bool, n)
	longExits := make([]bool, n)

	active := 0 // how many grid levels have fired since the last exit
	for i := 0; i < n; i++ {
		if active > 0 {
			targetPrice := rollingLow[i] * (1 + target)
			if !isNaN(targetPrice) && closes[i] >= targetPrice {
				longExits[i] = true
				active = 0
				continue
			}
		}
		if active < levels && !isNaN(rollingHigh[i]) {
			levelPrice := rollingHigh[i] * (1 - spacing*float64(active+1))
			if closes[i] <= levelPrice {
				longEntries[i] = true
				active++
			}
		}
	}

	return Result{LongEntries: longEntries, LongExits: longExits}, nil
}

// rollingExtreme returns the rolling max (high=true) or min (high=false) of
// x over a trailing window of n, aligned to x; warm-up bars are NaN.
func rollingExtreme(x []float64, n int, high bool) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i < n-1 {
			out[i] = nan()
			continue
		}
		best := x[i-n+1]
		for j := i - n + 2; j <= i; j++ {
			if high && x[j] > best {
				best = x[j]
			}
			if !high && x[j] < best {
				best = x[j]
			}
		}
		out[i] = best
	}
	return out
}

func nan() float64 { return math.NaN() }

func isNaN(v float64) bool { return math.IsNaN(v) }
