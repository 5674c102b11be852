package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
)

// RSIStrategy enters long on cross_above(rsi, oversold), exits on
// cross_below(rsi, overbought); short mirrored. Per spec.md §4.2's catalog,
// this strategy emulates next-bar-open execution, so the raw crosses are
// shifted forward one bar before being returned — the simulator's normal
// close[i] market fill then lands on the bar following detection, matching
// Scenario D's "close[k+1] if the strategy shifts signals rather than
// entries" semantics.
type RSIStrategy struct{}

func (RSIStrategy) Kind() Kind { return KindRSI }

func (RSIStrategy) Validate(p Params) error {
	period := int(p.Get("period", 14))
	oversold := p.Get("oversold", 30)
	overbought := p.Get("overbought", 70)
	if period <= 1 {
		return errs.NewConfigError("rsi: period must be > 1")
	}
	if !(0 < oversold && oversold < overbought && overbought < 100) {
		return errs.NewConfigError("rsi: require 0 < oversold (%v) < overbought (%v) < 100", oversold, overbought)
	}
	return nil
}

// shiftRight returns a copy of in shifted forward by one bar: out[i] =
// in[i-1], out[0] = false.
func shiftRight(in []bool) []bool {
	out := make([]bool, len(in))
	for i := 1; i < len(in); i++ {
		out[i] = in[i-1]
	}
	return out
}

func (s RSIStrategy) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	period := int(p.Get("period", 14))
	oversold := p.Get("oversold", 30)
	overbought := p.Get("overbought", 70)

	rsi := indicator.RSI(closes, period)
	oversoldLine := constSeries(len(rsi), oversold)
	overboughtLine := constSeries(len(rsi), overbought)

	longEntries := shiftRight(indicator.CrossAbove(rsi, oversoldLine))
	longExits := shiftRight(indicator.CrossBelow(rsi, overboughtLine))

	var shortEntries, shortExits []bool
	if p.Get("enable_short", 0) != 0 {
		shortEntries = shiftRight(indicator.CrossBelow(rsi, overboughtLine))
		shortExits = shiftRight(indicator.CrossAbove(rsi, oversoldLine))
	}

	return Result{
		LongEntries:  longEntries,
		LongExits:    longExits,
		ShortEntries: shortEntries,
		ShortExits:   shortExits,
	}, nil
}

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
