package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
)

// BollingerMeanReversion enters long when close crosses below the lower
// band, exits when it crosses above the upper band; short mirrored
// (spec.md §4.2). Per the pinned §9 design note, the band std uses ddof=0
// (biased), matching the common charting convention.
type BollingerMeanReversion struct{}

func (BollingerMeanReversion) Kind() Kind { return KindBollinger }

func (BollingerMeanReversion) Validate(p Params) error {
	period := int(p.Get("period", 20))
	mult := p.Get("mult", 2.0)
	if period <= 1 {
		return errs.NewConfigError("bollinger: period must be > 1")
	}
	if mult <= 0 {
		return errs.NewConfigError("bollinger: mult must be > 0")
	}
	return nil
}

func (s BollingerMeanReversion) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	period := int(p.Get("period", 20))
	mult := p.Get("mult", 2.0)

	mid := indicator.SMA(closes, period)
	std := indicator.RollingStd(closes, period, 0)
	n := len(closes)
	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := 0; i < n; i++ {
		upper[i] = mid[i] + mult*std[i]
		lower[i] = mid[i] - mult*std[i]
	}

	longEntries := indicator.CrossBelow(closes, lower)
	longExits := indicator.CrossAbove(closes, upper)

	var shortEntries, shortExits []bool
	if p.Get("enable_short", 0) != 0 {
		shortEntries = indicator.CrossAbove(closes, upper)
		shortExits = indicator.CrossBelow(closes, lower)
	}

	return Result{
		LongEntries:  longEntries,
		LongExits:    longExits,
		ShortEntries: shortEntries,
		ShortExits:   shortExits,
	}, nil
}
