package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
)

// SMACrossover enters long on cross_above(sma_fast, sma_slow), exits long on
// the symmetric cross_below; short is the mirror image when enabled
// (spec.md §4.2 catalog table).
type SMACrossover struct{}

func (SMACrossover) Kind() Kind { return KindSMACrossover }

func (SMACrossover) Validate(p Params) error {
	fast := int(p.Get("fast_period", 10))
	slow := int(p.Get("slow_period", 30))
	if fast <= 0 || slow <= 0 {
		return errs.NewConfigError("sma_crossover: fast_period and slow_period must be positive")
	}
	if fast >= slow {
		return errs.NewConfigError("sma_crossover: fast_period (%d) must be < slow_period (%d)", fast, slow)
	}
	return nil
}

func (s SMACrossover) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	fast := int(p.Get("fast_period", 10))
	slow := int(p.Get("slow_period", 30))
	smaFast := indicator.SMA(closes, fast)
	smaSlow := indicator.SMA(closes, slow)

	longEntries := indicator.CrossAbove(smaFast, smaSlow)
	longExits := indicator.CrossBelow(smaFast, smaSlow)

	var shortEntries, shortExits []bool
	if p.Get("enable_short", 0) != 0 {
		shortEntries = indicator.CrossBelow(smaFast, smaSlow)
		shortExits = indicator.CrossAbove(smaFast, smaSlow)
	}

	return Result{
		LongEntries:  longEntries,
		LongExits:    longExits,
		ShortEntries: shortEntries,
		ShortExits:   shortExits,
	}, nil
}
