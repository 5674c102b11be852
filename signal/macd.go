package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
)

// MACDStrategy enters long on a bullish MACD/signal cross, exits on a
// bearish cross; short mirrored. No artificial warm-up is applied beyond
// the natural EMA seed (spec.md §4.2).
type MACDStrategy struct{}

func (MACDStrategy) Kind() Kind { return KindMACD }

func (MACDStrategy) Validate(p Params) error {
	fast := int(p.Get("fast_period", 12))
	slow := int(p.Get("slow_period", 26))
	sig := int(p.Get("signal_period", 9))
	if fast <= 0 || slow <= 0 || sig <= 0 {
		return errs.NewConfigError("macd: all periods must be positive")
	}
	if fast >= slow {
		return errs.NewConfigError("macd: fast_period (%d) must be < slow_period (%d)", fast, slow)
	}
	return nil
}

func (s MACDStrategy) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	fast := int(p.Get("fast_period", 12))
	slow := int(p.Get("slow_period", 26))
	sig := int(p.Get("signal_period", 9))

	macd, signalLine, _ := indicator.MACD(closes, fast, slow, sig)

	longEntries := indicator.CrossAbove(macd, signalLine)
	longExits := indicator.CrossBelow(macd, signalLine)

	var shortEntries, shortExits []bool
	if p.Get("enable_short", 0) != 0 {
		shortEntries = indicator.CrossBelow(macd, signalLine)
		shortExits = indicator.CrossAbove(macd, signalLine)
	}

	return Result{
		LongEntries:  longEntries,
		LongExits:    longExits,
		ShortEntries: shortEntries,
		ShortExits:   shortExits,
	}, nil
}
