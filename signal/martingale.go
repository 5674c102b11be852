package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
)

// MartingaleStrategy seeds its first entry on a bar where RSI is below
// oversold, signals an additional entry each time price falls drawdown_pct
// below the last entry price (up to max_entries), and exits the whole ladder
// once price recovers to target_pct above the running weighted-average entry
// price (spec.md §4.2). That average weights each added tranche at double
// the prior one; the emitted signals carry no size, so the simulator sizes
// every entry with its own sizing formula.
//
// The running average price, last entry price, and per-tranche weight are
// state threaded through one forward, causal pass, same pattern as
// GridStrategy and DCAStrategy.
type MartingaleStrategy struct{}

func (MartingaleStrategy) Kind() Kind { return KindMartingale }

func (MartingaleStrategy) Validate(p Params) error {
	period := int(p.Get("rsi_period", 14))
	oversold := p.Get("oversold", 30)
	drawdown := p.Get("drawdown_pct", 0.02)
	target := p.Get("target_pct", 0.02)
	maxEntries := int(p.Get("max_entries", 4))
	if period <= 1 {
		return errs.NewConfigError("martingale: rsi_period must be > 1")
	}
	if !(0 < oversold && oversold < 100) {
		return errs.NewConfigError("martingale: oversold must be in (0, 100)")
	}
	if drawdown <= 0 {
		return errs.NewConfigError("martingale: drawdown_pct must be > 0")
	}
	if target <= 0 {
		return errs.NewConfigError("martingale: target_pct must be > 0")
	}
	if maxEntries <= 0 {
		return errs.NewConfigError("martingale: max_entries must be > 0")
	}
	return nil
}

func (s MartingaleStrategy) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	n := len(closes)
	period := int(p.Get("rsi_period", 14))
	oversold := p.Get("oversold", 30)
	drawdown := p.Get("drawdown_pct", 0.02)
	target := p.Get("target_pct", 0.02)
	maxEntries := int(p.Get("max_entries", 4))

	rsi := indicator.RSI(closes, period)

	longEntries := make([]bool, n)
	longExits := make([]bool, n)

	entries := 0
	avgPrice := 0.0
	lastEntryPrice := 0.0
	tranche := 1.0
	totalSize := 0.0

	for i := 0; i < n; i++ {
		if entries > 0 {
			targetPrice := avgPrice * (1 + target)
			if closes[i] >= targetPrice {
				longExits[i] = true
				entries = 0
				avgPrice = 0
				lastEntryPrice = 0
				tranche = 1
				totalSize = 0
				continue
			}
		}

		if entries == 0 {
			if rsi[i] < oversold {
				avgPrice = closes[i]
				lastEntryPrice = closes[i]
				totalSize = tranche
				entries = 1
				longEntries[i] = true
			}
			continue
		}

		if entries >= maxEntries {
			continue
		}
		dropPrice := lastEntryPrice * (1 - drawdown)
		if closes[i] <= dropPrice {
			tranche *= 2
			avgPrice = (avgPrice*totalSize + closes[i]*tranche) / (totalSize + tranche)
			totalSize += tranche
			lastEntryPrice = closes[i]
			entries++
			longEntries[i] = true
		}
	}

	return Result{LongEntries: longEntries, LongExits: longExits}, nil
}
