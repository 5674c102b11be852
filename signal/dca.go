package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
)

// DCAStrategy enters a fixed-size tranche every interval_bars, up to
// max_entries, and exits the whole position once price recovers to
// target_pct above the running weighted-average entry price, or after
// max_hold_bars bars in the position (spec.md §4.2).
//
// Like GridStrategy, the running average entry price and open-tranche count
// are state a vectorized kernel can't carry on its own, so Generate tracks
// them in one forward, causal pass; every decision at bar i reads only
// bars <= i.
type DCAStrategy struct{}

func (DCAStrategy) Kind() Kind { return KindDCA }

func (DCAStrategy) Validate(p Params) error {
	interval := int(p.Get("interval_bars", 10))
	maxEntries := int(p.Get("max_entries", 5))
	target := p.Get("target_pct", 0.02)
	maxHold := int(p.Get("max_hold_bars", 0))
	if interval <= 0 {
		return errs.NewConfigError("dca: interval_bars must be > 0")
	}
	if maxEntries <= 0 {
		return errs.NewConfigError("dca: max_entries must be > 0")
	}
	if target <= 0 {
		return errs.NewConfigError("dca: target_pct must be > 0")
	}
	if maxHold < 0 {
		return errs.NewConfigError("dca: max_hold_bars must be >= 0")
	}
	return nil
}

func (s DCAStrategy) Generate(series bar.Series, p Params) (Result, error) {
	if err := s.Validate(p); err != nil {
		return Result{}, err
	}
	closes := series.Closes()
	n := len(closes)
	interval := int(p.Get("interval_bars", 10))
	maxEntries := int(p.Get("max_entries", 5))
	target := p.Get("target_pct", 0.02)
	maxHold := int(p.Get("max_hold_bars", 0))

	longEntries := make([]bool, n)
	longExits := make([]bool, n)

	entries := 0
	avgPrice := 0.0
	barsSinceEntry := 0
	entryBar := -1

	for i := 0; i < n; i++ {
		if entries > 0 {
			barsSinceEntry++
			targetPrice := avgPrice * (1 + target)
			held := i - entryBar
			if closes[i] >= targetPrice || (maxHold > 0 && held >= maxHold) {
				longExits[i] = true
				entries = 0
				avgPrice = 0
				barsSinceEntry = 0
				entryBar = -1
				continue
			}
		}
		due := entries == 0 || barsSinceEntry >= interval
		if due && entries < maxEntries {
			avgPrice = (avgPrice*float64(entries) + closes[i]) / float64(entries+1)
			entries++
			barsSinceEntry = 0
			if entryBar == -1 {
				entryBar = i
			}
			longEntries[i] = true
		}
	}

	return Result{LongEntries: longEntries, LongExits: longExits}, nil
}
