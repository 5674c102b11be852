// Package simulator implements the bar-by-bar backtest engine (C3): given
// an OHLCV series, a signal.Result, and a SimConfig, it walks the series one
// bar at a time, opening and closing positions per the configured rules,
// and emits a trade log plus an equity curve.
//
// A single Simulate call is strictly sequential — each bar's state depends
// on the previous bar's — so all parallelism in this module lives one
// level up, in the optimize/* packages.
package simulator

import (
	"math"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
	"github.com/chidi150c/stratester/signal"
)

// Side is the direction of an open position or closed trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Direction gates which sides the simulator is allowed to open.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionBoth  Direction = "both"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitEndOfData  ExitReason = "end_of_data"
)

// entryGraceBars is the L from spec.md §4.3 step 3: the engine refuses new
// entries in the last L bars so that an open position is never stranded
// past the data's end without a chance to close naturally.
const entryGraceBars = 5

// SimConfig is the full set of simulation knobs (spec.md §6's enumerated
// SimConfig fields).
type SimConfig struct {
	InitialCapital  float64
	PositionSize    float64 // fraction of cash allocated as margin per entry, (0, 1]
	Leverage        float64 // [1, 125]
	TakerFee        float64
	MakerFee        float64 // accepted for config-echo completeness; unused by default
	Slippage        float64
	StopLoss        float64 // fraction of entry, 0 disables
	TakeProfit      float64 // fraction of entry, 0 disables
	TrailingStop    float64 // fraction retracement from max favorable price, 0 disables
	Direction       Direction
	MaxPositions    int
	UseBarMagnifier bool
	RiskFreeRate    float64

	// VolAdjust and VolLookback enable volatility-adjusted position sizing
	// (off by default): when VolAdjust is true, position_size at entry is
	// scaled by 1/(ATR(VolLookback)/close * volAdjustK), clamped to
	// [0.25, 2.0]x the configured PositionSize.
	VolAdjust   bool
	VolLookback int
}

// volAdjustK is the fixed scaling constant in the volatility-adjusted
// sizing formula; it has no natural unit-free default in the source
// material, so it is pinned at 1.0 (no artificial amplification of the
// ATR/close ratio before it's used as a divisor).
const volAdjustK = 1.0

// volSizeMin and volSizeMax bound the volatility-adjustment multiplier so
// a quiet or extremely volatile market can never push sizing outside a
// 0.25x-2.0x band around the configured base size.
const (
	volSizeMin = 0.25
	volSizeMax = 2.0
)

// Validate checks the invariants SimConfig must satisfy before any
// simulation work begins (spec.md §7: ConfigError is raised synchronously,
// before work starts).
func (c SimConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return errs.NewConfigError("sim: initial_capital must be > 0")
	}
	if c.PositionSize <= 0 || c.PositionSize > 1 {
		return errs.NewConfigError("sim: position_size must be in (0, 1]")
	}
	if c.Leverage < 1 || c.Leverage > 125 {
		return errs.NewConfigError("sim: leverage must be in [1, 125], got %v", c.Leverage)
	}
	if c.TakerFee < 0 || c.Slippage < 0 {
		return errs.NewConfigError("sim: taker_fee and slippage must be >= 0")
	}
	if c.StopLoss < 0 || c.TakeProfit < 0 || c.TrailingStop < 0 {
		return errs.NewConfigError("sim: stop_loss, take_profit, trailing_stop must be >= 0")
	}
	if c.MaxPositions < 1 {
		return errs.NewConfigError("sim: max_positions must be >= 1")
	}
	switch c.Direction {
	case DirectionLong, DirectionShort, DirectionBoth:
	default:
		return errs.NewConfigError("sim: direction must be one of long, short, both, got %q", c.Direction)
	}
	if c.VolAdjust && c.VolLookback <= 0 {
		return errs.NewConfigError("sim: vol_lookback must be > 0 when vol_adjust is enabled")
	}
	return nil
}

// Position is an open lot; it is mutated in place while held and frozen
// into a Trade on exit (spec.md §3).
type Position struct {
	Side              Side
	EntryBarIndex     int
	EntryPrice        float64
	Size              float64
	MaxFavorablePrice float64
	MaxAdversePrice   float64
	margin            float64
	entryFee          float64
}

// Trade is a closed position's frozen record.
type Trade struct {
	EntryBarIndex int
	ExitBarIndex  int
	Side          Side
	EntryPrice    float64
	ExitPrice     float64
	Size          float64
	PnL           float64
	PnLPct        float64
	Fees          float64
	MFE           float64
	MAE           float64
	MFEPct        float64
	MAEPct        float64
	ExitReason    ExitReason
	BarsHeld      int
}

// Result is everything Simulate produces for one run (spec.md §4.3
// Output, plus the final-state summary needed by run_backtest).
type Result struct {
	Trades         []Trade
	Equity         []float64
	OpenPositions  []Position
	RealizedPnL    float64
	UnrealizedPnL  float64
}

// Simulate walks series bar by bar applying cfg and the signals in sig,
// returning the trade log and equity curve. It never allocates inside the
// per-bar loop beyond the occasional append to the trade log (append's
// amortized growth is the one exception the steady-state, no-per-bar-
// allocation rule in spec.md §5 accepts, since trade count is data-
// dependent and can't be bounded up front).
func Simulate(series bar.Series, sig signal.Result, cfg SimConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	n := series.Len()
	if n == 0 {
		return Result{Equity: []float64{cfg.InitialCapital}}, nil
	}
	if len(sig.LongEntries) > 0 && len(sig.LongEntries) != n {
		return Result{}, errs.NewValidationError("sim: long_entries length %d != series length %d", len(sig.LongEntries), n)
	}
	if len(sig.LongExits) > 0 && len(sig.LongExits) != n {
		return Result{}, errs.NewValidationError("sim: long_exits length %d != series length %d", len(sig.LongExits), n)
	}
	if len(sig.ShortEntries) > 0 && len(sig.ShortEntries) != n {
		return Result{}, errs.NewValidationError("sim: short_entries length %d != series length %d", len(sig.ShortEntries), n)
	}
	if len(sig.ShortExits) > 0 && len(sig.ShortExits) != n {
		return Result{}, errs.NewValidationError("sim: short_exits length %d != series length %d", len(sig.ShortExits), n)
	}

	equity := make([]float64, n)
	trades := make([]Trade, 0, n/20)
	var open []Position

	cash := cfg.InitialCapital
	realized := 0.0

	var volRatio []float64
	if cfg.VolAdjust {
		highs, lows, closes := series.HighsLowsCloses()
		atr := indicator.ATR(highs, lows, closes, cfg.VolLookback)
		volRatio = make([]float64, n)
		for i, close := range closes {
			volRatio[i] = math.NaN()
			if close != 0 && !math.IsNaN(atr[i]) {
				volRatio[i] = atr[i] / close
			}
		}
	}

	for i := 0; i < n; i++ {
		c := series.Candles[i]

		for idx := range open {
			updateExtrema(&open[idx], c)
		}

		stillOpen := open[:0]
		for _, pos := range open {
			trade, closed, cashDelta := evaluateExit(pos, c, i, n, sig, cfg)
			if closed {
				trades = append(trades, trade)
				realized += trade.PnL
				cash += cashDelta
				continue
			}
			stillOpen = append(stillOpen, pos)
		}
		open = stillOpen

		if i < n-entryGraceBars {
			ratio := 0.0
			if volRatio != nil {
				ratio = volRatio[i]
			}
			if newPos, newCash, opened := tryEnter(open, c, i, sig, cfg, cash, ratio); opened {
				open = append(open, newPos)
				cash = newCash
			}
		}

		unrealized := 0.0
		heldMargin := 0.0
		for _, pos := range open {
			unrealized += unrealizedPnL(pos, c.Close)
			heldMargin += pos.margin
		}
		// Equity is cash-based, not initial_capital+realized, because cash
		// already nets out entry fees at open time while trade.PnL (per
		// spec.md §3) only carries exit fees. Cash also has each open
		// position's margin set aside, so that margin is added back along
		// with the unrealized PnL; this keeps equity, cash, and trade PnLs
		// mutually consistent per spec.md §8 property 3 (equity =
		// initial_capital + Σtrade.pnl − Σentry_fees once all are closed).
		equity[i] = cash + heldMargin + unrealized
	}

	// Force-close any still-open position at the final bar's close
	// (spec.md §4.3 step 3: end-of-data never strands an open position).
	if len(open) > 0 {
		last := series.Candles[n-1]
		for _, pos := range open {
			trade := closeAt(pos, last.Close, n-1, ExitEndOfData, cfg)
			trades = append(trades, trade)
			realized += trade.PnL
			cash += closingCashDelta(pos, trade, cfg)
		}
		open = nil
		equity[n-1] = cash
	}

	return Result{
		Trades:        trades,
		Equity:        equity,
		OpenPositions: open,
		RealizedPnL:   realized,
	}, nil
}

func updateExtrema(pos *Position, c bar.Candle) {
	if pos.Side == SideLong {
		if c.High > pos.MaxFavorablePrice {
			pos.MaxFavorablePrice = c.High
		}
		if c.Low < pos.MaxAdversePrice {
			pos.MaxAdversePrice = c.Low
		}
	} else {
		if c.Low < pos.MaxFavorablePrice {
			pos.MaxFavorablePrice = c.Low
		}
		if c.High > pos.MaxAdversePrice {
			pos.MaxAdversePrice = c.High
		}
	}
}

func unrealizedPnL(pos Position, price float64) float64 {
	if pos.Side == SideLong {
		return (price - pos.EntryPrice) * pos.Size
	}
	return (pos.EntryPrice - price) * pos.Size
}

// evaluateExit applies the fixed SL > TP > trailing > signal priority from
// spec.md §4.3 step 2. It returns the frozen Trade, whether the position
// closed, and the cash delta to apply (margin returned plus PnL).
func evaluateExit(pos Position, c bar.Candle, i, n int, sig signal.Result, cfg SimConfig) (Trade, bool, float64) {
	entry := pos.EntryPrice
	leverage := cfg.Leverage

	var worstPct, bestPct float64
	if pos.Side == SideLong {
		worstPct = (c.Low - entry) / entry * leverage
		bestPct = (c.High - entry) / entry * leverage
	} else {
		worstPct = (entry - c.High) / entry * leverage
		bestPct = (entry - c.Low) / entry * leverage
	}

	if cfg.UseBarMagnifier {
		if trade, closed, delta := evaluateExitMagnified(pos, c, i, sig, cfg); closed {
			return trade, closed, delta
		}
		// Fall through to signal-only exit check at the bar close, since
		// the magnifier pass above only resolves SL/TP/trailing ambiguity.
	} else {
		if cfg.StopLoss > 0 && worstPct <= -cfg.StopLoss {
			price := stopPrice(pos, cfg.StopLoss, leverage)
			price = clampToBar(price, c)
			price = applySlippageAdverse(price, pos.Side, cfg.Slippage)
			trade := closeAt(pos, price, i, ExitStopLoss, cfg)
			return trade, true, closingCashDelta(pos, trade, cfg)
		}
		if cfg.TakeProfit > 0 && bestPct >= cfg.TakeProfit {
			price := takeProfitPrice(pos, cfg.TakeProfit, leverage)
			price = clampToBar(price, c)
			trade := closeAt(pos, price, i, ExitTakeProfit, cfg)
			return trade, true, closingCashDelta(pos, trade, cfg)
		}
		if cfg.TrailingStop > 0 {
			if price, hit := trailingHit(pos, c, cfg.TrailingStop); hit {
				trade := closeAt(pos, price, i, ExitTrailing, cfg)
				return trade, true, closingCashDelta(pos, trade, cfg)
			}
		}
	}

	exitSignal := false
	if pos.Side == SideLong {
		exitSignal = sig.LongExitAt(i)
	} else {
		exitSignal = sig.ShortExitAt(i)
	}
	if exitSignal {
		price := applySlippageAdverse(c.Close, pos.Side, cfg.Slippage)
		trade := closeAt(pos, price, i, ExitSignal, cfg)
		return trade, true, closingCashDelta(pos, trade, cfg)
	}

	return Trade{}, false, 0
}

// evaluateExitMagnified reconstructs a canonical intrabar tick sequence
// (open->high->low->close for an up-bar, open->low->high->close for a
// down-bar, per spec.md §4.3's bar-magnifier note) and applies the same
// SL > TP > trailing priority at whichever tick first touches a level,
// removing the same-bar ambiguity ordinary bar granularity has.
func evaluateExitMagnified(pos Position, c bar.Candle, i int, sig signal.Result, cfg SimConfig) (Trade, bool, float64) {
	var ticks []float64
	if c.Close >= c.Open {
		ticks = []float64{c.Open, c.High, c.Low, c.Close}
	} else {
		ticks = []float64{c.Open, c.Low, c.High, c.Close}
	}

	leverage := cfg.Leverage
	entry := pos.EntryPrice

	for _, tick := range ticks {
		var pnlPct float64
		if pos.Side == SideLong {
			pnlPct = (tick - entry) / entry * leverage
		} else {
			pnlPct = (entry - tick) / entry * leverage
		}
		if cfg.StopLoss > 0 && pnlPct <= -cfg.StopLoss {
			price := stopPrice(pos, cfg.StopLoss, leverage)
			price = clampToBar(price, c)
			price = applySlippageAdverse(price, pos.Side, cfg.Slippage)
			trade := closeAt(pos, price, i, ExitStopLoss, cfg)
			return trade, true, closingCashDelta(pos, trade, cfg)
		}
		if cfg.TakeProfit > 0 && pnlPct >= cfg.TakeProfit {
			price := takeProfitPrice(pos, cfg.TakeProfit, leverage)
			price = clampToBar(price, c)
			trade := closeAt(pos, price, i, ExitTakeProfit, cfg)
			return trade, true, closingCashDelta(pos, trade, cfg)
		}
		if cfg.TrailingStop > 0 {
			if price, hit := trailingHitAtPrice(pos, tick, cfg.TrailingStop); hit {
				trade := closeAt(pos, price, i, ExitTrailing, cfg)
				return trade, true, closingCashDelta(pos, trade, cfg)
			}
		}
	}
	return Trade{}, false, 0
}

func stopPrice(pos Position, stopLoss, leverage float64) float64 {
	if pos.Side == SideLong {
		return pos.EntryPrice * (1 - stopLoss/leverage)
	}
	return pos.EntryPrice * (1 + stopLoss/leverage)
}

func takeProfitPrice(pos Position, takeProfit, leverage float64) float64 {
	if pos.Side == SideLong {
		return pos.EntryPrice * (1 + takeProfit/leverage)
	}
	return pos.EntryPrice * (1 - takeProfit/leverage)
}

func clampToBar(price float64, c bar.Candle) float64 {
	if price < c.Low {
		return c.Low
	}
	if price > c.High {
		return c.High
	}
	return price
}

func applySlippageAdverse(price float64, side Side, slippage float64) float64 {
	if side == SideLong {
		return price * (1 - slippage)
	}
	return price * (1 + slippage)
}

func trailingHit(pos Position, c bar.Candle, trailingStop float64) (float64, bool) {
	if pos.Side == SideLong {
		level := pos.MaxFavorablePrice * (1 - trailingStop)
		if c.Low <= level {
			return clampToBar(level, c), true
		}
		return 0, false
	}
	level := pos.MaxFavorablePrice * (1 + trailingStop)
	if c.High >= level {
		return clampToBar(level, c), true
	}
	return 0, false
}

func trailingHitAtPrice(pos Position, tick, trailingStop float64) (float64, bool) {
	if pos.Side == SideLong {
		level := pos.MaxFavorablePrice * (1 - trailingStop)
		if tick <= level {
			return level, true
		}
		return 0, false
	}
	level := pos.MaxFavorablePrice * (1 + trailingStop)
	if tick >= level {
		return level, true
	}
	return 0, false
}

// tryEnter opens a new position at bar i if an entry signal fires, the
// configured direction allows it, and capacity permits (spec.md §4.3
// steps 3-4). It returns the updated cash balance alongside the position
// so the caller doesn't need a second mutation pass.
func tryEnter(open []Position, c bar.Candle, i int, sig signal.Result, cfg SimConfig, cash float64, volRatio float64) (Position, float64, bool) {
	if len(open) >= cfg.MaxPositions {
		return Position{}, cash, false
	}

	allowLong := cfg.Direction == DirectionLong || cfg.Direction == DirectionBoth
	allowShort := cfg.Direction == DirectionShort || cfg.Direction == DirectionBoth

	if allowLong && sig.LongEntryAt(i) {
		price := c.Close * (1 + cfg.Slippage)
		return openPosition(SideLong, price, i, cfg, cash, volRatio)
	}
	if allowShort && sig.ShortEntryAt(i) {
		price := c.Close * (1 - cfg.Slippage)
		return openPosition(SideShort, price, i, cfg, cash, volRatio)
	}
	return Position{}, cash, false
}

// volSizeMultiplier scales position_size by 1/(volRatio*volAdjustK),
// clamped to [volSizeMin, volSizeMax]; a zero ratio (an ATR of zero) lands
// on volSizeMax, and a NaN ratio (no ATR data yet, or a zero-price edge
// case) leaves sizing unscaled.
func volSizeMultiplier(volRatio float64) float64 {
	if volRatio < 0 || !isFinite(volRatio) {
		return 1.0
	}
	m := 1.0 / (volRatio * volAdjustK)
	if m < volSizeMin {
		return volSizeMin
	}
	if m > volSizeMax {
		return volSizeMax
	}
	return m
}

func openPosition(side Side, entryPrice float64, i int, cfg SimConfig, cash float64, volRatio float64) (Position, float64, bool) {
	if entryPrice <= 0 || !isFinite(entryPrice) {
		return Position{}, cash, false
	}
	positionSize := cfg.PositionSize
	if cfg.VolAdjust {
		positionSize *= volSizeMultiplier(volRatio)
	}
	margin := cash * positionSize
	notional := margin * cfg.Leverage
	size := notional / (entryPrice * (1 + cfg.TakerFee))
	fee := notional * cfg.TakerFee

	pos := Position{
		Side:              side,
		EntryBarIndex:     i,
		EntryPrice:        entryPrice,
		Size:              size,
		MaxFavorablePrice: entryPrice,
		MaxAdversePrice:   entryPrice,
		margin:            margin,
		entryFee:          fee,
	}
	cash -= margin + fee
	return pos, cash, true
}

func closeAt(pos Position, exitPrice float64, i int, reason ExitReason, cfg SimConfig) Trade {
	exitNotional := pos.Size * exitPrice
	exitFee := exitNotional * cfg.TakerFee

	var pnl float64
	if pos.Side == SideLong {
		pnl = (exitPrice-pos.EntryPrice)*pos.Size - exitFee
	} else {
		pnl = (pos.EntryPrice-exitPrice)*pos.Size - exitFee
	}

	pnlPct := 0.0
	if pos.margin != 0 {
		pnlPct = pnl / pos.margin
	}

	mfe := unrealizedPnL(Position{Side: pos.Side, EntryPrice: pos.EntryPrice, Size: pos.Size}, pos.MaxFavorablePrice)
	mae := unrealizedPnL(Position{Side: pos.Side, EntryPrice: pos.EntryPrice, Size: pos.Size}, pos.MaxAdversePrice)
	mfePct, maePct := 0.0, 0.0
	if pos.margin != 0 {
		mfePct = mfe / pos.margin
		maePct = mae / pos.margin
	}

	return Trade{
		EntryBarIndex: pos.EntryBarIndex,
		ExitBarIndex:  i,
		Side:          pos.Side,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Size:          pos.Size,
		PnL:           pnl,
		PnLPct:        pnlPct,
		Fees:          pos.entryFee + exitFee,
		MFE:           mfe,
		MAE:           mae,
		MFEPct:        mfePct,
		MAEPct:        maePct,
		ExitReason:    reason,
		BarsHeld:      i - pos.EntryBarIndex,
	}
}

// closingCashDelta is the amount to add back to cash when a position
// closes: the margin originally set aside plus the trade's realized PnL
// (spec.md §4.3 step 5).
func closingCashDelta(pos Position, trade Trade, cfg SimConfig) float64 {
	return pos.margin + trade.PnL
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
