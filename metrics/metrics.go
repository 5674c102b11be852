// Package metrics derives a fixed schema of performance, risk, and trade
// statistics from a trade log and an equity curve (C4). Calculate is a pure
// function: the same inputs always produce the same outputs, with no
// randomness and no shared state (spec.md §4.4's determinism requirement).
package metrics

import (
	"math"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/simulator"
)

// Metrics is the full fixed schema spec.md §4.4 enumerates.
type Metrics struct {
	// Performance
	NetProfit        float64
	NetProfitPct     float64
	GrossProfit      float64
	GrossLoss        float64
	TotalReturnPct   float64
	CAGR             float64
	BuyAndHoldPct    float64

	// Risk (annualized)
	Sharpe      float64
	Sortino     float64
	MaxDrawdown float64
	Calmar      float64

	// Trade analysis
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64
	ProfitFactor     float64
	BestTrade        float64
	WorstTrade       float64
	AvgPnL           float64
	AvgWin           float64
	AvgLoss          float64
	AvgBarsHeld      float64
	AvgBarsHeldWin   float64
	AvgBarsHeldLoss  float64
	AvgMFE           float64
	AvgMAE           float64
}

// Calculate derives Metrics from a closed trade log and an equity curve.
// series supplies the buy-and-hold baseline (its first and last close) and,
// through its Interval, the periods-per-year constant for annualization;
// riskFreeRate is the annual risk-free rate used by Sharpe.
func Calculate(trades []simulator.Trade, equity []float64, series bar.Series, initialCapital float64, riskFreeRate float64) Metrics {
	m := Metrics{}

	m.GrossProfit, m.GrossLoss = grossProfitLoss(trades)
	m.NetProfit = m.GrossProfit + m.GrossLoss
	if initialCapital != 0 {
		m.NetProfitPct = m.NetProfit / initialCapital
	}

	if len(equity) > 0 && initialCapital != 0 {
		m.TotalReturnPct = equity[len(equity)-1]/initialCapital - 1
	}
	m.BuyAndHoldPct = buyAndHold(series)

	k, _ := bar.PeriodsPerYear(series.Interval)
	returns := periodReturns(equity)
	m.CAGR = cagr(equity, initialCapital, k)
	m.Sharpe = sharpe(returns, riskFreeRate, k)
	m.Sortino = sortino(returns, riskFreeRate, k)
	m.MaxDrawdown = maxDrawdown(equity)
	m.Calmar = calmar(m.CAGR, m.MaxDrawdown)

	populateTradeStats(&m, trades)

	return m
}

// buyAndHold returns the return of holding the instrument from the first to
// the last candle's close, the baseline spec.md §4.4 compares strategy
// performance against.
func buyAndHold(series bar.Series) float64 {
	closes := series.Closes()
	if len(closes) < 2 || closes[0] == 0 {
		return 0
	}
	return closes[len(closes)-1]/closes[0] - 1
}

func grossProfitLoss(trades []simulator.Trade) (profit, loss float64) {
	for _, t := range trades {
		if t.PnL >= 0 {
			profit += t.PnL
		} else {
			loss += t.PnL
		}
	}
	return
}

// periodReturns computes r[i] = (equity[i]-equity[i-1])/equity[i-1], with
// NaN/+-Inf sanitized to 0 and non-positive equity replaced by 1 for the
// purpose of the division (spec.md §4.4's risk section).
func periodReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev <= 0 {
			prev = 1
		}
		r := (equity[i] - prev) / prev
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
		}
		out[i-1] = r
	}
	return out
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stddev(x []float64, ddof int) float64 {
	n := len(x)
	if n-ddof <= 0 {
		return 0
	}
	mu := mean(x)
	sumSq := 0.0
	for _, v := range x {
		d := v - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-ddof))
}

func clampSharpe(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

// sharpe implements spec.md §4.4's pinned formula:
// (mean(r) - rf/K) / stddev(r, ddof=1) * sqrt(K), clamped to [-100, 100];
// zero std gives 0.
func sharpe(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear == 0 {
		return 0
	}
	std := stddev(returns, 1)
	if std == 0 {
		return 0
	}
	numerator := mean(returns) - riskFreeRate/periodsPerYear
	return clampSharpe(numerator / std * math.Sqrt(periodsPerYear))
}

// sortino mirrors sharpe but uses the standard deviation of negative
// returns only as its denominator.
func sortino(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear == 0 {
		return 0
	}
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	std := stddev(negatives, 1)
	if std == 0 {
		return 0
	}
	numerator := mean(returns) - riskFreeRate/periodsPerYear
	return clampSharpe(numerator / std * math.Sqrt(periodsPerYear))
}

func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - e) / peak
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

func cagr(equity []float64, initialCapital, periodsPerYear float64) float64 {
	if len(equity) == 0 || initialCapital <= 0 || periodsPerYear == 0 {
		return 0
	}
	years := float64(len(equity)) / periodsPerYear
	if years <= 0 {
		return 0
	}
	final := equity[len(equity)-1]
	if final <= 0 {
		return -1
	}
	return math.Pow(final/initialCapital, 1/years) - 1
}

func calmar(cagrValue, maxDD float64) float64 {
	if maxDD == 0 {
		return 0
	}
	return cagrValue / maxDD
}

func populateTradeStats(m *Metrics, trades []simulator.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		m.ProfitFactor = 0
		return
	}

	var sumPnL, sumWin, sumLoss, sumBars, sumBarsWin, sumBarsLoss, sumMFE, sumMAE float64
	m.BestTrade = trades[0].PnL
	m.WorstTrade = trades[0].PnL

	for _, t := range trades {
		sumPnL += t.PnL
		sumBars += float64(t.BarsHeld)
		sumMFE += t.MFE
		sumMAE += t.MAE
		if t.PnL > m.BestTrade {
			m.BestTrade = t.PnL
		}
		if t.PnL < m.WorstTrade {
			m.WorstTrade = t.PnL
		}
		if t.PnL >= 0 {
			m.WinningTrades++
			sumWin += t.PnL
			sumBarsWin += float64(t.BarsHeld)
		} else {
			m.LosingTrades++
			sumLoss += t.PnL
			sumBarsLoss += float64(t.BarsHeld)
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.AvgPnL = sumPnL / float64(m.TotalTrades)
	m.AvgBarsHeld = sumBars / float64(m.TotalTrades)
	m.AvgMFE = sumMFE / float64(m.TotalTrades)
	m.AvgMAE = sumMAE / float64(m.TotalTrades)

	if m.WinningTrades > 0 {
		m.AvgWin = sumWin / float64(m.WinningTrades)
		m.AvgBarsHeldWin = sumBarsWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = sumLoss / float64(m.LosingTrades)
		m.AvgBarsHeldLoss = sumBarsLoss / float64(m.LosingTrades)
	}

	if m.GrossLoss == 0 {
		m.ProfitFactor = math.Inf(1)
	} else {
		m.ProfitFactor = m.GrossProfit / math.Abs(m.GrossLoss)
	}
}

// Validate runs a set of sanity checks over a computed Metrics and returns
// human-readable warnings (not errors) for values that, while not invalid,
// usually indicate an under-sampled or degenerate backtest — e.g. too few
// trades to trust the win rate. Callers decide whether to surface these.
func Validate(m Metrics) []string {
	var warnings []string
	if m.TotalTrades > 0 && m.TotalTrades < 30 {
		warnings = append(warnings, "fewer than 30 trades: win rate and profit factor are not statistically reliable")
	}
	if math.IsInf(m.Sharpe, 0) || math.IsNaN(m.Sharpe) {
		warnings = append(warnings, "sharpe ratio is non-finite")
	}
	if m.MaxDrawdown >= 0.5 {
		warnings = append(warnings, "max drawdown exceeds 50%")
	}
	return warnings
}
