package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/simulator"
	"github.com/stretchr/testify/assert"
)

func flatSeries(n int, start float64, step float64) bar.Series {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]bar.Candle, n)
	for i := 0; i < n; i++ {
		price := start + step*float64(i)
		candles[i] = bar.Candle{Timestamp: ts.Add(time.Duration(i) * time.Hour), Open: price, High: price, Low: price, Close: price, Volume: 1}
	}
	return bar.Series{Symbol: "X", Interval: bar.Interval1h, Candles: candles}
}

func TestCalculateNoTradesZeroMetrics(t *testing.T) {
	series := flatSeries(10, 100, 0)
	equity := []float64{10000, 10000, 10000}
	m := Calculate(nil, equity, series, 10000, 0)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.NetProfit)
	assert.Equal(t, 0.0, m.ProfitFactor)
	assert.Equal(t, 0.0, m.MaxDrawdown)
}

func TestGrossProfitLossAndNetProfit(t *testing.T) {
	trades := []simulator.Trade{
		{PnL: 100},
		{PnL: -40},
		{PnL: 60},
	}
	series := flatSeries(5, 100, 0)
	m := Calculate(trades, []float64{10000, 10120}, series, 10000, 0)
	assert.InDelta(t, 160, m.GrossProfit, 1e-9)
	assert.InDelta(t, -40, m.GrossLoss, 1e-9)
	assert.InDelta(t, 120, m.NetProfit, 1e-9)
	assert.InDelta(t, 4.0, m.ProfitFactor, 1e-9)
}

func TestProfitFactorInfiniteWithNoLosses(t *testing.T) {
	trades := []simulator.Trade{{PnL: 50}, {PnL: 30}}
	series := flatSeries(5, 100, 0)
	m := Calculate(trades, []float64{10000, 10080}, series, 10000, 0)
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
}

func TestWinRateAndTradeStats(t *testing.T) {
	trades := []simulator.Trade{
		{PnL: 100, BarsHeld: 4, MFE: 120, MAE: 10},
		{PnL: -50, BarsHeld: 2, MFE: 10, MAE: 60},
		{PnL: 20, BarsHeld: 6, MFE: 25, MAE: 5},
	}
	series := flatSeries(5, 100, 0)
	m := Calculate(trades, []float64{10000, 10070}, series, 10000, 0)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 100, m.BestTrade, 1e-9)
	assert.InDelta(t, -50, m.WorstTrade, 1e-9)
	assert.InDelta(t, 60, m.AvgWin, 1e-9)
	assert.InDelta(t, -50, m.AvgLoss, 1e-9)
	assert.InDelta(t, 4.0, m.AvgBarsHeld, 1e-9)
}

func TestMaxDrawdownOnDecliningEquity(t *testing.T) {
	series := flatSeries(5, 100, 0)
	equity := []float64{10000, 11000, 9000, 9900, 8000}
	m := Calculate(nil, equity, series, 10000, 0)
	// peak 11000, trough 8000 -> dd = 3000/11000
	assert.InDelta(t, 3000.0/11000.0, m.MaxDrawdown, 1e-9)
}

func TestSharpeZeroWhenNoVariance(t *testing.T) {
	series := flatSeries(5, 100, 0)
	equity := []float64{10000, 10000, 10000, 10000}
	m := Calculate(nil, equity, series, 10000, 0)
	assert.Equal(t, 0.0, m.Sharpe)
}

func TestSharpeClampedToRange(t *testing.T) {
	series := flatSeries(5, 100, 0)
	equity := make([]float64, 100)
	equity[0] = 10000
	for i := 1; i < 100; i++ {
		equity[i] = equity[i-1] * 1.05
	}
	m := Calculate(nil, equity, series, 10000, 0)
	assert.LessOrEqual(t, m.Sharpe, 100.0)
	assert.GreaterOrEqual(t, m.Sharpe, -100.0)
}

func TestCalmarZeroWithZeroDrawdown(t *testing.T) {
	series := flatSeries(5, 100, 0)
	equity := []float64{10000, 10100, 10200}
	m := Calculate(nil, equity, series, 10000, 0)
	assert.Equal(t, 0.0, m.Calmar)
}

func TestBuyAndHoldPct(t *testing.T) {
	series := flatSeries(5, 100, 10) // 100,110,120,130,140
	m := Calculate(nil, []float64{10000}, series, 10000, 0)
	assert.InDelta(t, 0.4, m.BuyAndHoldPct, 1e-9)
}

func TestValidateWarnsOnFewTrades(t *testing.T) {
	m := Metrics{TotalTrades: 5, MaxDrawdown: 0.1, Sharpe: 1.0}
	warnings := Validate(m)
	assert.Contains(t, warnings, "fewer than 30 trades: win rate and profit factor are not statistically reliable")
}

func TestValidateWarnsOnHighDrawdown(t *testing.T) {
	m := Metrics{TotalTrades: 50, MaxDrawdown: 0.6, Sharpe: 1.0}
	warnings := Validate(m)
	assert.Contains(t, warnings, "max drawdown exceeds 50%")
}

func TestValidateNoWarningsOnHealthyMetrics(t *testing.T) {
	m := Metrics{TotalTrades: 50, MaxDrawdown: 0.1, Sharpe: 1.0}
	warnings := Validate(m)
	assert.Empty(t, warnings)
}
