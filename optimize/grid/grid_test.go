package grid

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/metrics"
	"github.com/chidi150c/stratester/signal"
	"github.com/chidi150c/stratester/simulator"
	"github.com/chidi150c/stratester/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendingSeries(n int) bar.Series {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]bar.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.5
		candles[i] = bar.Candle{Timestamp: ts.Add(time.Duration(i) * time.Hour), Open: price, High: price + 0.2, Low: price - 0.2, Close: price, Volume: 1}
	}
	return bar.Series{Symbol: "X", Interval: bar.Interval1h, Candles: candles}
}

func baseSimConfig() simulator.SimConfig {
	return simulator.SimConfig{
		InitialCapital: 10000,
		PositionSize:   0.5,
		Leverage:       1,
		Direction:      simulator.DirectionBoth,
		MaxPositions:   1,
	}
}

func TestExpandProducesCartesianProduct(t *testing.T) {
	space := ParameterSpace{
		"fast_period": {5, 10},
		"slow_period": {20, 30},
	}
	combos := expand(signal.Params{}, space)
	assert.Len(t, combos, 4)
}

func TestRunRejectsEmptySpace(t *testing.T) {
	series := trendingSeries(50)
	cfg := Config{Kind: signal.KindSMACrossover, SimConfig: baseSimConfig(), Scoring: ScoreSharpe}
	_, err := Run(context.Background(), series, cfg, signal.NewRegistry())
	assert.Error(t, err)
}

func TestRunRanksByScoreDescendingWithStableTiebreak(t *testing.T) {
	series := trendingSeries(100)
	cfg := Config{
		Kind:       signal.KindSMACrossover,
		SimConfig:  baseSimConfig(),
		Scoring:    ScoreSharpe,
		Space:      ParameterSpace{"fast_period": {3, 5, 8}, "slow_period": {20, 30}},
		Constraints: Constraints{MinTrades: 0},
	}
	res, err := Run(context.Background(), series, cfg, signal.NewRegistry())
	require.NoError(t, err)
	assert.Len(t, res.Results, 6)
	for i := 1; i < len(res.Ranked); i++ {
		assert.GreaterOrEqual(t, res.Ranked[i-1].Score, res.Ranked[i].Score)
	}
}

func TestRunMarksConstraintViolationsInvalid(t *testing.T) {
	series := trendingSeries(40)
	cfg := Config{
		Kind:        signal.KindSMACrossover,
		SimConfig:   baseSimConfig(),
		Scoring:     ScoreSharpe,
		Space:       ParameterSpace{"fast_period": {3}, "slow_period": {30}},
		Constraints: Constraints{MinTrades: 1000},
	}
	res, err := Run(context.Background(), series, cfg, signal.NewRegistry())
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].Valid)
	assert.Empty(t, res.Ranked)
}

func TestRunUnknownKindIsValidationError(t *testing.T) {
	series := trendingSeries(10)
	cfg := Config{
		Kind:      signal.Kind("does_not_exist"),
		SimConfig: baseSimConfig(),
		Space:     ParameterSpace{"x": {1}},
	}
	_, err := Run(context.Background(), series, cfg, signal.NewRegistry())
	var verr *errs.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTopNClampsToAvailableResults(t *testing.T) {
	res := Result{Ranked: []CombinationResult{{Index: 0}, {Index: 1}}}
	assert.Len(t, res.TopN(10), 2)
	assert.Len(t, res.TopN(1), 1)
}

func TestScoreFuncOverridesNamedScoring(t *testing.T) {
	series := trendingSeries(100)
	cfg := Config{
		Kind:      signal.KindSMACrossover,
		SimConfig: baseSimConfig(),
		Scoring:   ScoreSharpe,
		ScoreFunc: func(m metrics.Metrics, _ []simulator.Trade) float64 { return 42 },
		Space:     ParameterSpace{"fast_period": {3, 5}, "slow_period": {30}},
	}
	res, err := Run(context.Background(), series, cfg, signal.NewRegistry())
	require.NoError(t, err)
	for _, r := range res.Ranked {
		assert.Equal(t, 42.0, r.Score)
	}
}

func TestRunReportsTelemetry(t *testing.T) {
	series := trendingSeries(100)
	var logBuf bytes.Buffer
	logger := telemetry.NewLogger(&logBuf)
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	cfg := Config{
		Kind:      signal.KindSMACrossover,
		SimConfig: baseSimConfig(),
		Scoring:   ScoreSharpe,
		Space:     ParameterSpace{"fast_period": {3, 5}, "slow_period": {20, 30}},
		Logger:    &logger,
		Metrics:   &m,
	}
	res, err := Run(context.Background(), series, cfg, signal.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, float64(len(res.Results)), testutil.ToFloat64(m.GridCombinations))
	assert.Contains(t, logBuf.String(), "grid run complete")
}

func TestRangeBuildsArithmeticSequence(t *testing.T) {
	vals := Range(10, 20, 5)
	assert.Equal(t, []float64{10, 15, 20}, vals)
}
