// Package walkforward implements the walk-forward optimizer (C6): slide an
// in-sample/out-of-sample window pair across the series, optimize on each
// in-sample slice via the grid package (C5), and validate on the
// out-of-sample slice with a single simulator run (C3).
package walkforward

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/metrics"
	"github.com/chidi150c/stratester/optimize/grid"
	"github.com/chidi150c/stratester/signal"
	"github.com/chidi150c/stratester/simulator"
	"github.com/chidi150c/stratester/telemetry"
)

// Mode selects how the in-sample window advances.
type Mode string

const (
	ModeRolling  Mode = "rolling"
	ModeAnchored Mode = "anchored"
)

// Config is the full set of WFO knobs (spec.md §6's WFOConfig).
type Config struct {
	InSampleSize     int
	OutSampleSize    int
	StepSize         int
	Mode             Mode
	MinTrades        int
	MaxDrawdownLimit float64
	Metric           grid.Scoring
	// Logger and Metrics report run progress; either may be left nil to
	// disable that half of telemetry.
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// Period is one walk-forward window's full evaluation.
type Period struct {
	ISStart, ISEnd   int
	OOSStart, OOSEnd int
	BestParams       signal.Params
	ISMetric         float64
	OOSMetric        float64
	Efficiency       float64
	Degradation      float64
	OOSNetProfit     float64
	Skipped          bool
	SkipReason       string
}

// StabilityScore is one optimized parameter's stability across periods.
type StabilityScore struct {
	Parameter string
	Mean      float64
	Std       float64
	Score     float64 // max(0, 1 - std/|mean|)
}

// Result is the full walk-forward run, including its aggregate statistics.
type Result struct {
	Periods          []Period
	AvgEfficiency    float64
	ConsistencyScore float64
	Stability        []StabilityScore
	RobustnessScore  float64
}

// Run slides the IS/OOS window pair across series per cfg, optimizing each
// in-sample slice via grid.Run and validating on the following out-of-sample
// slice with a single simulator.Simulate call. ctx is checked between
// periods; once it is cancelled no further period starts and the periods
// already evaluated are aggregated.
func Run(ctx context.Context, series bar.Series, kind signal.Kind, base signal.Params, space grid.ParameterSpace, simCfg simulator.SimConfig, cfg Config, reg *signal.Registry) (Result, error) {
	n := series.Len()
	if cfg.InSampleSize <= 0 || cfg.OutSampleSize <= 0 || cfg.StepSize <= 0 {
		return Result{}, errs.NewConfigError("wfo: in_sample_size, out_sample_size, step_size must be > 0")
	}
	if cfg.InSampleSize+cfg.OutSampleSize > n {
		return Result{}, errs.NewInsufficientDataError("wfo: in_sample_size+out_sample_size (%d) exceeds series length (%d)", cfg.InSampleSize+cfg.OutSampleSize, n)
	}

	start := time.Now()
	var periods []Period
	startIdx := 0

	for {
		if ctx.Err() != nil {
			break
		}
		isStart := startIdx
		isEnd := startIdx + cfg.InSampleSize
		if cfg.Mode == ModeAnchored {
			isStart = 0
			isEnd = startIdx + cfg.InSampleSize
		}
		oosStart := isEnd
		oosEnd := oosStart + cfg.OutSampleSize
		if oosEnd > n {
			break
		}

		period := evaluatePeriod(ctx, series, kind, base, space, simCfg, cfg, reg, isStart, isEnd, oosStart, oosEnd)
		periods = append(periods, period)
		if cfg.Logger != nil {
			cfg.Logger.WFOPeriod(period.ISStart, period.ISEnd, period.OOSStart, period.OOSEnd, period.Skipped, period.SkipReason)
		}
		if cfg.Metrics != nil {
			cfg.Metrics.WFOPeriods.Inc()
		}

		startIdx += cfg.StepSize
	}

	valid := 0
	for _, p := range periods {
		if !p.Skipped {
			valid++
		}
	}
	if valid == 0 {
		return Result{}, errs.NewInsufficientDataError("wfo: zero valid periods")
	}

	if cfg.Metrics != nil {
		cfg.Metrics.WFODuration.Observe(time.Since(start).Seconds())
	}

	return aggregate(periods, space), nil
}

func evaluatePeriod(ctx context.Context, series bar.Series, kind signal.Kind, base signal.Params, space grid.ParameterSpace, simCfg simulator.SimConfig, cfg Config, reg *signal.Registry, isStart, isEnd, oosStart, oosEnd int) Period {
	period := Period{ISStart: isStart, ISEnd: isEnd, OOSStart: oosStart, OOSEnd: oosEnd}

	isSeries := slice(series, isStart, isEnd)
	oosSeries := slice(series, oosStart, oosEnd)

	gridCfg := grid.Config{
		Kind:        kind,
		BaseParams:  base,
		Space:       space,
		SimConfig:   simCfg,
		Scoring:     cfg.Metric,
		Constraints: grid.Constraints{MinTrades: cfg.MinTrades, MaxDrawdownLimit: cfg.MaxDrawdownLimit},
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	}
	gridRes, err := grid.Run(ctx, isSeries, gridCfg, reg)
	if err != nil || len(gridRes.Ranked) == 0 {
		period.Skipped = true
		period.SkipReason = "no valid in-sample result"
		return period
	}

	best := gridRes.Ranked[0]
	period.BestParams = best.Params
	period.ISMetric = best.Score

	gen, err := reg.Get(kind)
	if err != nil {
		period.Skipped = true
		period.SkipReason = err.Error()
		return period
	}
	sig, err := gen.Generate(oosSeries, best.Params)
	if err != nil {
		period.Skipped = true
		period.SkipReason = err.Error()
		return period
	}
	simRes, err := simulator.Simulate(oosSeries, sig, simCfg)
	if err != nil {
		period.Skipped = true
		period.SkipReason = err.Error()
		return period
	}
	oosM := metrics.Calculate(simRes.Trades, simRes.Equity, oosSeries, simCfg.InitialCapital, simCfg.RiskFreeRate)

	oosScore := scoreFor(cfg.Metric, oosM)
	period.OOSMetric = oosScore
	period.OOSNetProfit = oosM.NetProfit

	if period.ISMetric == 0 {
		period.Efficiency = 0
	} else {
		period.Efficiency = oosScore / period.ISMetric
	}
	period.Degradation = period.ISMetric - oosScore

	return period
}

func scoreFor(metric grid.Scoring, m metrics.Metrics) float64 {
	switch metric {
	case grid.ScoreProfitFactor:
		return m.ProfitFactor
	case grid.ScoreComposite:
		if m.MaxDrawdown == 0 {
			return 0
		}
		return (m.TotalReturnPct / m.MaxDrawdown) * m.Sharpe * math.Sqrt(math.Max(m.WinRate, 0))
	default:
		return m.Sharpe
	}
}

func slice(series bar.Series, start, end int) bar.Series {
	return bar.Series{Symbol: series.Symbol, Interval: series.Interval, Candles: series.Candles[start:end]}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func aggregate(periods []Period, space grid.ParameterSpace) Result {
	var sumEff float64
	var profitablePeriods, countedPeriods int
	for _, p := range periods {
		if p.Skipped {
			continue
		}
		sumEff += p.Efficiency
		countedPeriods++
		if p.OOSNetProfit > 0 {
			profitablePeriods++
		}
	}

	avgEff := 0.0
	consistency := 0.0
	if countedPeriods > 0 {
		avgEff = sumEff / float64(countedPeriods)
		consistency = float64(profitablePeriods) / float64(countedPeriods)
	}

	stability := stabilityScores(periods, space)
	meanStability := 0.0
	for _, s := range stability {
		meanStability += s.Score
	}
	if len(stability) > 0 {
		meanStability /= float64(len(stability))
	}

	robustness := 0.4*clamp01(avgEff)*100 + 0.3*consistency*100 + 0.3*meanStability*100

	return Result{
		Periods:          periods,
		AvgEfficiency:    avgEff,
		ConsistencyScore: consistency,
		Stability:        stability,
		RobustnessScore:  robustness,
	}
}

// stabilityScores computes, for every parameter name in space, the
// std/|mean| based stability score of its best-found value across all
// non-skipped periods.
func stabilityScores(periods []Period, space grid.ParameterSpace) []StabilityScore {
	names := make([]string, 0, len(space))
	for name := range space {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]StabilityScore, 0, len(names))
	for _, name := range names {
		var values []float64
		for _, p := range periods {
			if p.Skipped {
				continue
			}
			if v, ok := p.BestParams[name]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			out = append(out, StabilityScore{Parameter: name})
			continue
		}
		mean := 0.0
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))

		sumSq := 0.0
		for _, v := range values {
			d := v - mean
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / float64(len(values)))

		score := 0.0
		if mean != 0 {
			score = 1 - std/math.Abs(mean)
		}
		if score < 0 {
			score = 0
		}
		out = append(out, StabilityScore{Parameter: name, Mean: mean, Std: std, Score: score})
	}
	return out
}
