// Package grid implements the grid optimizer (C5): enumerate a cartesian
// parameter space, run the C2->C3->C4 pipeline for each combination, and
// rank the valid results by score.
package grid

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/metrics"
	"github.com/chidi150c/stratester/signal"
	"github.com/chidi150c/stratester/simulator"
	"github.com/chidi150c/stratester/telemetry"
	"golang.org/x/sync/errgroup"
)

// ParameterSpace maps a parameter name to the ordered list of values it may
// take; the cartesian product of every entry is the search space.
type ParameterSpace map[string][]float64

// Range builds the explicit value list for a {start, stop, step} arithmetic
// range, the ParameterSpace entry shape spec.md §6 allows as an alternative
// to an explicit list.
func Range(start, stop, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	var out []float64
	for v := start; v <= stop+1e-9; v += step {
		out = append(out, v)
	}
	return out
}

// Scoring names one of the three built-in scoring functions a grid run
// ranks by.
type Scoring string

const (
	ScoreSharpe       Scoring = "sharpe_ratio"
	ScoreProfitFactor Scoring = "profit_factor"
	ScoreComposite    Scoring = "composite"
)

// ScoringFunc is a first-class scoring function: given a combination's
// computed Metrics and its trade log, return the score to rank by. This
// generalizes the three named Scoring values into a pluggable hook, so a
// caller can rank by anything (e.g. a custom risk-adjusted return) without
// a new enum value.
type ScoringFunc func(metrics.Metrics, []simulator.Trade) float64

// SharpeScore, ProfitFactorScore, and CompositeScore are the ScoringFunc
// form of the three named Scoring values, usable directly as
// Config.ScoreFunc.
var (
	SharpeScore ScoringFunc = func(m metrics.Metrics, _ []simulator.Trade) float64 { return m.Sharpe }

	ProfitFactorScore ScoringFunc = func(m metrics.Metrics, _ []simulator.Trade) float64 { return m.ProfitFactor }

	CompositeScore ScoringFunc = func(m metrics.Metrics, _ []simulator.Trade) float64 {
		if m.MaxDrawdown == 0 || m.WinRate < 0 {
			return 0
		}
		return (m.TotalReturnPct / m.MaxDrawdown) * m.Sharpe * math.Sqrt(m.WinRate)
	}
)

// Constraints filters out combinations that technically ran but produced an
// unreliable result.
type Constraints struct {
	MinTrades        int
	MaxDrawdownLimit float64 // 0 disables the check
}

// Config is everything one grid run needs beyond the series itself.
type Config struct {
	Kind        signal.Kind
	BaseParams  signal.Params // held fixed for keys not present in Space
	Space       ParameterSpace
	SimConfig   simulator.SimConfig
	Scoring     Scoring
	// ScoreFunc, if set, overrides Scoring entirely — the pluggable-scoring
	// extensibility point. Leave nil to use the named Scoring value.
	ScoreFunc   ScoringFunc
	Constraints Constraints
	// Logger and Metrics report run progress; either may be left nil to
	// disable that half of telemetry (the library never force-installs
	// either one).
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// CombinationResult is one parameter combination's full evaluation.
type CombinationResult struct {
	Index   int // first-seen insertion order, used as the stable tie-break
	Params  signal.Params
	Metrics metrics.Metrics
	Score   float64
	Valid   bool
	Error   string
}

// Result is the full ranked output of a grid run.
type Result struct {
	Results   []CombinationResult // all combinations, insertion order
	Ranked    []CombinationResult // valid combinations, sorted by score desc
	Cancelled bool
}

// TopN returns the first n entries of Ranked, or all of them if there are
// fewer than n.
func (r Result) TopN(n int) []CombinationResult {
	if n > len(r.Ranked) {
		n = len(r.Ranked)
	}
	return r.Ranked[:n]
}

func score(s Scoring, m metrics.Metrics, trades []simulator.Trade) float64 {
	switch s {
	case ScoreProfitFactor:
		return ProfitFactorScore(m, trades)
	case ScoreComposite:
		return CompositeScore(m, trades)
	default:
		return SharpeScore(m, trades)
	}
}

func satisfies(c Constraints, m metrics.Metrics) bool {
	if m.TotalTrades < c.MinTrades {
		return false
	}
	if c.MaxDrawdownLimit > 0 && m.MaxDrawdown > c.MaxDrawdownLimit {
		return false
	}
	return true
}

// expand enumerates the cartesian product of cfg.Space, overlaying each
// combination onto cfg.BaseParams. Iteration order is deterministic (space
// keys sorted, values in list order) so Index is reproducible across runs.
func expand(base signal.Params, space ParameterSpace) []signal.Params {
	keys := make([]string, 0, len(space))
	for k := range space {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []signal.Params{cloneParams(base)}
	for _, key := range keys {
		values := space[key]
		var next []signal.Params
		for _, combo := range combos {
			for _, v := range values {
				c := cloneParams(combo)
				c[key] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func cloneParams(p signal.Params) signal.Params {
	out := make(signal.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Run evaluates every combination in cfg.Space against series, in parallel,
// and returns the ranked result. ctx cancellation is checked between
// combinations (spec.md §5's cooperative-cancellation boundary); a
// cancelled run returns whatever combinations had already completed with
// Cancelled = true, never an error.
func Run(ctx context.Context, series bar.Series, cfg Config, reg *signal.Registry) (Result, error) {
	if len(cfg.Space) == 0 {
		return Result{}, errs.NewConfigError("grid: parameter space must not be empty")
	}
	gen, err := reg.Get(cfg.Kind)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	combos := expand(cfg.BaseParams, cfg.Space)
	results := make([]CombinationResult, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	var cancelled atomic.Bool

	for idx, params := range combos {
		idx, params := idx, params
		g.Go(func() error {
			select {
			case <-gctx.Done():
				cancelled.Store(true)
				results[idx] = CombinationResult{Index: idx, Params: params, Valid: false, Score: math.Inf(-1), Error: "cancelled"}
				return nil
			default:
			}
			r := evaluate(series, cfg, gen, params, idx)
			results[idx] = r
			if cfg.Logger != nil {
				cfg.Logger.GridCombination(r.Index, r.Score, r.Valid)
			}
			if cfg.Metrics != nil {
				cfg.Metrics.GridCombinations.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	ranked := make([]CombinationResult, 0, len(results))
	for _, r := range results {
		if r.Valid {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if cfg.Logger != nil {
		cfg.Logger.GridRunComplete(len(results), len(ranked), cancelled.Load())
	}
	if cfg.Metrics != nil {
		cfg.Metrics.GridDuration.Observe(time.Since(start).Seconds())
	}

	return Result{Results: results, Ranked: ranked, Cancelled: cancelled.Load()}, nil
}

// evaluate runs the C2->C3->C4 pipeline for a single combination. A panic-
// free failure (a *errs error from Validate/Generate/Simulate) is captured
// as an invalid result rather than propagated, per spec.md §4.5's
// per-combination failure semantics.
func evaluate(series bar.Series, cfg Config, gen signal.Generator, params signal.Params, idx int) CombinationResult {
	sig, err := gen.Generate(series, params)
	if err != nil {
		return CombinationResult{Index: idx, Params: params, Valid: false, Score: math.Inf(-1), Error: err.Error()}
	}
	res, err := simulator.Simulate(series, sig, cfg.SimConfig)
	if err != nil {
		return CombinationResult{Index: idx, Params: params, Valid: false, Score: math.Inf(-1), Error: err.Error()}
	}
	m := metrics.Calculate(res.Trades, res.Equity, series, cfg.SimConfig.InitialCapital, cfg.SimConfig.RiskFreeRate)
	valid := satisfies(cfg.Constraints, m)
	s := math.Inf(-1)
	if valid {
		if cfg.ScoreFunc != nil {
			s = cfg.ScoreFunc(m, res.Trades)
		} else {
			s = score(cfg.Scoring, m, res.Trades)
		}
	}
	return CombinationResult{Index: idx, Params: params, Metrics: m, Score: s, Valid: valid}
}
