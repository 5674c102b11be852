// Package stratester is the facade: RunBacktest, RunGrid, RunWalkForward,
// and RunMonteCarlo are the only exported entry points a collaborator
// (HTTP layer, CLI, notebook) needs, wiring the C1-C7 packages together and
// stamping every result with a run identifier the way the teacher's
// broker_paper.go stamps each simulated fill with a uuid.
package stratester

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/metrics"
	"github.com/chidi150c/stratester/optimize/grid"
	"github.com/chidi150c/stratester/optimize/montecarlo"
	"github.com/chidi150c/stratester/optimize/walkforward"
	"github.com/chidi150c/stratester/signal"
	"github.com/chidi150c/stratester/simulator"
)

// OHLCVProvider supplies candle data to the facade functions; the engine
// never reads a provider itself, only accepts a pre-fetched Series, but
// this is the contract a collaborator's data layer implements (spec.md §6).
type OHLCVProvider interface {
	GetCandles(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) (bar.Series, error)
}

// Clock is the time source a collaborator supplies; no function in this
// module takes one (metrics annualizes from the series' Interval), and the
// core never calls time.Now() for its results.
type Clock interface{ Now() time.Time }

const runVersion = "1"

// BacktestResult is the facade's output for a single run_backtest call.
type BacktestResult struct {
	RunID       string
	Trades      []simulator.Trade
	Equity      []float64
	Metrics     metrics.Metrics
	ConfigEcho  simulator.SimConfig
	StrategyKind signal.Kind
	Params      signal.Params
}

// RunBacktest runs the C2->C3->C4 pipeline once: generate signals with the
// named strategy, simulate, compute metrics. It has no cancellation point
// of its own (a single simulator call is sequential and fast) but still
// takes ctx first, matching every other facade function's signature.
func RunBacktest(ctx context.Context, series bar.Series, kind signal.Kind, params signal.Params, cfg simulator.SimConfig, reg *signal.Registry) (BacktestResult, error) {
	gen, err := reg.Get(kind)
	if err != nil {
		return BacktestResult{}, err
	}
	sig, err := gen.Generate(series, params)
	if err != nil {
		return BacktestResult{}, err
	}
	res, err := simulator.Simulate(series, sig, cfg)
	if err != nil {
		return BacktestResult{}, err
	}
	m := metrics.Calculate(res.Trades, res.Equity, series, cfg.InitialCapital, cfg.RiskFreeRate)

	return BacktestResult{
		RunID:        uuid.New().String(),
		Trades:       res.Trades,
		Equity:       res.Equity,
		Metrics:      m,
		ConfigEcho:   cfg,
		StrategyKind: kind,
		Params:       params,
	}, nil
}

// GridResult wraps a grid.Result with a run identifier.
type GridResult struct {
	RunID string
	grid.Result
}

// RunGrid runs the grid optimizer (C5) and stamps the result with a run id.
func RunGrid(ctx context.Context, series bar.Series, cfg grid.Config, reg *signal.Registry) (GridResult, error) {
	res, err := grid.Run(ctx, series, cfg, reg)
	if err != nil {
		return GridResult{}, err
	}
	return GridResult{RunID: uuid.New().String(), Result: res}, nil
}

// WFOResult wraps a walkforward.Result with a run identifier.
type WFOResult struct {
	RunID string
	walkforward.Result
}

// RunWalkForward runs the walk-forward optimizer (C6) and stamps the
// result with a run id.
func RunWalkForward(ctx context.Context, series bar.Series, kind signal.Kind, base signal.Params, space grid.ParameterSpace, simCfg simulator.SimConfig, wfoCfg walkforward.Config, reg *signal.Registry) (WFOResult, error) {
	res, err := walkforward.Run(ctx, series, kind, base, space, simCfg, wfoCfg, reg)
	if err != nil {
		return WFOResult{}, err
	}
	return WFOResult{RunID: uuid.New().String(), Result: res}, nil
}

// MCResult wraps a montecarlo.Result with a run identifier.
type MCResult struct {
	RunID string
	montecarlo.Result
}

// RunMonteCarlo runs the Monte Carlo simulator (C7) over a realized trade
// log and stamps the result with a run id.
func RunMonteCarlo(ctx context.Context, pnls []float64, initialCapital float64, cfg montecarlo.Config) (MCResult, error) {
	res, err := montecarlo.Run(ctx, pnls, initialCapital, cfg)
	if err != nil {
		return MCResult{}, err
	}
	return MCResult{RunID: uuid.New().String(), Result: res}, nil
}

// Record is the canonical on-disk representation spec.md §6 describes: a
// self-describing record with a bit-exact config echo, the trade log,
// the equity array, a metrics map, and run identification. Every numeric
// field is a float64 or int, and finite values of both are lossless through
// encoding/json, so round-tripping a Record through
// MarshalJSON/UnmarshalJSON never loses precision. Non-finite values are
// not encoded: MarshalJSON returns an error when any field is NaN or
// ±Inf, e.g. Metrics.ProfitFactor, which is +Inf when trades exist and
// none lost.
type Record struct {
	RunID        string
	Version      string
	Timestamp    time.Time
	StrategyKind signal.Kind
	Params       signal.Params
	ConfigEcho   simulator.SimConfig
	Trades       []simulator.Trade
	Equity       []float64
	Metrics      metrics.Metrics
}

// NewRecord builds a Record from a BacktestResult, stamping it with the
// current time and the engine's version tag.
func NewRecord(res BacktestResult, now time.Time) Record {
	return Record{
		RunID:        res.RunID,
		Version:      runVersion,
		Timestamp:    now,
		StrategyKind: res.StrategyKind,
		Params:       res.Params,
		ConfigEcho:   res.ConfigEcho,
		Trades:       res.Trades,
		Equity:       res.Equity,
		Metrics:      res.Metrics,
	}
}

// MarshalJSON and UnmarshalJSON are the default struct-tag-free
// encoding/json behavior; Record needs no custom logic since every field
// is already a JSON-safe type, but the methods are defined explicitly so
// the "lossless round-trip" contract is a compile-time-checked part of
// Record's API rather than an implicit assumption about the zero value of
// json.Marshal.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(alias(r))
}

func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Record(a)
	return nil
}
