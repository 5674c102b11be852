// Package signal implements the signal generator (C2): given a strategy
// kind, a parameter map, and an OHLCV series, it produces four boolean
// series aligned to the input — long_entries, long_exits, short_entries,
// short_exits.
//
// Strategies are a closed sum type: each hand-coded strategy in this
// package implements Generator, and Registry maps a user-facing string
// name to one, replacing the source's dynamic string->class dispatch per
// the teacher's own Broker-interface/registry split in broker.go and
// main.go's switch-on-string broker wiring (SPEC_FULL.md §6.2). The
// graph-built form (package signal/graph) compiles to the same Generator
// interface.
package signal

import (
	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
)

// Result holds the four aligned boolean signal streams (spec.md §3). A nil
// slice for one of the short streams is equivalent to all-false, per the
// spec's "any of the short series may be absent" invariant.
type Result struct {
	LongEntries  []bool
	LongExits    []bool
	ShortEntries []bool
	ShortExits   []bool
}

// at reports the value of a (possibly absent) stream at bar i, treating a
// nil stream as all-false.
func at(stream []bool, i int) bool {
	if stream == nil || i >= len(stream) {
		return false
	}
	return stream[i]
}

// LongEntryAt, LongExitAt, ShortEntryAt, ShortExitAt give the simulator a
// nil-safe accessor instead of requiring every strategy to allocate all
// four streams even when a side is unused.
func (r Result) LongEntryAt(i int) bool  { return at(r.LongEntries, i) }
func (r Result) LongExitAt(i int) bool   { return at(r.LongExits, i) }
func (r Result) ShortEntryAt(i int) bool { return at(r.ShortEntries, i) }
func (r Result) ShortExitAt(i int) bool  { return at(r.ShortExits, i) }

// Kind names the strategy catalog (spec.md §4.2).
type Kind string

const (
	KindSMACrossover Kind = "sma_crossover"
	KindRSI          Kind = "rsi"
	KindMACD         Kind = "macd"
	KindBollinger    Kind = "bollinger"
	KindGrid         Kind = "grid"
	KindDCA          Kind = "dca"
	KindMartingale   Kind = "martingale"
	KindGraph        Kind = "graph"
)

// Params is the generic parameter map a strategy is configured with. Using
// a flat map (rather than one Go struct per strategy) is what lets the grid
// optimizer (C5) enumerate a cartesian ParameterSpace without a type switch
// per strategy kind; each Generator documents and validates the keys it
// reads.
type Params map[string]float64

// Get reads a parameter with a default, the same "tunable with a fallback"
// shape as the teacher's getEnvFloat helper (env.go), generalized from
// process environment to an in-memory map.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Generator is the closed sum type every strategy (hand-coded or compiled
// from the graph DSL) implements.
type Generator interface {
	Kind() Kind
	// Validate checks parameter constraints (spec.md §4.2's
	// fast_period<slow_period, 0<oversold<overbought<100, etc.) before any
	// evaluation; violations are returned as a *errs.ConfigError.
	Validate(p Params) error
	// Generate produces the four signal streams for series, using only
	// information from bars <= i at every index i (no look-ahead,
	// spec.md §8 property 9).
	Generate(series bar.Series, p Params) (Result, error)
}

// Registry maps a user-facing string name to a Generator, per the §9
// design note's closed-sum-type-plus-string-keyed-registry re-architecture
// of the source's dynamic dispatch.
type Registry struct {
	generators map[Kind]Generator
}

// NewRegistry returns a Registry pre-populated with the core strategy
// catalog (spec.md §4.2's table).
func NewRegistry() *Registry {
	r := &Registry{generators: make(map[Kind]Generator)}
	r.Register(SMACrossover{})
	r.Register(RSIStrategy{})
	r.Register(MACDStrategy{})
	r.Register(BollingerMeanReversion{})
	r.Register(GridStrategy{})
	r.Register(DCAStrategy{})
	r.Register(MartingaleStrategy{})
	return r
}

// Register adds or replaces a Generator under its own Kind.
func (r *Registry) Register(g Generator) { r.generators[g.Kind()] = g }

// RegisterAs adds or replaces a Generator under an explicit Kind, used by
// the graph DSL to register compiled strategies under a caller-chosen name
// rather than the fixed KindGraph.
func (r *Registry) RegisterAs(kind Kind, g Generator) { r.generators[kind] = g }

// Get resolves a Kind to its Generator. An unknown kind is a
// *errs.ValidationError per spec.md §4.2's failure semantics.
func (r *Registry) Get(kind Kind) (Generator, error) {
	g, ok := r.generators[kind]
	if !ok {
		return nil, errs.NewValidationError("unknown strategy kind %q", kind)
	}
	return g, nil
}
