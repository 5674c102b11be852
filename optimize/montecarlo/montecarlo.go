// Package montecarlo implements the Monte Carlo simulator (C7): bootstrap
// resampling (with replacement, preserving trade order within each draw so
// compounding stays path-dependent) over a realized trade log, to build a
// distribution of possible equity outcomes.
package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/telemetry"
)

// Config is the full set of Monte Carlo knobs (spec.md §6's MCConfig).
type Config struct {
	NSimulations  int
	RuinThreshold float64 // percent, in (0, 100)
	RandomSeed    uint64
	HasRandomSeed bool
	// Logger and Metrics report draw progress; either may be left nil to
	// disable that half of telemetry.
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// Result is the full distribution summary spec.md §4.7 enumerates.
type Result struct {
	MeanReturn        float64
	StdReturn         float64
	Percentiles       map[int]float64 // keys: 5, 25, 50, 75, 95
	ProbProfit        float64
	ProbRuin          float64
	OriginalRank      float64 // percentile rank of the original trade sequence within the simulated distribution
	Returns           []float64
	MaxDrawdowns      []float64
	Sharpes           []float64
}

// Run draws cfg.NSimulations bootstrap resamples (with replacement, same
// length as pnls) from pnls, compounds each draw onto initialCapital, and
// summarizes the resulting return distribution.
func Run(ctx context.Context, pnls []float64, initialCapital float64, cfg Config) (Result, error) {
	if cfg.NSimulations < 10 {
		return Result{}, errs.NewConfigError("montecarlo: n_simulations must be >= 10")
	}
	if cfg.RuinThreshold <= 0 || cfg.RuinThreshold >= 100 {
		return Result{}, errs.NewConfigError("montecarlo: ruin_threshold must be in (0, 100)")
	}
	if len(pnls) == 0 {
		return Result{}, errs.NewInsufficientDataError("montecarlo: trade log is empty")
	}
	if initialCapital <= 0 {
		return Result{}, errs.NewConfigError("montecarlo: initial_capital must be > 0")
	}

	var seed1, seed2 uint64 = 0x9E3779B97F4A7C15, 0xBF58476D1CE4E5B9
	if cfg.HasRandomSeed {
		seed1 = cfg.RandomSeed
		seed2 = cfg.RandomSeed ^ 0xD6E8FEB86659FD93
	}
	rng := rand.New(rand.NewPCG(seed1, seed2))

	start := time.Now()
	n := cfg.NSimulations
	returns := make([]float64, n)
	drawdowns := make([]float64, n)
	sharpes := make([]float64, n)

	origReturn, _, _ := compound(pnls, initialCapital)

	logEvery := n / 10
	if logEvery < 1 {
		logEvery = 1
	}

	for sim := 0; sim < n; sim++ {
		select {
		case <-ctx.Done():
			returns = returns[:sim]
			drawdowns = drawdowns[:sim]
			sharpes = sharpes[:sim]
			n = sim
			goto done
		default:
		}
		sample := resample(rng, pnls)
		ret, dd, sharpe := compound(sample, initialCapital)
		returns[sim] = ret
		drawdowns[sim] = dd
		sharpes[sim] = sharpe
		if cfg.Metrics != nil {
			cfg.Metrics.MCSimulations.Inc()
		}
		if cfg.Logger != nil && ((sim+1)%logEvery == 0 || sim == cfg.NSimulations-1) {
			cfg.Logger.MCDraw(sim+1, cfg.NSimulations)
		}
	}
done:

	if n == 0 {
		return Result{}, errs.NewInsufficientDataError("montecarlo: cancelled before any simulation completed")
	}

	if cfg.Metrics != nil {
		cfg.Metrics.MCDuration.Observe(time.Since(start).Seconds())
	}

	mean := meanOf(returns)
	std := stddevOf(returns, mean)

	profitCount := 0
	ruinCount := 0
	for i := 0; i < n; i++ {
		if returns[i] > 0 {
			profitCount++
		}
		if drawdowns[i] >= cfg.RuinThreshold {
			ruinCount++
		}
	}

	return Result{
		MeanReturn:   mean,
		StdReturn:    std,
		Percentiles:  percentiles(returns, []int{5, 25, 50, 75, 95}),
		ProbProfit:   float64(profitCount) / float64(n),
		ProbRuin:     float64(ruinCount) / float64(n),
		OriginalRank: rankOf(returns, origReturn),
		Returns:      returns,
		MaxDrawdowns: drawdowns,
		Sharpes:      sharpes,
	}, nil
}

// resample draws len(pnls) values with replacement from pnls, preserving
// the draw order so later compounding stays path-dependent.
func resample(rng *rand.Rand, pnls []float64) []float64 {
	out := make([]float64, len(pnls))
	for i := range out {
		out[i] = pnls[rng.IntN(len(pnls))]
	}
	return out
}

// compound applies each trade's PnL to a running capital balance in order,
// returning the total return percent, max drawdown percent, and a simple
// Sharpe on the resulting per-trade returns.
func compound(pnls []float64, initialCapital float64) (totalReturnPct, maxDrawdownPct, sharpe float64) {
	capital := initialCapital
	peak := initialCapital
	worstDD := 0.0
	perTradeReturns := make([]float64, len(pnls))

	for i, pnl := range pnls {
		prev := capital
		capital += pnl
		if prev != 0 {
			perTradeReturns[i] = pnl / prev
		}
		if capital > peak {
			peak = capital
		}
		if peak > 0 {
			dd := (peak - capital) / peak * 100
			if dd > worstDD {
				worstDD = dd
			}
		}
	}

	totalReturnPct = (capital/initialCapital - 1) * 100
	maxDrawdownPct = worstDD

	mean := meanOf(perTradeReturns)
	std := stddevOf(perTradeReturns, mean)
	if std == 0 {
		sharpe = 0
	} else {
		sharpe = mean / std * math.Sqrt(float64(len(perTradeReturns)))
	}
	return
}

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stddevOf(x []float64, mean float64) float64 {
	if len(x) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range x {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)-1))
}

func percentiles(x []float64, ps []int) map[int]float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	out := make(map[int]float64, len(ps))
	for _, p := range ps {
		out[p] = percentileOf(sorted, p)
	}
	return out
}

// percentileOf uses linear interpolation between the two closest ranks
// (numpy's default "linear" method), not the nearest-rank method.
func percentileOf(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := float64(p) / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func rankOf(sorted []float64, value float64) float64 {
	s := append([]float64(nil), sorted...)
	sort.Float64s(s)
	count := 0
	for _, v := range s {
		if v <= value {
			count++
		}
	}
	return float64(count) / float64(len(s)) * 100
}
