// Package telemetry wraps zerolog and Prometheus for the optimizer
// drivers. Neither the simulator nor the signal package imports this
// package: logging and metrics are threaded in explicitly by the caller,
// never force-installed as a package-level global, so importing the core
// simulation path never pulls in a logger or a metrics registry.
package telemetry

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper over zerolog.Logger, giving the optimizer
// drivers a small set of named events instead of ad hoc printf calls.
type Logger struct {
	log zerolog.Logger
}

// NewLogger builds a Logger writing structured JSON to w. Passing nil
// defaults to os.Stderr.
func NewLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return Logger{log: zerolog.New(w).With().Timestamp().Logger()}
}

// NewConsoleLogger builds a Logger writing zerolog's human-readable
// console format, the shape useful in test output or a REPL.
func NewConsoleLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return Logger{log: zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything, the default a caller
// gets by not configuring one explicitly.
func Nop() Logger {
	return Logger{log: zerolog.Nop()}
}

// GridCombination logs one evaluated grid combination.
func (l Logger) GridCombination(index int, score float64, valid bool) {
	l.log.Debug().Int("index", index).Float64("score", score).Bool("valid", valid).Msg("grid combination evaluated")
}

// GridRunComplete logs the terminal summary of a grid run.
func (l Logger) GridRunComplete(total, valid int, cancelled bool) {
	l.log.Info().Int("total", total).Int("valid", valid).Bool("cancelled", cancelled).Msg("grid run complete")
}

// WFOPeriod logs one walk-forward period's advance.
func (l Logger) WFOPeriod(isStart, isEnd, oosStart, oosEnd int, skipped bool, reason string) {
	ev := l.log.Info().Int("is_start", isStart).Int("is_end", isEnd).Int("oos_start", oosStart).Int("oos_end", oosEnd).Bool("skipped", skipped)
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("walk-forward period advanced")
}

// MCDraw logs progress at a coarse granularity (every N draws), since
// per-draw logging at n_simulations >= 1000 would dominate output.
func (l Logger) MCDraw(completed, total int) {
	l.log.Debug().Int("completed", completed).Int("total", total).Msg("monte carlo draw")
}

// Error logs an unexpected failure with its error value attached.
func (l Logger) Error(msg string, err error) {
	l.log.Error().Err(err).Msg(msg)
}
