package errs

import "fmt"

// Error taxonomy per spec.md §7. Each kind is a distinct type so callers can
// use errors.As at the engine boundary instead of parsing strings, the same
// "result/either type at every boundary" re-architecture the design notes
// (§9) call for in place of the source's error-dict returns.

// ConfigError reports an invalid SimConfig/StrategyConfig/ParameterSpace,
// raised before any simulation work begins.
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// NewConfigError constructs a ConfigError with a formatted message.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError reports an input that violates a pre-condition: misaligned
// signal length, non-monotonic timestamps, NaN in OHLC, and similar.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "validation error: " + e.Msg }

// NewValidationError constructs a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports a requested window longer than the data, or
// an optimizer run that produced zero valid units of work.
type InsufficientDataError struct{ Msg string }

func (e *InsufficientDataError) Error() string { return "insufficient data: " + e.Msg }

// NewInsufficientDataError constructs an InsufficientDataError.
func NewInsufficientDataError(format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError is reserved for truly exceptional bugs; the core aims never
// to emit it.
type InternalError struct{ Msg string }

func (e *InternalError) Error() string { return "internal error: " + e.Msg }

// NewInternalError constructs an InternalError.
func NewInternalError(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
