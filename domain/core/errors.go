package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors are fatal and never produce a fallback result
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrNoNumericColumns = errors.New("no numeric columns in input")
	ErrInvalidHorizon   = errors.New("forecast horizon must be at least one period")
	ErrInvalidTable     = errors.New("invalid time series table")

	// Model errors are recovered into a fallback result by the analyzer
	ErrNoConvergence    = errors.New("no candidate regime model converged")
	ErrDegenerateSeries = errors.New("series has no variation")

	// ErrStageInconsistent reports that one pipeline stage produced output another cannot use;
	// the analyzer recovers it into a fallback result
	ErrStageInconsistent = errors.New("pipeline stages disagree")

	// Diagnostic errors are recorded inline on the affected test
	ErrDiagnosticFailed = errors.New("diagnostic computation failed")

	// Lookup errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: analysis run", ErrNotFound)
)

// NewInsufficientDataError reports how many observations were available
func NewInsufficientDataError(got, need int) error {
	return fmt.Errorf("%w: got %d observations, need at least %d", ErrInsufficientData, got, need)
}

func NewDiagnosticError(test string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrDiagnosticFailed, test, reason)
}

// IsInputError reports whether err is one of the fatal input errors
func IsInputError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrNoNumericColumns) ||
		errors.Is(err, ErrInvalidHorizon) ||
		errors.Is(err, ErrInvalidTable)
}

func IsConvergenceError(err error) bool {
	return errors.Is(err, ErrNoConvergence) || errors.Is(err, ErrDegenerateSeries)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
