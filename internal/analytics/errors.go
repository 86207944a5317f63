package analytics

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the price store holds no history for a ticker.
var ErrNotFound = errors.New("analytics: series not found")

// InsufficientDataError reports a series too short for the requested
// statistic, naming the series and the deficit.
type InsufficientDataError struct {
	Series string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d observations, need %d", e.Series, e.Have, e.Need)
}

// NotAvailableError signals that no cached value exists and synchronous
// computation is disallowed; the caller must request force=true.
type NotAvailableError struct {
	Key string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("no cached result for %s and background-only mode is active; retry with force=true", e.Key)
}

// NonConvergenceError reports a root-finder that exceeded its iteration cap.
type NonConvergenceError struct {
	Iterations   int
	LastEstimate float64
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("irr solver did not converge after %d iterations (last estimate %.6f)", e.Iterations, e.LastEstimate)
}

// InvalidInputError reports a malformed request parameter.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderFailureError wraps an upstream price-data failure without masking it.
type ProviderFailureError struct {
	Ticker string
	Err    error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("price provider failed for %s: %v", e.Ticker, e.Err)
}

func (e *ProviderFailureError) Unwrap() error { return e.Err }
