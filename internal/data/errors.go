package data

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDataAvailable: every source for a kind was exhausted or skipped
	ErrNoDataAvailable = errors.New("no data available")

	// ErrProviderUnavailable: one source failed after retries (non-fatal, triggers fallback)
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCircuitOpen: the source was skipped because its breaker is open
	ErrCircuitOpen = errors.New("circuit open")

	// ErrEmptyResponse: a source returned no error but no usable value (nil, null or empty)
	ErrEmptyResponse = errors.New("empty response")
)

// SourceError records what happened to one source during a fetch
type SourceError struct {
	Source string
	Kind   string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is makes every SourceError match ErrProviderUnavailable
func (e *SourceError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// NoDataError is returned by Fetch when the fallback chain is exhausted
type NoDataError struct {
	Kind     string
	Symbol   string
	Failures []*SourceError
}

func (e *NoDataError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no data available for %s:%s (no sources registered)", e.Kind, e.Symbol)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("no data available for %s:%s (%s)", e.Kind, e.Symbol, strings.Join(parts, "; "))
}

// Is makes NoDataError match ErrNoDataAvailable
func (e *NoDataError) Is(target error) bool {
	return target == ErrNoDataAvailable
}

// IsNoData reports whether err means "every source was exhausted"
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoDataAvailable)
}
