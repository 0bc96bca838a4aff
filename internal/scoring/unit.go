// Package scoring defines the scoring unit contract, the per-category unit
// registry and the runner that invokes units with caching and failure isolation.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/zion/internal/contracts"
)

// Prior holds results of categories that already ran, keyed by category name.
// Read-only for units.
type Prior map[string][]contracts.UnitResult

// Find returns the first result of unit within category
func (p Prior) Find(category, unit string) (contracts.UnitResult, bool) {
	for _, r := range p[category] {
		if r.AgentName == unit {
			return r, true
		}
	}
	return contracts.UnitResult{}, false
}

// Unit is one scoring agent. Score must be safe to call concurrently with other units.
// Returning an error is allowed; the runner normalizes it into an error result.
type Unit interface {
	Name() string
	Score(ctx context.Context, symbol string, prior Prior) (contracts.UnitResult, error)
}

// ScoreFunc is the signature of a unit's scoring function
type ScoreFunc func(ctx context.Context, symbol string, prior Prior) (contracts.UnitResult, error)

type funcUnit struct {
	name string
	fn   ScoreFunc
}

func (u funcUnit) Name() string { return u.name }

func (u funcUnit) Score(ctx context.Context, symbol string, prior Prior) (contracts.UnitResult, error) {
	return u.fn(ctx, symbol, prior)
}

// UnitFunc adapts a plain function to Unit
func UnitFunc(name string, fn ScoreFunc) Unit {
	return funcUnit{name: name, fn: fn}
}

// ErrInvalidInput marks a unit rejecting its input (bad symbol, unusable data)
var ErrInvalidInput = errors.New("invalid input")

// InvalidInput wraps a message as an invalid-input error
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ConfigurationError reports a registration mistake detected at startup
type ConfigurationError struct {
	Category string
	Unit     string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("scoring config: category %s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("scoring config: %s/%s: %s", e.Category, e.Unit, e.Message)
}
