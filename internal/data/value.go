package data

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wonny/zion/internal/resilience"
)

// Value is a fetched datum in its cached (JSON) form
type Value struct {
	raw    json.RawMessage
	Source string // source that produced it, "cache" on a hit
}

// NewValue wraps JSON bytes
func NewValue(raw []byte, source string) Value {
	return Value{raw: raw, Source: source}
}

// Raw returns the JSON bytes
func (v Value) Raw() json.RawMessage {
	return v.raw
}

// Decode unmarshals the value into dest
func (v Value) Decode(dest interface{}) error {
	if err := json.Unmarshal(v.raw, dest); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}

// Float64 reads a numeric value; numeric strings are accepted
func (v Value) Float64() (float64, error) {
	var f float64
	if err := json.Unmarshal(v.raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(v.raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
	}

	return 0, fmt.Errorf("value %s is not numeric: %w", string(v.raw), resilience.ErrNonRetryable)
}

// Float64s reads a numeric series
func (v Value) Float64s() ([]float64, error) {
	var out []float64
	if err := json.Unmarshal(v.raw, &out); err != nil {
		return nil, fmt.Errorf("value is not a numeric series: %w", err)
	}
	return out, nil
}
