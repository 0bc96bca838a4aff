// Package cache is the TTL result cache shared by data providers, unit
// runners and the orchestrator.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Store is a byte-oriented key/value backend with TTL.
// Implementations must be safe for concurrent use.
// A missing or expired key is reported as found=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrCorrupt marks a stored entry that could not be decoded
var ErrCorrupt = errors.New("corrupt cache entry")

// ResultCache serializes values as JSON over a Store
// ⭐ SSOT: 캐시 키 형식은 이 파일의 *Key 함수에서만 생성
type ResultCache struct {
	store Store
}

// New wraps a store
func New(store Store) *ResultCache {
	return &ResultCache{store: store}
}

// GetRaw returns stored bytes exactly as written
func (c *ResultCache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	return c.store.Get(ctx, key)
}

// SetRaw stores bytes verbatim
func (c *ResultCache) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

// Get decodes a JSON value into dest
func (c *ResultCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal %s: %w: %v", key, ErrCorrupt, err)
	}

	return true, nil
}

// Set encodes value as JSON and stores it with ttl
func (c *ResultCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}

	return c.store.Set(ctx, key, data, ttl)
}

// Delete removes a key
func (c *ResultCache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// FetchKey is the raw provider response key: "{kind}:{symbol}"
func FetchKey(kind, symbol string) string {
	return kind + ":" + symbol
}

// UnitKey is the unit result key: "{unit}:{symbol}" or "{unit}:{symbol}:{discriminator}"
func UnitKey(unit, symbol, discriminator string) string {
	if discriminator == "" {
		return unit + ":" + symbol
	}
	return unit + ":" + symbol + ":" + discriminator
}

// AnalysisKey is the full-run key: "analysis:{symbol}:{sorted,comma,joined categories}"
func AnalysisKey(symbol string, categories []string) string {
	sorted := append([]string(nil), categories...)
	sort.Strings(sorted)
	return "analysis:" + symbol + ":" + strings.Join(sorted, ",")
}
