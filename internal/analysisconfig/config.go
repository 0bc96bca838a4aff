package analysisconfig

import (
	"time"
)

// Config is the static analysis configuration: categories, data source
// ordering, resilience policies and aggregation thresholds.
// Loaded once at startup, read-only afterwards.
type Config struct {
	Resilience  Resilience          `yaml:"resilience" json:"resilience"`
	Policies    map[string]Policy   `yaml:"policies" json:"policies"`
	Providers   map[string]Provider `yaml:"providers" json:"providers"`
	Kinds       map[string]Kind     `yaml:"kinds" json:"kinds"`
	Cache       Cache               `yaml:"cache" json:"cache"`
	Categories  []Category          `yaml:"categories" json:"categories"`
	Verdict     Verdict             `yaml:"verdict" json:"verdict"`
	Regime      Regime              `yaml:"regime" json:"regime"`
	Concurrency Concurrency         `yaml:"concurrency" json:"concurrency"`
}

// Resilience holds the global retry settings
type Resilience struct {
	MaxRetries         int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay          time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter             float64       `yaml:"jitter" json:"jitter"` // 0 ~ 1, fraction of the delay
	AttemptTimeout     time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`
	CategoryRetries    int           `yaml:"category_retries" json:"category_retries"` // total attempts per category
	CategoryRetryDelay time.Duration `yaml:"category_retry_delay" json:"category_retry_delay"`
}

// Policy is a named, reusable circuit breaker setting
type Policy struct {
	FailureThreshold       int `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds" json:"recovery_timeout_seconds"`
}

// RecoveryTimeout returns the recovery timeout as a duration
func (p Policy) RecoveryTimeout() time.Duration {
	return time.Duration(p.RecoveryTimeoutSeconds) * time.Second
}

// Provider binds a data source to a policy; explicit fields override it
type Provider struct {
	Policy                 string `yaml:"policy" json:"policy"`
	FailureThreshold       int    `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`
	RecoveryTimeoutSeconds int    `yaml:"recovery_timeout_seconds,omitempty" json:"recovery_timeout_seconds,omitempty"`
}

// Kind is a logical datum (price, eps, ...) with its cache TTL and source order
type Kind struct {
	TTLSeconds int      `yaml:"ttl_seconds" json:"ttl_seconds"`
	Sources    []string `yaml:"sources" json:"sources"`
}

// TTL returns the cache TTL of the kind
func (k Kind) TTL() time.Duration {
	return time.Duration(k.TTLSeconds) * time.Second
}

// Cache holds TTLs for computed results
type Cache struct {
	UnitTTLSeconds     int `yaml:"unit_ttl_seconds" json:"unit_ttl_seconds"`
	AnalysisTTLSeconds int `yaml:"analysis_ttl_seconds" json:"analysis_ttl_seconds"`
}

// UnitTTL returns the default unit result TTL
func (c Cache) UnitTTL() time.Duration {
	return time.Duration(c.UnitTTLSeconds) * time.Second
}

// AnalysisTTL returns the full-run result TTL
func (c Cache) AnalysisTTL() time.Duration {
	return time.Duration(c.AnalysisTTLSeconds) * time.Second
}

// Category is the static metadata of a group of scoring units
type Category struct {
	Name         string   `yaml:"name" json:"name"`
	Weight       float64  `yaml:"weight" json:"weight"`
	Required     bool     `yaml:"required" json:"required"`
	Dependencies []string `yaml:"dependencies" json:"dependencies"`
	Description  string   `yaml:"description" json:"description"`
}

// Verdict holds the composite score thresholds (strictly greater than)
type Verdict struct {
	StrongBuy float64 `yaml:"strong_buy" json:"strong_buy"`
	Buy       float64 `yaml:"buy" json:"buy"`
	Hold      float64 `yaml:"hold" json:"hold"`
}

// Regime configures market-regime weight adjustment
type Regime struct {
	Enabled        bool               `yaml:"enabled" json:"enabled"`
	Category       string             `yaml:"category" json:"category"`
	Unit           string             `yaml:"unit" json:"unit"`
	Threshold      float64            `yaml:"threshold" json:"threshold"`
	HighVolatility map[string]float64 `yaml:"high_volatility" json:"high_volatility"`
	LowVolatility  map[string]float64 `yaml:"low_volatility" json:"low_volatility"`
}

// Concurrency limits fan-out inside a category (0 = unlimited)
type Concurrency struct {
	MaxUnitsPerCategory int `yaml:"max_units_per_category" json:"max_units_per_category"`
}

// BreakerPolicy resolves the effective breaker settings of a provider.
// Unknown providers get the "default" policy.
func (c *Config) BreakerPolicy(provider string) Policy {
	p, ok := c.Providers[provider]
	base := c.Policies["default"]
	if ok && p.Policy != "" {
		if named, found := c.Policies[p.Policy]; found {
			base = named
		}
	}
	if ok && p.FailureThreshold > 0 {
		base.FailureThreshold = p.FailureThreshold
	}
	if ok && p.RecoveryTimeoutSeconds > 0 {
		base.RecoveryTimeoutSeconds = p.RecoveryTimeoutSeconds
	}
	return base
}

// Weights returns the base category weights
func (c *Config) Weights() map[string]float64 {
	w := make(map[string]float64, len(c.Categories))
	for _, cat := range c.Categories {
		w[cat.Name] = cat.Weight
	}
	return w
}

// CategoryNames returns category names in declaration order
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		names = append(names, cat.Name)
	}
	return names
}
