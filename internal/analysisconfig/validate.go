package analysisconfig

import (
	"fmt"
	"time"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

func applyDefaults(cfg *Config) {
	r := &cfg.Resilience
	if r.BaseDelay == 0 {
		r.BaseDelay = 500 * time.Millisecond
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 10 * time.Second
	}
	if r.AttemptTimeout == 0 {
		r.AttemptTimeout = 10 * time.Second
	}
	if r.CategoryRetries == 0 {
		r.CategoryRetries = 3
	}
	if r.CategoryRetryDelay == 0 {
		r.CategoryRetryDelay = time.Second
	}

	if cfg.Policies == nil {
		cfg.Policies = map[string]Policy{}
	}
	if _, ok := cfg.Policies["default"]; !ok {
		cfg.Policies["default"] = Policy{FailureThreshold: 3, RecoveryTimeoutSeconds: 300}
	}

	if cfg.Cache.UnitTTLSeconds == 0 {
		cfg.Cache.UnitTTLSeconds = 3600
	}
	if cfg.Cache.AnalysisTTLSeconds == 0 {
		cfg.Cache.AnalysisTTLSeconds = 900
	}

	if cfg.Verdict == (Verdict{}) {
		cfg.Verdict = Verdict{StrongBuy: 0.7, Buy: 0.5, Hold: 0.3}
	}
}

// Validate checks all required constraints, including the category graph shape.
// Cycles are reported here so a bad file never reaches request time.
func Validate(cfg *Config) error {
	// === Resilience ===
	r := cfg.Resilience
	if r.MaxRetries < 0 {
		return ValidationError{"resilience.max_retries", "must be >= 0"}
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return ValidationError{"resilience", "delays must be >= 0"}
	}
	if r.MaxDelay < r.BaseDelay {
		return ValidationError{"resilience.max_delay", "must be >= base_delay"}
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return ValidationError{"resilience.jitter", "must be in range [0, 1]"}
	}
	if r.AttemptTimeout <= 0 {
		return ValidationError{"resilience.attempt_timeout", "must be > 0"}
	}
	if r.CategoryRetries < 1 {
		return ValidationError{"resilience.category_retries", "must be >= 1"}
	}

	// === Policies / Providers ===
	for name, p := range cfg.Policies {
		if p.FailureThreshold < 1 {
			return ValidationError{fmt.Sprintf("policies.%s.failure_threshold", name), "must be >= 1"}
		}
		if p.RecoveryTimeoutSeconds < 1 {
			return ValidationError{fmt.Sprintf("policies.%s.recovery_timeout_seconds", name), "must be >= 1"}
		}
	}
	for name, p := range cfg.Providers {
		if p.Policy != "" {
			if _, ok := cfg.Policies[p.Policy]; !ok {
				return ValidationError{fmt.Sprintf("providers.%s.policy", name), fmt.Sprintf("unknown policy %q", p.Policy)}
			}
		}
		if p.FailureThreshold < 0 || p.RecoveryTimeoutSeconds < 0 {
			return ValidationError{fmt.Sprintf("providers.%s", name), "overrides must be >= 0"}
		}
	}

	// === Kinds ===
	for name, k := range cfg.Kinds {
		if k.TTLSeconds < 0 {
			return ValidationError{fmt.Sprintf("kinds.%s.ttl_seconds", name), "must be >= 0"}
		}
		seen := map[string]bool{}
		for _, src := range k.Sources {
			if seen[src] {
				return ValidationError{fmt.Sprintf("kinds.%s.sources", name), fmt.Sprintf("duplicate source %q", src)}
			}
			seen[src] = true
		}
	}

	// === Categories ===
	if len(cfg.Categories) == 0 {
		return ValidationError{"categories", "required"}
	}
	index := make(map[string]Category, len(cfg.Categories))
	for i, cat := range cfg.Categories {
		if cat.Name == "" {
			return ValidationError{fmt.Sprintf("categories[%d].name", i), "required"}
		}
		if _, dup := index[cat.Name]; dup {
			return ValidationError{fmt.Sprintf("categories[%d].name", i), fmt.Sprintf("duplicate category %q", cat.Name)}
		}
		if cat.Weight < 0 {
			return ValidationError{fmt.Sprintf("categories.%s.weight", cat.Name), "must be >= 0"}
		}
		index[cat.Name] = cat
	}
	for _, cat := range cfg.Categories {
		for _, dep := range cat.Dependencies {
			if _, ok := index[dep]; !ok {
				return ValidationError{fmt.Sprintf("categories.%s.dependencies", cat.Name), fmt.Sprintf("unknown category %q", dep)}
			}
		}
	}
	if cycle := findCycle(cfg.Categories, index); cycle != nil {
		return ValidationError{"categories", fmt.Sprintf("dependency cycle: %v", cycle)}
	}

	// === Verdict ===
	v := cfg.Verdict
	if !(v.StrongBuy > v.Buy && v.Buy > v.Hold && v.Hold >= 0 && v.StrongBuy <= 1) {
		return ValidationError{"verdict", "thresholds must satisfy 1 >= strong_buy > buy > hold >= 0"}
	}

	// === Regime ===
	if cfg.Regime.Enabled {
		if _, ok := index[cfg.Regime.Category]; !ok {
			return ValidationError{"regime.category", fmt.Sprintf("unknown category %q", cfg.Regime.Category)}
		}
		if cfg.Regime.Unit == "" {
			return ValidationError{"regime.unit", "required when regime is enabled"}
		}
		for field, weights := range map[string]map[string]float64{
			"regime.high_volatility": cfg.Regime.HighVolatility,
			"regime.low_volatility":  cfg.Regime.LowVolatility,
		} {
			for name, w := range weights {
				if _, ok := index[name]; !ok {
					return ValidationError{field, fmt.Sprintf("unknown category %q", name)}
				}
				if w < 0 {
					return ValidationError{field + "." + name, "must be >= 0"}
				}
			}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	total := 0.0
	for _, cat := range cfg.Categories {
		total += cat.Weight
	}
	if total > 1.0+1e-9 {
		warnings = append(warnings, Warning{
			Code:    "WEIGHTS_OVER_ONE",
			Message: fmt.Sprintf("category weights sum to %.4f (> 1.0)", total),
		})
	}

	for name, k := range cfg.Kinds {
		if len(k.Sources) == 0 {
			warnings = append(warnings, Warning{
				Code:    "KIND_WITHOUT_SOURCES",
				Message: fmt.Sprintf("kind %q lists no sources; registration order will be used", name),
			})
		}
	}

	if cfg.Resilience.AttemptTimeout > 30*time.Second {
		warnings = append(warnings, Warning{
			Code:    "LONG_ATTEMPT_TIMEOUT",
			Message: "attempt_timeout > 30s: a hung source can stall a whole category",
		})
	}

	return warnings
}

// findCycle returns the names forming a dependency cycle, or nil
func findCycle(categories []Category, index map[string]Category) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(categories))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = grey
		stack = append(stack, name)
		for _, dep := range index[name].Dependencies {
			switch color[dep] {
			case grey:
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, cat := range categories {
		if color[cat.Name] == white && visit(cat.Name) {
			return cycle
		}
	}
	return nil
}
