package scoring

import (
	"sort"
	"sync"
	"time"
)

// Registration is a unit bound to its category
type Registration struct {
	Category      string
	Unit          Unit
	Discriminator string        // appended to the cache key when the unit is parameterized
	TTL           time.Duration // overrides the runner's default TTL when > 0
}

// Name returns the unit name
func (r Registration) Name() string {
	return r.Unit.Name()
}

// Option customizes a registration
type Option func(*Registration)

// WithDiscriminator separates cache entries of parameterized units
func WithDiscriminator(d string) Option {
	return func(r *Registration) { r.Discriminator = d }
}

// WithTTL overrides the cache TTL for this unit
func WithTTL(ttl time.Duration) Option {
	return func(r *Registration) { r.TTL = ttl }
}

// Registry maps categories to their units. Populated once at startup.
// ⭐ SSOT: 카테고리별 유닛 목록은 이 레지스트리에서만 관리
type Registry struct {
	mu         sync.RWMutex
	categories map[string]bool
	units      map[string][]Registration
	names      map[string]string // unit name -> category
}

// NewRegistry creates a registry accepting the given categories
func NewRegistry(categories []string) *Registry {
	r := &Registry{
		categories: make(map[string]bool, len(categories)),
		units:      make(map[string][]Registration),
		names:      make(map[string]string),
	}
	for _, c := range categories {
		r.categories[c] = true
	}
	return r
}

// RegisterScoringUnit adds unit to category.
// Unknown categories and duplicate unit names return *ConfigurationError.
func (r *Registry) RegisterScoringUnit(category string, unit Unit, opts ...Option) error {
	if unit == nil || unit.Name() == "" {
		return &ConfigurationError{Category: category, Message: "unit must have a name"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.categories[category] {
		return &ConfigurationError{Category: category, Unit: unit.Name(), Message: "unknown category"}
	}
	if owner, ok := r.names[unit.Name()]; ok {
		return &ConfigurationError{Category: category, Unit: unit.Name(), Message: "already registered in " + owner}
	}

	reg := Registration{Category: category, Unit: unit}
	for _, opt := range opts {
		opt(&reg)
	}

	r.units[category] = append(r.units[category], reg)
	r.names[unit.Name()] = category
	return nil
}

// HasCategory reports whether category accepts units
func (r *Registry) HasCategory(category string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories[category]
}

// Units returns category's registrations in registration order
func (r *Registry) Units(category string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Registration(nil), r.units[category]...)
}

// Count returns how many units are registered for category
func (r *Registry) Count(category string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units[category])
}

// Summary returns the sorted unit names of each category
func (r *Registry) Summary() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.units))
	for cat, regs := range r.units {
		names := make([]string, 0, len(regs))
		for _, reg := range regs {
			names = append(names, reg.Name())
		}
		sort.Strings(names)
		out[cat] = names
	}
	return out
}
