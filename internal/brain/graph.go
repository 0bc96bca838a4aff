package brain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/zion/internal/analysisconfig"
)

// ErrUnknownCategory is returned when a request names a category that is not configured
var ErrUnknownCategory = errors.New("unknown category")

// ConfigurationError reports an invalid category graph (startup only)
type ConfigurationError struct {
	Message string
	Path    []string // cycle path, when the error is a cycle
}

func (e *ConfigurationError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("category graph: %s: %s", e.Message, strings.Join(e.Path, " -> "))
	}
	return "category graph: " + e.Message
}

// Graph is the validated, immutable category dependency graph
type Graph struct {
	order  []string // declaration order
	byName map[string]analysisconfig.Category
}

// NewGraph validates categories: duplicate names, unknown dependencies and
// cycles are rejected with *ConfigurationError.
func NewGraph(categories []analysisconfig.Category) (*Graph, error) {
	g := &Graph{
		order:  make([]string, 0, len(categories)),
		byName: make(map[string]analysisconfig.Category, len(categories)),
	}

	for _, c := range categories {
		if c.Name == "" {
			return nil, &ConfigurationError{Message: "category with empty name"}
		}
		if _, dup := g.byName[c.Name]; dup {
			return nil, &ConfigurationError{Message: fmt.Sprintf("duplicate category %q", c.Name)}
		}
		g.byName[c.Name] = c
		g.order = append(g.order, c.Name)
	}

	for _, name := range g.order {
		for _, dep := range g.byName[name].Dependencies {
			if _, ok := g.byName[dep]; !ok {
				return nil, &ConfigurationError{Message: fmt.Sprintf("category %q depends on unknown %q", name, dep)}
			}
		}
	}

	// 전체 순회로 순환 검사
	if _, err := g.ResolveOrder(nil); err != nil {
		return nil, err
	}
	return g, nil
}

// ResolveOrder returns the requested categories and their transitive
// dependencies, dependencies first, without duplicates.
// An empty request means every category in declaration order.
func (g *Graph) ResolveOrder(requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = g.order
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.byName))
	order := make([]string, 0, len(g.byName))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			// 스택에서 순환 구간 추출
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), name)
			return &ConfigurationError{Message: "dependency cycle", Path: path}
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range g.byName[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range requested {
		if _, ok := g.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
		}
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Category returns a category's metadata
func (g *Graph) Category(name string) (analysisconfig.Category, bool) {
	c, ok := g.byName[name]
	return c, ok
}

// Names returns every category in declaration order
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Weights returns the base weight of every category
func (g *Graph) Weights() map[string]float64 {
	w := make(map[string]float64, len(g.byName))
	for name, c := range g.byName {
		w[name] = c.Weight
	}
	return w
}
