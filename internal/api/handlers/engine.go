package handlers

import (
	"net/http"

	"github.com/wonny/zion/internal/brain"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/internal/scheduler"
	"github.com/wonny/zion/internal/scoring"
	"github.com/wonny/zion/pkg/logger"
)

// CategoryInfo describes one configured category
type CategoryInfo struct {
	Name         string   `json:"name"`
	Weight       float64  `json:"weight"`
	Required     bool     `json:"required"`
	Dependencies []string `json:"dependencies"`
	Description  string   `json:"description,omitempty"`
	Units        []string `json:"units"`
}

// EngineHandler exposes engine state: categories, units, breakers and jobs
type EngineHandler struct {
	graph      *brain.Graph
	registry   *scoring.Registry
	breakers   *resilience.Breakers
	scheduler  *scheduler.Scheduler
	configHash string
	logger     *logger.Logger
}

// NewEngineHandler creates a new engine handler. sched may be nil.
func NewEngineHandler(
	graph *brain.Graph,
	registry *scoring.Registry,
	breakers *resilience.Breakers,
	sched *scheduler.Scheduler,
	configHash string,
	log *logger.Logger,
) *EngineHandler {
	return &EngineHandler{
		graph:      graph,
		registry:   registry,
		breakers:   breakers,
		scheduler:  sched,
		configHash: configHash,
		logger:     log,
	}
}

// GetCategories returns categories in execution order with their units
// GET /api/categories
func (h *EngineHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	order, err := h.graph.ResolveOrder(nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve category order")
		respondError(w, http.StatusInternalServerError, "Failed to resolve category order")
		return
	}

	units := h.registry.Summary()
	out := make([]CategoryInfo, 0, len(order))
	for _, name := range order {
		c, _ := h.graph.Category(name)
		info := CategoryInfo{
			Name:         c.Name,
			Weight:       c.Weight,
			Required:     c.Required,
			Dependencies: c.Dependencies,
			Description:  c.Description,
			Units:        units[name],
		}
		if info.Dependencies == nil {
			info.Dependencies = []string{}
		}
		if info.Units == nil {
			info.Units = []string{}
		}
		out = append(out, info)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"config_hash": h.configHash,
		"categories":  out,
	})
}

// GetBreakers returns the state of every data source breaker
// GET /api/breakers
func (h *EngineHandler) GetBreakers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": h.breakers.Snapshots(),
	})
}

// GetJobs returns scheduler statistics
// GET /api/jobs
func (h *EngineHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": map[string]scheduler.JobStats{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.scheduler.GetJobStats(),
	})
}
