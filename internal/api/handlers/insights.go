package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripfare/internal/core"
	"tripfare/internal/insights"
	"tripfare/internal/types"
)

// InsightsHandler serves the dataset report computed at startup.
type InsightsHandler struct {
	report *insights.Report
}

// NewInsightsHandler creates an InsightsHandler. A nil report answers 503.
func NewInsightsHandler(report *insights.Report) *InsightsHandler {
	return &InsightsHandler{report: report}
}

// RegisterRoutes mounts GET /dataset/insights.
func (h *InsightsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dataset/insights", h.Get)
}

// Get handles GET /v1/dataset/insights.
func (h *InsightsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.report == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeServiceNotReady, "dataset insights are not available", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, h.report)
}
