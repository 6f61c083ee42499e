package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/models"
	"github.com/hooinvest/deposit-engine/internal/repository"
)

// PlanHandler serves the investment plan catalog.
type PlanHandler struct {
	queries *repository.Queries
}

func NewPlanHandler(queries *repository.Queries) *PlanHandler {
	return &PlanHandler{queries: queries}
}

type planResponse struct {
	models.Plan
	MinValue string `json:"min_value"`
}

// ListPlans handles GET /v1/plans
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.queries.ListActivePlans(r.Context())
	if err != nil {
		zap.L().Error("list plans failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "plan/list-failed", "Failed to list plans")
		return
	}

	items := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		items = append(items, planResponse{Plan: p, MinValue: domain.FormatAmount(p.MinValueCents)})
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
