package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// DashboardService Описываем, что нам нужно от слоя данных
type DashboardService interface {
	GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error)
}

type DashboardHandler struct {
	service DashboardService
}

func NewDashboardHandler(s DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetGlobalStats(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
