package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// SystemProvider — срез репозитория систем для консоли.
type SystemProvider interface {
	GetSystem(ctx context.Context, id string) (*domain.AISystem, error)
	ListSystems(ctx context.Context, limit, offset int) ([]domain.AISystem, error)
	UpsertSystem(ctx context.Context, s *domain.AISystem) error
}

type SystemHandler struct {
	repo SystemProvider
}

func NewSystemHandler(repo SystemProvider) *SystemHandler {
	return &SystemHandler{repo: repo}
}

// List возвращает реестр систем
// GET /v1/systems?limit=...&offset=...
func (h *SystemHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	systems, err := h.repo.ListSystems(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, systems)
}

// Get — паспорт системы с текущим статусом
// GET /v1/systems/{id}
func (h *SystemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	system, err := h.repo.GetSystem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, system)
}

// Status — компактная сводка текущего соответствия
// GET /v1/systems/{id}/status
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	system, err := h.repo.GetSystem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregate_score":    system.CurrentScore,
		"status":             system.CurrentStatus,
		"last_assessment_at": system.LastAssessmentAt,
	})
}

// Register регистрирует систему или обновляет паспортные поля.
// Статус и скор через этот вход не меняются.
// POST /v1/systems
func (h *SystemHandler) Register(w http.ResponseWriter, r *http.Request) {
	var s domain.AISystem
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.ID == "" || s.Name == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpsertSystem(r.Context(), &s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": s.ID, "status": "registered"})
}
