package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// BindingProvider — управление байндингами рамок.
type BindingProvider interface {
	BindingsForSystem(ctx context.Context, systemID string) ([]domain.PolicyBinding, error)
	UpsertBinding(ctx context.Context, b domain.PolicyBinding) error
	DeleteBinding(ctx context.Context, id string) error
}

type BindingHandler struct {
	repo BindingProvider
}

func NewBindingHandler(repo BindingProvider) *BindingHandler {
	return &BindingHandler{repo: repo}
}

// List — байндинги системы (включая классовые "*")
// GET /v1/systems/{id}/bindings
func (h *BindingHandler) List(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.repo.BindingsForSystem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bindings)
}

// Upsert создает или обновляет байндинг
// POST /v1/systems/{id}/bindings
func (h *BindingHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var b domain.PolicyBinding
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	b.SystemID = chi.URLParam(r, "id")
	if b.FrameworkID == "" {
		http.Error(w, "framework_id is required", http.StatusBadRequest)
		return
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	if err := h.repo.UpsertBinding(r.Context(), b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Delete удаляет байндинг
// DELETE /v1/bindings/{bindingID}
func (h *BindingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteBinding(r.Context(), chi.URLParam(r, "bindingID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
