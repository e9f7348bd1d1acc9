package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aigov-engine/internal/console/service"
	"github.com/xela07ax/aigov-engine/internal/infra/auth"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// Export возвращает события цепочки системы за интервал
// GET /v1/systems/{id}/audit?from=RFC3339&to=RFC3339
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		to = t
	}

	events := h.service.Export(chi.URLParam(r, "id"), from, to)
	writeJSON(w, http.StatusOK, events)
}

// Verify пересчитывает целостность цепочки
// POST /v1/systems/{id}/audit/verify
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	status := h.service.Verify(r.Context(), chi.URLParam(r, "id"))
	code := http.StatusOK
	if !status.Verify.Valid {
		// Цепочка скомпрометирована и заморожена
		code = http.StatusConflict
	}
	writeJSON(w, code, status)
}

// Reanchor — операторское открытие нового сегмента после нарушения
// POST /v1/systems/{id}/audit/reanchor  {"reason": "..."}
func (h *AuditHandler) Reanchor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	operator := auth.UserIDFromContext(r.Context())
	ev, err := h.service.Reanchor(r.Context(), chi.URLParam(r, "id"), operator, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// Status — состояние всех цепочек (заморозки, длины)
// GET /v1/audit/chains
func (h *AuditHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}
