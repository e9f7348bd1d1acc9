package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError маппит таксономию GovernanceError в HTTP-статусы.
// Внутренние детали наружу не уходят, только kind и сообщение.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.ErrKindValidation, domain.ErrKindInvalidScore, domain.ErrKindInsufficientData:
		status = http.StatusBadRequest
	case domain.ErrKindNotFound:
		status = http.StatusNotFound
	case domain.ErrKindConcurrentAppend:
		status = http.StatusConflict
	case domain.ErrKindIntegrity:
		status = http.StatusLocked
	}

	body := map[string]string{"error": err.Error()}
	if kind != "" {
		body["kind"] = string(kind)
	}
	writeJSON(w, status, body)
}
