package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aigov-engine/internal/engine"
	"github.com/xela07ax/aigov-engine/internal/infra/auth"
	"github.com/xela07ax/aigov-engine/internal/risk"
)

// ChangeHandler принимает уведомления об изменениях систем и запускает
// внеплановую оценку, когда триаж решает, что она нужна.
type ChangeHandler struct {
	systems  SystemProvider
	analyzer *risk.Analyzer
	orch     AssessmentSubmitter
}

func NewChangeHandler(systems SystemProvider, analyzer *risk.Analyzer, orch AssessmentSubmitter) *ChangeHandler {
	return &ChangeHandler{systems: systems, analyzer: analyzer, orch: orch}
}

// Notify — вход для CI/CD и инцидент-менеджмента
// POST /v1/systems/{id}/changes
func (h *ChangeHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var ev risk.ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ev.SystemID = chi.URLParam(r, "id")

	system, err := h.systems.GetSystem(r.Context(), ev.SystemID)
	if err != nil {
		writeError(w, err)
		return
	}

	kind, required := h.analyzer.Triage(system, ev)
	if !required {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"assessment_triggered": false,
		})
		return
	}

	res, err := h.orch.SubmitAssessment(r.Context(), engine.AssessmentRequest{
		SystemID:   ev.SystemID,
		AssessorID: auth.UserIDFromContext(r.Context()),
		Kind:       kind,
	})
	if err != nil && res == nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if err != nil || !res.AuditPersisted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]interface{}{
		"assessment_triggered": true,
		"kind":                 kind,
		"result":               res,
	})
}
