package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/engine"
	"github.com/xela07ax/aigov-engine/internal/history"
	"github.com/xela07ax/aigov-engine/internal/infra/auth"
)

// AssessmentSubmitter — вход оркестратора.
type AssessmentSubmitter interface {
	SubmitAssessment(ctx context.Context, req engine.AssessmentRequest) (*domain.AssessmentResult, error)
}

// AssessmentReader — чтение записей оценок.
type AssessmentReader interface {
	GetAssessment(ctx context.Context, id string) (*domain.AssessmentRecord, error)
	RecentAssessments(ctx context.Context, systemID string, limit int) ([]domain.AssessmentRecord, error)
}

// PrecedentFinder — прецедентный поиск Context Store.
type PrecedentFinder interface {
	RelevantHistory(ctx context.Context, systemID string, cur history.QueryContext, limit int) ([]history.Precedent, error)
}

type AssessmentHandler struct {
	orch       AssessmentSubmitter
	reader     AssessmentReader
	precedents PrecedentFinder
}

func NewAssessmentHandler(orch AssessmentSubmitter, reader AssessmentReader, precedents PrecedentFinder) *AssessmentHandler {
	return &AssessmentHandler{orch: orch, reader: reader, precedents: precedents}
}

// Submit запускает полный цикл оценки
// POST /v1/systems/{id}/assessments
func (h *AssessmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req engine.AssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.SystemID = chi.URLParam(r, "id")
	if req.AssessorID == "" {
		// Actor по умолчанию — аутентифицированный пользователь
		req.AssessorID = auth.UserIDFromContext(r.Context())
	}

	res, err := h.orch.SubmitAssessment(r.Context(), req)
	if err != nil && res == nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if err != nil || !res.AuditPersisted {
		// AssessmentPersistenceError: решение принято, но аудит не
		// зафиксирован — сигнализируем явно, не теряя результат
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Get — одна запись оценки
// GET /v1/assessments/{id}
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reader.GetAssessment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// History — последние оценки системы
// GET /v1/systems/{id}/assessments?limit=...
func (h *AssessmentHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	recs, err := h.reader.RecentAssessments(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// Precedents — релевантные прошлые оценки (recency + похожесть)
// POST /v1/systems/{id}/precedents
func (h *AssessmentHandler) Precedents(w http.ResponseWriter, r *http.Request) {
	var query struct {
		history.QueryContext
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	out, err := h.precedents.RelevantHistory(r.Context(), chi.URLParam(r, "id"), query.QueryContext, query.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
