package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// SampleIngester — вход порогового монитора.
type SampleIngester interface {
	StreamSample(ctx context.Context, systemID, metric string, value float64, ts time.Time) (domain.MonitorResult, error)
}

// SampleReader — чтение истории сэмплов для графиков.
type SampleReader interface {
	RecentSamples(ctx context.Context, systemID, metric string, limit int) ([]domain.MonitoringMetric, error)
}

// SpecManager — управление порогами (SpecSyncer: БД + локальный Tracker + сигнал).
type SpecManager interface {
	Specs(ctx context.Context) ([]domain.ThresholdSpec, error)
	SaveSpec(ctx context.Context, spec domain.ThresholdSpec) error
}

type MonitoringHandler struct {
	ingester SampleIngester
	reader   SampleReader
	specs    SpecManager
}

func NewMonitoringHandler(ingester SampleIngester, reader SampleReader, specs SpecManager) *MonitoringHandler {
	return &MonitoringHandler{ingester: ingester, reader: reader, specs: specs}
}

// Ingest принимает один сэмпл метрики
// POST /v1/systems/{id}/metrics  {"metric": "...", "value": 0.42, "timestamp": "..."}
func (h *MonitoringHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metric    string    `json:"metric"`
		Value     float64   `json:"value"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	res, err := h.ingester.StreamSample(r.Context(), chi.URLParam(r, "id"), req.Metric, req.Value, req.Timestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Samples — последние сэмплы метрики
// GET /v1/systems/{id}/metrics?metric=...&limit=...
func (h *MonitoringHandler) Samples(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		http.Error(w, "metric query param is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	samples, err := h.reader.RecentSamples(r.Context(), chi.URLParam(r, "id"), metric, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// ListSpecs — действующие пороги
// GET /v1/monitoring/specs
func (h *MonitoringHandler) ListSpecs(w http.ResponseWriter, r *http.Request) {
	specs, err := h.specs.Specs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

// UpsertSpec сохраняет порог и рассылает сигнал обновления инстансам
// POST /v1/monitoring/specs
func (h *MonitoringHandler) UpsertSpec(w http.ResponseWriter, r *http.Request) {
	var spec domain.ThresholdSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if spec.Metric == "" {
		http.Error(w, "metric is required", http.StatusBadRequest)
		return
	}
	switch spec.Kind {
	case domain.ThresholdMin, domain.ThresholdMax, domain.ThresholdRange:
	default:
		http.Error(w, "unknown threshold kind", http.StatusBadRequest)
		return
	}

	if err := h.specs.SaveSpec(r.Context(), spec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, spec)
}
