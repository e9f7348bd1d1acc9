package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/infra"
)

// MetricStore — долговременное хранилище сэмплов (читают дашборды).
type MetricStore interface {
	InsertSample(ctx context.Context, m domain.MonitoringMetric) error
}

// AlertCounter — срез метрик Prometheus, нужный монитору.
type AlertCounter interface {
	IncAlert(systemID, metric, class string)
}

// Service — обвязка Tracker'а: классифицирует сэмпл, персистит его,
// а при алерте транслирует сигнал в Redis и фиксирует решение
// в цепочке аудита.
type Service struct {
	tracker *Tracker
	ledger  *audit.Ledger
	store   MetricStore
	rdb     *redis.Client
	counter AlertCounter
	logger  *zap.Logger

	appendAttempts int
}

func NewService(tracker *Tracker, ledger *audit.Ledger, store MetricStore, rdb *redis.Client, counter AlertCounter, appendAttempts int, logger *zap.Logger) *Service {
	if appendAttempts <= 0 {
		appendAttempts = 3
	}
	return &Service{
		tracker:        tracker,
		ledger:         ledger,
		store:          store,
		rdb:            rdb,
		counter:        counter,
		logger:         logger.Named("monitor"),
		appendAttempts: appendAttempts,
	}
}

// StreamSample — вход streamMonitoringSample. Каждый вызов самодостаточен:
// отмена между циклами сэмплирования не оставляет частичного состояния.
func (s *Service) StreamSample(ctx context.Context, systemID, metric string, value float64, ts time.Time) (domain.MonitorResult, error) {
	if systemID == "" || metric == "" {
		return domain.MonitorResult{}, domain.NewError(domain.ErrKindValidation, systemID,
			fmt.Errorf("monitor: system id and metric are required"))
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, alert, err := s.tracker.Observe(systemID, metric, value, ts)
	if err != nil {
		return domain.MonitorResult{}, err
	}

	// Персистентность сэмпла — best effort: отказ БД не ломает классификацию
	if s.store != nil {
		sample := domain.MonitoringMetric{
			SystemID:       systemID,
			Metric:         metric,
			Value:          value,
			Classification: res.Classification,
			Timestamp:      ts,
		}
		if err := s.store.InsertSample(ctx, sample); err != nil {
			s.logger.Warn("metric sample not persisted",
				zap.String("system_id", systemID),
				zap.String("metric", metric),
				zap.Error(err))
		}
	}

	if alert != nil {
		s.emitAlert(ctx, *alert)
	}
	return res, nil
}

// emitAlert: Redis broadcast + событие аудита + метрика.
func (s *Service) emitAlert(ctx context.Context, alert domain.Alert) {
	s.logger.Warn("THRESHOLD ALERT",
		zap.String("system_id", alert.SystemID),
		zap.String("metric", alert.Metric),
		zap.Float64("value", alert.Value),
		zap.String("class", string(alert.Classification)))

	if s.counter != nil {
		s.counter.IncAlert(alert.SystemID, alert.Metric, string(alert.Classification))
	}

	// 1. Реал-тайм сигнал подписчикам (дашборды, внешние нотификаторы)
	if s.rdb != nil {
		payload, _ := json.Marshal(alert)
		if err := s.rdb.Publish(ctx, infra.RedisChanAlerts, payload).Err(); err != nil {
			// Подписчики узнают из аудита; сигнал не критичен
			s.logger.Warn("alert signal delivery failed", zap.Error(err))
		}
	}

	// 2. Фиксация решения в цепочке (с ретраями по optimistic check)
	ev := audit.Event{
		SystemID: alert.SystemID,
		Kind:     audit.EventAlertRaised,
		Actor:    "threshold-monitor",
		Payload: map[string]interface{}{
			"alert_id":       alert.ID,
			"metric":         alert.Metric,
			"value":          alert.Value,
			"classification": string(alert.Classification),
			"previous":       string(alert.Previous),
		},
		Timestamp: alert.RaisedAt,
	}

	for attempt := 0; attempt < s.appendAttempts; attempt++ {
		tail, _ := s.ledger.Tail(alert.SystemID)
		if _, err := s.ledger.Append(ev, tail); err != nil {
			if domain.IsKind(err, domain.ErrKindConcurrentAppend) {
				continue // хвост ушел — перечитываем и повторяем
			}
			s.logger.Error("alert not recorded in audit chain", zap.Error(err))
			return
		}
		return
	}
	s.logger.Error("alert append retries exhausted",
		zap.String("system_id", alert.SystemID), zap.Int("attempts", s.appendAttempts))
}
