package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// InsertSample сохраняет один классифицированный сэмпл метрики.
// Реализует monitor.MetricStore.
func (r *Repo) InsertSample(ctx context.Context, m domain.MonitoringMetric) error {
	query := `
		INSERT INTO metric_samples (id, system_id, metric, value, classification, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		uuid.New().String(), m.SystemID, m.Metric, m.Value, m.Classification, m.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: insert metric sample: %w", err)
	}
	return nil
}

// CountAlertsSince считает события alert_raised в цепочках с указанного
// момента (для дашборда).
func (r *Repo) CountAlertsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE kind = 'alert_raised' AND timestamp > $1`,
		since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count alerts: %w", err)
	}
	return count, nil
}

// ListThresholdSpecs — холодная загрузка всех порогов для SpecSyncer.
func (r *Repo) ListThresholdSpecs(ctx context.Context) ([]domain.ThresholdSpec, error) {
	query := `
		SELECT metric, kind, min_value, max_value, warning_margin, critical_margin
		FROM threshold_specs`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list threshold specs: %w", err)
	}
	defer rows.Close()

	var results []domain.ThresholdSpec
	for rows.Next() {
		var s domain.ThresholdSpec
		if err := rows.Scan(&s.Metric, &s.Kind, &s.Min, &s.Max, &s.WarningMargin, &s.CriticalMargin); err != nil {
			return nil, fmt.Errorf("postgres: scan threshold spec: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// UpsertThresholdSpec сохраняет порог; сигнал обновления публикует консоль.
func (r *Repo) UpsertThresholdSpec(ctx context.Context, s domain.ThresholdSpec) error {
	query := `
		INSERT INTO threshold_specs (metric, kind, min_value, max_value, warning_margin, critical_margin)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (metric) DO UPDATE SET
			kind = EXCLUDED.kind,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			warning_margin = EXCLUDED.warning_margin,
			critical_margin = EXCLUDED.critical_margin`

	if _, err := r.pool.Exec(ctx, query,
		s.Metric, s.Kind, s.Min, s.Max, s.WarningMargin, s.CriticalMargin); err != nil {
		return fmt.Errorf("postgres: upsert threshold spec: %w", err)
	}
	return nil
}

// RecentSamples — последние сэмплы метрики для графиков консоли.
func (r *Repo) RecentSamples(ctx context.Context, systemID, metric string, limit int) ([]domain.MonitoringMetric, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `
		SELECT system_id, metric, value, classification, timestamp
		FROM metric_samples
		WHERE system_id = $1 AND metric = $2
		ORDER BY timestamp DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, systemID, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent samples: %w", err)
	}
	defer rows.Close()

	results := make([]domain.MonitoringMetric, 0)
	for rows.Next() {
		var m domain.MonitoringMetric
		if err := rows.Scan(&m.SystemID, &m.Metric, &m.Value, &m.Classification, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan sample: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
