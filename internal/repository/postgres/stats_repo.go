package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// GetGlobalStats собирает агрегаты для дашборда консоли.
func (r *Repo) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	stats := &domain.GlobalStats{StatusBreakdown: make(map[string]int64)}

	// 1. Разбивка систем по статусам
	rows, err := r.pool.Query(ctx,
		`SELECT current_status, COUNT(*) FROM ai_systems GROUP BY current_status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: status breakdown: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan breakdown: %w", err)
		}
		stats.StatusBreakdown[status] = count
		stats.TotalSystems += count
		if status == string(domain.StatusNonCompliant) {
			stats.NonCompliant = count
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 2. Оценки: количество и средний агрегат
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(aggregate), 0) FROM assessments`).
		Scan(&stats.TotalAssessments, &stats.AvgScore)
	if err != nil {
		return nil, fmt.Errorf("postgres: assessment stats: %w", err)
	}

	// 3. Алерты порогового монитора за последний час
	stats.AlertsLastHour, err = r.CountAlertsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		return nil, err
	}

	// 4. Активность по часам за сутки (для графика)
	rows, err = r.pool.Query(ctx, `
		SELECT to_char(date_trunc('hour', created_at), 'HH24:00'), COUNT(*)
		FROM assessments
		WHERE created_at > NOW() - INTERVAL '24 hours'
		GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("postgres: hourly activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.ActivityPoint
		if err := rows.Scan(&p.Hour, &p.Count); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		stats.HourlyActivity = append(stats.HourlyActivity, p)
	}
	return stats, rows.Err()
}
