package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// InsertAssessment сохраняет иммутабельную запись оценки.
// UPDATE по этой таблице не существует принципиально.
func (r *Repo) InsertAssessment(ctx context.Context, rec domain.AssessmentRecord) error {
	dims, _ := json.Marshal(rec.Dimensions)
	breakdown, _ := json.Marshal(rec.Breakdown)
	findings, _ := json.Marshal(rec.Findings)

	query := `
		INSERT INTO assessments
			(id, system_id, assessor_id, kind, dimensions, breakdown,
			 aggregate, status, degraded, findings, mitigation_refs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SystemID, rec.AssessorID, rec.Kind, dims, breakdown,
		rec.Aggregate, rec.Status, rec.Degraded, findings, rec.MitigationRefs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert assessment: %w", err)
	}
	return nil
}

const assessmentColumns = `id, system_id, assessor_id, kind, dimensions, breakdown,
	aggregate, status, degraded, findings, mitigation_refs, created_at`

// RecentAssessments — последние оценки системы, свежие первыми.
// Реализует history.AssessmentSource.
func (r *Repo) RecentAssessments(ctx context.Context, systemID string, limit int) ([]domain.AssessmentRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM assessments WHERE system_id = $1
		ORDER BY created_at DESC LIMIT $2`, assessmentColumns)

	rows, err := r.pool.Query(ctx, query, systemID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent assessments: %w", err)
	}
	defer rows.Close()
	return scanAssessments(rows)
}

// PeerAssessments — последние оценки систем того же класса (прецеденты
// по соседям), исключая саму систему.
func (r *Repo) PeerAssessments(ctx context.Context, systemClass, excludeSystemID string, limit int) ([]domain.AssessmentRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM assessments a
		WHERE a.system_id <> $1
		  AND a.system_id IN (SELECT id FROM ai_systems WHERE system_class = $2)
		ORDER BY a.created_at DESC LIMIT $3`, assessmentColumns)

	rows, err := r.pool.Query(ctx, query, excludeSystemID, systemClass, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: peer assessments: %w", err)
	}
	defer rows.Close()
	return scanAssessments(rows)
}

// GetAssessment возвращает одну запись по ID.
func (r *Repo) GetAssessment(ctx context.Context, id string) (*domain.AssessmentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessments WHERE id = $1`, assessmentColumns)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get assessment: %w", err)
	}
	defer rows.Close()

	recs, err := scanAssessments(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, domain.NewError(domain.ErrKindNotFound, "", fmt.Errorf("postgres: assessment %s not found", id))
	}
	return &recs[0], nil
}

func scanAssessments(rows pgx.Rows) ([]domain.AssessmentRecord, error) {
	results := make([]domain.AssessmentRecord, 0)
	for rows.Next() {
		var rec domain.AssessmentRecord
		var dims, breakdown, findings []byte
		if err := rows.Scan(
			&rec.ID, &rec.SystemID, &rec.AssessorID, &rec.Kind, &dims, &breakdown,
			&rec.Aggregate, &rec.Status, &rec.Degraded, &findings, &rec.MitigationRefs, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan assessment: %w", err)
		}
		if len(dims) > 0 {
			_ = json.Unmarshal(dims, &rec.Dimensions)
		}
		if len(breakdown) > 0 {
			_ = json.Unmarshal(breakdown, &rec.Breakdown)
		}
		if len(findings) > 0 {
			_ = json.Unmarshal(findings, &rec.Findings)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
