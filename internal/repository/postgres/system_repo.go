package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// GetSystem возвращает систему по ID. Отсутствие — типизированный not_found.
func (r *Repo) GetSystem(ctx context.Context, id string) (*domain.AISystem, error) {
	query := `
		SELECT id, name, system_type, system_class, deployment_status, owner_team,
		       regulatory_scope, current_score, current_status,
		       assessment_seq, last_assessment_id, last_assessment_at,
		       metadata, created_at, updated_at
		FROM ai_systems WHERE id = $1`

	s := &domain.AISystem{}
	var metadata []byte
	var lastAt *time.Time
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.SystemType, &s.SystemClass, &s.DeploymentStatus, &s.OwnerTeam,
		&s.RegulatoryScope, &s.CurrentScore, &s.CurrentStatus,
		&s.AssessmentSeq, &s.LastAssessmentID, &lastAt,
		&metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.ErrKindNotFound, id, fmt.Errorf("postgres: system not found"))
		}
		return nil, fmt.Errorf("postgres: get system: %w", err)
	}
	if lastAt != nil {
		s.LastAssessmentAt = *lastAt
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &s.Metadata)
	}
	return s, nil
}

// UpsertSystem регистрирует систему или обновляет ее паспортные поля.
// Оценочные поля (current_*, assessment_seq) намеренно не трогаются:
// они меняются только через UpdateAssessmentState.
func (r *Repo) UpsertSystem(ctx context.Context, s *domain.AISystem) error {
	metadata, _ := json.Marshal(s.Metadata)
	query := `
		INSERT INTO ai_systems
			(id, name, system_type, system_class, deployment_status, owner_team,
			 regulatory_scope, current_status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			system_type = EXCLUDED.system_type,
			system_class = EXCLUDED.system_class,
			deployment_status = EXCLUDED.deployment_status,
			owner_team = EXCLUDED.owner_team,
			regulatory_scope = EXCLUDED.regulatory_scope,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()`

	status := s.CurrentStatus
	if status == "" {
		status = domain.StatusUnknown
	}
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Name, s.SystemType, s.SystemClass, s.DeploymentStatus, s.OwnerTeam,
		s.RegulatoryScope, status, metadata)
	if err != nil {
		return fmt.Errorf("postgres: upsert system: %w", err)
	}
	return nil
}

// ListSystems — постраничный список для консоли.
func (r *Repo) ListSystems(ctx context.Context, limit, offset int) ([]domain.AISystem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, name, system_type, system_class, deployment_status, owner_team,
		       regulatory_scope, current_score, current_status,
		       assessment_seq, last_assessment_id, last_assessment_at,
		       metadata, created_at, updated_at
		FROM ai_systems ORDER BY name LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list systems: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.AISystem, 0)
	for rows.Next() {
		var s domain.AISystem
		var metadata []byte
		var lastAt *time.Time
		if err := rows.Scan(
			&s.ID, &s.Name, &s.SystemType, &s.SystemClass, &s.DeploymentStatus, &s.OwnerTeam,
			&s.RegulatoryScope, &s.CurrentScore, &s.CurrentStatus,
			&s.AssessmentSeq, &s.LastAssessmentID, &lastAt,
			&metadata, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan system: %w", err)
		}
		if lastAt != nil {
			s.LastAssessmentAt = *lastAt
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &s.Metadata)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// UpdateAssessmentState — seq-guarded фиксация результата оценки.
// WHERE assessment_seq = $expected делает запись single-writer:
// параллельная оценка, успевшая раньше, не затирается.
func (r *Repo) UpdateAssessmentState(ctx context.Context, systemID string, expectedSeq int64, score float64, status domain.ComplianceStatus, assessmentID string, at time.Time) error {
	query := `
		UPDATE ai_systems SET
			current_score = $1,
			current_status = $2,
			assessment_seq = assessment_seq + 1,
			last_assessment_id = $3,
			last_assessment_at = $4,
			updated_at = NOW()
		WHERE id = $5 AND assessment_seq = $6`

	tag, err := r.pool.Exec(ctx, query, score, status, assessmentID, at, systemID, expectedSeq)
	if err != nil {
		return fmt.Errorf("postgres: update assessment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.ErrKindConcurrentAppend, systemID,
			fmt.Errorf("postgres: assessment_seq advanced past %d", expectedSeq))
	}
	return nil
}
