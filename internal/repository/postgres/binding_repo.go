package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// BindingsForSystem возвращает явные байндинги системы плюс классовые
// ("*"). Пустой результат — не ошибка: оркестратор упадет на дефолты
// из regulatory_scope.
func (r *Repo) BindingsForSystem(ctx context.Context, systemID string) ([]domain.PolicyBinding, error) {
	query := `
		SELECT id, system_id, framework_id, enforcement,
		       compliant_floor, partial_floor, critical_floors, required_dimensions,
		       created_at, updated_at
		FROM policy_bindings
		WHERE system_id = $1 OR system_id = '*'
		ORDER BY framework_id`

	rows, err := r.pool.Query(ctx, query, systemID)
	if err != nil {
		return nil, fmt.Errorf("postgres: bindings for system: %w", err)
	}
	defer rows.Close()

	results := make([]domain.PolicyBinding, 0)
	for rows.Next() {
		var b domain.PolicyBinding
		var floors []byte
		if err := rows.Scan(
			&b.ID, &b.SystemID, &b.FrameworkID, &b.Enforcement,
			&b.CompliantFloor, &b.PartialFloor, &floors, &b.RequiredDimensions,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan binding: %w", err)
		}
		if len(floors) > 0 {
			_ = json.Unmarshal(floors, &b.CriticalFloors)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// UpsertBinding создает или обновляет байндинг рамки.
func (r *Repo) UpsertBinding(ctx context.Context, b domain.PolicyBinding) error {
	floors, _ := json.Marshal(b.CriticalFloors)
	query := `
		INSERT INTO policy_bindings
			(id, system_id, framework_id, enforcement,
			 compliant_floor, partial_floor, critical_floors, required_dimensions,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			enforcement = EXCLUDED.enforcement,
			compliant_floor = EXCLUDED.compliant_floor,
			partial_floor = EXCLUDED.partial_floor,
			critical_floors = EXCLUDED.critical_floors,
			required_dimensions = EXCLUDED.required_dimensions,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.SystemID, b.FrameworkID, b.Enforcement,
		b.CompliantFloor, b.PartialFloor, floors, b.RequiredDimensions)
	if err != nil {
		return fmt.Errorf("postgres: upsert binding: %w", err)
	}
	return nil
}

// DeleteBinding удаляет байндинг. Прошлые findings это не трогает:
// записи оценок иммутабельны.
func (r *Repo) DeleteBinding(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM policy_bindings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.ErrKindNotFound, "", fmt.Errorf("postgres: binding %s not found", id))
	}
	return nil
}
