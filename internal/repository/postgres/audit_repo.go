package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/aigov-engine/internal/audit"
)

// WriteBatch — пакетная вставка событий цепочек (вызывается TrailFS).
// Реализует audit.StorageInterface. Конфликт по id молча пропускается:
// повторная доставка после рестарта воркера не должна ронять батч.
func (r *Repo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_events
	numFields := 9
	var sb strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		payload, _ := json.Marshal(e.Payload)
		vals = append(vals,
			e.ID, e.SystemID, e.Seq, string(e.Kind), e.Actor,
			payload, e.Timestamp, e.PrevHash, e.Hash,
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_events
			(id, system_id, seq, kind, actor, payload, timestamp, prev_hash, hash)
		VALUES %s
		ON CONFLICT (id) DO NOTHING`,
		sb.String(),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: audit batch insert: %w", err)
	}
	return nil
}

// LoadAllEvents вычитывает все цепочки для гидрации Ledger при старте.
// Порядок по (system_id, seq) — Hydrate все равно пересортирует.
func (r *Repo) LoadAllEvents(ctx context.Context) ([]audit.Event, error) {
	query := `
		SELECT id, system_id, seq, kind, actor, payload, timestamp, prev_hash, hash
		FROM audit_events ORDER BY system_id, seq`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load audit events: %w", err)
	}
	defer rows.Close()

	var results []audit.Event
	for rows.Next() {
		var e audit.Event
		var kind string
		var payload []byte
		if err := rows.Scan(
			&e.ID, &e.SystemID, &e.Seq, &kind, &e.Actor,
			&payload, &e.Timestamp, &e.PrevHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan audit event: %w", err)
		}
		e.Kind = audit.EventKind(kind)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
