package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventAssessmentCompleted  EventKind = "assessment_completed"
	EventComplianceDetermined EventKind = "compliance_determined"
	EventAlertRaised          EventKind = "alert_raised"
	EventRemediationChanged   EventKind = "remediation_changed"
	EventChainReanchored      EventKind = "chain_reanchored" // Маркер разрыва после IntegrityViolation
	EventAssessmentFailed     EventKind = "assessment_failed"
)

// Event — одно звено цепочки аудита. Иммутабельно после Append:
// Hash считается от канонической сериализации полей + PrevHash,
// любое изменение контента или порядка ломает verify.
type Event struct {
	ID       string    `json:"id"` // UUID события
	SystemID string    `json:"system_id"`
	Seq      int       `json:"seq"` // Позиция в цепочке, с нуля
	Kind     EventKind `json:"kind"`
	Actor    string    `json:"actor"` // Кто породил решение (assessor / monitor / operator)

	Payload map[string]interface{} `json:"payload"` // Содержимое решения

	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// canonicalTimeLayout — метка времени в контент-хэше: UTC, ровно
// микросекунды. timestamptz хранит микросекунды, наносекунды не
// переживают round-trip через БД, а зона зависит от сессии — хэш
// не должен зависеть ни от того, ни от другого.
const canonicalTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// eventCore — поля, входящие в контент-хэш (все, кроме Hash и PrevHash;
// PrevHash подмешивается отдельно при вычислении).
// encoding/json сериализует map с сортировкой ключей, поэтому
// каноническая форма детерминирована.
type eventCore struct {
	ID        string                 `json:"id"`
	SystemID  string                 `json:"system_id"`
	Seq       int                    `json:"seq"`
	Kind      EventKind              `json:"kind"`
	Actor     string                 `json:"actor"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp string                 `json:"timestamp"`
}

// ComputeHash: hash(e) = sha256(canonical(e_without_hash) || prevHash).
func ComputeHash(e Event, prevHash string) (string, error) {
	core := eventCore{
		ID:        e.ID,
		SystemID:  e.SystemID,
		Seq:       e.Seq,
		Kind:      e.Kind,
		Actor:     e.Actor,
		Payload:   e.Payload,
		Timestamp: e.Timestamp.UTC().Truncate(time.Microsecond).Format(canonicalTimeLayout),
	}
	canonical, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize event %s: %w", e.ID, err)
	}

	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// AnchorHash — якорь сегмента цепочки. Для seq=0 это genesis-хэш системы,
// для re-anchor — якорь нового сегмента, начинающегося с данного seq.
func AnchorHash(systemID string, seq int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:anchor:%d", systemID, seq)))
	return hex.EncodeToString(h[:])
}

// GenesisHash — якорь нулевого сегмента.
func GenesisHash(systemID string) string {
	return AnchorHash(systemID, 0)
}
