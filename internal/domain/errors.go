package domain

import (
	"errors"
	"fmt"
)

// ErrorKind — таксономия отказов движка (см. раздел Error Handling).
// Каждая ошибка несет kind + system + контекст, чтобы сами отказы
// можно было фиксировать как события аудита.
type ErrorKind string

const (
	ErrKindValidation       ErrorKind = "validation_error"        // Некорректный вход, отклоняется до изменения состояния
	ErrKindInvalidScore     ErrorKind = "invalid_score"           // Скор/вес вне диапазона или веса не суммируются в 1
	ErrKindPolicyMismatch   ErrorKind = "policy_binding_mismatch" // Рамка ссылается на неоцененные измерения
	ErrKindConcurrentAppend ErrorKind = "concurrent_append"       // Хвост цепочки ушел вперед, нужен retry
	ErrKindIntegrity        ErrorKind = "integrity_violation"     // Фатально для цепочки до re-anchor
	ErrKindPersistence      ErrorKind = "assessment_persistence"  // Ретраи записи аудита исчерпаны
	ErrKindInsufficientData ErrorKind = "insufficient_data"       // Все измерения отсутствуют
	ErrKindNotFound         ErrorKind = "not_found"
)

// GovernanceError — структурированная ошибка движка.
type GovernanceError struct {
	Kind     ErrorKind
	SystemID string
	Context  map[string]interface{}
	Err      error
}

func (e *GovernanceError) Error() string {
	if e.SystemID != "" {
		return fmt.Sprintf("%s [system=%s]: %v", e.Kind, e.SystemID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GovernanceError) Unwrap() error { return e.Err }

// NewError — единая точка создания структурированных ошибок.
func NewError(kind ErrorKind, systemID string, err error) *GovernanceError {
	return &GovernanceError{Kind: kind, SystemID: systemID, Err: err}
}

func (e *GovernanceError) WithContext(key string, val interface{}) *GovernanceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = val
	return e
}

// IsKind проверяет принадлежность ошибки (в том числе обернутой) таксономии.
func IsKind(err error, kind ErrorKind) bool {
	var ge *GovernanceError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// KindOf достает kind из цепочки ошибок; пустая строка — не наша ошибка.
func KindOf(err error) ErrorKind {
	var ge *GovernanceError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
