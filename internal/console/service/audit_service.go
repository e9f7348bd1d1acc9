package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/engine"
)

// AuditService — операции консоли над цепочками: чтение, проверка
// целостности и операторский re-anchor с распределенной разморозкой.
type AuditService struct {
	ledger *audit.Ledger
	freeze *engine.FreezeManager
	logger *zap.Logger
}

func NewAuditService(ledger *audit.Ledger, freeze *engine.FreezeManager, logger *zap.Logger) *AuditService {
	return &AuditService{
		ledger: ledger,
		freeze: freeze,
		logger: logger.Named("audit-service"),
	}
}

// ChainStatus — сводка по цепочке для консоли.
type ChainStatus struct {
	SystemID string             `json:"system_id"`
	Frozen   bool               `json:"frozen"`
	Verify   audit.VerifyResult `json:"verify"`
}

// Export отдает события цепочки за интервал.
func (s *AuditService) Export(systemID string, from, to time.Time) []audit.Event {
	return s.ledger.Export(systemID, from, to)
}

// Verify пересчитывает цепочку. Невалидная цепочка замораживается
// здесь же (внутри Ledger), а заморозка транслируется остальным
// инстансам через Redis.
func (s *AuditService) Verify(ctx context.Context, systemID string) ChainStatus {
	res := s.ledger.Verify(systemID)
	if !res.Valid && s.freeze != nil {
		if err := s.freeze.Broadcast(ctx, systemID, true); err != nil {
			s.logger.Error("freeze broadcast failed",
				zap.String("system_id", systemID), zap.Error(err))
		}
	}
	return ChainStatus{
		SystemID: systemID,
		Frozen:   s.ledger.IsFrozen(systemID),
		Verify:   res,
	}
}

// Reanchor — операторское снятие заморозки: маркер разрыва в цепочку
// плюс разморозка на всех инстансах.
func (s *AuditService) Reanchor(ctx context.Context, systemID, operator, reason string) (audit.Event, error) {
	if reason == "" {
		return audit.Event{}, fmt.Errorf("audit_service: re-anchor requires a reason")
	}

	ev, err := s.ledger.Reanchor(systemID, operator, reason)
	if err != nil {
		return audit.Event{}, fmt.Errorf("audit_service: re-anchor failed: %w", err)
	}

	if s.freeze != nil {
		if err := s.freeze.Broadcast(ctx, systemID, false); err != nil {
			// Локально цепочка уже разморожена; рассинхрон доберется
			// ресинком слушателей
			s.logger.Error("unfreeze broadcast failed",
				zap.String("system_id", systemID), zap.Error(err))
		}
	}
	return ev, nil
}

// Status — текущее состояние всех цепочек (без пересчета хэшей).
func (s *AuditService) Status() []ChainStatus {
	systems := s.ledger.Systems()
	out := make([]ChainStatus, 0, len(systems))
	for _, id := range systems {
		out = append(out, ChainStatus{
			SystemID: id,
			Frozen:   s.ledger.IsFrozen(id),
			Verify: audit.VerifyResult{
				Valid:        !s.ledger.IsFrozen(id),
				FirstInvalid: -1,
				Length:       len(s.ledger.Export(id, time.Time{}, time.Time{})),
			},
		})
	}
	return out
}
