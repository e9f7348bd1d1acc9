package monitor

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/infra"
)

// SpecRepository — долговременное хранилище порогов.
type SpecRepository interface {
	ListThresholdSpecs(ctx context.Context) ([]domain.ThresholdSpec, error)
	UpsertThresholdSpec(ctx context.Context, spec domain.ThresholdSpec) error
}

// SpecSyncer держит пороги Tracker'а в согласии с БД. Hot path монитора
// работает только с памятью; синхронизация — холодная загрузка при старте
// плюс Redis-сигнал «пороги изменились».
type SpecSyncer struct {
	tracker *Tracker
	repo    SpecRepository
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewSpecSyncer(tracker *Tracker, repo SpecRepository, rdb *redis.Client, logger *zap.Logger) *SpecSyncer {
	return &SpecSyncer{
		tracker: tracker,
		repo:    repo,
		rdb:     rdb,
		logger:  logger.Named("spec-syncer"),
	}
}

// Refresh выполняет холодную загрузку всех порогов в Tracker.
func (s *SpecSyncer) Refresh(ctx context.Context) error {
	specs, err := s.repo.ListThresholdSpecs(ctx)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		s.tracker.SetSpec(spec.Metric, spec)
	}
	s.logger.Info("threshold specs loaded", zap.Int("count", len(specs)))
	return nil
}

// Specs возвращает пороги как их видит БД (для консоли).
func (s *SpecSyncer) Specs(ctx context.Context) ([]domain.ThresholdSpec, error) {
	return s.repo.ListThresholdSpecs(ctx)
}

// SaveSpec персистит порог, применяет его локально и сигналит остальным
// инстансам перечитать пороги из БД.
func (s *SpecSyncer) SaveSpec(ctx context.Context, spec domain.ThresholdSpec) error {
	if err := s.repo.UpsertThresholdSpec(ctx, spec); err != nil {
		return err
	}
	s.tracker.SetSpec(spec.Metric, spec)

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, infra.RedisChanSpecRefresh, spec.Metric).Err(); err != nil {
			// Инстансы догонят на переподключении; сам порог уже в БД
			s.logger.Warn("spec refresh signal delivery failed", zap.Error(err))
		}
	}
	return nil
}

// StartListener — живучая подписка на сигнал обновления порогов.
func (s *SpecSyncer) StartListener(ctx context.Context) {
	for {
		pubsub := s.rdb.Subscribe(ctx, infra.RedisChanSpecRefresh)

		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.Error("failed to subscribe",
				zap.String("chan", infra.RedisChanSpecRefresh), zap.Error(err))
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Догружаем пропущенное за время разрыва
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("spec refresh failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case _, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				if err := s.Refresh(ctx); err != nil {
					s.logger.Error("spec refresh failed", zap.Error(err))
				}
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
