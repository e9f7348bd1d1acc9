package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricSource — источник значений метрики (прод: внешняя телеметрия).
type MetricSource interface {
	Sample(ctx context.Context, systemID, metric string) (float64, error)
}

// Sampler — независимая периодическая задача на пару (система, метрика).
// Каждый цикл самодостаточен: отмена контекста между циклами не оставляет
// частично обновленного состояния.
type Sampler struct {
	svc    *Service
	source MetricSource
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewSampler(svc *Service, source MetricSource, logger *zap.Logger) *Sampler {
	return &Sampler{
		svc:    svc,
		source: source,
		logger: logger.Named("sampler"),
	}
}

// Watch запускает цикл сэмплирования; останавливается по ctx.
func (s *Sampler) Watch(ctx context.Context, systemID, metric string, interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("sampler started",
			zap.String("system_id", systemID),
			zap.String("metric", metric),
			zap.Duration("interval", interval))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sampler stopping by context",
					zap.String("system_id", systemID), zap.String("metric", metric))
				return
			case <-ticker.C:
				s.cycle(ctx, systemID, metric)
			}
		}
	}()
}

// cycle — один замер: снять значение и прогнать через монитор.
func (s *Sampler) cycle(ctx context.Context, systemID, metric string) {
	value, err := s.source.Sample(ctx, systemID, metric)
	if err != nil {
		// Пропущенный цикл не фатален: следующий тик попробует снова
		s.logger.Warn("metric sampling failed",
			zap.String("system_id", systemID),
			zap.String("metric", metric),
			zap.Error(err))
		return
	}

	if _, err := s.svc.StreamSample(ctx, systemID, metric, value, time.Now().UTC()); err != nil {
		s.logger.Warn("sample processing failed",
			zap.String("system_id", systemID),
			zap.String("metric", metric),
			zap.Error(err))
	}
}

// Wait блокируется до завершения всех циклов (graceful shutdown).
func (s *Sampler) Wait() {
	s.wg.Wait()
}
