package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/aigov-engine/internal/connectors"
	"github.com/xela07ax/aigov-engine/internal/domain"
	"github.com/xela07ax/aigov-engine/internal/infra"

	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает скорер в цепочку
// Rate Limiter -> Circuit Breaker -> Retry. Один wrapper на скорер-сервис:
// у каждого свой предохранитель и свой лимитер.
type ReliabilityWrapper struct {
	next     connectors.Scorer
	scorerID string
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	metrics  *Metrics

	timeout  time.Duration
	attempts int
}

func NewReliabilityWrapper(next connectors.Scorer, scorerID string, cfg infra.EngineConfig, metrics *Metrics) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scorer-" + scorerID,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerState.WithLabelValues(scorerID).Set(1)
			} else {
				metrics.CircuitBreakerState.WithLabelValues(scorerID).Set(0)
			}
		},
	})

	// Настройка лимитера (например, 100 запросов в секунду)
	limiter := rate.NewLimiter(rate.Limit(100), 20)

	timeout := cfg.ScorerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.ScorerAttempts
	if attempts <= 0 {
		attempts = 3
	}

	return &ReliabilityWrapper{
		next:     next,
		scorerID: scorerID,
		cb:       cb,
		limiter:  limiter,
		metrics:  metrics,
		timeout:  timeout,
		attempts: attempts,
	}
}

func (w *ReliabilityWrapper) Score(ctx context.Context, req connectors.ScoreRequest) (domain.DimensionScore, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.DimensionScore{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalScore domain.DimensionScore

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(uint(w.attempts)),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если скорер вернул ThrottleError (считал Retry-After заголовок)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			var callErr error
			finalScore, callErr = w.next.Score(tCtx, req)
			return callErr
		})

		return finalScore, retryErr
	})

	if err != nil {
		return domain.DimensionScore{}, err
	}

	return cbResult.(domain.DimensionScore), nil
}
