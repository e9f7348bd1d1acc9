package connectors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// MockScorer — локальный скорер для разработки и нагрузочных прогонов.
// Отдает стабильные базовые скоры с небольшим шумом и умеет имитировать
// нестабильный сервис и троттлинг.
type MockScorer struct {
	ScorerID string
	// UnstableDimensions падают с внутренней ошибкой (тренировка CB/ретраев)
	UnstableDimensions map[string]bool
	// ThrottleEvery: каждый N-й вызов отвечает ThrottleError (0 = выключено)
	ThrottleEvery int

	calls atomic.Int64
}

func NewMockScorer(scorerID string) *MockScorer {
	return &MockScorer{ScorerID: scorerID}
}

// Базовые скоры по каноническим измерениям: осмысленный разброс,
// чтобы дефолтный профиль давал partially_compliant картину.
var mockBaselines = map[string]float64{
	domain.DimBias:           6.5,
	domain.DimPrivacy:        7.2,
	domain.DimSecurity:       8.1,
	domain.DimExplainability: 5.4,
	domain.DimRegulatory:     6.8,
}

func (m *MockScorer) Score(ctx context.Context, req ScoreRequest) (domain.DimensionScore, error) {
	var zero domain.DimensionScore
	call := m.calls.Add(1)

	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	if m.ThrottleEvery > 0 && call%int64(m.ThrottleEvery) == 0 {
		return zero, &ThrottleError{
			RetryAfter: 200 * time.Millisecond,
			Cause:      fmt.Errorf("mock scorer %s throttled", m.ScorerID),
		}
	}
	if m.UnstableDimensions[req.Dimension] {
		return zero, fmt.Errorf("scorer %s internal error", m.ScorerID)
	}

	base, ok := mockBaselines[req.Dimension]
	if !ok {
		return zero, fmt.Errorf("dimension %s not supported by scorer %s", req.Dimension, m.ScorerID)
	}

	// Шум ±0.5 с клампом в шкалу
	value := base + (rand.Float64() - 0.5)
	if value < domain.ScoreMin {
		value = domain.ScoreMin
	}
	if value > domain.ScoreMax {
		value = domain.ScoreMax
	}

	return domain.DimensionScore{
		Dimension:   req.Dimension,
		Value:       value,
		Confidence:  7 + rand.Float64()*2,
		Source:      m.ScorerID,
		EvidenceRef: fmt.Sprintf("mock://%s/%s/%d", m.ScorerID, req.Dimension, call),
	}, nil
}
