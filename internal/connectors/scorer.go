package connectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// ScoreRequest — запрос к внешнему скорер-сервису по одному измерению.
type ScoreRequest struct {
	SystemID  string                `json:"system_id"`
	Dimension string                `json:"dimension"`
	Kind      domain.AssessmentKind `json:"kind"`
	// Evidence — непрозрачный для движка контекст (артефакты, ссылки,
	// метаданные системы), который скорер использует как вход.
	Evidence map[string]any `json:"evidence,omitempty"`
}

// Scorer — контракт внешнего оценщика измерения. Движок не пересчитывает
// и не интерпретирует полученный скор, только валидирует диапазон.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (domain.DimensionScore, error)
}

// Registry — потокобезопасный маппинг измерение -> скорер.
// Измерение без зарегистрированного скорера считается отсутствующим
// (агрегатор перераспределит его вес).
type Registry struct {
	mu      sync.RWMutex
	scorers map[string]Scorer
}

func NewRegistry() *Registry {
	return &Registry{scorers: make(map[string]Scorer)}
}

func (r *Registry) Register(dimension string, s Scorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[dimension] = s
}

func (r *Registry) Lookup(dimension string) (Scorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scorers[dimension]
	if !ok {
		return nil, fmt.Errorf("connectors: no scorer registered for dimension %q", dimension)
	}
	return s, nil
}

// Dimensions возвращает отсортированный список измерений с живыми скорерами.
func (r *Registry) Dimensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.scorers))
	for dim := range r.scorers {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}
