package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// AssessmentSource — контракт чтения прошлых оценок.
// Записи появляются только через завершенные оценки, прямых мутаций нет.
type AssessmentSource interface {
	RecentAssessments(ctx context.Context, systemID string, limit int) ([]domain.AssessmentRecord, error)
	// PeerAssessments — оценки других систем того же класса (для прецедентов
	// по соседям). Пустой класс — без соседей.
	PeerAssessments(ctx context.Context, systemClass, excludeSystemID string, limit int) ([]domain.AssessmentRecord, error)
}

// Params — настройки ранжирования прецедентов.
type Params struct {
	HalfLife         time.Duration // Период полураспада recency-веса
	RecencyWeight    float64
	SimilarityWeight float64
	DefaultLimit     int
}

func DefaultParams() Params {
	return Params{
		HalfLife:         30 * 24 * time.Hour,
		RecencyWeight:    0.6,
		SimilarityWeight: 0.4,
		DefaultLimit:     5,
	}
}

// QueryContext описывает текущую оценку, для которой ищутся прецеденты.
type QueryContext struct {
	Kind        domain.AssessmentKind
	SystemClass string // Соседи для прецедентов подбираются по классу системы
	// Dimensions — текущие скоры для сравнения профилей риска
	Dimensions map[string]float64
}

// Precedent — найденная запись с разложением скора ранжирования.
type Precedent struct {
	Record     domain.AssessmentRecord `json:"record"`
	Score      float64                 `json:"score"`
	Recency    float64                 `json:"recency"`
	Similarity float64                 `json:"similarity"`
}

// Store — прецедентный поиск по прошлым оценкам (Context Store).
// Read-mostly: сюда ничего не пишется, источник пополняется оркестратором.
type Store struct {
	repo   AssessmentSource
	params Params
	logger *zap.Logger
}

func NewStore(repo AssessmentSource, params Params, logger *zap.Logger) *Store {
	if params.DefaultLimit <= 0 {
		params.DefaultLimit = 5
	}
	if params.HalfLife <= 0 {
		params.HalfLife = DefaultParams().HalfLife
	}
	return &Store{repo: repo, params: params, logger: logger.Named("history")}
}

// RelevantHistory ранжирует прошлые оценки системы (и соседей по классу)
// комбинацией экспоненциального recency-распада и похожести на текущий
// контекст. Возвращает до limit записей по убыванию скора; при равенстве —
// более свежая первой.
func (s *Store) RelevantHistory(ctx context.Context, systemID string, cur QueryContext, limit int) ([]Precedent, error) {
	if systemID == "" {
		return nil, domain.NewError(domain.ErrKindValidation, "", fmt.Errorf("history: system id is required"))
	}
	if limit <= 0 {
		limit = s.params.DefaultLimit
	}

	// Выбираем с запасом: ранжирование может перетасовать хвост
	fetch := limit * 4
	if fetch < 20 {
		fetch = 20
	}

	records, err := s.repo.RecentAssessments(ctx, systemID, fetch)
	if err != nil {
		return nil, fmt.Errorf("history: fetch own assessments: %w", err)
	}

	if cur.SystemClass != "" {
		peers, err := s.repo.PeerAssessments(ctx, cur.SystemClass, systemID, fetch)
		if err != nil {
			// Соседи — опциональное обогащение, их отказ не фатален
			s.logger.Warn("peer precedent lookup failed",
				zap.String("system_class", cur.SystemClass), zap.Error(err))
		} else {
			records = append(records, peers...)
		}
	}

	now := time.Now().UTC()
	out := make([]Precedent, 0, len(records))
	for _, rec := range records {
		recency := s.recency(now, rec.CreatedAt)
		similarity := s.similarity(cur, rec)
		out = append(out, Precedent{
			Record:     rec,
			Recency:    recency,
			Similarity: similarity,
			Score:      s.params.RecencyWeight*recency + s.params.SimilarityWeight*similarity,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		// Тай-брейк: самая свежая запись первой
		return out[i].Record.CreatedAt.After(out[j].Record.CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recency: exp(-ln2 * age / halfLife) — 1.0 для свежей записи,
// 0.5 ровно через период полураспада.
func (s *Store) recency(now, createdAt time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(s.params.HalfLife))
}

// similarity в [0,1]: совпадение вида оценки плюс близость профилей
// риска по общим измерениям.
func (s *Store) similarity(cur QueryContext, rec domain.AssessmentRecord) float64 {
	score := 0.0

	// 1. Вид оценки (вес 0.4): инцидентной оценке интереснее
	// прошлые инцидентные прецеденты
	if cur.Kind != "" && cur.Kind == rec.Kind {
		score += 0.4
	}

	// 2. Близость векторов скоров по общим измерениям (вес 0.6)
	if len(cur.Dimensions) > 0 && len(rec.Dimensions) > 0 {
		shared := 0
		distance := 0.0
		for dim, val := range cur.Dimensions {
			if prev, ok := rec.Dimensions[dim]; ok {
				shared++
				distance += math.Abs(val-prev.Value) / domain.ScoreMax
			}
		}
		if shared > 0 {
			score += 0.6 * (1.0 - distance/float64(shared))
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
