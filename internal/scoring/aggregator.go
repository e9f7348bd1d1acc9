package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// WeightSumTolerance — допуск на сумму весов профиля (должна быть 1).
const WeightSumTolerance = 1e-6

// WeightProfile — веса измерений для одного вида оценки.
// Профили приходят из конфига; движок их не изобретает.
type WeightProfile struct {
	Kind    domain.AssessmentKind `json:"kind" mapstructure:"kind"`
	Weights map[string]float64    `json:"weights" mapstructure:"weights"`
}

// AggregateResult — агрегат и фактически примененные веса.
type AggregateResult struct {
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown"` // нормализованные веса после перераспределения
	Degraded  bool               `json:"degraded"`  // часть измерений профиля отсутствовала
	Missing   []string           `json:"missing,omitempty"`
}

// DefaultWeightProfiles — дефолтные профили по видам оценки.
// incident смещает вес в сторону security/privacy, остальные — равномерные.
func DefaultWeightProfiles() map[domain.AssessmentKind]WeightProfile {
	equal := map[string]float64{
		domain.DimBias:           0.2,
		domain.DimPrivacy:        0.2,
		domain.DimSecurity:       0.2,
		domain.DimExplainability: 0.2,
		domain.DimRegulatory:     0.2,
	}
	incident := map[string]float64{
		domain.DimBias:           0.15,
		domain.DimPrivacy:        0.25,
		domain.DimSecurity:       0.30,
		domain.DimExplainability: 0.10,
		domain.DimRegulatory:     0.20,
	}
	return map[domain.AssessmentKind]WeightProfile{
		domain.KindInitial:         {Kind: domain.KindInitial, Weights: equal},
		domain.KindPeriodic:        {Kind: domain.KindPeriodic, Weights: equal},
		domain.KindChangeTriggered: {Kind: domain.KindChangeTriggered, Weights: equal},
		domain.KindIncident:        {Kind: domain.KindIncident, Weights: incident},
	}
}

// ValidateProfile проверяет диапазоны весов и их сумму.
func ValidateProfile(p WeightProfile) error {
	if len(p.Weights) == 0 {
		return domain.NewError(domain.ErrKindInvalidScore, "",
			fmt.Errorf("scoring: weight profile for kind %q is empty", p.Kind))
	}
	sum := 0.0
	for dim, w := range p.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return domain.NewError(domain.ErrKindInvalidScore, "",
				fmt.Errorf("scoring: weight for dimension %q out of range: %v", dim, w))
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return domain.NewError(domain.ErrKindInvalidScore, "",
			fmt.Errorf("scoring: weights for kind %q sum to %v, want 1", p.Kind, sum))
	}
	return nil
}

// Aggregate сводит скоры измерений в один агрегат [0,10].
// Чистая функция: никаких побочных эффектов, результат зависит только от входа.
//
// Отсутствующее в scores измерение профиля НЕ заполняется нулем:
// его вес пропорционально перераспределяется на присутствующие,
// а результат помечается Degraded=true.
func Aggregate(scores map[string]domain.DimensionScore, profile WeightProfile) (AggregateResult, error) {
	if err := ValidateProfile(profile); err != nil {
		return AggregateResult{}, err
	}

	// 1. Валидация входных скоров (до любых вычислений)
	for dim, s := range scores {
		if s.Value < domain.ScoreMin || s.Value > domain.ScoreMax || math.IsNaN(s.Value) {
			return AggregateResult{}, domain.NewError(domain.ErrKindInvalidScore, "",
				fmt.Errorf("scoring: dimension %q score %v out of [%v,%v]", dim, s.Value, domain.ScoreMin, domain.ScoreMax))
		}
		if s.Confidence < domain.ScoreMin || s.Confidence > domain.ScoreMax || math.IsNaN(s.Confidence) {
			return AggregateResult{}, domain.NewError(domain.ErrKindInvalidScore, "",
				fmt.Errorf("scoring: dimension %q confidence %v out of [%v,%v]", dim, s.Confidence, domain.ScoreMin, domain.ScoreMax))
		}
	}

	// 2. Разделяем профиль на присутствующие и отсутствующие измерения
	presentSum := 0.0
	var missing []string
	for dim, w := range profile.Weights {
		if _, ok := scores[dim]; ok {
			presentSum += w
		} else if w > 0 {
			missing = append(missing, dim)
		}
	}
	sort.Strings(missing)

	if presentSum <= 0 {
		// Все измерения профиля отсутствуют — считать нечего
		return AggregateResult{}, domain.NewError(domain.ErrKindInsufficientData, "",
			fmt.Errorf("scoring: no scored dimensions for kind %q", profile.Kind))
	}

	// 3. Пропорциональное перераспределение: w'[d] = w[d] / presentSum
	breakdown := make(map[string]float64, len(scores))
	total := 0.0
	for dim, w := range profile.Weights {
		s, ok := scores[dim]
		if !ok || w == 0 {
			continue
		}
		norm := w / presentSum
		breakdown[dim] = norm
		total += norm * s.Value
	}

	// Защита от накопленной погрешности float64 на границах шкалы
	total = math.Min(domain.ScoreMax, math.Max(domain.ScoreMin, total))

	return AggregateResult{
		Score:     total,
		Breakdown: breakdown,
		Degraded:  len(missing) > 0,
		Missing:   missing,
	}, nil
}
