package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// StatusPolicy — пороги статусов движка. Границы включающие снизу:
// значение, равное порогу, попадает в более высокий (лучший) статус.
type StatusPolicy struct {
	CompliantFloor float64 `mapstructure:"compliant_floor"` // >= — compliant
	PartialFloor   float64 `mapstructure:"partial_floor"`   // >= — partially_compliant
}

func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{CompliantFloor: 8.0, PartialFloor: 5.0}
}

// Determination — итог работы детерминера: общий статус плюс
// по одному ComplianceFinding на каждый байндинг.
type Determination struct {
	Status              domain.ComplianceStatus    `json:"status"`
	Findings            []domain.ComplianceFinding `json:"findings"`
	RemediationRequired bool                       `json:"remediation_required"`
	Warnings            []string                   `json:"warnings,omitempty"`
}

// bucket распределяет агрегат по статусам (включающая нижняя граница).
func bucket(score, compliantFloor, partialFloor float64) domain.ComplianceStatus {
	switch {
	case score >= compliantFloor:
		return domain.StatusCompliant
	case score >= partialFloor:
		return domain.StatusPartial
	default:
		return domain.StatusNonCompliant
	}
}

// worse возвращает худший из двух статусов (not_applicable не учитывается).
func worse(a, b domain.ComplianceStatus) domain.ComplianceStatus {
	rank := map[domain.ComplianceStatus]int{
		domain.StatusCompliant:    0,
		domain.StatusPartial:      1,
		domain.StatusNonCompliant: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Determine — чистая, идемпотентная функция: повторный вызов на тех же
// входах дает идентичные статус и findings.
//
// Правила:
//   - пороги рамки перекрывают дефолты StatusPolicy, если заданы;
//   - провал любого критического пола форсирует non_compliant
//     независимо от агрегата (critical-dimension override);
//   - байндинг, требующий неоцененные измерения, не роняет запрос:
//     finding помечается not_applicable с warning;
//   - remediation_required: статус хуже compliant, либо рамка
//     regulatory/mandatory и применима.
func Determine(agg AggregateResult, dims map[string]domain.DimensionScore, bindings []domain.PolicyBinding, pol StatusPolicy, now time.Time) Determination {
	overall := bucket(agg.Score, pol.CompliantFloor, pol.PartialFloor)

	det := Determination{
		Findings: make([]domain.ComplianceFinding, 0, len(bindings)),
	}

	for _, b := range bindings {
		f := evaluateBinding(agg, dims, b, pol, now)
		if f.Warning != "" {
			det.Warnings = append(det.Warnings, f.Warning)
		}
		if f.Status != domain.StatusNotApplicable {
			overall = worse(overall, f.Status)
		}
		if f.RemediationRequired {
			det.RemediationRequired = true
		}
		det.Findings = append(det.Findings, f)
	}

	det.Status = overall
	if overall != domain.StatusCompliant {
		det.RemediationRequired = true
	}
	return det
}

func evaluateBinding(agg AggregateResult, dims map[string]domain.DimensionScore, b domain.PolicyBinding, pol StatusPolicy, now time.Time) domain.ComplianceFinding {
	f := domain.ComplianceFinding{
		BindingID:   b.ID,
		FrameworkID: b.FrameworkID,
		Score:       agg.Score,
	}

	// 1. Проверка покрытия: рамка могла потребовать измерения,
	// которые скореры не оценили (PolicyBindingMismatch).
	if unresolved := missingRequired(b, dims); len(unresolved) > 0 {
		f.Status = domain.StatusNotApplicable
		f.Warning = fmt.Sprintf("binding %s: required dimensions not scored: %v", b.ID, unresolved)
		return f
	}

	compliantFloor := b.CompliantFloor
	partialFloor := b.PartialFloor
	if compliantFloor == 0 {
		compliantFloor = pol.CompliantFloor
	}
	if partialFloor == 0 {
		partialFloor = pol.PartialFloor
	}

	// 2. Critical-dimension override: один провал пола — non_compliant,
	// агрегат не имеет значения.
	forced := false
	for _, dim := range sortedKeys(b.CriticalFloors) {
		floor := b.CriticalFloors[dim]
		s, ok := dims[dim]
		if !ok {
			continue // неоцененный критический пол ловится missingRequired, если он required
		}
		if s.Value < floor {
			forced = true
			f.Gaps = append(f.Gaps,
				fmt.Sprintf("dimension %s scored %.1f below critical floor %.1f", dim, s.Value, floor))
		}
	}

	if forced {
		f.Status = domain.StatusNonCompliant
	} else {
		f.Status = bucket(agg.Score, compliantFloor, partialFloor)
	}

	// 3. Пробелы по измерениям ниже partial-пола — для отчета о ремедиации
	if f.Status != domain.StatusCompliant {
		for _, dim := range sortedKeys2(dims) {
			if s := dims[dim]; s.Value < partialFloor {
				gap := fmt.Sprintf("dimension %s scored %.1f below %.1f", dim, s.Value, partialFloor)
				if !containsGap(f.Gaps, dim) {
					f.Gaps = append(f.Gaps, gap)
				}
			}
		}
	}

	// 4. Ремедиация и дедлайн по уровню enforcement
	mandatory := b.Enforcement == domain.EnforceRegulatory || b.Enforcement == domain.EnforceMandatory
	f.RemediationRequired = f.Status != domain.StatusCompliant || mandatory

	if f.RemediationRequired && f.Status != domain.StatusCompliant {
		switch b.Enforcement {
		case domain.EnforceRegulatory:
			d := now.Add(domain.DeadlineRegulatory)
			f.RemediationDeadline = &d
		case domain.EnforceMandatory:
			d := now.Add(domain.DeadlineMandatory)
			f.RemediationDeadline = &d
		}
	}

	return f
}

func missingRequired(b domain.PolicyBinding, dims map[string]domain.DimensionScore) []string {
	var out []string
	for _, dim := range b.RequiredDimensions {
		if _, ok := dims[dim]; !ok {
			out = append(out, dim)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]domain.DimensionScore) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsGap(gaps []string, dim string) bool {
	prefix := "dimension " + dim + " "
	for _, g := range gaps {
		if len(g) >= len(prefix) && g[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
