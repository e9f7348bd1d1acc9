package domain

import "time"

// Шкала всех скоров и конфиденсов: [0, 10].
const (
	ScoreMin = 0.0
	ScoreMax = 10.0
)

// Канонические измерения риска. Новые измерения добавляются как данные
// (профиль весов в конфиге), а не как код.
const (
	DimBias           = "bias"
	DimPrivacy        = "privacy"
	DimSecurity       = "security"
	DimExplainability = "explainability"
	DimRegulatory     = "regulatory"
)

type AssessmentKind string

const (
	KindInitial         AssessmentKind = "initial"
	KindPeriodic        AssessmentKind = "periodic"
	KindChangeTriggered AssessmentKind = "change_triggered"
	KindIncident        AssessmentKind = "incident"
)

// DimensionScore — результат внешнего скорера по одному измерению.
// Движок потребляет его read-only и никогда не пересчитывает.
type DimensionScore struct {
	Dimension  string  `json:"dimension"`
	Value      float64 `json:"value"`      // [0,10]
	Confidence float64 `json:"confidence"` // [0,10]
	Source     string  `json:"source"`     // ID скорер-сервиса

	// Ссылка на rationale/цитаты из внешнего text-generation сервиса.
	// Содержимое для движка непрозрачно (opaque evidence reference).
	EvidenceRef string `json:"evidence_ref,omitempty"`
}

// AssessmentRecord — одна завершенная оценка системы. Иммутабельна:
// новая оценка создает новую запись, старые не редактируются.
type AssessmentRecord struct {
	ID         string         `json:"id"`
	SystemID   string         `json:"system_id"`
	AssessorID string         `json:"assessor_id"`
	Kind       AssessmentKind `json:"kind"`

	Dimensions map[string]DimensionScore `json:"dimensions"`
	// Breakdown — нормализованные веса, которые реально применялись
	// (после перераспределения отсутствующих измерений).
	Breakdown map[string]float64 `json:"breakdown"`

	Aggregate float64          `json:"aggregate"` // [0,10]
	Status    ComplianceStatus `json:"status"`
	Degraded  bool             `json:"degraded"` // Часть измерений отсутствовала

	Findings       []ComplianceFinding `json:"findings"`
	MitigationRefs []string            `json:"mitigation_refs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AssessmentResult — то, что возвращается вызывающему submitAssessment.
// Результат отдается даже при отказе записи аудита (AuditPersisted=false),
// чтобы решение никогда не терялось молча.
type AssessmentResult struct {
	Record         *AssessmentRecord `json:"record"`
	AggregateScore float64           `json:"aggregate_score"`
	Status         ComplianceStatus  `json:"status"`
	Findings       []ComplianceFinding `json:"findings"`
	Degraded       bool              `json:"degraded"`
	AuditPersisted bool              `json:"audit_persisted"`
	Warnings       []string          `json:"warnings,omitempty"`
}

func ValidAssessmentKind(k AssessmentKind) bool {
	switch k {
	case KindInitial, KindPeriodic, KindChangeTriggered, KindIncident:
		return true
	}
	return false
}
