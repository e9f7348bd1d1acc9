package domain

import "time"

// EnforcementLevel определяет жесткость рамки и сроки ремедиации
type EnforcementLevel string

const (
	EnforceAdvisory    EnforcementLevel = "advisory"
	EnforceRecommended EnforcementLevel = "recommended"
	EnforceMandatory   EnforcementLevel = "mandatory"
	EnforceRegulatory  EnforcementLevel = "regulatory"
)

// Сроки ремедиации по уровню enforcement.
// advisory/recommended дедлайна не имеют.
const (
	DeadlineRegulatory = 30 * 24 * time.Hour
	DeadlineMandatory  = 60 * 24 * time.Hour
)

// PolicyBinding — связь системы (или класса систем, SystemID="*")
// с регуляторной рамкой и ее порогами.
type PolicyBinding struct {
	ID          string           `json:"id"`
	SystemID    string           `json:"system_id"` // "*" — для всего класса
	FrameworkID string           `json:"framework_id"`
	Enforcement EnforcementLevel `json:"enforcement"`

	// Пороговые значения агрегата для этой рамки.
	// Если нулевые — берутся дефолты StatusPolicy движка.
	CompliantFloor float64 `json:"compliant_floor,omitempty"` // >= — compliant
	PartialFloor   float64 `json:"partial_floor,omitempty"`   // >= — partially_compliant

	// CriticalFloors: измерение -> жесткий пол. Провал любого из них
	// форсирует non_compliant независимо от агрегата.
	CriticalFloors map[string]float64 `json:"critical_floors,omitempty"`

	// Измерения, которые рамка требует оценить. Если скорер их не покрыл
	// и дефолта нет — finding помечается not_applicable с warning.
	RequiredDimensions []string `json:"required_dimensions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComplianceFinding — результат проверки одного PolicyBinding
// против конкретной оценки.
type ComplianceFinding struct {
	BindingID   string           `json:"binding_id"`
	FrameworkID string           `json:"framework_id"`
	Status      ComplianceStatus `json:"status"`
	Score       float64          `json:"score"`
	Gaps        []string         `json:"gaps,omitempty"`

	RemediationRequired bool       `json:"remediation_required"`
	RemediationDeadline *time.Time `json:"remediation_deadline,omitempty"`

	// Warning выставляется, когда рамка ссылалась на неоцененные измерения
	// (PolicyBindingMismatch) и была обработана как not_applicable.
	Warning string `json:"warning,omitempty"`
}

// Framework — справочная запись о регуляторной рамке.
// Новые рамки добавляются как данные, без нового кода.
type Framework struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Enforcement EnforcementLevel `json:"enforcement"`

	CompliantFloor float64            `json:"compliant_floor"`
	PartialFloor   float64            `json:"partial_floor"`
	CriticalFloors map[string]float64 `json:"critical_floors,omitempty"`
}

// KnownFrameworks — встроенный справочник (lookup table вместо иерархии
// классов-чекеров). Может расширяться записями из БД.
var KnownFrameworks = map[string]Framework{
	"EU_AI_Act": {
		ID:             "EU_AI_Act",
		Name:           "EU Artificial Intelligence Act",
		Enforcement:    EnforceRegulatory,
		CompliantFloor: 8.0,
		PartialFloor:   5.0,
		CriticalFloors: map[string]float64{DimBias: 4.0, DimRegulatory: 4.0},
	},
	"NIST_AI_RMF": {
		ID:             "NIST_AI_RMF",
		Name:           "NIST AI Risk Management Framework",
		Enforcement:    EnforceRecommended,
		CompliantFloor: 8.0,
		PartialFloor:   5.0,
	},
	"ISO_42001": {
		ID:             "ISO_42001",
		Name:           "ISO/IEC 42001:2023 AI Management System",
		Enforcement:    EnforceMandatory,
		CompliantFloor: 8.0,
		PartialFloor:   5.0,
	},
	"GDPR_AI": {
		ID:             "GDPR_AI",
		Name:           "GDPR AI-Specific Requirements",
		Enforcement:    EnforceRegulatory,
		CompliantFloor: 8.0,
		PartialFloor:   5.0,
		CriticalFloors: map[string]float64{DimPrivacy: 5.0},
	},
}

// DefaultBinding собирает PolicyBinding из справочника рамок.
// Используется, когда у системы задан regulatory_scope, но явных байндингов в БД нет.
func DefaultBinding(systemID, frameworkID string) (PolicyBinding, bool) {
	fw, ok := KnownFrameworks[frameworkID]
	if !ok {
		return PolicyBinding{}, false
	}
	return PolicyBinding{
		ID:             "default:" + frameworkID,
		SystemID:       systemID,
		FrameworkID:    fw.ID,
		Enforcement:    fw.Enforcement,
		CompliantFloor: fw.CompliantFloor,
		PartialFloor:   fw.PartialFloor,
		CriticalFloors: fw.CriticalFloors,
	}, true
}
