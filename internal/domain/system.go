package domain

import "time"

type ComplianceStatus string

const (
	StatusCompliant     ComplianceStatus = "compliant"           // Полное соответствие
	StatusPartial       ComplianceStatus = "partially_compliant" // Есть пробелы, требуется ремедиация
	StatusNonCompliant  ComplianceStatus = "non_compliant"       // Нарушение порогов или критического пола
	StatusNotApplicable ComplianceStatus = "not_applicable"      // Рамка не применима к системе
	StatusUnknown       ComplianceStatus = "unknown"             // Система еще ни разу не оценивалась
)

// AISystem — поднадзорная сущность (Entity). Текущий скор и статус меняются
// ТОЛЬКО через завершенную оценку (AssessmentRecord), никогда напрямую.
type AISystem struct {
	ID               string           `json:"id"` // Стабильный уникальный ключ (UUID или slug)
	Name             string           `json:"name"`
	SystemType       string           `json:"system_type"`       // например, "llm", "scoring_model", "cv_pipeline"
	SystemClass      string           `json:"system_class"`      // Класс для подбора профиля весов и соседей
	DeploymentStatus string           `json:"deployment_status"` // development / staging / production
	OwnerTeam        string           `json:"owner_team"`
	RegulatoryScope  []string         `json:"regulatory_scope"` // Применимые рамки: EU_AI_Act, GDPR_AI...
	CurrentScore     float64          `json:"current_score"`    // Агрегат последней оценки
	CurrentStatus    ComplianceStatus `json:"current_status"`

	// Оптимистическая блокировка: номер последней зафиксированной оценки.
	// UPDATE ... WHERE assessment_seq = $expected гарантирует single-writer per entity.
	AssessmentSeq    int64     `json:"assessment_seq"`
	LastAssessmentID string    `json:"last_assessment_id"`
	LastAssessmentAt time.Time `json:"last_assessment_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Metadata map[string]interface{} `json:"metadata"`
}
