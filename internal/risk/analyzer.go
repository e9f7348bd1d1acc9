package risk

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// ChangeEvent — уведомление об изменении поднадзорной системы
// (деплой новой версии, смена датасета, инцидент).
type ChangeEvent struct {
	SystemID string `json:"system_id"`
	Kind     string `json:"kind"` // deployment / data_change / incident / config_change
	// Детали изменения; структура зависит от источника
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Analyzer решает, требует ли изменение системы внеплановой оценки
// и какого вида. Правила приходят данными (metadata системы), не кодом.
type Analyzer struct {
	logger *zap.Logger
}

func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger.Named("analyzer")}
}

// Triage возвращает вид требуемой оценки или ok=false, если изменение
// не требует реакции.
func (a *Analyzer) Triage(system *domain.AISystem, ev ChangeEvent) (domain.AssessmentKind, bool) {
	// 1. Инцидент — всегда внеплановая инцидентная оценка
	if ev.Kind == "incident" {
		return domain.KindIncident, true
	}

	// 2. Продакшен-системы переоцениваются на каждый деплой
	if ev.Kind == "deployment" && system.DeploymentStatus == "production" {
		return domain.KindChangeTriggered, true
	}

	// 3. Динамический триггер: metadata системы может объявить рисковое
	// поле и порог, например {"risk_field": "affected_users", "risk_threshold": 10000}
	if field, ok := system.Metadata["risk_field"].(string); ok && field != "" && len(ev.Payload) > 0 {
		threshold, _ := system.Metadata["risk_threshold"].(float64)

		var payload map[string]interface{}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			a.logger.Error("failed to unmarshal change payload for risk triage",
				zap.String("system_id", system.ID), zap.Error(err))
			return "", false
		}

		if rawValue, ok := payload[field]; ok {
			// В JSON числа всегда парсятся в float64
			if val, ok := rawValue.(float64); ok && val > threshold {
				a.logger.Warn("CHANGE-TRIGGERED ASSESSMENT",
					zap.String("system_id", system.ID),
					zap.String("field", field),
					zap.Float64("value", val),
					zap.Float64("threshold", threshold))
				return domain.KindChangeTriggered, true
			}
		}
	}

	return "", false
}
