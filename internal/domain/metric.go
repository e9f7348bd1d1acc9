package domain

import "time"

// Classification — результат проверки одного сэмпла против порогов.
// Порядок важен: Rank() используется для определения "ухудшения" класса.
type Classification string

const (
	ClassWithinThreshold Classification = "within_threshold"
	ClassWarning         Classification = "warning"
	ClassCritical        Classification = "critical"
	ClassBreach          Classification = "breach"
)

// Rank возвращает числовую тяжесть класса (больше — хуже).
func (c Classification) Rank() int {
	switch c {
	case ClassWithinThreshold:
		return 0
	case ClassWarning:
		return 1
	case ClassCritical:
		return 2
	case ClassBreach:
		return 3
	}
	return -1
}

// ThresholdKind определяет семантику спецификации порога
type ThresholdKind string

const (
	ThresholdMin   ThresholdKind = "minimum" // значение не должно падать ниже
	ThresholdMax   ThresholdKind = "maximum" // значение не должно превышать
	ThresholdRange ThresholdKind = "range"   // значение должно оставаться в [Min, Max]
)

// ThresholdSpec — конфигурация порога для конкретной метрики.
// WarningMargin/CriticalMargin — ширина буферных зон перед жестким нарушением:
// выход за порог = breach, приближение к нему — warning/critical.
type ThresholdSpec struct {
	Metric string        `json:"metric"`
	Kind   ThresholdKind `json:"kind"`
	Min    float64       `json:"min,omitempty"`
	Max    float64       `json:"max,omitempty"`

	WarningMargin  float64 `json:"warning_margin"`
	CriticalMargin float64 `json:"critical_margin"`
}

// MonitoringMetric — один временной сэмпл метрики системы.
// Транзиентные данные: пишутся монитором, читаются дашбордами.
type MonitoringMetric struct {
	SystemID       string         `json:"system_id"`
	Metric         string         `json:"metric"`
	Value          float64        `json:"value"`
	Classification Classification `json:"classification"`
	Timestamp      time.Time      `json:"timestamp"`
}

// MonitorResult — ответ streamMonitoringSample.
type MonitorResult struct {
	Classification Classification `json:"classification"`
	AlertRaised    bool           `json:"alert_raised"`
}

// Alert — сигнал о переходе метрики в худший класс.
// Транслируется в Redis и фиксируется в аудит-цепочке.
type Alert struct {
	ID             string         `json:"id"`
	SystemID       string         `json:"system_id"`
	Metric         string         `json:"metric"`
	Value          float64        `json:"value"`
	Classification Classification `json:"classification"`
	Previous       Classification `json:"previous"`
	RaisedAt       time.Time      `json:"raised_at"`
}
