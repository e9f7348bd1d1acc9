package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// Classify — чистая функция: класс одного сэмпла против спецификации порога.
// Состояния здесь нет, дебаунс и кулдаун живут в Tracker.
//
// Зоны (на примере maximum): выход за Max — breach; ближе CriticalMargin
// к порогу — critical; ближе WarningMargin — warning; иначе within_threshold.
func Classify(value float64, spec domain.ThresholdSpec) domain.Classification {
	switch spec.Kind {
	case domain.ThresholdMax:
		return classifyAgainstMax(value, spec.Max, spec.WarningMargin, spec.CriticalMargin)
	case domain.ThresholdMin:
		return classifyAgainstMin(value, spec.Min, spec.WarningMargin, spec.CriticalMargin)
	case domain.ThresholdRange:
		upper := classifyAgainstMax(value, spec.Max, spec.WarningMargin, spec.CriticalMargin)
		lower := classifyAgainstMin(value, spec.Min, spec.WarningMargin, spec.CriticalMargin)
		if upper.Rank() >= lower.Rank() {
			return upper
		}
		return lower
	}
	return domain.ClassWithinThreshold
}

func classifyAgainstMax(value, max, warnMargin, critMargin float64) domain.Classification {
	switch {
	case value > max:
		return domain.ClassBreach
	case critMargin > 0 && value > max-critMargin:
		return domain.ClassCritical
	case warnMargin > 0 && value > max-warnMargin:
		return domain.ClassWarning
	default:
		return domain.ClassWithinThreshold
	}
}

func classifyAgainstMin(value, min, warnMargin, critMargin float64) domain.Classification {
	switch {
	case value < min:
		return domain.ClassBreach
	case critMargin > 0 && value < min+critMargin:
		return domain.ClassCritical
	case warnMargin > 0 && value < min+warnMargin:
		return domain.ClassWarning
	default:
		return domain.ClassWithinThreshold
	}
}

// AlertPolicy — политика эмиссии алертов.
type AlertPolicy struct {
	// CooldownSamples: после алерта повторный по той же метрике
	// подавляется на это число сэмплов, пока класс не ухудшился.
	CooldownSamples int `mapstructure:"cooldown_samples"`
	// MinConsecutive: нарушение должно продержаться столько сэмплов
	// подряд, прежде чем уйдет алерт (защита от single-sample flapping).
	MinConsecutive int `mapstructure:"min_consecutive"`
}

func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{CooldownSamples: 2, MinConsecutive: 1}
}

// trackState — состояние дебаунса по ключу (система, метрика).
type trackState struct {
	alertedRank int // Класс, о котором уже сообщили (-1 — не сообщали)
	lastClass   domain.Classification
	pending     int // Подряд идущие сэмплы хуже alertedRank
	sinceAlert  int // Сэмплы с момента последнего алерта
}

// Tracker — stateful часть монитора: классификация сэмплов + дебаунс
// алертов по (система, метрика). Классификация каждого сэмпла независима;
// состояние влияет только на то, будет ли поднят алерт.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*trackState
	specs  map[string]domain.ThresholdSpec
	policy AlertPolicy
}

func NewTracker(specs map[string]domain.ThresholdSpec, policy AlertPolicy) *Tracker {
	if policy.MinConsecutive <= 0 {
		policy.MinConsecutive = 1
	}
	if specs == nil {
		specs = make(map[string]domain.ThresholdSpec)
	}
	return &Tracker{
		states: make(map[string]*trackState),
		specs:  specs,
		policy: policy,
	}
}

// SetSpec регистрирует (или заменяет) порог для метрики.
func (t *Tracker) SetSpec(metric string, spec domain.ThresholdSpec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.specs[metric] = spec
}

// Observe обрабатывает один сэмпл. Возвращает классификацию и алерт,
// если произошел переход в худший класс (с учетом MinConsecutive)
// либо истек кулдаун при сохраняющемся нарушении.
func (t *Tracker) Observe(systemID, metric string, value float64, ts time.Time) (domain.MonitorResult, *domain.Alert, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spec, ok := t.specs[metric]
	if !ok {
		return domain.MonitorResult{}, nil, domain.NewError(domain.ErrKindValidation, systemID,
			fmt.Errorf("monitor: no threshold spec for metric %q", metric))
	}

	class := Classify(value, spec)
	key := systemID + "|" + metric

	st, exists := t.states[key]
	if !exists {
		st = &trackState{alertedRank: -1, lastClass: domain.ClassWithinThreshold}
		t.states[key] = st
	}

	// Возврат в норму полностью очищает кулдаун-состояние
	if class == domain.ClassWithinThreshold {
		st.alertedRank = -1
		st.pending = 0
		st.sinceAlert = 0
		st.lastClass = class
		return domain.MonitorResult{Classification: class}, nil, nil
	}

	var alert *domain.Alert
	prev := st.lastClass

	switch {
	case class.Rank() > st.alertedRank:
		// Ухудшение относительно уже объявленного класса:
		// ждем MinConsecutive подряд, затем алерт
		st.pending++
		if st.pending >= t.policy.MinConsecutive {
			alert = t.buildAlert(systemID, metric, value, class, prev, ts)
			st.alertedRank = class.Rank()
			st.pending = 0
			st.sinceAlert = 0
		}

	case class.Rank() < st.alertedRank:
		// Улучшение, но все еще нарушение: фиксируем новый уровень,
		// последующее ухудшение снова даст алерт
		st.alertedRank = class.Rank()
		st.pending = 0
		st.sinceAlert++

	default:
		// Тот же класс: повторный алерт только после кулдауна
		st.pending = 0
		st.sinceAlert++
		if t.policy.CooldownSamples > 0 && st.sinceAlert > t.policy.CooldownSamples {
			alert = t.buildAlert(systemID, metric, value, class, prev, ts)
			st.sinceAlert = 0
		}
	}

	st.lastClass = class
	return domain.MonitorResult{Classification: class, AlertRaised: alert != nil}, alert, nil
}

func (t *Tracker) buildAlert(systemID, metric string, value float64, class, prev domain.Classification, ts time.Time) *domain.Alert {
	return &domain.Alert{
		ID:             uuid.New().String(),
		SystemID:       systemID,
		Metric:         metric,
		Value:          value,
		Classification: class,
		Previous:       prev,
		RaisedAt:       ts,
	}
}
