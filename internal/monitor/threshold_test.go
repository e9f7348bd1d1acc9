package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

func latencySpec() domain.ThresholdSpec {
	// maximum 500ms, critical при заходе в последние 100, warning — в 200
	return domain.ThresholdSpec{
		Metric:         "p95_latency_ms",
		Kind:           domain.ThresholdMax,
		Max:            500,
		WarningMargin:  200,
		CriticalMargin: 100,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		spec  domain.ThresholdSpec
		value float64
		want  domain.Classification
	}{
		{"max within", latencySpec(), 250, domain.ClassWithinThreshold},
		{"max warning", latencySpec(), 320, domain.ClassWarning},
		{"max critical", latencySpec(), 450, domain.ClassCritical},
		{"max breach", latencySpec(), 501, domain.ClassBreach},
		{"max on boundary stays in better class", latencySpec(), 500, domain.ClassCritical},

		{"min breach", domain.ThresholdSpec{Kind: domain.ThresholdMin, Min: 7, WarningMargin: 2, CriticalMargin: 1}, 6.5, domain.ClassBreach},
		{"min critical", domain.ThresholdSpec{Kind: domain.ThresholdMin, Min: 7, WarningMargin: 2, CriticalMargin: 1}, 7.5, domain.ClassCritical},
		{"min warning", domain.ThresholdSpec{Kind: domain.ThresholdMin, Min: 7, WarningMargin: 2, CriticalMargin: 1}, 8.5, domain.ClassWarning},
		{"min within", domain.ThresholdSpec{Kind: domain.ThresholdMin, Min: 7, WarningMargin: 2, CriticalMargin: 1}, 9.5, domain.ClassWithinThreshold},

		{"range lower breach", domain.ThresholdSpec{Kind: domain.ThresholdRange, Min: 10, Max: 20}, 9, domain.ClassBreach},
		{"range upper breach", domain.ThresholdSpec{Kind: domain.ThresholdRange, Min: 10, Max: 20}, 21, domain.ClassBreach},
		{"range within", domain.ThresholdSpec{Kind: domain.ThresholdRange, Min: 10, Max: 20}, 15, domain.ClassWithinThreshold},

		{"no margins gives binary classification", domain.ThresholdSpec{Kind: domain.ThresholdMax, Max: 100}, 99, domain.ClassWithinThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.value, tt.spec))
		})
	}
}

func newTestTracker(policy AlertPolicy) *Tracker {
	return NewTracker(map[string]domain.ThresholdSpec{"p95_latency_ms": latencySpec()}, policy)
}

func observe(t *testing.T, tr *Tracker, value float64) (domain.MonitorResult, *domain.Alert) {
	t.Helper()
	res, alert, err := tr.Observe("sys-1", "p95_latency_ms", value, time.Now())
	require.NoError(t, err)
	return res, alert
}

func TestTrackerScenarioCooldown(t *testing.T) {
	// Сценарий E: critical три сэмпла подряд при cooldown=2 ->
	// ровно один алерт, не три
	tr := newTestTracker(AlertPolicy{CooldownSamples: 2, MinConsecutive: 1})

	alerts := 0
	for i := 0; i < 3; i++ {
		res, alert := observe(t, tr, 450)
		assert.Equal(t, domain.ClassCritical, res.Classification)
		if alert != nil {
			alerts++
		}
	}
	assert.Equal(t, 1, alerts)

	// Четвертый сэмпл — кулдаун истек, повторный алерт при сохраняющемся нарушении
	res, alert := observe(t, tr, 450)
	assert.True(t, res.AlertRaised)
	require.NotNil(t, alert)
	assert.Equal(t, domain.ClassCritical, alert.Classification)
}

func TestTrackerAlertsOnWorseTransition(t *testing.T) {
	tr := newTestTracker(DefaultAlertPolicy())

	_, alert := observe(t, tr, 320) // warning
	require.NotNil(t, alert)
	assert.Equal(t, domain.ClassWarning, alert.Classification)
	assert.Equal(t, domain.ClassWithinThreshold, alert.Previous)

	// Ухудшение warning -> critical алертит сразу, кулдаун не мешает
	_, alert = observe(t, tr, 450)
	require.NotNil(t, alert)
	assert.Equal(t, domain.ClassCritical, alert.Classification)
	assert.Equal(t, domain.ClassWarning, alert.Previous)

	// Тот же класс сразу после алерта — подавлен
	_, alert = observe(t, tr, 460)
	assert.Nil(t, alert)
}

func TestTrackerReturnToNormalClearsState(t *testing.T) {
	tr := newTestTracker(AlertPolicy{CooldownSamples: 5, MinConsecutive: 1})

	_, alert := observe(t, tr, 450)
	require.NotNil(t, alert)

	res, alert := observe(t, tr, 100) // возврат в норму
	assert.Equal(t, domain.ClassWithinThreshold, res.Classification)
	assert.Nil(t, alert)

	// Новое нарушение после возврата — свежий алерт без ожидания кулдауна
	_, alert = observe(t, tr, 450)
	require.NotNil(t, alert)
}

func TestTrackerMinConsecutiveDebounce(t *testing.T) {
	// Одиночный выброс (flapping) не алертит при MinConsecutive=2
	tr := newTestTracker(AlertPolicy{CooldownSamples: 2, MinConsecutive: 2})

	res, alert := observe(t, tr, 450)
	assert.Equal(t, domain.ClassCritical, res.Classification)
	assert.Nil(t, alert)

	// Второй подряд — порог продержался, алерт уходит
	_, alert = observe(t, tr, 455)
	require.NotNil(t, alert)

	// Возврат в норму и одиночный выброс снова молчит
	observe(t, tr, 100)
	_, alert = observe(t, tr, 450)
	assert.Nil(t, alert)
}

func TestTrackerImprovementThenWorseAlertsAgain(t *testing.T) {
	tr := newTestTracker(AlertPolicy{CooldownSamples: 10, MinConsecutive: 1})

	_, alert := observe(t, tr, 450) // critical — алерт
	require.NotNil(t, alert)

	_, alert = observe(t, tr, 320) // улучшение до warning — молчим
	assert.Nil(t, alert)

	_, alert = observe(t, tr, 455) // снова critical — это ухудшение, алерт
	require.NotNil(t, alert)
	assert.Equal(t, domain.ClassCritical, alert.Classification)
}

func TestTrackerUnknownMetric(t *testing.T) {
	tr := newTestTracker(DefaultAlertPolicy())
	_, _, err := tr.Observe("sys-1", "no_such_metric", 1, time.Now())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))
}

func TestTrackerStateIsolatedPerSystemAndMetric(t *testing.T) {
	tr := newTestTracker(AlertPolicy{CooldownSamples: 5, MinConsecutive: 1})

	_, alert, err := tr.Observe("sys-1", "p95_latency_ms", 450, time.Now())
	require.NoError(t, err)
	require.NotNil(t, alert)

	// Другая система с тем же нарушением получает собственный алерт
	_, alert, err = tr.Observe("sys-2", "p95_latency_ms", 450, time.Now())
	require.NoError(t, err)
	require.NotNil(t, alert)
}
