package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/domain"
)

type memMetricStore struct {
	mu      sync.Mutex
	samples []domain.MonitoringMetric
}

func (s *memMetricStore) InsertSample(_ context.Context, m domain.MonitoringMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, m)
	return nil
}

func newTestService(store MetricStore) (*Service, *audit.Ledger) {
	tracker := NewTracker(map[string]domain.ThresholdSpec{"p95_latency_ms": latencySpec()},
		AlertPolicy{CooldownSamples: 2, MinConsecutive: 1})
	ledger := audit.NewLedger(nil, zap.NewNop())
	svc := NewService(tracker, ledger, store, nil, nil, 3, zap.NewNop())
	return svc, ledger
}

func TestStreamSamplePersistsAndClassifies(t *testing.T) {
	store := &memMetricStore{}
	svc, _ := newTestService(store)

	res, err := svc.StreamSample(context.Background(), "sys-1", "p95_latency_ms", 250, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClassWithinThreshold, res.Classification)
	assert.False(t, res.AlertRaised)

	require.Len(t, store.samples, 1)
	assert.Equal(t, domain.ClassWithinThreshold, store.samples[0].Classification)
}

func TestStreamSampleRecordsAlertInChain(t *testing.T) {
	svc, ledger := newTestService(&memMetricStore{})

	res, err := svc.StreamSample(context.Background(), "sys-1", "p95_latency_ms", 450, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClassCritical, res.Classification)
	assert.True(t, res.AlertRaised)

	events := ledger.Export("sys-1", time.Time{}, time.Time{})
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventAlertRaised, events[0].Kind)
	assert.Equal(t, "threshold-monitor", events[0].Actor)
	assert.Equal(t, "p95_latency_ms", events[0].Payload["metric"])

	assert.True(t, ledger.Verify("sys-1").Valid)
}

func TestStreamSampleValidation(t *testing.T) {
	svc, _ := newTestService(&memMetricStore{})
	_, err := svc.StreamSample(context.Background(), "", "p95_latency_ms", 1, time.Now())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))
}

type stubSource struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSource) Sample(_ context.Context, _, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 100, nil
}

func (s *stubSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSamplerCancellation(t *testing.T) {
	svc, _ := newTestService(&memMetricStore{})
	source := &stubSource{}
	sampler := NewSampler(svc, source, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	sampler.Watch(ctx, "sys-1", "p95_latency_ms", 10*time.Millisecond)

	require.Eventually(t, func() bool { return source.count() >= 2 },
		2*time.Second, 5*time.Millisecond)

	cancel()
	sampler.Wait() // Завершается без зависания и без порчи состояния
}
