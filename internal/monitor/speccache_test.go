package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

type memSpecRepo struct {
	mu    sync.Mutex
	specs map[string]domain.ThresholdSpec
}

func (r *memSpecRepo) ListThresholdSpecs(_ context.Context) ([]domain.ThresholdSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ThresholdSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out, nil
}

func (r *memSpecRepo) UpsertThresholdSpec(_ context.Context, spec domain.ThresholdSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.specs == nil {
		r.specs = make(map[string]domain.ThresholdSpec)
	}
	r.specs[spec.Metric] = spec
	return nil
}

func TestSpecSyncerRefreshLoadsTracker(t *testing.T) {
	repo := &memSpecRepo{specs: map[string]domain.ThresholdSpec{
		"error_rate": {Metric: "error_rate", Kind: domain.ThresholdMax, Max: 0.05, WarningMargin: 0.01, CriticalMargin: 0.005},
	}}
	tracker := NewTracker(nil, AlertPolicy{})
	syncer := NewSpecSyncer(tracker, repo, nil, zap.NewNop())

	require.NoError(t, syncer.Refresh(context.Background()))

	// Порог применен: значение выше Max классифицируется как breach
	res, _, err := tracker.Observe("sys-1", "error_rate", 0.2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClassBreach, res.Classification)
}

func TestSpecSyncerSaveSpecAppliesLocally(t *testing.T) {
	repo := &memSpecRepo{}
	tracker := NewTracker(nil, AlertPolicy{})
	syncer := NewSpecSyncer(tracker, repo, nil, zap.NewNop())

	spec := domain.ThresholdSpec{Metric: "accuracy", Kind: domain.ThresholdMin, Min: 0.9, WarningMargin: 0.02, CriticalMargin: 0.01}
	require.NoError(t, syncer.SaveSpec(context.Background(), spec))

	// В БД и в локальном Tracker одновременно
	stored, err := repo.ListThresholdSpecs(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)

	res, _, err := tracker.Observe("sys-1", "accuracy", 0.5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClassBreach, res.Classification)
}
