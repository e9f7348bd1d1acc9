package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu     sync.Mutex
	events []Event
}

func (s *memStorage) WriteBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestTrailFSFlushesOnStop(t *testing.T) {
	store := &memStorage{}
	fs := NewTrailFS(store, 100, 10, time.Hour, zap.NewNop()) // flush по таймеру не успеет
	fs.Start()

	for i := 0; i < 7; i++ {
		fs.Log(Event{ID: "e", SystemID: "sys-1", Seq: i})
	}
	fs.Stop() // Drain Pattern: остатки дописываются при остановке

	assert.Equal(t, 7, store.count())
}

func TestTrailFSBatchLimit(t *testing.T) {
	store := &memStorage{}
	fs := NewTrailFS(store, 100, 5, time.Hour, zap.NewNop())
	fs.Start()

	for i := 0; i < 5; i++ {
		fs.Log(Event{ID: "e", SystemID: "sys-1", Seq: i})
	}

	// Достигнут лимит батча — запись происходит без ожидания таймера
	require.Eventually(t, func() bool { return store.count() == 5 },
		2*time.Second, 10*time.Millisecond)
	fs.Stop()
}

func TestTrailFSDropsAfterStop(t *testing.T) {
	store := &memStorage{}
	fs := NewTrailFS(store, 100, 10, time.Hour, zap.NewNop())
	fs.Start()
	fs.Stop()

	// После Stop событие не принимается и не паникует на закрытом канале
	fs.Log(Event{ID: "late", SystemID: "sys-1"})
	assert.Equal(t, 0, store.count())
}

func TestLedgerForwardsToSink(t *testing.T) {
	store := &memStorage{}
	fs := NewTrailFS(store, 100, 1, time.Hour, zap.NewNop())
	fs.Start()

	l := NewLedger(fs, zap.NewNop())
	tail, _ := l.Tail("sys-1")
	_, err := l.Append(Event{SystemID: "sys-1", Kind: EventAssessmentCompleted}, tail)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.count() == 1 },
		2*time.Second, 10*time.Millisecond)
	fs.Stop()
}
