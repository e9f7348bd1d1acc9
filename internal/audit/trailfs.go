package audit

/*
Файл trailfs.go реализует компонент Trail File System — движок долговременной
персистентности цепочек аудита (Audit Trail).

Ключевые особенности архитектуры:
- Non-blocking Logging: Append в Ledger не ждет Postgres — события уходят
  в буферизованный канал, задержки БД не влияют на время ответа оценки.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) по таймеру или при достижении лимита батча.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью (Final Flush), потерь при перезагрузке нет.
- Reliability: воркер изолирован, завершающие операции идут с Background
  контекстом, так как основной контекст к этому моменту может быть закрыт.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события цепочек
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type TrailFS struct {
	ch     chan Event
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после Stop
	isClosed int32
}

func NewTrailFS(repo StorageInterface, bufferSize, batchSize int, flushInterval time.Duration, logger *zap.Logger) *TrailFS {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &TrailFS{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "trailfs")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (fs *TrailFS) Start() {
	fs.wg.Add(1)
	go fs.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (fs *TrailFS) Stop() {
	atomic.StoreInt32(&fs.isClosed, 1)

	// Крошечная пауза, чтобы конкурентные Log успели проскочить до close
	time.Sleep(10 * time.Millisecond)

	fs.logger.Info("stopping trail writer: closing channel and flushing buffer...")
	close(fs.ch)
	fs.wg.Wait()
	fs.logger.Info("trail writer stopped gracefully")
}

// Log реализует Sink. Неблокирующая запись со стратегией Load Shedding:
// при переполнении буфера событие фиксируется в логгере, чтобы данные
// не исчезали бесследно (цепочка в памяти при этом остается целой).
func (fs *TrailFS) Log(event Event) {
	if atomic.LoadInt32(&fs.isClosed) == 1 {
		fs.logger.Warn("audit event dropped: trail writer is stopping",
			zap.String("id", event.ID), zap.String("system_id", event.SystemID))
		return
	}

	select {
	case fs.ch <- event:
	default:
		fs.logger.Error("audit_buffer_overflow",
			zap.String("system_id", event.SystemID),
			zap.String("kind", string(event.Kind)),
			zap.Int("seq", event.Seq),
		)
	}
}

// Buffered — текущее наполнение буфера (для метрики backpressure).
func (fs *TrailFS) Buffered() int {
	return len(fs.ch)
}

func (fs *TrailFS) worker() {
	defer fs.wg.Done()

	batch := make([]Event, 0, fs.batchSize)
	ticker := time.NewTicker(fs.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст может быть уже отменен
			if err := fs.repo.WriteBatch(context.Background(), batch); err != nil {
				fs.logger.Error("audit flush failed", zap.Error(err), zap.Int("batch", len(batch)))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-fs.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный flush и выход
				flush()
				fs.logger.Info("trail worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= fs.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
