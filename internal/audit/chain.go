package audit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// Sink принимает успешно добавленные события для долговременного хранения.
// Реализуется TrailFS: запись асинхронная и не задерживает Append.
type Sink interface {
	Log(event Event)
}

// Ledger — арена append-only цепочек, по одной на систему.
// In-memory состояние авторитетно для хвоста (optimistic check);
// долговременность обеспечивает Sink + гидрация при старте.
type Ledger struct {
	mu     sync.RWMutex
	chains map[string][]Event
	frozen map[string]struct{} // Цепочки с зафиксированным IntegrityViolation

	sink   Sink
	logger *zap.Logger
}

func NewLedger(sink Sink, logger *zap.Logger) *Ledger {
	return &Ledger{
		chains: make(map[string][]Event),
		frozen: make(map[string]struct{}),
		sink:   sink,
		logger: logger.Named("ledger"),
	}
}

// Tail возвращает хэш и позицию хвоста цепочки. Для пустой цепочки —
// genesis-хэш и seq=-1. Вызывающий передает этот хэш в Append как
// expectedTail (optimistic concurrency).
func (l *Ledger) Tail(systemID string) (hash string, seq int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tailLocked(systemID)
}

func (l *Ledger) tailLocked(systemID string) (string, int) {
	chain := l.chains[systemID]
	if len(chain) == 0 {
		return GenesisHash(systemID), -1
	}
	last := chain[len(chain)-1]
	return last.Hash, last.Seq
}

// Append добавляет событие в цепочку системы.
//   - expectedTail не совпал с фактическим хвостом -> ConcurrentAppendError,
//     вызывающий перечитывает Tail и повторяет;
//   - цепочка заморожена после IntegrityViolation -> запись отклоняется
//     до операторского Reanchor.
//
// Seq, PrevHash и Hash проставляются здесь; поля события, переданные
// вызывающим, в хэш входят как есть.
func (l *Ledger) Append(ev Event, expectedTail string) (Event, error) {
	if ev.SystemID == "" {
		return Event{}, domain.NewError(domain.ErrKindValidation, "", fmt.Errorf("audit: event without system id"))
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	// Храним в той же точности, что и контент-хэш: после гидрации из БД
	// событие должно быть байт-в-байт тем же
	ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Microsecond)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, bad := l.frozen[ev.SystemID]; bad {
		return Event{}, domain.NewError(domain.ErrKindIntegrity, ev.SystemID,
			fmt.Errorf("audit: chain is frozen after integrity violation, re-anchor required"))
	}

	tailHash, tailSeq := l.tailLocked(ev.SystemID)
	if expectedTail != tailHash {
		return Event{}, domain.NewError(domain.ErrKindConcurrentAppend, ev.SystemID,
			fmt.Errorf("audit: tail advanced (expected %.8s, actual %.8s)", expectedTail, tailHash))
	}

	ev.Seq = tailSeq + 1
	ev.PrevHash = tailHash

	hash, err := ComputeHash(ev, ev.PrevHash)
	if err != nil {
		return Event{}, err
	}
	ev.Hash = hash

	l.chains[ev.SystemID] = append(l.chains[ev.SystemID], ev)

	// Асинхронная долговременная запись; hot path не ждет БД
	if l.sink != nil {
		l.sink.Log(ev)
	}
	return ev, nil
}

// VerifyResult — итог проверки целостности.
type VerifyResult struct {
	Valid        bool `json:"valid"`
	FirstInvalid int  `json:"first_invalid_index,omitempty"` // Индекс первого расхождения (валидна: -1)
	Length       int  `json:"length"`
	VerifiedFrom int  `json:"verified_from"` // Начало проверенного сегмента (индекс последнего re-anchor, иначе 0)
}

// Verify пересчитывает хэши по read-only снимку, не держа
// write-блокировку. Ловит и подмену контента, и перестановку/выпадение
// событий: seq и prev-хэш входят в пересчет.
//
// Пересчет идет от последнего маркера re-anchor (для цепочки без
// маркеров — от genesis): все до маркера — записанный оператором
// разрыв, его пересчет цепочку не реабилитирует и повторно не
// замораживает. Расхождение в текущем сегменте фатально: цепочка
// замораживается до операторского Reanchor, починки "молча" не
// происходит.
func (l *Ledger) Verify(systemID string) VerifyResult {
	l.mu.RLock()
	chain := make([]Event, len(l.chains[systemID]))
	copy(chain, l.chains[systemID])
	l.mu.RUnlock()

	start := 0
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Kind == EventChainReanchored {
			start = i
			break
		}
	}

	res := VerifyResult{Valid: true, FirstInvalid: -1, Length: len(chain), VerifiedFrom: start}

	expectedPrev := GenesisHash(systemID)
	for i := start; i < len(chain); i++ {
		ev := chain[i]
		// Маркер re-anchor открывает новый сегмент со своим якорем
		if ev.Kind == EventChainReanchored {
			expectedPrev = AnchorHash(systemID, ev.Seq)
		}

		if ev.Seq != i || ev.PrevHash != expectedPrev {
			res.Valid = false
			res.FirstInvalid = i
			break
		}

		recomputed, err := ComputeHash(ev, ev.PrevHash)
		if err != nil || recomputed != ev.Hash {
			res.Valid = false
			res.FirstInvalid = i
			break
		}
		expectedPrev = ev.Hash
	}

	if !res.Valid {
		l.freeze(systemID, res.FirstInvalid)
	}
	return res
}

func (l *Ledger) freeze(systemID string, index int) {
	l.mu.Lock()
	_, already := l.frozen[systemID]
	l.frozen[systemID] = struct{}{}
	l.mu.Unlock()

	if !already {
		l.logger.Error("INTEGRITY VIOLATION: chain frozen",
			zap.String("system_id", systemID),
			zap.Int("first_invalid_index", index))
	}
}

// Freeze блокирует запись в цепочку (например, по сигналу с другого
// инстанса через Redis).
func (l *Ledger) Freeze(systemID string) {
	l.freeze(systemID, -1)
}

// Unfreeze снимает локальную заморозку без записи маркера. Используется
// только для синхронизации, когда Reanchor выполнил другой инстанс и
// маркер разрыва уже в цепочке.
func (l *Ledger) Unfreeze(systemID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.frozen, systemID)
}

// IsFrozen — текущий статус цепочки.
func (l *Ledger) IsFrozen(systemID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, bad := l.frozen[systemID]
	return bad
}

// Reanchor — явное операторское действие: открывает новый сегмент цепочки
// с записанным маркером разрыва и снимает заморозку. Никогда не вызывается
// автоматически.
func (l *Ledger) Reanchor(systemID, operator, reason string) (Event, error) {
	l.mu.Lock()

	_, tailSeq := l.tailLocked(systemID)
	seq := tailSeq + 1

	ev := Event{
		ID:       uuid.New().String(),
		SystemID: systemID,
		Seq:      seq,
		Kind:     EventChainReanchored,
		Actor:    operator,
		Payload: map[string]interface{}{
			"reason":        reason,
			"discontinuity": true,
			"prior_tail":    tailSeq,
		},
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:  AnchorHash(systemID, seq),
	}

	hash, err := ComputeHash(ev, ev.PrevHash)
	if err != nil {
		l.mu.Unlock()
		return Event{}, err
	}
	ev.Hash = hash

	l.chains[systemID] = append(l.chains[systemID], ev)
	delete(l.frozen, systemID)
	l.mu.Unlock()

	l.logger.Warn("chain re-anchored by operator",
		zap.String("system_id", systemID),
		zap.String("operator", operator),
		zap.Int("seq", seq))

	if l.sink != nil {
		l.sink.Log(ev)
	}
	return ev, nil
}

// Export возвращает упорядоченный срез событий за интервал [from, to].
// Нулевые границы означают "без ограничения". Только чтение.
func (l *Ledger) Export(systemID string, from, to time.Time) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := l.chains[systemID]
	out := make([]Event, 0, len(chain))
	for _, ev := range chain {
		if !from.IsZero() && ev.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && ev.Timestamp.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Hydrate восстанавливает цепочки из долговременного хранилища при старте.
// События каждой системы сортируются по seq; целостность здесь не
// проверяется — это работа Verify.
func (l *Ledger) Hydrate(events []Event) {
	bySystem := make(map[string][]Event)
	for _, ev := range events {
		bySystem[ev.SystemID] = append(bySystem[ev.SystemID], ev)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, chain := range bySystem {
		sort.Slice(chain, func(i, j int) bool { return chain[i].Seq < chain[j].Seq })
		l.chains[id] = chain
	}
	l.logger.Info("ledger hydrated", zap.Int("systems", len(bySystem)), zap.Int("events", len(events)))
}

// FrozenSystems возвращает ID цепочек, замороженных на этом инстансе.
func (l *Ledger) FrozenSystems() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.frozen))
	for id := range l.frozen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Systems возвращает ID всех систем, у которых есть цепочка.
func (l *Ledger) Systems() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.chains))
	for id := range l.chains {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
