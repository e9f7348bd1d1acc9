package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/audit"
	"github.com/xela07ax/aigov-engine/internal/infra"
)

// FreezeManager распределяет состояние замороженных цепочек между
// инстансами: L1 — локальный Ledger, L2 — Redis set, сигналы — Pub/Sub.
// Любой инстанс, увидевший IntegrityViolation, обязан остановить запись
// в цепочку везде, не только у себя.
type FreezeManager struct {
	mu     sync.RWMutex
	ledger *audit.Ledger
	rdb    *redis.Client
	logger *zap.Logger
}

func NewFreezeManager(ledger *audit.Ledger, rdb *redis.Client, logger *zap.Logger) *FreezeManager {
	return &FreezeManager{
		ledger: ledger,
		rdb:    rdb,
		logger: logger.Named("freeze"),
	}
}

// Init загружает текущее состояние заморозок при старте сервиса
// и прогревает Redis, если set пуст, а локальные заморозки есть
// (например, после гидрации и Verify).
func (m *FreezeManager) Init(ctx context.Context) error {
	systems, err := m.rdb.SMembers(ctx, infra.RedisKeyFrozenChains).Result()
	if err != nil {
		return err
	}

	// 1. Обновляем локальный кэш (L1)
	for _, id := range systems {
		m.ledger.Freeze(id)
	}

	// 2. Распределенная блокировка (SetNX), чтобы только один инстанс
	// прогревал Redis
	ok, err := m.rdb.SetNX(ctx, infra.RedisKeyLockFrozenWarm, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	// 3. Если Redis пуст, а локальные заморозки есть — заливаем
	local := m.ledger.FrozenSystems()
	if len(systems) == 0 && len(local) > 0 {
		m.logger.Info("frozen set is empty in Redis, performing warm-up",
			zap.Int("count", len(local)))

		pipe := m.rdb.Pipeline()
		for _, id := range local {
			pipe.SAdd(ctx, infra.RedisKeyFrozenChains, id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast фиксирует смену статуса цепочки в Redis и оповещает
// остальные инстансы. frozen=false — цепочку заново заякорил оператор.
func (m *FreezeManager) Broadcast(ctx context.Context, systemID string, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	signal := systemID + ":off"
	if frozen {
		signal = systemID + ":on"
		err = m.rdb.SAdd(ctx, infra.RedisKeyFrozenChains, systemID).Err()
	} else {
		err = m.rdb.SRem(ctx, infra.RedisKeyFrozenChains, systemID).Err()
	}
	if err != nil {
		return err
	}
	return m.rdb.Publish(ctx, infra.RedisChanChainFreeze, signal).Err()
}

// StartListener — живучая подписка на сигналы заморозки: переподключение
// с ресинхронизацией через Init при каждом успешном коннекте.
func (m *FreezeManager) StartListener(ctx context.Context) {
	for {
		pubsub := m.rdb.Subscribe(ctx, infra.RedisChanChainFreeze)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			m.logger.Error("failed to subscribe",
				zap.String("chan", infra.RedisChanChainFreeze), zap.Error(err))
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Ресинхронизация при каждом успешном коннекте: сигналы,
		// пропущенные за время разрыва, добираются из set'а
		if err := m.Init(ctx); err != nil {
			m.logger.Error("frozen set sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				m.apply(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// apply разбирает сигнал "system_id:on" / "system_id:off".
func (m *FreezeManager) apply(payload string) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		m.logger.Error("invalid freeze signal format", zap.String("payload", payload))
		return
	}

	systemID, state := payload[:idx], payload[idx+1:]
	switch state {
	case "on", "true":
		m.logger.Warn("chain freeze signal received", zap.String("system_id", systemID))
		m.ledger.Freeze(systemID)
	case "off", "false":
		m.logger.Info("chain unfreeze signal received", zap.String("system_id", systemID))
		m.ledger.Unfreeze(systemID)
	default:
		m.logger.Error("unknown freeze state", zap.String("payload", payload))
	}
}
