package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aigov"
)

// Ключи для Sets (состояние)
const (
	// RedisKeyFrozenChains — цепочки, замороженные после IntegrityViolation.
	// Состояние распределенное: любой инстанс обязан отказывать в записи.
	RedisKeyFrozenChains   = RedisNamespace + ":chains:frozen_set"
	RedisKeyLockFrozenWarm = RedisNamespace + ":lock:warmup:frozen"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanChainFreeze — сигналы "systemID:on" / "systemID:off"
	// (заморозка по нарушению / операторский re-anchor).
	RedisChanChainFreeze = RedisNamespace + ":chains:freeze-signal"

	// RedisChanAlerts — трансляция алертов порогового монитора
	// (JSON domain.Alert) для дашбордов и внешних нотификаторов.
	RedisChanAlerts = RedisNamespace + ":monitoring:alerts"

	// RedisChanSpecRefresh — сигнал «пороги изменились, перечитать из БД».
	// Payload не используется: слушатель делает полный Refresh.
	RedisChanSpecRefresh = RedisNamespace + ":monitoring:spec-refresh"
)
