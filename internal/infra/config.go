package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации движка.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	History    HistoryConfig    `mapstructure:"history"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера консоли.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и распределенное состояние).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для выпуска токенов
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig — специфичные настройки ядра оценки.
type EngineConfig struct {
	// Пороги статусов (включающая нижняя граница)
	CompliantFloor float64 `mapstructure:"compliant_floor"`
	PartialFloor   float64 `mapstructure:"partial_floor"`

	// Ретраи записи в цепочку аудита (optimistic append)
	AuditAppendAttempts int `mapstructure:"audit_append_attempts"`

	// Буфер асинхронной персистентности цепочек
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	// Внешние скорер-сервисы. Пустой base URL — локальные mock-скореры.
	ScorerBaseURL  string        `mapstructure:"scorer_base_url"`
	ScorerTimeout  time.Duration `mapstructure:"scorer_timeout"`
	ScorerAttempts int           `mapstructure:"scorer_attempts"`

	// Настройки Circuit Breaker для скорер-сервисов
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// MonitoringConfig — политика порогового монитора.
type MonitoringConfig struct {
	CooldownSamples int           `mapstructure:"cooldown_samples"`
	MinConsecutive  int           `mapstructure:"min_consecutive"`
	SampleInterval  time.Duration `mapstructure:"sample_interval"`
}

// HistoryConfig — параметры прецедентного поиска.
type HistoryConfig struct {
	HalfLife         time.Duration `mapstructure:"half_life"`       // Период полураспада recency-веса
	RecencyWeight    float64       `mapstructure:"recency_weight"`  // Доля recency в комбинированном скоре
	SimilarityWeight float64       `mapstructure:"similarity_weight"`
	DefaultLimit     int           `mapstructure:"default_limit"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Переменные окружения: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("engine.compliant_floor", 8.0)
	v.SetDefault("engine.partial_floor", 5.0)
	v.SetDefault("engine.audit_append_attempts", 3)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.scorer_timeout", 10*time.Second)
	v.SetDefault("engine.scorer_attempts", 3)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)

	v.SetDefault("monitoring.cooldown_samples", 2)
	v.SetDefault("monitoring.min_consecutive", 1)
	v.SetDefault("monitoring.sample_interval", 30*time.Second)

	v.SetDefault("history.half_life", 30*24*time.Hour)
	v.SetDefault("history.recency_weight", 0.6)
	v.SetDefault("history.similarity_weight", 0.4)
	v.SetDefault("history.default_limit", 5)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
}

// loadKeyResource — универсальный хелпер: ключ из ENV перекрывает файл
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
