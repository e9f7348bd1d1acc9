package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xela07ax/aigov-engine/internal/infra"
)

// Repo — единая точка доступа к PostgreSQL поверх pgxpool.
// Все доменные репозитории (системы, оценки, цепочки, метрики) —
// методы на этой структуре, пул один на процесс.
type Repo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRepo(ctx context.Context, cfg infra.DatabaseConfig, logger *zap.Logger) (*Repo, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pc.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	return &Repo{pool: pool, logger: logger.Named("postgres")}, nil
}

// Ping проверяет доступность базы при старте
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) Close() {
	r.pool.Close()
}
