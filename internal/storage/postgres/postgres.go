// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// NewPool creates a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg Config, logger *zap.Logger) (*Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger = logger.Named("postgres")
	logger.Info("Connected to postgres",
		zap.String("host", config.ConnConfig.Host),
		zap.String("database", config.ConnConfig.Database),
		zap.Int32("max_conns", config.MaxConns))

	return &Pool{Pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.logger.Info("Closing postgres pool")
	p.Pool.Close()
}

// Stores builds the postgres-backed store set.
func (p *Pool) Stores() storage.Stores {
	return storage.Stores{
		Targets:    NewTargetStore(p),
		Executions: NewExecutionStore(p),
		Watched:    NewWatchedAccountStore(p),
		Alerts:     NewAlertStore(p),
	}
}

const pgErrUniqueViolation = "23505"

// isDuplicateKeyError checks if err is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// isNotFoundError checks if err indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
