package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/accountd/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "accountd"
	pingInterval    = 500 * time.Millisecond
)

type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConnection opens the pool and waits up to cfg.ConnectTimeout for the
// server to answer, so the service can start alongside its database.
func NewConnection(cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	attempts, err := waitForServer(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database after %d attempts: %w", attempts, err)
	}

	logger.Info("database connection established",
		slog.String("host", poolConfig.ConnConfig.Host),
		slog.String("database", poolConfig.ConnConfig.Database),
		slog.Int("max_conns", int(poolConfig.MaxConns)),
		slog.Int("attempts", attempts),
	)

	return &DB{Pool: pool, logger: logger}, nil
}

func newPoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	// Token expiry comparisons are done in UTC
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	return poolConfig, nil
}

func waitForServer(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		err := pool.Ping(ctx)
		if err == nil {
			return attempts, nil
		}

		select {
		case <-ctx.Done():
			return attempts, errors.Join(err, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (db *DB) Close() {
	if db.logger != nil {
		stat := db.Pool.Stat()
		db.logger.Info("closing database connection pool",
			slog.Int("total_conns", int(stat.TotalConns())),
			slog.Int64("acquire_count", stat.AcquireCount()),
		)
	}
	db.Pool.Close()
}

// HealthCheck pings the server with a short deadline
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
