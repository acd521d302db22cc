// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables this package relies on if they do not
// already exist.
func EnsureSchema(ctx context.Context, pool dbPool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS credit_accounts (
			wallet TEXT PRIMARY KEY,
			balance_cents BIGINT NOT NULL,
			tier TEXT NOT NULL,
			total_deposited_cents BIGINT NOT NULL,
			total_spent_cents BIGINT NOT NULL,
			history JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS monitors (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			webhook_url TEXT NOT NULL,
			check_interval_hours INT NOT NULL,
			notify_on TEXT NOT NULL,
			status TEXT NOT NULL,
			last_content_hash TEXT NOT NULL DEFAULT '',
			check_count BIGINT NOT NULL DEFAULT 0,
			total_cost_cents BIGINT NOT NULL DEFAULT 0,
			failure_streak INT NOT NULL DEFAULT 0,
			owner_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			next_check_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS monitor_owner_index (
			owner_id TEXT NOT NULL,
			monitor_id TEXT NOT NULL,
			PRIMARY KEY (owner_id, monitor_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
