// Package store is the single ACID key-space described in spec §4.B: a pgx
// connection pool with enforced foreign keys, cascade deletion, and decimal
// columns persisted as canonical strings. It is adapted from the teacher's
// internal/data/conn.go connection bootstrap and internal/data/retry.go
// retry helper, stripped of every concern outside persistence (no Polygon,
// Gemini, OpenAI, or social clients belong here).
package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Conn wraps the persistent store's connection pool. It carries no global
// state; every engine operation receives one explicitly (spec §9 "no process-
// wide singletons").
type Conn struct {
	DB     *pgxpool.Pool
	Logger *zap.Logger
}

// Open connects to Postgres with a bounded retry loop and runs the baseline
// migration, matching the teacher's InitConn connect-with-backoff shape but
// without the channel-based timeout race: a single context deadline governs
// the whole attempt.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Conn, func(), error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("store: parse config: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 60 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	backoff := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		pool, err = pgxpool.ConnectConfig(connectCtx, poolConfig)
		if err == nil {
			break
		}
		if connectCtx.Err() != nil {
			return nil, func() {}, fmt.Errorf("store: connect after %d attempts: %w", attempt, err)
		}
		logger.Warn("store connect attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}

	conn := &Conn{DB: pool, Logger: logger}
	if err := conn.migrate(ctx); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("store: migrate: %w", err)
	}

	cleanup := func() { pool.Close() }
	return conn, cleanup, nil
}

// migrate runs the embedded baseline schema inside one transaction. Statements
// are all CREATE TABLE/INDEX IF NOT EXISTS, so migrate is safe to call on every
// startup (spec §6.1 "each migration is additive within one transaction").
func (c *Conn) migrate(ctx context.Context) error {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply baseline schema: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO metadata(key, value) VALUES ('schema_version', '1')
		 ON CONFLICT (key) DO NOTHING`); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit(ctx)
}
