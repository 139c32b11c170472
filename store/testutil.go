package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// OpenTestConn starts a disposable Postgres container and returns a migrated
// Conn against it, replacing the teacher's internal/data/test_conn.go
// dev-template-clone approach (which required a live "dev" database and a
// privileged CREATE DATABASE) with a fully isolated, hermetic instance per
// test run.
func OpenTestConn(t *testing.T) (*Conn, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("b3ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("store: start postgres container: %v", err)
	}

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("store: container connection string: %v", err)
	}

	conn, cleanupPool, err := Open(ctx, dbURL, zap.NewNop())
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("store: open test connection: %v", err)
	}

	cleanup := func() {
		cleanupPool()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("store: terminate postgres container: %v", err)
		}
	}
	return conn, cleanup
}

// TruncateAll wipes every table, used between sub-tests that share one
// container to keep each test hermetic without paying container startup cost
// per case.
func (c *Conn) TruncateAll(ctx context.Context) error {
	_, err := c.DB.Exec(ctx, `TRUNCATE TABLE
		position_snapshots, loss_snapshots, loss_carryforwards, inconsistencies,
		cash_flows, income_events, corporate_events, transactions,
		import_cursors, assets, metadata RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("store: truncate all: %w", err)
	}
	return nil
}
