package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the lifecycle of a migrated Postgres database and its pgx pool.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness reuses DATABASE_URL (in an isolated schema) when set, otherwise
// boots a Postgres 16 container. Migrations are applied either way.
func NewHarness(ctx context.Context) (*Harness, error) {
	h := &Harness{container: &PGContainer{}}

	isolate := false
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		h.dsn = dsn
		isolate = true
	} else {
		c, dsn, err := StartPostgres16(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		h.container = c
		h.dsn = dsn
		isolate = c.C == nil
	}

	pool, teardown, err := ApplyMigrations(ctx, h.dsn, isolate)
	if err != nil {
		_ = h.container.Terminate(ctx)
		return nil, err
	}
	h.pool = pool
	h.teardown = teardown
	return h, nil
}

// NewTestHarness builds a Harness for t, skipping the test when neither
// DATABASE_URL nor Docker is available.
func NewTestHarness(t *testing.T) *Harness {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if os.Getenv("DATABASE_URL") == "" && os.Getenv("STRESS_TEST_PG_DSN") == "" && !DockerAvailable(ctx) {
		t.Skip("no DATABASE_URL and docker unavailable; skipping database test")
	}

	h, err := NewHarness(ctx)
	if err != nil {
		t.Fatalf("harness: %v", err)
	}
	t.Cleanup(func() {
		h.Close(context.Background())
	})
	return h
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	if h.container != nil {
		_ = h.container.Terminate(ctx)
	}
}

// Reset truncates mutable tables to provide a clean slate.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"outbox",
		"associate_timeline_events",
		"associates",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}

// DockerAvailable reports whether a docker daemon answers.
func DockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
