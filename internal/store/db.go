// Package store provides transactional, strictly-typed access to the TMS
// schema: connection/pool setup, pragma tuning, migrations, and the
// per-entity query helpers the credential kernel uses.
//
// The connection and transaction plumbing is adapted from this lineage's
// storage wrapper: Connect tunes the pool and applies SQLite pragmas, and
// WithTx begins/commits/rolls-back a transaction with panic-safe recovery,
// the same contract §4.1 requires of a "single writer, strict typing"
// store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DB wraps *sql.DB so helpers can hang off it.
type DB struct {
	SQL    *sql.DB
	Driver string
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so the per-entity
// repository functions in this package work identically whether called
// directly (reads outside a transaction) or against the *sql.Tx the kernel
// opens for a mint/resolve/reserve/CRUD operation.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Connect opens a database connection, tunes the pool, applies
// driver-specific pragmas (for SQLite), and verifies connectivity. The
// driver's package must be imported (for side effects) by the caller, e.g.
// cmd/tms imports modernc.org/sqlite and jackc/pgx/v5/stdlib.
func Connect(ctx context.Context, driver, dsn string) (*DB, error) {
	if strings.TrimSpace(driver) == "" {
		return nil, errors.New("store: driver is required")
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	tunePool(normalizeDriver(driver), sqlDB)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if isSQLite(driver) {
		if err := applySQLitePragmas(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	return &DB{SQL: sqlDB, Driver: normalizeDriver(driver)}, nil
}

// Close closes the underlying *sql.DB (safe to call multiple times).
func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.SQL == nil {
		return errors.New("store: DB is nil")
	}
	return d.SQL.PingContext(ctx)
}

// WithTx begins a transaction, runs fn, and commits if fn returns nil. If
// fn returns an error (or panics), the transaction is rolled back and the
// error (or panic) propagates. Every kernel operation that touches more
// than one row runs through this single helper, per §4.1's transactional
// contract.
func WithTx(ctx context.Context, d *DB, fn func(*sql.Tx) error) (err error) {
	if d == nil || d.SQL == nil {
		return errors.New("store: DB is nil")
	}
	tx, err := d.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("store: commit: %w", e)
		}
	}()
	err = fn(tx)
	return
}

// tunePool sets conservative defaults and lets the driver override them.
func tunePool(driver string, db *sql.DB) {
	maxOpen := 20
	maxIdle := 10
	connLife := 45 * time.Minute
	idleLife := 15 * time.Minute

	switch driver {
	case "sqlite", "sqlite3":
		// Single-writer engine (§4.1 "SQLite-class"): keep the pool to one
		// connection so writers serialize instead of racing into SQLITE_BUSY.
		maxOpen = 1
		maxIdle = 1
		connLife = 0
		idleLife = 0
	case "postgres":
		// Defaults above are fine for a multi-writer engine.
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLife)
	db.SetConnMaxIdleTime(idleLife)
}

func applySQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func normalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "pg", "pgsql", "pgx":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	default:
		return d
	}
}

func isSQLite(d string) bool {
	return normalizeDriver(d) == "sqlite"
}
