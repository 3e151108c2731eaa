// Package postgres provides a Postgres-backed inventory registry that mirrors
// the in-memory semantics, hydrating from the inventory table on open.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"landbalancer/internal/infra/inventory/memory"
	"landbalancer/internal/inventory/core"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ core.Registry = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/landbalancer?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store serves lookups from memory and reads/writes snapshots from Postgres.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed registry using dsn (falls back to defaultDSN),
// ensures the inventory table exists and hydrates the in-memory registry.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureInventoryTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem, err := memory.NewStore(snapshot)
	if err != nil {
		return nil, err
	}
	return &Store{Store: mem, db: db}, nil
}

// Driver returns the registry driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureInventoryTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS inventory (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure inventory table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (core.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, payload FROM inventory ORDER BY position`)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("select inventory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot core.Snapshot
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return core.Snapshot{}, fmt.Errorf("scan inventory: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var database core.Database
		if err := json.Unmarshal(payload, &database); err != nil {
			return core.Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
		}
		database.Name = name
		snapshot.Databases = append(snapshot.Databases, database)
	}
	if err := rows.Err(); err != nil {
		return core.Snapshot{}, fmt.Errorf("iterate inventory: %w", err)
	}
	return snapshot, nil
}

// Import replaces the stored databases with snapshot.
func (s *Store) Import(ctx context.Context, snapshot core.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE inventory`); err != nil {
		return fmt.Errorf("truncate inventory: %w", err)
	}
	for i, database := range snapshot.Databases {
		data, err := json.Marshal(database)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO inventory(name,position,payload) VALUES($1,$2,$3)`, database.Name, i, data); err != nil {
			return fmt.Errorf("insert %s: %w", database.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return s.ImportState(snapshot)
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
