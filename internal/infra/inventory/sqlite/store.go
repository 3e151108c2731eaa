// Package sqlite provides a SQLite-backed inventory registry. Each database is
// stored as one JSON row; the rows are hydrated into an in-memory registry at open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"landbalancer/internal/infra/inventory/memory"
	"landbalancer/internal/inventory/core"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ core.Registry = (*Store)(nil)

const defaultPath = "inventory.db"

// Store serves lookups from memory and reads/writes snapshots from SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the SQLite file at path and loads its snapshot.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS inventory (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create inventory table: %w", err)
	}
	snapshot, err := load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem, err := memory.NewStore(snapshot)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: mem, db: db, path: path}, nil
}

// Driver returns the registry driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

func load(ctx context.Context, db *sql.DB) (core.Snapshot, error) {
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
			return core.Snapshot{}, fmt.Errorf("scan: %w", err)
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

// Import replaces the stored databases with snapshot. It is used by tooling
// that seeds a project; balancing never writes to the registry.
func (s *Store) Import(ctx context.Context, snapshot core.Snapshot) (retErr error) {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory`); err != nil {
		return fmt.Errorf("clear inventory: %w", err)
	}
	for i, database := range snapshot.Databases {
		data, err := json.Marshal(database)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO inventory(name,position,payload) VALUES(?,?,?)`, database.Name, i, data); err != nil {
			return fmt.Errorf("insert %s: %w", database.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.ImportState(snapshot)
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
