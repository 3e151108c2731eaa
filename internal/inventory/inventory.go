// Package inventory re-exports the registry abstractions and selects a
// registry driver.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"landbalancer/internal/infra/inventory/memory"
	"landbalancer/internal/infra/inventory/postgres"
	"landbalancer/internal/infra/inventory/sqlite"
	"landbalancer/internal/inventory/core"

	"gopkg.in/yaml.v3"
)

type (
	// Driver identifies a registry backend.
	Driver = core.Driver
	// Key identifies a flow or an activity.
	Key = core.Key
	// Flow is an elementary flow.
	Flow = core.Flow
	// Exchange links an activity to an input.
	Exchange = core.Exchange
	// ExchangeType classifies exchanges.
	ExchangeType = core.ExchangeType
	// Uncertainty describes an exchange distribution.
	Uncertainty = core.Uncertainty
	// Activity is an inventory process.
	Activity = core.Activity
	// Database is one registered database.
	Database = core.Database
	// Snapshot is the full registry content.
	Snapshot = core.Snapshot
	// Registry is the read-only registry interface.
	Registry = core.Registry
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres

	ExchangeProduction   = core.ExchangeProduction
	ExchangeTechnosphere = core.ExchangeTechnosphere
	ExchangeBiosphere    = core.ExchangeBiosphere
)

var (
	// ErrDatabaseNotFound indicates an unregistered database.
	ErrDatabaseNotFound = core.ErrDatabaseNotFound
	// ErrNotFound indicates an unresolved activity key.
	ErrNotFound = core.ErrNotFound
)

// ParseKey parses database:code.
func ParseKey(s string) (Key, error) { return core.ParseKey(s) }

// Options selects and configures a registry driver.
type Options struct {
	Driver       Driver
	SQLitePath   string
	PostgresDSN  string
	SnapshotPath string // memory driver: optional JSON/YAML snapshot to load
}

// Importer is implemented by drivers that can persist a snapshot.
type Importer interface {
	Registry
	Import(ctx context.Context, snapshot Snapshot) error
}

// Open returns the registry selected by opts.Driver (default sqlite).
func Open(ctx context.Context, opts Options) (Registry, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		snapshot := Snapshot{}
		if opts.SnapshotPath != "" {
			var err error
			if snapshot, err = LoadSnapshotFile(opts.SnapshotPath); err != nil {
				return nil, err
			}
		}
		store, err := memory.NewStore(snapshot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		store, err := sqlite.NewStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown inventory driver %s", driver)
	}
}

// LoadSnapshotFile reads a snapshot from a .json, .yaml or .yml file.
func LoadSnapshotFile(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &snapshot)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&snapshot)
	default:
		return Snapshot{}, fmt.Errorf("unsupported snapshot format %q", filepath.Ext(path))
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}
