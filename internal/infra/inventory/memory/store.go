// Package memory implements an in-memory inventory registry for tests and
// for the sqlite/postgres drivers, which hydrate it from their snapshot tables.
package memory

import (
	"context"
	"fmt"
	"sync"

	"landbalancer/internal/inventory/core"
)

// Compile-time contract assertion.
var _ core.Registry = (*Store)(nil)

type database struct {
	name       string
	flows      []core.Flow
	activities []core.Key
}

// Store serves registry lookups from a snapshot held in memory.
type Store struct {
	mu         sync.RWMutex
	databases  map[string]*database
	order      []string
	activities map[core.Key]core.Activity
}

// NewStore returns a registry populated from snapshot. The snapshot is copied.
func NewStore(snapshot core.Snapshot) (*Store, error) {
	s := &Store{}
	if err := s.ImportState(snapshot); err != nil {
		return nil, err
	}
	return s, nil
}

// Driver returns the registry driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// ImportState replaces the registry content with a copy of snapshot.
func (s *Store) ImportState(snapshot core.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	cp := snapshot.Clone()
	dbs := make(map[string]*database, len(cp.Databases))
	order := make([]string, 0, len(cp.Databases))
	acts := make(map[core.Key]core.Activity)
	for _, db := range cp.Databases {
		entry := &database{name: db.Name, flows: db.Flows}
		for _, act := range db.Activities {
			acts[act.Key] = act
			entry.activities = append(entry.activities, act.Key)
		}
		dbs[db.Name] = entry
		order = append(order, db.Name)
	}
	s.mu.Lock()
	s.databases = dbs
	s.order = order
	s.activities = acts
	s.mu.Unlock()
	return nil
}

// ExportState returns a deep copy of the registry content.
func (s *Store) ExportState() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := core.Snapshot{Databases: make([]core.Database, 0, len(s.order))}
	for _, name := range s.order {
		db := s.databases[name]
		cp := core.Database{Name: name, Flows: db.flows}
		for _, key := range db.activities {
			cp.Activities = append(cp.Activities, s.activities[key])
		}
		out.Databases = append(out.Databases, cp)
	}
	return out.Clone()
}

// DatabaseExists reports whether name is registered.
func (s *Store) DatabaseExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	_, ok := s.databases[name]
	s.mu.RUnlock()
	return ok, nil
}

// ActivityKeys returns the activity keys of database in registry order.
func (s *Store) ActivityKeys(_ context.Context, name string) ([]core.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrDatabaseNotFound, name)
	}
	return append([]core.Key(nil), db.activities...), nil
}

// Activity resolves key to a copy of the stored activity.
func (s *Store) Activity(_ context.Context, key core.Key) (core.Activity, error) {
	s.mu.RLock()
	act, ok := s.activities[key]
	s.mu.RUnlock()
	if !ok {
		return core.Activity{}, fmt.Errorf("%w: activity %s", core.ErrNotFound, key)
	}
	return core.CloneActivity(act), nil
}

// Flows returns the flows of database in registry order.
func (s *Store) Flows(_ context.Context, name string) ([]core.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrDatabaseNotFound, name)
	}
	return append([]core.Flow(nil), db.flows...), nil
}
