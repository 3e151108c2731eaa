// Package core defines the read-only inventory registry abstraction shared by
// the storage drivers and the balancing code.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver identifies a concrete inventory registry implementation.
type Driver string

const (
	// DriverMemory keeps the snapshot in process memory (tests, fixtures).
	DriverMemory Driver = "memory"
	// DriverSQLite reads the snapshot from an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres reads the snapshot from a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Key identifies a flow or an activity: the owning database plus the item code.
type Key struct {
	Database string `json:"database" yaml:"database"`
	Code     string `json:"code" yaml:"code"`
}

// String renders the key as database:code.
func (k Key) String() string { return k.Database + ":" + k.Code }

// ParseKey parses the database:code form produced by Key.String.
func ParseKey(s string) (Key, error) {
	db, code, ok := strings.Cut(s, ":")
	if !ok || db == "" || code == "" {
		return Key{}, fmt.Errorf("invalid key %q: want database:code", s)
	}
	return Key{Database: db, Code: code}, nil
}

// ExchangeType classifies an exchange by the matrix it contributes to.
type ExchangeType string

const (
	ExchangeProduction   ExchangeType = "production"
	ExchangeTechnosphere ExchangeType = "technosphere"
	ExchangeBiosphere    ExchangeType = "biosphere"
)

// Uncertainty type ids follow the stats_arrays numbering used by LCI data.
const (
	UncertaintyUndefined  = 0
	UncertaintyNone       = 1
	UncertaintyLognormal  = 2
	UncertaintyNormal     = 3
	UncertaintyUniform    = 4
	UncertaintyTriangular = 5
)

// Uncertainty describes the marginal distribution of an exchange amount.
// Loc and Scale are interpreted per type (lognormal: ln of the geometric mean
// and sigma of the underlying normal; triangular: the mode). A nil Loc is
// derived from the exchange amount; zero is a valid location.
type Uncertainty struct {
	Type     int      `json:"uncertainty_type" yaml:"uncertainty_type"`
	Loc      *float64 `json:"loc,omitempty" yaml:"loc,omitempty"`
	Scale    float64  `json:"scale,omitempty" yaml:"scale,omitempty"`
	Min      float64  `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Max      float64  `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Negative bool     `json:"negative,omitempty" yaml:"negative,omitempty"`
}

// Float64 returns a pointer to v, for literal Uncertainty.Loc values.
func Float64(v float64) *float64 { return &v }

// Uncertain reports whether sampling the exchange can yield values other than its amount.
func (u Uncertainty) Uncertain() bool {
	return u.Type > UncertaintyNone
}

// Flow is an elementary flow of a biosphere database.
type Flow struct {
	Key        Key      `json:"key" yaml:"key"`
	Name       string   `json:"name" yaml:"name"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Unit       string   `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Exchange links an activity to one of its inputs.
type Exchange struct {
	Input       Key          `json:"input" yaml:"input"`
	Amount      float64      `json:"amount" yaml:"amount"`
	Type        ExchangeType `json:"type" yaml:"type"`
	Uncertainty Uncertainty  `json:"uncertainty" yaml:"uncertainty"`
}

// Activity is a process of an inventory database.
type Activity struct {
	Key       Key        `json:"key" yaml:"key"`
	Name      string     `json:"name" yaml:"name"`
	Location  string     `json:"location,omitempty" yaml:"location,omitempty"`
	Unit      string     `json:"unit,omitempty" yaml:"unit,omitempty"`
	Exchanges []Exchange `json:"exchanges,omitempty" yaml:"exchanges,omitempty"`
}

// Biosphere returns the biosphere exchanges of the activity in declaration order.
func (a Activity) Biosphere() []Exchange {
	out := make([]Exchange, 0, len(a.Exchanges))
	for _, exc := range a.Exchanges {
		if exc.Type == ExchangeBiosphere {
			out = append(out, exc)
		}
	}
	return out
}

// Registry is the read-only view of the inventory databases of a project.
type Registry interface {
	// DatabaseExists reports whether the named database is registered.
	DatabaseExists(ctx context.Context, name string) (bool, error)
	// ActivityKeys returns the activity keys of a database in registry order.
	ActivityKeys(ctx context.Context, database string) ([]Key, error)
	// Activity resolves an activity key. Returns ErrNotFound if missing.
	Activity(ctx context.Context, key Key) (Activity, error)
	// Flows returns the flows of a (biosphere) database in registry order.
	Flows(ctx context.Context, database string) ([]Flow, error)
	// Driver returns the backend driver.
	Driver() Driver
}

var (
	// ErrDatabaseNotFound is returned when a database is not registered.
	ErrDatabaseNotFound = errors.New("inventory: database not found")
	// ErrNotFound is returned when an activity key cannot be resolved.
	ErrNotFound = errors.New("inventory: not found")
)

// Database groups the flows (biosphere databases) or activities (inventory
// databases) registered under one name. Slice order is registry order.
type Database struct {
	Name       string     `json:"name" yaml:"name"`
	Flows      []Flow     `json:"flows,omitempty" yaml:"flows,omitempty"`
	Activities []Activity `json:"activities,omitempty" yaml:"activities,omitempty"`
}

// Snapshot is the full content of a registry, as persisted by the drivers.
type Snapshot struct {
	Databases []Database `json:"databases" yaml:"databases"`
}

// Validate checks name and activity key uniqueness and that every item key
// belongs to its database.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Databases))
	acts := make(map[Key]struct{})
	for _, db := range s.Databases {
		if strings.TrimSpace(db.Name) == "" {
			return errors.New("inventory: database name required")
		}
		if _, dup := seen[db.Name]; dup {
			return fmt.Errorf("inventory: duplicate database %s", db.Name)
		}
		seen[db.Name] = struct{}{}
		for _, f := range db.Flows {
			if f.Key.Database != db.Name {
				return fmt.Errorf("inventory: flow %s listed under database %s", f.Key, db.Name)
			}
		}
		for _, a := range db.Activities {
			if a.Key.Database != db.Name {
				return fmt.Errorf("inventory: activity %s listed under database %s", a.Key, db.Name)
			}
			if _, dup := acts[a.Key]; dup {
				return fmt.Errorf("inventory: duplicate activity %s", a.Key)
			}
			acts[a.Key] = struct{}{}
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Databases: make([]Database, len(s.Databases))}
	for i, db := range s.Databases {
		cp := Database{Name: db.Name}
		if db.Flows != nil {
			cp.Flows = make([]Flow, len(db.Flows))
			for j, f := range db.Flows {
				cp.Flows[j] = cloneFlow(f)
			}
		}
		if db.Activities != nil {
			cp.Activities = make([]Activity, len(db.Activities))
			for j, a := range db.Activities {
				cp.Activities[j] = CloneActivity(a)
			}
		}
		out.Databases[i] = cp
	}
	return out
}

func cloneFlow(f Flow) Flow {
	cp := f
	cp.Categories = append([]string(nil), f.Categories...)
	return cp
}

// CloneActivity copies an activity including its exchanges.
func CloneActivity(a Activity) Activity {
	cp := a
	cp.Exchanges = append([]Exchange(nil), a.Exchanges...)
	for i, exc := range cp.Exchanges {
		if exc.Uncertainty.Loc != nil {
			cp.Exchanges[i].Uncertainty.Loc = Float64(*exc.Uncertainty.Loc)
		}
	}
	return cp
}
