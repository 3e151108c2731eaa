package balancer

import (
	"context"
	"testing"

	"landbalancer/internal/infra/inventory/memory"
	"landbalancer/internal/inventory"
	"landbalancer/internal/inventory/core"
)

const (
	testDB  = "ecoinvent"
	testBio = "biosphere3"
)

func key(db, code string) inventory.Key { return inventory.Key{Database: db, Code: code} }

func bio(code string, amount float64, u inventory.Uncertainty) inventory.Exchange {
	return inventory.Exchange{Input: key(testBio, code), Amount: amount, Type: inventory.ExchangeBiosphere, Uncertainty: u}
}

var (
	lognormal = inventory.Uncertainty{Type: core.UncertaintyLognormal, Scale: 0.3}
	normal    = inventory.Uncertainty{Type: core.UncertaintyNormal, Scale: 0.1}
	fixed     = inventory.Uncertainty{Type: core.UncertaintyNone}
)

// fixtureSnapshot registers two land-in flows, two land-out flows and four
// activities: two balanceable, one without land flows and one deterministic.
func fixtureSnapshot() inventory.Snapshot {
	return inventory.Snapshot{Databases: []inventory.Database{
		{Name: testBio, Flows: []inventory.Flow{
			{Key: key(testBio, "from-forest"), Name: "Transformation, from forest, unspecified"},
			{Key: key(testBio, "from-pasture"), Name: "Transformation, from pasture, man made"},
			{Key: key(testBio, "to-arable"), Name: "Transformation, to arable land"},
			{Key: key(testBio, "to-urban"), Name: "Transformation, to urban, discontinuously built"},
			{Key: key(testBio, "co2"), Name: "Carbon dioxide, fossil"},
		}},
		{Name: testDB, Activities: []inventory.Activity{
			{Key: key(testDB, "wheat"), Name: "wheat production", Exchanges: []inventory.Exchange{
				{Input: key(testDB, "wheat"), Amount: 1, Type: inventory.ExchangeProduction},
				bio("from-forest", 2.0, lognormal),
				bio("to-arable", 1.0, normal),
				bio("co2", 5.0, lognormal),
			}},
			{Key: key(testDB, "steel"), Name: "steel production", Exchanges: []inventory.Exchange{
				bio("co2", 3.0, lognormal),
			}},
			{Key: key(testDB, "housing"), Name: "housing", Exchanges: []inventory.Exchange{
				bio("from-forest", 0.5, lognormal),
				bio("from-pasture", 0.25, normal),
				bio("to-urban", 0.8, lognormal),
				bio("to-arable", 0.2, normal),
			}},
			{Key: key(testDB, "road"), Name: "road", Exchanges: []inventory.Exchange{
				bio("from-forest", 1.0, fixed),
				bio("to-urban", 1.0, fixed),
			}},
		}},
	}}
}

func newRegistry(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(fixtureSnapshot())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return store
}

func newBalancer(t *testing.T, opts Options) *Balancer {
	t.Helper()
	if opts.Database == "" {
		opts.Database = testDB
	}
	if opts.RandomSeed == nil && opts.Resampler == nil {
		seed := uint64(42)
		opts.RandomSeed = &seed
	}
	b, err := New(context.Background(), newRegistry(t), opts)
	if err != nil {
		t.Fatalf("new balancer: %v", err)
	}
	return b
}
