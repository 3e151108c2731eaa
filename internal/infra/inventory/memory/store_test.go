package memory

import (
	"context"
	"errors"
	"testing"

	"landbalancer/internal/inventory/core"

	"github.com/google/go-cmp/cmp"
)

func fixture() core.Snapshot {
	return core.Snapshot{Databases: []core.Database{
		{Name: "bio", Flows: []core.Flow{
			{Key: core.Key{Database: "bio", Code: "f2"}, Name: "Transformation, to forest"},
			{Key: core.Key{Database: "bio", Code: "f1"}, Name: "Transformation, from forest"},
		}},
		{Name: "db", Activities: []core.Activity{
			{Key: core.Key{Database: "db", Code: "b"}, Name: "second", Exchanges: []core.Exchange{{Amount: 1}}},
			{Key: core.Key{Database: "db", Code: "a"}, Name: "first"},
		}},
	}}
}

func TestStoreLookups(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(fixture())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	for name, want := range map[string]bool{"bio": true, "db": true, "other": false} {
		if ok, _ := s.DatabaseExists(ctx, name); ok != want {
			t.Fatalf("DatabaseExists(%s)=%v", name, ok)
		}
	}
	keys, err := s.ActivityKeys(ctx, "db")
	if err != nil {
		t.Fatalf("activity keys: %v", err)
	}
	if diff := cmp.Diff([]core.Key{{Database: "db", Code: "b"}, {Database: "db", Code: "a"}}, keys); diff != "" {
		t.Fatalf("keys must keep registry order (-want +got):\n%s", diff)
	}
	flows, err := s.Flows(ctx, "bio")
	if err != nil || len(flows) != 2 || flows[0].Key.Code != "f2" {
		t.Fatalf("unexpected flows %+v (%v)", flows, err)
	}
	if _, err := s.Flows(ctx, "other"); !errors.Is(err, core.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
	if _, err := s.ActivityKeys(ctx, "other"); !errors.Is(err, core.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
	if _, err := s.Activity(ctx, core.Key{Database: "db", Code: "zz"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(fixture())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := core.Key{Database: "db", Code: "b"}
	act, _ := s.Activity(ctx, key)
	act.Exchanges[0].Amount = 99
	again, _ := s.Activity(ctx, key)
	if again.Exchanges[0].Amount != 1 {
		t.Fatalf("activity mutation leaked into the store")
	}
	if diff := cmp.Diff(fixture(), s.ExportState()); diff != "" {
		t.Fatalf("export mismatch (-want +got):\n%s", diff)
	}
}

func TestImportStateRejectsInvalid(t *testing.T) {
	s, err := NewStore(core.Snapshot{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	bad := fixture()
	bad.Databases = append(bad.Databases, core.Database{Name: "bio"})
	if err := s.ImportState(bad); err == nil {
		t.Fatalf("expected duplicate database error")
	}
	if ok, _ := s.DatabaseExists(context.Background(), "bio"); ok {
		t.Fatalf("failed import must not change the store")
	}
}
