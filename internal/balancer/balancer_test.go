package balancer

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"

	"landbalancer/internal/blob"
	"landbalancer/internal/inventory"
	"landbalancer/internal/metrics"
	"landbalancer/internal/presamples"
	"landbalancer/internal/resample"
	"landbalancer/internal/samples"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsMissingDatabases(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		opts  Options
		field string
	}{
		{"database", Options{Database: "missing"}, "database"},
		{"biosphere", Options{Database: testDB, Biosphere: "biosphere2"}, "biosphere"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(ctx, newRegistry(t), tc.opts)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, cfgErr.Field)
			}
			if !errors.Is(err, inventory.ErrDatabaseNotFound) {
				t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
			}
		})
	}
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(context.Background(), newRegistry(t), Options{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "database" {
		t.Fatalf("expected database ConfigError, got %v", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	b := newBalancer(t, Options{})
	if b.Biosphere() != DefaultBiosphere || b.Group() != DefaultGroup || b.Database() != testDB {
		t.Fatalf("unexpected defaults: %s %s %s", b.Biosphere(), b.Group(), b.Database())
	}
	if b.Samples() != nil || len(b.Indices()) != 0 || b.Rows() != 0 {
		t.Fatalf("expected empty state")
	}
	want := []inventory.Key{key(testBio, "from-forest"), key(testBio, "from-pasture"), key(testBio, "to-arable"), key(testBio, "to-urban")}
	if diff := cmp.Diff(want, b.Classification().All()); diff != "" {
		t.Fatalf("classification mismatch (-want +got):\n%s", diff)
	}
}

func TestAddSamplesForActivityBalancesColumns(t *testing.T) {
	b := newBalancer(t, Options{})
	wheat := key(testDB, "wheat")
	if err := b.AddSamplesForActivity(context.Background(), wheat, 100); err != nil {
		t.Fatalf("add samples: %v", err)
	}
	m := b.Samples()
	if m.Rows() != 2 || m.Cols() != 100 {
		t.Fatalf("expected 2x100 matrix, got %dx%d", m.Rows(), m.Cols())
	}
	want := []samples.MatrixIndex{
		{Input: key(testBio, "from-forest"), Output: wheat, Partition: samples.Biosphere},
		{Input: key(testBio, "to-arable"), Output: wheat, Partition: samples.Biosphere},
	}
	if diff := cmp.Diff(want, b.Indices()); diff != "" {
		t.Fatalf("index mismatch (-want +got):\n%s", diff)
	}
	for j := 0; j < m.Cols(); j++ {
		if got := m.At(0, j) / m.At(1, j); math.Abs(got-2.0) > 1e-9 {
			t.Fatalf("column %d ratio %v, want 2", j, got)
		}
	}
}

func TestAddSamplesForActivityWithSeveralFlowsPerGroup(t *testing.T) {
	b := newBalancer(t, Options{})
	if err := b.AddSamplesForActivity(context.Background(), key(testDB, "housing"), 50); err != nil {
		t.Fatalf("add samples: %v", err)
	}
	m := b.Samples()
	if m.Rows() != 4 {
		t.Fatalf("expected 4 rows, got %d", m.Rows())
	}
	static := (0.5 + 0.25) / (0.8 + 0.2)
	for j := 0; j < m.Cols(); j++ {
		in := m.At(0, j) + m.At(1, j)
		out := m.At(2, j) + m.At(3, j)
		if math.Abs(in/out-static) > 1e-9 {
			t.Fatalf("column %d ratio %v, want %v", j, in/out, static)
		}
	}
}

func TestAddSamplesForActivitySkipsUnbalanceable(t *testing.T) {
	b := newBalancer(t, Options{})
	for _, code := range []string{"steel", "road"} {
		if err := b.AddSamplesForActivity(context.Background(), key(testDB, code), 10); err != nil {
			t.Fatalf("%s: %v", code, err)
		}
	}
	if b.Rows() != 0 || b.Samples() != nil {
		t.Fatalf("expected no samples, got %d rows", b.Rows())
	}
}

func TestAddSamplesForActivityErrors(t *testing.T) {
	b := newBalancer(t, Options{})
	ctx := context.Background()
	if err := b.AddSamplesForActivity(ctx, key(testDB, "wheat"), 0); !errors.Is(err, ErrInvalidIterations) {
		t.Fatalf("expected ErrInvalidIterations, got %v", err)
	}
	if err := b.AddSamplesForActivity(ctx, key(testDB, "unknown"), 10); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddSamplesRejectsColumnMismatchWithoutMutation(t *testing.T) {
	b := newBalancer(t, Options{})
	ctx := context.Background()
	if err := b.AddSamplesForActivity(ctx, key(testDB, "wheat"), 100); err != nil {
		t.Fatalf("first add: %v", err)
	}
	before := b.Samples()
	err := b.AddSamplesForActivity(ctx, key(testDB, "housing"), 50)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if diff := cmp.Diff(before.Data(), b.Samples().Data()); diff != "" {
		t.Fatalf("samples changed after failed append:\n%s", diff)
	}
	if len(b.Indices()) != 2 {
		t.Fatalf("expected 2 index entries, got %d", len(b.Indices()))
	}
}

func blocksOf(blocks ...samples.Block) resample.Resampler {
	return resample.Func(func(context.Context, inventory.Activity, resample.Environment, int) iter.Seq2[samples.Block, error] {
		return func(yield func(samples.Block, error) bool) {
			for _, b := range blocks {
				if !yield(b, nil) {
					return
				}
			}
		}
	})
}

func mustRows(t *testing.T, rows ...[]float64) *samples.Matrix {
	t.Helper()
	m, err := samples.FromRows(rows)
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	return m
}

func TestCustomResamplerIndexVariants(t *testing.T) {
	act := key(testDB, "wheat")
	tech := key(testDB, "steel")
	block := samples.Block{
		Samples: mustRows(t, []float64{1, 2, 3}, []float64{4, 5, 6}),
		Index: []samples.IndexEntry{
			samples.Untagged{Input: key(testBio, "co2"), Output: act},
			samples.PreTagged{Input: tech, Output: act, Partition: samples.Technosphere},
		},
	}
	b := newBalancer(t, Options{Resampler: blocksOf(block)})
	if err := b.AddSamplesForActivity(context.Background(), act, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	want := []samples.MatrixIndex{
		{Input: key(testBio, "co2"), Output: act, Partition: samples.Biosphere},
		{Input: tech, Output: act, Partition: samples.Technosphere},
	}
	if diff := cmp.Diff(want, b.Indices()); diff != "" {
		t.Fatalf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomResamplerBadBlockKeepsEarlierBlocks(t *testing.T) {
	act := key(testDB, "wheat")
	good := samples.Block{
		Samples: mustRows(t, []float64{1, 2}),
		Index:   []samples.IndexEntry{samples.Untagged{Input: key(testBio, "co2"), Output: act}},
	}
	bad := samples.Block{
		Samples: mustRows(t, []float64{1, 2}, []float64{3, 4}),
		Index:   []samples.IndexEntry{samples.Untagged{Input: key(testBio, "co2"), Output: act}},
	}
	b := newBalancer(t, Options{Resampler: blocksOf(good, bad)})
	err := b.AddSamplesForActivity(context.Background(), act, 2)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if b.Rows() != 1 || len(b.Indices()) != 1 {
		t.Fatalf("expected the first block only, got %d rows", b.Rows())
	}
}

func TestCustomResamplerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	r := resample.Func(func(context.Context, inventory.Activity, resample.Environment, int) iter.Seq2[samples.Block, error] {
		return func(yield func(samples.Block, error) bool) { yield(samples.Block{}, boom) }
	})
	b := newBalancer(t, Options{Resampler: r})
	if err := b.AddSamplesForActivity(context.Background(), key(testDB, "wheat"), 2); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

type recordingSink struct {
	total int
	steps []string
	done  bool
}

func (s *recordingSink) Start(total int)   { s.total = total }
func (s *recordingSink) Step(label string) { s.steps = append(s.steps, label) }
func (s *recordingSink) Done()             { s.done = true }

func TestAddSamplesForAllActivities(t *testing.T) {
	sink := &recordingSink{}
	rec := metrics.NewRecorder()
	b := newBalancer(t, Options{Progress: sink, Metrics: rec})
	if err := b.AddSamplesForAllActivities(context.Background(), 20); err != nil {
		t.Fatalf("add all: %v", err)
	}
	if b.Rows() != 6 || b.Samples().Cols() != 20 {
		t.Fatalf("expected 6x20, got %dx%d", b.Rows(), b.Samples().Cols())
	}
	if sink.total != 4 || len(sink.steps) != 4 || !sink.done {
		t.Fatalf("unexpected progress: %+v", sink)
	}
	if got := testutil.ToFloat64(rec.Activities().WithLabelValues(metrics.ResultSkipped)); got != 2 {
		t.Fatalf("expected 2 skipped activities, got %v", got)
	}
	if got := testutil.ToFloat64(rec.Activities().WithLabelValues(metrics.ResultBalanced)); got != 2 {
		t.Fatalf("expected 2 balanced activities, got %v", got)
	}
}

func TestAddSamplesForAllActivitiesStopsAtFirstError(t *testing.T) {
	calls := 0
	r := resample.Func(func(_ context.Context, act inventory.Activity, _ resample.Environment, _ int) iter.Seq2[samples.Block, error] {
		return func(yield func(samples.Block, error) bool) {
			calls++
			if act.Key.Code == "steel" {
				yield(samples.Block{}, errors.New("broken"))
			}
		}
	})
	sink := &recordingSink{}
	b := newBalancer(t, Options{Resampler: r, Progress: sink})
	err := b.AddSamplesForAllActivities(context.Background(), 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected to stop after 2 activities, got %d", calls)
	}
	if !sink.done {
		t.Fatalf("expected progress to be closed")
	}
}

func TestCreatePresamplesEmptyWarns(t *testing.T) {
	obs, logs := observer.New(zapcore.WarnLevel)
	b := newBalancer(t, Options{Logger: zap.New(obs), Writer: presamples.NewWriter(blob.NewMemory())})
	pkg, err := b.CreatePresamples(context.Background(), presamples.Options{})
	if err != nil || pkg != nil {
		t.Fatalf("expected nil package and error, got %v %v", pkg, err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
}

func TestCreatePresamplesRoundTrip(t *testing.T) {
	store := blob.NewMemory()
	rec := metrics.NewRecorder()
	b := newBalancer(t, Options{Writer: presamples.NewWriter(store), Metrics: rec})
	ctx := context.Background()
	if err := b.AddSamplesForAllActivities(ctx, 10); err != nil {
		t.Fatalf("add all: %v", err)
	}
	pkg, err := b.CreatePresamples(ctx, presamples.Options{Name: "land", ID: "abc"})
	if err != nil {
		t.Fatalf("create presamples: %v", err)
	}
	if pkg == nil || pkg.ID != "abc" {
		t.Fatalf("unexpected package %+v", pkg)
	}
	loaded, err := presamples.Load(ctx, store, presamples.DefaultDir, pkg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Metadata.Group != DefaultGroup || loaded.Metadata.NCols != 10 {
		t.Fatalf("unexpected metadata %+v", loaded.Metadata)
	}
	if len(loaded.Data) != 1 || loaded.Data[0].Samples.Rows() != 6 {
		t.Fatalf("expected one biosphere resource with 6 rows, got %+v", loaded.Data)
	}
	if diff := cmp.Diff(b.Samples().Data(), loaded.Data[0].Samples.Data()); diff != "" {
		t.Fatalf("samples mismatch:\n%s", diff)
	}
	if _, err := b.CreatePresamples(ctx, presamples.Options{ID: "abc"}); !errors.Is(err, presamples.ErrPackageExists) {
		t.Fatalf("expected ErrPackageExists, got %v", err)
	}
	if got := testutil.ToFloat64(rec.PackagesWritten()); got != 1 {
		t.Fatalf("expected 1 package written, got %v", got)
	}
}

func TestCreatePresamplesWithoutWriter(t *testing.T) {
	b := newBalancer(t, Options{})
	if err := b.AddSamplesForActivity(context.Background(), key(testDB, "wheat"), 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := b.CreatePresamples(context.Background(), presamples.Options{}); err == nil {
		t.Fatalf("expected error without writer")
	}
}
