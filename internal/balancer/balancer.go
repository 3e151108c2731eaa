// Package balancer accumulates balanced land exchange samples for the
// activities of an inventory database and exports them as a presample package.
//
// A Balancer is single-writer: its accumulation methods must not be called
// concurrently.
package balancer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"landbalancer/internal/inventory"
	"landbalancer/internal/landflow"
	"landbalancer/internal/metrics"
	"landbalancer/internal/presamples"
	"landbalancer/internal/progress"
	"landbalancer/internal/resample"
	"landbalancer/internal/samples"

	"go.uber.org/zap"
)

const (
	// DefaultBiosphere is the conventional biosphere database name.
	DefaultBiosphere = "biosphere3"
	// DefaultGroup is the conventional parameter group label.
	DefaultGroup = "land"
)

// PackageWriter persists partitioned sample data.
type PackageWriter interface {
	Write(ctx context.Context, data []presamples.MatrixData, opts presamples.Options) (presamples.Package, error)
}

// Options configures a Balancer. Zero fields take the documented defaults.
type Options struct {
	Database     string   // required
	Biosphere    string   // default DefaultBiosphere
	Group        string   // default DefaultGroup
	FromPatterns []string // default landflow.DefaultFromPattern
	ToPatterns   []string // default landflow.DefaultToPattern

	Resampler resample.Resampler // default ActivityBalancer seeded from RandomSeed
	// RandomSeed seeds the default resampler; nil draws a random seed.
	RandomSeed *uint64
	Writer     PackageWriter // required by CreatePresamples only
	Progress   progress.Sink
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
}

func (o *Options) applyDefaults() {
	if o.Biosphere == "" {
		o.Biosphere = DefaultBiosphere
	}
	if o.Group == "" {
		o.Group = DefaultGroup
	}
	if len(o.FromPatterns) == 0 {
		o.FromPatterns = []string{landflow.DefaultFromPattern}
	}
	if len(o.ToPatterns) == 0 {
		o.ToPatterns = []string{landflow.DefaultToPattern}
	}
	if o.Resampler == nil {
		if o.RandomSeed != nil {
			o.Resampler = resample.NewActivityBalancer(*o.RandomSeed)
		} else {
			o.Resampler = resample.NewRandomActivityBalancer()
		}
	}
	if o.Progress == nil {
		o.Progress = progress.Nop{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Balancer owns the land flow classification of one biosphere and the
// sample matrix and index accumulated for activities of one database.
type Balancer struct {
	registry inventory.Registry
	opts     Options
	env      resample.Environment
	logger   *zap.Logger

	matrix *samples.Matrix // nil until the first block
	index  []samples.MatrixIndex
}

// New validates that the database and the biosphere exist, classifies land
// flows and returns an empty balancer.
func New(ctx context.Context, registry inventory.Registry, opts Options) (*Balancer, error) {
	opts.applyDefaults()
	logger := opts.Logger.With(zap.String("database", opts.Database))
	if opts.Database == "" {
		return nil, &ConfigError{Field: "database", Err: errors.New("required")}
	}
	logger.Debug("validating data")
	for _, check := range []struct{ field, name string }{
		{"database", opts.Database},
		{"biosphere", opts.Biosphere},
	} {
		ok, err := registry.DatabaseExists(ctx, check.name)
		if err != nil {
			return nil, fmt.Errorf("check %s %s: %w", check.field, check.name, err)
		}
		if !ok {
			return nil, &ConfigError{Field: check.field, Value: check.name, Err: inventory.ErrDatabaseNotFound}
		}
	}
	logger.Debug("classifying land transformation flows", zap.String("biosphere", opts.Biosphere))
	cls, err := landflow.New(ctx, registry, opts.Biosphere, opts.FromPatterns, opts.ToPatterns)
	if err != nil {
		return nil, &ConfigError{Field: "patterns", Value: opts.Biosphere, Err: err}
	}
	logger.Info("land flows classified",
		zap.Int("land_in", len(cls.LandIn())),
		zap.Int("land_out", len(cls.LandOut())),
	)
	return &Balancer{
		registry: registry,
		opts:     opts,
		logger:   logger,
		env: resample.Environment{
			Database:       opts.Database,
			Biosphere:      opts.Biosphere,
			Group:          opts.Group,
			Classification: cls,
		},
	}, nil
}

// Classification returns the land flow classification.
func (b *Balancer) Classification() landflow.Classification { return b.env.Classification }

// Database returns the target database name.
func (b *Balancer) Database() string { return b.opts.Database }

// Biosphere returns the biosphere database name.
func (b *Balancer) Biosphere() string { return b.opts.Biosphere }

// Group returns the parameter group label.
func (b *Balancer) Group() string { return b.opts.Group }

// Samples returns a copy of the accumulated matrix, nil when empty.
func (b *Balancer) Samples() *samples.Matrix { return b.matrix.Clone() }

// Indices returns a copy of the accumulated matrix indices.
func (b *Balancer) Indices() []samples.MatrixIndex {
	return append([]samples.MatrixIndex(nil), b.index...)
}

// Rows returns the number of accumulated sample rows.
func (b *Balancer) Rows() int { return b.matrix.Rows() }

// AddSamplesForActivity generates samples for one activity and appends them,
// with their normalized matrix indices, to the accumulated state. A block
// that fails validation is not appended; blocks appended before it remain.
func (b *Balancer) AddSamplesForActivity(ctx context.Context, key inventory.Key, iterations int) error {
	if iterations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}
	started := time.Now()
	rows, err := b.addSamples(ctx, key, iterations)
	result := metrics.ResultBalanced
	switch {
	case err != nil:
		result = metrics.ResultFailed
	case rows == 0:
		result = metrics.ResultSkipped
	}
	b.opts.Metrics.ObserveActivity(result, rows, time.Since(started))
	if err != nil {
		return err
	}
	b.logger.Debug("activity sampled", zap.Stringer("activity", key), zap.Int("rows", rows), zap.String("result", result))
	return nil
}

func (b *Balancer) addSamples(ctx context.Context, key inventory.Key, iterations int) (int, error) {
	act, err := b.registry.Activity(ctx, key)
	if err != nil {
		return 0, err
	}
	added := 0
	for block, err := range b.opts.Resampler.Generate(ctx, act, b.env, iterations) {
		if err != nil {
			return added, fmt.Errorf("resample %s: %w", key, err)
		}
		if err := b.append(block); err != nil {
			return added, fmt.Errorf("append samples of %s: %w", key, err)
		}
		added += block.Samples.Rows()
	}
	return added, nil
}

func (b *Balancer) append(block samples.Block) error {
	idx, err := block.Normalize()
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return nil
	}
	if b.matrix == nil {
		b.matrix = block.Samples.Clone()
	} else if err := b.matrix.AppendRows(block.Samples); err != nil {
		return err
	}
	b.index = append(b.index, idx...)
	return nil
}

// AddSamplesForAllActivities runs AddSamplesForActivity for every activity of
// the database in registry order, stopping at the first failure.
func (b *Balancer) AddSamplesForAllActivities(ctx context.Context, iterations int) error {
	if iterations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}
	keys, err := b.registry.ActivityKeys(ctx, b.opts.Database)
	if err != nil {
		return fmt.Errorf("list activities of %s: %w", b.opts.Database, err)
	}
	b.opts.Progress.Start(len(keys))
	defer b.opts.Progress.Done()
	for _, key := range keys {
		if err := b.AddSamplesForActivity(ctx, key, iterations); err != nil {
			return fmt.Errorf("activity %s: %w", key, err)
		}
		b.opts.Progress.Step(key.String())
	}
	b.logger.Info("samples generated", zap.Int("activities", len(keys)), zap.Int("rows", b.Rows()), zap.Int("iterations", iterations))
	return nil
}

// CreatePresamples writes the accumulated samples as a presample package.
// When nothing was accumulated it logs a warning and returns (nil, nil).
func (b *Balancer) CreatePresamples(ctx context.Context, opts presamples.Options) (*presamples.Package, error) {
	if b.matrix == nil || len(b.index) == 0 {
		b.logger.Warn("no presamples created because there were no matrix data; " +
			"add samples for one or more activities first")
		return nil, nil
	}
	if b.opts.Writer == nil {
		return nil, errors.New("balancer: no package writer configured")
	}
	data, err := presamples.Split(b.matrix, b.index)
	if err != nil {
		return nil, err
	}
	if opts.Group == "" {
		opts.Group = b.opts.Group
	}
	pkg, err := b.opts.Writer.Write(ctx, data, opts)
	if err != nil {
		return nil, err
	}
	b.opts.Metrics.PackageWritten()
	b.logger.Info("presamples written", zap.String("id", pkg.ID), zap.String("dir", pkg.Dir))
	return &pkg, nil
}
