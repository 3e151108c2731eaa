// Package config assembles the landbalancer run configuration from defaults,
// an optional YAML file and LANDBALANCER_* environment variables, in that
// order of increasing precedence. Command line flags are applied last by the
// CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"landbalancer/internal/balancer"
	"landbalancer/internal/blob"
	"landbalancer/internal/inventory"
	"landbalancer/internal/landflow"
	"landbalancer/internal/presamples"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Inventory selects the registry backend.
type Inventory struct {
	Driver       string `yaml:"driver" env:"LANDBALANCER_INVENTORY_DRIVER"`
	SQLitePath   string `yaml:"sqlite_path" env:"LANDBALANCER_SQLITE_PATH"`
	PostgresDSN  string `yaml:"postgres_dsn" env:"LANDBALANCER_POSTGRES_DSN"`
	SnapshotPath string `yaml:"snapshot_path" env:"LANDBALANCER_SNAPSHOT_PATH"`
}

// Blob selects where packages are written.
type Blob struct {
	Driver          string `yaml:"driver" env:"LANDBALANCER_BLOB_DRIVER"`
	Root            string `yaml:"root" env:"LANDBALANCER_BLOB_ROOT"`
	Bucket          string `yaml:"bucket" env:"LANDBALANCER_S3_BUCKET"`
	Region          string `yaml:"region" env:"LANDBALANCER_S3_REGION"`
	Prefix          string `yaml:"prefix" env:"LANDBALANCER_S3_PREFIX"`
	Endpoint        string `yaml:"endpoint" env:"LANDBALANCER_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style" env:"LANDBALANCER_S3_PATH_STYLE"`
	AccessKeyID     string `yaml:"access_key_id" env:"LANDBALANCER_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"LANDBALANCER_S3_SECRET_ACCESS_KEY"`
}

// Balance configures the sample generation.
type Balance struct {
	Database   string `yaml:"database" env:"LANDBALANCER_DATABASE"`
	Biosphere  string `yaml:"biosphere" env:"LANDBALANCER_BIOSPHERE"`
	Group      string `yaml:"group" env:"LANDBALANCER_GROUP"`
	Iterations int    `yaml:"iterations" env:"LANDBALANCER_ITERATIONS"`
	// Flow names contain commas, so list variables are split on ';'.
	FromPatterns []string `yaml:"from_patterns" env:"LANDBALANCER_FROM_PATTERNS" envSeparator:";"`
	ToPatterns   []string `yaml:"to_patterns" env:"LANDBALANCER_TO_PATTERNS" envSeparator:";"`
	// RandomSeed seeds the resampler; empty draws a random seed.
	RandomSeed string `yaml:"random_seed" env:"LANDBALANCER_RANDOM_SEED"`
}

// Package configures the written presample package.
type Package struct {
	Name      string `yaml:"name" env:"LANDBALANCER_PACKAGE_NAME"`
	ID        string `yaml:"id" env:"LANDBALANCER_PACKAGE_ID"`
	Dir       string `yaml:"dir" env:"LANDBALANCER_PACKAGE_DIR"`
	Overwrite bool   `yaml:"overwrite" env:"LANDBALANCER_PACKAGE_OVERWRITE"`
	Seed      string `yaml:"seed" env:"LANDBALANCER_PACKAGE_SEED"`
}

// Metrics configures the optional Pushgateway export.
type Metrics struct {
	PushGateway string `yaml:"push_gateway" env:"LANDBALANCER_PUSHGATEWAY"`
	Job         string `yaml:"job" env:"LANDBALANCER_PUSH_JOB"`
}

// Config is the full run configuration.
type Config struct {
	LogLevel  string    `yaml:"log_level" env:"LANDBALANCER_LOG_LEVEL"`
	Inventory Inventory `yaml:"inventory"`
	Blob      Blob      `yaml:"blob"`
	Balance   Balance   `yaml:"balance"`
	Package   Package   `yaml:"package"`
	Metrics   Metrics   `yaml:"metrics"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		LogLevel: "info",
		Inventory: Inventory{
			Driver:     string(inventory.DriverSQLite),
			SQLitePath: "inventory.db",
		},
		Blob: Blob{
			Driver: string(blob.DriverFilesystem),
			Root:   ".",
		},
		Balance: Balance{
			Biosphere:    balancer.DefaultBiosphere,
			Group:        balancer.DefaultGroup,
			Iterations:   1000,
			FromPatterns: []string{landflow.DefaultFromPattern},
			ToPatterns:   []string{landflow.DefaultToPattern},
		},
		Package: Package{
			Dir:  presamples.DefaultDir,
			Seed: "sequential",
		},
		Metrics: Metrics{Job: "landbalancer"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when empty) and the process environment.
func Load(path string) (Config, error) {
	return LoadFrom(path, envMap(os.Environ()))
}

// LoadFrom is Load with an explicit environment.
func LoadFrom(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func envMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	if c.Balance.Database == "" {
		errs = append(errs, errors.New("balance.database is required"))
	}
	if c.Balance.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("balance.iterations must be positive, got %d", c.Balance.Iterations))
	}
	if _, err := c.RandomSeed(); err != nil {
		errs = append(errs, err)
	}
	if _, err := presamples.ParseSeed(c.Package.Seed); err != nil {
		errs = append(errs, fmt.Errorf("package.seed: %w", err))
	}
	if c.Blob.Driver == string(blob.DriverS3) && c.Blob.Bucket == "" {
		errs = append(errs, errors.New("blob.bucket is required for the s3 driver"))
	}
	return errors.Join(errs...)
}

// InventoryOptions converts the inventory section.
func (c Config) InventoryOptions() inventory.Options {
	return inventory.Options{
		Driver:       inventory.Driver(c.Inventory.Driver),
		SQLitePath:   c.Inventory.SQLitePath,
		PostgresDSN:  c.Inventory.PostgresDSN,
		SnapshotPath: c.Inventory.SnapshotPath,
	}
}

// BlobOptions converts the blob section.
func (c Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.Root,
		S3: blob.S3Config{
			Region:          c.Blob.Region,
			Bucket:          c.Blob.Bucket,
			Prefix:          c.Blob.Prefix,
			Endpoint:        c.Blob.Endpoint,
			AccessKeyID:     c.Blob.AccessKeyID,
			SecretAccessKey: c.Blob.SecretAccessKey,
			PathStyle:       c.Blob.PathStyle,
		},
	}
}

// RandomSeed parses the resampler seed; nil means random.
func (c Config) RandomSeed() (*uint64, error) {
	if c.Balance.RandomSeed == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(c.Balance.RandomSeed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("balance.random_seed: %w", err)
	}
	return &n, nil
}

// BalancerOptions converts the balance section. Runtime collaborators
// (writer, progress, logger, metrics) are left to the caller.
func (c Config) BalancerOptions() (balancer.Options, error) {
	seed, err := c.RandomSeed()
	if err != nil {
		return balancer.Options{}, err
	}
	return balancer.Options{
		Database:     c.Balance.Database,
		Biosphere:    c.Balance.Biosphere,
		Group:        c.Balance.Group,
		FromPatterns: append([]string(nil), c.Balance.FromPatterns...),
		ToPatterns:   append([]string(nil), c.Balance.ToPatterns...),
		RandomSeed:   seed,
	}, nil
}

// PackageOptions converts the package section.
func (c Config) PackageOptions() (presamples.Options, error) {
	seed, err := presamples.ParseSeed(c.Package.Seed)
	if err != nil {
		return presamples.Options{}, fmt.Errorf("package.seed: %w", err)
	}
	return presamples.Options{
		Name:      c.Package.Name,
		ID:        c.Package.ID,
		Overwrite: c.Package.Overwrite,
		Dir:       c.Package.Dir,
		Seed:      seed,
		Group:     c.Balance.Group,
	}, nil
}
