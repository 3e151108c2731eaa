package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"landbalancer/internal/balancer"
	"landbalancer/internal/blob"
	"landbalancer/internal/config"
	"landbalancer/internal/inventory"
	"landbalancer/internal/landflow"
	"landbalancer/internal/metrics"
	"landbalancer/internal/presamples"
	"landbalancer/internal/progress"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func newBalanceCmd(a *app) *cobra.Command {
	var activities []string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Generate balanced land samples and write a presample package",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBalance(cmd, activities)
		},
	}
	fs := cmd.Flags()
	inventoryFlags(fs)
	blobFlags(fs)
	fs.String("database", "", "inventory database to balance")
	fs.String("biosphere", "", "biosphere database name")
	fs.String("group", "", "parameter group label")
	patternFlags(fs)
	fs.IntP("iterations", "n", 0, "samples per exchange")
	fs.String("random-seed", "", "resampler seed; empty for a random seed")
	fs.StringArrayVar(&activities, "activity", nil, "activity key database:code (repeatable); all activities when omitted")
	fs.String("name", "", "package name")
	fs.String("id", "", "package id; generated when empty")
	fs.Bool("overwrite", false, "replace an existing package with the same id")
	fs.String("seed", "", "package column seed: sequential, none or an integer")
	fs.Bool("progress", false, "draw a progress bar on stderr")
	a.bindFor(cmd, func(fs *pflag.FlagSet, cfg *config.Config) {
		bindInventory(fs, cfg)
		bindBlob(fs, cfg)
		setString(fs, "database", &cfg.Balance.Database)
		setString(fs, "biosphere", &cfg.Balance.Biosphere)
		setString(fs, "group", &cfg.Balance.Group)
		setInt(fs, "iterations", &cfg.Balance.Iterations)
		setString(fs, "random-seed", &cfg.Balance.RandomSeed)
		setString(fs, "name", &cfg.Package.Name)
		setString(fs, "id", &cfg.Package.ID)
		setBool(fs, "overwrite", &cfg.Package.Overwrite)
		setString(fs, "seed", &cfg.Package.Seed)
		bindPatterns(fs, cfg)
	})
	return cmd
}

func patternFlags(fs *pflag.FlagSet) {
	fs.StringArray("from", nil, "land-in name pattern (repeatable)")
	fs.StringArray("to", nil, "land-out name pattern (repeatable)")
}

func bindPatterns(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("from") {
		cfg.Balance.FromPatterns, _ = fs.GetStringArray("from")
	}
	if fs.Changed("to") {
		cfg.Balance.ToPatterns, _ = fs.GetStringArray("to")
	}
}

// bindFor installs bind as the flag overlay when cmd is the command being run.
func (a *app) bindFor(cmd *cobra.Command, bind func(*pflag.FlagSet, *config.Config)) {
	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		a.bind = bind
		return a.setup(c)
	}
}

func (a *app) runBalance(cmd *cobra.Command, activities []string) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	keys := make([]inventory.Key, 0, len(activities))
	for _, s := range activities {
		k, err := inventory.ParseKey(s)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	registry, err := inventory.Open(ctx, cfg.InventoryOptions())
	if err != nil {
		return fmt.Errorf("open inventory: %w", err)
	}
	defer closeQuietly(registry)
	store, err := blob.Open(ctx, cfg.BlobOptions())
	if err != nil {
		return fmt.Errorf("open package store: %w", err)
	}
	pkgOpts, err := cfg.PackageOptions()
	if err != nil {
		return err
	}
	opts, err := cfg.BalancerOptions()
	if err != nil {
		return err
	}
	rec := metrics.NewRecorder()
	opts.Logger = a.logger
	opts.Metrics = rec
	opts.Writer = presamples.NewWriter(store, presamples.WithLogger(a.logger))
	opts.Progress = progress.NewLog(a.logger)
	if showBar, _ := cmd.Flags().GetBool("progress"); showBar {
		opts.Progress = progress.NewBar(cmd.ErrOrStderr(), 40)
	}

	started := time.Now()
	b, err := balancer.New(ctx, registry, opts)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		err = b.AddSamplesForAllActivities(ctx, cfg.Balance.Iterations)
	} else {
		for _, k := range keys {
			if err = b.AddSamplesForActivity(ctx, k, cfg.Balance.Iterations); err != nil {
				err = fmt.Errorf("activity %s: %w", k, err)
				break
			}
		}
	}
	if err != nil {
		return err
	}
	pkg, err := b.CreatePresamples(ctx, pkgOpts)
	if err != nil {
		return err
	}
	if pushErr := rec.Push(ctx, cfg.Metrics.PushGateway, cfg.Metrics.Job); pushErr != nil {
		a.logger.Warn("metrics push failed", zap.Error(pushErr))
	}
	a.logger.Info("balance finished", zap.Duration("elapsed", time.Since(started)), zap.Int("rows", b.Rows()))
	if pkg == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "no land exchanges to balance; no package written")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", pkg.ID, pkg.Dir)
	return nil
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import SNAPSHOT",
		Short: "Load a JSON or YAML snapshot into the inventory registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snapshot, err := inventory.LoadSnapshotFile(args[0])
			if err != nil {
				return err
			}
			registry, err := inventory.Open(ctx, a.cfg.InventoryOptions())
			if err != nil {
				return fmt.Errorf("open inventory: %w", err)
			}
			defer closeQuietly(registry)
			importer, ok := registry.(inventory.Importer)
			if !ok {
				return fmt.Errorf("inventory driver %s cannot import", registry.Driver())
			}
			if err := importer.Import(ctx, snapshot); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			a.logger.Info("snapshot imported", zap.String("driver", string(registry.Driver())), zap.Int("databases", len(snapshot.Databases)))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d databases\n", len(snapshot.Databases))
			return nil
		},
	}
	inventoryFlags(cmd.Flags())
	a.bindFor(cmd, bindInventory)
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect ID",
		Short: "Print the metadata of a written presample package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := blob.Open(ctx, a.cfg.BlobOptions())
			if err != nil {
				return fmt.Errorf("open package store: %w", err)
			}
			loaded, err := presamples.Load(ctx, store, a.cfg.Package.Dir, args[0])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(loaded.Metadata, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	blobFlags(cmd.Flags())
	a.bindFor(cmd, bindBlob)
	return cmd
}

func newClassifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "List the land-in and land-out flows of a biosphere database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			registry, err := inventory.Open(ctx, cfg.InventoryOptions())
			if err != nil {
				return fmt.Errorf("open inventory: %w", err)
			}
			defer closeQuietly(registry)
			cls, err := landflow.New(ctx, registry, cfg.Balance.Biosphere, cfg.Balance.FromPatterns, cfg.Balance.ToPatterns)
			if err != nil {
				if errors.Is(err, inventory.ErrDatabaseNotFound) {
					return fmt.Errorf("biosphere %q is not registered: %w", cfg.Balance.Biosphere, err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range cls.LandIn() {
				fmt.Fprintf(out, "in\t%s\n", k)
			}
			for _, k := range cls.LandOut() {
				fmt.Fprintf(out, "out\t%s\n", k)
			}
			return nil
		},
	}
	fs := cmd.Flags()
	inventoryFlags(fs)
	fs.String("biosphere", "", "biosphere database name")
	patternFlags(fs)
	a.bindFor(cmd, func(fs *pflag.FlagSet, cfg *config.Config) {
		bindInventory(fs, cfg)
		setString(fs, "biosphere", &cfg.Balance.Biosphere)
		bindPatterns(fs, cfg)
	})
	return cmd
}
