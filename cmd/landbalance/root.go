package main

import (
	"fmt"
	"io"

	"landbalancer/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	configPath  string
	verbose     bool
	pushGateway string

	cfg    config.Config
	logger *zap.Logger
	// bind applies the running command's flags on top of the loaded configuration.
	bind func(fs *pflag.FlagSet, cfg *config.Config)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "landbalance",
		Short:         "Balance land transformation exchanges of an inventory database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&a.pushGateway, "pushgateway", "", "Prometheus Pushgateway URL for run metrics")

	root.AddCommand(
		newBalanceCmd(a),
		newImportCmd(a),
		newInspectCmd(a),
		newClassifyCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("pushgateway") {
		cfg.Metrics.PushGateway = a.pushGateway
	}
	if a.bind != nil {
		a.bind(cmd.Flags(), &cfg)
	}
	a.cfg = cfg

	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if a.verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if a.logger, err = zc.Build(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

func setString(fs *pflag.FlagSet, name string, dst *string) {
	if fs.Changed(name) {
		*dst, _ = fs.GetString(name)
	}
}

func setInt(fs *pflag.FlagSet, name string, dst *int) {
	if fs.Changed(name) {
		*dst, _ = fs.GetInt(name)
	}
}

func setBool(fs *pflag.FlagSet, name string, dst *bool) {
	if fs.Changed(name) {
		*dst, _ = fs.GetBool(name)
	}
}

// inventoryFlags registers the registry selection flags shared by several commands.
func inventoryFlags(fs *pflag.FlagSet) {
	fs.String("inventory-driver", "", "inventory registry driver (memory, sqlite, postgres)")
	fs.String("sqlite-path", "", "sqlite inventory file")
	fs.String("postgres-dsn", "", "postgres inventory DSN")
	fs.String("snapshot", "", "snapshot file loaded by the memory driver")
}

func bindInventory(fs *pflag.FlagSet, cfg *config.Config) {
	setString(fs, "inventory-driver", &cfg.Inventory.Driver)
	setString(fs, "sqlite-path", &cfg.Inventory.SQLitePath)
	setString(fs, "postgres-dsn", &cfg.Inventory.PostgresDSN)
	setString(fs, "snapshot", &cfg.Inventory.SnapshotPath)
}

func blobFlags(fs *pflag.FlagSet) {
	fs.String("blob-driver", "", "package store driver (fs, s3)")
	fs.String("blob-root", "", "filesystem package store root")
	fs.String("s3-bucket", "", "S3 bucket for packages")
	fs.String("s3-endpoint", "", "custom S3 endpoint")
	fs.String("dir", "", "package directory inside the store")
}

func bindBlob(fs *pflag.FlagSet, cfg *config.Config) {
	setString(fs, "blob-driver", &cfg.Blob.Driver)
	setString(fs, "blob-root", &cfg.Blob.Root)
	setString(fs, "s3-bucket", &cfg.Blob.Bucket)
	setString(fs, "s3-endpoint", &cfg.Blob.Endpoint)
	setString(fs, "dir", &cfg.Package.Dir)
}
