/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/catalog"
	"github.com/ssargent/framedb/pkg/config"
	"github.com/ssargent/framedb/pkg/di"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
)

// skipStorage marks commands that run without opening the catalog
const skipStorage = "skip-storage"

var (
	container *di.Container

	// opened is the env of the running command, closed by execute
	opened *env
)

// SetContainer injects the dependency container
func SetContainer(c *di.Container) {
	container = c
}

type envKey struct{}

// env is the state shared by every command that touches the catalog
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	durable  *storage.Durable
	catalog  *catalog.Catalog
	output   string
}

func envFrom(cmd *cobra.Command) (*env, error) {
	e, ok := cmd.Context().Value(envKey{}).(*env)
	if !ok {
		return nil, errors.New("catalog not opened")
	}
	return e, nil
}

// NewRootCmd builds the framedb command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "framedb",
		Short: "FrameDB - video dataset catalog",
		Long: `FrameDB keeps the catalog of video datasets and processing jobs and
the per-video records (descriptors, keyframe indexes, web timestamps) that
ingestion and job planning produce.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsStorage(cmd) {
				return nil
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			opened = e
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", config.GetDefaultConfigPath(), "Path to the configuration file")
	flags.StringP("data-dir", "d", "", "Data directory (overrides data_dir)")
	flags.String("backend", "", "Storage backend: file, pebble, badger or memory (overrides storage.backend)")
	flags.String("log-level", "", "Log level (overrides logging.level)")
	flags.StringP("output", "o", "table", "Output format (table or json)")

	rootCmd.AddCommand(
		newInitCmd(),
		newDatasetCmd(),
		newJobCmd(),
		newHistoryCmd(),
		newInspectCmd(),
		newCheckCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if container == nil {
		container = di.NewContainer()
	}
	if err := execute(context.Background(), NewRootCmd()); err != nil {
		os.Exit(1)
	}
}

// execute runs rootCmd and closes the catalog and backend it opened, whether
// or not the command succeeded.
func execute(ctx context.Context, rootCmd *cobra.Command) error {
	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeEnv(); err == nil {
		err = cerr
	}
	return err
}

func closeEnv() error {
	if opened == nil {
		return nil
	}
	e := opened
	opened = nil
	err := e.catalog.Close()
	if cerr := e.durable.Close(); err == nil {
		err = cerr
	}
	return err
}

// needsStorage reports whether cmd works on the catalog. Help, completion
// and commands annotated with skipStorage run without it.
func needsStorage(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipStorage] != "" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// loadConfig reads the config file if present and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration %s", configPath)
	}
	return cfg, nil
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	output, _ := cmd.Flags().GetString("output")
	if output != "table" && output != "json" {
		return nil, errors.Newf("unknown output format %q", output)
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	if container == nil {
		container = di.NewContainer()
	}
	backend, err := container.GetBackendFactory()(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s backend", cfg.Storage.Backend)
	}

	registry := prometheus.NewRegistry()
	durable := storage.NewDurable(backend, storage.Options{
		Retry:   cfg.RetryPolicy(),
		Logger:  logger,
		Metrics: storage.NewMetrics(registry),
	})

	cat, err := catalog.Open(durable, record.CatalogMetadataPath, catalog.WithLogger(logger))
	if err != nil {
		_ = durable.Close()
		return nil, err
	}
	if rec := cat.Recovery(); rec.TornBytes > 0 || rec.SkippedBytes > 0 {
		cmd.PrintErrf("Recovered catalog: %d torn bytes ignored, %d corrupt bytes skipped\n", rec.TornBytes, rec.SkippedBytes)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		durable:  durable,
		catalog:  cat,
		output:   output,
	}, nil
}
