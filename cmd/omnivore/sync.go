package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/config"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/sources/omnivore"
	"github.com/ajitpratap0/nebula-omnivore/pkg/logger"
	"github.com/ajitpratap0/nebula-omnivore/pkg/metrics"
	"github.com/ajitpratap0/nebula-omnivore/pkg/observability"
	"github.com/ajitpratap0/nebula-omnivore/pkg/state"
)

type syncFlags struct {
	configFile  string
	statePath   string
	output      string
	streams     []string
	logLevel    string
	tracing     string
	metricsAddr string
}

func newSyncCommand() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract the selected streams",
		Long: `Extract the selected streams and write RECORD and STATE messages.

Example:
  omnivore sync --config omnivore.yaml --state state.json --output tickets.jsonl --select tickets,ticket_items`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSyncConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML or JSON configuration (environment only when empty)")
	cmd.Flags().StringVar(&flags.statePath, "state", "", "State file read before and written after the sync")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file, - for stdout")
	cmd.Flags().StringSliceVar(&flags.streams, "select", nil, "Streams to emit (default all)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.tracing, "tracing", "", "Trace exporter (none, stdout)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// loadSyncConfig loads the configuration and applies explicitly set flags.
func loadSyncConfig(cmd *cobra.Command, flags syncFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	set := cmd.Flags().Changed
	if set("state") {
		cfg.StatePath = flags.statePath
	}
	if set("output") {
		cfg.Output.Path = flags.output
	}
	if set("select") {
		cfg.Streams = flags.streams
	}
	if set("log-level") {
		cfg.Observability.LogLevel = flags.logLevel
	}
	if set("tracing") {
		cfg.Observability.Tracing = flags.tracing
	}
	if set("metrics-addr") {
		cfg.Observability.MetricsAddr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runSync(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	log := logger.WithContext(ctx).With(
		zap.String("component", "omnivore-cli"),
		zap.String("connector", omnivore.Name))

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "omnivore-tap",
		ServiceVersion: version,
		Exporter:       cfg.Observability.Tracing,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	m := metrics.Default()
	if cfg.Observability.MetricsAddr != "" {
		srv := metrics.Serve(cfg.Observability.MetricsAddr, prometheus.DefaultGatherer, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(sctx, srv)
		}()
	}

	st := state.New()
	if cfg.StatePath != "" {
		if st, err = state.Load(cfg.StatePath); err != nil {
			return err
		}
	}

	created, err := registry.CreateSource(omnivore.Name, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = created.Close(context.Background()) }()
	source, ok := created.(*omnivore.Source)
	if !ok {
		return fmt.Errorf("source %s has unexpected type %T", omnivore.Name, created)
	}
	if err := source.Apply(
		omnivore.WithState(st),
		omnivore.WithLogger(logger.Get()),
		omnivore.WithMetrics(m)); err != nil {
		return err
	}

	destination, err := registry.CreateDestination("json", cfg)
	if err != nil {
		return err
	}

	log.Info("starting sync",
		zap.Strings("streams", cfg.Streams),
		zap.Strings("locations", cfg.LocationIDs()),
		zap.String("output", cfg.Output.Path))
	start := time.Now()

	syncErr := source.Sync(ctx, destination)

	// the sink is closed with a fresh context so an interrupted sync still
	// flushes what it wrote
	if err := destination.Close(context.Background()); err != nil {
		log.Error("failed to close destination", zap.Error(err))
		if syncErr == nil {
			syncErr = err
		}
	}
	if cfg.StatePath != "" {
		if err := st.Save(cfg.StatePath); err != nil {
			log.Error("failed to save state", zap.Error(err))
			if syncErr == nil {
				syncErr = err
			}
		}
	}

	if syncErr != nil {
		log.Error("sync finished with errors", zap.Duration("duration", time.Since(start)), zap.Error(syncErr))
		return syncErr
	}
	log.Info("sync completed successfully", zap.Duration("duration", time.Since(start)))
	return nil
}
