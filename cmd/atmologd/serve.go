package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/atmolog/internal/loader"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/metrics"
	"github.com/xtxerr/atmolog/internal/sampler"
	"github.com/xtxerr/atmolog/internal/server"
	"github.com/xtxerr/atmolog/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sample the sensor and serve the HTTP API",
	RunE:  runServe,
}

var listenFlag string

func init() {
	serveCmd.Flags().StringVarP(&listenFlag, "listen", "l", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	m := metrics.New()
	cfg, store, err := openStore(storage.WithMetrics(m))
	if err != nil {
		return err
	}
	defer store.Close()

	log := logging.Component("atmologd")
	if listenFlag != "" {
		cfg.Listen = listenFlag
	}

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	loop := sampler.NewLoop(store, source, sampler.LoopConfig{
		SampleInterval: cfg.SampleInterval(),
		TickInterval:   cfg.Sampler.TickInterval.Duration(),
		SourceTimeout:  cfg.Sampler.SourceTimeout.Duration(),
		OnSourceError:  func(error) { m.SourceErrors.Inc() },
	})

	srv := server.New(server.Config{
		Listen:          cfg.Listen,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxSQLBody:      cfg.Server.MaxSQLBody.Bytes(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		Version:         Version,
	}, store, m)

	// The watcher is created before any goroutine starts, so a failure here
	// leaves nothing running.
	watcher, err := newConfigWatcher(cfgPath, cfg, store, loop, log)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}

	log.Info("atmologd started",
		"version", Version,
		"layout", cfg.Storage.Layout,
		"capacity", cfg.Storage.Capacity,
		"sample_interval_min", cfg.Storage.SampleInterval,
		"source", cfg.Source.Kind,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("atmologd stopped", "samples", loop.Samples(), "source_errors", loop.Errors())
	return nil
}

// newConfigWatcher returns a watcher that applies reloads of path, or nil
// when watching is disabled or there is no config file.
func newConfigWatcher(path string, cfg *loader.Config, store loader.Target, loop loader.IntervalSetter, log *slog.Logger) (*loader.Watcher, error) {
	if !cfg.Watch.Enabled || path == "" {
		return nil, nil
	}
	current := cfg
	return loader.NewWatcher(path, cfg.Watch.Debounce.Duration(), func(next *loader.Config) {
		res := loader.Apply(current, next, store, loop)
		if res.SampleIntervalChanged {
			log.Info("sample interval changed", "minutes", next.Storage.SampleInterval)
		}
		if len(res.RestartRequired) > 0 {
			log.Warn("changed settings need a restart", "settings", res.RestartRequired)
		}
		current = next
	})
}

func newSource(cfg *loader.Config) (sampler.Source, error) {
	switch cfg.Source.Kind {
	case loader.SourceSNMP:
		src, err := sampler.NewSNMPSource(cfg.Source.SNMP)
		if err != nil {
			return nil, fmt.Errorf("snmp source: %w", err)
		}
		return src, nil
	default:
		return sampler.NewSimulatedSource(cfg.Source.Seed), nil
	}
}
