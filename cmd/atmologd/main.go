// atmologd samples an environmental sensor into a bounded on-disk log and
// serves the log over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/atmolog/internal/loader"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "atmologd",
	Short: "atmolog - bounded sensor reading store",
	Long: `atmologd samples humidity, temperature and pressure at a fixed interval,
keeps the newest readings in a capacity-bounded log on disk together with
their running min/max, and serves exports, summaries and SQL over HTTP.

The export, clear, stats and shell commands open the store directly and
must not run against a data directory a serving daemon is using.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path (defaults plus ATMOLOG_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.Version = Version
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*loader.Config, error) {
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.Log.Format == "json")
	return cfg, nil
}

// openStore loads the configuration and opens the store it describes.
func openStore(opts ...storage.Option) (*loader.Config, *storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(&cfg.Storage, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, store, nil
}
