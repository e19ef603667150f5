// Command feedctl runs ingestion cycles by hand and inspects the dedup cache.
//
//	feedctl run --limit 20
//	feedctl cache stats
//	feedctl cache purge
//	feedctl feeds list
//	feedctl --backend sqlite db migrate
//
// Settings come from the same environment variables as the worker; the
// persistent flags override the most common ones.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"feedwire/internal/infra/worker"
	"feedwire/internal/observability/logging"
)

type globalFlags struct {
	feeds   string
	backend string
	cache   string
	verbose bool
}

// the worker metrics register with the default registry, so only once
var workerMetrics = sync.OnceValue(worker.NewWorkerMetrics)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "feedctl",
		Short:        "feedwire control tool",
		Long:         "Runs RSS ingestion cycles on demand and manages the deduplication cache.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.feeds, "feeds", "", "feeds YAML file (overrides FEEDS_CONFIG)")
	root.PersistentFlags().StringVar(&g.backend, "backend", "", "cache backend: file, sqlite or postgres (overrides CACHE_BACKEND)")
	root.PersistentFlags().StringVar(&g.cache, "cache", "", "cache file path (overrides CACHE_PATH)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		runCmd(&g),
		cacheCmd(&g),
		feedsCmd(&g),
		dbCmd(&g),
	)
	return root
}

// loadConfig reads the environment and applies the flag overrides.
func (g *globalFlags) loadConfig(logger *slog.Logger) (*worker.EngineConfig, error) {
	cfg, err := worker.LoadConfigFromEnv(logger, workerMetrics())
	if err != nil {
		return nil, err
	}
	if g.feeds != "" {
		cfg.FeedsConfig = g.feeds
	}
	if g.backend != "" {
		cfg.CacheBackend = g.backend
	}
	if g.cache != "" {
		cfg.CachePath = g.cache
	}
	return cfg, nil
}

func (g *globalFlags) logger() *slog.Logger {
	if !g.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return logging.NewTextLogger()
}

// openEngine loads the configuration and wires an engine.
func (g *globalFlags) openEngine(cmd *cobra.Command) (*worker.Engine, *slog.Logger, error) {
	logger := g.logger()
	cfg, err := g.loadConfig(logger)
	if err != nil {
		return nil, nil, err
	}
	engine, err := worker.NewEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return engine, logger, nil
}
