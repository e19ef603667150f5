package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"feedwire/internal/infra/worker"
)

func cacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the deduplication cache",
	}
	cmd.AddCommand(cacheStatsCmd(g), cachePurgeCmd(g))
	return cmd
}

func cacheStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entry count, age range and limits of the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLoadedCache(cmd, func(e *worker.Engine) error {
				return writeJSON(cmd.OutOrStdout(), e.Cache.Stats())
			})
		},
	}
}

// purgeOutput is printed by "cache purge".
type purgeOutput struct {
	Expired   int `json:"expired"`
	Evicted   int `json:"evicted"`
	Remaining int `json:"remaining"`
}

func cachePurgeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop expired entries, enforce the size bound and save the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withLoadedCache(cmd, func(e *worker.Engine) error {
				res := e.Cache.PurgeExpired(time.Now())
				if err := e.Cache.Persist(cmd.Context()); err != nil {
					return fmt.Errorf("save cache: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), purgeOutput{
					Expired:   res.Expired,
					Evicted:   res.Evicted,
					Remaining: e.Cache.Len(),
				})
			})
		},
	}
}

// withLoadedCache opens the engine and loads the stored cache before fn.
// A failed load aborts so nothing is written over the stored entries.
func (g *globalFlags) withLoadedCache(cmd *cobra.Command, fn func(*worker.Engine) error) error {
	engine, logger, err := g.openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close engine", slog.Any("error", err))
		}
	}()

	if _, err := engine.Cache.Load(cmd.Context()); err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	return fn(engine)
}
