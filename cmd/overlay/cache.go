package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-radar-overlay/internal/cache"
	"github.com/couchcryptid/storm-radar-overlay/internal/config"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the offline cache",
	}

	var asJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tier entry counts and sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(mgr *cache.Manager) error {
				return printStats(cmd.OutOrStdout(), mgr.Stats(), asJSON)
			})
		},
	}
	statsCmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry from all tiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(mgr *cache.Manager) error {
				if err := mgr.ClearAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			})
		},
	}

	cacheCmd.AddCommand(statsCmd, clearCmd)
	return cacheCmd
}

func withCache(fn func(*cache.Manager) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	mgr, err := openCache(cfg, clockwork.NewRealClock(), logger, observability.NewUnregisteredMetrics())
	if err != nil {
		return err
	}
	defer mgr.Close()
	return fn(mgr)
}

// openCache opens the configured store and indexes it into tiers.
func openCache(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*cache.Manager, error) {
	store, err := cache.NewStore(cfg.CacheBackend, cfg.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	mgr, err := cache.NewManager(store, cache.Config{
		Tiers:      tiersFor(cfg),
		MinEntries: cfg.CacheEvictionMinEntries,
	}, clock, logger, metrics)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return mgr, nil
}

// tiersFor applies the configured budgets to the standard tiers.
func tiersFor(cfg *config.Config) []cache.TierConfig {
	tiers := cache.DefaultTiers()
	for i := range tiers {
		switch tiers[i].Name {
		case cache.TierTile:
			tiers[i].MaxBytes = cfg.CacheTileMaxBytes
		case cache.TierAPI:
			tiers[i].MaxBytes = cfg.CacheAPIMaxBytes
			tiers[i].MaxAge = cfg.CacheAPIMaxAge
		case cache.TierStatic:
			tiers[i].MaxBytes = cfg.CacheStaticMaxBytes
			tiers[i].Manifest = cfg.StaticManifest
		}
	}
	return tiers
}

func printStats(w io.Writer, stats []cache.TierStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tENTRIES\tBYTES\tMAX BYTES\tMAX AGE")
	for _, s := range stats {
		maxAge := "-"
		if s.MaxAge > 0 {
			maxAge = s.MaxAge.String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", s.Name, s.Entries, s.Bytes, s.MaxBytes, maxAge)
	}
	return tw.Flush()
}
