package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/experiment"
	rediscache "github.com/rmax-ai/sirsim/pkg/store/redis"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached ensemble summaries in Redis",
	}
	cmd.PersistentFlags().String("config", "", "Path to a YAML or JSON config file")
	cmd.AddCommand(newCacheClearCmd(), newCacheForgetCmd())
	return cmd
}

// openCache connects to the Redis named in the config. The returned close
// func must be called when done.
func openCache(cmd *cobra.Command) (*rediscache.SummaryCache, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, nil, &configError{fmt.Errorf("redis.addr is not set; there is no cache to manage")}
	}
	client, err := dialRedis(cmd.Context(), cfg.Redis.Addr)
	if err != nil {
		return nil, nil, err
	}
	return rediscache.NewSummaryCache(client, cfg.Redis.TTL), client.Close, nil
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, closeFn, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

func newCacheForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget [fingerprint]",
		Short: "Drop the cached summary of one config",
		Long: `Drop one cached summary. With no argument the fingerprint is computed
from the simulation settings in --config, so the next serve or MCP request
for that config runs a fresh ensemble.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fp string
			if len(args) == 1 {
				fp = args[0]
			} else {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				sim, err := cfg.ToSimulation()
				if err != nil {
					return &configError{err}
				}
				if fp, err = experiment.Fingerprint(sim); err != nil {
					return err
				}
			}

			cache, closeFn, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := cache.Delete(cmd.Context(), fp); err != nil {
				return fmt.Errorf("failed to drop cached summary %s: %w", fp, err)
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"fingerprint": fp})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped cached summary %s\n", fp)
			return nil
		},
	}
	return cmd
}
