package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/cmd/table-extractor/ui"
	"github.com/spherical/table-extractor/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the model response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached model responses",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	switch cfg.Cache.Driver {
	case "", cache.DriverNone:
		fmt.Fprintln(cmd.OutOrStdout(), "Response cache is disabled, nothing to clear")
		return nil
	case cache.DriverMemory:
		fmt.Fprintln(cmd.OutOrStdout(), "The memory cache lives only inside a running extract or serve process, nothing to clear")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := cache.Open(ctx, cacheOptions(cfg))
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()

	if err := cache.Purge(ctx, c); err != nil {
		return err
	}
	ui.Success("Cleared cached responses (%s)", cfg.Cache.Driver)
	return nil
}
