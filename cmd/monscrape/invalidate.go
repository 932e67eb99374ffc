package main

import (
	"fmt"

	"github.com/Sternrassler/monscrape/pkg/cache"
	"github.com/Sternrassler/monscrape/pkg/logging"
	"github.com/spf13/cobra"
)

func newInvalidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate <collector_id>",
		Short: "Drop every cached page of a collector",
		Long: `Drop every cached page of a collector, so the next download
fetches the whole result set again.

A collector without cached pages is not an error unless --strict is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.invalidate(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&a.strict, "strict", false, "fail if the collector has no cached pages")
	return cmd
}

func (a *app) invalidate(cmd *cobra.Command, collectorID string) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	lock, err := store.Lock(ctx, collectorID)
	if err != nil {
		return fmt.Errorf("lock collector %s: %w", collectorID, err)
	}
	defer lock.Unlock()

	logger := logging.NewLogger("cli").With().Str("collector", collectorID).Logger()

	if a.strict {
		if err := store.Invalidate(ctx, collectorID); err != nil {
			return fmt.Errorf("invalidate %s: %w", collectorID, err)
		}
		fmt.Fprintf(a.stdout, "Invalidated cache of %s\n", collectorID)
		return a.writeMetrics()
	}

	existed, err := cache.InvalidateIfExists(ctx, store, collectorID)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", collectorID, err)
	}
	if existed {
		fmt.Fprintf(a.stdout, "Invalidated cache of %s\n", collectorID)
	} else {
		logger.Info().Msg("No cached pages to invalidate")
	}
	return a.writeMetrics()
}
