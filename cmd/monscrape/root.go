package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/monscrape/pkg/cache"
	"github.com/Sternrassler/monscrape/pkg/client"
	"github.com/Sternrassler/monscrape/pkg/config"
	"github.com/Sternrassler/monscrape/pkg/export"
	"github.com/Sternrassler/monscrape/pkg/logging"
	"github.com/Sternrassler/monscrape/pkg/metrics"
	"github.com/Sternrassler/monscrape/pkg/pagination"
	"github.com/Sternrassler/monscrape/pkg/ratelimit"
	"github.com/natefinch/atomic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds the process environment and the parsed flags of one run.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	cacheDir   string
	redisAddr  string
	baseURL    string
	logLevel   string
	pretty     bool
	metricsOut string

	download bool
	process  bool
	strict   bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monscrape [flags] <collector_id> [output_file]",
		Short: "Scrape SurveyMonkey collector responses and export file uploads as CSV",
		Long: `Scrape SurveyMonkey collector responses and export file uploads as CSV.

If neither --download nor --process is given, both run. The API token is read
from auth.token in monscrape.yaml, or from the MONSCRAPE_TOKEN environment
variable.

The output file gets a .csv extension. Use "-" to write to stdout; without an
output file the rows go to <collector_id>.csv.

A collector id that matches a subcommand name, such as "invalidate", must
follow "--":

  monscrape -- invalidate out.csv`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}
			return a.scrape(cmd.Context(), args[0], dest)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultPath, "configuration file")
	flags.StringVar(&a.cacheDir, "cache-dir", "", "page cache directory (overrides cache.dir)")
	flags.StringVar(&a.redisAddr, "redis-addr", "", "cache pages in Redis at this address (overrides cache.redis_addr)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.pretty, "pretty", false, "human-readable logs")
	flags.StringVar(&a.metricsOut, "metrics-out", "", `write metrics to this file after the run ("-" for stdout)`)

	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "API base URL (overrides api.base_url)")
	cmd.Flags().BoolVarP(&a.download, "download", "d", false, "download pages into the cache")
	cmd.Flags().BoolVarP(&a.process, "process", "p", false, "export cached pages as CSV")

	cmd.AddCommand(newInvalidateCmd(a))
	return cmd
}

// loadConfig resolves the configuration file, the environment and the flags,
// in increasing priority.
func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configPath, a.getenv)
	if err != nil {
		return config.Config{}, err
	}

	if a.cacheDir != "" {
		cfg.Cache.Dir = a.cacheDir
	}
	if a.redisAddr != "" {
		cfg.Cache.RedisAddr = a.redisAddr
	}
	if a.baseURL != "" {
		cfg.API.BaseURL = a.baseURL
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.pretty {
		cfg.Log.Pretty = true
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(logging.Config{Level: level, Pretty: cfg.Log.Pretty, Output: a.stderr})

	return cfg, nil
}

// openStore returns the configured page cache backend.
func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.Cache.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		return cache.NewRedisStore(rc), nil
	}
	return cache.NewFileStore(cfg.Cache.Dir)
}

func (a *app) scrape(ctx context.Context, collectorID, dest string) error {
	if !a.download && !a.process {
		a.download = true
		a.process = true
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger("cli").With().Str("collector", collectorID).Logger()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	lock, err := store.Lock(ctx, collectorID)
	if err != nil {
		return fmt.Errorf("lock collector %s: %w", collectorID, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release collector lock")
		}
	}()

	if a.download {
		if err := a.runDownload(ctx, cfg, store, collectorID, logger); err != nil {
			return err
		}
	}

	if a.process {
		if err := a.runProcess(ctx, store, collectorID, dest, logger); err != nil {
			return err
		}
	}

	return a.writeMetrics()
}

func (a *app) runDownload(ctx context.Context, cfg config.Config, store cache.Store, collectorID string, logger zerolog.Logger) error {
	clientCfg := client.DefaultConfig(store, cfg.Auth.Token, collectorID)
	clientCfg.BaseURL = cfg.API.BaseURL
	clientCfg.Timeout = cfg.API.Timeout
	clientCfg.RateLimiter = ratelimit.NewTracker(logging.NewLogger("ratelimit"))

	apiClient, err := client.New(clientCfg)
	if err != nil {
		return err
	}
	defer apiClient.Close()

	walker := pagination.NewWalker(apiClient, logging.NewLogger("walker"))
	pages, err := pagination.Drain(walker.Walk(ctx, client.BulkURL(collectorID)))
	if err != nil {
		return fmt.Errorf("download %s: %w", collectorID, err)
	}

	logger.Info().Int("pages", pages).Msg("Download complete")
	return nil
}

func (a *app) runProcess(ctx context.Context, store cache.Store, collectorID, dest string, logger zerolog.Logger) error {
	records, err := export.Collect(ctx, store, collectorID)
	if err != nil {
		return err
	}

	out := export.ResolveOutput(collectorID, dest)
	if out == export.Stdout {
		if err := export.WriteCSV(a.stdout, records); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	} else {
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, records); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		if err := atomic.WriteFile(out, &buf); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(a.stdout, "Wrote %d rows to %s\n", len(records), out)
	}

	export.RenderSummary(a.stderr, collectorID, records)
	logger.Info().Int("rows", len(records)).Str("output", out).Msg("Export complete")
	return nil
}

func (a *app) writeMetrics() error {
	if a.metricsOut == "" {
		return nil
	}
	if a.metricsOut == "-" {
		return metrics.Dump(a.stdout, metrics.Gatherer)
	}

	var buf bytes.Buffer
	if err := metrics.Dump(&buf, metrics.Gatherer); err != nil {
		return err
	}
	if err := atomic.WriteFile(a.metricsOut, &buf); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
