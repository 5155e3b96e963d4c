// Command harvest downloads the complete results history of one parkrun
// event, page by page, into the local page cache.
//
// Usage:
//
//	harvest <event> [--config harvest.yaml] [--data-dir data] [--max-failures 3]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/parkrun-harvester/pkg/cache"
	"github.com/Sternrassler/parkrun-harvester/pkg/client"
	"github.com/Sternrassler/parkrun-harvester/pkg/config"
	"github.com/Sternrassler/parkrun-harvester/pkg/extract"
	"github.com/Sternrassler/parkrun-harvester/pkg/harvest"
	"github.com/Sternrassler/parkrun-harvester/pkg/logging"
	"github.com/Sternrassler/parkrun-harvester/pkg/metrics"
	"github.com/Sternrassler/parkrun-harvester/pkg/pagination"
	"github.com/Sternrassler/parkrun-harvester/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	configFile  string
	logLevel    string
	pretty      bool
	dataDir     string
	baseURL     string
	urlMode     string
	backend     string
	metricsAddr string
	maxFailures int
	startIndex  int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "harvest <event>",
		Short: "Harvest the results history of one parkrun event",
		Long: `harvest walks an event's results pages from the first index upwards,
keeping a raw snapshot and a parsed JSON artifact of every page. Pages already
cached are never fetched again, so an interrupted run resumes where it stopped.
The run ends after a configurable number of consecutive failed pages.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", config.DefaultPath, "config file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")
	flags.StringVar(&opts.dataDir, "data-dir", "data", "root directory of the filesystem cache")
	flags.StringVar(&opts.baseURL, "base-url", client.DefaultBaseURL, "site root")
	flags.StringVar(&opts.urlMode, "url-mode", string(client.URLModePage), "page addressing (page, weekly)")
	flags.StringVar(&opts.backend, "backend", config.BackendFS, "cache backend (fs, redis)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.IntVar(&opts.maxFailures, "max-failures", 3, "stop after this many consecutive failed pages")
	flags.IntVar(&opts.startIndex, "start-index", 1, "first page index")

	return cmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *options, args []string) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	if len(args) == 1 {
		cfg.Event = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging = opts.logLevel
	}
	if flags.Changed("pretty") {
		cfg.Pretty = opts.pretty
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.dataDir
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if flags.Changed("url-mode") {
		cfg.URLMode = opts.urlMode
	}
	if flags.Changed("backend") {
		cfg.Cache.Backend = opts.backend
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("max-failures") {
		cfg.Pagination.MaxConsecutiveFailures = opts.maxFailures
	}
	if flags.Changed("start-index") {
		cfg.Pagination.StartIndex = opts.startIndex
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run harvests cfg.Event. Progress goes to stderr, the summary to stdout.
func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logging.Setup(logCfg)
	logger := logging.NewLogger("harvest").With().Str("event", cfg.Event).Logger()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Prepare(ctx, cfg.Event); err != nil {
		return fmt.Errorf("prepare cache: %w", err)
	}

	if cfg.MetricsAddr != "" {
		server, err := metrics.Listen(cfg.MetricsAddr, logging.NewLogger("metrics"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	tracker := ratelimit.NewTracker(cfg.PacingConfig(), logging.NewLogger("ratelimit"))
	fetcher, err := client.New(cfg.ClientConfig(), store, tracker, logging.NewLogger("fetcher"))
	if err != nil {
		return err
	}
	defer fetcher.Close()

	pipeline := harvest.NewPipeline(fetcher, extract.New(logging.NewLogger("extract")), store, logging.NewLogger("pipeline"))
	status := logging.NewStatusLine(stderr)
	controller := pagination.NewController(pipeline, cfg.ControllerConfig(), status, logging.NewLogger("pagination"))

	logger.Info().
		Str("base_url", cfg.BaseURL).
		Str("backend", cfg.Cache.Backend).
		Int("start_index", cfg.Pagination.StartIndex).
		Msg("Starting harvest")

	result, err := controller.Run(ctx)
	status.Done()
	if err != nil {
		logger.Error().
			Err(err).
			Int("pages", result.Fetched).
			Msg("Harvest aborted")
		return fmt.Errorf("harvest %s: %w", cfg.Event, err)
	}

	fmt.Fprintln(stdout, logging.Summary(result.Fetched, store.Location(cfg.Event)))
	return nil
}

func openStore(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return cache.NewRedisStore(redisClient, cfg.RedisPrefix()), func() { redisClient.Close() }, nil
	case config.BackendFS:
		return cache.NewFSStore(cfg.DataDir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
