package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cinesearch/cinesearch/internal/api"
	"github.com/cinesearch/cinesearch/internal/bot"
	"github.com/cinesearch/cinesearch/internal/cache"
	"github.com/cinesearch/cinesearch/internal/catalog"
	"github.com/cinesearch/cinesearch/internal/config"
	"github.com/cinesearch/cinesearch/internal/database"
	"github.com/cinesearch/cinesearch/internal/health"
	"github.com/cinesearch/cinesearch/internal/logger"
	"github.com/cinesearch/cinesearch/internal/scheduler"
	"github.com/cinesearch/cinesearch/internal/scheduler/tasks"
	"github.com/cinesearch/cinesearch/internal/search"
	"github.com/cinesearch/cinesearch/internal/startup"
	"github.com/cinesearch/cinesearch/internal/stats"
	"github.com/cinesearch/cinesearch/internal/users"
)

const shutdownTimeout = 15 * time.Second

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: cinesearch [-config FILE] [command]

Commands:
  serve            run the bot and HTTP server (default)
  rebuild          recompute normalized titles for every movie
  import FILE      add movies from a YAML catalog file
  export FILE      write the catalog to a YAML file
  migrate-status   print database migration status

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Usage = usage
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		RecentSize: cfg.Logging.RecentSize,
	})
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, log)
	case "rebuild", "import", "export", "migrate-status":
		err = runTool(ctx, command, flag.Args()[1:], cfg, log)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("cinesearch exited with error")
		log.Close()
		os.Exit(1)
	}
}

// openDatabase connects and migrates, retrying while the server is still
// coming up.
func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.DB, error) {
	var db *database.DB
	err := startup.WithRetry(ctx, "database", startup.DefaultRetryConfig(), func(context.Context) error {
		conn, err := database.New(cfg.Database)
		if err != nil {
			return err
		}
		if err := conn.Migrate(); err != nil {
			conn.Close()
			return err
		}
		db = conn
		return nil
	}, log.Logger)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dialect", string(db.Dialect())).Msg("Database ready")
	return db, nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("version", config.VersionString()).Msg("Starting cinesearch")

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	movies := catalog.NewService(db, log.Logger)
	if _, err := movies.EnsureNormalized(ctx); err != nil {
		return fmt.Errorf("failed to normalize titles: %w", err)
	}

	store, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to in-memory search cache")
		store = cache.NewMemoryStore(cfg.Cache.MaxEntries)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	components := health.NewService(log.Logger)
	components.AddCheck(health.CategoryDatabase, "database", "Database", db.Ping)
	if redis, ok := store.(*cache.RedisStore); ok {
		components.AddCheck(health.CategoryCache, "redis", "Redis", redis.Ping)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	st := stats.New()
	if err := st.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	searchCfg := cfg.Search
	searchCfg.CacheTTL = cfg.Cache.TTL
	searcher := search.NewService(movies, store, st, searchCfg, log.Logger)
	people := users.NewService(db, log.Logger)

	var tg *bot.Bot
	err = startup.WithRetry(ctx, "telegram", startup.DefaultRetryConfig(), func(context.Context) error {
		b, err := bot.New(cfg.Telegram, cfg.Users, bot.Services{
			Search:  searcher,
			Catalog: movies,
			Users:   people,
			Stats:   st,
			Recent:  log.Recent(),
			Health:  components,
		}, log.Logger)
		if err != nil {
			return err
		}
		tg = b
		return nil
	}, log.Logger)
	if err != nil {
		return err
	}

	components.AddCheck(health.CategoryTelegram, "telegram", "Telegram API", tg.Ping)
	components.SetNotifier(tg.Handler())

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := tasks.RegisterCleanupInactiveUsersTask(sched, cfg.Scheduler.CleanupCron, cfg.Users.InactiveDays, people, log.Logger); err != nil {
		return err
	}
	if err := tasks.RegisterNormalizationCheckTask(sched, cfg.Scheduler.NormalizationCron, movies, searcher, log.Logger); err != nil {
		return err
	}
	if err := tasks.RegisterHealthCheckTask(sched, cfg.Scheduler.HealthCron, components); err != nil {
		return err
	}
	sched.Start()

	deps := api.Deps{
		DB:        db,
		Catalog:   movies,
		Search:    searcher,
		Stats:     st,
		Registry:  registry,
		Scheduler: sched,
		Health:    components,
		Recent:    log.Recent(),
	}
	if tg.UsesWebhook() {
		deps.Webhook = tg.WebhookHandler()
	}
	server := api.NewServer(cfg.Server, deps, log.Logger)

	errCh := make(chan error, 2)
	go func() {
		addr := cfg.Server.Address()
		log.Info().Str("address", addr).Msg("HTTP server listening")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	botCtx, cancelBot := context.WithCancel(ctx)
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := tg.Run(botCtx); err != nil {
			errCh <- fmt.Errorf("telegram: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err = <-errCh:
		log.Error().Err(err).Msg("Component failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	cancelBot()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("HTTP server shutdown failed")
	}
	if stopErr := sched.Stop(); stopErr != nil {
		log.Warn().Err(stopErr).Msg("Scheduler shutdown failed")
	}
	select {
	case <-botDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Telegram client did not stop in time")
	}

	log.Info().Msg("Stopped")
	return err
}

// runTool runs a one-shot maintenance command against the database.
func runTool(ctx context.Context, command string, args []string, cfg *config.Config, log *logger.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	movies := catalog.NewService(db, log.Logger)

	switch command {
	case "migrate-status":
		return db.MigrationStatus()

	case "rebuild":
		updated, total, err := movies.RebuildNormalizedTitles(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("updated", updated).Int("total", total).Msg("Normalized titles rebuilt")
		return nil

	case "import":
		if len(args) != 1 {
			return errors.New("usage: cinesearch import FILE")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		added, skipped, err := movies.Import(ctx, f)
		if err != nil {
			return err
		}
		log.Info().Int("added", added).Int("skipped", skipped).Str("file", args[0]).Msg("Catalog imported")
		return nil

	case "export":
		if len(args) != 1 {
			return errors.New("usage: cinesearch export FILE")
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		n, err := movies.Export(ctx, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		log.Info().Int("movies", n).Str("file", args[0]).Msg("Catalog exported")
		return nil
	}

	return fmt.Errorf("unknown command %q", command)
}
