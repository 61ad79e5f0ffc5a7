package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tokenwatch/tokenwatch/internal/api"
	"github.com/tokenwatch/tokenwatch/internal/archive"
	"github.com/tokenwatch/tokenwatch/internal/assess"
	"github.com/tokenwatch/tokenwatch/internal/config"
	"github.com/tokenwatch/tokenwatch/internal/dexscreener"
	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/observability"
	"github.com/tokenwatch/tokenwatch/internal/pipeline"
	"github.com/tokenwatch/tokenwatch/internal/storage"
	"github.com/tokenwatch/tokenwatch/internal/storage/migrations"
	"github.com/tokenwatch/tokenwatch/internal/storage/postgres"
	"github.com/tokenwatch/tokenwatch/internal/trader"
	"github.com/tokenwatch/tokenwatch/internal/watch"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("tokenwatch - Starting")
	log.Info().Msg("FETCH -> EVALUATE -> CLASSIFY -> TRADE")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("dry_run", cfg.General.DryRun).
		Strs("chains", cfg.Filters.AllowedChains).
		Str("min_liquidity_usd", cfg.Filters.MinLiquidity.String()).
		Int("min_age_days", cfg.Filters.MinAgeDays).
		Int("watchlist", len(cfg.Watchlist.Addresses)).
		Msg("Configuration loaded")

	// 4. Setup context with cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 5. Connect to Postgres and run migrations.
	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Postgres connection failed")
	}
	defer pool.Close()

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Postgres migration failed")
	}
	log.Info().Msg("Postgres connected, schema up to date")

	snapshots := postgres.NewSnapshotStore(pool)
	denyList := postgres.NewDenyListStore(pool)

	// 6. Seed the deny list from config.
	if err := seedDenyList(ctx, denyList, cfg.Seed); err != nil {
		log.Fatal().Err(err).Msg("Deny-list seeding failed")
	}

	// 7. Metrics registry and health monitor.
	registry := observability.NewRegistry()
	health := observability.NewHealthMonitor()
	health.Register("postgres", observability.PingCheck(pool.Ping))

	// 8. Optional ClickHouse archive.
	var archiveSink watch.ArchiveSink
	var batchWriter *archive.BatchWriter
	if cfg.Archive.Enabled {
		chClient, err := archive.NewClient(cfg.Archive.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("ClickHouse connection failed")
		}
		defer chClient.Close()

		if err := chClient.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ClickHouse schema setup failed")
		}

		batchWriter = archive.NewBatchWriter(chClient, cfg.Archive.BatchSize,
			time.Duration(cfg.Archive.FlushIntervalSec)*time.Second)
		archiveSink = batchWriter
		health.Register("clickhouse", observability.PingCheck(chClient.Ping))
		log.Info().Msg("ClickHouse archive enabled")
	}

	// 9. External collaborators.
	feed := dexscreener.NewClient(cfg.DexScreener.Endpoint,
		time.Duration(cfg.DexScreener.TimeoutSec)*time.Second)

	reputation := assess.NewRugCheckClient(cfg.RugCheck.Endpoint, cfg.RugCheck.MinScore,
		time.Duration(cfg.RugCheck.TimeoutSec)*time.Second)

	concentration := assess.NewHolderDistributionClient(cfg.Supply.Endpoint,
		cfg.Supply.MaxTopHolderPct, cfg.Supply.MaxTopHolders,
		time.Duration(cfg.Supply.TimeoutSec)*time.Second)

	var cexSignal pipeline.CEXSignal
	if cfg.Classifier.CEXSignalEnabled {
		cexSignal = pipeline.NewCEXFeedClient(cfg.Classifier.CEXSignalEndpoint,
			time.Duration(cfg.Classifier.CEXSignalTimeoutSec)*time.Second)
		log.Info().Str("endpoint", cfg.Classifier.CEXSignalEndpoint).Msg("CEX listing signal enabled")
	}

	// 10. Pipeline: evaluator, classifier, dispatcher.
	evaluator := pipeline.NewEvaluator(pipeline.Config{
		AllowedChains:       cfg.Filters.AllowedChains,
		MinLiquidityUSD:     cfg.Filters.MinLiquidity,
		MinAge:              time.Duration(cfg.Filters.MinAgeDays) * 24 * time.Hour,
		MatchDenyListByName: *cfg.Filters.MatchDenyListByName,
		ReputationFailOpen:  cfg.RugCheck.FailOpen,
	}, denyList, reputation, concentration, registry)

	classifier := pipeline.NewClassifier(pipeline.ClassifierConfig{
		PumpThresholdPct:    cfg.Classifier.PumpThresholdPct,
		RugLiquidityDropPct: cfg.Classifier.RugLiquidityDropPct,
		RugPriceDropPct:     cfg.Classifier.RugPriceDropPct,
	}, cexSignal)

	executor := trader.NewBonkBotClient(cfg.Trading.BonkBotEndpoint,
		time.Duration(cfg.Trading.TimeoutSec)*time.Second)

	var notifier trader.Notifier
	if cfg.Telegram.Enabled {
		notifier = trader.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		log.Info().Str("chat_id", cfg.Telegram.ChatID).Msg("Telegram notifications enabled")
	}

	dispatcher := trader.NewDispatcher(executor, notifier, cfg.General.DryRun, registry)

	// 11. Watcher.
	watcher := watch.NewWatcher(
		watch.WatcherConfig{PollInterval: time.Duration(cfg.Watchlist.PollIntervalSec) * time.Second},
		watch.StaticWatchlist(cfg.Watchlist.Addresses),
		feed, evaluator, classifier, dispatcher, snapshots, archiveSink, registry,
	)

	// 12. Operator API.
	server := api.NewServer(cfg.API.ListenAddr, snapshots, denyList, registry, health)

	// 13. Start services.
	var wg sync.WaitGroup

	if batchWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batchWriter.Start(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Watcher error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	log.Info().Msg("tokenwatch - Running")

	// 14. Block until shutdown.
	<-ctx.Done()
	wg.Wait()

	if batchWriter != nil {
		if err := batchWriter.Close(); err != nil {
			log.Error().Err(err).Msg("Archive writer close failed")
		}
	}

	stats := watcher.Stats()
	log.Info().
		Int64("sweeps", stats.SweepsDone).
		Int64("accepted", stats.TokensAccepted).
		Int64("fetch_errors", stats.FetchErrors).
		Msg("tokenwatch - Final statistics")

	log.Info().Msg("tokenwatch - Shutdown complete")
}

// seedDenyList loads the configured seed addresses. Existing entries keep
// their recorded reasons.
func seedDenyList(ctx context.Context, store storage.DenyListStore, seed config.SeedConfig) error {
	entries := make([]*domain.DenyListEntry, 0, len(seed.TokenAddresses)+len(seed.DeveloperAddresses))
	for _, addr := range seed.TokenAddresses {
		entries = append(entries, &domain.DenyListEntry{
			Address:  addr,
			Category: domain.CategoryToken,
			Reason:   "initial seed",
		})
	}
	for _, addr := range seed.DeveloperAddresses {
		entries = append(entries, &domain.DenyListEntry{
			Address:  addr,
			Category: domain.CategoryDeveloper,
			Reason:   "initial seed",
		})
	}
	if len(entries) == 0 {
		return nil
	}

	if err := store.Seed(ctx, entries); err != nil {
		return err
	}
	log.Info().Int("entries", len(entries)).Msg("Deny list seeded")
	return nil
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "tokenwatch").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "tokenwatch").
			Str("instance", general.InstanceID).Logger()
	}
}
