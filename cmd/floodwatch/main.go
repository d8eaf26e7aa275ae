package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coastsense/floodwatch/internal/alerting"
	"github.com/coastsense/floodwatch/internal/alerting/database"
	"github.com/coastsense/floodwatch/internal/api"
	"github.com/coastsense/floodwatch/internal/config"
	"github.com/coastsense/floodwatch/internal/engine"
	"github.com/coastsense/floodwatch/internal/ingest"
	"github.com/coastsense/floodwatch/internal/notify"
	"github.com/coastsense/floodwatch/internal/observability"
	"github.com/coastsense/floodwatch/internal/policy"
	"github.com/coastsense/floodwatch/internal/scoring"
	"github.com/coastsense/floodwatch/internal/timeline"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	switch cfg.Logging.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	pol, err := policy.Load(cfg.Engine.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load alert policy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store database.Store
	pg, err := database.NewPgStore(ctx, cfg.Database.DSN())
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, falling back to in-memory store")
		store = database.NewMemoryStore()
	} else {
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure database schema")
		}
		store = pg
	}

	var cache *redis.Client
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, timeline caching disabled")
		rdb.Close()
	} else {
		cache = rdb
		defer rdb.Close()
	}

	var notifier notify.Notifier = notify.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
		defer kn.Close()
		notifier = kn
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.AlertTopic).Msg("kafka notifier enabled")
	}

	metrics := observability.NewMetrics()

	ingestor := ingest.New(ingest.Options{
		Retention: parseDuration(cfg.Engine.BufferRetention, 48*time.Hour),
		Window:    parseDuration(cfg.Engine.FeatureWindow, 6*time.Hour),
		Metrics:   metrics,
	})

	scorer := scoring.NewWeightedScorer(scoring.ScorerOptions{
		Bands:  pol.Bands,
		MaxAge: parseDuration(cfg.Engine.MaxReadingAge, 2*time.Hour),
	})

	manager := alerting.NewManager(alerting.ManagerOptions{
		Store:    store,
		Notifier: notifier,
		Metrics:  metrics,
	})

	eng := engine.New(engine.Options{
		Ingestor:     ingestor,
		Scorer:       scorer,
		Evaluator:    alerting.NewEvaluator(pol),
		Manager:      manager,
		Store:        store,
		Policy:       pol,
		Metrics:      metrics,
		TickInterval: parseDuration(cfg.Engine.TickInterval, 5*time.Minute),
		StaleAge:     parseDuration(cfg.Engine.StationStaleAge, 30*time.Minute),
	})

	builder := timeline.NewBuilder(timeline.BuilderOptions{
		Features: ingestor,
		Scorer:   scorer,
		Bands:    pol.Bands,
		Cache:    cache,
		CacheTTL: parseDuration(cfg.Engine.TimelineCacheTTL, 5*time.Minute),
		Metrics:  metrics,
	})

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start forecast engine")
	}
	defer eng.Stop()

	go manager.StartSweeper(ctx, parseDuration(cfg.Engine.SweepInterval, time.Minute))

	server := api.NewServer(eng, manager, store, builder)
	httpSrv := &http.Server{
		Addr:    cfg.Server.BindAddr,
		Handler: server.Router(),
	}
	go func() {
		log.Info().Str("addr", cfg.Server.BindAddr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Str("value", s).Msg("invalid duration, using default")
		return def
	}
	return d
}
