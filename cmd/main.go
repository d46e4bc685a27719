package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Rann-Studio/TokenGuardAI/internal/api"
	"github.com/Rann-Studio/TokenGuardAI/internal/cache"
	"github.com/Rann-Studio/TokenGuardAI/internal/catalog"
	"github.com/Rann-Studio/TokenGuardAI/internal/coingecko"
	"github.com/Rann-Studio/TokenGuardAI/internal/engine"
	"github.com/Rann-Studio/TokenGuardAI/internal/llm"
	"github.com/Rann-Studio/TokenGuardAI/internal/store"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		httpAddr     = flag.String("http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP server address")
		openaiKey    = flag.String("openai-key", "", "OpenAI API key (can also be set via OPENAI_API_KEY env var)")
		coingeckoKey = flag.String("coingecko-key", "", "CoinGecko API key (can also be set via COINGECKO_API_KEY env var)")
		ttl          = flag.Duration("cache-ttl", cache.DefaultTTL, "Freshness window for cached results")
		noSync       = flag.Bool("no-sync", false, "Disable the periodic catalog synchronizer")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("TokenGuardAI v1.0.0")
		fmt.Println("AI-powered crypto query and token risk analysis service")
		os.Exit(0)
	}

	logger := newLogger()

	apiKey := *openaiKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		logger.Fatal().Msg("OpenAI API key is required. Set OPENAI_API_KEY or use -openai-key")
	}

	cgKey := *coingeckoKey
	if cgKey == "" {
		cgKey = os.Getenv("COINGECKO_API_KEY")
	}

	// Storage backend: Postgres when DATABASE_URL is set, Redis when
	// REDIS_URL is set, otherwise a process-local store for development.
	ctx := context.Background()
	var st store.Store
	var redisClient *redis.Client
	switch {
	case os.Getenv("DATABASE_URL") != "":
		pg, err := store.NewPostgres(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		st = pg
		logger.Info().Msg("using postgres store")
	case os.Getenv("REDIS_URL") != "":
		opts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		st = store.NewRedis(redisClient)
		logger.Info().Msg("using redis store")
	default:
		st = store.NewMemory()
		logger.Warn().Msg("no DATABASE_URL or REDIS_URL configured, using in-memory store")
	}
	defer st.Close()

	policy := cache.NewPolicy(*ttl)

	cat, err := catalog.New(st, policy.TTL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create catalog")
	}
	defer cat.Close()

	generator, err := llm.NewOpenAI(apiKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generator")
	}

	gecko := coingecko.NewClient(os.Getenv("COINGECKO_BASE_URL"), cgKey, logger)

	// Only one replica runs the catalog sync when Redis is available
	var syncMutex *redsync.Mutex
	if redisClient != nil {
		rs := redsync.New(redsyncredis.NewPool(redisClient))
		syncMutex = rs.NewMutex("tokenguard:catalog-sync",
			redsync.WithExpiry(10*time.Minute), redsync.WithTries(1))
	}
	synchronizer := catalog.NewSynchronizer(st, gecko, syncMutex, logger)

	eng := engine.New(st, cat, gecko, generator, policy, logger)
	server := api.NewServer(*httpAddr, eng, st, generator, synchronizer, logger)

	var scheduler *catalog.Scheduler
	if !*noSync {
		scheduler = catalog.NewScheduler(synchronizer, logger)
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start catalog scheduler")
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().Str("address", *httpAddr).Msg("TokenGuardAI started")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}

	logger.Info().Msg("shutdown completed")
}

// newLogger builds the root logger from LOG_LEVEL and LOG_FORMAT
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if os.Getenv("LOG_FORMAT") == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
