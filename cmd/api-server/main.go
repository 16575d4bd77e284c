package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/kiosk-checkin/internal/api"
	"github.com/hackgods/kiosk-checkin/internal/auth"
	"github.com/hackgods/kiosk-checkin/internal/checkin"
	"github.com/hackgods/kiosk-checkin/internal/config"
	"github.com/hackgods/kiosk-checkin/internal/db"
	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/observability/metrics"
	redisclient "github.com/hackgods/kiosk-checkin/internal/redis"
	"github.com/hackgods/kiosk-checkin/internal/roster"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/internal/webhook"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel).Component("api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("transition_store", cfg.TransitionStore).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pgPool *pgxpool.Pool
	var store transition.Store
	switch cfg.TransitionStore {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")
		store = transition.NewPgStore(pgPool)
	default:
		logger.Warn().Msg("using in-memory transition store; transitions are lost on restart")
		store = transition.NewMemoryStore()
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Msg("connected to Redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewKioskMetrics(reg)

	tokens := newTokenProvider(cfg, pgPool, rdb, logger)

	dir, err := directory.New(directory.Config{
		BaseURL: cfg.Directory.BaseURL,
		Timeout: cfg.Directory.Timeout,
	}, tokens, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("directory client error")
	}

	ingestor := webhook.NewIngestor(webhook.Config{
		Secret:   cfg.Webhook.SecretToken,
		Provider: cfg.Webhook.Provider,
		Location: cfg.Location,
	}, store, m, logger.Component("webhook"))

	router := api.NewRouter(api.RouterConfig{
		Webhook:      webhook.NewHandler(ingestor, logger.Component("webhook")),
		Roster:       roster.NewBuilder(dir.Appointments(), store, cfg.Location, logger.Component("roster")),
		Appointments: dir.Appointments(),
		Doctors:      dir.Doctors(),
		Analytics:    transition.NewAnalytics(store, rdb, cfg.AnalyticsCacheTTL, m, logger.Component("analytics")),
		Checkin:      checkin.NewService(dir.Patients(), dir.Appointments(), cfg.Location, m, logger.Component("checkin")),
		Location:     cfg.Location,
		PgPool:       pgPool,
		Redis:        rdb,
		Metrics:      reg,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

// newTokenProvider prefers the stored OAuth credential. Without Postgres there
// is nowhere to keep a refreshed token, so a static DIRECTORY_ACCESS_TOKEN is used.
func newTokenProvider(cfg config.Config, pgPool *pgxpool.Pool, rdb *redis.Client, logger *logging.Logger) auth.TokenProvider {
	if pgPool == nil {
		return auth.StaticTokenProvider{AccessToken: cfg.Directory.AccessToken}
	}

	var locker redisclient.Locker = redisclient.NewLocalLocker()
	if rdb != nil {
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	}

	return auth.NewCredentialProvider(
		cfg.OAuth.Provider,
		auth.NewPgCredentialStore(pgPool),
		auth.NewOAuth2Refresher(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.TokenURL, cfg.Directory.Timeout),
		locker,
		cfg.OAuth.RefreshSkew,
		logger.Component("auth"),
	)
}
