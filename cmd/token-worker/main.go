package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/kiosk-checkin/internal/auth"
	"github.com/hackgods/kiosk-checkin/internal/config"
	"github.com/hackgods/kiosk-checkin/internal/db"
	redisclient "github.com/hackgods/kiosk-checkin/internal/redis"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

// token-worker keeps the linked OAuth credential fresh so kiosk requests
// rarely pay for a refresh themselves.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel).Component("token-worker")

	if cfg.TransitionStore != config.StorePostgres {
		logger.Fatal().Msg("token-worker needs the postgres credential store")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Msg("token-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	provider := auth.NewCredentialProvider(
		cfg.OAuth.Provider,
		auth.NewPgCredentialStore(pgPool),
		auth.NewOAuth2Refresher(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.TokenURL, cfg.Directory.Timeout),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		// refresh a full interval early so the next tick is never too late
		cfg.OAuth.RefreshSkew+cfg.WorkerInterval,
		logger,
	)

	// Run once at startup
	runOnce(rootCtx, provider, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping token worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, provider, logger)
		}
	}
}

func runOnce(ctx context.Context, provider auth.TokenProvider, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	tok, err := provider.RefreshIfExpired(runCtx)
	if err != nil {
		if errors.Is(err, auth.ErrNoLinkedAccount) {
			logger.Warn().Msg("no linked account yet; complete the OAuth sign-in")
			return
		}
		logger.Error().Err(err).Msg("token refresh run error")
		return
	}
	logger.Info().
		Time("expires_at", tok.Expiry).
		Dur("took", time.Since(start)).
		Msg("token refresh run complete")
}
