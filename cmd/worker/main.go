package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/config"
	"github.com/dropskey/backend-dropskey/internal/notify"
	"github.com/dropskey/backend-dropskey/internal/obs"
	"github.com/dropskey/backend-dropskey/internal/queue"
	"github.com/dropskey/backend-dropskey/internal/repo"
	"github.com/dropskey/backend-dropskey/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	metricsNamespace := "dropskey"
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	eventRepo := repo.EventRepo{DB: pool}

	breaker := resilience.NewBreaker(
		cfg.CircuitWebhookMinReq,
		cfg.CircuitWebhookFailureRate,
		cfg.CircuitWebhookOpenFor,
	).WithTarget("webhook-delivery")

	sender := &notify.Sender{
		Client:    notify.HTTPClient(int(cfg.WebhookRequestTimeout/time.Millisecond), cfg.WebhookAllowInsecureTLS),
		Breaker:   breaker,
		UserAgent: cfg.WebhookUserAgent,
		Replay:    notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL: cfg.WebhookReplayTTL,
	}

	webhookWorker := &notify.WebhookWorker{
		Store:  eventRepo,
		Sender: sender,
		Log:    logger,
	}
	emailWorker := &notify.EmailWorker{
		Mail: common.NopEmailSender{},
		Log:  logger,
	}

	srv, err := queue.NewServer(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task server")
	}

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Run(notify.NewMux(webhookWorker, emailWorker)); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "dropskey-worker"
	if cfg.DBMaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBStatementCacheCapacity >= 0 {
		poolConfig.ConnConfig.StatementCacheCapacity = cfg.DBStatementCacheCapacity
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}
