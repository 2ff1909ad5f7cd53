package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/adapters/transport"
	"github.com/dtapi/booking-engine/internal/bootstrap"
	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/devseed"
	"github.com/dtapi/booking-engine/internal/domain/model"
)

var errRedisNotConfigured = errors.New("redis not configured")

// engineSession holds the wired services for one command and releases their resources.
type engineSession struct {
	services bootstrap.ServiceContainer
	closeFn  func() error
}

func (s *engineSession) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// openEngine wires the booking services against Postgres, or against the seeded in-memory
// store when memory is set. Memory mode never talks to real gateways.
func openEngine(cmdCtx *commandContext, memory bool) (*engineSession, error) {
	cfg := cmdCtx.Config
	if memory {
		return openMemoryEngine(cmdCtx, &cfg)
	}

	db, redisClient, err := connectInfra(cmdCtx.Logger, &cfg)
	if err != nil {
		return nil, err
	}
	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		Stores:      bootstrap.PostgresStores(db, cmdCtx.Logger),
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build services: %w", err), closeInfra(db, redisClient))
	}
	return &engineSession{
		services: services,
		closeFn: func() error {
			return errors.Join(services.Observability.Close(), closeInfra(db, redisClient))
		},
	}, nil
}

func openMemoryEngine(cmdCtx *commandContext, cfg *config.AppConfig) (*engineSession, error) {
	if cmdCtx.mem == nil {
		cmdCtx.mem = memstore.New()
		devseed.SeedMemory(cmdCtx.mem)
	}
	cfg.Booking.LockBackend = config.LockBackendMemory
	cfg.Observability = config.ObservabilityConfig{}

	store := cmdCtx.mem
	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: cfg,
		Stores: bootstrap.Stores{Jobs: store, Distances: store, Translators: store, Customers: store},
		Transport: transport.New(transport.Options{
			Push:   &transport.LogSender{Channel: model.ChannelPush, Logger: cmdCtx.Logger},
			SMS:    &transport.LogSender{Channel: model.ChannelSMS, Logger: cmdCtx.Logger},
			Logger: cmdCtx.Logger,
		}),
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return &engineSession{services: services}, nil
}

// withEngine opens the services, runs f under a timeout, and closes the session.
func withEngine(cmdCtx *commandContext, common commonFlags, f func(context.Context, *bootstrap.ServiceContainer) error) error {
	session, err := openEngine(cmdCtx, common.Memory)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close session failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, common.Timeout)
	defer cancel()
	return f(ctx, &session.services)
}

// connectInfra connects Postgres and, when configured, Redis.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectInfra(logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	redisClient, err := maybeConnectRedis(logger, &cfg.Redis)
	switch {
	case err == nil:
		return db, redisClient, nil
	case errors.Is(err, errRedisNotConfigured):
		logger.Debug("no redis configuration detected; skipping redis connection")
		if cfg.Booking.UsesRedisLocks() {
			cfg.Booking.LockBackend = config.LockBackendMemory
			logger.Warn("falling back to in-process job locks")
		}
		return db, nil, nil
	default:
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
		}
		return nil, nil, err
	}
}

// maybeConnectRedis returns a connected client when configuration is present.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func maybeConnectRedis(logger *slog.Logger, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if !hasRedisConfig(cfg) {
		return nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: *cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

func closeInfra(db *sql.DB, redisClient redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
