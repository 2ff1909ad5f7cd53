package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/data"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens the Postgres pool backing the job store and directory, then pings it.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DBConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.DBConfig.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(5, maxOpen))
	if cfg.DBConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DBConfig.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", pingErr), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
			"max_open_conns", maxOpen,
		)
	}
	return db, nil
}

// redisTarget is the resolved connection plan for one of the three Redis topologies.
type redisTarget struct {
	mode     string // direct, sentinel or cluster
	addrs    []string
	username string
	password string
	db       int
	tls      *tls.Config

	masterName       string
	sentinelPassword string
}

func (t redisTarget) describe() string {
	if t.mode == "sentinel" {
		return "sentinel:" + t.masterName
	}
	return t.mode + ":" + strings.Join(t.addrs, ",")
}

// resolveRedisTarget validates cfg and folds a redis:// or rediss:// URI into plain options.
// The description it yields never carries credentials.
func resolveRedisTarget(cfg config.RedisConfig) (redisTarget, error) {
	t := redisTarget{password: cfg.Password, db: cfg.DB}

	switch {
	case cfg.UseCluster:
		t.mode = "cluster"
		t.addrs = compactAddrs(cfg.ClusterNodes)
		if len(t.addrs) == 0 && strings.TrimSpace(cfg.URI) != "" {
			if err := t.applyURI(cfg.URI); err != nil {
				return redisTarget{}, err
			}
		}
		if len(t.addrs) == 0 {
			return redisTarget{}, errors.New("redis cluster configuration requires at least one address")
		}
	case cfg.UseSentinel:
		t.mode = "sentinel"
		t.addrs = compactAddrs(cfg.SentinelNodes)
		if len(t.addrs) == 0 {
			return redisTarget{}, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		t.masterName = cfg.SentinelMasterName
		t.sentinelPassword = cfg.SentinelPassword
	default:
		t.mode = "direct"
		if strings.TrimSpace(cfg.URI) == "" {
			return redisTarget{}, errors.New("redis direct configuration requires a URI")
		}
		if err := t.applyURI(cfg.URI); err != nil {
			return redisTarget{}, err
		}
	}
	return t, nil
}

func (t *redisTarget) applyURI(raw string) error {
	uri := strings.TrimSpace(raw)
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		t.addrs = []string{uri}
		return nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	t.addrs = []string{opt.Addr}
	t.username = opt.Username
	if opt.Password != "" {
		t.password = opt.Password
	}
	t.db = opt.DB
	t.tls = opt.TLSConfig
	return nil
}

//nolint:ireturn // the topology decides which concrete client is built.
func (t redisTarget) newClient() redis.UniversalClient {
	switch t.mode {
	case "cluster":
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs: t.addrs, Username: t.username, Password: t.password, TLSConfig: t.tls,
		})
	case "sentinel":
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       t.masterName,
			SentinelAddrs:    t.addrs,
			SentinelPassword: t.sentinelPassword,
			Password:         t.password,
			DB:               t.db,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr: t.addrs[0], Username: t.username, Password: t.password, DB: t.db, TLSConfig: t.tls,
		})
	}
}

// ConnectRedis builds the client for the configured topology and pings it. The pool cache
// and the distributed job locker share the returned client.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	target, err := resolveRedisTarget(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := target.newClient()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", pingErr), client.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "target", target.describe())
	}
	return client, nil
}

func compactAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RunMigrations applies the booking schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
