package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/adapters/push"
	"github.com/dtapi/booking-engine/internal/adapters/sms"
	"github.com/dtapi/booking-engine/internal/adapters/transport"
	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/data"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/domain/model"
	"github.com/dtapi/booking-engine/internal/observability/notify/pagerduty"
	"github.com/dtapi/booking-engine/internal/observability/notify/slack"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/service"
	"github.com/dtapi/booking-engine/internal/service/opsalert"
)

const lockKeyPrefix = "booking:lock:"

// Stores groups the persistence ports behind the booking services.
type Stores struct {
	Jobs        core.JobStore
	Distances   core.DistanceStore
	Translators core.TranslatorDirectory
	Customers   core.CustomerDirectory
}

func (s Stores) validate() error {
	switch {
	case s.Jobs == nil:
		return errors.New("job store is required")
	case s.Distances == nil:
		return errors.New("distance store is required")
	case s.Translators == nil:
		return errors.New("translator directory is required")
	case s.Customers == nil:
		return errors.New("customer directory is required")
	}
	return nil
}

// PostgresStores builds the Postgres-backed stores.
func PostgresStores(db *sql.DB, logger *slog.Logger) Stores {
	repoCfg := data.RepoConfig{Logger: logger}
	directory := data.NewDirectoryRepo(db)
	return Stores{
		Jobs:        data.NewJobRepo(db, repoCfg),
		Distances:   data.NewDistanceRepo(db, repoCfg),
		Translators: directory,
		Customers:   directory,
	}
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Stores Stores
	// RedisClient is optional. It backs the translator pool cache and, when configured, job locks.
	RedisClient redis.UniversalClient
	// Transport overrides the configured push and SMS gateways.
	Transport core.NotificationTransport
	Clock     core.Clock
	Logger    *slog.Logger
}

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Engine        *service.LifecycleEngine
	Matcher       *service.TranslatorMatcher
	Dispatcher    *service.NotificationDispatcher
	Distances     *service.DistanceReconciler
	Policy        *booking.OfferPolicy
	Locker        core.JobLocker
	Stores        Stores
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink statsd.Sink
	statsd      *statsd.Client
	Alerts      *opsalert.Service
}

// Close releases observability resources.
func (o ObservabilityContainer) Close() error {
	if o.statsd == nil {
		return nil
	}
	return o.statsd.Close()
}

// NewServices wires the booking services from configuration and stores.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if err := deps.Stores.validate(); err != nil {
		return ServiceContainer{}, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability)

	locker, err := buildLocker(cfg.Booking, deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	policy, err := booking.NewOfferPolicy(cfg.Booking.OfferWindow)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("offer policy: %w", err)
	}

	var cacheRepo core.CacheRepository
	if deps.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(deps.RedisClient)
	}
	pool := core.NewTranslatorPoolCache(core.TranslatorPoolCacheOptions{
		Cache:     cacheRepo,
		Directory: deps.Stores.Translators,
		TTL:       cfg.Booking.PoolCacheTTL,
		Logger:    logger,
	})

	matcher, err := service.NewTranslatorMatcher(service.TranslatorMatcherOptions{
		Pool:            pool,
		Jobs:            deps.Stores.Jobs,
		Customers:       deps.Stores.Customers,
		EligibilityExpr: cfg.Booking.EligibilityExpr,
		StoreTimeout:    cfg.Booking.StoreTimeout,
		Logger:          logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("translator matcher: %w", err)
	}

	tr := deps.Transport
	if tr == nil {
		tr, err = buildTransport(cfg, logger)
		if err != nil {
			return ServiceContainer{}, err
		}
	}

	dispatcher, err := service.NewNotificationDispatcher(service.NotificationDispatcherOptions{
		Transport:    tr,
		Jobs:         deps.Stores.Jobs,
		Translators:  deps.Stores.Translators,
		Customers:    deps.Stores.Customers,
		Concurrency:  cfg.Booking.DispatchConcurrency,
		SendTimeout:  cfg.Booking.TransportTimeout,
		StoreTimeout: cfg.Booking.StoreTimeout,
		Alerts:       obs.Alerts,
		Clock:        deps.Clock,
		Metrics:      obs.MetricsSink,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("notification dispatcher: %w", err)
	}

	engine, err := service.NewLifecycleEngine(service.LifecycleEngineOptions{
		Jobs:         deps.Stores.Jobs,
		Translators:  deps.Stores.Translators,
		Matcher:      matcher,
		Dispatcher:   dispatcher,
		Policy:       policy,
		Locker:       locker,
		StoreTimeout: cfg.Booking.StoreTimeout,
		LockTimeout:  cfg.Booking.LockTimeout,
		Alerts:       obs.Alerts,
		Clock:        deps.Clock,
		Metrics:      obs.MetricsSink,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("lifecycle engine: %w", err)
	}

	distances, err := service.NewDistanceReconciler(service.DistanceReconcilerOptions{
		Jobs:         deps.Stores.Jobs,
		Distances:    deps.Stores.Distances,
		Locker:       locker,
		StoreTimeout: cfg.Booking.StoreTimeout,
		LockTimeout:  cfg.Booking.LockTimeout,
		Metrics:      obs.MetricsSink,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("distance reconciler: %w", err)
	}

	return ServiceContainer{
		Engine:        engine,
		Matcher:       matcher,
		Dispatcher:    dispatcher,
		Distances:     distances,
		Policy:        policy,
		Locker:        locker,
		Stores:        deps.Stores,
		Observability: obs,
	}, nil
}

// buildObservability configures metrics and operator alert adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var out ObservabilityContainer
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			GlobalTags: cfg.Metrics.GlobalTags,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.statsd = client
			out.MetricsSink = client
		}
	}
	out.Alerts = buildOpsAlerts(logger, cfg.Alerts)
	return out
}

func buildOpsAlerts(logger *slog.Logger, cfg config.AlertsConfig) *opsalert.Service {
	if !cfg.HasSinks() {
		return opsalert.NewService(opsalert.Options{Logger: logger})
	}

	sinks := make([]opsalert.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, opsalert.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, opsalert.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return opsalert.NewService(opsalert.Options{Logger: logger, Sinks: sinks})
}

// buildLocker picks the per-job lock backend.
//
//nolint:ireturn // the backend is chosen at runtime.
func buildLocker(cfg config.BookingConfig, client redis.UniversalClient, logger *slog.Logger) (core.JobLocker, error) {
	if !cfg.UsesRedisLocks() {
		return booking.NewKeyedLocker(), nil
	}
	if client == nil {
		return nil, errors.New("BOOKING_LOCK_BACKEND=redis requires a redis connection")
	}
	return data.NewRedisJobLocker(data.RedisJobLockerOptions{
		Client: client,
		TTL:    cfg.LockTTL,
		Prefix: lockKeyPrefix,
		Logger: logger,
	}), nil
}

// buildTransport wires the push and SMS gateways. In dev mode a disabled gateway is replaced
// by a sender that only logs.
func buildTransport(cfg *config.AppConfig, logger *slog.Logger) (*transport.Transport, error) {
	opts := transport.Options{Logger: logger}

	switch {
	case cfg.Push.Enabled:
		client, err := push.NewClient(push.Config{
			Endpoint:   cfg.Push.Endpoint,
			APIKey:     cfg.Push.APIKey,
			Timeout:    cfg.Push.Timeout,
			RetryLimit: cfg.Push.RetryLimit,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("push client: %w", err)
		}
		opts.Push = client
	case cfg.IsDev:
		opts.Push = &transport.LogSender{Channel: model.ChannelPush, Logger: logger}
	default:
		logger.Warn("push gateway disabled; push notifications will fail")
	}

	switch {
	case cfg.SMS.Enabled:
		client, err := sms.NewClient(sms.Config{
			Endpoint:      cfg.SMS.Endpoint,
			Username:      cfg.SMS.Username,
			Password:      cfg.SMS.Password,
			Sender:        cfg.SMS.Sender,
			Timeout:       cfg.SMS.Timeout,
			RetryLimit:    cfg.SMS.RetryLimit,
			RatePerSecond: cfg.SMS.RatePerSecond,
			Burst:         cfg.SMS.Burst,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("sms client: %w", err)
		}
		opts.SMS = client
	case cfg.IsDev:
		opts.SMS = &transport.LogSender{Channel: model.ChannelSMS, Logger: logger}
	default:
		logger.Warn("sms gateway disabled; sms notifications will fail")
	}

	return transport.New(opts), nil
}
