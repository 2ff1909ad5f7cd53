package config

import (
	"strings"
	"time"
)

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// BookingConfig controls the lifecycle engine, the matcher, and the dispatcher.
type BookingConfig struct {
	// OfferWindow is how long an offer stays live before Assign may re-offer it.
	OfferWindow time.Duration `env:"OFFER_WINDOW" envDefault:"10m"`

	// StoreTimeout bounds every store call made by a transition.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// LockTimeout bounds acquisition of the per-job lock.
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`

	// LockBackend selects the per-job lock: memory (single process) or redis.
	LockBackend string `env:"LOCK_BACKEND" envDefault:"memory"`

	// LockTTL bounds how long a crashed holder keeps a Redis lock.
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"30s"`

	// DispatchConcurrency caps concurrent sends within one notification fan-out.
	DispatchConcurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"8"`

	// TransportTimeout bounds a single push or SMS send.
	TransportTimeout time.Duration `env:"TRANSPORT_TIMEOUT" envDefault:"10s"`

	// EligibilityExpr is an optional JMESPath expression evaluated against each translator.
	EligibilityExpr string `env:"ELIGIBILITY_EXPR"`

	// PoolCacheTTL is how long a translator pool snapshot is reused. Zero disables caching.
	PoolCacheTTL time.Duration `env:"POOL_CACHE_TTL" envDefault:"30s"`
}

// Sanitize applies guardrails to booking configuration values.
func (c *BookingConfig) Sanitize() {
	if c.OfferWindow < time.Minute {
		c.OfferWindow = time.Minute
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.LockTTL < time.Second {
		c.LockTTL = 30 * time.Second
	}
	if c.DispatchConcurrency < 1 {
		c.DispatchConcurrency = 1
	}
	if c.TransportTimeout <= 0 {
		c.TransportTimeout = 10 * time.Second
	}
	if c.PoolCacheTTL < 0 {
		c.PoolCacheTTL = 0
	}
	c.EligibilityExpr = strings.TrimSpace(c.EligibilityExpr)

	c.LockBackend = strings.ToLower(strings.TrimSpace(c.LockBackend))
	if c.LockBackend != LockBackendRedis {
		c.LockBackend = LockBackendMemory
	}
}

// UsesRedisLocks reports whether per-job locks are held in Redis.
func (c *BookingConfig) UsesRedisLocks() bool {
	return c.LockBackend == LockBackendRedis
}

// PushConfig configures the push gateway client.
type PushConfig struct {
	Enabled    bool          `env:"ENABLED"     envDefault:"false"`
	Endpoint   string        `env:"ENDPOINT"`
	APIKey     string        `env:"API_KEY"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"2"`
}

// Sanitize normalises push configuration values.
func (c *PushConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.Endpoint == "" {
		c.Enabled = false
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}

// SMSConfig configures the SMS gateway client.
type SMSConfig struct {
	Enabled    bool          `env:"ENABLED"     envDefault:"false"`
	Endpoint   string        `env:"ENDPOINT"`
	Username   string        `env:"USERNAME"`
	Password   string        `env:"PASSWORD"`
	Sender     string        `env:"SENDER"      envDefault:"Booking"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"2"`
	// RatePerSecond caps outbound messages; the gateway throttles above this.
	RatePerSecond float64 `env:"RATE_PER_SECOND" envDefault:"10"`
	Burst         int     `env:"BURST"           envDefault:"5"`
}

// Sanitize normalises SMS configuration values.
func (c *SMSConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Sender = strings.TrimSpace(c.Sender)
	if c.Endpoint == "" {
		c.Enabled = false
	}
	if c.Sender == "" {
		c.Sender = "Booking"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
}
