package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis configuration
//   - booking.go: lifecycle engine, matcher, and transport configuration
//   - services.go: service mode and re-offer sweeper configuration
//   - observability.go: metrics and operator alert configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, debug level).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel overrides the default log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:""`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Booking engine configuration
	Booking BookingConfig `envPrefix:"BOOKING_"`

	// Notification transports
	Push PushConfig `envPrefix:"PUSH_"`
	SMS  SMSConfig  `envPrefix:"SMS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"reoffer-sweeper"`

	// Re-offer sweeper configuration
	Reoffer ReofferConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Booking.Sanitize()
	c.Push.Sanitize()
	c.SMS.Sanitize()
	c.Reoffer.Sanitize()
	c.Observability.Sanitize()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.detectDevMode()
}

// detectDevMode checks APP_ENV as a fallback for DEV.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsReofferSweeperEnabled returns true if the re-offer sweeper service is enabled.
func (c *AppConfig) IsReofferSweeperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReofferSweeper]
}
