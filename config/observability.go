package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "booking-engine"

// ObservabilityConfig groups metrics and operator alert configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Alerts  AlertsConfig  `envPrefix:"ALERTS_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// MetricsConfig controls the StatsD sink for booking, dispatch and sweeper metrics.
type MetricsConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"PREFIX"         envDefault:"booking"`
	// GlobalTags are attached to every metric, e.g. "env:prod,region:eu".
	GlobalTags map[string]string `env:"GLOBAL_TAGS"`
}

// Sanitize trims the address and prefix and disables emission without an address.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if len(c.GlobalTags) > 0 {
		tags := make(map[string]string, len(c.GlobalTags))
		for k, v := range c.GlobalTags {
			if key := strings.TrimSpace(k); key != "" {
				tags[key] = strings.TrimSpace(v)
			}
		}
		c.GlobalTags = tags
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// AlertsConfig controls operator alerts raised when an offer or status notification
// reaches no one.
type AlertsConfig struct {
	Enabled    bool            `env:"ENABLED"     envDefault:"false"`
	Timeout    time.Duration   `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int             `env:"RETRY_LIMIT" envDefault:"3"`
	Slack      SlackConfig     `envPrefix:"SLACK_"`
	PagerDuty  PagerDutyConfig `envPrefix:"PAGERDUTY_"`
}

// Sanitize clamps the delivery knobs and switches off sinks that lack credentials.
func (c *AlertsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}
	c.Slack.Enabled = c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// HasSinks reports whether at least one alert sink survived sanitisation.
func (c *AlertsConfig) HasSinks() bool {
	return c.Enabled && (c.Slack.Enabled || c.PagerDuty.Enabled)
}

// SlackConfig targets a Slack incoming webhook.
type SlackConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"booking-engine"`
	// JobURLPrefix turns job ids in messages into links, e.g. https://admin.example/jobs/.
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

func (c *SlackConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyConfig targets the PagerDuty Events API v2.
type PagerDutyConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"booking-engine"`
	Component  string `env:"COMPONENT"   envDefault:"dispatcher"`
}

func (c *PagerDutyConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = "dispatcher"
	}
}
