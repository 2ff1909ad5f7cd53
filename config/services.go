package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeReofferSweeper runs the periodic re-offer sweep.
	ServiceModeReofferSweeper ServiceMode = "reoffer-sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeReofferSweeper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeReofferSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: reoffer-sweeper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// Re-offer sweeper defaults.
const (
	DefaultReofferInterval    = time.Minute
	DefaultReofferBatchSize   = 100
	DefaultReofferConcurrency = 4
)

// ReofferConfig contains re-offer sweeper configuration.
type ReofferConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"REOFFER_INTERVAL" envDefault:"1m"`

	// BatchSize is the maximum number of due offers handled per sweep.
	BatchSize int `env:"REOFFER_BATCH_SIZE" envDefault:"100"`

	// Concurrency is the number of jobs re-offered in parallel.
	Concurrency int `env:"REOFFER_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to re-offer configuration values.
func (r *ReofferConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = DefaultReofferInterval
	}
	if r.Interval < time.Second {
		r.Interval = time.Second
	}
	if r.BatchSize < 1 {
		r.BatchSize = DefaultReofferBatchSize
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
	if r.Concurrency < 1 {
		r.Concurrency = DefaultReofferConcurrency
	}
}
