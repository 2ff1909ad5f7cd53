// Package reoffer provides the adapter for running the re-offer sweeper.
package reoffer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/data"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/service"
)

// Runner constructs the sweeper and runs its loop.
type Runner struct {
	sweeper *service.ReofferSweeper
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Assigner service.Assigner
	Policy   *booking.OfferPolicy
	Config   config.ReofferConfig
	Logger   *slog.Logger

	// Optional dependency injection for testing/decoupling
	Jobs    core.JobStore
	Clock   core.Clock
	Metrics statsd.Sink
}

// NewRunner creates a new re-offer runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	sweeper, err := service.NewReofferSweeper(service.ReofferSweeperOptions{
		Jobs:     jobs,
		Assigner: opts.Assigner,
		Policy:   opts.Policy,
		Config:   opts.Config,
		Clock:    opts.Clock,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reoffer sweeper: %w", err)
	}

	return &Runner{sweeper: sweeper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Jobs == nil {
		return errors.New("database connection or job store is required")
	}
	if opts.Assigner == nil {
		return errors.New("assigner is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the sweep loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reoffer runner")
	return r.sweeper.Run(ctx)
}
