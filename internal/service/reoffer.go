package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/observability/metrics"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
)

// Assigner re-evaluates the offer of one job.
type Assigner interface {
	Assign(ctx context.Context, jobID string) (*model.Job, error)
}

// ReofferSweeperOptions groups dependencies for ReofferSweeper.
type ReofferSweeperOptions struct {
	Jobs     core.JobStore        // Required
	Assigner Assigner             // Required: usually the LifecycleEngine
	Policy   *booking.OfferPolicy // Required
	Config   config.ReofferConfig
	Clock    core.Clock
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// ReofferSweeper periodically re-offers jobs whose offer window elapsed without an accept.
// It only calls Assign, so the policy check and locking stay in the engine.
type ReofferSweeper struct {
	jobs     core.JobStore
	assigner Assigner
	policy   *booking.OfferPolicy
	config   config.ReofferConfig
	clock    core.Clock
	metrics  statsd.Sink
	logger   *slog.Logger
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int
	Reoffered int
	Held      int
	Failed    int
}

// NewReofferSweeper constructs a ReofferSweeper.
func NewReofferSweeper(opts ReofferSweeperOptions) (*ReofferSweeper, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Assigner == nil {
		return nil, errors.New("Assigner is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("OfferPolicy is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	s := &ReofferSweeper{
		jobs:     opts.Jobs,
		assigner: opts.Assigner,
		policy:   opts.Policy,
		config:   cfg,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "reoffer_sweeper")
		s.logger.Debug("ReofferSweeper initialized",
			"interval", cfg.Interval,
			"batch_size", cfg.BatchSize,
			"concurrency", cfg.Concurrency,
			"offer_window", opts.Policy.Window(),
		)
	}
	return s, nil
}

// MustNewReofferSweeper constructs a ReofferSweeper and panics on error.
func MustNewReofferSweeper(opts ReofferSweeperOptions) *ReofferSweeper {
	s, err := NewReofferSweeper(opts)
	if err != nil {
		panic(fmt.Errorf("failed to create ReofferSweeper: %w", err))
	}
	return s
}

// Run sweeps at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *ReofferSweeper) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reoffer sweeper", "interval", s.config.Interval)
	}

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reoffer sweeper stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logSweepError(err, "sweep")
			}
		}
	}
}

// waitWithJitter delays up to 10% of the interval so replicas started together spread out.
func (s *ReofferSweeper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// SweepOnce re-offers every Offered job whose window elapsed, up to BatchSize jobs.
// Per-job failures are counted and joined; they never stop the sweep.
func (s *ReofferSweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := s.policy.Cutoff(s.clock.Now())

	due, err := s.jobs.Query(ctx, model.JobFilter{
		Statuses:      []model.JobStatus{model.JobStatusOffered},
		OfferedBefore: &cutoff,
		SortBy:        "updated_at",
		SortOrder:     "asc",
		Limit:         s.config.BatchSize,
	})
	if err != nil {
		metrics.EmitSweep(s.metrics, 0, 0)
		return res, fmt.Errorf("query due offers: %w", err)
	}
	res.Scanned = len(due)

	var (
		reoffered atomic.Int64
		held      atomic.Int64
		failed    atomic.Int64
		mu        sync.Mutex
		errs      []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, job := range due {
		g.Go(func() error {
			before := job.OfferRound
			updated, aerr := s.assigner.Assign(gctx, job.ID)
			switch {
			case aerr != nil:
				failed.Add(1)
				mu.Lock()
				errs = append(errs, fmt.Errorf("job %s: %w", job.ID, aerr))
				mu.Unlock()
			case updated != nil && updated.OfferRound > before:
				reoffered.Add(1)
			default:
				held.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Reoffered = int(reoffered.Load())
	res.Held = int(held.Load())
	res.Failed = int(failed.Load())
	metrics.EmitSweep(s.metrics, res.Reoffered, res.Failed)

	if s.logger != nil && (res.Reoffered > 0 || res.Failed > 0) {
		s.logger.InfoContext(ctx, "reoffer sweep finished",
			"scanned", res.Scanned,
			"reoffered", res.Reoffered,
			"held", res.Held,
			"failed", res.Failed,
		)
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("sweep failed: %w", errors.Join(errs...))
	}
	return res, nil
}

func (s *ReofferSweeper) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	if apperrors.IsTransient(err) {
		s.logger.Warn(label+" hit transient errors", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
