package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/observability/metrics"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
)

// DistanceReconcilerOptions groups dependencies for DistanceReconciler.
type DistanceReconcilerOptions struct {
	Jobs      core.JobStore      // Required: job existence and admin fields
	Distances core.DistanceStore // Required
	// Locker must be the one the lifecycle engine uses so feeds and transitions never interleave.
	Locker       core.JobLocker
	StoreTimeout time.Duration
	LockTimeout  time.Duration
	Metrics      statsd.Sink
	Logger       *slog.Logger
}

// DistanceReconciler applies post-hoc distance and admin corrections. It never changes status.
type DistanceReconciler struct {
	jobs         core.JobStore
	distances    core.DistanceStore
	locker       core.JobLocker
	storeTimeout time.Duration
	lockTimeout  time.Duration
	metrics      statsd.Sink
	logger       *slog.Logger
}

// NewDistanceReconciler constructs a DistanceReconciler.
func NewDistanceReconciler(opts DistanceReconcilerOptions) (*DistanceReconciler, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Distances == nil {
		return nil, errors.New("DistanceStore is required")
	}
	r := &DistanceReconciler{
		jobs:         opts.Jobs,
		distances:    opts.Distances,
		locker:       opts.Locker,
		storeTimeout: opts.StoreTimeout,
		lockTimeout:  opts.LockTimeout,
		metrics:      opts.Metrics,
	}
	if r.locker == nil {
		r.locker = booking.NewKeyedLocker()
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = defaultStoreTimeout
	}
	if r.lockTimeout <= 0 {
		r.lockTimeout = defaultLockTimeout
	}
	if opts.Logger != nil {
		r.logger = opts.Logger.With("component", "distance_reconciler")
	}
	return r, nil
}

// ApplyFeed writes the distance part and the admin part of feed independently. Both are
// attempted; the result reports each outcome and the error joins whichever failed.
func (r *DistanceReconciler) ApplyFeed(ctx context.Context, feed model.DistanceFeed) (*model.FeedResult, error) {
	jobID := strings.TrimSpace(feed.JobID)
	if jobID == "" {
		return nil, apperrors.ValidationField("job_id", "job id is required")
	}

	lctx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	release, err := r.locker.Lock(lctx, jobID)
	cancel()
	if err != nil {
		if !apperrors.IsTransient(err) {
			err = apperrors.Wrapf(err, apperrors.ErrCodeTransient, "lock job %s", jobID)
		}
		return nil, err
	}
	defer release()

	sctx, scancel := context.WithTimeout(ctx, r.storeTimeout)
	_, err = r.jobs.Get(sctx, jobID)
	scancel()
	if err != nil {
		return nil, storeErr(err)
	}

	res := &model.FeedResult{JobID: jobID}
	var errs []error

	if part := feed.DistancePart(); !part.Empty() {
		sctx, scancel := context.WithTimeout(ctx, r.storeTimeout)
		d, derr := r.distances.UpsertDistance(sctx, jobID, part)
		scancel()
		derr = storeErr(derr)
		metrics.EmitFeed(r.metrics, "distance", derr)
		if derr != nil {
			res.DistanceError = derr.Error()
			errs = append(errs, fmt.Errorf("update distance: %w", derr))
		} else {
			res.DistanceUpdated = true
			res.Distance = d
		}
	}

	if feed.HasAdminInput() {
		sctx, scancel := context.WithTimeout(ctx, r.storeTimeout)
		_, aerr := r.jobs.UpdateAdminFields(sctx, jobID, feed.AdminPart())
		scancel()
		aerr = storeErr(aerr)
		metrics.EmitFeed(r.metrics, "admin", aerr)
		if aerr != nil {
			res.AdminError = aerr.Error()
			errs = append(errs, fmt.Errorf("update admin fields: %w", aerr))
		} else {
			res.AdminUpdated = true
		}
	}

	err = errors.Join(errs...)
	if r.logger != nil {
		r.logger.InfoContext(ctx, "distance feed applied",
			"job_id", jobID,
			"distance_updated", res.DistanceUpdated,
			"admin_updated", res.AdminUpdated,
			"error", err,
		)
	}
	return res, err
}
