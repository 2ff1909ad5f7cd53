package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/observability/metrics"
	"github.com/dtapi/booking-engine/internal/observability/notify"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/service/opsalert"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultLockTimeout  = 5 * time.Second
)

// CandidateFinder computes the translators eligible for a job.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, job *model.Job) ([]string, error)
}

// EventDispatcher delivers a notification event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event model.NotificationEvent) (*model.DispatchResult, error)
}

// LifecycleEngineOptions groups dependencies for LifecycleEngine.
type LifecycleEngineOptions struct {
	Jobs        core.JobStore            // Required
	Translators core.TranslatorDirectory // Required: translator existence on accept
	Matcher     CandidateFinder          // Required
	Dispatcher  EventDispatcher          // Required
	Policy      *booking.OfferPolicy     // Required: re-offer window

	Locker       core.JobLocker    // Optional: defaults to an in-process KeyedLocker
	StoreTimeout time.Duration     // Optional: bound on each store call (default 5s)
	LockTimeout  time.Duration     // Optional: bound on lock acquisition (default 5s)
	Alerts       *opsalert.Service // Optional: told when declines leave an offer with no candidate
	Clock        core.Clock        // Optional: defaults to wall clock
	Metrics      statsd.Sink       // Optional
	Tracer       trace.Tracer      // Optional: defaults to the global provider
	Logger       *slog.Logger
}

// LifecycleEngine owns the job state machine. Every mutation runs under the job's lock and
// persists through a version compare-and-swap; notifications never fail an operation.
type LifecycleEngine struct {
	jobs         core.JobStore
	translators  core.TranslatorDirectory
	matcher      CandidateFinder
	dispatcher   EventDispatcher
	policy       *booking.OfferPolicy
	locker       core.JobLocker
	storeTimeout time.Duration
	lockTimeout  time.Duration
	alerts       *opsalert.Service
	clock        core.Clock
	metrics      statsd.Sink
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewLifecycleEngine constructs a LifecycleEngine.
func NewLifecycleEngine(opts LifecycleEngineOptions) (*LifecycleEngine, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobStore is required")
	case opts.Translators == nil:
		return nil, errors.New("TranslatorDirectory is required")
	case opts.Matcher == nil:
		return nil, errors.New("CandidateFinder is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("EventDispatcher is required")
	case opts.Policy == nil:
		return nil, errors.New("OfferPolicy is required")
	}

	e := &LifecycleEngine{
		jobs:         opts.Jobs,
		translators:  opts.Translators,
		matcher:      opts.Matcher,
		dispatcher:   opts.Dispatcher,
		policy:       opts.Policy,
		locker:       opts.Locker,
		storeTimeout: opts.StoreTimeout,
		lockTimeout:  opts.LockTimeout,
		alerts:       opts.Alerts,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
	}
	if e.locker == nil {
		e.locker = booking.NewKeyedLocker()
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	if e.lockTimeout <= 0 {
		e.lockTimeout = defaultLockTimeout
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With("component", "lifecycle_engine")
		e.logger.Debug("LifecycleEngine initialized",
			"offer_window", opts.Policy.Window(),
			"store_timeout", e.storeTimeout,
			"lock_timeout", e.lockTimeout,
		)
	}
	return e, nil
}

// MustNewLifecycleEngine constructs a LifecycleEngine and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewLifecycleEngine(opts LifecycleEngineOptions) *LifecycleEngine {
	e, err := NewLifecycleEngine(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create LifecycleEngine: %v", err))
	}
	return e
}

// outcome is what a transition body reports back to run.
type outcome struct {
	job    *model.Job
	from   model.JobStatus
	noop   bool
	events []model.NotificationEvent // dispatched after the lock is released
}

// ──────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────

// Create persists a new booking and offers it when any translator matches.
// A failed initial offer is logged and the job is returned as stored, ready for a later Assign.
func (e *LifecycleEngine) Create(ctx context.Context, customerID string, spec model.JobSpec) (*model.Job, error) {
	ctx, span := e.startSpan(ctx, "create", "")
	defer span.End()
	start := time.Now()

	customerID = strings.TrimSpace(customerID)
	spec.Normalize()
	if err := validateSpec(customerID, spec); err != nil {
		e.finish(ctx, span, "create", "", start, nil, err)
		return nil, err
	}

	job := &model.Job{
		Status:            model.JobStatusCreated,
		CustomerID:        customerID,
		FromLanguage:      spec.FromLanguage,
		ToLanguage:        spec.ToLanguage,
		Town:              spec.Town,
		Physical:          spec.Physical,
		DueAt:             spec.DueAt.UTC(),
		DurationMinutes:   spec.DurationMinutes,
		RequiredGender:    spec.RequiredGender,
		RequiresCertified: spec.RequiresCertified,
		CustomerPhone:     spec.CustomerPhone,
		Instructions:      spec.Instructions,
	}

	sctx, cancel := e.storeCtx(ctx)
	created, err := e.jobs.Create(sctx, job)
	cancel()
	if err != nil {
		err = storeErr(err)
		if apperrors.IsForeignKey(err) {
			err = apperrors.ValidationField("customer_id", "customer "+customerID+" does not exist")
		}
		e.finish(ctx, span, "create", "", start, nil, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("job.id", created.ID))

	out, err := e.locked(ctx, created.ID, func(ctx context.Context) (*outcome, error) {
		offered, err := e.offerLocked(ctx, created, model.RoleCustomer)
		if err != nil {
			return nil, err
		}
		return &outcome{job: offered, from: model.JobStatusCreated}, nil
	})
	if err != nil {
		e.logError(ctx, "initial offer failed", created.ID, err)
		out = &outcome{job: e.reload(ctx, created), from: model.JobStatusCreated}
	}
	e.finish(ctx, span, "create", created.ID, start, out, nil)
	return out.job, nil
}

func validateSpec(customerID string, spec model.JobSpec) error {
	switch {
	case customerID == "":
		return apperrors.ValidationField("customer_id", "customer is required")
	case spec.FromLanguage == "":
		return apperrors.ValidationField("from_language", "source language is required")
	case spec.ToLanguage == "":
		return apperrors.ValidationField("to_language", "target language is required")
	case spec.FromLanguage == spec.ToLanguage:
		return apperrors.ValidationField("to_language", "source and target language must differ")
	case spec.DueAt.IsZero():
		return apperrors.ValidationField("due_at", "due time is required")
	case spec.DurationMinutes <= 0:
		return apperrors.ValidationField("duration_minutes", "duration must be positive")
	case spec.Physical && spec.Town == "":
		return apperrors.ValidationField("town", "town is required for physical bookings")
	}
	return nil
}

// Assign offers a Created job, or re-offers an Offered one whose window elapsed.
// Inside the window it returns the job unchanged.
func (e *LifecycleEngine) Assign(ctx context.Context, jobID string) (*model.Job, error) {
	return e.assign(ctx, "assign", jobID, false)
}

// AssignForce re-offers regardless of the offer window.
func (e *LifecycleEngine) AssignForce(ctx context.Context, jobID string) (*model.Job, error) {
	return e.assign(ctx, "assign_force", jobID, true)
}

func (e *LifecycleEngine) assign(ctx context.Context, op, jobID string, force bool) (*model.Job, error) {
	return e.run(ctx, op, jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		// An offer whose dispatch was never recorded is re-sent immediately.
		stalled := job.Status == model.JobStatusOffered && job.OfferDispatchedAt == nil
		decision := e.policy.Decide(job, e.clock.Now(), force || stalled)

		switch decision.Action {
		case booking.OfferActionReject:
			return nil, apperrors.InvalidState(string(job.Status), string(model.JobStatusOffered))
		case booking.OfferActionHold:
			if e.logger != nil {
				e.logger.DebugContext(ctx, "offer still open", "job_id", job.ID, "remaining", decision.Remaining)
			}
			return &outcome{job: job, from: job.Status, noop: true}, nil
		}

		from, version := job.Status, job.Version
		offered, err := e.offerLocked(ctx, job, model.RoleSystem)
		if err != nil {
			return nil, err
		}
		return &outcome{job: offered, from: from, noop: offered.Version == version}, nil
	})
}

// offerLocked matches the job and, when candidates exist, moves it to Offered, dispatches the
// Offer and then records OfferDispatchedAt. The caller holds the job lock. With no candidates
// the job is returned unchanged.
func (e *LifecycleEngine) offerLocked(ctx context.Context, job *model.Job, role model.Role) (*model.Job, error) {
	candidates, err := e.matcher.FindCandidates(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("find candidates for job %s: %w", job.ID, err)
	}
	if len(candidates) == 0 {
		if e.logger != nil {
			e.logger.InfoContext(ctx, "no eligible translators", "job_id", job.ID, "status", job.Status)
		}
		return job, nil
	}
	if err := booking.Check(job.Status, model.JobStatusOffered, role); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	next := job.Clone()
	next.Status = model.JobStatusOffered
	next.Candidates = candidates
	next.OfferRound++
	next.OfferedAt = &now
	next.OfferDispatchedAt = nil

	saved, err := e.save(ctx, next)
	if err != nil {
		return nil, err
	}

	e.notify(ctx, newEvent(saved, model.EventOffer, translatorTargets(candidates)))

	dispatched := e.clock.Now()
	saved.OfferDispatchedAt = &dispatched
	return e.save(ctx, saved)
}

// Accept binds translatorID to an Offered job.
func (e *LifecycleEngine) Accept(ctx context.Context, jobID, translatorID string) (*model.Job, error) {
	return e.accept(ctx, "accept", jobID, strings.TrimSpace(translatorID), model.RoleTranslator, false)
}

// AcceptByID is the administrative accept. Privileged actors may bind any existing translator;
// everyone else accepts for themselves under the normal rules.
func (e *LifecycleEngine) AcceptByID(ctx context.Context, req model.AcceptByIDRequest) (*model.Job, error) {
	tid := strings.TrimSpace(req.TranslatorID)
	if req.Actor.Privileged() {
		return e.accept(ctx, "accept_by_id", req.JobID, tid, req.Actor.Role, true)
	}
	if req.Actor.Role != model.RoleTranslator {
		return nil, apperrors.ValidationField("actor", "only translators and admins may accept jobs")
	}
	if tid == "" {
		tid = req.Actor.ID
	}
	if tid != req.Actor.ID {
		return nil, apperrors.ValidationField("translator_id", "translators may only accept for themselves")
	}
	return e.accept(ctx, "accept_by_id", req.JobID, tid, model.RoleTranslator, false)
}

func (e *LifecycleEngine) accept(
	ctx context.Context,
	op, jobID, translatorID string,
	role model.Role,
	bypass bool,
) (*model.Job, error) {
	if translatorID == "" {
		return nil, apperrors.ValidationField("translator_id", "translator is required")
	}
	sctx, cancel := e.storeCtx(ctx)
	_, err := e.translators.GetTranslator(sctx, translatorID)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}

	return e.run(ctx, op, jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		if job.Status.HasTranslator() {
			return nil, apperrors.Conflictf("job %s was already accepted", job.ID)
		}
		if err := booking.Check(job.Status, model.JobStatusAccepted, role); err != nil {
			return nil, err
		}
		if job.OfferDispatchedAt == nil {
			return nil, apperrors.Transientf("offer for job %s is still being dispatched", job.ID)
		}
		if !bypass && !job.IsCandidate(translatorID) {
			return nil, apperrors.ValidationField("translator_id", "translator "+translatorID+" is not a candidate for this job")
		}

		others := slices.DeleteFunc(slices.Clone(job.Candidates), func(id string) bool { return id == translatorID })
		now := e.clock.Now()
		next := job.Clone()
		next.Status = model.JobStatusAccepted
		next.TranslatorID = &translatorID
		next.AcceptedAt = &now
		next.Candidates = nil

		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		targets := append([]model.Target{customerTarget(saved)}, translatorTargets(others)...)
		return &outcome{
			job:    saved,
			from:   job.Status,
			events: []model.NotificationEvent{newEvent(saved, model.EventAccepted, targets)},
		}, nil
	})
}

// Decline removes a translator from the candidate set of an Offered job. A declined
// translator is never offered the job again until it is reopened.
func (e *LifecycleEngine) Decline(ctx context.Context, jobID, translatorID string) (*model.Job, error) {
	translatorID = strings.TrimSpace(translatorID)
	if translatorID == "" {
		return nil, apperrors.ValidationField("translator_id", "translator is required")
	}
	job, err := e.run(ctx, "decline", jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		if job.Status != model.JobStatusOffered {
			return nil, apperrors.InvalidOperation(string(job.Status), "decline")
		}
		if !job.IsCandidate(translatorID) {
			return nil, apperrors.ValidationField("translator_id", "translator "+translatorID+" is not a candidate for this job")
		}
		next := job.Clone()
		next.Candidates = slices.DeleteFunc(next.Candidates, func(id string) bool { return id == translatorID })
		if !next.HasDeclined(translatorID) {
			next.Declined = append(next.Declined, translatorID)
		}
		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		return &outcome{job: saved, from: job.Status}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(job.Candidates) == 0 {
		e.reportExhausted(ctx, job)
	}
	return job, nil
}

// reportExhausted flags an Offered job that every candidate declined. It stays Offered
// until the offer window elapses and the sweeper re-offers it, or an admin assigns it.
func (e *LifecycleEngine) reportExhausted(ctx context.Context, job *model.Job) {
	if e.logger != nil {
		e.logger.WarnContext(ctx, "all candidates declined offer",
			"job_id", job.ID,
			"offer_round", job.OfferRound,
			"declined", len(job.Declined),
		)
	}
	if !e.alerts.Enabled() {
		return
	}
	e.alerts.NotifyUndelivered(ctx, notify.DeliveryAlertPayload{
		JobID:      job.ID,
		Kind:       string(model.EventOffer),
		Reason:     "every candidate declined the offer",
		Severity:   notify.SeverityWarning,
		OccurredAt: e.clock.Now(),
		Metadata:   map[string]string{"declined": strings.Join(job.Declined, ",")},
	})
}

// Start marks an Accepted job as in progress.
func (e *LifecycleEngine) Start(ctx context.Context, jobID string) (*model.Job, error) {
	return e.run(ctx, "start", jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		if err := booking.Check(job.Status, model.JobStatusInProgress, model.RoleTranslator); err != nil {
			return nil, err
		}
		now := e.clock.Now()
		next := job.Clone()
		next.Status = model.JobStatusInProgress
		next.StartedAt = &now
		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		return &outcome{job: saved, from: job.Status}, nil
	})
}

// Cancel withdraws a job on behalf of actor. Cancelling a cancelled job is a no-op.
func (e *LifecycleEngine) Cancel(ctx context.Context, jobID string, actor model.Actor) (*model.Job, error) {
	if !actor.Role.Valid() {
		return nil, apperrors.ValidationField("actor", "unknown role "+string(actor.Role))
	}
	return e.run(ctx, "cancel", jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		if job.Status == model.JobStatusCancelled {
			return &outcome{job: job, from: job.Status, noop: true}, nil
		}
		if err := booking.Check(job.Status, model.JobStatusCancelled, actor.Role); err != nil {
			return nil, err
		}
		if err := authorizeCancel(job, actor); err != nil {
			return nil, err
		}

		// Resolve the counterparties before the assignment is cleared.
		var translators []string
		switch {
		case job.TranslatorID != nil:
			translators = []string{*job.TranslatorID}
		case job.Status == model.JobStatusOffered:
			translators = slices.Clone(job.Candidates)
		}
		var targets []model.Target
		switch actor.Role {
		case model.RoleCustomer:
			targets = translatorTargets(translators)
		case model.RoleTranslator:
			targets = []model.Target{customerTarget(job)}
		default:
			targets = append([]model.Target{customerTarget(job)}, translatorTargets(translators)...)
		}

		now := e.clock.Now()
		next := job.Clone()
		next.Status = model.JobStatusCancelled
		next.TranslatorID = nil
		next.Candidates = nil
		next.CancelledAt = &now
		next.CancelledBy = actor.Role

		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		out := &outcome{job: saved, from: job.Status}
		if len(targets) > 0 {
			out.events = []model.NotificationEvent{newEvent(saved, model.EventCancelled, targets)}
		}
		return out, nil
	})
}

// authorizeCancel lets customers cancel their own jobs and translators the job they hold.
func authorizeCancel(job *model.Job, actor model.Actor) error {
	switch actor.Role {
	case model.RoleCustomer:
		if actor.ID != job.CustomerID {
			return apperrors.ValidationField("actor", "customer does not own this job")
		}
	case model.RoleTranslator:
		if !job.AssignedTo(actor.ID) {
			return apperrors.ValidationField("actor", "translator is not assigned to this job")
		}
	}
	return nil
}

// End completes an Accepted or InProgress job.
func (e *LifecycleEngine) End(ctx context.Context, jobID string) (*model.Job, error) {
	return e.run(ctx, "end", jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		if err := booking.Check(job.Status, model.JobStatusCompleted, model.RoleSystem); err != nil {
			return nil, err
		}
		now := e.clock.Now()
		next := job.Clone()
		next.Status = model.JobStatusCompleted
		next.CompletedAt = &now

		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		targets := []model.Target{customerTarget(saved)}
		if saved.TranslatorID != nil {
			targets = append(targets, model.Target{ID: *saved.TranslatorID, Role: model.RoleTranslator})
		}
		return &outcome{
			job:    saved,
			from:   job.Status,
			events: []model.NotificationEvent{newEvent(saved, model.EventEnded, targets)},
		}, nil
	})
}

// CustomerNotCall records that the customer did not call in. The status never changes.
// It applies to jobs that have or had a translator, so a job cancelled after acceptance
// can still be annotated.
func (e *LifecycleEngine) CustomerNotCall(ctx context.Context, jobID string) (*model.Job, error) {
	return e.run(ctx, "customer_not_call", jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		wasAccepted := job.Status == model.JobStatusCancelled && job.AcceptedAt != nil
		if !job.Status.HasTranslator() && !wasAccepted {
			return nil, apperrors.InvalidOperation(string(job.Status), "record a customer no-show on")
		}
		if job.CustomerNotCall {
			return &outcome{job: job, from: job.Status, noop: true}, nil
		}
		now := e.clock.Now()
		next := job.Clone()
		next.CustomerNotCall = true
		next.CustomerNotCallAt = &now
		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		return &outcome{job: saved, from: job.Status}, nil
	})
}

// Reopen returns a Cancelled or Completed job to Created with a clean offer state, tells the
// customer, and offers it again.
func (e *LifecycleEngine) Reopen(ctx context.Context, jobID string) (*model.Job, error) {
	return e.run(ctx, "reopen", jobID, func(ctx context.Context, job *model.Job) (*outcome, error) {
		if err := booking.Check(job.Status, model.JobStatusCreated, model.RoleSystem); err != nil {
			return nil, err
		}
		next := job.Clone()
		next.Status = model.JobStatusCreated
		next.TranslatorID = nil
		next.Candidates = nil
		next.Declined = nil
		next.OfferRound = 0
		next.OfferedAt = nil
		next.OfferDispatchedAt = nil
		next.AcceptedAt = nil
		next.StartedAt = nil
		next.CompletedAt = nil
		next.CancelledAt = nil
		next.CancelledBy = ""
		next.CustomerNotCall = false
		next.CustomerNotCallAt = nil

		saved, err := e.save(ctx, next)
		if err != nil {
			return nil, err
		}
		e.notify(ctx, newEvent(saved, model.EventReopened, []model.Target{customerTarget(saved)}))

		offered, err := e.offerLocked(ctx, saved, model.RoleSystem)
		if err != nil {
			// The reopen itself is committed; Assign can retry the offer.
			e.logError(ctx, "offer after reopen failed", saved.ID, err)
			offered = e.reload(ctx, saved)
		}
		return &outcome{job: offered, from: job.Status}, nil
	})
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Get returns a job by id.
func (e *LifecycleEngine) Get(ctx context.Context, jobID string) (*model.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, apperrors.ValidationField("job_id", "job id is required")
	}
	return e.load(ctx, jobID)
}

// ListForActor returns the jobs visible to actor, newest first.
func (e *LifecycleEngine) ListForActor(ctx context.Context, actor model.Actor, opts model.JobListOptions) ([]*model.Job, error) {
	filter, err := scopeFilter(actor, opts)
	if err != nil {
		return nil, err
	}
	if opts.Status != nil {
		filter.Statuses = []model.JobStatus{*opts.Status}
	}
	return e.query(ctx, filter)
}

// History returns the actor's completed and cancelled jobs, most recently changed first.
func (e *LifecycleEngine) History(ctx context.Context, actor model.Actor, opts model.JobListOptions) ([]*model.Job, error) {
	filter, err := scopeFilter(actor, opts)
	if err != nil {
		return nil, err
	}
	filter.Statuses = []model.JobStatus{model.JobStatusCompleted, model.JobStatusCancelled}
	if opts.Status != nil {
		if !opts.Status.Terminal() {
			return nil, apperrors.ValidationField("status", "history only holds completed and cancelled jobs")
		}
		filter.Statuses = []model.JobStatus{*opts.Status}
	}
	filter.SortBy = "updated_at"
	return e.query(ctx, filter)
}

func scopeFilter(actor model.Actor, opts model.JobListOptions) (model.JobFilter, error) {
	opts.Normalize()
	filter := model.JobFilter{Limit: opts.Limit, Offset: opts.Offset}
	if actor.Privileged() {
		return filter, nil
	}
	if strings.TrimSpace(actor.ID) == "" {
		return filter, apperrors.ValidationField("actor", "actor id is required")
	}
	switch actor.Role {
	case model.RoleCustomer:
		filter.CustomerID = actor.ID
	case model.RoleTranslator:
		filter.TranslatorID = actor.ID
	default:
		return filter, apperrors.ValidationField("actor", "unknown role "+string(actor.Role))
	}
	return filter, nil
}

func (e *LifecycleEngine) query(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	jobs, err := e.jobs.Query(sctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return jobs, nil
}

// ──────────────────────────────────────────────────
// Plumbing
// ──────────────────────────────────────────────────

// run loads the job under its lock, applies fn, then dispatches the events fn produced.
func (e *LifecycleEngine) run(
	ctx context.Context,
	op, jobID string,
	fn func(ctx context.Context, job *model.Job) (*outcome, error),
) (*model.Job, error) {
	ctx, span := e.startSpan(ctx, op, jobID)
	defer span.End()
	start := time.Now()

	if strings.TrimSpace(jobID) == "" {
		err := apperrors.ValidationField("job_id", "job id is required")
		e.finish(ctx, span, op, jobID, start, nil, err)
		return nil, err
	}

	out, err := e.locked(ctx, jobID, func(ctx context.Context) (*outcome, error) {
		job, err := e.load(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return fn(ctx, job)
	})
	e.finish(ctx, span, op, jobID, start, out, err)
	if err != nil {
		return nil, err
	}

	for _, ev := range out.events {
		e.notify(ctx, ev)
	}
	return out.job, nil
}

func (e *LifecycleEngine) locked(ctx context.Context, jobID string, fn func(ctx context.Context) (*outcome, error)) (*outcome, error) {
	lctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	release, err := e.locker.Lock(lctx, jobID)
	cancel()
	if err != nil {
		if apperrors.IsTransient(err) {
			return nil, err
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeTransient, "lock job %s", jobID)
	}
	defer release()
	return fn(ctx)
}

func (e *LifecycleEngine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

func (e *LifecycleEngine) load(ctx context.Context, jobID string) (*model.Job, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	job, err := e.jobs.Get(sctx, jobID)
	if err != nil {
		return nil, storeErr(err)
	}
	return job, nil
}

// reload returns the stored version of job after a partly committed offer, or job itself
// when the store cannot be read.
func (e *LifecycleEngine) reload(ctx context.Context, job *model.Job) *model.Job {
	current, err := e.load(ctx, job.ID)
	if err != nil {
		e.logError(ctx, "reload after failed offer", job.ID, err)
		return job
	}
	return current
}

func (e *LifecycleEngine) save(ctx context.Context, job *model.Job) (*model.Job, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	saved, err := e.jobs.Save(sctx, job, job.Version)
	if err != nil {
		return nil, storeErr(err)
	}
	return saved, nil
}

// storeErr turns store deadlines into retryable errors.
func storeErr(err error) error {
	if err == nil || apperrors.GetCode(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTransient, "store call timed out")
	}
	return err
}

// notify dispatches ev. Delivery problems are logged, never returned.
func (e *LifecycleEngine) notify(ctx context.Context, ev model.NotificationEvent) {
	if len(ev.Targets) == 0 {
		return
	}
	res, err := e.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		e.logError(ctx, "notification dispatch rejected", ev.JobID, err)
		return
	}
	if e.logger != nil {
		e.logger.DebugContext(ctx, "notification dispatched",
			"job_id", ev.JobID,
			"kind", ev.Kind,
			"targets", len(res.Targets),
			"delivered", res.Delivered(),
		)
	}
}

func (e *LifecycleEngine) startSpan(ctx context.Context, op, jobID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("job.op", op)}
	if jobID != "" {
		attrs = append(attrs, attribute.String("job.id", jobID))
	}
	return e.tracer.Start(ctx, "job."+op, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

func (e *LifecycleEngine) finish(
	ctx context.Context,
	span trace.Span,
	op, jobID string,
	start time.Time,
	out *outcome,
	err error,
) {
	m := metrics.TransitionMetric{Op: op, Duration: time.Since(start)}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.Result = metrics.ResultError
		m.Err = err
		metrics.EmitTransition(e.metrics, m)
		if e.logger != nil {
			e.logger.InfoContext(ctx, "job operation rejected", "op", op, "job_id", jobID, "error", err)
		}
		return
	}

	m.From = string(out.from)
	m.To = string(out.job.Status)
	m.Result = metrics.ResultSuccess
	if out.noop {
		m.Result = metrics.ResultNoop
	}
	span.SetAttributes(attribute.String("job.status", string(out.job.Status)), attribute.Bool("job.noop", out.noop))
	metrics.EmitTransition(e.metrics, m)
	if e.logger != nil && !out.noop {
		e.logger.InfoContext(ctx, "job transition",
			"op", op,
			"job_id", out.job.ID,
			"from", out.from,
			"to", out.job.Status,
			"version", out.job.Version,
		)
	}
}

func (e *LifecycleEngine) logError(ctx context.Context, msg, jobID string, err error) {
	if e.logger != nil {
		e.logger.ErrorContext(ctx, msg, "job_id", jobID, "error", err)
	}
}
