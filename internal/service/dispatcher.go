package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/observability/metrics"
	"github.com/dtapi/booking-engine/internal/observability/notify"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/service/opsalert"
)

const (
	tracerName = "github.com/dtapi/booking-engine/internal/service"

	defaultDispatchConcurrency = 8
	defaultTransportTimeout    = 10 * time.Second
)

// NotificationDispatcherOptions groups dependencies for NotificationDispatcher.
type NotificationDispatcherOptions struct {
	Transport   core.NotificationTransport // Required: push and SMS delivery
	Jobs        core.JobStore              // Required: event validation and resend targets
	Translators core.TranslatorDirectory   // Required: translator contact lookup
	Customers   core.CustomerDirectory     // Required: customer contact lookup

	// Concurrency bounds parallel targets per dispatch (default 8).
	Concurrency int
	// SendTimeout bounds each channel attempt (default 10s).
	SendTimeout time.Duration
	// StoreTimeout bounds each job and directory lookup (default 5s).
	StoreTimeout time.Duration

	Alerts  *opsalert.Service // Optional: told when an offer reaches nobody
	Clock   core.Clock        // Optional: defaults to wall clock
	Metrics statsd.Sink       // Optional
	Tracer  trace.Tracer      // Optional: defaults to the global provider
	Logger  *slog.Logger
}

// NotificationDispatcher fans a NotificationEvent out to its targets over push and SMS.
// Every channel attempt is isolated: a failure is recorded in the result, never returned.
type NotificationDispatcher struct {
	transport   core.NotificationTransport
	jobs        core.JobStore
	translators core.TranslatorDirectory
	customers   core.CustomerDirectory
	concurrency int
	sendTimeout  time.Duration
	storeTimeout time.Duration
	alerts       *opsalert.Service
	clock       core.Clock
	metrics     statsd.Sink
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewNotificationDispatcher constructs a dispatcher.
func NewNotificationDispatcher(opts NotificationDispatcherOptions) (*NotificationDispatcher, error) {
	switch {
	case opts.Transport == nil:
		return nil, errors.New("NotificationTransport is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobStore is required")
	case opts.Translators == nil:
		return nil, errors.New("TranslatorDirectory is required")
	case opts.Customers == nil:
		return nil, errors.New("CustomerDirectory is required")
	}

	d := &NotificationDispatcher{
		transport:   opts.Transport,
		jobs:        opts.Jobs,
		translators: opts.Translators,
		customers:   opts.Customers,
		concurrency: opts.Concurrency,
		sendTimeout:  opts.SendTimeout,
		storeTimeout: opts.StoreTimeout,
		alerts:       opts.Alerts,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
	}
	if d.concurrency <= 0 {
		d.concurrency = defaultDispatchConcurrency
	}
	if d.sendTimeout <= 0 {
		d.sendTimeout = defaultTransportTimeout
	}
	if d.storeTimeout <= 0 {
		d.storeTimeout = defaultStoreTimeout
	}
	if d.clock == nil {
		d.clock = systemClock{}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if opts.Logger != nil {
		d.logger = opts.Logger.With("component", "notification_dispatcher")
	}
	return d, nil
}

// MustNewNotificationDispatcher constructs a dispatcher and panics on error.
func MustNewNotificationDispatcher(opts NotificationDispatcherOptions) *NotificationDispatcher {
	d, err := NewNotificationDispatcher(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create NotificationDispatcher: %v", err))
	}
	return d
}

// Dispatch delivers event to every target. Only malformed input is an error: an empty job id,
// no targets, or a job that does not exist.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, event model.NotificationEvent) (*model.DispatchResult, error) {
	if strings.TrimSpace(event.JobID) == "" {
		return nil, apperrors.ValidationField("job_id", "job id is required")
	}
	if len(event.Targets) == 0 {
		return nil, apperrors.ValidationField("targets", "event has no targets")
	}
	if _, err := d.loadJob(ctx, event.JobID); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ValidationField("job_id", "unknown job "+event.JobID)
		}
		return nil, err
	}
	return d.deliver(ctx, event), nil
}

// ResendPush re-sends the current notification of a job over push only.
func (d *NotificationDispatcher) ResendPush(ctx context.Context, jobID string) (*model.DispatchResult, error) {
	return d.resend(ctx, jobID, model.ChannelPush)
}

// ResendSMS re-sends the current notification of a job over SMS only.
func (d *NotificationDispatcher) ResendSMS(ctx context.Context, jobID string) (*model.DispatchResult, error) {
	return d.resend(ctx, jobID, model.ChannelSMS)
}

func (d *NotificationDispatcher) resend(ctx context.Context, jobID string, ch model.Channel) (*model.DispatchResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, apperrors.ValidationField("job_id", "job id is required")
	}
	job, err := d.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var (
		kind    model.EventKind
		targets []model.Target
	)
	switch job.Status {
	case model.JobStatusOffered:
		kind = model.EventOffer
		targets = translatorTargets(job.Candidates)
	case model.JobStatusAccepted, model.JobStatusInProgress:
		kind = model.EventAccepted
		if job.TranslatorID != nil {
			targets = translatorTargets([]string{*job.TranslatorID})
		}
	default:
		return nil, apperrors.InvalidOperation(string(job.Status), "resend notifications for")
	}
	if len(targets) == 0 {
		return nil, apperrors.Validationf("job %s has nobody to notify", jobID)
	}

	event := newEvent(job, kind, targets)
	event.Channels = []model.Channel{ch}
	return d.deliver(ctx, event), nil
}

func (d *NotificationDispatcher) deliver(ctx context.Context, event model.NotificationEvent) *model.DispatchResult {
	ctx, span := d.tracer.Start(ctx, "notification.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", event.JobID),
			attribute.String("notification.kind", string(event.Kind)),
			attribute.Int("notification.targets", len(event.Targets)),
		),
	)
	defer span.End()

	start := time.Now()
	channels := channelsFor(event)
	result := &model.DispatchResult{
		JobID:   event.JobID,
		Kind:    event.Kind,
		Targets: make(map[string]model.TargetResult, len(event.Targets)),
	}

	var (
		mu   sync.Mutex
		g    errgroup.Group
		seen = make(map[string]struct{}, len(event.Targets))
	)
	g.SetLimit(d.concurrency)
	for _, target := range event.Targets {
		if _, dup := seen[target.ID]; dup {
			continue
		}
		seen[target.ID] = struct{}{}
		g.Go(func() error {
			tr := d.deliverTarget(ctx, span, event, target, channels)
			mu.Lock()
			result.Targets[target.ID] = tr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	delivered := result.Delivered()
	span.SetAttributes(attribute.Int("notification.delivered", delivered))
	metrics.EmitDispatchDuration(d.metrics, string(event.Kind), time.Since(start))

	if delivered == 0 {
		span.SetStatus(codes.Error, "no target reached")
		d.reportUndelivered(ctx, result)
	}
	return result
}

func channelsFor(event model.NotificationEvent) []model.Channel {
	if len(event.Channels) > 0 {
		return event.Channels
	}
	if event.Kind.SMSEligible() {
		return []model.Channel{model.ChannelPush, model.ChannelSMS}
	}
	return []model.Channel{model.ChannelPush}
}

func (d *NotificationDispatcher) deliverTarget(
	ctx context.Context,
	span trace.Span,
	event model.NotificationEvent,
	target model.Target,
	channels []model.Channel,
) model.TargetResult {
	res := model.TargetResult{
		Role: target.Role,
		Push: model.ChannelResult{Status: model.ChannelSkipped},
		SMS:  model.ChannelResult{Status: model.ChannelSkipped},
	}

	contact, err := d.resolve(ctx, target)
	if err != nil {
		d.logWarn(ctx, "notification target lookup failed", event, target, "", err)
		for _, ch := range channels {
			r := model.ChannelResult{Status: model.ChannelFailed, Error: err.Error()}
			if apperrors.IsNotFound(err) {
				r.Status = model.ChannelSkipped
			}
			res = withChannel(res, ch, r)
			d.countDelivery(event.Kind, ch, r.Status)
		}
		return res
	}

	for _, ch := range channels {
		r := d.send(ctx, span, event, contact, ch)
		res = withChannel(res, ch, r)
		d.countDelivery(event.Kind, ch, r.Status)
	}
	return res
}

func withChannel(res model.TargetResult, ch model.Channel, r model.ChannelResult) model.TargetResult {
	switch ch {
	case model.ChannelPush:
		res.Push = r
	case model.ChannelSMS:
		res.SMS = r
	}
	return res
}

func (d *NotificationDispatcher) send(
	ctx context.Context,
	span trace.Span,
	event model.NotificationEvent,
	contact model.Contact,
	ch model.Channel,
) model.ChannelResult {
	var address string
	switch ch {
	case model.ChannelPush:
		address = contact.PushToken
	case model.ChannelSMS:
		address = contact.Phone
	default:
		return model.ChannelResult{Status: model.ChannelSkipped, Error: "unsupported channel " + string(ch)}
	}
	if strings.TrimSpace(address) == "" {
		return model.ChannelResult{Status: model.ChannelSkipped, Error: "no " + string(ch) + " contact"}
	}

	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	var (
		sent model.SendResult
		err  error
	)
	if ch == model.ChannelPush {
		sent, err = d.transport.SendPush(sctx, address, event.Payload)
	} else {
		sent, err = d.transport.SendSMS(sctx, address, event.Payload)
	}
	if err != nil {
		span.RecordError(err, trace.WithAttributes(
			attribute.String("target.id", contact.ID),
			attribute.String("notification.channel", string(ch)),
		))
		d.logWarn(ctx, "notification send failed", event, model.Target{ID: contact.ID, Role: contact.Role}, ch, err)
		return model.ChannelResult{Status: model.ChannelFailed, Error: err.Error()}
	}
	return model.ChannelResult{Status: model.ChannelSent, ProviderID: sent.ProviderID}
}

func (d *NotificationDispatcher) loadJob(ctx context.Context, jobID string) (*model.Job, error) {
	sctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()
	job, err := d.jobs.Get(sctx, jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, storeErr(err))
	}
	return job, nil
}

// resolve looks up the contact details of a target. Roles without a directory entry have none.
func (d *NotificationDispatcher) resolve(ctx context.Context, target model.Target) (model.Contact, error) {
	c := model.Contact{ID: target.ID, Role: target.Role}
	switch target.Role {
	case model.RoleTranslator:
		sctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
		t, err := d.translators.GetTranslator(sctx, target.ID)
		cancel()
		if err != nil {
			return c, storeErr(err)
		}
		c.PushToken, c.Phone = t.PushToken, t.Phone
	case model.RoleCustomer:
		sctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
		cu, err := d.customers.GetCustomer(sctx, target.ID)
		cancel()
		if err != nil {
			return c, storeErr(err)
		}
		c.PushToken, c.Phone = cu.PushToken, cu.Phone
	}
	return c, nil
}

func (d *NotificationDispatcher) countDelivery(kind model.EventKind, ch model.Channel, status model.ChannelStatus) {
	metrics.EmitDelivery(d.metrics, metrics.DeliveryMetric{
		Kind:    string(kind),
		Channel: string(ch),
		Status:  string(status),
	})
}

func (d *NotificationDispatcher) reportUndelivered(ctx context.Context, result *model.DispatchResult) {
	failed := len(result.Failures())
	skipped := len(result.Targets) - failed

	if d.logger != nil {
		d.logger.WarnContext(ctx, "notification reached no target",
			"job_id", result.JobID,
			"kind", result.Kind,
			"targets", len(result.Targets),
			"failed", failed,
		)
	}
	if result.Kind != model.EventOffer || !d.alerts.Enabled() {
		return
	}

	ids := make([]string, 0, len(result.Targets))
	for id := range result.Targets {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	d.alerts.NotifyUndelivered(ctx, notify.DeliveryAlertPayload{
		JobID:      result.JobID,
		Kind:       string(result.Kind),
		Targets:    len(result.Targets),
		Failed:     failed,
		Skipped:    skipped,
		Reason:     "offer reached no candidate on any channel",
		Severity:   notify.SeverityCritical,
		OccurredAt: d.clock.Now(),
		Metadata:   map[string]string{"candidates": strings.Join(ids, ",")},
	})
}

func (d *NotificationDispatcher) logWarn(
	ctx context.Context,
	msg string,
	event model.NotificationEvent,
	target model.Target,
	ch model.Channel,
	err error,
) {
	if d.logger == nil {
		return
	}
	attrs := []any{"job_id", event.JobID, "kind", event.Kind, "target_id", target.ID, "role", target.Role, "error", err}
	if ch != "" {
		attrs = append(attrs, "channel", ch)
	}
	d.logger.WarnContext(ctx, msg, attrs...)
}

// systemClock is the wall clock in UTC.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
