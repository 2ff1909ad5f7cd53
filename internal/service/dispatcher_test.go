package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/mocks"
	"github.com/dtapi/booking-engine/internal/observability/metrics"
	"github.com/dtapi/booking-engine/internal/observability/notify"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/service/opsalert"
	"github.com/dtapi/booking-engine/internal/testutil"
)

// dispatchStore seeds c1, t1 (push+sms), t2 (no contact) and one job with the given status.
func dispatchStore(t *testing.T, status model.JobStatus) (*memstore.Store, *model.Job) {
	t.Helper()
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1"))
	store.PutTranslator(testutil.NewTranslator("t1").Build())
	store.PutTranslator(testutil.NewTranslator("t2").WithoutContact().Build())

	job := jobFromSpec("c1", testutil.NewJobSpec().Build())
	job.Status = status
	if status == model.JobStatusOffered {
		job.Candidates = []string{"t1", "t2"}
	}
	if status.HasTranslator() {
		job.TranslatorID = testutil.StringPtr("t1")
	}
	created, err := store.Create(context.Background(), job)
	require.NoError(t, err)
	return store, created
}

func newTestDispatcher(t *testing.T, store *memstore.Store, transport *mocks.MockNotificationTransport, opts ...func(*NotificationDispatcherOptions)) *NotificationDispatcher {
	t.Helper()
	o := NotificationDispatcherOptions{
		Transport:   transport,
		Jobs:        store,
		Translators: store,
		Customers:   store,
	}
	for _, fn := range opts {
		fn(&o)
	}
	d, err := NewNotificationDispatcher(o)
	require.NoError(t, err)
	return d
}

func TestNewNotificationDispatcher_RequiresDependencies(t *testing.T) {
	store := memstore.New()
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockNotificationTransport(ctrl)

	_, err := NewNotificationDispatcher(NotificationDispatcherOptions{Jobs: store, Translators: store, Customers: store})
	require.Error(t, err)
	_, err = NewNotificationDispatcher(NotificationDispatcherOptions{Transport: transport, Translators: store, Customers: store})
	require.Error(t, err)
	_, err = NewNotificationDispatcher(NotificationDispatcherOptions{Transport: transport, Jobs: store, Customers: store})
	require.Error(t, err)
	_, err = NewNotificationDispatcher(NotificationDispatcherOptions{Transport: transport, Jobs: store, Translators: store})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewNotificationDispatcher(NotificationDispatcherOptions{}) })
}

func TestDispatch_OfferUsesPushAndSMS(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockNotificationTransport(ctrl)
	rec := &statsd.Recorder{}
	d := newTestDispatcher(t, store, transport, func(o *NotificationDispatcherOptions) { o.Metrics = rec })

	transport.EXPECT().SendPush(gomock.Any(), "push-t1", gomock.Any()).Return(model.SendResult{ProviderID: "p-1"}, nil)
	transport.EXPECT().SendSMS(gomock.Any(), "+4670t1", gomock.Any()).Return(model.SendResult{ProviderID: "s-1"}, nil)

	res, err := d.Dispatch(context.Background(), newEvent(job, model.EventOffer, translatorTargets([]string{"t1", "t2"})))
	require.NoError(t, err)

	require.Len(t, res.Targets, 2)
	assert.Equal(t, model.ChannelResult{Status: model.ChannelSent, ProviderID: "p-1"}, res.Targets["t1"].Push)
	assert.Equal(t, model.ChannelResult{Status: model.ChannelSent, ProviderID: "s-1"}, res.Targets["t1"].SMS)
	assert.Equal(t, model.ChannelSkipped, res.Targets["t2"].Push.Status)
	assert.Equal(t, model.ChannelSkipped, res.Targets["t2"].SMS.Status)
	assert.Equal(t, 1, res.Delivered())
	assert.Empty(t, res.Failures())

	assert.InDelta(t, 2, rec.Sum(metrics.DeliveryCount, map[string]string{"status": "sent"}), 0.001)
	assert.InDelta(t, 2, rec.Sum(metrics.DeliveryCount, map[string]string{"status": "skipped"}), 0.001)
}

func TestDispatch_NonOfferKindsArePushOnly(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusAccepted)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockNotificationTransport(ctrl)
	d := newTestDispatcher(t, store, transport)

	// No SendSMS expectation: any SMS attempt fails the test.
	transport.EXPECT().SendPush(gomock.Any(), "push-c1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, p model.NotificationPayload) (model.SendResult, error) {
			assert.Equal(t, model.EventAccepted, p.Kind)
			assert.Equal(t, job.ID, p.Data["job_id"])
			return model.SendResult{}, nil
		})

	res, err := d.Dispatch(context.Background(), newEvent(job, model.EventAccepted, []model.Target{customerTarget(job)}))
	require.NoError(t, err)
	assert.Equal(t, model.ChannelSent, res.Targets["c1"].Push.Status)
	assert.Equal(t, model.ChannelSkipped, res.Targets["c1"].SMS.Status)
}

func TestDispatch_ChannelFailuresAreIsolated(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	store.PutTranslator(testutil.NewTranslator("t3").Build())
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockNotificationTransport(ctrl)
	d := newTestDispatcher(t, store, transport)

	transport.EXPECT().SendPush(gomock.Any(), "push-t1", gomock.Any()).Return(model.SendResult{}, errors.New("gateway down"))
	transport.EXPECT().SendSMS(gomock.Any(), "+4670t1", gomock.Any()).Return(model.SendResult{ProviderID: "s-1"}, nil)
	transport.EXPECT().SendPush(gomock.Any(), "push-t3", gomock.Any()).Return(model.SendResult{ProviderID: "p-3"}, nil)
	transport.EXPECT().SendSMS(gomock.Any(), "+4670t3", gomock.Any()).Return(model.SendResult{}, errors.New("bad number"))

	res, err := d.Dispatch(context.Background(), newEvent(job, model.EventOffer, translatorTargets([]string{"t1", "t3"})))
	require.NoError(t, err)

	assert.Equal(t, model.ChannelFailed, res.Targets["t1"].Push.Status)
	assert.Equal(t, "gateway down", res.Targets["t1"].Push.Error)
	assert.Equal(t, model.ChannelSent, res.Targets["t1"].SMS.Status)
	assert.Equal(t, model.ChannelSent, res.Targets["t3"].Push.Status)
	assert.Equal(t, model.ChannelFailed, res.Targets["t3"].SMS.Status)
	assert.Equal(t, 2, res.Delivered())
	assert.Len(t, res.Failures(), 2)
}

func TestDispatch_UnknownTargetIsSkipped(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	ctrl := gomock.NewController(t)
	d := newTestDispatcher(t, store, mocks.NewMockNotificationTransport(ctrl))

	res, err := d.Dispatch(context.Background(), newEvent(job, model.EventOffer, translatorTargets([]string{"ghost", "ghost"})))
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, model.ChannelSkipped, res.Targets["ghost"].Push.Status)
	assert.Contains(t, res.Targets["ghost"].Push.Error, "not found")
}

func TestDispatch_MalformedInput(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	ctrl := gomock.NewController(t)
	d := newTestDispatcher(t, store, mocks.NewMockNotificationTransport(ctrl))
	ctx := context.Background()

	tests := []struct {
		name  string
		event model.NotificationEvent
		field string
	}{
		{name: "empty job id", event: model.NotificationEvent{Kind: model.EventOffer, Targets: translatorTargets([]string{"t1"})}, field: "job_id"},
		{name: "no targets", event: newEvent(job, model.EventOffer, nil), field: "targets"},
		{name: "unknown job", event: model.NotificationEvent{JobID: "nope", Kind: model.EventOffer, Targets: translatorTargets([]string{"t1"})}, field: "job_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Dispatch(ctx, tt.event)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestDispatch_UndeliveredOfferAlertsOperators(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockNotificationTransport(ctrl)

	var (
		mu     sync.Mutex
		alerts []notify.DeliveryAlertPayload
	)
	svc := opsalert.NewService(opsalert.Options{Sinks: []opsalert.SinkRegistration{{
		Name: "capture",
		Sink: notify.SinkFunc(func(_ context.Context, p notify.DeliveryAlertPayload) error {
			mu.Lock()
			defer mu.Unlock()
			alerts = append(alerts, p)
			return nil
		}),
	}}})
	d := newTestDispatcher(t, store, transport, func(o *NotificationDispatcherOptions) { o.Alerts = svc })

	transport.EXPECT().SendPush(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.SendResult{}, errors.New("down")).AnyTimes()
	transport.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.SendResult{}, errors.New("down")).AnyTimes()

	res, err := d.Dispatch(context.Background(), newEvent(job, model.EventOffer, translatorTargets([]string{"t1", "t2"})))
	require.NoError(t, err)
	assert.Zero(t, res.Delivered())

	require.Len(t, alerts, 1)
	assert.Equal(t, job.ID, alerts[0].JobID)
	assert.Equal(t, "offer", alerts[0].Kind)
	assert.Equal(t, 2, alerts[0].Targets)
	assert.Equal(t, 1, alerts[0].Failed)
	assert.Equal(t, 1, alerts[0].Skipped)
	assert.Equal(t, "t1,t2", alerts[0].Metadata["candidates"])

	// Non-offer events never page.
	_, err = d.Dispatch(context.Background(), newEvent(job, model.EventCancelled, translatorTargets([]string{"t1"})))
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestDispatch_RecordsSpan(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockNotificationTransport(ctrl)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	d := newTestDispatcher(t, store, transport, func(o *NotificationDispatcherOptions) { o.Tracer = tp.Tracer("test") })

	transport.EXPECT().SendPush(gomock.Any(), "push-t1", gomock.Any()).Return(model.SendResult{}, errors.New("down"))
	transport.EXPECT().SendSMS(gomock.Any(), "+4670t1", gomock.Any()).Return(model.SendResult{}, nil)

	_, err := d.Dispatch(context.Background(), newEvent(job, model.EventOffer, translatorTargets([]string{"t1"})))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "notification.dispatch", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("job.id", job.ID))
	assert.Contains(t, span.Attributes(), attribute.Int("notification.delivered", 1))

	var errorEvents int
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			errorEvents++
		}
	}
	assert.Equal(t, 1, errorEvents)
}

func TestResend(t *testing.T) {
	ctx := context.Background()

	t.Run("offered job re-sends to candidates on one channel", func(t *testing.T) {
		store, job := dispatchStore(t, model.JobStatusOffered)
		ctrl := gomock.NewController(t)
		transport := mocks.NewMockNotificationTransport(ctrl)
		d := newTestDispatcher(t, store, transport)

		transport.EXPECT().SendSMS(gomock.Any(), "+4670t1", gomock.Any()).Return(model.SendResult{}, nil)

		res, err := d.ResendSMS(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EventOffer, res.Kind)
		assert.Equal(t, model.ChannelSent, res.Targets["t1"].SMS.Status)
		assert.Equal(t, model.ChannelSkipped, res.Targets["t1"].Push.Status)
	})

	t.Run("accepted job re-sends to the assignee", func(t *testing.T) {
		store, job := dispatchStore(t, model.JobStatusAccepted)
		ctrl := gomock.NewController(t)
		transport := mocks.NewMockNotificationTransport(ctrl)
		d := newTestDispatcher(t, store, transport)

		transport.EXPECT().SendPush(gomock.Any(), "push-t1", gomock.Any()).Return(model.SendResult{}, nil)

		res, err := d.ResendPush(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EventAccepted, res.Kind)
		assert.Len(t, res.Targets, 1)
	})

	t.Run("terminal job is an invalid state", func(t *testing.T) {
		store, job := dispatchStore(t, model.JobStatusCompleted)
		d := newTestDispatcher(t, store, mocks.NewMockNotificationTransport(gomock.NewController(t)))

		_, err := d.ResendPush(ctx, job.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("offer without candidates has nobody to notify", func(t *testing.T) {
		store, job := dispatchStore(t, model.JobStatusOffered)
		job.Candidates = nil
		_, err := store.Save(ctx, job, job.Version)
		require.NoError(t, err)
		d := newTestDispatcher(t, store, mocks.NewMockNotificationTransport(gomock.NewController(t)))

		_, err = d.ResendPush(ctx, job.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		store, _ := dispatchStore(t, model.JobStatusOffered)
		d := newTestDispatcher(t, store, mocks.NewMockNotificationTransport(gomock.NewController(t)))

		_, err := d.ResendSMS(ctx, "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestDispatch_DirectoryLookupIsBounded(t *testing.T) {
	store, job := dispatchStore(t, model.JobStatusOffered)
	ctrl := gomock.NewController(t)
	d := newTestDispatcher(t, store, mocks.NewMockNotificationTransport(ctrl), func(o *NotificationDispatcherOptions) {
		o.Translators = hangingDirectory{Store: store}
		o.StoreTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	res, err := d.Dispatch(context.Background(), newEvent(job, model.EventOffer, translatorTargets([]string{"t1"})))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	tr := res.Targets["t1"]
	assert.Equal(t, model.ChannelFailed, tr.Push.Status)
	assert.Equal(t, model.ChannelFailed, tr.SMS.Status)
	assert.Contains(t, tr.Push.Error, "timed out")
	assert.Zero(t, res.Delivered())
}
