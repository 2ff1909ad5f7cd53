package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/data"
	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/domain/model"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/testutil"
)

type sentMessage struct {
	Channel model.Channel
	Address string
	Payload model.NotificationPayload
}

// fakeTransport records every send and fails for configured addresses.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

var _ core.NotificationTransport = (*fakeTransport)(nil)

func (f *fakeTransport) SendPush(_ context.Context, token string, p model.NotificationPayload) (model.SendResult, error) {
	return f.record(model.ChannelPush, token, p)
}

func (f *fakeTransport) SendSMS(_ context.Context, number string, p model.NotificationPayload) (model.SendResult, error) {
	return f.record(model.ChannelSMS, number, p)
}

func (f *fakeTransport) record(ch model.Channel, addr string, p model.NotificationPayload) (model.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[addr]; err != nil {
		return model.SendResult{}, err
	}
	f.sent = append(f.sent, sentMessage{Channel: ch, Address: addr, Payload: p})
	return model.SendResult{ProviderID: fmt.Sprintf("%s-%d", ch, len(f.sent))}, nil
}

func (f *fakeTransport) failOn(addr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = map[string]error{}
	}
	f.fail[addr] = err
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// kinds returns the event kinds delivered to addr on ch, in send order.
func (f *fakeTransport) kinds(ch model.Channel, addr string) []model.EventKind {
	var out []model.EventKind
	for _, m := range f.messages() {
		if m.Channel == ch && m.Address == addr {
			out = append(out, m.Payload.Kind)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// engineFixture wires the whole booking engine against the in-memory store.
type engineFixture struct {
	store      *memstore.Store
	clock      *data.FixedTimeProvider
	transport  *fakeTransport
	metrics    *statsd.Recorder
	matcher    *TranslatorMatcher
	dispatcher *NotificationDispatcher
	engine     *LifecycleEngine
}

const testOfferWindow = 10 * time.Minute

func newEngineFixture(t *testing.T, opts ...func(*LifecycleEngineOptions)) *engineFixture {
	t.Helper()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	store := memstore.New().WithClock(clock)
	f := &engineFixture{
		store:     store,
		clock:     clock,
		transport: &fakeTransport{},
		metrics:   &statsd.Recorder{},
	}

	var err error
	f.matcher, err = NewTranslatorMatcher(TranslatorMatcherOptions{
		Pool:      core.NewTranslatorPoolCache(core.TranslatorPoolCacheOptions{Directory: store}),
		Jobs:      store,
		Customers: store,
	})
	require.NoError(t, err)

	f.dispatcher, err = NewNotificationDispatcher(NotificationDispatcherOptions{
		Transport:   f.transport,
		Jobs:        store,
		Translators: store,
		Customers:   store,
		Clock:       clock,
		Metrics:     f.metrics,
	})
	require.NoError(t, err)

	policy, err := booking.NewOfferPolicy(testOfferWindow)
	require.NoError(t, err)

	engineOpts := LifecycleEngineOptions{
		Jobs:        store,
		Translators: store,
		Matcher:     f.matcher,
		Dispatcher:  f.dispatcher,
		Policy:      policy,
		Clock:       clock,
		Metrics:     f.metrics,
	}
	for _, fn := range opts {
		fn(&engineOpts)
	}
	f.engine, err = NewLifecycleEngine(engineOpts)
	require.NoError(t, err)
	return f
}

// seed installs customer c1 and the given translators.
func (f *engineFixture) seed(translators ...*model.Translator) {
	f.store.PutCustomer(testutil.NewCustomer("c1"))
	for _, tr := range translators {
		f.store.PutTranslator(tr)
	}
}

func (f *engineFixture) create(t *testing.T) *model.Job {
	t.Helper()
	job, err := f.engine.Create(context.Background(), "c1", testutil.NewJobSpec().Build())
	require.NoError(t, err)
	return job
}

// hangingDirectory answers lookups only once the caller gives up.
type hangingDirectory struct {
	*memstore.Store
}

func (h hangingDirectory) GetTranslator(ctx context.Context, _ string) (*model.Translator, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h hangingDirectory) GetCustomer(ctx context.Context, _ string) (*model.Customer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
