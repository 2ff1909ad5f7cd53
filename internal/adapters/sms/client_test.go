package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

func testPayload() model.NotificationPayload {
	return model.NotificationPayload{JobID: "j1", Kind: model.EventOffer, Title: "New job offer", Message: "sv to en, 60 min"}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestSend_Success(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "acct", user)
		assert.Equal(t, "pw", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"sms-7"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Username: "acct", Password: "pw", Sender: "Booking"})
	require.NoError(t, err)

	res, err := c.Send(context.Background(), "+46 70-123 45 67", testPayload())
	require.NoError(t, err)
	assert.Equal(t, "sms-7", res.ProviderID)
	assert.Equal(t, "+46701234567", got.To)
	assert.Equal(t, "Booking", got.From)
	assert.Equal(t, "New job offer: sv to en, 60 min", got.Text)
	assert.Equal(t, "j1", got.Ref)
}

func TestSend_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, RetryLimit: 2})
	require.NoError(t, err)
	c.backoff = time.Millisecond

	_, err = c.Send(context.Background(), "+4670", testPayload())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermanent)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_BadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid number", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, RetryLimit: 2})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "+4670", testPayload())
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Send(context.Background(), "  ", testPayload())
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, int32(1), calls.Load(), "empty number never reaches the gateway")
}

func TestSend_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, RatePerSecond: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "+4670", testPayload())
	require.NoError(t, err, "burst allows the first message")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, "+4670", testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Title", Render(model.NotificationPayload{Title: " Title "}))
	assert.Equal(t, "body", Render(model.NotificationPayload{Message: "body"}))

	long := Render(model.NotificationPayload{Title: "T", Message: strings.Repeat("å", 300)})
	assert.Equal(t, maxBodyRunes, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestSend_AcceptedWithUndecodableBodyIsNotResent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("OK queued"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, RetryLimit: 2})
	require.NoError(t, err)
	c.backoff = time.Millisecond

	res, err := c.Send(context.Background(), "+4670", testPayload())
	require.NoError(t, err)
	assert.Empty(t, res.ProviderID)
	assert.Equal(t, int32(1), calls.Load())
}
