package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

func testPayload() model.NotificationPayload {
	return model.NotificationPayload{
		JobID:   "j1",
		Kind:    model.EventOffer,
		Title:   "New job offer",
		Message: "sv → en, 60 min",
		Data:    map[string]string{"job_id": "j1"},
	}
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{Endpoint: url, APIKey: "secret", RetryLimit: retries, Timeout: time.Second})
	require.NoError(t, err)
	c.backoff = time.Millisecond
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "  "})
	require.Error(t, err)
}

func TestSend_Success(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"msg-42"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL, 0).Send(context.Background(), "tok-1", testPayload())
	require.NoError(t, err)
	assert.Equal(t, "msg-42", res.ProviderID)
	assert.Equal(t, "tok-1", got.To)
	assert.Equal(t, "New job offer", got.Title)
	assert.Equal(t, "j1", got.Collapse)
	assert.Equal(t, "j1", got.Data["job_id"])
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL, 2).Send(context.Background(), "tok-1", testPayload())
	require.NoError(t, err)
	assert.Empty(t, res.ProviderID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_ClientErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unregistered token", http.StatusGone)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).Send(context.Background(), "tok-1", testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.Contains(t, err.Error(), "unregistered token")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_EmptyToken(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", 0)
	_, err := c.Send(context.Background(), " ", testPayload())
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestSend_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	c.backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "tok-1", testPayload())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSend_AcceptedWithUndecodableBodyIsNotResent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("<html>queued</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	res, err := c.Send(context.Background(), "tok", testPayload())
	require.NoError(t, err)
	assert.Empty(t, res.ProviderID)
	assert.Equal(t, int32(1), calls.Load())
}
