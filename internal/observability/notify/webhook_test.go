package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWebhook(url string, retries int) *Webhook {
	w := NewWebhook("test", url, retries, time.Second, nil)
	w.Backoff = time.Millisecond
	return w
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := newTestWebhook(srv.URL, 2).PostJSON(context.Background(), map[string]string{"a": "b"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestWebhook(srv.URL, 3).PostJSON(context.Background(), struct{}{})
	if err == nil || !strings.Contains(err.Error(), "no such channel") {
		t.Fatalf("expected status error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single call, got %d", got)
	}
}

func TestWebhookRetriesTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestWebhook(srv.URL, 1).PostJSON(context.Background(), struct{}{}); err != nil {
		t.Fatalf("expected retry after 429, got %v", err)
	}
}

func TestWebhookStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := newTestWebhook(srv.URL, 5)
	hook.Backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := hook.PostJSON(ctx, struct{}{}); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSinkFuncNilIsNoop(t *testing.T) {
	var f SinkFunc
	if err := f.SendDeliveryAlert(context.Background(), DeliveryAlertPayload{}); err != nil {
		t.Fatalf("nil sink func should be a noop, got %v", err)
	}
}
