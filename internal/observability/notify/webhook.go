package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultWebhookBackoff = 200 * time.Millisecond
	maxErrorBody          = 4 << 10
)

// Webhook posts JSON alert bodies to one endpoint. Failed attempts are retried with a
// linear backoff; 4xx answers other than 429 are returned at once.
type Webhook struct {
	Name       string // used in error messages, e.g. "slack"
	URL        string
	RetryLimit int
	Backoff    time.Duration
	Client     *http.Client
}

// NewWebhook fills in the HTTP client and backoff defaults.
func NewWebhook(name, url string, retryLimit int, timeout time.Duration, hc *http.Client) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Webhook{
		Name:       name,
		URL:        url,
		RetryLimit: max(retryLimit, 0),
		Backoff:    defaultWebhookBackoff,
		Client:     hc,
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// PostJSON encodes v and delivers it.
func (w *Webhook) PostJSON(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", w.Name, err)
	}

	attempts := w.RetryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = w.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * w.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return permanentError{fmt.Errorf("create %s request: %w", w.Name, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", w.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := fmt.Errorf("%s webhook %s: %s", w.Name, resp.Status, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return permanentError{statusErr}
	}
	return statusErr
}
