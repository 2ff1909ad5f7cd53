// Package push delivers notifications through the mobile push gateway.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// Config captures the push gateway settings.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	Logger     *slog.Logger
}

// Client posts push messages to the gateway.
type Client struct {
	endpoint   string
	apiKey     string
	retryLimit int
	backoff    time.Duration
	client     *http.Client
	logger     *slog.Logger
}

// ErrPermanent marks a rejection the gateway will not accept on retry (bad token, bad request).
var ErrPermanent = errors.New("push gateway rejected message")

// NewClient builds a push gateway client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("push endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		retryLimit: max(cfg.RetryLimit, 0),
		backoff:    200 * time.Millisecond,
		client:     hc,
		logger:     logger.With("component", "push_client"),
	}, nil
}

type message struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Collapse string            `json:"collapse_key,omitempty"`
}

type response struct {
	ID string `json:"id"`
}

// Send delivers payload to a device token. 4xx responses are permanent and not retried.
func (c *Client) Send(ctx context.Context, token string, payload model.NotificationPayload) (model.SendResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.SendResult{}, fmt.Errorf("%w: empty device token", ErrPermanent)
	}

	body, err := json.Marshal(message{
		To:       token,
		Title:    payload.Title,
		Body:     payload.Message,
		Data:     payload.Data,
		Collapse: payload.JobID,
	})
	if err != nil {
		return model.SendResult{}, fmt.Errorf("encode push payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		res, err := c.post(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrPermanent) {
			return model.SendResult{}, err
		}
		if attempt < attempts-1 {
			// Linear backoff.
			timer := time.NewTimer(time.Duration(attempt+1) * c.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return model.SendResult{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return model.SendResult{}, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (model.SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.SendResult{}, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.SendResult{}, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return model.SendResult{}, fmt.Errorf("%w: %s: %s", ErrPermanent, resp.Status, strings.TrimSpace(string(raw)))
	default:
		return model.SendResult{}, fmt.Errorf("push gateway %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	// The gateway accepted the message; an unreadable body must not trigger a resend.
	if readErr != nil {
		c.logger.WarnContext(ctx, "read push response failed after acceptance", "status", resp.StatusCode, "error", readErr)
		return model.SendResult{}, nil
	}
	var out response
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			c.logger.WarnContext(ctx, "undecodable push response after acceptance", "status", resp.StatusCode, "error", err)
			return model.SendResult{}, nil
		}
	}
	return model.SendResult{ProviderID: out.ID}, nil
}
