// Package sms delivers notifications through the SMS gateway.
package sms

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

	"golang.org/x/time/rate"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// maxBodyRunes is the length of a single-part SMS; longer texts are truncated.
const maxBodyRunes = 160

// ErrPermanent marks a rejection the gateway will not accept on retry.
var ErrPermanent = errors.New("sms gateway rejected message")

// Config captures the SMS gateway settings.
type Config struct {
	Endpoint      string
	Username      string
	Password      string
	Sender        string
	Timeout       time.Duration
	RetryLimit    int
	RatePerSecond float64
	Burst         int
	Client        *http.Client
	Logger        *slog.Logger
}

// Client sends SMS messages, rate limited to what the gateway allows.
type Client struct {
	endpoint   string
	username   string
	password   string
	sender     string
	retryLimit int
	backoff    time.Duration
	limiter    *rate.Limiter
	client     *http.Client
	logger     *slog.Logger
}

// NewClient builds an SMS gateway client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("sms endpoint is required")
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

	c := &Client{
		endpoint:   endpoint,
		username:   cfg.Username,
		password:   cfg.Password,
		sender:     strings.TrimSpace(cfg.Sender),
		retryLimit: max(cfg.RetryLimit, 0),
		backoff:    250 * time.Millisecond,
		client:     hc,
		logger:     logger.With("component", "sms_client"),
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}
	return c, nil
}

type message struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"message"`
	Ref  string `json:"reference,omitempty"`
}

type response struct {
	ID string `json:"id"`
}

// Send delivers payload as a text to number. Waiting for the rate limiter honours ctx.
func (c *Client) Send(ctx context.Context, number string, payload model.NotificationPayload) (model.SendResult, error) {
	number = normalizeNumber(number)
	if number == "" {
		return model.SendResult{}, fmt.Errorf("%w: empty phone number", ErrPermanent)
	}

	body, err := json.Marshal(message{
		From: c.sender,
		To:   number,
		Text: Render(payload),
		Ref:  payload.JobID,
	})
	if err != nil {
		return model.SendResult{}, fmt.Errorf("encode sms payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return model.SendResult{}, fmt.Errorf("sms rate limit: %w", err)
			}
		}
		res, err := c.post(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrPermanent) {
			return model.SendResult{}, err
		}
		if attempt < attempts-1 {
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

// Render flattens a payload into a single SMS text.
func Render(payload model.NotificationPayload) string {
	text := strings.TrimSpace(payload.Title)
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		if text != "" {
			text += ": "
		}
		text += msg
	}
	runes := []rune(text)
	if len(runes) > maxBodyRunes {
		text = string(runes[:maxBodyRunes-1]) + "…"
	}
	return text
}

func normalizeNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(number))
}

func (c *Client) post(ctx context.Context, body []byte) (model.SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.SendResult{}, fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.SendResult{}, fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return model.SendResult{}, fmt.Errorf("%w: %s: %s", ErrPermanent, resp.Status, strings.TrimSpace(string(raw)))
	default:
		return model.SendResult{}, fmt.Errorf("sms gateway %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	// The gateway accepted the message; an unreadable body must not trigger a resend.
	if readErr != nil {
		c.logger.WarnContext(ctx, "read sms response failed after acceptance", "status", resp.StatusCode, "error", readErr)
		return model.SendResult{}, nil
	}
	var out response
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			c.logger.WarnContext(ctx, "undecodable sms response after acceptance", "status", resp.StatusCode, "error", err)
			return model.SendResult{}, nil
		}
	}
	return model.SendResult{ProviderID: out.ID}, nil
}
