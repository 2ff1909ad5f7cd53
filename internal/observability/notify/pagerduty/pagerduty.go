// Package pagerduty raises operator delivery alerts through the PagerDuty Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dtapi/booking-engine/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Endpoint   string // defaults to APIEndpoint
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	hook       *notify.Webhook
	routingKey string
	source     string
	component  string
}

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	endpoint := fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint)
	return &Client{
		hook:       notify.NewWebhook("pagerduty", endpoint, cfg.RetryLimit, cfg.Timeout, cfg.Client),
		routingKey: key,
		source:     fallbackString(strings.TrimSpace(cfg.Source), "booking-engine"),
		component:  fallbackString(strings.TrimSpace(cfg.Component), "dispatcher"),
	}, nil
}

// SendDeliveryAlert submits a trigger event to PagerDuty.
func (c *Client) SendDeliveryAlert(ctx context.Context, payload notify.DeliveryAlertPayload) error {
	return c.hook.PostJSON(ctx, c.buildEvent(payload))
}

func (c *Client) buildEvent(payload notify.DeliveryAlertPayload) map[string]any {
	severity := fallbackString(strings.ToLower(payload.Severity), notify.SeverityCritical)

	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"job_id":  payload.JobID,
		"kind":    payload.Kind,
		"reason":  payload.Reason,
		"targets": strconv.Itoa(payload.Targets),
		"failed":  strconv.Itoa(payload.Failed),
		"skipped": strconv.Itoa(payload.Skipped),
	}
	for k, v := range payload.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	// One incident per job and event kind; repeated re-offers update it instead of paging again.
	dedupKey := strings.Trim(fmt.Sprintf("%s:%s", payload.Kind, payload.JobID), ":")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary": fmt.Sprintf(
				"Job %s: %s notification reached nobody",
				fallbackString(payload.JobID, "unknown"),
				fallbackString(payload.Kind, "unknown"),
			),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
