// Package notify defines the operator alert payload and the sink contract shared by alert transports.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// DeliveryAlertPayload describes a notification fan-out that reached nobody.
type DeliveryAlertPayload struct {
	JobID      string
	Kind       string
	Targets    int
	Failed     int
	Skipped    int
	Reason     string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming delivery alerts.
type Sink interface {
	SendDeliveryAlert(ctx context.Context, payload DeliveryAlertPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload DeliveryAlertPayload) error

// SendDeliveryAlert implements the Sink interface.
func (f SinkFunc) SendDeliveryAlert(ctx context.Context, payload DeliveryAlertPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
