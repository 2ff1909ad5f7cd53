// Package transport combines the push and SMS gateway clients behind core.NotificationTransport.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/model"
)

// ErrChannelDisabled is returned for a channel with no configured sender.
var ErrChannelDisabled = errors.New("notification channel disabled")

// Sender delivers one payload to one address on a single channel.
type Sender interface {
	Send(ctx context.Context, address string, payload model.NotificationPayload) (model.SendResult, error)
}

// Options configures a Transport. A nil sender disables its channel.
type Options struct {
	Push   Sender
	SMS    Sender
	Logger *slog.Logger
}

// Transport routes each channel to its sender.
type Transport struct {
	push   Sender
	sms    Sender
	logger *slog.Logger
}

var _ core.NotificationTransport = (*Transport)(nil)

// New constructs a Transport.
func New(opts Options) *Transport {
	t := &Transport{push: opts.Push, sms: opts.SMS}
	if opts.Logger != nil {
		t.logger = opts.Logger.With("component", "notification_transport")
	}
	return t
}

// SendPush delivers over the push gateway.
func (t *Transport) SendPush(ctx context.Context, token string, payload model.NotificationPayload) (model.SendResult, error) {
	return t.send(ctx, model.ChannelPush, t.push, token, payload)
}

// SendSMS delivers over the SMS gateway.
func (t *Transport) SendSMS(ctx context.Context, number string, payload model.NotificationPayload) (model.SendResult, error) {
	return t.send(ctx, model.ChannelSMS, t.sms, number, payload)
}

func (t *Transport) send(
	ctx context.Context,
	ch model.Channel,
	sender Sender,
	address string,
	payload model.NotificationPayload,
) (model.SendResult, error) {
	if sender == nil {
		return model.SendResult{}, fmt.Errorf("%s: %w", ch, ErrChannelDisabled)
	}
	res, err := sender.Send(ctx, address, payload)
	if err != nil {
		return model.SendResult{}, fmt.Errorf("send %s: %w", ch, err)
	}
	if t.logger != nil {
		t.logger.DebugContext(ctx, "notification sent",
			"channel", ch,
			"job_id", payload.JobID,
			"kind", payload.Kind,
			"provider_id", res.ProviderID,
		)
	}
	return res, nil
}

// LogSender writes messages to the log instead of a gateway. Used in dev mode and by the
// admin CLI's in-memory mode.
type LogSender struct {
	Channel model.Channel
	Logger  *slog.Logger
	seq     atomic.Int64
}

// Send logs the message and returns a synthetic provider id.
func (s *LogSender) Send(ctx context.Context, address string, payload model.NotificationPayload) (model.SendResult, error) {
	n := s.seq.Add(1)
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification (log transport)",
		"channel", s.Channel,
		"address", address,
		"job_id", payload.JobID,
		"kind", payload.Kind,
		"title", payload.Title,
	)
	return model.SendResult{ProviderID: fmt.Sprintf("log-%s-%d", s.Channel, n)}, nil
}
