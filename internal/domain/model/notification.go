package model

import "maps"

// EventKind names the lifecycle change a notification announces.
type EventKind string

const (
	EventOffer     EventKind = "offer"
	EventAccepted  EventKind = "accepted"
	EventCancelled EventKind = "cancelled"
	EventEnded     EventKind = "ended"
	EventReopened  EventKind = "reopened"
)

// SMSEligible reports whether the kind is sent over SMS in addition to push.
// Offers (including re-offers) are time-critical and go out on both channels.
func (k EventKind) SMSEligible() bool {
	return k == EventOffer
}

// Channel is a delivery path.
type Channel string

const (
	ChannelPush Channel = "push"
	ChannelSMS  Channel = "sms"
)

// Target is one recipient of an event.
type Target struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// NotificationPayload is the transport-neutral message body.
type NotificationPayload struct {
	JobID   string            `json:"job_id"`
	Kind    EventKind         `json:"kind"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// NotificationEvent is an ephemeral fan-out request derived from a transition.
type NotificationEvent struct {
	JobID   string
	Kind    EventKind
	Targets []Target
	Payload NotificationPayload
	// Channels restricts delivery. Empty means push always plus SMS for SMS-eligible kinds.
	Channels []Channel
}

// SendResult is the acknowledgement from a transport.
type SendResult struct {
	ProviderID string `json:"provider_id,omitempty"`
}

// ChannelStatus is the outcome of a single channel attempt.
type ChannelStatus string

const (
	ChannelSent    ChannelStatus = "sent"
	ChannelFailed  ChannelStatus = "failed"
	ChannelSkipped ChannelStatus = "skipped"
)

// ChannelResult records one attempt. Skipped covers both "not applicable" and "no contact".
type ChannelResult struct {
	Status     ChannelStatus `json:"status"`
	ProviderID string        `json:"provider_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// TargetResult holds per-channel results for one target.
type TargetResult struct {
	Role Role          `json:"role"`
	Push ChannelResult `json:"push"`
	SMS  ChannelResult `json:"sms"`
}

// Delivered reports whether any channel reached the target.
func (r TargetResult) Delivered() bool {
	return r.Push.Status == ChannelSent || r.SMS.Status == ChannelSent
}

// DispatchResult maps target id to per-channel outcomes.
type DispatchResult struct {
	JobID   string                  `json:"job_id"`
	Kind    EventKind               `json:"kind"`
	Targets map[string]TargetResult `json:"targets"`
}

// Delivered counts targets reached on at least one channel.
func (r *DispatchResult) Delivered() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, t := range r.Targets {
		if t.Delivered() {
			n++
		}
	}
	return n
}

// Failures returns the subset of targets with at least one failed channel.
func (r *DispatchResult) Failures() map[string]TargetResult {
	out := make(map[string]TargetResult)
	if r == nil {
		return out
	}
	for id, t := range r.Targets {
		if t.Push.Status == ChannelFailed || t.SMS.Status == ChannelFailed {
			out[id] = t
		}
	}
	return out
}

// Clone returns a copy safe to hand to other goroutines.
func (r *DispatchResult) Clone() *DispatchResult {
	if r == nil {
		return nil
	}
	return &DispatchResult{JobID: r.JobID, Kind: r.Kind, Targets: maps.Clone(r.Targets)}
}
