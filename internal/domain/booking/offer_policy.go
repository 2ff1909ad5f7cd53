package booking

import (
	"errors"
	"time"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// ErrInvalidOfferWindow indicates the configured offer window is not positive.
var ErrInvalidOfferWindow = errors.New("offer window must be positive")

// OfferAction identifies what Assign should do with a job.
type OfferAction string

const (
	// OfferActionInitial sends the first offer round.
	OfferActionInitial OfferAction = "initial"
	// OfferActionReoffer refreshes candidates because the window elapsed without an accept.
	OfferActionReoffer OfferAction = "reoffer"
	// OfferActionHold leaves a live offer untouched.
	OfferActionHold OfferAction = "hold"
	// OfferActionReject means the job is not in an offerable status.
	OfferActionReject OfferAction = "reject"
)

// OfferPolicy decides when an outstanding offer may be re-sent. It is evaluated lazily on
// each Assign; nothing in the engine runs on a timer.
type OfferPolicy struct {
	window time.Duration
}

// NewOfferPolicy constructs an OfferPolicy with the given re-offer window.
func NewOfferPolicy(window time.Duration) (*OfferPolicy, error) {
	if window <= 0 {
		return nil, ErrInvalidOfferWindow
	}
	return &OfferPolicy{window: window}, nil
}

// Window returns the configured re-offer window.
func (p *OfferPolicy) Window() time.Duration {
	if p == nil {
		return 0
	}
	return p.window
}

// OfferDecision captures the outcome of evaluating a job against the policy.
type OfferDecision struct {
	Action OfferAction
	// Remaining is the time left before a held offer becomes re-offerable.
	Remaining time.Duration
}

// Decide evaluates job at now. force skips the window (admin re-offer).
func (p *OfferPolicy) Decide(job *model.Job, now time.Time, force bool) OfferDecision {
	switch job.Status {
	case model.JobStatusCreated:
		return OfferDecision{Action: OfferActionInitial}
	case model.JobStatusOffered:
		if force || job.OfferedAt == nil {
			return OfferDecision{Action: OfferActionReoffer}
		}
		elapsed := now.Sub(*job.OfferedAt)
		if elapsed >= p.Window() {
			return OfferDecision{Action: OfferActionReoffer}
		}
		return OfferDecision{Action: OfferActionHold, Remaining: p.Window() - elapsed}
	default:
		return OfferDecision{Action: OfferActionReject}
	}
}

// Cutoff returns the latest OfferedAt that is due for a re-offer at now.
func (p *OfferPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Window())
}
