package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

const dueLayout = "2006-01-02 15:04"

// newEvent builds the notification for kind on job. Targets are copied.
func newEvent(job *model.Job, kind model.EventKind, targets []model.Target) model.NotificationEvent {
	return model.NotificationEvent{
		JobID:   job.ID,
		Kind:    kind,
		Targets: append([]model.Target(nil), targets...),
		Payload: eventPayload(job, kind),
	}
}

func eventPayload(job *model.Job, kind model.EventKind) model.NotificationPayload {
	when := job.DueAt.UTC().Format(dueLayout)
	var title, msg string
	switch kind {
	case model.EventOffer:
		title = "New booking available"
		msg = fmt.Sprintf("%s to %s, %s, %d min", job.FromLanguage, job.ToLanguage, when, job.DurationMinutes)
		if job.Physical {
			msg += " in " + job.Town
		}
	case model.EventAccepted:
		title = "Booking accepted"
		msg = fmt.Sprintf("The booking on %s has been accepted", when)
	case model.EventCancelled:
		title = "Booking cancelled"
		msg = fmt.Sprintf("The booking on %s has been cancelled", when)
	case model.EventEnded:
		title = "Session ended"
		msg = fmt.Sprintf("The session on %s has ended", when)
	case model.EventReopened:
		title = "Booking reopened"
		msg = fmt.Sprintf("The booking on %s is looking for a translator again", when)
	default:
		title = "Booking update"
		msg = fmt.Sprintf("The booking on %s was updated", when)
	}

	data := map[string]string{
		"job_id":        job.ID,
		"kind":          string(kind),
		"status":        string(job.Status),
		"due_at":        job.DueAt.UTC().Format(time.RFC3339),
		"from_language": job.FromLanguage,
		"to_language":   job.ToLanguage,
		"duration":      strconv.Itoa(job.DurationMinutes),
	}
	if job.Physical {
		data["town"] = job.Town
	}
	return model.NotificationPayload{
		JobID:   job.ID,
		Kind:    kind,
		Title:   title,
		Message: msg,
		Data:    data,
	}
}

func translatorTargets(ids []string) []model.Target {
	out := make([]model.Target, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Target{ID: id, Role: model.RoleTranslator})
	}
	return out
}

func customerTarget(job *model.Job) model.Target {
	return model.Target{ID: job.CustomerID, Role: model.RoleCustomer}
}
