package core

import (
	"context"
	"time"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// This file contains the ports the booking services depend on. Adapters in internal/data and
// internal/adapters implement them; services never import concrete stores or transports.

// JobStore persists jobs. Save is a compare-and-swap on Version: it fails with a conflict
// error when the stored version differs from expectedVersion, and bumps Version on success.
type JobStore interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	Create(ctx context.Context, job *model.Job) (*model.Job, error)
	Save(ctx context.Context, job *model.Job, expectedVersion int64) (*model.Job, error)
	Query(ctx context.Context, filter model.JobFilter) ([]*model.Job, error)
	// UpdateAdminFields writes the admin block without touching status or lifecycle fields.
	UpdateAdminFields(ctx context.Context, jobID string, fields model.AdminFields) (*model.Job, error)
}

// DistanceStore persists the 1-1 distance record of a job.
type DistanceStore interface {
	GetDistance(ctx context.Context, jobID string) (*model.Distance, error)
	// UpsertDistance creates the record on first write and only changes non-nil fields.
	UpsertDistance(ctx context.Context, jobID string, update model.DistanceUpdate) (*model.Distance, error)
}

// TranslatorDirectory is a read-only view of translators.
type TranslatorDirectory interface {
	GetTranslator(ctx context.Context, id string) (*model.Translator, error)
	ListTranslators(ctx context.Context) ([]*model.Translator, error)
}

// CustomerDirectory is a read-only view of customers.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
}

// NotificationTransport delivers one message on one channel to one address.
type NotificationTransport interface {
	SendPush(ctx context.Context, token string, payload model.NotificationPayload) (model.SendResult, error)
	SendSMS(ctx context.Context, number string, payload model.NotificationPayload) (model.SendResult, error)
}

// JobLocker serializes mutations of a single job. The returned func releases the lock.
type JobLocker interface {
	Lock(ctx context.Context, jobID string) (func(), error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
