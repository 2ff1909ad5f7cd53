package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtapi/booking-engine/internal/data/pgxutil"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

const insertJobSQL = `
  INSERT INTO jobs (
    id, status, customer_id, translator_id,
    from_language, to_language, town, physical, due_at, duration_minutes,
    required_gender, requires_certified, customer_phone, instructions,
    candidates, declined, version, created_at, updated_at
  ) VALUES (
    $1, $2, $3, $4,
    $5, $6, $7, $8, $9, $10,
    $11, $12, $13, $14,
    $15, $16, 1, $17, $17
  )
  RETURNING ` + jobColumns

// Create inserts a job with version 1. An empty ID is filled with a UUID.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, apperrors.Validation("job is required")
	}
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	candidates, err := encodeIDs(job.Candidates)
	if err != nil {
		return nil, err
	}
	declined, err := encodeIDs(job.Declined)
	if err != nil {
		return nil, err
	}

	var out *model.Job
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var scanErr error
		out, scanErr = scanJob(conn.QueryRow(ctx, insertJobSQL,
			id, job.Status, job.CustomerID, job.TranslatorID,
			job.FromLanguage, job.ToLanguage, job.Town, job.Physical, job.DueAt, job.DurationMinutes,
			job.RequiredGender, job.RequiresCertified, job.CustomerPhone, job.Instructions,
			candidates, declined, r.timeProvider.Now(),
		))
		return scanErr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// Get returns a job by id.
func (r *JobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	var out *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var scanErr error
		out, scanErr = scanJob(conn.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

const saveJobSQL = `
  UPDATE jobs SET
    status = $3,
    translator_id = $4,
    customer_not_call = $5,
    customer_not_call_at = $6,
    candidates = $7,
    declined = $8,
    offer_round = $9,
    offered_at = $10,
    offer_dispatched_at = $11,
    accepted_at = $12,
    started_at = $13,
    completed_at = $14,
    cancelled_at = $15,
    cancelled_by = $16,
    version = version + 1,
    updated_at = $17
  WHERE id = $1 AND version = $2
  RETURNING ` + jobColumns

// Save writes the lifecycle fields when jobs.version still equals expectedVersion.
// Booking attributes and the admin block are not touched.
func (r *JobRepo) Save(ctx context.Context, job *model.Job, expectedVersion int64) (*model.Job, error) {
	candidates, err := encodeIDs(job.Candidates)
	if err != nil {
		return nil, err
	}
	declined, err := encodeIDs(job.Declined)
	if err != nil {
		return nil, err
	}

	var out *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, saveJobSQL,
			job.ID, expectedVersion,
			job.Status, job.TranslatorID, job.CustomerNotCall, job.CustomerNotCallAt,
			candidates, declined, job.OfferRound,
			job.OfferedAt, job.OfferDispatchedAt, job.AcceptedAt, job.StartedAt, job.CompletedAt, job.CancelledAt,
			string(job.CancelledBy), r.timeProvider.Now(),
		)
		var scanErr error
		out, scanErr = scanJob(row)
		if !errors.Is(scanErr, pgx.ErrNoRows) {
			return scanErr
		}
		return r.missOrConflict(ctx, tx, job.ID, expectedVersion)
	}})
	if txErr != nil {
		if apperrors.GetCode(txErr) != "" {
			return nil, txErr
		}
		return nil, apperrors.MapDBError(txErr)
	}
	return out, nil
}

// missOrConflict explains why a CAS update matched no row.
func (r *JobRepo) missOrConflict(ctx context.Context, tx pgx.Tx, id string, expected int64) error {
	var current int64
	err := tx.QueryRow(ctx, `SELECT version FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("read job version: %w", err)
	}
	if r.logger != nil {
		r.logger.DebugContext(ctx, "lost compare-and-swap", "job_id", id, "expected", expected, "current", current)
	}
	return apperrors.Conflictf("job %s was modified concurrently (version %d, expected %d)", id, current, expected)
}

const updateAdminFieldsSQL = `
  UPDATE jobs SET
    admin_comments = $2,
    flagged = $3,
    session_time = $4,
    manually_handled = $5,
    by_admin = $6,
    version = version + 1,
    updated_at = $7
  WHERE id = $1
  RETURNING ` + jobColumns

// UpdateAdminFields writes the admin block without touching status.
func (r *JobRepo) UpdateAdminFields(ctx context.Context, jobID string, f model.AdminFields) (*model.Job, error) {
	var out *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var scanErr error
		out, scanErr = scanJob(conn.QueryRow(ctx, updateAdminFieldsSQL,
			jobID, f.AdminComments, f.Flagged, f.SessionTime, f.ManuallyHandled, f.ByAdmin, r.timeProvider.Now(),
		))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}
