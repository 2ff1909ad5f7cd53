package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/data/pgxutil"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

var _ core.DistanceStore = (*DistanceRepo)(nil)

// DistanceRepo persists job_distances rows.
type DistanceRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDistanceRepo creates a DistanceRepo.
func NewDistanceRepo(db *sql.DB, cfg RepoConfig) *DistanceRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &DistanceRepo{DB: db, timeProvider: tp}
}

// GetDistance returns the distance record of a job.
func (r *DistanceRepo) GetDistance(ctx context.Context, jobID string) (*model.Distance, error) {
	var d model.Distance
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT job_id, distance, time, updated_at FROM job_distances WHERE job_id = $1`, jobID,
		).Scan(&d.JobID, &d.Distance, &d.Time, &d.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("distance for job %s not found", jobID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &d, nil
}

// NULL parameters keep the stored value, so a time-only feed never clears the distance.
const upsertDistanceSQL = `
  INSERT INTO job_distances (job_id, distance, time, updated_at)
  VALUES ($1, COALESCE($2::text, ''), COALESCE($3::text, ''), $4)
  ON CONFLICT (job_id) DO UPDATE SET
    distance = COALESCE($2::text, job_distances.distance),
    time = COALESCE($3::text, job_distances.time),
    updated_at = $4
  RETURNING job_id, distance, time, updated_at`

// UpsertDistance creates the record lazily and changes only the supplied fields.
func (r *DistanceRepo) UpsertDistance(ctx context.Context, jobID string, u model.DistanceUpdate) (*model.Distance, error) {
	var d model.Distance
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, upsertDistanceSQL, jobID, u.Distance, u.Time, r.timeProvider.Now()).
			Scan(&d.JobID, &d.Distance, &d.Time, &d.UpdatedAt)
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &d, nil
}
