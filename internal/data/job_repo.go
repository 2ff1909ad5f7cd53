package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/model"
)

var _ core.JobStore = (*JobRepo)(nil)

// RepoConfig holds configuration options for the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo is the Postgres JobStore. Every Save is a compare-and-swap on jobs.version.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	var logger *slog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With("component", "job_repo")
	}
	return &JobRepo{DB: db, timeProvider: tp, logger: logger}
}

// jobColumnList is shared by SELECT and RETURNING clauses and must match scanJob.
var jobColumnList = []string{
	"id", "status", "customer_id", "translator_id",
	"from_language", "to_language", "town", "physical", "due_at", "duration_minutes",
	"required_gender", "requires_certified", "customer_phone", "instructions",
	"admin_comments", "flagged", "manually_handled", "by_admin", "session_time",
	"customer_not_call", "customer_not_call_at",
	"version", "candidates", "declined", "offer_round",
	"offered_at", "offer_dispatched_at", "accepted_at", "started_at", "completed_at", "cancelled_at",
	"cancelled_by", "created_at", "updated_at",
}

const jobColumns = `
  id, status, customer_id, translator_id,
  from_language, to_language, town, physical, due_at, duration_minutes,
  required_gender, requires_certified, customer_phone, instructions,
  admin_comments, flagged, manually_handled, by_admin, session_time,
  customer_not_call, customer_not_call_at,
  version, candidates, declined, offer_round,
  offered_at, offer_dispatched_at, accepted_at, started_at, completed_at, cancelled_at,
  cancelled_by, created_at, updated_at
`

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j                    model.Job
		candidates, declined []byte
		cancelledBy          string
	)
	err := row.Scan(
		&j.ID, &j.Status, &j.CustomerID, &j.TranslatorID,
		&j.FromLanguage, &j.ToLanguage, &j.Town, &j.Physical, &j.DueAt, &j.DurationMinutes,
		&j.RequiredGender, &j.RequiresCertified, &j.CustomerPhone, &j.Instructions,
		&j.AdminComments, &j.Flagged, &j.ManuallyHandled, &j.ByAdmin, &j.SessionTime,
		&j.CustomerNotCall, &j.CustomerNotCallAt,
		&j.Version, &candidates, &declined, &j.OfferRound,
		&j.OfferedAt, &j.OfferDispatchedAt, &j.AcceptedAt, &j.StartedAt, &j.CompletedAt, &j.CancelledAt,
		&cancelledBy, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeIDs(candidates, &j.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	if err := decodeIDs(declined, &j.Declined); err != nil {
		return nil, fmt.Errorf("decode declined: %w", err)
	}
	j.CancelledBy = model.Role(cancelledBy)
	return &j, nil
}

func decodeIDs(raw []byte, dst *[]string) error {
	*dst = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}
