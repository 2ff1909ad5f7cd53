package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dtapi/booking-engine/internal/data/database"
	"github.com/dtapi/booking-engine/internal/data/pgxutil"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

// buildJobQuery translates a JobFilter into SQL. Exposed to tests through the package.
func buildJobQuery(f model.JobFilter) (string, []any) {
	sortCol := "created_at"
	switch f.SortBy {
	case "due_at", "updated_at":
		sortCol = f.SortBy
	}
	sortDir := "DESC"
	if f.SortOrder == "asc" || f.SortOrder == "ASC" {
		sortDir = "ASC"
	}

	opts := []database.ListQueryOption{
		database.WithColumns(jobColumnList...),
		database.WithOrderBy(sortCol, sortDir),
		database.WithTieBreaker("id"),
	}
	if f.Limit > 0 {
		opts = append(opts, database.WithLimit(f.Limit))
	}
	if f.Offset > 0 {
		opts = append(opts, database.WithOffset(f.Offset))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		opts = append(opts, database.WithCondition(database.WhereCond("status", database.In, statuses)))
	}
	if f.CustomerID != "" {
		opts = append(opts, database.WithCondition(database.WhereCond("customer_id", database.Equal, f.CustomerID)))
	}
	if f.TranslatorID != "" {
		opts = append(opts, database.WithCondition(database.WhereCond("translator_id", database.Equal, f.TranslatorID)))
	}
	if f.CandidateID != "" {
		opts = append(opts, database.WithCondition(database.WhereRawCond("candidates ? $1", f.CandidateID)))
	}
	if f.OfferedBefore != nil {
		opts = append(opts, database.WithCondition(database.WhereRawCond("offered_at <= $1", *f.OfferedBefore)))
	}
	return database.BuildListQuery(database.NewListQueryOptions("jobs", opts...))
}

// Query returns jobs matching the filter.
func (r *JobRepo) Query(ctx context.Context, f model.JobFilter) ([]*model.Job, error) {
	query, args := buildJobQuery(f)

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, scanErr := scanJob(rows)
			if scanErr != nil {
				return fmt.Errorf("scan job: %w", scanErr)
			}
			jobs = append(jobs, j)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return jobs, nil
}
