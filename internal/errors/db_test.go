package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError_NilError(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTransient},
		{name: "wrapped deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantCode: ErrCodeTransient},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, GetCode(MapDBError(tt.err)))
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	assert.True(t, IsNotFound(MapDBError(pgx.ErrNoRows)))
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantCode  ErrorCode
		wantField string
	}{
		{
			name:      "unique violation with column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "id"},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "unique violation from detail",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: `Key (job_id)=(j1) already exists.`},
			wantCode:  ErrCodeConflict,
			wantField: "job_id",
		},
		{
			name:      "unique violation from constraint",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "customers_phone_key"},
			wantCode:  ErrCodeConflict,
			wantField: "phone",
		},
		{
			name:     "foreign key",
			pgErr:    &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Detail: `Key (job_id)=(x) is not present in table "jobs".`},
			wantCode: ErrCodeForeignKey,
		},
		{
			name:      "not null",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "customer_id"},
			wantCode:  ErrCodeValidation,
			wantField: "customer_id",
		},
		{
			name:     "serialization failure",
			pgErr:    &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			wantCode: ErrCodeTransient,
		},
		{
			name:     "unknown",
			pgErr:    &pgconn.PgError{Code: pgerrcode.DiskFull},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			assert.Equal(t, tt.wantCode, GetCode(err))
			assert.Equal(t, tt.wantField, GetField(err))
		})
	}
}

func TestMapDBError_ForeignKeyMessageNamesDomain(t *testing.T) {
	err := MapDBError(&pgconn.PgError{
		Code:   pgerrcode.ForeignKeyViolation,
		Detail: `Key (job_id)=(x) is not present in table "jobs".`,
	})
	assert.Contains(t, err.Error(), "referenced job does not exist")
}

func TestMapDBError_PassThrough(t *testing.T) {
	plain := errors.New("plain")
	assert.Equal(t, plain, MapDBError(plain))
}
