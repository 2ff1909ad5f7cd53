package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/data/pgxutil"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

var (
	_ core.TranslatorDirectory = (*DirectoryRepo)(nil)
	_ core.CustomerDirectory   = (*DirectoryRepo)(nil)
)

// DirectoryRepo reads translators and customers. The engine never writes to these tables.
type DirectoryRepo struct {
	DB *sql.DB
}

// NewDirectoryRepo creates a DirectoryRepo.
func NewDirectoryRepo(db *sql.DB) *DirectoryRepo {
	return &DirectoryRepo{DB: db}
}

const translatorColumns = `id, name, push_token, phone, languages, towns, gender, certified, available, attributes`

func scanTranslator(row pgx.Row) (*model.Translator, error) {
	var (
		t                       model.Translator
		languages, towns, attrs []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.PushToken, &t.Phone, &languages, &towns,
		&t.Gender, &t.Certified, &t.Available, &attrs); err != nil {
		return nil, err
	}
	if err := decodeIDs(languages, &t.Languages); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	if err := decodeIDs(towns, &t.Towns); err != nil {
		return nil, fmt.Errorf("decode towns: %w", err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &t.Attrs); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &t, nil
}

// GetTranslator returns a translator by id.
func (r *DirectoryRepo) GetTranslator(ctx context.Context, id string) (*model.Translator, error) {
	var t *model.Translator
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var scanErr error
		t, scanErr = scanTranslator(conn.QueryRow(ctx,
			`SELECT `+translatorColumns+` FROM translators WHERE id = $1`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("translator %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return t, nil
}

// ListTranslators returns every translator ordered by id.
func (r *DirectoryRepo) ListTranslators(ctx context.Context) ([]*model.Translator, error) {
	out := []*model.Translator{}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+translatorColumns+` FROM translators ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, scanErr := scanTranslator(rows)
			if scanErr != nil {
				return scanErr
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// GetCustomer returns a customer by id.
func (r *DirectoryRepo) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var (
		c       model.Customer
		blocked []byte
	)
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT id, name, push_token, phone, blocked_translators FROM customers WHERE id = $1`, id,
		).Scan(&c.ID, &c.Name, &c.PushToken, &c.Phone, &blocked)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("customer %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	if err := decodeIDs(blocked, &c.BlockedTranslators); err != nil {
		return nil, fmt.Errorf("decode blocked translators: %w", err)
	}
	return &c, nil
}
