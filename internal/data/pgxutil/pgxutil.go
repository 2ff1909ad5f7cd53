// Package pgxutil bridges database/sql pools to pgx connections so repositories can use
// pgx row scanning and JSONB codecs while sharing the pool opened by bootstrap.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// TxConfig describes one pgx transaction. A zero IsoLevel uses the server default.
type TxConfig struct {
	IsoLevel pgx.TxIsoLevel
	ReadOnly bool
	Fn       func(pgx.Tx) error
}

func (c TxConfig) options() pgx.TxOptions {
	opts := pgx.TxOptions{IsoLevel: c.IsoLevel, AccessMode: pgx.ReadWrite}
	if c.ReadOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	return opts
}

// WithPgxConn borrows a connection from db and hands fn the underlying *pgx.Conn.
// The connection goes back to the pool when fn returns.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	if db == nil {
		return errors.New("pgxutil: nil database")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("pgxutil: driver connection is %T, want *stdlib.Conn", dc)
		}
		return fn(std.Conn())
	})
}

// WithPgxTx runs cfg.Fn inside a transaction and commits when it returns nil.
// Any error from Fn is returned unchanged after rollback.
func WithPgxTx(ctx context.Context, db *sql.DB, cfg TxConfig) error {
	if cfg.Fn == nil {
		return errors.New("pgxutil: nil transaction func")
	}
	return WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		tx, err := conn.BeginTx(ctx, cfg.options())
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		// Rollback after a successful commit returns ErrTxClosed and is a no-op.
		defer func() { _ = tx.Rollback(ctx) }()

		if err := cfg.Fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
