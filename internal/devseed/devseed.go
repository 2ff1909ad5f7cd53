// Package devseed loads a small demo directory of translators and customers for local runs.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dtapi/booking-engine/internal/domain/model"
)

// DirectoryWriter accepts directory records. The in-memory store implements it.
type DirectoryWriter interface {
	PutTranslator(t *model.Translator)
	PutCustomer(c *model.Customer)
}

// Translators returns the demo translator pool.
func Translators() []*model.Translator {
	return []*model.Translator{
		{
			ID: "tr-anna", Name: "Anna Berg", PushToken: "push-tr-anna", Phone: "+46701110001",
			Languages: []string{"sv", "en", "de"}, Towns: []string{"stockholm"},
			Gender: "female", Certified: true, Available: true,
			Attrs: map[string]any{"rating": 4.8, "years": 12.0},
		},
		{
			ID: "tr-omar", Name: "Omar Haddad", PushToken: "push-tr-omar", Phone: "+46701110002",
			Languages: []string{"sv", "ar", "en"}, Towns: []string{"stockholm", "uppsala"},
			Gender: "male", Available: true,
			Attrs: map[string]any{"rating": 4.2, "years": 3.0},
		},
		{
			ID: "tr-lena", Name: "Lena Novak", Phone: "+46701110003",
			Languages: []string{"sv", "ru", "pl"}, Towns: []string{"goteborg"},
			Gender: "female", Certified: true, Available: true,
		},
		{
			ID: "tr-juan", Name: "Juan Ortega", PushToken: "push-tr-juan",
			Languages: []string{"sv", "es", "en"}, Towns: []string{"malmo"},
			Gender: "male", Available: false,
		},
	}
}

// Customers returns the demo customers.
func Customers() []*model.Customer {
	return []*model.Customer{
		{ID: "cu-clinic", Name: "Norra Clinic", PushToken: "push-cu-clinic", Phone: "+46702220001"},
		{ID: "cu-court", Name: "District Court", Phone: "+46702220002", BlockedTranslators: []string{"tr-omar"}},
	}
}

// SeedMemory loads the demo directory into w.
func SeedMemory(w DirectoryWriter) {
	for _, t := range Translators() {
		w.PutTranslator(t)
	}
	for _, c := range Customers() {
		w.PutCustomer(c)
	}
}

// Run upserts the demo directory into Postgres. Each record is attempted; failures are counted.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	failures := 0
	for _, t := range Translators() {
		if err := upsertTranslator(ctx, db, t); err != nil {
			logSeedError(ctx, logger, "translator", t.ID, err)
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded translator", "id", t.ID)
		}
	}
	for _, c := range Customers() {
		if err := upsertCustomer(ctx, db, c); err != nil {
			logSeedError(ctx, logger, "customer", c.ID, err)
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded customer", "id", c.ID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func logSeedError(ctx context.Context, logger *slog.Logger, kind, id string, err error) {
	if logger != nil {
		logger.ErrorContext(ctx, "failed to seed "+kind, "id", id, "error", err)
	}
}

func upsertTranslator(ctx context.Context, db *sql.DB, t *model.Translator) error {
	languages, err := json.Marshal(t.Languages)
	if err != nil {
		return fmt.Errorf("encode languages: %w", err)
	}
	towns, err := json.Marshal(t.Towns)
	if err != nil {
		return fmt.Errorf("encode towns: %w", err)
	}
	attrs := t.Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO translators (id, name, push_token, phone, languages, towns, gender, certified, available, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, push_token = EXCLUDED.push_token, phone = EXCLUDED.phone,
			languages = EXCLUDED.languages, towns = EXCLUDED.towns, gender = EXCLUDED.gender,
			certified = EXCLUDED.certified, available = EXCLUDED.available, attributes = EXCLUDED.attributes`,
		t.ID, t.Name, t.PushToken, t.Phone, languages, towns, t.Gender, t.Certified, t.Available, rawAttrs)
	return err
}

func upsertCustomer(ctx context.Context, db *sql.DB, c *model.Customer) error {
	blocked := c.BlockedTranslators
	if blocked == nil {
		blocked = []string{}
	}
	raw, err := json.Marshal(blocked)
	if err != nil {
		return fmt.Errorf("encode blocked translators: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO customers (id, name, push_token, phone, blocked_translators)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, push_token = EXCLUDED.push_token, phone = EXCLUDED.phone,
			blocked_translators = EXCLUDED.blocked_translators`,
		c.ID, c.Name, c.PushToken, c.Phone, raw)
	return err
}
