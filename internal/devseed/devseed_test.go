package devseed

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/internal/data"
	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/testutil"
)

func TestSeedMemory(t *testing.T) {
	store := memstore.New()
	SeedMemory(store)
	ctx := context.Background()

	translators, err := store.ListTranslators(ctx)
	require.NoError(t, err)
	assert.Len(t, translators, len(Translators()))

	court, err := store.GetCustomer(ctx, "cu-court")
	require.NoError(t, err)
	assert.True(t, court.Blocks("tr-omar"))
}

func TestDemoDirectoryIsConsistent(t *testing.T) {
	ids := map[string]bool{}
	for _, tr := range Translators() {
		assert.False(t, ids[tr.ID], "duplicate translator %s", tr.ID)
		ids[tr.ID] = true
		assert.NotEmpty(t, tr.Languages, tr.ID)
	}
	for _, c := range Customers() {
		for _, blocked := range c.BlockedTranslators {
			assert.True(t, ids[blocked], "customer %s blocks unknown translator %s", c.ID, blocked)
		}
	}
}

func TestRun_Postgres(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		require.NoError(t, Run(ctx, db, nil))
		// Upserts are idempotent.
		require.NoError(t, Run(ctx, db, nil))

		repo := data.NewDirectoryRepo(db)
		got, err := repo.GetTranslator(ctx, "tr-anna")
		require.NoError(t, err)
		assert.Equal(t, []string{"sv", "en", "de"}, got.Languages)
		assert.InDelta(t, 4.8, got.Attrs["rating"], 0.001)

		cust, err := repo.GetCustomer(ctx, "cu-court")
		require.NoError(t, err)
		assert.Equal(t, []string{"tr-omar"}, cust.BlockedTranslators)
	})
}
