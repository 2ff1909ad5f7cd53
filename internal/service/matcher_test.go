package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/testutil"
)

func newMatcher(t *testing.T, store *memstore.Store, expr string) *TranslatorMatcher {
	t.Helper()
	m, err := NewTranslatorMatcher(TranslatorMatcherOptions{
		Pool:            core.NewTranslatorPoolCache(core.TranslatorPoolCacheOptions{Directory: store}),
		Jobs:            store,
		Customers:       store,
		EligibilityExpr: expr,
	})
	require.NoError(t, err)
	return m
}

func jobFromSpec(customerID string, spec model.JobSpec) *model.Job {
	return &model.Job{
		Status:            model.JobStatusCreated,
		CustomerID:        customerID,
		FromLanguage:      spec.FromLanguage,
		ToLanguage:        spec.ToLanguage,
		Town:              spec.Town,
		Physical:          spec.Physical,
		DueAt:             spec.DueAt,
		DurationMinutes:   spec.DurationMinutes,
		RequiredGender:    spec.RequiredGender,
		RequiresCertified: spec.RequiresCertified,
	}
}

func TestNewTranslatorMatcher_Validation(t *testing.T) {
	store := memstore.New()
	pool := core.NewTranslatorPoolCache(core.TranslatorPoolCacheOptions{Directory: store})

	_, err := NewTranslatorMatcher(TranslatorMatcherOptions{Jobs: store})
	require.Error(t, err)

	_, err = NewTranslatorMatcher(TranslatorMatcherOptions{Pool: pool})
	require.Error(t, err)

	_, err = NewTranslatorMatcher(TranslatorMatcherOptions{Pool: pool, Jobs: store, EligibilityExpr: "attributes.["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid eligibility expression")
}

func TestTranslatorMatcher_FindCandidates(t *testing.T) {
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1", "t-blocked"))
	store.PutTranslator(testutil.NewTranslator("t-b").WithTowns("Stockholm").WithGender("female").Certified().Build())
	store.PutTranslator(testutil.NewTranslator("t-a").WithTowns("stockholm").WithGender("female").Build())
	store.PutTranslator(testutil.NewTranslator("t-c").WithTowns("Malmo").WithGender("male").Certified().Build())
	store.PutTranslator(testutil.NewTranslator("t-de").WithLanguages("de", "en").Build())
	store.PutTranslator(testutil.NewTranslator("t-off").Unavailable().Build())
	store.PutTranslator(testutil.NewTranslator("t-blocked").Build())
	m := newMatcher(t, store, "")
	ctx := context.Background()

	tests := []struct {
		name string
		job  *model.Job
		want []string
	}{
		{
			name: "remote job matches language pair and availability",
			job:  jobFromSpec("c1", testutil.NewJobSpec().Build()),
			want: []string{"t-a", "t-b", "t-c"},
		},
		{
			name: "language codes compare case-insensitively",
			job:  jobFromSpec("c1", testutil.NewJobSpec().WithLanguages("DE", "EN").Build()),
			want: []string{"t-de"},
		},
		{
			name: "physical job requires town",
			job:  jobFromSpec("c1", testutil.NewJobSpec().Physical("Stockholm").Build()),
			want: []string{"t-a", "t-b"},
		},
		{
			name: "gender filter",
			job:  jobFromSpec("c1", testutil.NewJobSpec().WithGender("male").Build()),
			want: []string{"t-c"},
		},
		{
			name: "certification filter",
			job:  jobFromSpec("c1", testutil.NewJobSpec().Certified().Build()),
			want: []string{"t-b", "t-c"},
		},
		{
			name: "nobody matches",
			job:  jobFromSpec("c1", testutil.NewJobSpec().WithLanguages("fi", "sv").Build()),
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.FindCandidates(ctx, tt.job)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslatorMatcher_ExcludesDeclined(t *testing.T) {
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1"))
	store.PutTranslator(testutil.NewTranslator("t1").Build())
	store.PutTranslator(testutil.NewTranslator("t2").Build())
	m := newMatcher(t, store, "")

	job := jobFromSpec("c1", testutil.NewJobSpec().Build())
	job.Declined = []string{"t1"}

	got, err := m.FindCandidates(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, got)
}

func TestTranslatorMatcher_UnknownCustomerIsNotAnError(t *testing.T) {
	store := memstore.New()
	store.PutTranslator(testutil.NewTranslator("t1").Build())
	m := newMatcher(t, store, "")

	got, err := m.FindCandidates(context.Background(), jobFromSpec("ghost", testutil.NewJobSpec().Build()))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got)
}

func TestTranslatorMatcher_EligibilityExpression(t *testing.T) {
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1"))
	store.PutTranslator(testutil.NewTranslator("t1").WithAttr("rating", 5.0).Build())
	store.PutTranslator(testutil.NewTranslator("t2").WithAttr("rating", 2.0).Build())
	store.PutTranslator(testutil.NewTranslator("t3").Build())
	m := newMatcher(t, store, "attributes.rating >= `4`")

	got, err := m.FindCandidates(context.Background(), jobFromSpec("c1", testutil.NewJobSpec().Build()))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got)
}

func TestTranslatorMatcher_Deterministic(t *testing.T) {
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1"))
	for _, id := range []string{"t5", "t3", "t1", "t4", "t2"} {
		store.PutTranslator(testutil.NewTranslator(id).Build())
	}
	m := newMatcher(t, store, "")
	job := jobFromSpec("c1", testutil.NewJobSpec().Build())

	first, err := m.FindCandidates(context.Background(), job)
	require.NoError(t, err)
	for range 5 {
		again, err := m.FindCandidates(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, first)
}

func TestTranslatorMatcher_FindPotentialJobs(t *testing.T) {
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1"))
	m := newMatcher(t, store, "")
	ctx := context.Background()

	seed := func(due time.Time, status model.JobStatus, candidates, declined []string) string {
		j := jobFromSpec("c1", testutil.NewJobSpec().WithDueAt(due).Build())
		j.Status = status
		j.Candidates = candidates
		j.Declined = declined
		created, err := store.Create(ctx, j)
		require.NoError(t, err)
		return created.ID
	}

	base := testutil.TestTime()
	later := seed(base.Add(48*time.Hour), model.JobStatusOffered, []string{"t1", "t2"}, nil)
	sooner := seed(base.Add(2*time.Hour), model.JobStatusOffered, []string{"t1"}, nil)
	seed(base.Add(time.Hour), model.JobStatusOffered, []string{"t2"}, []string{"t1"})
	seed(base.Add(time.Hour), model.JobStatusCreated, nil, nil)

	jobs, err := m.FindPotentialJobs(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, sooner, jobs[0].ID)
	assert.Equal(t, later, jobs[1].ID)

	jobs, err = m.FindPotentialJobs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, err = m.FindPotentialJobs(ctx, " ")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "translator_id", apperrors.GetField(err))
}

func TestTranslatorMatcher_CustomerLookupIsBounded(t *testing.T) {
	store := memstore.New()
	store.PutTranslator(testutil.NewTranslator("t1").Build())
	m, err := NewTranslatorMatcher(TranslatorMatcherOptions{
		Pool:         core.NewTranslatorPoolCache(core.TranslatorPoolCacheOptions{Directory: store}),
		Jobs:         store,
		Customers:    hangingDirectory{Store: store},
		StoreTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = m.FindCandidates(context.Background(), jobFromSpec("c1", testutil.NewJobSpec().Build()))
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err), "got %v", err)
}
