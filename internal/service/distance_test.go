package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/observability/metrics"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
	"github.com/dtapi/booking-engine/internal/testutil"
)

func newReconciler(t *testing.T) (*DistanceReconciler, *memstore.Store, *model.Job, *statsd.Recorder) {
	t.Helper()
	store := memstore.New()
	store.PutCustomer(testutil.NewCustomer("c1"))
	job, err := store.Create(context.Background(), jobFromSpec("c1", testutil.NewJobSpec().Build()))
	require.NoError(t, err)

	rec := &statsd.Recorder{}
	r, err := NewDistanceReconciler(DistanceReconcilerOptions{Jobs: store, Distances: store, Metrics: rec})
	require.NoError(t, err)
	return r, store, job, rec
}

func TestDistanceReconciler_TimeOnlyFeedKeepsDistance(t *testing.T) {
	r, store, job, _ := newReconciler(t)
	ctx := context.Background()

	_, err := r.ApplyFeed(ctx, model.DistanceFeed{JobID: job.ID, Distance: testutil.StringPtr("12 km"), Time: testutil.StringPtr("30")})
	require.NoError(t, err)

	res, err := r.ApplyFeed(ctx, model.DistanceFeed{JobID: job.ID, Time: testutil.StringPtr("45")})
	require.NoError(t, err)
	assert.True(t, res.DistanceUpdated)
	assert.False(t, res.AdminUpdated)
	require.NotNil(t, res.Distance)
	assert.Equal(t, "12 km", res.Distance.Distance)
	assert.Equal(t, "45", res.Distance.Time)

	// No admin input: admin fields and version untouched.
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Version, got.Version)
	assert.Empty(t, got.AdminComments)
}

func TestDistanceReconciler_FlaggedNeedsComment(t *testing.T) {
	tests := []struct {
		name        string
		flagged     *bool
		comment     *string
		wantFlagged bool
	}{
		{name: "flagged with comment", flagged: testutil.BoolPtr(true), comment: testutil.StringPtr("late"), wantFlagged: true},
		{name: "flagged without comment", flagged: testutil.BoolPtr(true), wantFlagged: false},
		{name: "flagged with blank comment", flagged: testutil.BoolPtr(true), comment: testutil.StringPtr("  "), wantFlagged: false},
		{name: "comment without flag", comment: testutil.StringPtr("late"), wantFlagged: false},
		{name: "flag false with comment", flagged: testutil.BoolPtr(false), comment: testutil.StringPtr("late"), wantFlagged: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, job, _ := newReconciler(t)
			ctx := context.Background()

			res, err := r.ApplyFeed(ctx, model.DistanceFeed{JobID: job.ID, Flagged: tt.flagged, AdminComment: tt.comment})
			require.NoError(t, err)
			assert.True(t, res.AdminUpdated)
			assert.False(t, res.DistanceUpdated)

			got, err := store.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlagged, got.Flagged)
			assert.Equal(t, model.YesNo(tt.wantFlagged), model.YesNo(got.Flagged))
			assert.Equal(t, job.Status, got.Status)
		})
	}
}

func TestDistanceReconciler_LegacyFeed(t *testing.T) {
	r, store, job, rec := newReconciler(t)
	ctx := context.Background()

	feed := model.ParseDistanceFeed(map[string]string{
		"jobid":            job.ID,
		"distance":         "7",
		"time":             "",
		"session_time":     "50",
		"flagged":          "true",
		"admincomment":     "needs review",
		"manually_handled": "false",
		"by_admin":         "true",
	})
	res, err := r.ApplyFeed(ctx, feed)
	require.NoError(t, err)
	assert.True(t, res.DistanceUpdated)
	assert.True(t, res.AdminUpdated)
	assert.Equal(t, "7", res.Distance.Distance)
	assert.Empty(t, res.Distance.Time)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Flagged)
	assert.True(t, got.ByAdmin)
	assert.False(t, got.ManuallyHandled)
	assert.Equal(t, "50", got.SessionTime)
	assert.Equal(t, "needs review", got.AdminComments)

	assert.InDelta(t, 1, rec.Sum(metrics.FeedCount, map[string]string{"part": "distance", "result": "success"}), 0.001)
	assert.InDelta(t, 1, rec.Sum(metrics.FeedCount, map[string]string{"part": "admin", "result": "success"}), 0.001)
}

func TestDistanceReconciler_EmptyFeedWritesNothing(t *testing.T) {
	r, store, job, _ := newReconciler(t)

	res, err := r.ApplyFeed(context.Background(), model.DistanceFeed{JobID: job.ID, Distance: testutil.StringPtr(""), AdminComment: testutil.StringPtr("")})
	require.NoError(t, err)
	assert.False(t, res.DistanceUpdated)
	assert.False(t, res.AdminUpdated)

	_, err = store.GetDistance(context.Background(), job.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDistanceReconciler_Validation(t *testing.T) {
	r, _, _, _ := newReconciler(t)

	_, err := r.ApplyFeed(context.Background(), model.DistanceFeed{JobID: " "})
	assert.Equal(t, "job_id", apperrors.GetField(err))

	_, err = r.ApplyFeed(context.Background(), model.DistanceFeed{JobID: "missing", Time: testutil.StringPtr("1")})
	assert.True(t, apperrors.IsNotFound(err))
}

// failingDistances fails every distance write.
type failingDistances struct {
	*memstore.Store
}

func (failingDistances) UpsertDistance(context.Context, string, model.DistanceUpdate) (*model.Distance, error) {
	return nil, errors.New("distance table locked")
}

func TestDistanceReconciler_IndependentFailureDomains(t *testing.T) {
	_, store, job, _ := newReconciler(t)
	rec := &statsd.Recorder{}
	r, err := NewDistanceReconciler(DistanceReconcilerOptions{
		Jobs:      store,
		Distances: failingDistances{Store: store},
		Metrics:   rec,
	})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := r.ApplyFeed(ctx, model.DistanceFeed{
		JobID:        job.ID,
		Distance:     testutil.StringPtr("3"),
		AdminComment: testutil.StringPtr("checked"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update distance")
	require.NotNil(t, res)
	assert.False(t, res.DistanceUpdated)
	assert.Equal(t, "distance table locked", res.DistanceError)
	assert.True(t, res.AdminUpdated, "admin write still happens")

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "checked", got.AdminComments)
	assert.InDelta(t, 1, rec.Sum(metrics.FeedCount, map[string]string{"part": "distance", "result": "error"}), 0.001)
}
