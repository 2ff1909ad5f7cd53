package reoffer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/data"
	"github.com/dtapi/booking-engine/internal/data/memstore"
	"github.com/dtapi/booking-engine/internal/domain/booking"
	"github.com/dtapi/booking-engine/internal/domain/model"
	"github.com/dtapi/booking-engine/internal/testutil"
)

type countingAssigner struct{ calls atomic.Int32 }

func (a *countingAssigner) Assign(_ context.Context, _ string) (*model.Job, error) {
	a.calls.Add(1)
	return nil, nil
}

func TestNewRunner_Validation(t *testing.T) {
	policy, err := booking.NewOfferPolicy(time.Minute)
	require.NoError(t, err)

	_, err = NewRunner(RunnerOptions{Assigner: &countingAssigner{}, Policy: policy})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: memstore.New(), Policy: policy})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: memstore.New(), Assigner: &countingAssigner{}})
	require.Error(t, err, "missing policy surfaces from the sweeper")
}

func TestRunner_SweepsDueOffers(t *testing.T) {
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	store := memstore.New().WithClock(clock)
	store.PutCustomer(testutil.NewCustomer("c1"))

	offeredAt := clock.Now().Add(-time.Hour)
	job := &model.Job{
		CustomerID: "c1",
		Status:     model.JobStatusOffered,
		Candidates: []string{"t1"},
		OfferedAt:  &offeredAt,
		OfferRound: 1,
	}
	spec := testutil.NewJobSpec().Build()
	job.FromLanguage, job.ToLanguage, job.DueAt, job.DurationMinutes = spec.FromLanguage, spec.ToLanguage, spec.DueAt, spec.DurationMinutes
	_, err := store.Create(context.Background(), job)
	require.NoError(t, err)

	policy, err := booking.NewOfferPolicy(10 * time.Minute)
	require.NoError(t, err)
	assigner := &countingAssigner{}

	r, err := NewRunner(RunnerOptions{
		Jobs:     store,
		Assigner: assigner,
		Policy:   policy,
		Config:   config.ReofferConfig{Interval: time.Second, BatchSize: 10, Concurrency: 1},
		Clock:    clock,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return assigner.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
