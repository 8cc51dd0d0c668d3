package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/memstore"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

func newSweeperFixture(t *testing.T) (*SweeperService, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	svc, err := NewSweeperService(SweeperServiceOptions{
		Jobs:   store,
		Drafts: store,
		Config: config.SweeperConfig{
			Interval:      time.Minute,
			StaleClaimAge: 15 * time.Minute,
			BatchSize:     100,
		},
	})
	require.NoError(t, err)
	return svc, store
}

func seedClaimedJob(t *testing.T, store *memstore.Store) *model.Job {
	t.Helper()

	ctx := context.Background()
	store.AddProject(&model.Project{ID: "proj-1", UserID: "user-1", DurationMinutes: 1})
	_, err := store.Create(ctx, &model.CreateJobRequest{
		ProjectID:           "proj-1",
		UserID:              "user-1",
		CostCreditsReserved: 1,
	})
	require.NoError(t, err)

	job, err := store.ClaimNext(ctx, core.ClaimNextParams{WorkerID: "dead-worker"})
	require.NoError(t, err)
	return job
}

func TestSweepRequeuesStaleClaims(t *testing.T) {
	svc, store := newSweeperFixture(t)
	ctx := context.Background()

	job := seedClaimedJob(t, store)

	// The worker vanished; move time past the stale claim age.
	store.SetClock(func() time.Time { return time.Now().Add(20 * time.Minute) })

	require.NoError(t, svc.runSweep(ctx))

	requeued := store.Job(job.ID)
	require.NotNil(t, requeued)
	assert.Equal(t, model.JobStatusQueued, requeued.Status)
	assert.Nil(t, requeued.ClaimedBy)
	assert.Equal(t, 1, requeued.RetryCount)
}

func TestSweepLeavesFreshClaimsAlone(t *testing.T) {
	svc, store := newSweeperFixture(t)
	ctx := context.Background()

	job := seedClaimedJob(t, store)

	require.NoError(t, svc.runSweep(ctx))

	current := store.Job(job.ID)
	require.NotNil(t, current)
	assert.Equal(t, model.JobStatusScripting, current.Status)
	require.NotNil(t, current.ClaimedBy)
	assert.Equal(t, "dead-worker", *current.ClaimedBy)
}

func TestSweepDeletesExpiredDrafts(t *testing.T) {
	svc, store := newSweeperFixture(t)
	ctx := context.Background()

	store.AddDraft(&model.DraftPrompt{
		Token:     "tok-expired",
		Prompt:    "space facts",
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	store.AddDraft(&model.DraftPrompt{
		Token:     "tok-live",
		Prompt:    "ocean facts",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	require.NoError(t, svc.runSweep(ctx))

	// The live draft is still claimable, the expired one is gone.
	id, err := store.Claim(ctx, core.ClaimDraftParams{Token: "tok-live", UserID: "user-1"})
	require.NoError(t, err)
	assert.NotNil(t, id)

	id, err = store.Claim(ctx, core.ClaimDraftParams{Token: "tok-expired", UserID: "user-1"})
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	svc, _ := newSweeperFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, svc.Run(ctx))
}

func TestNewSweeperServiceValidation(t *testing.T) {
	store := memstore.New()

	_, err := NewSweeperService(SweeperServiceOptions{Drafts: store})
	require.Error(t, err)

	_, err = NewSweeperService(SweeperServiceOptions{Jobs: store})
	require.Error(t, err)
}
