package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/memstore"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/pipeline"
)

func seedDeadLetteredJob(t *testing.T, store *memstore.Store) *model.Job {
	t.Helper()

	ctx := context.Background()
	job, err := store.Create(ctx, &model.CreateJobRequest{
		ProjectID:           "proj-1",
		UserID:              "user-1",
		CostCreditsReserved: 1,
	})
	require.NoError(t, err)

	for range pipeline.DefaultDeadLetterThreshold {
		_, err = store.ClaimNext(ctx, core.ClaimNextParams{WorkerID: "w-1"})
		require.NoError(t, err)
		_, err = store.MarkFailed(ctx, core.MarkFailedParams{
			JobID:        job.ID,
			ErrorCode:    "render_failed",
			ErrorMessage: "renderer crashed",
		})
		require.NoError(t, err)
		if j := store.Job(job.ID); !j.DeadLettered() && j.RetryCount < pipeline.DefaultDeadLetterThreshold {
			require.NoError(t, store.ScheduleResume(ctx, core.ResumeParams{
				JobID:    job.ID,
				StepName: pipeline.StepRenderVideo,
			}))
		}
	}

	require.NoError(t, store.MoveToDeadLetter(ctx, core.DeadLetterParams{
		JobID:  job.ID,
		Reason: "retries exhausted at step renderVideo: renderer crashed",
	}))
	return store.Job(job.ID)
}

func TestShouldDeadLetter(t *testing.T) {
	assert.False(t, ShouldDeadLetter(0))
	assert.False(t, ShouldDeadLetter(2))
	assert.True(t, ShouldDeadLetter(3))
	assert.True(t, ShouldDeadLetter(4))
}

func TestDeadLetterServiceListNewestFirst(t *testing.T) {
	store := memstore.New()
	svc, err := NewDeadLetterService(DeadLetterServiceOptions{Jobs: store})
	require.NoError(t, err)

	first := seedDeadLetteredJob(t, store)
	second := seedDeadLetteredJob(t, store)

	jobs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestDeadLetterServiceRetryRevivesJob(t *testing.T) {
	store := memstore.New()
	svc, err := NewDeadLetterService(DeadLetterServiceOptions{Jobs: store})
	require.NoError(t, err)

	parked := seedDeadLetteredJob(t, store)
	require.NotNil(t, parked.DLQAt)

	revived, err := svc.Retry(context.Background(), parked.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, revived.Status)
	assert.Zero(t, revived.RetryCount)
	assert.Nil(t, revived.DLQAt)
	assert.Nil(t, revived.DLQReason)
	assert.Nil(t, revived.ErrorCode)
}

func TestDeadLetterServiceRetryRejectsNonParkedJob(t *testing.T) {
	store := memstore.New()
	svc, err := NewDeadLetterService(DeadLetterServiceOptions{Jobs: store})
	require.NoError(t, err)

	ctx := context.Background()
	job, err := store.Create(ctx, &model.CreateJobRequest{
		ProjectID:           "proj-1",
		UserID:              "user-1",
		CostCreditsReserved: 1,
	})
	require.NoError(t, err)

	_, err = svc.Retry(ctx, job.ID)
	require.Error(t, err)

	_, err = svc.Retry(ctx, "missing")
	require.Error(t, err)
}
