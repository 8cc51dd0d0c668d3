package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/memstore"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/domain/pricing"
	"github.com/canvascast/canvascast-go/internal/mocks"
	"github.com/canvascast/canvascast-go/internal/pipeline"
)

func newJobFixture(t *testing.T) (*JobService, *memstore.Store, *memstore.Cache) {
	t.Helper()

	store := memstore.New()
	store.AddProject(&model.Project{
		ID:              "proj-1",
		UserID:          "user-1",
		DurationMinutes: 5,
		Prompt:          "deep sea creatures",
	})

	cache := memstore.NewCache()
	svc := MustNewJobService(JobServiceOptions{
		Jobs:      store,
		Credits:   store,
		Projects:  store.Projects(),
		Events:    store,
		Estimator: pricing.NewEstimator(10),
		Cache:     cache,
	})
	return svc, store, cache
}

func TestJobServiceCreateReservesThenCreates(t *testing.T) {
	svc, store, _ := newJobFixture(t)
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)

	job, err := svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, int64(50), job.CostCreditsReserved)

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	entries, err := store.EntriesForJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerEntryReserve, entries[0].EntryType)
}

func TestJobServiceCreateInsufficientBalanceCreatesNoJob(t *testing.T) {
	svc, store, _ := newJobFixture(t)
	ctx := context.Background()

	// 5 minutes at 10 credits/minute needs 50; the user has 10.
	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 10})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.ErrorIs(t, err, ErrInsufficientCredits)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Queued, "no job row may exist after a declined reservation")

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "declined reservation must not touch the balance")
}

func TestJobServiceCreateRejectsForeignProject(t *testing.T) {
	svc, store, _ := newJobFixture(t)
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-2", Amount: 100})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-2"})
	require.Error(t, err)

	balance, err := store.GetBalance(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestJobServiceCreateUnknownProject(t *testing.T) {
	svc, _, _ := newJobFixture(t)

	_, err := svc.Create(context.Background(), CreateJobParams{ProjectID: "missing", UserID: "user-1"})
	require.Error(t, err)
}

func TestJobServiceStatusCachesView(t *testing.T) {
	svc, store, cache := newJobFixture(t)
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	job, err := svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	first, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, first.Job.Status)

	// Mutate the underlying row; the cached view must win within the TTL.
	_, err = store.ClaimNext(ctx, core.ClaimNextParams{WorkerID: "w-1"})
	require.NoError(t, err)

	second, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, second.Job.Status)
	assert.Equal(t, first.CachedAt, second.CachedAt)

	// After invalidation the fresh state is visible.
	_, err = cache.Delete(ctx, "job:status:"+job.ID)
	require.NoError(t, err)

	third, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusScripting, third.Job.Status)
}

func TestJobServiceStatusToleratesCorruptCacheEntry(t *testing.T) {
	svc, store, cache := newJobFixture(t)
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	job, err := svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "job:status:"+job.ID, []byte("{not json"), 30))

	view, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, view.Job.ID)
}

func TestJobServiceRetryStepValidation(t *testing.T) {
	svc, store, _ := newJobFixture(t)
	ctx := context.Background()

	_, err := svc.RetryStep(ctx, "any", pipeline.StepGenerateScript)
	require.ErrorIs(t, err, ErrStepNotRetryable)

	_, err = svc.RetryStep(ctx, "any", "")
	require.ErrorIs(t, err, ErrStepNotRetryable)

	// A retryable step on a job that is not failed is rejected by the store.
	_, err = store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	job, err := svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	_, err = svc.RetryStep(ctx, job.ID, pipeline.StepRenderVideo)
	require.Error(t, err)
}

func TestJobServiceRetryStepSchedulesResume(t *testing.T) {
	svc, store, cache := newJobFixture(t)
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	job, err := svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	// Prime the cache, then fail the job so a retry is legal.
	_, err = svc.Status(ctx, job.ID)
	require.NoError(t, err)

	_, err = store.ClaimNext(ctx, core.ClaimNextParams{WorkerID: "w-1"})
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, core.MarkFailedParams{
		JobID:        job.ID,
		ErrorCode:    "render_failed",
		ErrorMessage: "renderer crashed",
	})
	require.NoError(t, err)

	updated, err := svc.RetryStep(ctx, job.ID, pipeline.StepRenderVideo)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, updated.Status)
	require.NotNil(t, updated.ResumeStep)
	assert.Equal(t, pipeline.StepRenderVideo, *updated.ResumeStep)

	// The stale cached view was dropped.
	cached, err := cache.Get(ctx, "job:status:"+job.ID)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestJobServiceStatusToleratesCacheOutage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memstore.New()
	store.AddProject(&model.Project{ID: "proj-1", UserID: "user-1", DurationMinutes: 1})

	mockCache := mocks.NewMockCacheRepository(ctrl)
	mockCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	mockCache.EXPECT().
		Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("redis down"))

	svc := MustNewJobService(JobServiceOptions{
		Jobs:      store,
		Credits:   store,
		Projects:  store.Projects(),
		Events:    store,
		Estimator: pricing.NewEstimator(1),
		Cache:     mockCache,
	})

	ctx := context.Background()
	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 10})
	require.NoError(t, err)
	job, err := svc.Create(ctx, CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	// A broken cache degrades to direct store reads, never to an error.
	view, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, view.Job.ID)
}

func TestNewJobServiceValidation(t *testing.T) {
	store := memstore.New()

	_, err := NewJobService(JobServiceOptions{})
	require.Error(t, err)

	_, err = NewJobService(JobServiceOptions{
		Jobs:     store,
		Credits:  store,
		Projects: store.Projects(),
		Events:   store,
	})
	require.ErrorContains(t, err, "Estimator")
}
