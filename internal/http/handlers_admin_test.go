package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/memstore"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/service"
)

func newAdminHandlers(t *testing.T) (*AdminHandlers, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	dlq, err := service.NewDeadLetterService(service.DeadLetterServiceOptions{Jobs: store})
	require.NoError(t, err)
	credits, err := service.NewCreditService(service.CreditServiceOptions{Credits: store})
	require.NoError(t, err)
	return &AdminHandlers{DeadLetter: dlq, Credits: credits}, store
}

func parkJob(t *testing.T, store *memstore.Store) *model.Job {
	t.Helper()

	ctx := t.Context()
	job, err := store.Create(ctx, &model.CreateJobRequest{
		ProjectID:           "proj-1",
		UserID:              "user-1",
		CostCreditsReserved: 5,
	})
	require.NoError(t, err)

	_, err = store.ClaimNext(ctx, core.ClaimNextParams{WorkerID: "w-1"})
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, core.MarkFailedParams{
		JobID:        job.ID,
		ErrorCode:    "render_failed",
		ErrorMessage: "renderer crashed",
	})
	require.NoError(t, err)
	require.NoError(t, store.MoveToDeadLetter(ctx, core.DeadLetterParams{
		JobID:  job.ID,
		Reason: "retries exhausted",
	}))
	return store.Job(job.ID)
}

func TestListDeadLettered_Empty(t *testing.T) {
	h, _ := newAdminHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/api/admin/dlq", nil)
	w := httptest.NewRecorder()
	h.ListDeadLettered(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListDeadLettered_ReturnsParkedJobs(t *testing.T) {
	h, store := newAdminHandlers(t)
	parked := parkJob(t, store)

	r := httptest.NewRequest(http.MethodGet, "/api/admin/dlq", nil)
	w := httptest.NewRecorder()
	h.ListDeadLettered(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var jobs []*model.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, parked.ID, jobs[0].ID)
	assert.NotNil(t, jobs[0].DLQAt)
}

func TestRetryDeadLettered_Success(t *testing.T) {
	h, store := newAdminHandlers(t)
	parked := parkJob(t, store)

	r := httptest.NewRequest(http.MethodPost, "/api/admin/dlq/"+parked.ID+"/retry", nil)
	r.SetPathValue("id", parked.ID)
	w := httptest.NewRecorder()
	h.RetryDeadLettered(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got model.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Nil(t, got.DLQAt)
}

func TestRetryDeadLettered_Conflict(t *testing.T) {
	h, store := newAdminHandlers(t)

	job, err := store.Create(t.Context(), &model.CreateJobRequest{
		ProjectID:           "proj-1",
		UserID:              "user-1",
		CostCreditsReserved: 5,
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/admin/dlq/"+job.ID+"/retry", nil)
	r.SetPathValue("id", job.ID)
	w := httptest.NewRecorder()
	h.RetryDeadLettered(w, r)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestJobLedger_ReturnsEntriesOldestFirst(t *testing.T) {
	h, store := newAdminHandlers(t)
	ctx := t.Context()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	ok, err := store.Reserve(ctx, core.ReserveCreditsParams{UserID: "user-1", JobID: "job-1", Amount: 40})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Finalize(ctx, core.FinalizeCreditsParams{UserID: "user-1", JobID: "job-1", FinalCost: 25}))

	r := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/job-1/ledger", nil)
	r.SetPathValue("id", "job-1")
	w := httptest.NewRecorder()
	h.JobLedger(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var entries []*model.LedgerEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, model.LedgerEntryUsage, entries[0].EntryType)
	assert.Equal(t, model.LedgerEntryRefund, entries[1].EntryType)
}

func TestJobLedger_EmptyForUnknownJob(t *testing.T) {
	h, _ := newAdminHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/missing/ledger", nil)
	r.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	h.JobLedger(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
