package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/memstore"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/domain/pricing"
	"github.com/canvascast/canvascast-go/internal/pipeline"
	"github.com/canvascast/canvascast-go/internal/service"
)

func newJobHandlers(t *testing.T) (*JobHandlers, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	store.AddProject(&model.Project{
		ID:              "proj-1",
		UserID:          "user-1",
		DurationMinutes: 5,
	})

	svc := service.MustNewJobService(service.JobServiceOptions{
		Jobs:      store,
		Credits:   store,
		Projects:  store.Projects(),
		Events:    store,
		Estimator: pricing.NewEstimator(10),
	})
	return &JobHandlers{Svc: svc}, store
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestCreateJob_Success(t *testing.T) {
	h, store := newJobHandlers(t)
	_, err := store.Purchase(t.Context(), core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)

	w := postJSON(t, h.CreateJob, "/api/jobs", map[string]string{
		"project_id": "proj-1",
		"user_id":    "user-1",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var got model.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Equal(t, int64(50), got.CostCreditsReserved)
}

func TestCreateJob_InsufficientCredits(t *testing.T) {
	h, store := newJobHandlers(t)

	w := postJSON(t, h.CreateJob, "/api/jobs", map[string]string{
		"project_id": "proj-1",
		"user_id":    "user-1",
	})

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "insufficient_credits", body["error"])

	stats, err := store.Stats(t.Context())
	require.NoError(t, err)
	assert.Zero(t, stats.Queued)
}

func TestCreateJob_UnknownProject(t *testing.T) {
	h, _ := newJobHandlers(t)

	w := postJSON(t, h.CreateJob, "/api/jobs", map[string]string{
		"project_id": "missing",
		"user_id":    "user-1",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	h, _ := newJobHandlers(t)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString("{bad"))
	w := httptest.NewRecorder()
	h.CreateJob(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateJob_MissingFields(t *testing.T) {
	h, _ := newJobHandlers(t)

	w := postJSON(t, h.CreateJob, "/api/jobs", map[string]string{"project_id": "proj-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus_Success(t *testing.T) {
	h, store := newJobHandlers(t)
	_, err := store.Purchase(t.Context(), core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)

	created := postJSON(t, h.CreateJob, "/api/jobs", map[string]string{
		"project_id": "proj-1",
		"user_id":    "user-1",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	var job model.Job
	require.NoError(t, json.NewDecoder(created.Body).Decode(&job))

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
	r.SetPathValue("id", job.ID)
	w := httptest.NewRecorder()
	h.GetStatus(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var view service.StatusView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	assert.Equal(t, job.ID, view.Job.ID)
}

func TestGetStatus_NotFound(t *testing.T) {
	h, _ := newJobHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	r.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	h.GetStatus(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryStep_RejectsEarlyStep(t *testing.T) {
	h, _ := newJobHandlers(t)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/retry-step",
		bytes.NewBufferString(`{"step_name":"generateScript"}`))
	r.SetPathValue("id", "job-1")
	w := httptest.NewRecorder()
	h.RetryStep(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "step_not_retryable", body["error"])
}

func TestRetryStep_Success(t *testing.T) {
	h, store := newJobHandlers(t)
	ctx := t.Context()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	job, err := h.Svc.Create(ctx, service.CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	_, err = store.ClaimNext(ctx, core.ClaimNextParams{WorkerID: "w-1"})
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, core.MarkFailedParams{
		JobID:        job.ID,
		ErrorCode:    "render_failed",
		ErrorMessage: "renderer crashed",
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/retry-step",
		bytes.NewBufferString(`{"step_name":"`+pipeline.StepRenderVideo+`"}`))
	r.SetPathValue("id", job.ID)
	w := httptest.NewRecorder()
	h.RetryStep(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got model.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, model.JobStatusQueued, got.Status)
}

func TestRetryStep_ConflictWhenNotFailed(t *testing.T) {
	h, store := newJobHandlers(t)
	ctx := t.Context()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)
	job, err := h.Svc.Create(ctx, service.CreateJobParams{ProjectID: "proj-1", UserID: "user-1"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/retry-step",
		bytes.NewBufferString(`{"step_name":"`+pipeline.StepRenderVideo+`"}`))
	r.SetPathValue("id", job.ID)
	w := httptest.NewRecorder()
	h.RetryStep(w, r)

	require.Equal(t, http.StatusConflict, w.Code)
}
