// Package httpx provides the HTTP API for the canvascast job system.
package httpx

import (
	"errors"
	"net/http"

	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc *service.JobService
}

// CreateJob accepts a generation request. The reservation is placed before
// the job row exists, so an insufficient balance answers 402 with no job.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
		UserID    string `json:"user_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == "" || req.UserID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_request",
			Err:     errors.New("project_id and user_id are required"),
		})
		return
	}

	job, err := h.Svc.Create(r.Context(), service.CreateJobParams{
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientCredits):
			WriteError(w, ErrorParams{Code: http.StatusPaymentRequired, ErrCode: "insufficient_credits", Err: err})
		case errors.Is(err, data.ErrProjectNotFound):
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "project_not_found", Err: err})
		default:
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "create_failed", Err: err})
		}
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetStatus returns the job state plus its recent transition events.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	view, err := h.Svc.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("job not found")})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_status_failed", Err: errors.New("failed to get job status")})
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// RetryStep schedules a failed job to re-enter the pipeline at the named step.
func (h *JobHandlers) RetryStep(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	var body struct {
		StepName string `json:"step_name"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	job, err := h.Svc.RetryStep(r.Context(), jobID, body.StepName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStepNotRetryable):
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "step_not_retryable", Err: err})
		case errors.Is(err, data.ErrJobNotRetryable):
			WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "job_not_retryable", Err: err})
		case errors.Is(err, data.ErrJobNotFound):
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: err})
		default:
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "retry_step_failed", Err: err})
		}
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Stats returns queue depth counts.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
