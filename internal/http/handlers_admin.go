package httpx

import (
	"errors"
	"net/http"

	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/service"
)

// AdminHandlers provides the operator endpoints: dead letter queue
// inspection and revival, and per-job ledger reconstruction.
type AdminHandlers struct {
	DeadLetter *service.DeadLetterService
	Credits    *service.CreditService
}

// ListDeadLettered returns the dead letter queue contents, newest first.
func (h *AdminHandlers) ListDeadLettered(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.DeadLetter.List(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "dlq_list_failed", Err: err})
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// RetryDeadLettered pulls a job out of the dead letter queue.
func (h *AdminHandlers) RetryDeadLettered(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	job, err := h.DeadLetter.Retry(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotInDLQ) {
			WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "job_not_in_dlq", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "dlq_retry_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// JobLedger returns every ledger entry tied to a job, oldest first.
func (h *AdminHandlers) JobLedger(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	entries, err := h.Credits.EntriesForJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "ledger_failed", Err: err})
		return
	}
	if entries == nil {
		entries = []*model.LedgerEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}
