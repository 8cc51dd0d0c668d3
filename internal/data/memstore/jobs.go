package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// Create inserts a new queued job.
func (s *Store) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	job := &model.Job{
		ID:                  id,
		ProjectID:           req.ProjectID,
		UserID:              req.UserID,
		Status:              model.JobStatusQueued,
		Progress:            0,
		CostCreditsReserved: req.CostCreditsReserved,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	return cloneJob(job), nil
}

// GetByID retrieves a job by its ID.
func (s *Store) GetByID(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *Store) activeCountForUser(userID string) int {
	n := 0
	for _, j := range s.jobs {
		if j.UserID == userID && !j.Status.Terminal() && j.Status != model.JobStatusQueued {
			n++
		}
	}
	return n
}

// ClaimNext claims the oldest eligible queued job for the worker.
func (s *Store) ClaimNext(_ context.Context, params core.ClaimNextParams) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if j.Status != model.JobStatusQueued || j.DeadLettered() {
			continue
		}
		if params.PerUserLimit > 0 && s.activeCountForUser(j.UserID) >= params.PerUserLimit {
			continue
		}

		now := s.now()
		worker := params.WorkerID
		j.Status = model.JobStatusScripting
		if j.Progress < 1 {
			j.Progress = 1
		}
		j.ClaimedBy = &worker
		j.ClaimedAt = &now
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
		j.ErrorCode = nil
		j.ErrorMessage = nil
		j.UpdatedAt = now
		return cloneJob(j), nil
	}
	return nil, model.ErrNoClaimableJobs
}

// AdvanceStatus persists a forward status transition with monotonic progress.
func (s *Store) AdvanceStatus(_ context.Context, params core.AdvanceStatusParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[params.JobID]
	if !ok || !j.Claimed() || j.Status.Terminal() {
		return data.ErrJobNotFound
	}
	j.Status = params.Status
	if params.Progress > j.Progress {
		j.Progress = params.Progress
	}
	j.UpdatedAt = s.now()
	return nil
}

// SaveCheckpoint persists the artifact snapshot.
func (s *Store) SaveCheckpoint(_ context.Context, jobID string, checkpoint []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return data.ErrJobNotFound
	}
	j.Checkpoint = append([]byte(nil), checkpoint...)
	j.UpdatedAt = s.now()
	return nil
}

// MarkReady finalizes a successful run.
func (s *Store) MarkReady(_ context.Context, params core.MarkReadyParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[params.JobID]
	if !ok || j.Status.Terminal() {
		return data.ErrJobNotFound
	}
	now := s.now()
	cost := params.FinalCost
	j.Status = model.JobStatusReady
	j.Progress = 100
	j.CostCreditsFinal = &cost
	j.ClaimedBy = nil
	j.ClaimedAt = nil
	j.FinishedAt = &now
	j.ResumeStep = nil
	j.ErrorCode = nil
	j.ErrorMessage = nil
	j.UpdatedAt = now
	return nil
}

// MarkFailed records a failed run and returns the post-increment retry count.
func (s *Store) MarkFailed(_ context.Context, params core.MarkFailedParams) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[params.JobID]
	if !ok || j.Status.Terminal() {
		return 0, data.ErrJobNotFound
	}
	now := s.now()
	code := params.ErrorCode
	msg := params.ErrorMessage
	j.Status = model.JobStatusFailed
	j.RetryCount++
	j.ErrorCode = &code
	j.ErrorMessage = &msg
	j.ClaimedBy = nil
	j.ClaimedAt = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return j.RetryCount, nil
}

// ScheduleResume requeues a failed job for a single-step retry.
func (s *Store) ScheduleResume(_ context.Context, params core.ResumeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[params.JobID]
	if !ok || j.Status != model.JobStatusFailed || j.DeadLettered() {
		return data.ErrJobNotRetryable
	}
	step := params.StepName
	j.Status = model.JobStatusQueued
	j.ResumeStep = &step
	j.ErrorCode = nil
	j.ErrorMessage = nil
	j.FinishedAt = nil
	j.UpdatedAt = s.now()
	return nil
}

// MoveToDeadLetter parks an exhausted job in the dead letter queue.
func (s *Store) MoveToDeadLetter(_ context.Context, params core.DeadLetterParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[params.JobID]
	if !ok || j.DeadLettered() {
		return data.ErrJobNotFound
	}
	now := s.now()
	reason := params.Reason
	j.Status = model.JobStatusFailed
	j.DLQAt = &now
	j.DLQReason = &reason
	if j.FinishedAt == nil {
		j.FinishedAt = &now
	}
	j.ClaimedBy = nil
	j.ClaimedAt = nil
	j.UpdatedAt = now
	return nil
}

// ListDeadLettered returns all dead lettered jobs, newest first.
func (s *Store) ListDeadLettered(_ context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Job
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		j := s.jobs[s.jobOrder[i]]
		if j.DeadLettered() {
			out = append(out, cloneJob(j))
		}
	}
	return out, nil
}

// RetryFromDeadLetter returns a dead lettered job to the queue.
func (s *Store) RetryFromDeadLetter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || !j.DeadLettered() {
		return data.ErrJobNotInDLQ
	}
	j.Status = model.JobStatusQueued
	j.RetryCount = 0
	j.DLQAt = nil
	j.DLQReason = nil
	j.ErrorCode = nil
	j.ErrorMessage = nil
	j.StartedAt = nil
	j.FinishedAt = nil
	j.ResumeStep = nil
	j.UpdatedAt = s.now()
	return nil
}

// RequeueStale returns orphaned claimed jobs to the queue.
func (s *Store) RequeueStale(_ context.Context, params core.RequeueStaleParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(params.OlderThanSeconds) * time.Second)
	var n int64
	for _, id := range s.jobOrder {
		if n >= int64(batchSize) {
			break
		}
		j := s.jobs[id]
		if !j.Claimed() || j.Status.Terminal() || j.Status == model.JobStatusQueued {
			continue
		}
		if !j.UpdatedAt.Before(cutoff) {
			continue
		}
		j.Status = model.JobStatusQueued
		j.RetryCount++
		j.ClaimedBy = nil
		j.ClaimedAt = nil
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

// Stats returns counts of jobs in coarse states.
func (s *Store) Stats(_ context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.JobStats
	for _, j := range s.jobs {
		switch {
		case j.DeadLettered():
			st.DeadLetter++
		case j.Status == model.JobStatusQueued:
			st.Queued++
		case j.Status == model.JobStatusReady:
			st.Ready++
		case j.Status == model.JobStatusFailed:
			st.Failed++
		default:
			st.Active++
		}
	}
	return &st, nil
}
