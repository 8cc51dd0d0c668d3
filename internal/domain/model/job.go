// Package model defines the core data types and structures used throughout the canvascast job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a video generation job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting to be claimed by a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusScripting indicates input ingest and script generation are in progress.
	JobStatusScripting JobStatus = "scripting"
	// JobStatusVoiceGen indicates narration synthesis is in progress.
	JobStatusVoiceGen JobStatus = "voice_gen"
	// JobStatusAlignment indicates word-level audio alignment is in progress.
	JobStatusAlignment JobStatus = "alignment"
	// JobStatusVisualPlanning indicates scene planning is in progress.
	JobStatusVisualPlanning JobStatus = "visual_planning"
	// JobStatusImageGen indicates per-scene image generation is in progress.
	JobStatusImageGen JobStatus = "image_gen"
	// JobStatusBuildTimeline indicates timeline assembly is in progress.
	JobStatusBuildTimeline JobStatus = "build_timeline"
	// JobStatusRendering indicates video rendering is in progress.
	JobStatusRendering JobStatus = "rendering"
	// JobStatusPackaging indicates final asset packaging is in progress.
	JobStatusPackaging JobStatus = "packaging"
	// JobStatusReady indicates the job finished successfully.
	JobStatusReady JobStatus = "ready"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoClaimableJobs is returned when no queued jobs are available for claiming.
var ErrNoClaimableJobs = errors.New("no claimable jobs")

// statusRank orders pipeline statuses for forward-progress checks.
// Terminal statuses are not ranked.
var statusRank = map[JobStatus]int{
	JobStatusQueued:         0,
	JobStatusScripting:      1,
	JobStatusVoiceGen:       2,
	JobStatusAlignment:      3,
	JobStatusVisualPlanning: 4,
	JobStatusImageGen:       5,
	JobStatusBuildTimeline:  6,
	JobStatusRendering:      7,
	JobStatusPackaging:      8,
}

// Valid returns true if the JobStatus is a known status.
func (s JobStatus) Valid() bool {
	if s == JobStatusReady || s == JobStatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal returns true for statuses that end a pipeline run.
func (s JobStatus) Terminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// Before reports whether s orders strictly before other in the pipeline.
// Terminal statuses never order before anything.
func (s JobStatus) Before(other JobStatus) bool {
	a, okA := statusRank[s]
	b, okB := statusRank[other]
	return okA && okB && a < b
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow env parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid JobStatus: %q", string(text))
}

// Job represents one video generation request and its state machine fields.
type Job struct {
	ID        string `json:"id"         db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`
	UserID    string `json:"user_id"    db:"user_id"`

	Status   JobStatus `json:"status"   db:"status"`
	Progress int       `json:"progress" db:"progress"`

	CostCreditsReserved int64  `json:"cost_credits_reserved"        db:"cost_credits_reserved"`
	CostCreditsFinal    *int64 `json:"cost_credits_final,omitempty" db:"cost_credits_final"`

	ErrorCode    *string `json:"error_code,omitempty"    db:"error_code"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	RetryCount int `json:"retry_count" db:"retry_count"`

	ClaimedBy  *string    `json:"claimed_by,omitempty"  db:"claimed_by"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"  db:"claimed_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"  db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`

	DLQAt     *time.Time `json:"dlq_at,omitempty"     db:"dlq_at"`
	DLQReason *string    `json:"dlq_reason,omitempty" db:"dlq_reason"`

	// Checkpoint holds the artifact snapshot persisted after each successful
	// step so a later step can be re-run without redoing earlier work.
	Checkpoint []byte `json:"-" db:"checkpoint"`

	// ResumeStep names the step a retried run should re-enter at. Set by the
	// single-step retry action, consumed and cleared by the runner.
	ResumeStep *string `json:"resume_step,omitempty" db:"resume_step"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Claimed reports whether a worker currently holds the job.
func (j *Job) Claimed() bool {
	return j.ClaimedBy != nil && *j.ClaimedBy != ""
}

// DeadLettered reports whether the job sits in the dead letter queue.
func (j *Job) DeadLettered() bool {
	return j.DLQAt != nil
}

// CreateJobRequest represents a request to create a new queued job.
// Credit reservation happens before the row is inserted; the reserved
// amount is recorded on the job for later finalization.
type CreateJobRequest struct {
	// ID optionally fixes the new job's id. The acceptance flow mints the
	// id up front so the credit hold can be keyed on it before the row
	// exists. Empty means the store generates one.
	ID string `json:"-"`

	ProjectID           string `json:"project_id"`
	UserID              string `json:"user_id"`
	CostCreditsReserved int64  `json:"cost_credits_reserved"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if r.CostCreditsReserved <= 0 {
		return errors.New("reserved credits must be positive")
	}
	return nil
}

// JobStats represents counts of jobs in coarse states.
type JobStats struct {
	Queued     int `json:"queued"`
	Active     int `json:"active"`
	Ready      int `json:"ready"`
	Failed     int `json:"failed"`
	DeadLetter int `json:"dead_letter"`
}

// JobStatusResponse is the polling view of a single job.
type JobStatusResponse struct {
	ID           string      `json:"id"`
	Status       JobStatus   `json:"status"`
	Progress     int         `json:"progress"`
	ErrorCode    *string     `json:"error_code,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	Events       []*JobEvent `json:"job_steps,omitempty"`
}
