package core

import (
	"context"
	"encoding/json"

	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// ClaimNextParams groups parameters for JobStore.ClaimNext to keep param count ≤3.
type ClaimNextParams struct {
	// WorkerID identifies the claiming worker; stored in claimed_by.
	WorkerID string
	// PerUserLimit caps simultaneously active jobs per user, enforced at
	// claim time. Zero or negative disables the cap.
	PerUserLimit int
}

// AdvanceStatusParams groups parameters for JobStore.AdvanceStatus.
type AdvanceStatusParams struct {
	JobID    string
	Status   model.JobStatus
	Progress int
}

// MarkReadyParams groups parameters for JobStore.MarkReady.
type MarkReadyParams struct {
	JobID     string
	FinalCost int64
}

// MarkFailedParams groups parameters for JobStore.MarkFailed.
type MarkFailedParams struct {
	JobID        string
	ErrorCode    string
	ErrorMessage string
}

// DeadLetterParams groups parameters for JobStore.MoveToDeadLetter.
type DeadLetterParams struct {
	JobID  string
	Reason string
}

// RequeueStaleParams groups parameters for JobStore.RequeueStale.
type RequeueStaleParams struct {
	// OlderThanSeconds is the claim age beyond which a non-terminal job is
	// considered orphaned by a dead worker.
	OlderThanSeconds int
	BatchSize        int
}

// ResumeParams groups parameters for JobStore.ScheduleResume.
type ResumeParams struct {
	JobID    string
	StepName string
}

// JobStore defines the interface for job data operations.
type JobStore interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)

	// ClaimNext atomically claims one queued job for the worker, moving it
	// into its first (or resume) pipeline status. Returns
	// model.ErrNoClaimableJobs when nothing is eligible.
	ClaimNext(ctx context.Context, params ClaimNextParams) (*model.Job, error)

	// AdvanceStatus persists a forward status transition. Progress is
	// monotonic: the stored value never decreases within a run.
	AdvanceStatus(ctx context.Context, params AdvanceStatusParams) error

	// SaveCheckpoint persists the artifact snapshot for retry-from-checkpoint.
	SaveCheckpoint(ctx context.Context, jobID string, checkpoint []byte) error

	// MarkReady finalizes a successful run: status ready, progress 100,
	// final cost recorded, claim released.
	MarkReady(ctx context.Context, params MarkReadyParams) error

	// MarkFailed records a failed run and increments the retry count.
	// It returns the retry count after the increment so the caller can apply
	// the dead-letter threshold.
	MarkFailed(ctx context.Context, params MarkFailedParams) (int, error)

	// ScheduleResume requeues a failed job to re-enter the pipeline at the
	// named step, preserving the checkpointed artifacts.
	ScheduleResume(ctx context.Context, params ResumeParams) error

	MoveToDeadLetter(ctx context.Context, params DeadLetterParams) error
	ListDeadLettered(ctx context.Context) ([]*model.Job, error)
	RetryFromDeadLetter(ctx context.Context, id string) error

	// RequeueStale returns orphaned claimed jobs to the queue and increments
	// their retry counts. Returns the number of jobs requeued.
	RequeueStale(ctx context.Context, params RequeueStaleParams) (int64, error)

	Stats(ctx context.Context) (*model.JobStats, error)
}

// ReserveCreditsParams groups parameters for CreditStore.Reserve.
type ReserveCreditsParams struct {
	UserID string
	JobID  string
	Amount int64
}

// FinalizeCreditsParams groups parameters for CreditStore.Finalize.
type FinalizeCreditsParams struct {
	UserID    string
	JobID     string
	FinalCost int64
}

// PurchaseCreditsParams groups parameters for CreditStore.Purchase.
type PurchaseCreditsParams struct {
	UserID string
	Amount int64
	Note   string
}

// CreditStore defines the interface for credit ledger operations. Every
// method is atomic with respect to concurrent callers for the same user.
type CreditStore interface {
	// GetBalance sums all ledger entries for the user; unknown users have
	// balance zero.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// Reserve atomically places a hold: if the balance covers the amount it
	// inserts a reserve entry and returns true, otherwise it makes no change
	// and returns false. Two concurrent reservations can never overdraw.
	Reserve(ctx context.Context, params ReserveCreditsParams) (bool, error)

	// Finalize converts the job's reserve entry into a usage charge,
	// refunding any unused remainder. A missing reservation is a silent
	// no-op; costs above the reservation are clamped to it.
	Finalize(ctx context.Context, params FinalizeCreditsParams) error

	// Release deletes the job's reserve entry, restoring the balance to its
	// pre-reservation value. Idempotent: releasing an unknown job is a no-op.
	Release(ctx context.Context, jobID string) error

	// Purchase appends a positive entry; this is what billing webhooks map into.
	Purchase(ctx context.Context, params PurchaseCreditsParams) (*model.LedgerEntry, error)

	EntriesForUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error)
	EntriesForJob(ctx context.Context, jobID string) ([]*model.LedgerEntry, error)
}

// ProjectStore defines the interface for project data the pipeline reads.
type ProjectStore interface {
	GetByID(ctx context.Context, id string) (*model.Project, error)

	// SetTimelinePath writes the pipeline's timeline output path back onto
	// the project row; the only project mutation the core performs.
	SetTimelinePath(ctx context.Context, projectID, path string) error
}

// AppendJobEventParams groups parameters for JobEventStore.Append.
type AppendJobEventParams struct {
	JobID    string
	Stage    string
	Message  string
	Metadata json.RawMessage
}

// JobEventStore defines the interface for the append-only job transition log.
type JobEventStore interface {
	Append(ctx context.Context, params AppendJobEventParams) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*model.JobEvent, error)
}

// ClaimDraftParams groups parameters for DraftStore.Claim.
type ClaimDraftParams struct {
	Token  string
	UserID string
}

// DraftStore defines the interface for anonymous draft prompt operations.
type DraftStore interface {
	// Claim atomically assigns an unclaimed, unexpired draft to the user and
	// returns its id; returns nil when the token matches nothing claimable.
	Claim(ctx context.Context, params ClaimDraftParams) (*string, error)

	// CleanupExpired deletes expired unclaimed drafts and returns the count.
	CleanupExpired(ctx context.Context, batchSize int) (int64, error)
}

// CacheRepository defines the interface for the short-TTL read cache in
// front of the job status polling endpoint.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) (bool, error)
}
