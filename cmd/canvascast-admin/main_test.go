package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func TestPrintDeadLetterTableEmptyQueue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDeadLetterTable(&buf, nil))
	require.Contains(t, buf.String(), "dead letter queue is empty")
}

func TestPrintDeadLetterTableRendersRows(t *testing.T) {
	parkedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reason := "retry budget exhausted"
	jobs := []*model.Job{
		{
			ID:         "job-1",
			ProjectID:  "proj-1",
			UserID:     "user-1",
			RetryCount: 3,
			DLQAt:      &parkedAt,
			DLQReason:  &reason,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printDeadLetterTable(&buf, jobs))

	out := buf.String()
	require.Contains(t, out, "JOB")
	require.Contains(t, out, "job-1")
	require.Contains(t, out, "2025-06-01T12:00:00Z")
	require.Contains(t, out, "retry budget exhausted")
}

func TestPrintJobDetailIncludesErrorAndEvents(t *testing.T) {
	errCode := "provider_unreachable"
	errMsg := "render provider timed out"
	job := &model.Job{
		ID:                  "job-9",
		ProjectID:           "proj-9",
		UserID:              "user-9",
		Status:              model.JobStatusFailed,
		Progress:            80,
		CostCreditsReserved: 50,
		ErrorCode:           &errCode,
		ErrorMessage:        &errMsg,
	}
	events := []*model.JobEvent{
		{
			JobID:     "job-9",
			Stage:     "renderVideo",
			Message:   "step failed",
			CreatedAt: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printJobDetail(&buf, job, events))

	out := buf.String()
	require.Contains(t, out, "Status:   failed (progress 80%)")
	require.Contains(t, out, "provider_unreachable")
	require.Contains(t, out, "renderVideo")
}

func TestPrintJobDetailNoEvents(t *testing.T) {
	job := &model.Job{
		ID:        "job-2",
		ProjectID: "proj-2",
		UserID:    "user-2",
		Status:    model.JobStatusQueued,
	}

	var buf bytes.Buffer
	require.NoError(t, printJobDetail(&buf, job, nil))
	require.Contains(t, buf.String(), "(no events recorded)")
}
