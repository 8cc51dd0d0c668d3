package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	valid := []JobStatus{
		JobStatusQueued, JobStatusScripting, JobStatusVoiceGen, JobStatusAlignment,
		JobStatusVisualPlanning, JobStatusImageGen, JobStatusBuildTimeline,
		JobStatusRendering, JobStatusPackaging, JobStatusReady, JobStatusFailed,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "expected %s to be valid", s)
	}
	assert.False(t, JobStatus("pending").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusBefore(t *testing.T) {
	assert.True(t, JobStatusQueued.Before(JobStatusScripting))
	assert.True(t, JobStatusScripting.Before(JobStatusAlignment))
	assert.True(t, JobStatusVoiceGen.Before(JobStatusAlignment))
	assert.False(t, JobStatusAlignment.Before(JobStatusAlignment))
	assert.False(t, JobStatusRendering.Before(JobStatusAlignment))

	// Terminal statuses never participate in ordering.
	assert.False(t, JobStatusReady.Before(JobStatusFailed))
	assert.False(t, JobStatusQueued.Before(JobStatusReady))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusReady.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusPackaging.Terminal())
	assert.False(t, JobStatusQueued.Terminal())
}

func TestJobStatusUnmarshalText(t *testing.T) {
	var s JobStatus
	require.NoError(t, s.UnmarshalText([]byte(" Rendering ")))
	assert.Equal(t, JobStatusRendering, s)

	require.Error(t, s.UnmarshalText([]byte("done")))
}

func TestCreateJobRequestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := &CreateJobRequest{ProjectID: "p1", UserID: "u1", CostCreditsReserved: 5}
		require.NoError(t, req.Validate())
	})

	t.Run("missing project", func(t *testing.T) {
		req := &CreateJobRequest{UserID: "u1", CostCreditsReserved: 5}
		require.Error(t, req.Validate())
	})

	t.Run("missing user", func(t *testing.T) {
		req := &CreateJobRequest{ProjectID: "p1", CostCreditsReserved: 5}
		require.Error(t, req.Validate())
	})

	t.Run("zero reservation", func(t *testing.T) {
		req := &CreateJobRequest{ProjectID: "p1", UserID: "u1"}
		require.Error(t, req.Validate())
	})
}

func TestJobClaimHelpers(t *testing.T) {
	j := &Job{}
	assert.False(t, j.Claimed())
	assert.False(t, j.DeadLettered())

	worker := "worker-1"
	j.ClaimedBy = &worker
	assert.True(t, j.Claimed())

	empty := ""
	j.ClaimedBy = &empty
	assert.False(t, j.Claimed())
}
