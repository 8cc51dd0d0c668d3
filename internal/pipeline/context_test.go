package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/internal/domain/model"
)

func newTestContext() *Context {
	job := &model.Job{ID: "job-9", ProjectID: "proj-9", UserID: "user-9"}
	project := &model.Project{ID: "proj-9", UserID: "user-9", Prompt: "test"}
	return NewContext(job, project)
}

func TestContextPaths(t *testing.T) {
	pc := newTestContext()
	assert.Equal(t, "project-assets/u_user-9/p_proj-9/j_job-9", pc.BasePath)
	assert.Equal(t, "project-outputs/u_user-9/p_proj-9/j_job-9", pc.OutputPath)
}

func TestContextArtifactLifecycle(t *testing.T) {
	pc := newTestContext()
	assert.Equal(t, 0, pc.ArtifactCount())
	assert.False(t, pc.HasArtifact(ArtifactScript))

	pc.AddArtifact(ArtifactScript, "hello world")
	pc.AddArtifact(ArtifactNarrationDurationMs, 1234)
	assert.Equal(t, 2, pc.ArtifactCount())

	got, ok := pc.GetArtifact(ArtifactScript)
	require.True(t, ok)
	assert.Equal(t, "hello world", got)

	pc.RemoveArtifact(ArtifactScript)
	assert.False(t, pc.HasArtifact(ArtifactScript))
	assert.Equal(t, 1, pc.ArtifactCount())

	pc.ClearArtifacts()
	assert.Equal(t, 0, pc.ArtifactCount())
}

func TestContextTypedAccessors(t *testing.T) {
	pc := newTestContext()
	pc.AddArtifact(ArtifactScript, "a script")
	pc.AddArtifact(ArtifactNarrationDurationMs, 5000)
	pc.AddArtifact(ArtifactImagePaths, []string{"a.png", "b.png"})

	assert.Equal(t, "a script", pc.StringArtifact(ArtifactScript))
	assert.Equal(t, 5000, pc.IntArtifact(ArtifactNarrationDurationMs))
	assert.Equal(t, []string{"a.png", "b.png"}, pc.StringSliceArtifact(ArtifactImagePaths))

	// Missing or mistyped keys yield zero values, not panics.
	assert.Equal(t, "", pc.StringArtifact(ArtifactOutline))
	assert.Equal(t, 0, pc.IntArtifact(ArtifactOutline))
	assert.Nil(t, pc.StringSliceArtifact(ArtifactOutline))
	assert.Equal(t, "", pc.StringArtifact(ArtifactNarrationDurationMs))
}

func TestContextSnapshotRestore(t *testing.T) {
	pc := newTestContext()
	pc.AddArtifact(ArtifactScript, "a script")
	pc.AddArtifact(ArtifactNarrationDurationMs, 5000)
	pc.AddArtifact(ArtifactImagePaths, []string{"a.png", "b.png"})

	snapshot, err := pc.Snapshot()
	require.NoError(t, err)

	restored := newTestContext()
	require.NoError(t, restored.Restore(snapshot))

	assert.Equal(t, "a script", restored.StringArtifact(ArtifactScript))
	// JSON numbers come back as float64; IntArtifact converts them.
	assert.Equal(t, 5000, restored.IntArtifact(ArtifactNarrationDurationMs))
	// JSON arrays come back as []any; StringSliceArtifact converts them.
	assert.Equal(t, []string{"a.png", "b.png"}, restored.StringSliceArtifact(ArtifactImagePaths))
}

func TestContextRestoreEmptySnapshot(t *testing.T) {
	pc := newTestContext()
	pc.AddArtifact(ArtifactScript, "stale")

	require.NoError(t, pc.Restore(nil))
	assert.Equal(t, 0, pc.ArtifactCount())

	pc.AddArtifact(ArtifactScript, "stale again")
	require.NoError(t, pc.Restore([]byte(`{}`)))
	assert.Equal(t, 0, pc.ArtifactCount())
}
