// Package pipeline implements the video generation pipeline: the per-job
// context and artifact bag, the nine steps, and the runner that sequences
// them through the job status state machine.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// ArtifactKey names one intermediate output in the fixed artifact schema.
type ArtifactKey string

// Artifact keys, in rough production order.
const (
	ArtifactMergedInputText     ArtifactKey = "mergedInputText"
	ArtifactOutline             ArtifactKey = "outline"
	ArtifactScript              ArtifactKey = "script"
	ArtifactNarrationPath       ArtifactKey = "narrationPath"
	ArtifactNarrationDurationMs ArtifactKey = "narrationDurationMs"
	ArtifactWords               ArtifactKey = "words"
	ArtifactSegments            ArtifactKey = "segments"
	ArtifactCaptionsSrtPath     ArtifactKey = "captionsSrtPath"
	ArtifactVisualPlan          ArtifactKey = "visualPlan"
	ArtifactImagePaths          ArtifactKey = "imagePaths"
	ArtifactTimeline            ArtifactKey = "timeline"
	ArtifactTimelinePath        ArtifactKey = "timelinePath"
	ArtifactVideoPath           ArtifactKey = "videoPath"
	ArtifactZipPath             ArtifactKey = "zipPath"
)

// Context is the per-job aggregate owned by the runner for the duration of
// one pipeline execution. Artifacts are additive during a forward run;
// overwriting a key is allowed and expected during checkpoint replay. The
// context is process-local and never shared across goroutines.
type Context struct {
	Job     *model.Job
	Project *model.Project

	// BasePath is the durable storage prefix for input and intermediate
	// assets; OutputPath for final deliverables. Both are deterministic so a
	// resumed run lands in the same place.
	BasePath   string
	OutputPath string

	artifacts map[ArtifactKey]any
}

// NewContext builds a Context for a job and its project, deriving the
// storage paths and starting with an empty artifact bag.
func NewContext(job *model.Job, project *model.Project) *Context {
	return &Context{
		Job:        job,
		Project:    project,
		BasePath:   fmt.Sprintf("project-assets/u_%s/p_%s/j_%s", job.UserID, job.ProjectID, job.ID),
		OutputPath: fmt.Sprintf("project-outputs/u_%s/p_%s/j_%s", job.UserID, job.ProjectID, job.ID),
		artifacts:  make(map[ArtifactKey]any),
	}
}

// AddArtifact stores an artifact, overwriting any previous value for the key.
func (c *Context) AddArtifact(key ArtifactKey, value any) {
	c.artifacts[key] = value
}

// GetArtifact returns the artifact for key, or nil and false.
func (c *Context) GetArtifact(key ArtifactKey) (any, bool) {
	v, ok := c.artifacts[key]
	return v, ok
}

// HasArtifact reports whether an artifact exists for key.
func (c *Context) HasArtifact(key ArtifactKey) bool {
	_, ok := c.artifacts[key]
	return ok
}

// RemoveArtifact deletes the artifact for key if present.
func (c *Context) RemoveArtifact(key ArtifactKey) {
	delete(c.artifacts, key)
}

// ClearArtifacts resets the bag to empty.
func (c *Context) ClearArtifacts() {
	c.artifacts = make(map[ArtifactKey]any)
}

// ArtifactCount returns the number of stored artifacts.
func (c *Context) ArtifactCount() int {
	return len(c.artifacts)
}

// StringArtifact returns the artifact as a string, or "" if absent or not a
// string.
func (c *Context) StringArtifact(key ArtifactKey) string {
	if s, ok := c.artifacts[key].(string); ok {
		return s
	}
	return ""
}

// IntArtifact returns the artifact as an int. JSON round-trips through the
// checkpoint turn numbers into float64, so both are accepted.
func (c *Context) IntArtifact(key ArtifactKey) int {
	switch v := c.artifacts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// StringSliceArtifact returns the artifact as a string slice. A checkpoint
// restore yields []any, which is converted element-wise.
func (c *Context) StringSliceArtifact(key ArtifactKey) []string {
	switch v := c.artifacts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Snapshot serializes the artifact bag for checkpoint persistence.
func (c *Context) Snapshot() ([]byte, error) {
	data, err := json.Marshal(c.artifacts)
	if err != nil {
		return nil, fmt.Errorf("snapshot artifacts: %w", err)
	}
	return data, nil
}

// Restore replaces the artifact bag from a checkpoint snapshot. Values come
// back as generic JSON types; the typed accessors tolerate that.
func (c *Context) Restore(snapshot []byte) error {
	if len(snapshot) == 0 {
		c.ClearArtifacts()
		return nil
	}
	restored := make(map[ArtifactKey]any)
	if err := json.Unmarshal(snapshot, &restored); err != nil {
		return fmt.Errorf("restore artifacts: %w", err)
	}
	c.artifacts = restored
	return nil
}
