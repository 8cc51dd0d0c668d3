package pipeline

import "context"

// The provider interfaces below are the black-box contracts for the external
// AI/media services the steps call. Adapters live in internal/adapters/mediagen;
// tests substitute stubs. Providers return Go errors for any failure; the
// steps convert those into tagged StepResult failures.

// ScriptRequest carries the inputs for outline and script generation.
type ScriptRequest struct {
	MergedInput     string
	Outline         string
	NichePreset     string
	DurationMinutes int
}

// ScriptProvider generates the outline and the narration script.
type ScriptProvider interface {
	Outline(ctx context.Context, req ScriptRequest) (string, error)
	Script(ctx context.Context, req ScriptRequest) (string, error)
}

// SynthesizeRequest carries the inputs for narration synthesis.
type SynthesizeRequest struct {
	Text       string
	VoiceID    string
	OutputPath string
}

// Narration is the synthesized narration audio.
type Narration struct {
	AudioPath  string
	DurationMs int
}

// VoiceProvider synthesizes narration audio from the script.
type VoiceProvider interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (*Narration, error)
}

// AlignRequest carries the inputs for word-level alignment.
type AlignRequest struct {
	AudioPath  string
	Script     string
	OutputPath string
}

// AlignedWord is one word with its timing.
type AlignedWord struct {
	Word    string  `json:"word"`
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
}

// AlignedSegment is one phrase-level segment with its timing.
type AlignedSegment struct {
	Text    string  `json:"text"`
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
}

// AlignmentResult is the output of the alignment provider.
type AlignmentResult struct {
	Words           []AlignedWord
	Segments        []AlignedSegment
	CaptionsSrtPath string
}

// AlignmentProvider aligns the narration audio against the script.
type AlignmentProvider interface {
	Align(ctx context.Context, req AlignRequest) (*AlignmentResult, error)
}

// Scene is one planned visual beat.
type Scene struct {
	Index   int     `json:"index"`
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
	Prompt  string  `json:"prompt"`
}

// VisualPlan is the ordered scene list produced by the planner.
type VisualPlan struct {
	Scenes []Scene `json:"scenes"`
}

// PlanRequest carries the inputs for visual planning.
type PlanRequest struct {
	Script       string
	Segments     []AlignedSegment
	VisualPreset string
	Density      string
}

// VisualProvider plans the per-scene visuals.
type VisualProvider interface {
	Plan(ctx context.Context, req PlanRequest) (*VisualPlan, error)
}

// ImageRequest carries the inputs for per-scene image generation.
type ImageRequest struct {
	Prompts    []string
	BasePath   string
	Resolution string
}

// ImageProvider generates one image per scene prompt and returns their paths.
type ImageProvider interface {
	Generate(ctx context.Context, req ImageRequest) ([]string, error)
}

// RenderRequest carries the inputs for video rendering.
type RenderRequest struct {
	TimelinePath string
	OutputPath   string
	Resolution   string
}

// RenderProvider renders the timeline into a video and returns its path.
type RenderProvider interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}

// PackageRequest carries the inputs for final asset packaging.
type PackageRequest struct {
	Paths      []string
	OutputPath string
}

// PackageProvider bundles the final deliverables and returns the zip path.
type PackageProvider interface {
	Package(ctx context.Context, req PackageRequest) (string, error)
}

// Providers groups the external services the steps depend on.
type Providers struct {
	Script    ScriptProvider
	Voice     VoiceProvider
	Alignment AlignmentProvider
	Visual    VisualProvider
	Image     ImageProvider
	Render    RenderProvider
	Packager  PackageProvider
}
