package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// Step error codes. Stable identifiers surfaced on failed jobs.
const (
	ErrCodeEmptyPrompt     = "empty_prompt"
	ErrCodeScriptFailed    = "script_generation_failed"
	ErrCodeVoiceFailed     = "voice_generation_failed"
	ErrCodeAlignmentFailed = "alignment_failed"
	ErrCodePlanFailed      = "visual_planning_failed"
	ErrCodeImagesFailed    = "image_generation_failed"
	ErrCodeTimelineFailed  = "timeline_build_failed"
	ErrCodeRenderFailed    = "render_failed"
	ErrCodePackagingFailed = "packaging_failed"
)

// TimelineEntry places one image over a time range with its caption text.
type TimelineEntry struct {
	Index     int     `json:"index"`
	StartMs   float64 `json:"start_ms"`
	EndMs     float64 `json:"end_ms"`
	ImagePath string  `json:"image_path"`
	Text      string  `json:"text"`
}

// Timeline is the assembled edit list consumed by the renderer.
type Timeline struct {
	Entries         []TimelineEntry `json:"entries"`
	NarrationPath   string          `json:"narration_path"`
	CaptionsSrtPath string          `json:"captions_srt_path"`
	DurationMs      int             `json:"duration_ms"`
}

// NewSteps builds the nine pipeline steps in execution order, bound to the
// given providers. The entry progress values are the persisted progress at
// each step's status transition; the refund cutoff sits exactly at the
// alignment entry.
func NewSteps(p Providers) []Step {
	return []Step{
		{Name: StepIngestInputs, Status: model.JobStatusScripting, EntryProgress: 0, Run: stepIngestInputs},
		{Name: StepGenerateScript, Status: model.JobStatusScripting, EntryProgress: 10, Run: stepGenerateScript(p.Script)},
		{Name: StepGenerateVoice, Status: model.JobStatusVoiceGen, EntryProgress: 20, Run: stepGenerateVoice(p.Voice)},
		{Name: StepRunAlignment, Status: model.JobStatusAlignment, EntryProgress: 30, Run: stepRunAlignment(p.Alignment)},
		{Name: StepPlanVisuals, Status: model.JobStatusVisualPlanning, EntryProgress: 40, Run: stepPlanVisuals(p.Visual)},
		{Name: StepGenerateImages, Status: model.JobStatusImageGen, EntryProgress: 50, Run: stepGenerateImages(p.Image)},
		{Name: StepBuildTimeline, Status: model.JobStatusBuildTimeline, EntryProgress: 65, Run: stepBuildTimeline},
		{Name: StepRenderVideo, Status: model.JobStatusRendering, EntryProgress: 80, Run: stepRenderVideo(p.Render)},
		{Name: StepPackageAssets, Status: model.JobStatusPackaging, EntryProgress: 95, Run: stepPackageAssets(p.Packager)},
	}
}

// stepIngestInputs merges the project's prompt and preset parameters into
// the single input text later steps consume. Pure; no provider call.
func stepIngestInputs(_ context.Context, pc *Context) StepResult {
	prompt := strings.TrimSpace(pc.Project.Prompt)
	if prompt == "" {
		return Fail(ErrCodeEmptyPrompt, "project has no prompt to generate from")
	}

	var b strings.Builder
	b.WriteString(prompt)
	if pc.Project.NichePreset != "" {
		fmt.Fprintf(&b, "\n\nNiche: %s", pc.Project.NichePreset)
	}
	if pc.Project.DurationMinutes > 0 {
		fmt.Fprintf(&b, "\nTarget duration: %d minutes", pc.Project.DurationMinutes)
	}

	pc.AddArtifact(ArtifactMergedInputText, b.String())
	return Ok()
}

func stepGenerateScript(provider ScriptProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		req := ScriptRequest{
			MergedInput:     pc.StringArtifact(ArtifactMergedInputText),
			NichePreset:     pc.Project.NichePreset,
			DurationMinutes: pc.Project.DurationMinutes,
		}

		outline, err := provider.Outline(ctx, req)
		if err != nil {
			return FailErr(ErrCodeScriptFailed, "outline generation failed", err)
		}

		req.Outline = outline
		script, err := provider.Script(ctx, req)
		if err != nil {
			return FailErr(ErrCodeScriptFailed, "script generation failed", err)
		}
		if strings.TrimSpace(script) == "" {
			return Fail(ErrCodeScriptFailed, "provider returned an empty script")
		}

		// Both calls succeeded; only now do the artifacts land.
		pc.AddArtifact(ArtifactOutline, outline)
		pc.AddArtifact(ArtifactScript, script)
		return Ok()
	}
}

func stepGenerateVoice(provider VoiceProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		narration, err := provider.Synthesize(ctx, SynthesizeRequest{
			Text:       pc.StringArtifact(ArtifactScript),
			VoiceID:    pc.Project.VoiceID,
			OutputPath: pc.BasePath + "/narration.mp3",
		})
		if err != nil {
			return FailErr(ErrCodeVoiceFailed, "narration synthesis failed", err)
		}
		if narration.AudioPath == "" || narration.DurationMs <= 0 {
			return Fail(ErrCodeVoiceFailed, "provider returned no usable narration")
		}

		pc.AddArtifact(ArtifactNarrationPath, narration.AudioPath)
		pc.AddArtifact(ArtifactNarrationDurationMs, narration.DurationMs)
		return Ok()
	}
}

func stepRunAlignment(provider AlignmentProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		result, err := provider.Align(ctx, AlignRequest{
			AudioPath:  pc.StringArtifact(ArtifactNarrationPath),
			Script:     pc.StringArtifact(ArtifactScript),
			OutputPath: pc.BasePath + "/captions.srt",
		})
		if err != nil {
			return FailErr(ErrCodeAlignmentFailed, "audio alignment failed", err)
		}
		if len(result.Segments) == 0 {
			return Fail(ErrCodeAlignmentFailed, "alignment produced no segments")
		}

		pc.AddArtifact(ArtifactWords, result.Words)
		pc.AddArtifact(ArtifactSegments, result.Segments)
		pc.AddArtifact(ArtifactCaptionsSrtPath, result.CaptionsSrtPath)
		return Ok()
	}
}

func stepPlanVisuals(provider VisualProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		segments, err := segmentsArtifact(pc)
		if err != nil {
			return FailErr(ErrCodePlanFailed, "segments artifact unreadable", err)
		}

		plan, err := provider.Plan(ctx, PlanRequest{
			Script:       pc.StringArtifact(ArtifactScript),
			Segments:     segments,
			VisualPreset: pc.Project.VisualPreset,
			Density:      pc.Project.Density,
		})
		if err != nil {
			return FailErr(ErrCodePlanFailed, "visual planning failed", err)
		}
		if len(plan.Scenes) == 0 {
			return Fail(ErrCodePlanFailed, "planner produced no scenes")
		}

		pc.AddArtifact(ArtifactVisualPlan, plan)
		return Ok()
	}
}

func stepGenerateImages(provider ImageProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		plan, err := visualPlanArtifact(pc)
		if err != nil {
			return FailErr(ErrCodeImagesFailed, "visual plan artifact unreadable", err)
		}

		prompts := make([]string, len(plan.Scenes))
		for i, scene := range plan.Scenes {
			prompts[i] = scene.Prompt
		}

		paths, err := provider.Generate(ctx, ImageRequest{
			Prompts:    prompts,
			BasePath:   pc.BasePath,
			Resolution: pc.Project.Resolution,
		})
		if err != nil {
			return FailErr(ErrCodeImagesFailed, "image generation failed", err)
		}
		if len(paths) != len(prompts) {
			return Failf(ErrCodeImagesFailed, "expected %d images, got %d", len(prompts), len(paths))
		}

		pc.AddArtifact(ArtifactImagePaths, paths)
		return Ok()
	}
}

// stepBuildTimeline assembles the edit list from the plan, the generated
// images, and the narration timing. Pure; no provider call.
func stepBuildTimeline(_ context.Context, pc *Context) StepResult {
	plan, err := visualPlanArtifact(pc)
	if err != nil {
		return FailErr(ErrCodeTimelineFailed, "visual plan artifact unreadable", err)
	}
	images := pc.StringSliceArtifact(ArtifactImagePaths)
	if len(images) != len(plan.Scenes) {
		return Failf(ErrCodeTimelineFailed, "scene/image count mismatch: %d scenes, %d images", len(plan.Scenes), len(images))
	}

	timeline := &Timeline{
		Entries:         make([]TimelineEntry, len(plan.Scenes)),
		NarrationPath:   pc.StringArtifact(ArtifactNarrationPath),
		CaptionsSrtPath: pc.StringArtifact(ArtifactCaptionsSrtPath),
		DurationMs:      pc.IntArtifact(ArtifactNarrationDurationMs),
	}
	for i, scene := range plan.Scenes {
		timeline.Entries[i] = TimelineEntry{
			Index:     scene.Index,
			StartMs:   scene.StartMs,
			EndMs:     scene.EndMs,
			ImagePath: images[i],
			Text:      scene.Prompt,
		}
	}

	pc.AddArtifact(ArtifactTimeline, timeline)
	pc.AddArtifact(ArtifactTimelinePath, pc.BasePath+"/timeline.json")
	return Ok()
}

func stepRenderVideo(provider RenderProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		videoPath, err := provider.Render(ctx, RenderRequest{
			TimelinePath: pc.StringArtifact(ArtifactTimelinePath),
			OutputPath:   pc.OutputPath + "/video.mp4",
			Resolution:   pc.Project.Resolution,
		})
		if err != nil {
			return FailErr(ErrCodeRenderFailed, "video rendering failed", err)
		}
		if videoPath == "" {
			return Fail(ErrCodeRenderFailed, "renderer returned no video path")
		}

		pc.AddArtifact(ArtifactVideoPath, videoPath)
		return Ok()
	}
}

func stepPackageAssets(provider PackageProvider) StepFunc {
	return func(ctx context.Context, pc *Context) StepResult {
		paths := []string{
			pc.StringArtifact(ArtifactVideoPath),
			pc.StringArtifact(ArtifactCaptionsSrtPath),
			pc.StringArtifact(ArtifactNarrationPath),
		}

		zipPath, err := provider.Package(ctx, PackageRequest{
			Paths:      paths,
			OutputPath: pc.OutputPath + "/assets.zip",
		})
		if err != nil {
			return FailErr(ErrCodePackagingFailed, "asset packaging failed", err)
		}
		if zipPath == "" {
			return Fail(ErrCodePackagingFailed, "packager returned no zip path")
		}

		pc.AddArtifact(ArtifactZipPath, zipPath)
		return Ok()
	}
}

// segmentsArtifact decodes the segments artifact whether it holds the typed
// slice from a live run or generic JSON from a checkpoint restore.
func segmentsArtifact(pc *Context) ([]AlignedSegment, error) {
	raw, ok := pc.GetArtifact(ArtifactSegments)
	if !ok {
		return nil, fmt.Errorf("missing artifact %q", ArtifactSegments)
	}
	if typed, isTyped := raw.([]AlignedSegment); isTyped {
		return typed, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var segments []AlignedSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// visualPlanArtifact decodes the visual plan artifact with the same
// typed-or-restored tolerance as segmentsArtifact.
func visualPlanArtifact(pc *Context) (*VisualPlan, error) {
	raw, ok := pc.GetArtifact(ArtifactVisualPlan)
	if !ok {
		return nil, fmt.Errorf("missing artifact %q", ArtifactVisualPlan)
	}
	if typed, isTyped := raw.(*VisualPlan); isTyped {
		return typed, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var plan VisualPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
