package mediagen

import (
	"context"
	"errors"
	"fmt"

	"github.com/canvascast/canvascast-go/internal/pipeline"
)

// ScriptClientOptions groups dependencies for ScriptClient.
type ScriptClientOptions struct {
	Client *Client

	// OutlineExpr and ScriptExpr extract the text results from the provider
	// response. Defaults: "outline" and "script".
	OutlineExpr string
	ScriptExpr  string
}

// ScriptClient calls the script model provider. Implements
// pipeline.ScriptProvider.
type ScriptClient struct {
	client      *Client
	outlineExpr string
	scriptExpr  string
}

// NewScriptClient validates options and constructs a ScriptClient.
func NewScriptClient(opts ScriptClientOptions) (*ScriptClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	outlineExpr := opts.OutlineExpr
	if outlineExpr == "" {
		outlineExpr = "outline"
	}
	scriptExpr := opts.ScriptExpr
	if scriptExpr == "" {
		scriptExpr = "script"
	}
	if err := opts.Client.ValidateExpressions(outlineExpr, scriptExpr); err != nil {
		return nil, err
	}

	return &ScriptClient{
		client:      opts.Client,
		outlineExpr: outlineExpr,
		scriptExpr:  scriptExpr,
	}, nil
}

// Outline requests a section outline for the merged input.
func (c *ScriptClient) Outline(ctx context.Context, req pipeline.ScriptRequest) (string, error) {
	resp, err := c.client.postJSON(ctx, "/v1/outline", map[string]any{
		"input":            req.MergedInput,
		"niche":            req.NichePreset,
		"duration_minutes": req.DurationMinutes,
	})
	if err != nil {
		return "", fmt.Errorf("outline request: %w", err)
	}
	return c.client.extractString(c.outlineExpr, resp)
}

// Script requests the full narration script from the outline.
func (c *ScriptClient) Script(ctx context.Context, req pipeline.ScriptRequest) (string, error) {
	resp, err := c.client.postJSON(ctx, "/v1/script", map[string]any{
		"input":            req.MergedInput,
		"outline":          req.Outline,
		"niche":            req.NichePreset,
		"duration_minutes": req.DurationMinutes,
	})
	if err != nil {
		return "", fmt.Errorf("script request: %w", err)
	}
	return c.client.extractString(c.scriptExpr, resp)
}

// VisualClientOptions groups dependencies for VisualClient.
type VisualClientOptions struct {
	Client *Client

	// ScenesExpr extracts the scene list from the provider response.
	// Default: "scenes".
	ScenesExpr string
}

// VisualClient calls the visual planning provider. Implements
// pipeline.VisualProvider.
type VisualClient struct {
	client     *Client
	scenesExpr string
}

// NewVisualClient validates options and constructs a VisualClient.
func NewVisualClient(opts VisualClientOptions) (*VisualClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	scenesExpr := opts.ScenesExpr
	if scenesExpr == "" {
		scenesExpr = "scenes"
	}
	if err := opts.Client.ValidateExpressions(scenesExpr); err != nil {
		return nil, err
	}

	return &VisualClient{client: opts.Client, scenesExpr: scenesExpr}, nil
}

// Plan requests a per-segment scene plan.
func (c *VisualClient) Plan(ctx context.Context, req pipeline.PlanRequest) (*pipeline.VisualPlan, error) {
	resp, err := c.client.postJSON(ctx, "/v1/visual-plan", map[string]any{
		"script":   req.Script,
		"segments": req.Segments,
		"preset":   req.VisualPreset,
		"density":  req.Density,
	})
	if err != nil {
		return nil, fmt.Errorf("visual plan request: %w", err)
	}

	var scenes []pipeline.Scene
	if err := c.client.extractInto(c.scenesExpr, resp, &scenes); err != nil {
		return nil, err
	}
	return &pipeline.VisualPlan{Scenes: scenes}, nil
}
