package mediagen

import (
	"context"
	"errors"
	"fmt"

	"github.com/canvascast/canvascast-go/internal/pipeline"
)

// ImageClientOptions groups dependencies for ImageClient.
type ImageClientOptions struct {
	Client    *Client
	Allowlist *HostAllowlist

	// ImagesExpr extracts the generated image locations. Default: "images".
	ImagesExpr string
}

// ImageClient calls the image generation provider. Implements
// pipeline.ImageProvider.
type ImageClient struct {
	client     *Client
	allowlist  *HostAllowlist
	imagesExpr string
}

// NewImageClient validates options and constructs an ImageClient.
func NewImageClient(opts ImageClientOptions) (*ImageClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	imagesExpr := opts.ImagesExpr
	if imagesExpr == "" {
		imagesExpr = "images"
	}
	if err := opts.Client.ValidateExpressions(imagesExpr); err != nil {
		return nil, err
	}

	return &ImageClient{
		client:     opts.Client,
		allowlist:  opts.Allowlist,
		imagesExpr: imagesExpr,
	}, nil
}

// Generate requests one image per prompt, in prompt order.
func (c *ImageClient) Generate(ctx context.Context, req pipeline.ImageRequest) ([]string, error) {
	resp, err := c.client.postJSON(ctx, "/v1/images", map[string]any{
		"prompts":    req.Prompts,
		"base_path":  req.BasePath,
		"resolution": req.Resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation request: %w", err)
	}

	paths, err := c.client.extractStringSlice(c.imagesExpr, resp)
	if err != nil {
		return nil, err
	}
	if err := c.allowlist.CheckAll(paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// RenderClientOptions groups dependencies for RenderClient.
type RenderClientOptions struct {
	Client    *Client
	Allowlist *HostAllowlist

	// VideoExpr extracts the rendered video location. Default: "video_url".
	VideoExpr string
}

// RenderClient calls the render farm. Implements pipeline.RenderProvider.
type RenderClient struct {
	client    *Client
	allowlist *HostAllowlist
	videoExpr string
}

// NewRenderClient validates options and constructs a RenderClient.
func NewRenderClient(opts RenderClientOptions) (*RenderClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	videoExpr := opts.VideoExpr
	if videoExpr == "" {
		videoExpr = "video_url"
	}
	if err := opts.Client.ValidateExpressions(videoExpr); err != nil {
		return nil, err
	}

	return &RenderClient{
		client:    opts.Client,
		allowlist: opts.Allowlist,
		videoExpr: videoExpr,
	}, nil
}

// Render requests the final video for the assembled timeline.
func (c *RenderClient) Render(ctx context.Context, req pipeline.RenderRequest) (string, error) {
	resp, err := c.client.postJSON(ctx, "/v1/render", map[string]any{
		"timeline_path": req.TimelinePath,
		"output_path":   req.OutputPath,
		"resolution":    req.Resolution,
	})
	if err != nil {
		return "", fmt.Errorf("render request: %w", err)
	}

	videoPath, err := c.client.extractString(c.videoExpr, resp)
	if err != nil {
		return "", err
	}
	if err := c.allowlist.Check(videoPath); err != nil {
		return "", err
	}
	return videoPath, nil
}

// PackageClientOptions groups dependencies for PackageClient.
type PackageClientOptions struct {
	Client    *Client
	Allowlist *HostAllowlist

	// ZipExpr extracts the bundle location. Default: "zip_url".
	ZipExpr string
}

// PackageClient calls the asset bundling service. Implements
// pipeline.PackageProvider.
type PackageClient struct {
	client    *Client
	allowlist *HostAllowlist
	zipExpr   string
}

// NewPackageClient validates options and constructs a PackageClient.
func NewPackageClient(opts PackageClientOptions) (*PackageClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	zipExpr := opts.ZipExpr
	if zipExpr == "" {
		zipExpr = "zip_url"
	}
	if err := opts.Client.ValidateExpressions(zipExpr); err != nil {
		return nil, err
	}

	return &PackageClient{
		client:    opts.Client,
		allowlist: opts.Allowlist,
		zipExpr:   zipExpr,
	}, nil
}

// Package requests a downloadable bundle of the final deliverables.
func (c *PackageClient) Package(ctx context.Context, req pipeline.PackageRequest) (string, error) {
	resp, err := c.client.postJSON(ctx, "/v1/package", map[string]any{
		"paths":       req.Paths,
		"output_path": req.OutputPath,
	})
	if err != nil {
		return "", fmt.Errorf("package request: %w", err)
	}

	zipPath, err := c.client.extractString(c.zipExpr, resp)
	if err != nil {
		return "", err
	}
	if err := c.allowlist.Check(zipPath); err != nil {
		return "", err
	}
	return zipPath, nil
}

// NewProviders wires the full provider set from one shared client and
// allowlist, using the default result expressions.
func NewProviders(client *Client, allowlist *HostAllowlist) (pipeline.Providers, error) {
	script, err := NewScriptClient(ScriptClientOptions{Client: client})
	if err != nil {
		return pipeline.Providers{}, err
	}
	voice, err := NewVoiceClient(VoiceClientOptions{Client: client, Allowlist: allowlist})
	if err != nil {
		return pipeline.Providers{}, err
	}
	alignment, err := NewAlignmentClient(AlignmentClientOptions{Client: client, Allowlist: allowlist})
	if err != nil {
		return pipeline.Providers{}, err
	}
	visual, err := NewVisualClient(VisualClientOptions{Client: client})
	if err != nil {
		return pipeline.Providers{}, err
	}
	image, err := NewImageClient(ImageClientOptions{Client: client, Allowlist: allowlist})
	if err != nil {
		return pipeline.Providers{}, err
	}
	render, err := NewRenderClient(RenderClientOptions{Client: client, Allowlist: allowlist})
	if err != nil {
		return pipeline.Providers{}, err
	}
	packager, err := NewPackageClient(PackageClientOptions{Client: client, Allowlist: allowlist})
	if err != nil {
		return pipeline.Providers{}, err
	}

	return pipeline.Providers{
		Script:    script,
		Voice:     voice,
		Alignment: alignment,
		Visual:    visual,
		Image:     image,
		Render:    render,
		Packager:  packager,
	}, nil
}
