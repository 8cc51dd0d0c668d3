package mediagen

import (
	"context"
	"errors"
	"fmt"

	"github.com/canvascast/canvascast-go/internal/pipeline"
)

// VoiceClientOptions groups dependencies for VoiceClient.
type VoiceClientOptions struct {
	Client    *Client
	Allowlist *HostAllowlist

	// AudioPathExpr and DurationExpr extract the narration location and
	// length from the provider response. Defaults: "audio_url" and
	// "duration_ms".
	AudioPathExpr string
	DurationExpr  string
}

// VoiceClient calls the narration synthesis provider. Implements
// pipeline.VoiceProvider.
type VoiceClient struct {
	client        *Client
	allowlist     *HostAllowlist
	audioPathExpr string
	durationExpr  string
}

// NewVoiceClient validates options and constructs a VoiceClient.
func NewVoiceClient(opts VoiceClientOptions) (*VoiceClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	audioPathExpr := opts.AudioPathExpr
	if audioPathExpr == "" {
		audioPathExpr = "audio_url"
	}
	durationExpr := opts.DurationExpr
	if durationExpr == "" {
		durationExpr = "duration_ms"
	}
	if err := opts.Client.ValidateExpressions(audioPathExpr, durationExpr); err != nil {
		return nil, err
	}

	return &VoiceClient{
		client:        opts.Client,
		allowlist:     opts.Allowlist,
		audioPathExpr: audioPathExpr,
		durationExpr:  durationExpr,
	}, nil
}

// Synthesize requests narration audio for the script text.
func (c *VoiceClient) Synthesize(ctx context.Context, req pipeline.SynthesizeRequest) (*pipeline.Narration, error) {
	resp, err := c.client.postJSON(ctx, "/v1/synthesize", map[string]any{
		"text":        req.Text,
		"voice_id":    req.VoiceID,
		"output_path": req.OutputPath,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize request: %w", err)
	}

	audioPath, err := c.client.extractString(c.audioPathExpr, resp)
	if err != nil {
		return nil, err
	}
	if err := c.allowlist.Check(audioPath); err != nil {
		return nil, err
	}
	durationMs, err := c.client.extractInt(c.durationExpr, resp)
	if err != nil {
		return nil, err
	}

	return &pipeline.Narration{AudioPath: audioPath, DurationMs: durationMs}, nil
}

// AlignmentClientOptions groups dependencies for AlignmentClient.
type AlignmentClientOptions struct {
	Client    *Client
	Allowlist *HostAllowlist

	// WordsExpr, SegmentsExpr, and CaptionsExpr extract the alignment
	// results. Defaults: "words", "segments", "captions_url".
	WordsExpr    string
	SegmentsExpr string
	CaptionsExpr string
}

// AlignmentClient calls the forced alignment provider. Implements
// pipeline.AlignmentProvider.
type AlignmentClient struct {
	client       *Client
	allowlist    *HostAllowlist
	wordsExpr    string
	segmentsExpr string
	captionsExpr string
}

// NewAlignmentClient validates options and constructs an AlignmentClient.
func NewAlignmentClient(opts AlignmentClientOptions) (*AlignmentClient, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	wordsExpr := opts.WordsExpr
	if wordsExpr == "" {
		wordsExpr = "words"
	}
	segmentsExpr := opts.SegmentsExpr
	if segmentsExpr == "" {
		segmentsExpr = "segments"
	}
	captionsExpr := opts.CaptionsExpr
	if captionsExpr == "" {
		captionsExpr = "captions_url"
	}
	if err := opts.Client.ValidateExpressions(wordsExpr, segmentsExpr, captionsExpr); err != nil {
		return nil, err
	}

	return &AlignmentClient{
		client:       opts.Client,
		allowlist:    opts.Allowlist,
		wordsExpr:    wordsExpr,
		segmentsExpr: segmentsExpr,
		captionsExpr: captionsExpr,
	}, nil
}

// Align requests word and segment timings for the narration audio.
func (c *AlignmentClient) Align(ctx context.Context, req pipeline.AlignRequest) (*pipeline.AlignmentResult, error) {
	resp, err := c.client.postJSON(ctx, "/v1/align", map[string]any{
		"audio_path":  req.AudioPath,
		"script":      req.Script,
		"output_path": req.OutputPath,
	})
	if err != nil {
		return nil, fmt.Errorf("align request: %w", err)
	}

	result := &pipeline.AlignmentResult{}
	if err := c.client.extractInto(c.wordsExpr, resp, &result.Words); err != nil {
		return nil, err
	}
	if err := c.client.extractInto(c.segmentsExpr, resp, &result.Segments); err != nil {
		return nil, err
	}
	captionsPath, err := c.client.extractString(c.captionsExpr, resp)
	if err != nil {
		return nil, err
	}
	if err := c.allowlist.Check(captionsPath); err != nil {
		return nil, err
	}
	result.CaptionsSrtPath = captionsPath

	return result, nil
}
