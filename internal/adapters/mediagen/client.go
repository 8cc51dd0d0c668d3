// Package mediagen contains HTTP clients for the external media generation
// providers the pipeline steps call: script and visual planning models,
// narration synthesis, alignment, image generation, rendering, and packaging.
//
// Provider APIs differ in response shape; each client extracts its result
// fields with configurable JMESPath expressions so a provider swap is a
// config change, not a code change.
package mediagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Evaluator abstracts JMESPath operations for testability.
type Evaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// libEvaluator implements Evaluator using go-jmespath.
type libEvaluator struct{}

func (libEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (libEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

const (
	defaultTimeout  = 60 * time.Second
	defaultAttempts = 3
	defaultInterval = 2 * time.Second
)

// Config holds the connection settings shared by all provider clients.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single request; long-running provider calls (render,
	// synthesis) should set this well above the default.
	Timeout time.Duration

	// Attempts and Interval control the linear retry schedule for transient
	// failures. Defaults: 3 attempts, 2s apart.
	Attempts int
	Interval time.Duration

	HTTPClient *http.Client
	Evaluator  Evaluator
	Logger     *slog.Logger
}

// Client is the shared request layer under the typed provider clients.
type Client struct {
	baseURL  string
	apiKey   string
	attempts int
	interval time.Duration

	httpClient *http.Client
	evaluator  Evaluator
	logger     *slog.Logger
}

// NewClient validates the config and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http or https: %s", baseURL)
	}

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = libEvaluator{}
	}

	logger := cfg.Logger
	if logger != nil {
		logger = logger.With("component", "mediagen_client")
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		attempts:   attempts,
		interval:   interval,
		httpClient: httpClient,
		evaluator:  evaluator,
		logger:     logger,
	}, nil
}

// postJSON sends the payload to path and returns the decoded JSON response.
// Transient failures (network errors, 5xx, 429) are retried on the linear
// schedule; other non-2xx statuses fail immediately.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}

	var lastErr error
	for attempt := range c.attempts {
		if attempt > 0 {
			select {
			case <-time.After(c.interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retryable, err := c.doOnce(ctx, path, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if c.logger != nil {
			c.logger.WarnContext(ctx, "provider request failed, will retry",
				"path", path,
				"attempt", attempt+1,
				"max_attempts", c.attempts,
				"error", err,
			)
		}
	}
	return nil, fmt.Errorf("provider request to %s failed after %d attempts: %w", path, c.attempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte) (result any, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return decoded, false, nil
}

// extract evaluates the JMESPath expression against the decoded response.
// An empty expression returns the response unchanged.
func (c *Client) extract(expr string, data any) (any, error) {
	if strings.TrimSpace(expr) == "" {
		return data, nil
	}
	result, err := c.evaluator.Evaluate(expr, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate result expression %q: %w", expr, err)
	}
	return result, nil
}

// extractString evaluates expr and requires a non-empty string result.
func (c *Client) extractString(expr string, data any) (string, error) {
	result, err := c.extract(expr, data)
	if err != nil {
		return "", err
	}
	s, ok := result.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("expression %q yielded no usable string (got %T)", expr, result)
	}
	return s, nil
}

// extractInt evaluates expr and requires a numeric result, tolerating the
// float64 JSON numbers decode into.
func (c *Client) extractInt(expr string, data any) (int, error) {
	result, err := c.extract(expr, data)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expression %q yielded non-integer number: %w", expr, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expression %q yielded no usable number (got %T)", expr, result)
	}
}

// extractStringSlice evaluates expr and requires a list of strings.
func (c *Client) extractStringSlice(expr string, data any) ([]string, error) {
	result, err := c.extract(expr, data)
	if err != nil {
		return nil, err
	}
	raw, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("expression %q yielded no list (got %T)", expr, result)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expression %q yielded non-string element at %d (got %T)", expr, i, item)
		}
		out[i] = s
	}
	return out, nil
}

// extractInto evaluates expr and decodes the result into dst via a JSON
// round trip, for structured results like segments or scene lists.
func (c *Client) extractInto(expr string, data any, dst any) error {
	result, err := c.extract(expr, data)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("expression %q yielded nothing", expr)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("re-marshal extracted result: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode extracted result: %w", err)
	}
	return nil
}

// ValidateExpressions checks every expression compiles; called at startup so
// a config typo fails fast instead of at the first pipeline run.
func (c *Client) ValidateExpressions(exprs ...string) error {
	for _, expr := range exprs {
		if err := c.evaluator.Validate(expr); err != nil {
			return fmt.Errorf("invalid result expression %q: %w", expr, err)
		}
	}
	return nil
}
