// Package genai is a thin facade over the generation provider. The queue
// and ledger never import it; only the worker handlers do.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls the configured generation API. Without an API key it
// produces deterministic synthetic results instead, keeping workers fully
// operational in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient validates options and builds a client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("genai: base url is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("genai: model is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// Synthetic reports whether the client runs without a real provider key.
func (c *Client) Synthetic() bool { return c.apiKey == "" }

// Request carries one generation task to the provider.
type Request struct {
	JobID   string
	Type    domain.JobType
	Payload json.RawMessage
}

// Generate runs one generation call and returns the provider result as raw
// JSON, suitable for storing on the job record.
func (c *Client) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.Synthetic() {
		return c.synthetic(req)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"task":  string(req.Type),
		"input": req.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generate?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genai: call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("genai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("job_id", req.JobID).
			Msg("genai: provider rejected request")
		return nil, fmt.Errorf("genai: provider returned status %d", resp.StatusCode)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("genai: provider returned invalid json")
	}
	return raw, nil
}

// synthetic derives a stable placeholder result from the request so repeat
// runs of the same job produce the same artifact reference.
func (c *Client) synthetic(req Request) (json.RawMessage, error) {
	sum := sha256.Sum256(append([]byte(req.JobID+":"+string(req.Type)+":"), req.Payload...))
	key := hex.EncodeToString(sum[:8])
	result, err := json.Marshal(map[string]any{
		"provider":    "synthetic",
		"model":       c.model,
		"task":        string(req.Type),
		"artifact_id": key,
		"url":         fmt.Sprintf("synthetic://%s/%s", req.Type, key),
	})
	if err != nil {
		return nil, fmt.Errorf("genai: encode synthetic result: %w", err)
	}
	c.logger.Debug().Str("job_id", req.JobID).Msg("genai: synthetic result generated")
	return result, nil
}
