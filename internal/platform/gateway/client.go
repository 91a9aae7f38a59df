// Package gateway is the HTTP client for the clinical gateway: inference
// job submission and job status polling. Push delivery for the same jobs
// arrives over the realtime transport; both surfaces share the session
// token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/platform/session"
)

// requestTimeout bounds every gateway request so a dead gateway cannot
// leave a job stuck in PROCESSING with no failure surfaced.
const requestTimeout = 10 * time.Second

// SubmitResponse is the gateway's answer to an inference submission. A
// cached response carries the precomputed result and no processing phase
// follows.
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Cached bool            `json:"cached"`
	Result json.RawMessage `json:"result,omitempty"`
}

// JobStatusResponse is the gateway's answer to a job status poll.
type JobStatusResponse struct {
	Status       string          `json:"status"`
	ResultData   json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ModelType    string          `json:"model_type,omitempty"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *Client) { g.httpClient = c }
}

// Client issues authenticated JSON requests against the clinical gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     session.TokenSource
	logger     zerolog.Logger
}

// NewClient creates a gateway client with a bounded request timeout.
func NewClient(baseURL string, tokens session.TokenSource, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		tokens: tokens,
		logger: logger.With().Str("component", "gateway").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SubmitInference posts a new inference job for the given model type.
func (c *Client) SubmitInference(ctx context.Context, modelType string, params map[string]interface{}) (*SubmitResponse, error) {
	body := map[string]interface{}{
		"model_type": modelType,
		"params":     params,
	}

	var out SubmitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/inference/jobs", body, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, &RequestError{
			Op:       "submit inference",
			Category: CategoryGeneric,
			Err:      fmt.Errorf("response is missing job_id"),
		}
	}
	return &out, nil
}

// JobStatus reads the current status of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	var out JobStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+jobID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON issues one request and decodes a JSON response, wrapping every
// failure in a categorized RequestError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Category: CategoryGeneric, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Op: op, Category: CategoryGeneric, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Category: CategoryUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read at most 1KB of the error body for the log line.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cat := categorize(resp.StatusCode)
		c.logger.Warn().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("category", string(cat)).
			Msg("gateway request failed")
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Category:   cat,
			Err:        fmt.Errorf("gateway returned %d: %s", resp.StatusCode, detail),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Category:   CategoryGeneric,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
