// Package jobs wraps the remote generation job runner: submit an exchange,
// get back an opaque handle, poll the handle for a terminal state.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/search"
)

var (
	// ErrNoHandle means the runner accepted the submission but returned no
	// job handle. Without a handle completion can never be observed, so the
	// submission is fatal and must not be retried.
	ErrNoHandle = errors.New("job runner returned no handle")

	// ErrMalformedRequest classifies 4xx status-check failures. Retrying
	// cannot fix a format error, so pollers abort on repeats of this.
	ErrMalformedRequest = errors.New("job runner rejected request format")
)

// Client is the HTTP client for the job runner.
type Client struct {
	baseURL    string
	model      string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewClient(log *slog.Logger, cfg config.JobRunnerConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultRunnerTimeout) * time.Second
	}
	model := strings.TrimSpace(cfg.DefaultModel)
	if model == "" {
		model = config.DefaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      model,
		logger:     log.With(slog.String("service", "job_runner")),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DefaultModel returns the configured fallback model identifier.
func (c *Client) DefaultModel() string { return c.model }

// Submit starts generation and returns the job handle.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = c.model
	}
	if req.Results == nil {
		req.Results = []search.SourceItem{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal job submission: %w", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/jobs")
	if err != nil {
		return "", fmt.Errorf("job runner base_url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build job submission: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read job submission response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit job: status %d: %s", resp.StatusCode, truncate(body))
	}
	var raw struct {
		JobHandle string `json:"job_handle"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode job submission response: %w", err)
	}
	handle := strings.TrimSpace(raw.JobHandle)
	if handle == "" {
		return "", ErrNoHandle
	}
	c.logger.Debug("job submitted", slog.String("handle", handle), slog.String("message_id", req.MessageID))
	return handle, nil
}

// Status checks a job handle. 4xx responses wrap ErrMalformedRequest so the
// poller can tell a hopeless request apart from a transient failure.
func (c *Client) Status(ctx context.Context, handle string) (State, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", ErrMalformedRequest)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/jobs", url.PathEscape(handle))
	if err != nil {
		return "", fmt.Errorf("job runner base_url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("check job status: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("%w: status %d: %s", ErrMalformedRequest, resp.StatusCode, truncate(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("check job status: status %d: %s", resp.StatusCode, truncate(body))
	}
	var raw struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	switch State(strings.ToLower(strings.TrimSpace(raw.State))) {
	case StateRunning:
		return StateRunning, nil
	case StateCompleted:
		return StateCompleted, nil
	case StateFailed:
		return StateFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrMalformedRequest, raw.State)
	}
}

func truncate(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
