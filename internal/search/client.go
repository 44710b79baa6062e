// Package search normalizes the web-search and research-synthesis providers
// into one canonical result shape with an explicit unavailable sentinel.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumenlabs/lumen/internal/config"
)

// Client calls the search and research providers. Transport failures never
// escape as errors: they collapse into Response.Unavailable so the caller's
// direct-model fallback path is always reachable.
type Client struct {
	baseURL    string
	apiKey     string
	maxSources int
	diversity  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewClient(log *slog.Logger, cfg config.SearchConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultSearchTimeout) * time.Second
	}
	maxSources := cfg.MaxSources
	if maxSources <= 0 {
		maxSources = config.DefaultMaxSources
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxSources: maxSources,
		diversity:  cfg.Diversity,
		logger:     log.With(slog.String("service", "search")),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search queries the web-search provider and normalizes its results.
func (c *Client) Search(ctx context.Context, query string) Response {
	payload := map[string]any{
		"query": query,
		"mode":  string(ModeSearch),
	}
	body, ok := c.post(ctx, "/search", payload)
	if !ok {
		return Response{Unavailable: true}
	}
	var raw struct {
		Unavailable bool      `json:"unavailable"`
		Results     []rawItem `json:"results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("search response decode failed", slog.Any("error", err))
		return Response{Unavailable: true}
	}
	if raw.Unavailable {
		return Response{Unavailable: true}
	}
	return Response{Results: normalizeItems(raw.Results)}
}

// Research queries the research-synthesis provider. Besides sources it may
// return a job handle when the provider started generation server-side.
func (c *Client) Research(ctx context.Context, req ResearchRequest) Response {
	maxSources := req.MaxSources
	if maxSources <= 0 {
		maxSources = c.maxSources
	}
	diversity := req.Diversity
	if strings.TrimSpace(diversity) == "" {
		diversity = c.diversity
	}
	payload := map[string]any{
		"query":       req.Query,
		"max_sources": maxSources,
		"diversity":   diversity,
	}
	if strings.TrimSpace(req.UserID) != "" {
		payload["user_id"] = req.UserID
	}
	body, ok := c.post(ctx, "/research", payload)
	if !ok {
		return Response{Unavailable: true}
	}
	var raw struct {
		Unavailable bool      `json:"unavailable"`
		JobHandle   string    `json:"job_handle"`
		Results     []rawItem `json:"results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("research response decode failed", slog.Any("error", err))
		return Response{Unavailable: true}
	}
	if raw.Unavailable {
		return Response{Unavailable: true}
	}
	return Response{
		Results:   normalizeItems(raw.Results),
		JobHandle: strings.TrimSpace(raw.JobHandle),
	}
}

// post issues a provider request and returns the body, or ok=false for any
// transport, status, or configuration failure.
func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, bool) {
	if c.baseURL == "" {
		c.logger.Warn("search provider base_url not configured")
		return nil, false
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		c.logger.Warn("invalid search provider base_url", slog.Any("error", err))
		return nil, false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("marshal provider request failed", slog.Any("error", err))
		return nil, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("build provider request failed", slog.Any("error", err))
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("provider request failed", slog.String("path", path), slog.Any("error", err))
		return nil, false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("read provider response failed", slog.Any("error", err))
		return nil, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider returned non-success status",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, false
	}
	return body, true
}

// rawItem tolerates the heterogeneous field names the providers emit.
type rawItem struct {
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Snippet      string   `json:"snippet"`
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	Source       string   `json:"source"`
	SourceName   string   `json:"source_name"`
	URL          string   `json:"url"`
	Link         string   `json:"link"`
	ImageURL     string   `json:"image_url"`
	ThumbnailURL string   `json:"thumbnail_url"`
}

func normalizeItems(items []rawItem) []SourceItem {
	results := make([]SourceItem, 0, len(items))
	for _, item := range items {
		results = append(results, normalizeItem(item))
	}
	return results
}

// normalizeItem maps a provider item deterministically onto the canonical
// shape, preferring richer fields (summary, key points) over plain snippets.
func normalizeItem(item rawItem) SourceItem {
	title := firstNonEmpty(item.Title, item.Name)
	description := firstNonEmpty(item.Summary, item.Description, item.Snippet)
	if description == "" && len(item.KeyPoints) > 0 {
		description = strings.Join(item.KeyPoints, " ")
	}
	link := firstNonEmpty(item.URL, item.Link)
	sourceName := firstNonEmpty(item.SourceName, item.Source)
	if sourceName == "" {
		sourceName = hostOf(link)
	}
	return SourceItem{
		Title:        title,
		Description:  description,
		SourceName:   sourceName,
		URL:          link,
		ImageURL:     strings.TrimSpace(item.ImageURL),
		ThumbnailURL: strings.TrimSpace(item.ThumbnailURL),
	}
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
