package search

// Mode selects which provider endpoint serves a query.
type Mode string

const (
	ModeSearch   Mode = "search"
	ModeResearch Mode = "research"
)

// SourceItem is the canonical result shape handed to persistence and
// rendering. Fields are never null: normalization maps absent provider
// fields to the empty string.
type SourceItem struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	SourceName   string `json:"source_name"`
	URL          string `json:"url"`
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Response is the adapter's uniform answer for both providers.
// Unavailable is a sentinel, not an error: callers fall back to direct-model
// generation when it is set, and Results/JobHandle are meaningless then.
type Response struct {
	Results     []SourceItem
	JobHandle   string
	Unavailable bool
}

// ResearchRequest tunes the research-synthesis provider call.
type ResearchRequest struct {
	Query      string
	MaxSources int
	Diversity  string
	UserID     string
}
