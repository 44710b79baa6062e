package jobs

import "github.com/lumenlabs/lumen/internal/search"

// State is the job runner's reported lifecycle state.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the runner will make no further progress.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// SubmitRequest starts asynchronous answer generation. Empty Results means
// "generate from model knowledge alone"; UseDirectModel records that the
// search provider was unavailable when the exchange was captured.
type SubmitRequest struct {
	Query          string              `json:"query"`
	Results        []search.SourceItem `json:"results"`
	MessageID      string              `json:"message_id"`
	Model          string              `json:"model"`
	UseDirectModel bool                `json:"use_direct_model"`
}
