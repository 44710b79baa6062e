// Package orchestrator ties the routing, search, persistence, job and polling
// pieces into the submission pipeline and keeps the in-memory conversation
// mirror consistent with the durable store.
package orchestrator

import (
	"context"
	"errors"

	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/filecontext"
	"github.com/lumenlabs/lumen/internal/jobs"
	"github.com/lumenlabs/lumen/internal/queryrouter"
	"github.com/lumenlabs/lumen/internal/search"
)

// ErrEmptySubmission rejects a submission with neither text nor files before
// it reaches the router.
var ErrEmptySubmission = errors.New("submission requires text or at least one file")

// Status is the lifecycle of a conversation's poller.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPolling   Status = "polling"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether no further polling will happen for this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// SubmitInput is one user submission, initial or follow-up. An empty
// ConversationID starts a new conversation.
type SubmitInput struct {
	ConversationID string
	UserID         string
	Text           string
	Mode           search.Mode
	Model          string
	Files          []filecontext.UploadedFileRef
}

// SubmitResult reports what the pipeline did with a submission.
type SubmitResult struct {
	Conversation    conversation.Conversation
	Message         conversation.Message
	Path            queryrouter.Path
	JobHandle       string
	UsedDirectModel bool
}

// Store is the durable conversation store the orchestrator depends on.
// *conversation.Service satisfies it.
type Store interface {
	Create(ctx context.Context, req conversation.CreateRequest) (conversation.Conversation, error)
	Get(ctx context.Context, id string) (conversation.Conversation, error)
	RecordMessage(ctx context.Context, input conversation.RecordMessageInput) (conversation.Message, error)
}

// Searcher is the external search adapter. *search.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) search.Response
	Research(ctx context.Context, req search.ResearchRequest) search.Response
}

// Runner is the async generation job runner. *jobs.Client satisfies it.
type Runner interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (string, error)
	Status(ctx context.Context, handle string) (jobs.State, error)
	DefaultModel() string
}

// FileStore is the per-conversation file context. *filecontext.Service
// satisfies it.
type FileStore interface {
	Read(ctx context.Context, conversationID string) ([]filecontext.UploadedFileRef, error)
	Write(ctx context.Context, conversationID string, refs []filecontext.UploadedFileRef) error
}
