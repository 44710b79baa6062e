// Package conversation persists conversations and their messages; it is the
// durable record the in-memory mirror is rebuilt from.
package conversation

import (
	"time"

	"github.com/lumenlabs/lumen/internal/search"
)

// Conversation is a user-initiated thread of one or more messages. It is
// created once per submission and only ever grows by appended messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Message is one user query plus its eventual AI answer and sources.
// HasAnswer distinguishes "no answer yet" from an empty answer string.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	UserText       string              `json:"user_text"`
	SearchResults  []search.SourceItem `json:"search_results"`
	Answer         string              `json:"answer,omitempty"`
	HasAnswer      bool                `json:"has_answer"`
	Liked          bool                `json:"liked"`
	Disliked       bool                `json:"disliked"`
	CreatedAt      time.Time           `json:"created_at"`
}

// CreateRequest creates a conversation container.
type CreateRequest struct {
	UserID string
	Query  string
	Mode   string
	Model  string
}

// RecordMessageInput inserts one exchange row.
type RecordMessageInput struct {
	ConversationID string
	UserText       string
	Results        []search.SourceItem
	Metadata       map[string]any
}

// ReactionRequest updates the like/dislike flags on a message.
type ReactionRequest struct {
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
}
