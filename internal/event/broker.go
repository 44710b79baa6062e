// Package event is a conversation-scoped pub/sub broker. The orchestrator
// publishes lifecycle events (answers arriving, polls failing or timing out)
// and the event stream handler fans them out to connected clients.
package event

import (
	"context"
	"sync"
	"time"
)

const (
	TypeGenerationStarted = "generation_started"
	TypeAnswerArrived     = "answer_arrived"
	TypePollFailed        = "poll_failed"
	TypePollTimedOut      = "poll_timed_out"
)

type Event struct {
	ConversationID string         `json:"conversation_id"`
	Type           string         `json:"type"`
	MessageID      string         `json:"message_id,omitempty"`
	Ts             time.Time      `json:"ts"`
	Payload        map[string]any `json:"payload,omitempty"`
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan Event]struct{}{},
	}
}

// Subscribe registers for events on a single conversation. The returned
// channel is closed when ctx is cancelled. Slow subscribers drop events
// rather than block publishers.
func (b *Broker) Subscribe(ctx context.Context, conversationID string) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subscribers[conversationID] == nil {
		b.subscribers[conversationID] = map[chan Event]struct{}{}
	}
	b.subscribers[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[conversationID] != nil {
			delete(b.subscribers[conversationID], ch)
			if len(b.subscribers[conversationID]) == 0 {
				delete(b.subscribers, conversationID)
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Broker) Publish(ev Event) {
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}

	// Sends stay under the read lock: unsubscribe deletes the channel under
	// the write lock before closing it, so no send can race the close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[ev.ConversationID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
