package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/event"
)

// SnapshotSource fetches a full conversation from the durable store.
type SnapshotSource interface {
	Get(ctx context.Context, id string) (conversation.Conversation, error)
}

// ActivityProbe reports whether a live poller exists for a conversation.
type ActivityProbe interface {
	Active(conversationID string) bool
}

// RefreshResult describes what changed when a snapshot was applied.
type RefreshResult struct {
	Conversation conversation.Conversation
	NewAnswerIDs []string
	AllAnswered  bool
}

// Reconciler owns the in-memory conversation mirror. All mirror mutations go
// through Refresh; every other component only reads snapshots, which keeps
// concurrent pollers and handlers from stepping on each other's updates.
type Reconciler struct {
	logger *slog.Logger
	store  SnapshotSource
	broker *event.Broker

	mu     sync.Mutex
	mirror map[string]conversation.Conversation
	active ActivityProbe
}

func NewReconciler(log *slog.Logger, store SnapshotSource, broker *event.Broker) *Reconciler {
	return &Reconciler{
		logger: log.With(slog.String("service", "reconciler")),
		store:  store,
		broker: broker,
		mirror: map[string]conversation.Conversation{},
	}
}

// SetActivityProbe wires the poller manager in after construction; the
// manager and the reconciler reference each other.
func (r *Reconciler) SetActivityProbe(p ActivityProbe) {
	r.mu.Lock()
	r.active = p
	r.mu.Unlock()
}

// Refresh fetches the conversation from the store, replaces the mirror
// snapshot, and reports which messages newly gained an answer. The diff is
// always against the last-applied snapshot, so applying the same snapshot
// twice detects nothing the second time.
func (r *Reconciler) Refresh(ctx context.Context, conversationID string) (RefreshResult, error) {
	fresh, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return RefreshResult{}, err
	}

	r.mu.Lock()
	prev, hadPrev := r.mirror[conversationID]
	r.mirror[conversationID] = fresh
	r.mu.Unlock()

	res := RefreshResult{Conversation: fresh, AllAnswered: allAnswered(fresh)}
	if hadPrev {
		answered := map[string]bool{}
		for _, m := range prev.Messages {
			answered[m.ID] = m.HasAnswer
		}
		for _, m := range fresh.Messages {
			was, seen := answered[m.ID]
			if seen && !was && m.HasAnswer {
				res.NewAnswerIDs = append(res.NewAnswerIDs, m.ID)
			}
		}
	}

	for _, id := range res.NewAnswerIDs {
		r.logger.Info("answer arrived", "conversation_id", conversationID, "message_id", id)
		r.broker.Publish(event.Event{
			ConversationID: conversationID,
			Type:           event.TypeAnswerArrived,
			MessageID:      id,
		})
	}
	return res, nil
}

// Snapshot returns a copy of the mirrored conversation, if one was applied.
func (r *Reconciler) Snapshot(conversationID string) (conversation.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.mirror[conversationID]
	return conv, ok
}

// Forget drops the mirror entry, for when a conversation is navigated away
// from. The mirror is a cache and is rebuilt by the next Refresh.
func (r *Reconciler) Forget(conversationID string) {
	r.mu.Lock()
	delete(r.mirror, conversationID)
	r.mu.Unlock()
}

// LoadingMessage reports the message a client should show a spinner for:
// only the most recently appended message, only while it has no answer, and
// only while a live poller exists. Earlier unanswered messages never load.
func (r *Reconciler) LoadingMessage(conversationID string) (string, bool) {
	r.mu.Lock()
	conv, ok := r.mirror[conversationID]
	probe := r.active
	r.mu.Unlock()

	if !ok || len(conv.Messages) == 0 {
		return "", false
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.HasAnswer {
		return "", false
	}
	if probe == nil || !probe.Active(conversationID) {
		return "", false
	}
	return last.ID, true
}

func allAnswered(conv conversation.Conversation) bool {
	if len(conv.Messages) == 0 {
		return false
	}
	for _, m := range conv.Messages {
		if !m.HasAnswer {
			return false
		}
	}
	return true
}
