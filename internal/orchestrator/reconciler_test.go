package orchestrator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/event"
)

type fakeSnapshots struct {
	conv  conversation.Conversation
	err   error
	calls int
}

func (f *fakeSnapshots) Get(ctx context.Context, id string) (conversation.Conversation, error) {
	f.calls++
	if f.err != nil {
		return conversation.Conversation{}, f.err
	}
	return f.conv, nil
}

type staticProbe bool

func (p staticProbe) Active(string) bool { return bool(p) }

func msg(id string, answered bool) conversation.Message {
	m := conversation.Message{ID: id, ConversationID: "conv-1", UserText: "q"}
	if answered {
		m.Answer = "a"
		m.HasAnswer = true
	}
	return m
}

func snapshot(msgs ...conversation.Message) conversation.Conversation {
	return conversation.Conversation{ID: "conv-1", Query: "q", Mode: "search", Messages: msgs}
}

func newTestReconciler(src SnapshotSource) (*Reconciler, *event.Broker) {
	broker := event.NewBroker()
	return NewReconciler(slog.Default(), src, broker), broker
}

func TestRefreshReplacesMirror(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", false))}
	r, _ := newTestReconciler(src)

	res, err := r.Refresh(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(res.NewAnswerIDs) != 0 {
		t.Errorf("first refresh detected answers: %v", res.NewAnswerIDs)
	}

	got, ok := r.Snapshot("conv-1")
	if !ok {
		t.Fatal("mirror not populated")
	}
	if diff := cmp.Diff(src.conv, got); diff != "" {
		t.Errorf("mirror mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshDetectsNewAnswer(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", false), msg("m-2", false))}
	r, broker := newTestReconciler(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx, "conv-1")

	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	src.conv = snapshot(msg("m-1", false), msg("m-2", true))
	res, err := r.Refresh(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if diff := cmp.Diff([]string{"m-2"}, res.NewAnswerIDs); diff != "" {
		t.Errorf("new answers (-want +got):\n%s", diff)
	}
	if res.AllAnswered {
		t.Error("all answered reported with m-1 still pending")
	}

	select {
	case ev := <-events:
		if ev.Type != event.TypeAnswerArrived || ev.MessageID != "m-2" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no answer event published")
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", true))}
	r, broker := newTestReconciler(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx, "conv-1")

	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Same snapshot applied again must not re-detect the answer.
	res, err := r.Refresh(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(res.NewAnswerIDs) != 0 {
		t.Errorf("duplicate answer signal: %v", res.NewAnswerIDs)
	}
	if !res.AllAnswered {
		t.Error("all answered not reported")
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestRefreshStoreErrorLeavesMirror(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", false))}
	r, _ := newTestReconciler(src)
	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	src.err = context.DeadlineExceeded
	if _, err := r.Refresh(context.Background(), "conv-1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := r.Snapshot("conv-1"); !ok {
		t.Error("failed refresh dropped the mirror")
	}
}

func TestLoadingMessageOnlyNewestUnanswered(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", false), msg("m-2", false))}
	r, _ := newTestReconciler(src)
	r.SetActivityProbe(staticProbe(true))

	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	id, loading := r.LoadingMessage("conv-1")
	if !loading || id != "m-2" {
		t.Errorf("loading = (%q, %v), want m-2 only", id, loading)
	}
}

func TestLoadingMessageRequiresActivePoller(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", false))}
	r, _ := newTestReconciler(src)
	r.SetActivityProbe(staticProbe(false))

	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, loading := r.LoadingMessage("conv-1"); loading {
		t.Error("loading shown without a live poller")
	}
}

func TestLoadingMessageClearsWhenAnswered(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", true))}
	r, _ := newTestReconciler(src)
	r.SetActivityProbe(staticProbe(true))

	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, loading := r.LoadingMessage("conv-1"); loading {
		t.Error("loading shown for an answered message")
	}
}

func TestForgetDropsMirror(t *testing.T) {
	src := &fakeSnapshots{conv: snapshot(msg("m-1", false))}
	r, _ := newTestReconciler(src)
	if _, err := r.Refresh(context.Background(), "conv-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	r.Forget("conv-1")
	if _, ok := r.Snapshot("conv-1"); ok {
		t.Error("mirror entry survived Forget")
	}
}
