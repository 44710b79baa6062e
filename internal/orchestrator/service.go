package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/event"
	"github.com/lumenlabs/lumen/internal/jobs"
	"github.com/lumenlabs/lumen/internal/queryrouter"
	"github.com/lumenlabs/lumen/internal/search"
)

// Service runs the submission pipeline: route, gather sources, persist the
// exchange, start generation, and poll for completion.
type Service struct {
	logger     *slog.Logger
	store      Store
	searcher   Searcher
	runner     Runner
	files      FileStore
	pollers    *Manager
	reconciler *Reconciler
	broker     *event.Broker
}

func NewService(log *slog.Logger, store Store, searcher Searcher, runner Runner, files FileStore, pollers *Manager, reconciler *Reconciler, broker *event.Broker) *Service {
	reconciler.SetActivityProbe(pollers)
	return &Service{
		logger:     log.With(slog.String("service", "orchestrator")),
		store:      store,
		searcher:   searcher,
		runner:     runner,
		files:      files,
		pollers:    pollers,
		reconciler: reconciler,
		broker:     broker,
	}
}

// Submit accepts one user submission and drives it to the point where a
// poller is watching the generation job. Exactly one message row is created
// per accepted submission; generation is invoked at most once.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Files) == 0 {
		return SubmitResult{}, ErrEmptySubmission
	}

	mode := in.Mode
	if mode != search.ModeResearch {
		mode = search.ModeSearch
	}
	model := in.Model
	if model == "" {
		model = s.runner.DefaultModel()
	}

	var conv conversation.Conversation
	var err error
	if in.ConversationID == "" {
		conv, err = s.store.Create(ctx, conversation.CreateRequest{
			UserID: in.UserID,
			Query:  in.Text,
			Mode:   string(mode),
			Model:  model,
		})
		if err != nil {
			return SubmitResult{}, fmt.Errorf("create conversation: %w", err)
		}
	} else {
		conv, err = s.store.Get(ctx, in.ConversationID)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("load conversation: %w", err)
		}
	}

	stored, err := s.files.Read(ctx, conv.ID)
	if err != nil {
		s.logger.Warn("file context read failed", "conversation_id", conv.ID, "error", err)
		stored = nil
	}

	decision := queryrouter.Route(queryrouter.Input{
		Text:        in.Text,
		Mode:        mode,
		FreshFiles:  in.Files,
		StoredFiles: stored,
	})

	var results []search.SourceItem
	providerHandle := ""
	useDirect := false
	metadata := map[string]any{"path": string(decision.Path)}

	switch decision.Path {
	case queryrouter.PathSearch:
		resp := s.searcher.Search(ctx, in.Text)
		if resp.Unavailable {
			s.logger.Warn("search provider unavailable, falling back to direct model", "conversation_id", conv.ID)
			useDirect = true
		} else {
			results = resp.Results
		}
	case queryrouter.PathResearch:
		resp := s.searcher.Research(ctx, search.ResearchRequest{Query: in.Text, UserID: in.UserID})
		if resp.Unavailable {
			s.logger.Warn("research provider unavailable, falling back to direct model", "conversation_id", conv.ID)
			useDirect = true
		} else {
			results = resp.Results
			// The research provider may have started generation server-side.
			providerHandle = resp.JobHandle
		}
	case queryrouter.PathFileAnalysis:
		if len(in.Files) > 0 {
			if err := s.files.Write(ctx, conv.ID, in.Files); err != nil {
				return SubmitResult{}, fmt.Errorf("persist file context: %w", err)
			}
		}
		names := make([]string, 0, len(decision.Files))
		for _, f := range decision.Files {
			names = append(names, f.FileName)
		}
		metadata["files"] = names
		if decision.UseHistory {
			metadata["use_history"] = true
		}
	}

	msg, err := s.store.RecordMessage(ctx, conversation.RecordMessageInput{
		ConversationID: conv.ID,
		UserText:       in.Text,
		Results:        results,
		Metadata:       metadata,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("record message: %w", err)
	}

	handle := providerHandle
	if handle == "" {
		handle, err = s.runner.Submit(ctx, jobs.SubmitRequest{
			Query:          in.Text,
			Results:        results,
			MessageID:      msg.ID,
			Model:          model,
			UseDirectModel: useDirect,
		})
		if err != nil {
			// Without a handle completion can never be observed; fatal,
			// no retry.
			return SubmitResult{}, fmt.Errorf("start generation: %w", err)
		}
	}

	if _, err := s.reconciler.Refresh(ctx, conv.ID); err != nil {
		s.logger.Warn("mirror refresh failed", "conversation_id", conv.ID, "error", err)
	}

	s.pollers.Start(conv.ID, handle)
	s.broker.Publish(event.Event{ConversationID: conv.ID, Type: event.TypeGenerationStarted, MessageID: msg.ID})

	if snap, ok := s.reconciler.Snapshot(conv.ID); ok {
		conv = snap
	}
	return SubmitResult{
		Conversation:    conv,
		Message:         msg,
		Path:            decision.Path,
		JobHandle:       handle,
		UsedDirectModel: useDirect,
	}, nil
}

// Refresh re-reads the conversation from the store into the mirror; used on
// initial page load, independent of polling. When the applied snapshot shows
// every message answered, any live poller for the conversation is stopped as
// Completed, so an answer delivered out of band ends polling immediately.
func (s *Service) Refresh(ctx context.Context, conversationID string) (RefreshResult, error) {
	res, err := s.reconciler.Refresh(ctx, conversationID)
	if err != nil {
		return res, err
	}
	if res.AllAnswered && s.pollers.Active(conversationID) {
		s.pollers.Complete(conversationID)
	}
	return res, nil
}

// LoadingMessage reports which message, if any, should show a spinner.
func (s *Service) LoadingMessage(conversationID string) (string, bool) {
	return s.reconciler.LoadingMessage(conversationID)
}

// PollState exposes the conversation's poll state for status endpoints.
func (s *Service) PollState(conversationID string) Status {
	return s.pollers.State(conversationID)
}

// Leave cancels polling and drops the mirror entry when a client navigates
// away from a conversation.
func (s *Service) Leave(conversationID string) {
	s.pollers.Stop(conversationID)
	s.reconciler.Forget(conversationID)
}

// Shutdown stops all live pollers.
func (s *Service) Shutdown() {
	s.pollers.StopAll()
}
