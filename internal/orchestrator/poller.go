package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/event"
	"github.com/lumenlabs/lumen/internal/jobs"
)

// StatusChecker is the slice of the job runner the poller needs.
type StatusChecker interface {
	Status(ctx context.Context, handle string) (jobs.State, error)
}

// Refresher pulls a fresh conversation snapshot into the mirror.
// *Reconciler satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, conversationID string) (RefreshResult, error)
}

type poller struct {
	handle string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs at most one live poller per conversation. Starting a second
// poller for the same conversation cancels the first before the new one is
// registered, so two timers never tick concurrently for one conversation.
type Manager struct {
	logger    *slog.Logger
	checker   StatusChecker
	refresher Refresher
	broker    *event.Broker

	interval    time.Duration
	maxAttempts int
	budget      time.Duration

	mu     sync.Mutex
	live   map[string]*poller
	status map[string]Status
}

func NewManager(log *slog.Logger, cfg config.PollConfig, checker StatusChecker, refresher Refresher, broker *event.Broker) *Manager {
	return &Manager{
		logger:      log.With(slog.String("service", "poller")),
		checker:     checker,
		refresher:   refresher,
		broker:      broker,
		interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		maxAttempts: cfg.MaxAttempts,
		budget:      time.Duration(cfg.BudgetSeconds) * time.Second,
		live:        map[string]*poller{},
		status:      map[string]Status{},
	}
}

// Start begins polling a job handle for a conversation, superseding any
// poller already running for it. The superseded poller is fully stopped
// before the new one is allowed to tick.
func (m *Manager) Start(conversationID, handle string) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{handle: handle, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	prev := m.live[conversationID]
	m.live[conversationID] = p
	m.status[conversationID] = StatusPolling
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	m.logger.Info("polling started", "conversation_id", conversationID, "job_handle", handle)
	go m.run(ctx, p, conversationID, handle)
}

// Stop cancels the conversation's poller, if any, and waits for it to exit.
// No status check is issued after Stop returns.
func (m *Manager) Stop(conversationID string) {
	m.mu.Lock()
	p := m.live[conversationID]
	if p != nil {
		delete(m.live, conversationID)
		m.status[conversationID] = StatusIdle
	}
	m.mu.Unlock()

	if p != nil {
		p.cancel()
		<-p.done
	}
}

// Complete stops the conversation's poller, if any, recording Completed
// rather than Idle. Used when a mirror refresh observes the answer before
// the job status reports it, so polling ends as soon as the answer lands.
func (m *Manager) Complete(conversationID string) {
	m.mu.Lock()
	p := m.live[conversationID]
	if p != nil {
		delete(m.live, conversationID)
		m.status[conversationID] = StatusCompleted
	}
	m.mu.Unlock()

	if p != nil {
		p.cancel()
		<-p.done
		m.logger.Info("polling finished", "conversation_id", conversationID, "state", string(StatusCompleted))
	}
}

// StopAll cancels every live poller; used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	pollers := make([]*poller, 0, len(m.live))
	for id, p := range m.live {
		pollers = append(pollers, p)
		delete(m.live, id)
		m.status[id] = StatusIdle
	}
	m.mu.Unlock()

	for _, p := range pollers {
		p.cancel()
		<-p.done
	}
}

// Active reports whether a live poller exists for the conversation.
func (m *Manager) Active(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[conversationID]
	return ok
}

// State returns the conversation's poll state: Polling while a poller is
// live, otherwise the terminal state of the last run, or Idle if none ran.
func (m *Manager) State(conversationID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[conversationID]; ok {
		return StatusPolling
	}
	if s, ok := m.status[conversationID]; ok {
		return s
	}
	return StatusIdle
}

func (m *Manager) run(ctx context.Context, p *poller, conversationID, handle string) {
	defer close(p.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	budget := time.NewTimer(m.budget)
	defer budget.Stop()

	malformed := 0
	for attempt := 0; attempt < m.maxAttempts; {
		select {
		case <-ctx.Done():
			return
		case <-budget.C:
			m.finish(p, conversationID, StatusTimedOut)
			return
		case <-ticker.C:
			// A tick can already be queued when cancellation lands, and
			// select may pick it over ctx.Done. Re-check before issuing
			// the status call.
			if ctx.Err() != nil {
				return
			}
			attempt++
			state, err := m.checker.Status(ctx, handle)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if errors.Is(err, jobs.ErrMalformedRequest) {
					malformed++
					m.logger.Warn("status check rejected", "conversation_id", conversationID, "error", err)
					if malformed >= 2 {
						m.finish(p, conversationID, StatusFailed)
						return
					}
				} else {
					malformed = 0
					m.logger.Warn("status check failed, retrying", "conversation_id", conversationID, "error", err)
				}
				continue
			}
			malformed = 0

			switch state {
			case jobs.StateCompleted:
				// Refresh before declaring completion so the answer is
				// visible by the time the loading flag clears.
				if _, err := m.refresher.Refresh(ctx, conversationID); err != nil {
					m.logger.Error("refresh after completion failed", "conversation_id", conversationID, "error", err)
				}
				m.finish(p, conversationID, StatusCompleted)
				return
			case jobs.StateFailed:
				m.finish(p, conversationID, StatusFailed)
				return
			}
		}
	}
	m.finish(p, conversationID, StatusTimedOut)
}

func (m *Manager) finish(p *poller, conversationID string, status Status) {
	m.mu.Lock()
	superseded := m.live[conversationID] != p
	if !superseded {
		delete(m.live, conversationID)
		m.status[conversationID] = status
	}
	m.mu.Unlock()
	if superseded {
		return
	}

	m.logger.Info("polling finished", "conversation_id", conversationID, "state", string(status))
	switch status {
	case StatusFailed:
		m.broker.Publish(event.Event{ConversationID: conversationID, Type: event.TypePollFailed})
	case StatusTimedOut:
		m.broker.Publish(event.Event{ConversationID: conversationID, Type: event.TypePollTimedOut})
	}
}
