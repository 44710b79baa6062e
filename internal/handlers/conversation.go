package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/orchestrator"
)

// Viewer exposes the orchestrator's read side. *orchestrator.Service
// satisfies it.
type Viewer interface {
	Refresh(ctx context.Context, conversationID string) (orchestrator.RefreshResult, error)
	LoadingMessage(conversationID string) (string, bool)
	PollState(conversationID string) orchestrator.Status
	Leave(conversationID string)
}

// Reactor updates per-message reaction flags. *conversation.Service
// satisfies it.
type Reactor interface {
	UpdateReaction(ctx context.Context, messageID string, req conversation.ReactionRequest) error
}

type ConversationHandler struct {
	viewer  Viewer
	reactor Reactor
	logger  *slog.Logger
}

func NewConversationHandler(log *slog.Logger, viewer Viewer, reactor Reactor) *ConversationHandler {
	return &ConversationHandler{
		viewer:  viewer,
		reactor: reactor,
		logger:  log.With(slog.String("handler", "conversation")),
	}
}

func (h *ConversationHandler) Register(e *echo.Echo) {
	g := e.Group("/conversations/:id")
	g.GET("", h.Get)
	g.POST("/leave", h.Leave)
	e.POST("/messages/:id/reaction", h.React)
}

// Get refreshes the conversation from the store and returns it together with
// the derived loading flag and poll state.
func (h *ConversationHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	res, err := h.viewer.Refresh(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		h.logger.Error("refresh failed", "conversation_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	loadingID, loading := h.viewer.LoadingMessage(id)
	return c.JSON(http.StatusOK, map[string]any{
		"conversation":       res.Conversation,
		"loading":            loading,
		"loading_message_id": loadingID,
		"poll_state":         string(h.viewer.PollState(id)),
	})
}

// Leave cancels polling for the conversation and drops its cached view.
func (h *ConversationHandler) Leave(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	h.viewer.Leave(id)
	return c.NoContent(http.StatusNoContent)
}

// React sets the like/dislike flags on a message.
func (h *ConversationHandler) React(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message id is required")
	}

	var req conversation.ReactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.reactor.UpdateReaction(c.Request().Context(), id, req); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "message not found")
		}
		h.logger.Error("reaction update failed", "message_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
