package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lumenlabs/lumen/internal/conversation"
)

// AnswerWriter records a generated answer. *conversation.Service satisfies it.
type AnswerWriter interface {
	SetAnswer(ctx context.Context, messageID, answer string) error
}

// AnswerHandler is the job runner's callback for delivering generated
// answers. The poller observes completion through job status; this endpoint
// is what actually writes the answer the next refresh picks up.
type AnswerHandler struct {
	writer AnswerWriter
	logger *slog.Logger
}

func NewAnswerHandler(log *slog.Logger, writer AnswerWriter) *AnswerHandler {
	return &AnswerHandler{
		writer: writer,
		logger: log.With(slog.String("handler", "answer")),
	}
}

func (h *AnswerHandler) Register(e *echo.Echo) {
	e.POST("/messages/:id/answer", h.Deliver)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (h *AnswerHandler) Deliver(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message id is required")
	}

	var req answerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.writer.SetAnswer(c.Request().Context(), id, req.Answer); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "message not found")
		}
		h.logger.Error("answer write failed", "message_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
