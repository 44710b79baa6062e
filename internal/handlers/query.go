package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/lumenlabs/lumen/internal/auth"
	"github.com/lumenlabs/lumen/internal/filecontext"
	"github.com/lumenlabs/lumen/internal/jobs"
	"github.com/lumenlabs/lumen/internal/orchestrator"
	"github.com/lumenlabs/lumen/internal/search"
)

// Submitter runs the submission pipeline. *orchestrator.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, in orchestrator.SubmitInput) (orchestrator.SubmitResult, error)
}

// SubmitRequest is the wire shape of a query submission.
type SubmitRequest struct {
	ConversationID string                        `json:"conversation_id"`
	Query          string                        `json:"query"`
	Mode           string                        `json:"mode" validate:"omitempty,oneof=search research"`
	Model          string                        `json:"model"`
	Files          []filecontext.UploadedFileRef `json:"files"`
}

type QueryHandler struct {
	submitter Submitter
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewQueryHandler(log *slog.Logger, submitter Submitter) *QueryHandler {
	return &QueryHandler{
		submitter: submitter,
		validate:  validator.New(),
		logger:    log.With(slog.String("handler", "query")),
	}
}

func (h *QueryHandler) Register(e *echo.Echo) {
	e.POST("/queries", h.Submit)
}

func (h *QueryHandler) Submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" && len(req.Files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "query or files is required")
	}

	userID, _ := auth.UserIDFromContext(c)
	res, err := h.submitter.Submit(c.Request().Context(), orchestrator.SubmitInput{
		ConversationID: req.ConversationID,
		UserID:         userID,
		Text:           req.Query,
		Mode:           search.Mode(req.Mode),
		Model:          req.Model,
		Files:          req.Files,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptySubmission) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, jobs.ErrNoHandle) {
			h.logger.Error("generation could not be started", "error", err)
			return echo.NewHTTPError(http.StatusBadGateway, "generation could not be started")
		}
		h.logger.Error("submission failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"conversation": res.Conversation,
		"message":      res.Message,
		"path":         string(res.Path),
		"job_handle":   res.JobHandle,
		"direct_model": res.UsedDirectModel,
	})
}
