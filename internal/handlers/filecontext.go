package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lumenlabs/lumen/internal/filecontext"
)

// FileContext is the per-conversation file set. *filecontext.Service
// satisfies it.
type FileContext interface {
	Read(ctx context.Context, conversationID string) ([]filecontext.UploadedFileRef, error)
	Clear(ctx context.Context, conversationID string) error
}

type FileContextHandler struct {
	files  FileContext
	logger *slog.Logger
}

func NewFileContextHandler(log *slog.Logger, files FileContext) *FileContextHandler {
	return &FileContextHandler{
		files:  files,
		logger: log.With(slog.String("handler", "filecontext")),
	}
}

func (h *FileContextHandler) Register(e *echo.Echo) {
	g := e.Group("/conversations/:id/files")
	g.GET("", h.List)
	g.DELETE("", h.Clear)
}

func (h *FileContextHandler) List(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	refs, err := h.files.Read(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("file context read failed", "conversation_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"files": refs})
}

// Clear removes the stored file references. The source files themselves are
// not deleted remotely.
func (h *FileContextHandler) Clear(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	if err := h.files.Clear(c.Request().Context(), id); err != nil {
		h.logger.Error("file context clear failed", "conversation_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
