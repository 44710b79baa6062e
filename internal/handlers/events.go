package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lumenlabs/lumen/internal/event"
)

// EventsHandler streams conversation lifecycle events over a websocket so
// clients can react to answers arriving without polling the HTTP API.
type EventsHandler struct {
	broker   *event.Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewEventsHandler(log *slog.Logger, broker *event.Broker) *EventsHandler {
	return &EventsHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.With(slog.String("handler", "events")),
	}
}

func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET("/conversations/:id/events", h.Stream)
}

func (h *EventsHandler) Stream(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	events := h.broker.Subscribe(ctx, id)

	// Drain client frames so close messages are processed; inbound payloads
	// are ignored. A read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("event stream closed", "conversation_id", id, "error", err)
			return nil
		}
	}
	return nil
}
