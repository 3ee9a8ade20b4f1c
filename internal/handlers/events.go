package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/internal/services"
)

// EventSource is the engine event bus.
type EventSource interface {
	OnAll(h services.EventHandler) *services.Subscription
}

// EventsHandler streams lock and session events to the shell as
// server-sent events.
type EventsHandler struct {
	source    EventSource
	logger    *slog.Logger
	keepAlive time.Duration
	buffer    int
}

func NewEventsHandler(source EventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{source: source, logger: logger, keepAlive: 15 * time.Second, buffer: 64}
}

// Stream handles GET /events. A client that falls behind by more than the
// buffer loses the oldest undelivered events and should re-read status.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The server write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	ch := make(chan models.Event, h.buffer)
	sub := h.source.OnAll(func(ev models.Event) {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("event stream client too slow, dropping event", slog.String("type", string(ev.Type)))
		}
	})
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream cannot flush", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
