package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ActivityListener is told about user interaction.
type ActivityListener interface {
	RecordActivity(ctx context.Context) error
}

// ActivityHub forwards one activity signal to the lock engine and the session
// tracker. The two owners keep their own state; the hub only fans out.
type ActivityHub struct {
	mu        sync.RWMutex
	listeners []ActivityListener
	logger    *slog.Logger
}

func NewActivityHub(logger *slog.Logger, listeners ...ActivityListener) *ActivityHub {
	return &ActivityHub{listeners: listeners, logger: logger}
}

// Add registers another listener.
func (h *ActivityHub) Add(l ActivityListener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()
}

// Touch records activity with every listener and joins their errors.
func (h *ActivityHub) Touch(ctx context.Context) error {
	h.mu.RLock()
	listeners := append([]ActivityListener(nil), h.listeners...)
	h.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.RecordActivity(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		h.logger.Debug("activity listener returned error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
