package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kelter-antunes/chromara/internal/events"
)

// Status is the snapshot served by GET /status.
type Status struct {
	Session string `json:"session"`
	State   string `json:"state"`
}

// StatusFunc reports the current session status.
type StatusFunc func() Status

// Handlers holds HTTP handlers and their dependencies.
type Handlers struct {
	Bus    *events.Bus
	Status StatusFunc

	heartbeat time.Duration
}

// NewHandlers creates handlers. status may be nil.
func NewHandlers(bus *events.Bus, status StatusFunc) *Handlers {
	return &Handlers{
		Bus:       bus,
		Status:    status,
		heartbeat: 30 * time.Second,
	}
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Status())
}

// HandleEventStream handles GET /events/stream for SSE.
func (h *Handlers) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Bus.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
