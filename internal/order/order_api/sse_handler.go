package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/sse"
)

// SSEHandler streams hold snapshots of one event to dashboards.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.HoldEventEmitter
	OrderService OrderService
	Heartbeat    time.Duration
}

func NewSSEHandler(log *logger.Logger, emitter *sse.HoldEventEmitter, svc OrderService) *SSEHandler {
	return &SSEHandler{Logger: log, EventEmitter: emitter, OrderService: svc, Heartbeat: 25 * time.Second}
}

func (h *SSEHandler) Routes(r chi.Router) {
	r.Get("/reservas/{eventId}/stream", h.HandleHoldStream)
}

func (h *SSEHandler) HandleHoldStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	updates := h.EventEmitter.Subscribe(ctx, eventID)

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	// current state first, so a new dashboard does not wait for a change
	if snap, err := h.OrderService.Peek(ctx, eventID); err == nil {
		writeEvent(w, "holds", snap)
	} else {
		h.Logger.Warn("SSE", fmt.Sprintf("initial snapshot for %s failed: %v", eventID, err))
	}
	flusher.Flush()
	h.Logger.Info("SSE", "Client connected to hold stream for event: "+eventID)

	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			writeEvent(w, "holds", snap)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", "Client disconnected from hold stream for event: "+eventID)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
