package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/pkg/logger"
	"github.com/capitalize-ai/voicechat/pkg/metrics"
)

// DefaultHeartbeat is the interval between SSE heartbeats.
const DefaultHeartbeat = 30 * time.Second

// Subscriber delivers state-change events.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *model.Event, error)
}

// SnapshotEvent is the first event on a stream and carries the full state
// needed to render the page.
type SnapshotEvent struct {
	Sessions    *model.ListSessionsResponse `json:"sessions"`
	Active      *model.ChatSession          `json:"active,omitempty"`
	Documents   []model.DocumentSummary     `json:"documents"`
	Index       model.IndexStatus           `json:"index"`
	Engine      string                      `json:"engine"`
	Walkthrough model.WalkthroughState      `json:"walkthrough"`
}

// StreamHandler handles the server-sent event feed.
type StreamHandler struct {
	subscriber  Subscriber
	sessions    *service.SessionStore
	documents   *service.DocumentStore
	index       IndexStatusSource
	engine      *service.Engine
	walkthrough *service.Walkthrough
	heartbeat   time.Duration
	logger      *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(
	subscriber Subscriber,
	sessions *service.SessionStore,
	documents *service.DocumentStore,
	index IndexStatusSource,
	engine *service.Engine,
	walkthrough *service.Walkthrough,
	heartbeat time.Duration,
	log *logger.Logger,
) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		subscriber:  subscriber,
		sessions:    sessions,
		documents:   documents,
		index:       index,
		engine:      engine,
		walkthrough: walkthrough,
		heartbeat:   heartbeat,
		logger:      log,
	}
}

// Events handles GET /api/v1/events
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		h.logger.Error("failed to subscribe to events", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	// The server write timeout would otherwise end the stream.
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	if err := sendSSEEvent(w, flusher, "", "snapshot", h.snapshot()); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected")
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sendSSEEvent(w, flusher, ev.ID, string(ev.Type), ev); err != nil {
				h.logger.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "", "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) snapshot() SnapshotEvent {
	snap := SnapshotEvent{
		Sessions:    h.sessions.List(),
		Documents:   h.documents.List(),
		Index:       h.index.Status(),
		Engine:      h.engine.State(),
		Walkthrough: h.walkthrough.State(),
	}
	if active, ok := h.sessions.Active(); ok {
		snap.Active = &active
	}
	return snap
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
