package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"goa.design/agentgateway/internal/sse"
	"goa.design/agentgateway/internal/turn"
)

// chatRequest is the POST /api/chat and POST /api/chat/thinking body,
// spec.md §4.7.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	History   string `json:"history"`
}

// ChatHandler serves POST /api/chat and POST /api/chat/thinking by driving
// an internal/turn.Coordinator per request and streaming its output back as
// Server-Sent Events. The thinking variant is the same coordinator with
// extended-thinking enabled at construction time; the runtime-level
// thinking behavior itself is out of scope (spec.md §1 Non-goals).
type ChatHandler struct {
	Turn         *turn.Coordinator
	ThinkingTurn *turn.Coordinator // nil falls back to Turn

	ready int32 // set by Warmup; read by warmup/status and health
}

// ServeChat handles POST /api/chat.
func (h *ChatHandler) ServeChat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.Turn)
}

// ServeChatThinking handles POST /api/chat/thinking.
func (h *ChatHandler) ServeChatThinking(w http.ResponseWriter, r *http.Request) {
	c := h.ThinkingTurn
	if c == nil {
		c = h.Turn
	}
	h.serve(w, r, c)
}

func (h *ChatHandler) serve(w http.ResponseWriter, r *http.Request, coordinator *turn.Coordinator) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	// trace_id/session_id are allocated before the SSE writer so they can be
	// set as response headers, which must happen before the first Send.
	traceID := uuid.NewString()
	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	w.Header().Set("X-Trace-Id", traceID)
	w.Header().Set("X-Session-Id", sessionID)
	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	req := turn.Request{
		Message:   body.Message,
		SessionID: sessionID,
		TraceID:   traceID,
		History:   body.History,
	}
	_, _ = coordinator.Run(r.Context(), req, writer)
}

// handleHealth reports process liveness for GET /api/health.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWarmup triggers an inert readiness probe for POST /api/warmup: the
// agent runtime connection itself is out of scope, so warmup only flips the
// handler's readiness flag for /api/warmup/status to report.
func handleWarmup(h *ChatHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.StoreInt32(&h.ready, 1)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "warming"})
	}
}

// handleWarmupStatus serves GET /api/warmup/status.
func handleWarmupStatus(h *ChatHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := atomic.LoadInt32(&h.ready) == 1
		status := "cold"
		if ready {
			status = "ready"
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "ready": ready})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
