package httpapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"goa.design/agentgateway/internal/trace"
)

// handleListTraces serves GET /api/traces?status&has_errors&has_sandbox_blocks&search&limit&offset.
func handleListTraces(store trace.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := trace.Filter{
			Status: trace.Status(q.Get("status")),
			Search: q.Get("search"),
			Limit:  atoiDefault(q.Get("limit"), 50),
			Offset: atoiDefault(q.Get("offset"), 0),
		}
		if v := q.Get("has_errors"); v != "" {
			b := v == "true" || v == "1"
			filter.HasErrors = &b
		}
		if v := q.Get("has_sandbox_blocks"); v != "" {
			b := v == "true" || v == "1"
			filter.HasSandboxBlocks = &b
		}

		records, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"traces": records})
	}
}

// handleGetTrace serves GET /api/traces/{id}.
func handleGetTrace(store trace.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := store.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleDownloadTrace serves GET /api/traces/{id}/download: the raw
// TraceRecord document as an attachment, for a browser "save trace" action.
func handleDownloadTrace(store trace.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := store.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}
		data, err := trace.MarshalForFlush(rec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.json"`)
		_, _ = w.Write(data)
	}
}

// timelineSpan is one reconstructed tool-call span in a trace's timeline,
// grouping a tool_start/tool_result event pair (or a lone sandbox_block)
// keyed by the translator's iteration/parallel_group tagging.
type timelineSpan struct {
	Tool          string `json:"tool"`
	ToolUseID     string `json:"tool_use_id"`
	Iteration     int    `json:"iteration"`
	ParallelGroup string `json:"parallel_group,omitempty"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at,omitempty"`
	Status        string `json:"status"`
	Blocked       bool   `json:"blocked"`
	Reason        string `json:"reason,omitempty"`
}

// handleTraceTimeline serves GET /api/traces/{id}/timeline: reconstructs
// per-tool start/end spans grouped by iteration and parallel_group from the
// trace's flat event log, for the UI's timeline view (A5's companion data
// endpoint; the UI itself is out of scope).
func handleTraceTimeline(store trace.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := store.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"timeline": buildTimeline(rec)})
	}
}

func buildTimeline(rec trace.Record) []timelineSpan {
	spans := map[string]*timelineSpan{}
	var order []string
	for _, ev := range rec.Events {
		toolUseID, _ := ev.Data["tool_use_id"].(string)
		switch ev.EventType {
		case "tool_start":
			span := &timelineSpan{
				Tool:      stringField(ev.Data, "tool"),
				ToolUseID: toolUseID,
				Iteration: intField(ev.Data, "iteration"),
				ParallelGroup: stringField(ev.Data, "parallel_group"),
				StartedAt: ev.Timestamp.Format(timeLayout),
				Status:    "running",
			}
			spans[toolUseID] = span
			order = append(order, toolUseID)
		case "tool_result":
			if span, ok := spans[toolUseID]; ok {
				span.EndedAt = ev.Timestamp.Format(timeLayout)
				span.Status = stringField(ev.Data, "status")
			}
		case "sandbox_block":
			span := &timelineSpan{
				Tool:      stringField(ev.Data, "tool"),
				ToolUseID: toolUseID,
				Iteration: intField(ev.Data, "iteration"),
				StartedAt: ev.Timestamp.Format(timeLayout),
				EndedAt:   ev.Timestamp.Format(timeLayout),
				Status:    "blocked",
				Blocked:   true,
				Reason:    stringField(ev.Data, "reason"),
			}
			key := toolUseID
			if key == "" {
				key = "block-" + strconv.Itoa(len(order))
			}
			spans[key] = span
			order = append(order, key)
		}
	}
	out := make([]timelineSpan, 0, len(order))
	for _, k := range order {
		out = append(out, *spans[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func stringField(d map[string]any, key string) string {
	v, _ := d[key].(string)
	return v
}

func intField(d map[string]any, key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
