// Package trace implements the gateway's Trace Logger (C2): an append-only,
// crash-safe per-turn event log with rolling statistics, persisted as one
// JSON document per turn.
//
// Grounded on runtime/agent/runlog's Event/Page/Store cursor-pagination
// shape for the list/append contract, generalized from a flat event log to
// spec.md's full TraceRecord (metadata + stats + events).
package trace

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle status of a TraceRecord.
type Status string

// Trace statuses, per spec.md §3 TraceRecord.metadata.status.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Stats aggregates counters over a turn's events, per spec.md §3.
type Stats struct {
	ToolCalls      int `json:"tool_calls"`
	Iterations     int `json:"iterations"`
	SubAgents      int `json:"sub_agents"`
	Errors         int `json:"errors"`
	HooksTriggered int `json:"hooks_triggered"`
	SandboxBlocks  int `json:"sandbox_blocks"`
	ThinkingBlocks int `json:"thinking_blocks"`
	ThinkingChars  int `json:"thinking_chars"`
}

// Metadata is the `metadata` field of a TraceRecord.
type Metadata struct {
	TraceID    string    `json:"trace_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time,omitempty"`
	Status     Status    `json:"status"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Stats      Stats     `json:"stats"`
}

// Event is one entry in a TraceRecord's event log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	ElapsedMS int64          `json:"elapsed_ms"`
	EventType string         `json:"event_type"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
}

// Record is the full persisted TraceRecord document, spec.md §3.
type Record struct {
	Metadata Metadata `json:"metadata"`
	Events   []Event  `json:"events"`
}

// summaryTemplates renders a one-line human-readable summary per event
// type, matching spec.md §4.2's "generates a one-line summary from a table
// keyed by event_type".
var summaryTemplates = map[string]func(data map[string]any) string{
	"tool_start": func(d map[string]any) string {
		return fmt.Sprintf("started tool %v", d["tool"])
	},
	"tool_result": func(d map[string]any) string {
		return fmt.Sprintf("tool %v finished with status %v", d["tool"], d["status"])
	},
	"sandbox_block": func(d map[string]any) string {
		return fmt.Sprintf("sandbox blocked %v: %v", d["tool"], d["reason"])
	},
	"agent_spawn": func(d map[string]any) string {
		return fmt.Sprintf("sub-agent spawned at depth %v", d["depth"])
	},
	"agent_complete": func(map[string]any) string {
		return "sub-agent completed"
	},
	"thinking": func(d map[string]any) string {
		return fmt.Sprintf("thinking (%v chars)", d["length"])
	},
	"hook_keep_stream_open": func(map[string]any) string {
		return "keep-stream-open hook invoked"
	},
	"html_created": func(d map[string]any) string {
		return fmt.Sprintf("artifact created at %v", d["url"])
	},
}

func summarize(eventType string, data map[string]any) string {
	if f, ok := summaryTemplates[eventType]; ok {
		return f(data)
	}
	return eventType
}

// Logger is a single turn's trace accumulator: new() / log() / log_error() /
// complete() from spec.md §4.2, backed by a Store for persistence.
type Logger struct {
	mu      sync.Mutex
	record  Record
	store   Store
	startAt time.Time
}

// New starts a new trace for traceID, writing an initial "running" record
// through store.
func New(store Store, traceID string) *Logger {
	now := time.Now()
	l := &Logger{
		store:   store,
		startAt: now,
		record: Record{
			Metadata: Metadata{TraceID: traceID, StartTime: now, Status: StatusRunning},
		},
	}
	_ = l.flush()
	return l
}

// Log appends an event, updates rolling stats, and flushes.
func (l *Logger) Log(eventType string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	ev := Event{
		Timestamp: now,
		ElapsedMS: now.Sub(l.startAt).Milliseconds(),
		EventType: eventType,
		Summary:   summarize(eventType, data),
		Data:      data,
	}
	l.record.Events = append(l.record.Events, ev)
	l.updateStats(eventType, data)
	_ = l.flush()
}

func (l *Logger) updateStats(eventType string, data map[string]any) {
	s := &l.record.Metadata.Stats
	switch eventType {
	case "tool_start":
		s.ToolCalls++
		if name, _ := data["tool"].(string); name == "Task" {
			s.SubAgents++
		}
	case "sandbox_block":
		s.SandboxBlocks++
	case "thinking":
		s.ThinkingBlocks++
		if length, ok := data["length"].(int); ok {
			s.ThinkingChars += length
		}
	case "hook_keep_stream_open", "hook_pre_tool", "hook_post_tool":
		s.HooksTriggered++
	case "iteration_advance":
		s.Iterations++
	}
}

// LogError marks the trace as errored and appends an error event.
func (l *Logger) LogError(kind, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record.Metadata.Status = StatusError
	l.record.Metadata.Stats.Errors++
	now := time.Now()
	l.record.Events = append(l.record.Events, Event{
		Timestamp: now,
		ElapsedMS: now.Sub(l.startAt).Milliseconds(),
		EventType: "error",
		Summary:   fmt.Sprintf("%s: %s", kind, message),
		Data:      map[string]any{"kind": kind, "message": message},
	})
	_ = l.flush()
}

// Complete finalizes the trace as completed (unless LogError already set it
// to error) and writes the final snapshot.
func (l *Logger) Complete() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.record.Metadata.Status == StatusRunning {
		l.record.Metadata.Status = StatusCompleted
	}
	l.record.Metadata.EndTime = time.Now()
	l.record.Metadata.DurationMS = l.record.Metadata.EndTime.Sub(l.record.Metadata.StartTime).Milliseconds()
	_ = l.flush()
	return l.record
}

// Record returns a copy of the current in-memory record.
func (l *Logger) Record() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record
}

func (l *Logger) flush() error {
	return l.store.Put(l.record)
}

// MarshalForFlush is exposed for stores that need the raw bytes (e.g. the
// file store's write-temp-then-rename path).
func MarshalForFlush(r Record) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
