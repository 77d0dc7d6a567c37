// Package sse defines the gateway's outbound Server-Sent-Events frame
// types (spec.md §6 "Outbound SSE frames") and a writer that serializes
// them over an http.ResponseWriter.
//
// Grounded on agents/runtime/stream's Event/EventType tagged union and
// New*Event constructor idiom, specialized to this gateway's exact frame
// table instead of the teacher's generic planner/tool-start/tool-end set.
package sse

// EventType is the `event:` field of an outbound frame.
type EventType string

// Outbound event types, matching spec.md §6's frame table exactly.
const (
	SessionConfig   EventType = "session_config"
	TextDelta       EventType = "text_delta"
	ThinkingDelta   EventType = "thinking_delta"
	ToolStart       EventType = "tool_start"
	ToolResult      EventType = "tool_result"
	AgentSpawn      EventType = "agent_spawn"
	AgentComplete   EventType = "agent_complete"
	HookPreTool     EventType = "hook_pre_tool"
	HookPostTool    EventType = "hook_post_tool"
	HTMLCreated     EventType = "html_created"
	CostUpdate      EventType = "cost_update"
	MessageComplete EventType = "message_complete"
	Error           EventType = "error"
)

// Event is one outbound frame: a type plus its JSON-serializable payload.
type Event struct {
	Type    EventType
	Payload any
}

// Payload structs, one per outbound event type.

// SessionConfigPayload is the session_config frame payload.
type SessionConfigPayload struct {
	MaxTurns       int    `json:"max_turns"`
	PermissionMode string `json:"permission_mode"`
	SandboxEnabled bool   `json:"sandbox_enabled"`
	SandboxRoot    string `json:"sandbox_root"`
}

// TextDeltaPayload is the text_delta frame payload.
type TextDeltaPayload struct {
	Text string `json:"text"`
}

// ThinkingDeltaPayload is the thinking_delta frame payload.
type ThinkingDeltaPayload struct {
	Thinking string `json:"thinking"`
}

// ToolStartPayload is the tool_start frame payload.
type ToolStartPayload struct {
	ToolID    string `json:"tool_id"`
	Name      string `json:"name"`
	Input     string `json:"input"`
	Iteration int    `json:"iteration"`
}

// ToolResultPayload is the tool_result frame payload.
type ToolResultPayload struct {
	ToolID string `json:"tool_id"`
	Status string `json:"status"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// AgentSpawnPayload is the agent_spawn frame payload.
type AgentSpawnPayload struct {
	AgentID      string `json:"agent_id"`
	AgentType    string `json:"agent_type"`
	Description  string `json:"description"`
	ParentToolID string `json:"parent_tool_id"`
	Iteration    int    `json:"iteration"`
	Depth        int    `json:"depth"`
}

// AgentCompletePayload is the agent_complete frame payload.
type AgentCompletePayload struct {
	AgentID string `json:"agent_id"`
}

// HookPreToolPayload is the hook_pre_tool frame payload.
type HookPreToolPayload struct {
	HookType string `json:"hook_type"`
	ToolName string `json:"tool_name"`
	Action   string `json:"action"`
	Message  string `json:"message"`
}

// HookPostToolPayload is the hook_post_tool frame payload.
type HookPostToolPayload struct {
	HookType string `json:"hook_type"`
	ToolName string `json:"tool_name"`
	Message  string `json:"message"`
}

// HTMLCreatedPayload carries the artifact side-channel URL.
type HTMLCreatedPayload struct {
	URL string `json:"url"`
}

// CostUpdatePayload is the cost_update frame payload.
type CostUpdatePayload struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	Cost           float64 `json:"cost"`
	TotalCost      float64 `json:"total_cost"`
	ContextUsed    int     `json:"context_used"`
	ContextMax     int     `json:"context_max"`
	ContextPercent float64 `json:"context_percent"`
}

// MessageCompletePayload is the message_complete frame payload.
type MessageCompletePayload struct {
	ToolsUsed   []string `json:"tools_used"`
	TotalTokens int      `json:"total_tokens"`
	StopReason  string   `json:"stop_reason"`
	TraceFile   string   `json:"trace_file"`
}

// ErrorPayload is the error frame payload.
type ErrorPayload struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	TraceFile string `json:"trace_file,omitempty"`
}
