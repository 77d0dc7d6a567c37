// Package agentrt defines the gateway's boundary with the agent runtime:
// an opaque async message source reached through a streaming Client, using
// the exact inbound message shape spec.md §6 documents (init /
// assistant-content-block / success). The runtime itself is out of scope;
// this package only fixes the contract C5 (the event translator) consumes,
// so any conforming adapter — anthropic, openai, or a test fake — can
// drive the rest of the gateway unmodified.
//
// Grounded on runtime/agent/model's Client/Streamer/Chunk shape, narrowed
// from a generic chat-completion abstraction to the tool-using streaming
// turn shape this gateway's runtime boundary actually needs.
package agentrt

import (
	"context"
	"errors"

	"goa.design/agentgateway/internal/tools"
)

// MessageKind discriminates the tagged Message union, matching spec.md
// §6's three inbound subtypes.
type MessageKind string

// Inbound message kinds.
const (
	KindInit      MessageKind = "init"
	KindAssistant MessageKind = "assistant"
	KindSuccess   MessageKind = "success"
)

// BlockKind discriminates one element of an assistant message's content
// array.
type BlockKind string

// Content block kinds.
const (
	BlockThinking   BlockKind = "thinking"
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of an assistant message's content array.
// Exactly one of the kind-specific fields is populated, selected by Kind.
type ContentBlock struct {
	Kind BlockKind

	// BlockThinking
	Thinking string

	// BlockText
	Text string

	// BlockToolUse
	ToolUseID string
	ToolName  tools.Name
	ToolInput map[string]any

	// BlockToolResult
	ResultToolUseID string
	ResultContent   any
	IsError         bool
}

// AssistantMessage carries one streamed assistant message's content array.
type AssistantMessage struct {
	Content []ContentBlock
}

// Usage mirrors the runtime's reported token accounting, spec.md §6.
type Usage struct {
	InputTokens             int
	OutputTokens            int
	CacheReadInputTokens    int
	CacheCreationInputTokens int
}

// SuccessMessage is the terminal message of a turn.
type SuccessMessage struct {
	Result        string
	Usage         Usage
	TotalCostUSD  float64
	DurationMS    int64
	DurationAPIMS int64
	NumTurns      int
	IsError       bool
}

// Message is the tagged union C5 drains from a Stream.
type Message struct {
	Kind      MessageKind
	Assistant *AssistantMessage
	Success   *SuccessMessage
}

// ErrStreamClosed is returned by Stream.Recv once the runtime has no more
// messages to deliver and the turn ended without a success message (e.g.
// the underlying transport closed early).
var ErrStreamClosed = errors.New("agentrt: stream closed without success message")

// PermissionDecision is the synchronous permission-callback contract,
// spec.md §6 "Permission callback contract".
type PermissionDecision struct {
	Allow     bool
	Message   string
	Interrupt bool
}

// PermissionFunc is invoked by the runtime before executing each tool, when
// the adapter supports the synchronous permission-callback surface.
type PermissionFunc func(ctx context.Context, name tools.Name, input map[string]any) PermissionDecision

// HookDecision is the hook-callback contract, spec.md §6 "Hook callback
// contract".
type HookDecision struct {
	Block     bool
	Reason    string
	KeepOpen  bool
}

// HookFunc is the pre-tool/post-tool callback shape the runtime invokes
// around every tool execution.
type HookFunc func(ctx context.Context, toolUseID string, name tools.Name, input map[string]any) HookDecision

// TurnRequest describes one HTTP turn to open against the runtime.
type TurnRequest struct {
	TraceID      string
	SystemPrompt string
	// History is prior-turn context flattened into the system preamble, per
	// the history-flattening decision in SPEC_FULL.md §9 (kept for adapters
	// whose backend rejects interleaved user/assistant roles in streaming
	// mode; adapters with full replay support may ignore it).
	History      string
	UserMessage  string
	MaxTurns     int
	Tools        []tools.Spec
	Permission   PermissionFunc
	PreTool      HookFunc
	PostTool     HookFunc
}

// Stream delivers a turn's Messages in order, terminating with either a
// KindSuccess Message or an error from Recv.
type Stream interface {
	// Recv blocks for the next Message. Returns io.EOF-compatible
	// ErrStreamClosed (or a wrapped transport error) once no further message
	// will arrive.
	Recv() (Message, error)
	// Close aborts the stream, propagating cancellation into the runtime's
	// consumer per spec.md §4.5 "Cancellation".
	Close() error
}

// Client opens a streaming turn against the runtime. Implementations:
// internal/agentrt/anthropic (primary), internal/agentrt/openai (secondary).
type Client interface {
	OpenTurn(ctx context.Context, req TurnRequest) (Stream, error)
}
