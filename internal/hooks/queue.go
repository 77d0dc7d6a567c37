// Package hooks implements the gateway's hook pipeline (C4): the
// keep-stream-open, pre-tool, and post-tool callback roles that share a
// single per-turn Queue and PendingArtifact map.
//
// Grounded on agents/runtime/hooks's Bus/Event/Subscriber/EventType pattern,
// narrowed from a process-wide bus to a per-turn queue — spec.md §9 calls
// the teacher's global-bus shape a defect when applied across turns.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"goa.design/agentgateway/internal/sandbox"
	"goa.design/agentgateway/internal/tools"
)

// EventType discriminates the tagged Event variants queued by the hook
// pipeline.
type EventType string

// Event kinds, matching spec.md §3 HookEvent "Kinds".
const (
	EventPreTool   EventType = "pre_tool"
	EventPostTool  EventType = "post_tool"
	EventArtifact  EventType = "html_created"
)

// Event is the tagged union queued by the hook pipeline and drained by the
// event translator (C5) at the boundaries spec.md §4.5 defines.
type Event struct {
	Type      EventType
	ToolUseID string
	ToolName  tools.Name
	Allowed   bool
	Reason    sandbox.DenyReason
	Message   string
	// ArtifactURL is set only for EventArtifact.
	ArtifactURL string
}

// PendingArtifact records a filesystem path the agent is about to write
// that the gateway will expose under /sandbox/* once the write succeeds.
type PendingArtifact struct {
	ToolUseID string
	Path      string
}

// Queue is the per-turn hook event queue plus pending-artifact map spec.md
// §3/§5 require: ownership is strictly scoped to one turn, never shared.
type Queue struct {
	mu        sync.Mutex
	events    []Event
	artifacts map[string]PendingArtifact
}

// NewQueue returns an empty, turn-scoped Queue.
func NewQueue() *Queue {
	return &Queue{artifacts: make(map[string]PendingArtifact)}
}

// Push appends an event to the FIFO queue.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

// Drain removes and returns every event queued so far, preserving FIFO
// order. The event translator calls this at well-defined boundaries (before
// emitting tool_start, after a tool_result) so hook frames interleave
// correctly with tool lifecycle frames on the outbound stream.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	drained := q.events
	q.events = nil
	return drained
}

// SetPendingArtifact records a pending artifact for toolUseID, created by
// the pre-tool hook when a Write call targets an .html file.
func (q *Queue) SetPendingArtifact(toolUseID, path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.artifacts[toolUseID] = PendingArtifact{ToolUseID: toolUseID, Path: path}
}

// TakePendingArtifact removes and returns the pending artifact for
// toolUseID, if any. Consumed by the post-tool hook whether or not the
// write succeeded; callers check the returned bool.
func (q *Queue) TakePendingArtifact(toolUseID string) (PendingArtifact, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.artifacts[toolUseID]
	if ok {
		delete(q.artifacts, toolUseID)
	}
	return a, ok
}

// Pipeline binds the three hook callback roles to a Queue, a sandbox
// Policy, and the static sandbox base URL used to build artifact links.
type Pipeline struct {
	Queue       *Queue
	Policy      *sandbox.Policy
	SandboxBase string // e.g. "/sandbox"
	// OnTrace, when set, is invoked for every sandbox_block / hook trace
	// event so C2 can append it without the hook pipeline importing trace
	// directly (keeps hooks decoupled from persistence).
	OnTrace func(ctx context.Context, eventType string, data map[string]any)
	// Bus, when set, additionally fans every queued Event out to any
	// process-wide subscriber (internal/broadcast's Pulse sink), tagged
	// with TurnID. Unlike OnTrace this is a side channel: the event
	// translator never reads from Bus, only from Queue.
	Bus    *Bus
	TurnID string
}

// KeepStreamOpen is invoked first in the pre-tool chain. It exists solely to
// satisfy the agent runtime's contract that, in streaming mode, at least
// one pre-tool hook returning "continue" is required for the synchronous
// permission callback to fire. See SPEC_FULL.md §9 for the decision to keep
// both enforcement paths active and consistent.
func (p *Pipeline) KeepStreamOpen(ctx context.Context, toolUseID string, name tools.Name) {
	if p.OnTrace != nil {
		p.OnTrace(ctx, "hook_keep_stream_open", map[string]any{"tool_use_id": toolUseID, "tool": string(name)})
	}
}

// publish fans e out to Bus, if configured.
func (p *Pipeline) publish(e Event) {
	if p.Bus != nil {
		p.Bus.Publish(p.TurnID, e)
	}
}

// PreTool runs the keep-stream-open hook, then the sandbox check, and
// enqueues the corresponding hook event. It returns the Decision so the
// caller (the permission callback, or the builtin tool executor) can act on
// it directly as well.
func (p *Pipeline) PreTool(ctx context.Context, toolUseID string, name tools.Name, input map[string]any) sandbox.Decision {
	p.KeepStreamOpen(ctx, toolUseID, name)
	d := p.Policy.Check(name, input)
	if p.OnTrace != nil {
		p.OnTrace(ctx, "hook_pre_tool", map[string]any{"tool_use_id": toolUseID, "tool": string(name), "allowed": d.Allow})
	}
	if !d.Allow {
		e := Event{Type: EventPreTool, ToolUseID: toolUseID, ToolName: name, Allowed: false, Reason: d.Reason, Message: d.Message}
		p.Queue.Push(e)
		p.publish(e)
		if p.OnTrace != nil {
			p.OnTrace(ctx, "sandbox_block", map[string]any{
				"tool_use_id": toolUseID, "tool": string(name), "reason": string(d.Reason), "message": d.Message,
			})
		}
		return d
	}
	allowEvent := Event{Type: EventPreTool, ToolUseID: toolUseID, ToolName: name, Allowed: true}
	p.Queue.Push(allowEvent)
	p.publish(allowEvent)
	if name == tools.Write {
		if fp, _ := input["file_path"].(string); htmlExt(fp) {
			p.Queue.SetPendingArtifact(toolUseID, fp)
		}
	}
	return d
}

// PostTool enqueues the post_tool event and, if a pending artifact exists
// for toolUseID and the tool succeeded, enqueues an html_created event
// carrying the /sandbox/<filename> URL.
func (p *Pipeline) PostTool(ctx context.Context, toolUseID string, name tools.Name, succeeded bool) {
	postEvent := Event{Type: EventPostTool, ToolUseID: toolUseID, ToolName: name}
	p.Queue.Push(postEvent)
	p.publish(postEvent)
	if p.OnTrace != nil {
		p.OnTrace(ctx, "hook_post_tool", map[string]any{"tool_use_id": toolUseID, "tool": string(name), "succeeded": succeeded})
	}
	artifact, ok := p.Queue.TakePendingArtifact(toolUseID)
	if !ok || !succeeded {
		return
	}
	url := fmt.Sprintf("%s/%s", p.SandboxBase, baseName(artifact.Path))
	artifactEvent := Event{Type: EventArtifact, ToolUseID: toolUseID, ToolName: name, ArtifactURL: url}
	p.Queue.Push(artifactEvent)
	p.publish(artifactEvent)
	if p.OnTrace != nil {
		p.OnTrace(ctx, "html_created", map[string]any{"tool_use_id": toolUseID, "url": url})
	}
}

func htmlExt(path string) bool {
	if len(path) < len(".html") {
		return false
	}
	return path[len(path)-len(".html"):] == ".html"
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}
