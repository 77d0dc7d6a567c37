// Package translate implements the gateway's Event Translator (C5): the
// 30%-share core that consumes the inbound agent message stream and emits
// the outbound SSE frame sequence, tracking per-tool state, iteration and
// parallel-group bookkeeping, sub-agent depth, and token/cost accounting.
//
// Grounded on agents/runtime/stream's Event/Sink tagged-event shape for the
// "consume one kind, emit a typed frame" idiom, generalized from the
// teacher's three event kinds to spec.md §4.5's full inbound/outbound
// contract, and on internal/retry's StreamOpenConfig for the stream-open
// retry loop.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/hooks"
	"goa.design/agentgateway/internal/metrics"
	"goa.design/agentgateway/internal/retry"
	"goa.design/agentgateway/internal/sse"
	"goa.design/agentgateway/internal/toolerrors"
	"goa.design/agentgateway/internal/tools"
	"goa.design/agentgateway/internal/trace"
)

// replacementRunRe matches 1-4 consecutive Unicode replacement characters,
// the artifact of a multi-byte codepoint split across chunk boundaries at
// the upstream transport's byte-oriented framing.
var replacementRunRe = regexp.MustCompile("�{1,4}")

func sanitize(s string) string {
	return replacementRunRe.ReplaceAllString(s, "")
}

// toolInvocation is the per-tool-use bookkeeping entry spec.md §3 names
// ToolInvocation, scoped to a single turn.
type toolInvocation struct {
	Name          tools.Name
	Iteration     int
	ParallelGroup string
	StartTime     time.Time
}

// turnState is every piece of per-turn mutable state spec.md §4.5 lists;
// never shared across turns or goroutines.
type turnState struct {
	currentText      string
	toolStates       map[string]*toolInvocation
	currentIteration int
	currentDepth     int
	firstTokenSent   bool
	toolsUsed        map[tools.Name]struct{}
	inputTokens      int
	outputTokens     int
}

func newTurnState() *turnState {
	return &turnState{
		toolStates: make(map[string]*toolInvocation),
		toolsUsed:  make(map[tools.Name]struct{}),
	}
}

// Translator drives one turn end to end: opens the inbound stream (with
// retry), translates every inbound Message into outbound SSE frames, and
// finalizes the trace and metrics when the stream ends.
type Translator struct {
	Pipeline       *hooks.Pipeline
	Logger         *trace.Logger
	Metrics        *metrics.Collector
	Writer         *sse.Writer
	MaxTurns       int
	ContextMax     int // declared context window, e.g. 200000
	SandboxEnabled bool
	SandboxRoot    string
	PermissionMode string
	TraceFile      string
}

// Run opens req against client and drives the translation loop until the
// stream reports a success message or a non-retryable error occurs.
func (t *Translator) Run(ctx context.Context, client agentrt.Client, req agentrt.TurnRequest) error {
	ts := newTurnState()
	stamp := t.Metrics.RecordRequestStart()

	if err := t.Writer.Send(sse.Event{Type: sse.SessionConfig, Payload: sse.SessionConfigPayload{
		MaxTurns:       t.MaxTurns,
		PermissionMode: t.PermissionMode,
		SandboxEnabled: t.SandboxEnabled,
		SandboxRoot:    t.SandboxRoot,
	}}); err != nil {
		return err
	}

	var stream agentrt.Stream
	openErr := retry.DoWithNotify(ctx, retry.StreamOpenConfig(), func(cctx context.Context) error {
		s, err := client.OpenTurn(cctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, func(attempt, maxAttempts int, _ time.Duration) {
		_ = t.Writer.Send(sse.Event{Type: sse.TextDelta, Payload: sse.TextDeltaPayload{
			Text: fmt.Sprintf("[connection lost, retry %d/%d]", attempt, maxAttempts-1),
		}})
	})
	if openErr != nil {
		return t.finalizeError(ctx, stamp, "stream_open_failed", openErr)
	}
	defer stream.Close()

	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, agentrt.ErrStreamClosed) {
				break
			}
			return t.finalizeError(ctx, stamp, "stream_read_failed", err)
		}
		switch msg.Kind {
		case agentrt.KindInit:
			continue
		case agentrt.KindAssistant:
			if msg.Assistant != nil {
				t.handleAssistant(ts, msg.Assistant, stamp)
			}
		case agentrt.KindSuccess:
			if msg.Success != nil {
				return t.handleSuccess(ctx, ts, msg.Success, stamp)
			}
		}
		if err := ctx.Err(); err != nil {
			return t.finalizeError(ctx, stamp, "canceled", err)
		}
	}
	return t.finalizeError(ctx, stamp, "stream_closed_without_success", agentrt.ErrStreamClosed)
}

func (t *Translator) handleAssistant(ts *turnState, am *agentrt.AssistantMessage, stamp *metrics.StartStamp) {
	toolUseCount := 0
	for _, b := range am.Content {
		if b.Kind == agentrt.BlockToolUse {
			toolUseCount++
		}
	}
	var parallelGroup string
	if toolUseCount >= 2 {
		parallelGroup = uuid.NewString()
	}

	for _, b := range am.Content {
		switch b.Kind {
		case agentrt.BlockThinking:
			thinking := sanitize(b.Thinking)
			if thinking == "" {
				continue
			}
			t.Logger.Log("thinking", map[string]any{"length": len(thinking)})
			_ = t.Writer.Send(sse.Event{Type: sse.ThinkingDelta, Payload: sse.ThinkingDeltaPayload{Thinking: thinking}})

		case agentrt.BlockText:
			delta := b.Text
			if strings.HasPrefix(b.Text, ts.currentText) {
				delta = b.Text[len(ts.currentText):]
				ts.currentText = b.Text
			} else {
				ts.currentText += b.Text
			}
			delta = sanitize(delta)
			if delta == "" {
				continue
			}
			if !ts.firstTokenSent {
				t.Metrics.RecordFirstToken(stamp)
				ts.firstTokenSent = true
			}
			_ = t.Writer.Send(sse.Event{Type: sse.TextDelta, Payload: sse.TextDeltaPayload{Text: delta}})

		case agentrt.BlockToolUse:
			if len(ts.toolStates) > 0 || ts.currentText != "" {
				ts.currentIteration++
				ts.currentText = ""
			}
			if ts.currentIteration == 0 {
				ts.currentIteration = 1
			}
			inv := &toolInvocation{Name: b.ToolName, Iteration: ts.currentIteration, ParallelGroup: parallelGroup, StartTime: time.Now()}
			ts.toolStates[b.ToolUseID] = inv
			ts.toolsUsed[b.ToolName] = struct{}{}
			t.Metrics.RecordToolCall(string(b.ToolName))

			t.emitHookEvents(t.Pipeline.Queue.Drain())

			if b.ToolName == tools.Task {
				ts.currentDepth++
				desc, _ := b.ToolInput["description"].(string)
				t.Logger.Log("agent_spawn", map[string]any{"depth": ts.currentDepth, "tool_use_id": b.ToolUseID})
				_ = t.Writer.Send(sse.Event{Type: sse.AgentSpawn, Payload: sse.AgentSpawnPayload{
					AgentID: b.ToolUseID, AgentType: "task", Description: desc,
					Iteration: ts.currentIteration, Depth: ts.currentDepth,
				}})
				continue
			}
			t.Logger.Log("tool_start", map[string]any{
				"tool": string(b.ToolName), "tool_use_id": b.ToolUseID,
				"iteration": inv.Iteration, "parallel_group": inv.ParallelGroup,
			})
			_ = t.Writer.Send(sse.Event{Type: sse.ToolStart, Payload: sse.ToolStartPayload{
				ToolID: b.ToolUseID, Name: string(b.ToolName), Input: summarizeInput(b.ToolInput), Iteration: ts.currentIteration,
			}})

		case agentrt.BlockToolResult:
			inv, ok := ts.toolStates[b.ResultToolUseID]
			var durationMS int64
			var name tools.Name
			if ok {
				durationMS = time.Since(inv.StartTime).Milliseconds()
				name = inv.Name
				delete(ts.toolStates, b.ResultToolUseID)
			}
			status := "completed"
			errMsg := ""
			output := resultString(b.ResultContent)
			if b.IsError {
				status = "error"
				errMsg = output
				t.Metrics.RecordError("tool_execution")
			}
			truncated, wasTruncated := toolerrors.Truncate(output)
			t.Logger.Log("tool_result", map[string]any{
				"tool": string(name), "tool_use_id": b.ResultToolUseID, "status": status,
				"duration_ms": durationMS, "output_truncated": wasTruncated,
			})
			t.emitHookEvents(t.Pipeline.Queue.Drain())
			_ = t.Writer.Send(sse.Event{Type: sse.ToolResult, Payload: sse.ToolResultPayload{
				ToolID: b.ResultToolUseID, Status: status, Output: truncated, Error: errMsg,
			}})
			if ok && name == tools.Task {
				_ = t.Writer.Send(sse.Event{Type: sse.AgentComplete, Payload: sse.AgentCompletePayload{AgentID: b.ResultToolUseID}})
				ts.currentDepth--
				t.Logger.Log("agent_complete", map[string]any{"tool_use_id": b.ResultToolUseID})
			}
		}
	}
}

func (t *Translator) handleSuccess(ctx context.Context, ts *turnState, sm *agentrt.SuccessMessage, stamp *metrics.StartStamp) error {
	stopReason := "end_turn"
	switch {
	case sm.IsError:
		stopReason = "error"
	case t.MaxTurns > 0 && sm.NumTurns >= t.MaxTurns:
		stopReason = "max_turns"
	}

	ts.inputTokens = sm.Usage.InputTokens
	ts.outputTokens = sm.Usage.OutputTokens
	t.Metrics.RecordTokens(ts.inputTokens, ts.outputTokens)

	contextUsed := ts.inputTokens + ts.outputTokens
	contextMax := t.ContextMax
	if contextMax <= 0 {
		contextMax = 200000
	}
	contextPercent := 0.0
	if contextMax > 0 {
		contextPercent = float64(contextUsed) / float64(contextMax) * 100
	}
	_ = t.Writer.Send(sse.Event{Type: sse.CostUpdate, Payload: sse.CostUpdatePayload{
		InputTokens: ts.inputTokens, OutputTokens: ts.outputTokens,
		Cost: sm.TotalCostUSD, TotalCost: sm.TotalCostUSD,
		ContextUsed: contextUsed, ContextMax: contextMax, ContextPercent: contextPercent,
	}})

	toolsUsed := make([]string, 0, len(ts.toolsUsed))
	for name := range ts.toolsUsed {
		toolsUsed = append(toolsUsed, string(name))
	}
	_ = t.Writer.Send(sse.Event{Type: sse.MessageComplete, Payload: sse.MessageCompletePayload{
		ToolsUsed: toolsUsed, TotalTokens: contextUsed, StopReason: stopReason, TraceFile: t.TraceFile,
	}})

	if sm.IsError {
		t.Logger.LogError("runtime_reported_error", "agent runtime reported an error completion")
	}
	t.Logger.Complete()
	t.Metrics.RecordRequestComplete(stamp, !sm.IsError)
	return nil
}

func (t *Translator) finalizeError(ctx context.Context, stamp *metrics.StartStamp, kind string, err error) error {
	t.Logger.LogError(kind, err.Error())
	t.Logger.Complete()
	t.Metrics.RecordError(kind)
	t.Metrics.RecordRequestComplete(stamp, false)
	_ = t.Writer.Send(sse.Event{Type: sse.Error, Payload: sse.ErrorPayload{Error: err.Error(), TraceFile: t.TraceFile}})
	return err
}

func (t *Translator) emitHookEvents(events []hooks.Event) {
	for _, e := range events {
		switch e.Type {
		case hooks.EventPreTool:
			action := "block"
			if e.Allowed {
				action = "allow"
			}
			_ = t.Writer.Send(sse.Event{Type: sse.HookPreTool, Payload: sse.HookPreToolPayload{
				HookType: "pre_tool", ToolName: string(e.ToolName), Action: action, Message: e.Message,
			}})
		case hooks.EventPostTool:
			_ = t.Writer.Send(sse.Event{Type: sse.HookPostTool, Payload: sse.HookPostToolPayload{
				HookType: "post_tool", ToolName: string(e.ToolName), Message: e.Message,
			}})
		case hooks.EventArtifact:
			_ = t.Writer.Send(sse.Event{Type: sse.HTMLCreated, Payload: sse.HTMLCreatedPayload{URL: e.ArtifactURL}})
		}
	}
}

func summarizeInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(data)
}

func resultString(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

