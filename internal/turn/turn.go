// Package turn implements the gateway's Turn Coordinator (C6): one
// invocation per HTTP chat turn, wiring together a fresh per-turn hook
// queue, sandbox-backed pipeline, trace logger, and the Event Translator,
// then driving the translator to completion against whichever agentrt
// adapter the deployment configured.
//
// Grounded on agents/runtime/runtime.Runtime's constructor/option pattern
// (Options struct, nil-substitution for unconfigured dependencies,
// functional RunOption/WithXxx helpers), but deliberately not adopting its
// Temporal-backed durable workflow machinery: spec.md §5 specifies a
// cooperative goroutine plus bounded channel model per turn, with no
// cross-turn shared state beyond the process-wide metrics collector and
// trace directory, which is what Coordinator implements instead.
package turn

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/hooks"
	"goa.design/agentgateway/internal/metrics"
	"goa.design/agentgateway/internal/sandbox"
	"goa.design/agentgateway/internal/sse"
	"goa.design/agentgateway/internal/tools"
	"goa.design/agentgateway/internal/trace"
	"goa.design/agentgateway/internal/translate"
)

// Options configures a Coordinator. All fields are required except
// SandboxBase, which defaults to "/sandbox".
type Options struct {
	Client      agentrt.Client
	Policy      *sandbox.Policy
	TraceStore  trace.Store
	Metrics     *metrics.Collector
	Registry    *tools.Registry
	SandboxBase string
	// Bus, when set, receives a tee of every turn's hook events for an
	// optional external observer (internal/broadcast's Pulse sink); never
	// required for the gateway's own operation.
	Bus *hooks.Bus

	SystemPrompt   string
	MaxTurns       int
	ContextMax     int
	SandboxEnabled bool
	SandboxRoot    string
	PermissionMode string
}

// Coordinator orchestrates one HTTP chat turn end to end. A new Coordinator
// is built per request; it owns no state beyond the single turn it drives.
type Coordinator struct {
	opts Options
}

// New validates opts and returns a Coordinator. The same Options value may
// be reused to build many Coordinators (e.g. one per incoming request),
// since Options itself carries no per-turn mutable state.
func New(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("turn: agentrt client is required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("turn: sandbox policy is required")
	}
	if opts.TraceStore == nil {
		return nil, fmt.Errorf("turn: trace store is required")
	}
	if opts.Metrics == nil {
		return nil, fmt.Errorf("turn: metrics collector is required")
	}
	if opts.SandboxBase == "" {
		opts.SandboxBase = "/sandbox"
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 25
	}
	return &Coordinator{opts: opts}, nil
}

// Request is the inbound chat-turn request, matching the body of
// POST /api/chat. TraceID/SessionID may be pre-allocated by the caller
// (e.g. the HTTP handler, so it can set X-Trace-Id/X-Session-Id response
// headers before the first SSE frame is written); Run generates either
// one that is left empty.
type Request struct {
	Message   string
	SessionID string
	TraceID   string
	History   string
}

// Result is returned once Run completes, carrying the identifiers the HTTP
// handler echoes back as X-Session-Id / X-Trace-Id response headers.
type Result struct {
	TraceID   string
	SessionID string
}

// Run executes step 1-5 of spec.md §4.6: allocates trace_id/session_id and
// a fresh per-turn hook queue and pending-artifact map, builds the runtime
// TurnRequest (including the permission callback and hook pair bound to
// C1/C4), opens the inbound stream through the Event Translator, and
// finalizes the trace/metrics on completion or exception. Writer must
// already have sent (or be ready to send) the initial SSE headers; Run
// drives the event stream to completion before returning.
func (c *Coordinator) Run(ctx context.Context, req Request, writer *sse.Writer) (Result, error) {
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	queue := hooks.NewQueue()
	logger := trace.New(c.opts.TraceStore, traceID)
	pipeline := &hooks.Pipeline{
		Queue:       queue,
		Policy:      c.opts.Policy,
		SandboxBase: c.opts.SandboxBase,
		Bus:         c.opts.Bus,
		TurnID:      traceID,
		OnTrace: func(_ context.Context, eventType string, data map[string]any) {
			logger.Log(eventType, data)
		},
	}

	translator := &translate.Translator{
		Pipeline:       pipeline,
		Logger:         logger,
		Metrics:        c.opts.Metrics,
		Writer:         writer,
		MaxTurns:       c.opts.MaxTurns,
		ContextMax:     c.opts.ContextMax,
		SandboxEnabled: c.opts.SandboxEnabled,
		SandboxRoot:    c.opts.SandboxRoot,
		PermissionMode: c.opts.PermissionMode,
		TraceFile:      traceID,
	}

	turnReq := agentrt.TurnRequest{
		TraceID:      traceID,
		SystemPrompt: c.opts.SystemPrompt,
		History:      req.History,
		UserMessage:  req.Message,
		MaxTurns:     c.opts.MaxTurns,
		Tools:        c.toolSpecs(),
		Permission: func(ctx context.Context, name tools.Name, input map[string]any) agentrt.PermissionDecision {
			d := pipeline.Policy.Check(name, input)
			return agentrt.PermissionDecision{Allow: d.Allow, Message: d.Message}
		},
		PreTool: func(ctx context.Context, toolUseID string, name tools.Name, input map[string]any) agentrt.HookDecision {
			d := pipeline.PreTool(ctx, toolUseID, name, input)
			return agentrt.HookDecision{Block: !d.Allow, Reason: d.Message}
		},
		PostTool: func(ctx context.Context, toolUseID string, name tools.Name, succeeded bool) agentrt.HookDecision {
			pipeline.PostTool(ctx, toolUseID, name, succeeded)
			return agentrt.HookDecision{}
		},
	}

	result := Result{TraceID: traceID, SessionID: sessionID}
	err := translator.Run(ctx, c.opts.Client, turnReq)
	return result, err
}

func (c *Coordinator) toolSpecs() []tools.Spec {
	if c.opts.Registry == nil {
		return nil
	}
	names := c.opts.Registry.Names()
	specs := make([]tools.Spec, 0, len(names))
	for _, n := range names {
		if s, ok := c.opts.Registry.Lookup(n); ok {
			specs = append(specs, s)
		}
	}
	return specs
}
