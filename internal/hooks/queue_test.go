package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/agentgateway/internal/sandbox"
	"goa.design/agentgateway/internal/tools"
)

func permissivePolicy(t *testing.T) *sandbox.Policy {
	t.Helper()
	p, err := sandbox.New(sandbox.Config{
		AllowedRoots: []string{"/sandbox"}, MaxOpsPerMin: 1000, MaxWritesPerMin: 1000, MaxShellPerMin: 1000,
	}, sandbox.SystemClock{})
	require.NoError(t, err)
	return p
}

func strictPolicy(t *testing.T) *sandbox.Policy {
	t.Helper()
	p, err := sandbox.New(sandbox.Config{
		AllowedRoots: []string{"/sandbox"}, BlockedExtensions: []string{".pem"},
		MaxOpsPerMin: 1000, MaxWritesPerMin: 1000,
	}, sandbox.SystemClock{})
	require.NoError(t, err)
	return p
}

func TestDrainReturnsQueuedEventsInFIFOOrderAndEmptiesTheQueue(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Push(Event{Type: EventPreTool, ToolUseID: "tu-1"})
	q.Push(Event{Type: EventPostTool, ToolUseID: "tu-1"})

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, EventPreTool, drained[0].Type)
	assert.Equal(t, EventPostTool, drained[1].Type)

	assert.Nil(t, q.Drain())
}

func TestPendingArtifactIsConsumedExactlyOnce(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.SetPendingArtifact("tu-1", "/sandbox/report.html")

	a, ok := q.TakePendingArtifact("tu-1")
	require.True(t, ok)
	assert.Equal(t, "/sandbox/report.html", a.Path)

	_, ok = q.TakePendingArtifact("tu-1")
	assert.False(t, ok)
}

func TestPreToolOnAnAllowedWriteQueuesAnAllowEvent(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	p := &Pipeline{Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox"}

	d := p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/notes.md", "content": "x"})

	assert.True(t, d.Allow)
	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.True(t, drained[0].Allowed)
	assert.Equal(t, EventPreTool, drained[0].Type)
}

func TestPreToolOnADeniedWriteQueuesADenyEventAndReportsTheReason(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	var traced []string
	p := &Pipeline{
		Queue: q, Policy: strictPolicy(t), SandboxBase: "/sandbox",
		OnTrace: func(_ context.Context, eventType string, _ map[string]any) { traced = append(traced, eventType) },
	}

	d := p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/key.pem", "content": "x"})

	assert.False(t, d.Allow)
	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.False(t, drained[0].Allowed)
	assert.Equal(t, d.Reason, drained[0].Reason)
	assert.Contains(t, traced, "sandbox_block")
}

func TestPreToolOnAnAllowedHTMLWriteRecordsAPendingArtifact(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	p := &Pipeline{Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox"}

	p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/report.html", "content": "<html></html>"})

	a, ok := q.TakePendingArtifact("tu-1")
	require.True(t, ok)
	assert.Equal(t, "/sandbox/report.html", a.Path)
}

func TestPostToolOnASuccessfulHTMLWriteEmitsAnArtifactEventWithTheSandboxURL(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	var traced []string
	var htmlURL string
	p := &Pipeline{
		Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox",
		OnTrace: func(_ context.Context, eventType string, data map[string]any) {
			traced = append(traced, eventType)
			if eventType == "html_created" {
				htmlURL, _ = data["url"].(string)
			}
		},
	}

	p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/report.html", "content": "<html></html>"})
	q.Drain()
	p.PostTool(context.Background(), "tu-1", tools.Write, true)

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, EventPostTool, drained[0].Type)
	assert.Equal(t, EventArtifact, drained[1].Type)
	assert.Equal(t, "/sandbox/report.html", drained[1].ArtifactURL)
	assert.Contains(t, traced, "html_created")
	assert.Equal(t, "/sandbox/report.html", htmlURL)
}

func TestPostToolOnAFailedHTMLWriteDropsThePendingArtifactWithoutAnArtifactEvent(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	p := &Pipeline{Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox"}

	p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/report.html", "content": "<html></html>"})
	q.Drain()
	p.PostTool(context.Background(), "tu-1", tools.Write, false)

	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, EventPostTool, drained[0].Type)

	_, ok := q.TakePendingArtifact("tu-1")
	assert.False(t, ok)
}

func TestPostToolOnANonHTMLWriteNeverEmitsAnArtifactEvent(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	p := &Pipeline{Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox"}

	p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/notes.md", "content": "x"})
	q.Drain()
	p.PostTool(context.Background(), "tu-1", tools.Write, true)

	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, EventPostTool, drained[0].Type)
}

func TestPreToolRunsKeepStreamOpenFirstInTheChain(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	var traced []string
	p := &Pipeline{
		Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox",
		OnTrace: func(_ context.Context, eventType string, _ map[string]any) { traced = append(traced, eventType) },
	}

	p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/notes.md", "content": "x"})

	require.GreaterOrEqual(t, len(traced), 2)
	assert.Equal(t, "hook_keep_stream_open", traced[0])
	assert.Contains(t, traced, "hook_pre_tool")
}

func TestPostToolReportsAHookPostToolTraceEvent(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	var traced []string
	p := &Pipeline{
		Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox",
		OnTrace: func(_ context.Context, eventType string, _ map[string]any) { traced = append(traced, eventType) },
	}

	p.PostTool(context.Background(), "tu-1", tools.Write, true)

	assert.Contains(t, traced, "hook_post_tool")
}

func TestKeepStreamOpenReportsATraceEventWithoutTouchingTheQueue(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	var traced []string
	p := &Pipeline{
		Queue: q, Policy: permissivePolicy(t),
		OnTrace: func(_ context.Context, eventType string, _ map[string]any) { traced = append(traced, eventType) },
	}

	p.KeepStreamOpen(context.Background(), "tu-1", tools.Read)

	assert.Equal(t, []string{"hook_keep_stream_open"}, traced)
	assert.Nil(t, q.Drain())
}

func TestBusFansPublishedEventsOutToEverySubscriber(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var gotA, gotB []Event
	bus.Subscribe(SubscriberFunc(func(_ string, e Event) { gotA = append(gotA, e) }))
	bus.Subscribe(SubscriberFunc(func(_ string, e Event) { gotB = append(gotB, e) }))

	bus.Publish("turn-1", Event{Type: EventPreTool, ToolUseID: "tu-1"})

	require.Len(t, gotA, 1)
	require.Len(t, gotB, 1)
	assert.Equal(t, "tu-1", gotA[0].ToolUseID)
}

func TestPipelineWithABusPublishesEveryQueuedEventTaggedWithTheTurnID(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	bus := NewBus()
	var gotTurnIDs []string
	bus.Subscribe(SubscriberFunc(func(turnID string, _ Event) { gotTurnIDs = append(gotTurnIDs, turnID) }))
	p := &Pipeline{Queue: q, Policy: permissivePolicy(t), SandboxBase: "/sandbox", Bus: bus, TurnID: "turn-42"}

	p.PreTool(context.Background(), "tu-1", tools.Write, map[string]any{"file_path": "/sandbox/notes.md", "content": "x"})
	p.PostTool(context.Background(), "tu-1", tools.Write, true)

	for _, id := range gotTurnIDs {
		assert.Equal(t, "turn-42", id)
	}
	assert.Len(t, gotTurnIDs, 2)
}
