package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/agentgateway/internal/hooks"
	"goa.design/agentgateway/internal/sandbox"
	"goa.design/agentgateway/internal/tools"
)

type fakeStream struct {
	adds [][2]string // {event, payload}
	err  error
}

func (s *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.adds = append(s.adds, [2]string{event, string(payload)})
	return "1-0", nil
}

type fakeClient struct {
	streams     map[string]*fakeStream
	openErr     error
	requestedID []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{streams: make(map[string]*fakeStream)}
}

func (c *fakeClient) Stream(name string) (Stream, error) {
	c.requestedID = append(c.requestedID, name)
	if c.openErr != nil {
		return nil, c.openErr
	}
	s, ok := c.streams[name]
	if !ok {
		s = &fakeStream{}
		c.streams[name] = s
	}
	return s, nil
}

func (c *fakeClient) Close(_ context.Context) error { return nil }

func TestSendPublishesAnEnvelopeToTheDefaultPerTurnStreamName(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	sink, err := NewSink(SinkOptions{Client: client})
	require.NoError(t, err)

	e := hooks.Event{Type: hooks.EventPreTool, ToolUseID: "tu-1", ToolName: tools.Write, Allowed: true}
	err = sink.Send(context.Background(), "trace-1", e)
	require.NoError(t, err)

	assert.Equal(t, []string{"turn/trace-1"}, client.requestedID)
	str := client.streams["turn/trace-1"]
	require.Len(t, str.adds, 1)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(str.adds[0][1]), &env))
	assert.Equal(t, "pre_tool", env.Type)
	assert.Equal(t, "trace-1", env.TurnID)
	assert.Equal(t, "tu-1", env.ToolUseID)
	assert.True(t, env.Allowed)
	assert.False(t, env.Timestamp.IsZero())
}

func TestSendUsesACustomStreamIDFunctionWhenConfigured(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	sink, err := NewSink(SinkOptions{
		Client:   client,
		StreamID: func(turnID string) string { return "custom/" + turnID },
	})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), "trace-9", hooks.Event{Type: hooks.EventPostTool}))
	assert.Equal(t, []string{"custom/trace-9"}, client.requestedID)
}

func TestSendReportsADenyEventsReasonAndMessageInTheEnvelope(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	sink, err := NewSink(SinkOptions{Client: client})
	require.NoError(t, err)

	e := hooks.Event{
		Type: hooks.EventPreTool, ToolUseID: "tu-2", ToolName: tools.Bash,
		Allowed: false, Reason: sandbox.ReasonDangerousCmd, Message: "refused: rm -rf /",
	}
	require.NoError(t, sink.Send(context.Background(), "trace-2", e))

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(client.streams["turn/trace-2"].adds[0][1]), &env))
	assert.False(t, env.Allowed)
	assert.Equal(t, string(sandbox.ReasonDangerousCmd), env.Reason)
	assert.Equal(t, "refused: rm -rf /", env.Message)
}

func TestOnHookEventSwallowsPublishErrorsSoABrokenSinkNeverPanics(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.openErr = errors.New("redis unavailable")
	sink, err := NewSink(SinkOptions{Client: client})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		sink.OnHookEvent("trace-3", hooks.Event{Type: hooks.EventPreTool})
	})
}

func TestNewSinkRejectsANilClient(t *testing.T) {
	t.Parallel()
	_, err := NewSink(SinkOptions{})
	assert.Error(t, err)
}

func TestNewClientRejectsANilRedisConnection(t *testing.T) {
	t.Parallel()
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err)
}

func TestBusSubscriberWiringForwardsEventsThroughTheSinkToTheRightStream(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	sink, err := NewSink(SinkOptions{Client: client})
	require.NoError(t, err)

	bus := hooks.NewBus()
	bus.Subscribe(sink)

	bus.Publish("trace-7", hooks.Event{Type: hooks.EventArtifact, ArtifactURL: "/sandbox/report.html"})

	str, ok := client.streams["turn/trace-7"]
	require.True(t, ok)
	require.Len(t, str.adds, 1)
	assert.Equal(t, "html_created", str.adds[0][0])
}
