// Package broadcast implements the optional Pulse-backed hook-event fanout
// sink (A3/A-adjacent ambient concern named in SPEC_FULL.md's Domain Stack):
// a secondary, best-effort tee of a turn's hook activity onto a Redis-backed
// Pulse stream, for an operator process to observe or persist independently
// of the primary per-turn SSE write. It subscribes to internal/hooks.Bus,
// never to a turn's own Queue, so a slow or unavailable Redis never affects
// the primary stream a browser is waiting on.
//
// Grounded on features/stream/pulse/{client.go,sink.go}'s Client/Stream/Sink
// wrapper layering and Envelope publishing idiom, narrowed to this gateway's
// hooks.Event shape and keyed by turn ID (a trace ID) instead of a runtime
// session ID.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/agentgateway/internal/hooks"
)

// Client exposes the subset of Pulse operations the Sink needs: opening a
// named stream and publishing entries to it.
type Client interface {
	Stream(name string) (Stream, error)
	Close(ctx context.Context) error
}

// Stream is a single Pulse stream handle.
type Stream interface {
	Add(ctx context.Context, event string, payload []byte) (string, error)
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Redis is the connection Pulse streams are backed by. Required.
	Redis *redis.Client
	// StreamMaxLen bounds entries retained per stream. Zero uses Pulse's
	// default.
	StreamMaxLen int
}

// NewClient constructs a Pulse-backed Client. Returns an error if
// opts.Redis is nil.
func NewClient(opts ClientOptions) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("broadcast: redis client is required")
	}
	return &client{redis: opts.Redis, maxLen: opts.StreamMaxLen}, nil
}

type client struct {
	redis  *redis.Client
	maxLen int
}

func (c *client) Stream(name string) (Stream, error) {
	if name == "" {
		return nil, errors.New("broadcast: stream name is required")
	}
	var opts []streamopts.Stream
	if c.maxLen > 0 {
		opts = append(opts, streamopts.WithStreamMaxLen(c.maxLen))
	}
	str, err := streaming.NewStream(name, c.redis, opts...)
	if err != nil {
		return nil, fmt.Errorf("broadcast: open stream %q: %w", name, err)
	}
	return &handle{stream: str}, nil
}

func (c *client) Close(ctx context.Context) error { return nil }

type handle struct {
	stream *streaming.Stream
}

func (h *handle) Add(ctx context.Context, event string, payload []byte) (string, error) {
	id, err := h.stream.Add(ctx, event, payload)
	if err != nil {
		return "", fmt.Errorf("broadcast: add entry: %w", err)
	}
	return id, nil
}

// Envelope is the JSON document published to Pulse for every hook event.
type Envelope struct {
	Type        string    `json:"type"`
	TurnID      string    `json:"turn_id"`
	ToolUseID   string    `json:"tool_use_id,omitempty"`
	ToolName    string    `json:"tool_name,omitempty"`
	Allowed     bool      `json:"allowed,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Message     string    `json:"message,omitempty"`
	ArtifactURL string    `json:"artifact_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink publishes hooks.Event values to a per-turn Pulse stream, implementing
// hooks.Subscriber so it can be registered directly on a hooks.Bus.
type Sink struct {
	client   Client
	streamID func(turnID string) string
}

// SinkOptions configures NewSink.
type SinkOptions struct {
	// Client publishes entries. Required.
	Client Client
	// StreamID derives the Pulse stream name from a turn ID. Defaults to
	// "turn/<turnID>".
	StreamID func(turnID string) string
}

// NewSink constructs a Pulse-backed Sink.
func NewSink(opts SinkOptions) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("broadcast: pulse client is required")
	}
	streamID := opts.StreamID
	if streamID == nil {
		streamID = func(turnID string) string { return fmt.Sprintf("turn/%s", turnID) }
	}
	return &Sink{client: opts.Client, streamID: streamID}, nil
}

// OnHookEvent implements hooks.Subscriber. Publish failures are swallowed:
// this is a best-effort observability tee, never allowed to affect the
// primary SSE write a browser is waiting on.
func (s *Sink) OnHookEvent(turnID string, e hooks.Event) {
	_ = s.Send(context.Background(), turnID, e)
}

// Send publishes one hook event to the turn's Pulse stream.
func (s *Sink) Send(ctx context.Context, turnID string, e hooks.Event) error {
	str, err := s.client.Stream(s.streamID(turnID))
	if err != nil {
		return err
	}
	env := Envelope{
		Type:        string(e.Type),
		TurnID:      turnID,
		ToolUseID:   e.ToolUseID,
		ToolName:    string(e.ToolName),
		Allowed:     e.Allowed,
		Reason:      string(e.Reason),
		Message:     e.Message,
		ArtifactURL: e.ArtifactURL,
		Timestamp:   time.Now().UTC(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = str.Add(ctx, env.Type, payload)
	return err
}
