// Package openai is the secondary agentrt.Client adapter: it drives the
// OpenAI Chat Completions streaming API and translates its delta events
// into the same init / assistant-content-block / success message shape
// internal/agentrt defines, so the rest of the gateway is unaffected by
// which backend a deployment chooses (spec.md §1's runtime-agnostic
// boundary).
//
// Grounded on features/model/openai/client.go's Options/Client/encodeTools
// shape for request construction, and on the streaming delta-accumulation
// idiom (chunked tool_call arguments keyed by index, flushed on
// finish_reason) used by a provider adapter elsewhere in the pack, since
// the teacher's own OpenAI adapter only implements the non-streaming
// Complete path and returns model.ErrStreamingUnsupported for Stream.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/sandboxtools"
	"goa.design/agentgateway/internal/tools"
)

// Config configures the OpenAI adapter.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Client implements agentrt.Client against the OpenAI Chat Completions API.
type Client struct {
	chat     *openai.Client
	cfg      Config
	registry *tools.Registry
	executor *sandboxtools.Executor
}

// New builds a Client. registry supplies the declared tool schemas
// advertised to the model; executor runs the builtin tools the model
// invokes.
func New(cfg Config, registry *tools.Registry, executor *sandboxtools.Executor) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model identifier is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Client{chat: openai.NewClient(cfg.APIKey), cfg: cfg, registry: registry, executor: executor}, nil
}

// OpenTurn starts the tool-use loop as a background goroutine and returns a
// Stream that delivers its messages.
func (c *Client) OpenTurn(ctx context.Context, req agentrt.TurnRequest) (agentrt.Stream, error) {
	out := make(chan agentrt.Message, 16)
	errc := make(chan error, 1)
	rctx, cancel := context.WithCancel(ctx)
	s := &turnStream{out: out, errc: errc, cancel: cancel}
	go c.run(rctx, req, out, errc)
	return s, nil
}

func (c *Client) buildTools() []openai.Tool {
	if c.registry == nil {
		return nil
	}
	names := c.registry.Names()
	out := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		spec, ok := c.registry.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(spec.Name),
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}
	return out
}

func (c *Client) run(ctx context.Context, req agentrt.TurnRequest, out chan<- agentrt.Message, errc chan<- error) {
	defer close(out)

	messages := make([]openai.ChatCompletionMessage, 0, 3)
	system := req.SystemPrompt
	if req.History != "" {
		system = system + "\n\nPrior conversation summary:\n" + req.History
	}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})

	toolDefs := c.buildTools()

	var totalUsage agentrt.Usage
	numTurns := 0
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 25
	}

	for numTurns < maxTurns {
		numTurns++
		request := openai.ChatCompletionRequest{
			Model:     c.cfg.Model,
			Messages:  messages,
			MaxTokens: c.cfg.MaxTokens,
			Stream:    true,
		}
		if c.cfg.Temperature > 0 {
			request.Temperature = c.cfg.Temperature
		}
		if len(toolDefs) > 0 {
			request.Tools = toolDefs
		}

		stream, err := c.chat.CreateChatCompletionStream(ctx, request)
		if err != nil {
			select {
			case errc <- fmt.Errorf("openai: create stream: %w", err):
			default:
			}
			return
		}
		assistantText, toolCalls, usage, err := consumeStream(stream, out)
		stream.Close()
		if err != nil {
			select {
			case errc <- err:
			default:
			}
			return
		}
		totalUsage.InputTokens += usage.InputTokens
		totalUsage.OutputTokens += usage.OutputTokens

		if len(toolCalls) == 0 {
			out <- agentrt.Message{Kind: agentrt.KindSuccess, Success: &agentrt.SuccessMessage{
				Usage: totalUsage, NumTurns: numTurns,
			}}
			return
		}

		assistantMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: assistantText}
		assistantMsg.ToolCalls = make([]openai.ToolCall, 0, len(toolCalls))
		for _, tc := range toolCalls {
			raw, _ := json.Marshal(tc.Input)
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      string(tc.Name),
					Arguments: string(raw),
				},
			})
		}
		messages = append(messages, assistantMsg)

		for _, tc := range toolCalls {
			content, isErr := c.executeTool(ctx, req, tc)
			out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{
				Content: []agentrt.ContentBlock{{
					Kind: agentrt.BlockToolResult, ResultToolUseID: tc.ID, ResultContent: content, IsError: isErr,
				}},
			}}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: tc.ID,
			})
		}
	}

	out <- agentrt.Message{Kind: agentrt.KindSuccess, Success: &agentrt.SuccessMessage{
		Usage: totalUsage, NumTurns: numTurns,
	}}
}

// toolCallRequest is one fully-buffered tool call collected from a
// streaming response.
type toolCallRequest struct {
	ID    string
	Name  tools.Name
	Input map[string]any
}

func (c *Client) executeTool(ctx context.Context, req agentrt.TurnRequest, tc toolCallRequest) (string, bool) {
	if req.Permission != nil {
		decision := req.Permission(ctx, tc.Name, tc.Input)
		if !decision.Allow {
			if req.PostTool != nil {
				req.PostTool(ctx, tc.ID, tc.Name, false)
			}
			return decision.Message, true
		}
	}
	if req.PreTool != nil {
		decision := req.PreTool(ctx, tc.ID, tc.Name, tc.Input)
		if decision.Block {
			if req.PostTool != nil {
				req.PostTool(ctx, tc.ID, tc.Name, false)
			}
			return decision.Reason, true
		}
	}
	if tc.Name == tools.Task {
		content, err := c.runSubAgent(ctx, tc.Input)
		succeeded := err == nil
		if req.PostTool != nil {
			req.PostTool(ctx, tc.ID, tc.Name, succeeded)
		}
		if err != nil {
			return err.Error(), true
		}
		return content, false
	}
	output, err := c.executor.Execute(ctx, tc.Name, tc.Input)
	succeeded := err == nil
	if req.PostTool != nil {
		req.PostTool(ctx, tc.ID, tc.Name, succeeded)
	}
	if err != nil {
		return err.Error(), true
	}
	return output, false
}

// runSubAgent resolves a Task tool call as a single bounded, non-streaming
// completion against the same model, mirroring the Anthropic adapter's
// stand-in for nested agent invocation.
func (c *Client) runSubAgent(ctx context.Context, input map[string]any) (string, error) {
	prompt, _ := input["prompt"].(string)
	if prompt == "" {
		return "", fmt.Errorf("openai: Task input missing prompt")
	}
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("openai: sub-agent completion: %w", err)
	}
	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Message.Content)
	}
	return b.String(), nil
}
