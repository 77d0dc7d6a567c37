// Package anthropic is the primary agentrt.Client adapter: it drives
// Anthropic's streaming Messages API and translates its
// MessageStreamEventUnion deltas into the init / assistant-content-block /
// success message shape internal/agentrt defines, executing tool-use
// blocks against internal/sandboxtools before feeding results back for the
// next model turn.
//
// Grounded on features/model/anthropic's Client/prepareRequest/encodeTools
// request-building idiom and its anthropicStreamer content-block
// accumulation, adapted from a generic model.Client abstraction to this
// gateway's concrete tool-execution loop (the teacher never executes
// tools itself; it leaves that to the planner, which this rewrite folds
// into the adapter since the agent runtime is explicitly out of scope and
// needs a concrete stand-in).
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/sandboxtools"
	"goa.design/agentgateway/internal/tools"
)

// Config configures the Anthropic adapter.
type Config struct {
	APIKey      string
	BaseURL     string // overrides the default API host; empty uses the SDK default
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements agentrt.Client against the Anthropic Messages API.
type Client struct {
	msg      *sdk.MessageService
	cfg      Config
	registry *tools.Registry
	executor *sandboxtools.Executor
}

// New builds a Client. registry supplies the declared tool schemas
// advertised to the model; executor runs the builtin tools the model
// invokes.
func New(cfg Config, registry *tools.Registry, executor *sandboxtools.Executor) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model identifier is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	sc := sdk.NewClient(opts...)
	return &Client{msg: &sc.Messages, cfg: cfg, registry: registry, executor: executor}, nil
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

func (c *Client) buildToolParams() []sdk.ToolUnionParam {
	if c.registry == nil {
		return nil
	}
	specs := c.registry.Names()
	out := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, name := range specs {
		spec, ok := c.registry.Lookup(name)
		if !ok {
			continue
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: spec.InputSchema}, string(spec.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(spec.Description)
		}
		out = append(out, u)
	}
	return out
}

func (c *Client) run(ctx context.Context, req agentrt.TurnRequest, out chan<- agentrt.Message, errc chan<- error) {
	defer close(out)

	preamble := req.SystemPrompt
	if req.History != "" {
		preamble = preamble + "\n\nPrior conversation summary:\n" + req.History
	}
	messages := []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.UserMessage))}
	toolParams := c.buildToolParams()

	var totalUsage agentrt.Usage
	numTurns := 0
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 25
	}

	for numTurns < maxTurns {
		numTurns++
		params := sdk.MessageNewParams{
			MaxTokens: int64(c.cfg.MaxTokens),
			Messages:  messages,
			Model:     sdk.Model(c.cfg.Model),
		}
		if preamble != "" {
			params.System = []sdk.TextBlockParam{{Text: preamble}}
		}
		if len(toolParams) > 0 {
			params.Tools = toolParams
		}
		if c.cfg.Temperature > 0 {
			params.Temperature = sdk.Float(c.cfg.Temperature)
		}

		stream := c.msg.NewStreaming(ctx, params)
		assistantText, toolUses, usage, err := consumeStream(stream, out)
		if err != nil {
			select {
			case errc <- err:
			default:
			}
			return
		}
		totalUsage.InputTokens += usage.InputTokens
		totalUsage.OutputTokens += usage.OutputTokens
		totalUsage.CacheReadInputTokens += usage.CacheReadInputTokens
		totalUsage.CacheCreationInputTokens += usage.CacheCreationInputTokens

		if len(toolUses) == 0 {
			out <- agentrt.Message{Kind: agentrt.KindSuccess, Success: &agentrt.SuccessMessage{
				Usage: totalUsage, NumTurns: numTurns,
			}}
			return
		}

		assistantBlocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(toolUses))
		if assistantText != "" {
			assistantBlocks = append(assistantBlocks, sdk.NewTextBlock(assistantText))
		}
		resultBlocks := make([]sdk.ContentBlockParamUnion, 0, len(toolUses))
		for _, tu := range toolUses {
			assistantBlocks = append(assistantBlocks, sdk.NewToolUseBlock(tu.ID, tu.Input, string(tu.Name)))

			content, isErr := c.executeTool(ctx, req, tu)
			out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{
				Content: []agentrt.ContentBlock{{
					Kind: agentrt.BlockToolResult, ResultToolUseID: tu.ID, ResultContent: content, IsError: isErr,
				}},
			}}
			resultBlocks = append(resultBlocks, sdk.NewToolResultBlock(tu.ID, content, isErr))
		}
		messages = append(messages, sdk.NewAssistantMessage(assistantBlocks...), sdk.NewUserMessage(resultBlocks...))
	}

	out <- agentrt.Message{Kind: agentrt.KindSuccess, Success: &agentrt.SuccessMessage{
		Usage: totalUsage, NumTurns: numTurns,
	}}
}

// toolUseRequest is one fully-buffered tool-use block collected from a
// streaming response.
type toolUseRequest struct {
	ID    string
	Name  tools.Name
	Input map[string]any
}

func (c *Client) executeTool(ctx context.Context, req agentrt.TurnRequest, tu toolUseRequest) (string, bool) {
	if req.Permission != nil {
		decision := req.Permission(ctx, tu.Name, tu.Input)
		if !decision.Allow {
			if req.PostTool != nil {
				req.PostTool(ctx, tu.ID, tu.Name, false)
			}
			return decision.Message, true
		}
	}
	if req.PreTool != nil {
		decision := req.PreTool(ctx, tu.ID, tu.Name, tu.Input)
		if decision.Block {
			if req.PostTool != nil {
				req.PostTool(ctx, tu.ID, tu.Name, false)
			}
			return decision.Reason, true
		}
	}
	if tu.Name == tools.Task {
		content, err := c.runSubAgent(ctx, req, tu.Input)
		succeeded := err == nil
		if req.PostTool != nil {
			req.PostTool(ctx, tu.ID, tu.Name, succeeded)
		}
		if err != nil {
			return err.Error(), true
		}
		return content, false
	}
	output, err := c.executor.Execute(ctx, tu.Name, tu.Input)
	succeeded := err == nil
	if req.PostTool != nil {
		req.PostTool(ctx, tu.ID, tu.Name, succeeded)
	}
	if err != nil {
		return err.Error(), true
	}
	return output, false
}

// runSubAgent resolves a Task tool-use as a single bounded, non-streaming
// completion against the same model — a nested agent invocation without
// further tool access, matching spec.md's "sub-agent" concept while
// keeping the actual nested-runtime concern out of scope.
func (c *Client) runSubAgent(ctx context.Context, req agentrt.TurnRequest, input map[string]any) (string, error) {
	prompt, _ := input["prompt"].(string)
	if prompt == "" {
		return "", fmt.Errorf("anthropic: Task input missing prompt")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Model:     sdk.Model(c.cfg.Model),
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: sub-agent completion: %w", err)
	}
	var buf []byte
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			buf = append(buf, []byte(tb.Text)...)
		}
	}
	return string(buf), nil
}

func decodeJSON(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}
