package openai

import (
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/tools"
)

// turnStream adapts the channel fed by Client.run to the agentrt.Stream
// interface.
type turnStream struct {
	out    chan agentrt.Message
	errc   chan error
	cancel func()
}

func (s *turnStream) Recv() (agentrt.Message, error) {
	msg, ok := <-s.out
	if !ok {
		select {
		case err := <-s.errc:
			if err != nil {
				return agentrt.Message{}, err
			}
		default:
		}
		return agentrt.Message{}, agentrt.ErrStreamClosed
	}
	return msg, nil
}

func (s *turnStream) Close() error {
	s.cancel()
	return nil
}

type toolCallBuf struct {
	id   string
	name string
	args string
}

// consumeStream drains one CreateChatCompletionStream response, emitting
// text deltas to out as they arrive and accumulating both the full
// assistant text and any streamed tool-call argument fragments (which
// OpenAI delivers keyed by index across many chunks, not necessarily in
// one piece) until the stream closes.
func consumeStream(stream *openai.ChatCompletionStream, out chan<- agentrt.Message) (string, []toolCallRequest, agentrt.Usage, error) {
	calls := make(map[int]*toolCallBuf)
	order := make([]int, 0, 4)
	var usage agentrt.Usage
	var text string

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, usage, err
		}
		if chunk.Usage != nil {
			usage = agentrt.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text += delta.Content
			out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{
				Content: []agentrt.ContentBlock{{Kind: agentrt.BlockText, Text: delta.Content}},
			}}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			buf, ok := calls[idx]
			if !ok {
				buf = &toolCallBuf{}
				calls[idx] = buf
				order = append(order, idx)
			}
			if tc.ID != "" {
				buf.id = tc.ID
			}
			if tc.Function.Name != "" {
				buf.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				buf.args += tc.Function.Arguments
			}
		}
	}

	results := make([]toolCallRequest, 0, len(order))
	for _, idx := range order {
		buf := calls[idx]
		results = append(results, toolCallRequest{ID: buf.id, Name: tools.Name(buf.name), Input: decodeJSON(buf.args)})
	}
	if len(results) > 0 {
		blocks := make([]agentrt.ContentBlock, len(results))
		for i, tc := range results {
			blocks[i] = agentrt.ContentBlock{Kind: agentrt.BlockToolUse, ToolUseID: tc.ID, ToolName: tc.Name, ToolInput: tc.Input}
		}
		out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{Content: blocks}}
	}
	return text, results, usage, nil
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
