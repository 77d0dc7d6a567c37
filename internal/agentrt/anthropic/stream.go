package anthropic

import (
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

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

type toolBuf struct {
	id        string
	name      string
	fragments []string
}

// consumeStream drains one Messages.NewStreaming response, emitting
// thinking/text deltas to out as they arrive and buffering tool-use blocks
// until the full content-block set is known, so callers can group parallel
// tool uses into a single assistant message (see Client.run).
func consumeStream(stream *ssestream.Stream[sdk.MessageStreamEventUnion], out chan<- agentrt.Message) (string, []toolUseRequest, agentrt.Usage, error) {
	toolBlocks := make(map[int64]*toolBuf)
	var usage agentrt.Usage
	var results []toolUseRequest
	var text strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolBlocks[ev.Index] = &toolBuf{id: tu.ID, name: tu.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					text.WriteString(delta.Text)
					out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{
						Content: []agentrt.ContentBlock{{Kind: agentrt.BlockText, Text: delta.Text}},
					}}
				}
			case sdk.ThinkingDelta:
				if delta.Thinking != "" {
					out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{
						Content: []agentrt.ContentBlock{{Kind: agentrt.BlockThinking, Thinking: delta.Thinking}},
					}}
				}
			case sdk.InputJSONDelta:
				if tb := toolBlocks[ev.Index]; tb != nil && delta.PartialJSON != "" {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			if tb := toolBlocks[ev.Index]; tb != nil {
				input := decodeJSON(strings.Join(tb.fragments, ""))
				results = append(results, toolUseRequest{ID: tb.id, Name: tools.Name(tb.name), Input: input})
				delete(toolBlocks, ev.Index)
			}
		case sdk.MessageDeltaEvent:
			usage = agentrt.Usage{
				InputTokens:              int(ev.Usage.InputTokens),
				OutputTokens:             int(ev.Usage.OutputTokens),
				CacheReadInputTokens:     int(ev.Usage.CacheReadInputTokens),
				CacheCreationInputTokens: int(ev.Usage.CacheCreationInputTokens),
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", nil, usage, err
	}

	if len(results) > 0 {
		blocks := make([]agentrt.ContentBlock, len(results))
		for i, tu := range results {
			blocks[i] = agentrt.ContentBlock{Kind: agentrt.BlockToolUse, ToolUseID: tu.ID, ToolName: tu.Name, ToolInput: tu.Input}
		}
		out <- agentrt.Message{Kind: agentrt.KindAssistant, Assistant: &agentrt.AssistantMessage{Content: blocks}}
	}
	return text.String(), results, usage, nil
}
