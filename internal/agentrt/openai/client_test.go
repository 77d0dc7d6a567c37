package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/tools"
)

func TestNewRejectsAMissingAPIKeyOrModel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Model: "gpt-4o"}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{APIKey: "sk-test"}, nil, nil)
	assert.Error(t, err)
}

func TestNewDefaultsMaxTokensWhenUnsetOrNonPositive(t *testing.T) {
	t.Parallel()

	c, err := New(Config{APIKey: "sk-test", Model: "gpt-4o"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, c.cfg.MaxTokens)

	c2, err := New(Config{APIKey: "sk-test", Model: "gpt-4o", MaxTokens: -5}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, c2.cfg.MaxTokens)
}

func TestNewPreservesAnExplicitPositiveMaxTokens(t *testing.T) {
	t.Parallel()

	c, err := New(Config{APIKey: "sk-test", Model: "gpt-4o", MaxTokens: 2048}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2048, c.cfg.MaxTokens)
}

func TestDecodeJSONFallsBackToAnEmptyMapOnInvalidInput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{}, decodeJSON(""))
	assert.Equal(t, map[string]any{}, decodeJSON("{not json"))
	assert.Equal(t, map[string]any{"command": "ls"}, decodeJSON(`{"command":"ls"}`))
}

func TestExecuteToolConsultsPermissionBeforePreToolAndNeverRunsADeniedTool(t *testing.T) {
	t.Parallel()
	c, err := New(Config{APIKey: "sk-test", Model: "gpt-4o"}, nil, nil)
	require.NoError(t, err)

	var calledPreTool, calledPostTool bool
	var postToolSucceeded bool
	req := agentrt.TurnRequest{
		Permission: func(context.Context, tools.Name, map[string]any) agentrt.PermissionDecision {
			return agentrt.PermissionDecision{Allow: false, Message: "denied outside sandbox"}
		},
		PreTool: func(context.Context, string, tools.Name, map[string]any) agentrt.HookDecision {
			calledPreTool = true
			return agentrt.HookDecision{}
		},
		PostTool: func(_ context.Context, _ string, _ tools.Name, succeeded bool) agentrt.HookDecision {
			calledPostTool = true
			postToolSucceeded = succeeded
			return agentrt.HookDecision{}
		},
	}

	output, isErr := c.executeTool(context.Background(), req, toolCallRequest{ID: "tc-1", Name: tools.Write, Input: map[string]any{"file_path": "/etc/passwd"}})

	assert.True(t, isErr)
	assert.Equal(t, "denied outside sandbox", output)
	assert.False(t, calledPreTool)
	require.True(t, calledPostTool)
	assert.False(t, postToolSucceeded)
}
