package sse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolStartPayloadMarshalsWithSnakeCaseKeysAndNoParallelGroupField(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(ToolStartPayload{ToolID: "tu-1", Name: "Write", Input: "{}", Iteration: 2})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "tu-1", raw["tool_id"])
	assert.Equal(t, "Write", raw["name"])
	assert.Equal(t, float64(2), raw["iteration"])
	_, hasParallelGroup := raw["parallel_group"]
	assert.False(t, hasParallelGroup)
}

func TestErrorPayloadOmitsEmptyOptionalFields(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(ErrorPayload{Error: "boom"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "boom", raw["error"])
	_, hasDetails := raw["details"]
	_, hasTraceFile := raw["trace_file"]
	assert.False(t, hasDetails)
	assert.False(t, hasTraceFile)
}

func TestToolResultPayloadOmitsErrorFieldWhenEmpty(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(ToolResultPayload{ToolID: "tu-1", Status: "success", Output: "done"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, hasError := raw["error"]
	assert.False(t, hasError)
}

func TestCostUpdatePayloadMarshalsAllNumericFields(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(CostUpdatePayload{
		InputTokens: 100, OutputTokens: 50, Cost: 0.01, TotalCost: 0.05,
		ContextUsed: 1000, ContextMax: 200000, ContextPercent: 0.5,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(100), raw["input_tokens"])
	assert.Equal(t, float64(200000), raw["context_max"])
	assert.Equal(t, 0.5, raw["context_percent"])
}

func TestAgentSpawnPayloadMarshalsHierarchyFields(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(AgentSpawnPayload{
		AgentID: "a-1", AgentType: "researcher", Description: "look things up",
		ParentToolID: "tu-1", Iteration: 3, Depth: 1,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "tu-1", raw["parent_tool_id"])
	assert.Equal(t, float64(1), raw["depth"])
}
