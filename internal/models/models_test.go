package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolUse(t *testing.T) {
	for _, s := range []string{"quick", "Explore", " agent "} {
		_, err := ParseToolUse(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseToolUse("turbo")
	assert.Error(t, err)
}

func TestToolUseNextWraps(t *testing.T) {
	assert.Equal(t, ToolUseExplore, ToolUseQuick.Next())
	assert.Equal(t, ToolUseAgent, ToolUseExplore.Next())
	assert.Equal(t, ToolUseQuick, ToolUseAgent.Next())
}

func TestContextFileWireForm(t *testing.T) {
	msg := ContextFileMessage([]ContextFile{{FileName: "a.go", FileContent: "x", Line1: 1, Line2: 3}})
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	content, ok := raw["content"].(string)
	require.True(t, ok, "context files travel as a JSON string")
	assert.Contains(t, content, `"file_name":"a.go"`)

	var back ChatMessage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, msg, back)
}

func TestToolMessageWireForm(t *testing.T) {
	data, err := json.Marshal(ToolMessage("call_1", "done"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"done","tool_call_id":"call_1"}`, string(data))
}

func TestAssistantToolCallsOmittedForOtherRoles(t *testing.T) {
	m := UserMessage("hi")
	m.ToolCalls = []ToolCall{{ID: "x"}}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tool_calls")
}

func TestUnmarshalRejectsUnknownRole(t *testing.T) {
	var m ChatMessage
	assert.Error(t, json.Unmarshal([]byte(`{"role":"robot","content":"x"}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"content":"x"}`), &m))
}

func TestCloneIsDeep(t *testing.T) {
	tu := ToolUseAgent
	thread := ChatThread{
		ID:      "t1",
		ToolUse: &tu,
		Messages: []ChatMessage{{
			Role:      RoleAssistant,
			ToolCalls: []ToolCall{{ID: "a", Function: ToolCallFunction{Name: "cat"}}},
		}},
	}
	c := thread.Clone()
	c.Messages[0].ToolCalls[0].ID = "b"
	*c.ToolUse = ToolUseQuick

	assert.Equal(t, "a", thread.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, ToolUseAgent, *thread.ToolUse)
}

func TestCDInstructionAndLastPrompt(t *testing.T) {
	thread := ChatThread{Messages: []ChatMessage{
		UserMessage("fix the bug"),
		AssistantMessage("on it"),
		UserMessage("💿 now run the tests"),
	}}
	assert.True(t, thread.Messages[2].IsCDInstruction())
	assert.Equal(t, "fix the bug", thread.LastUserPrompt())
}
