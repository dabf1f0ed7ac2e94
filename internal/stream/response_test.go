package stream

import (
	"testing"

	"refactchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, r Response)
	}{
		{
			name:  "assistant delta",
			input: `{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"hi"}}]}`,
			check: func(t *testing.T, r Response) {
				cr := r.(ChoicesResponse)
				assert.Equal(t, "gpt-4o", cr.Model)
				assert.Equal(t, "assistant", cr.Choices[0].Role)
				assert.Equal(t, "hi", cr.Choices[0].Content)
			},
		},
		{
			name:  "tool call delta",
			input: `{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"cat","arguments":"{\"pa"}}]}}]}`,
			check: func(t *testing.T, r Response) {
				tc := r.(ChoicesResponse).Choices[0].ToolCalls
				require.Len(t, tc, 1)
				assert.Equal(t, "call_1", tc[0].ID)
				assert.Equal(t, "cat", tc[0].Function.Name)
				assert.Equal(t, `{"pa`, tc[0].Function.Arguments)
			},
		},
		{
			name:  "usage",
			input: `{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`,
			check: func(t *testing.T, r Response) {
				cr := r.(ChoicesResponse)
				require.NotNil(t, cr.Usage)
				assert.EqualValues(t, 10, cr.Usage.PromptTokens)
				assert.EqualValues(t, 3, cr.Usage.CompletionTokens)
			},
		},
		{
			name:  "tool message",
			input: `{"role":"tool","tool_call_id":"call_1","content":"file body"}`,
			check: func(t *testing.T, r Response) {
				m := r.(MessageResponse).Message
				assert.Equal(t, models.RoleTool, m.Role)
				assert.Equal(t, "call_1", m.ToolCallID)
				assert.Equal(t, "file body", m.Content)
			},
		},
		{
			name:  "nested tool message",
			input: `{"role":"tool","content":{"tool_call_id":"call_2","content":"ok"}}`,
			check: func(t *testing.T, r Response) {
				m := r.(MessageResponse).Message
				assert.Equal(t, "call_2", m.ToolCallID)
				assert.Equal(t, "ok", m.Content)
			},
		},
		{
			name:  "context files as array",
			input: `{"role":"context_file","content":[{"file_name":"main.go","file_content":"package main","line1":1,"line2":1}]}`,
			check: func(t *testing.T, r Response) {
				m := r.(MessageResponse).Message
				require.Len(t, m.ContextFiles, 1)
				assert.Equal(t, "main.go", m.ContextFiles[0].FileName)
			},
		},
		{
			name:  "error detail",
			input: `{"detail":"rate limited"}`,
			check: func(t *testing.T, r Response) {
				assert.Equal(t, ErrorResponse{Detail: "rate limited"}, r)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, r)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	inputs := []string{
		``,
		`{"choices":`,
		`{"choices":"nope"}`,
		`{"role":"wizard","content":"x"}`,
		`{"role":"context_file","content":"not a list"}`,
		`{"foo":1}`,
		`[1,2]`,
	}
	for _, in := range inputs {
		_, err := Decode([]byte(in))
		var derr *DecodeError
		assert.ErrorAs(t, err, &derr, "input %q", in)
	}
}
