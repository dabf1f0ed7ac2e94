package chat

import (
	"strings"
	"testing"

	"refactchat/internal/models"
	"refactchat/internal/stream"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delta(content string) stream.ChoicesResponse {
	return stream.ChoicesResponse{Choices: []stream.Choice{{Content: content}}}
}

func toolDelta(index int, id, name, args string) stream.ChoicesResponse {
	return stream.ChoicesResponse{Choices: []stream.Choice{{
		ToolCalls: []models.ToolCall{{
			ID:       id,
			Index:    index,
			Function: models.ToolCallFunction{Name: name, Arguments: args},
		}},
	}}}
}

func TestFormatConcatenatesAssistantRun(t *testing.T) {
	parts := []string{"The ", "quick ", "", "brown ", "fox"}
	msgs := []models.ChatMessage{models.UserMessage("tell me")}
	for _, p := range parts {
		msgs = FormatChatResponse(msgs, delta(p))
	}

	want := []models.ChatMessage{
		models.UserMessage("tell me"),
		models.AssistantMessage(strings.Join(parts, "")),
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatDoesNotMutateInput(t *testing.T) {
	input := []models.ChatMessage{
		models.UserMessage("q"),
		{Role: models.RoleAssistant, Content: "a", ToolCalls: []models.ToolCall{{ID: "c1", Function: models.ToolCallFunction{Name: "cat", Arguments: "{"}}}},
	}
	snapshot := models.CloneMessages(input)

	_ = FormatChatResponse(input, delta("b"))
	_ = FormatChatResponse(input, toolDelta(0, "", "", `"x":1}`))
	_ = FormatChatResponse(input, stream.MessageResponse{Message: models.ToolMessage("c1", "r")})

	if diff := cmp.Diff(snapshot, input); diff != "" {
		t.Errorf("input was mutated (-before +after):\n%s", diff)
	}
}

func TestFormatAppendsAfterNonAssistant(t *testing.T) {
	msgs := []models.ChatMessage{
		models.UserMessage("q"),
		models.AssistantMessage("first"),
		models.ToolMessage("c1", "result"),
	}
	out := FormatChatResponse(msgs, delta("second"))
	require.Len(t, out, 4)
	assert.Equal(t, models.AssistantMessage("second"), out[3])
}

func TestFormatContextFilesAlwaysAppend(t *testing.T) {
	file := models.ContextFile{FileName: "a.go", FileContent: "x"}
	msgs := []models.ChatMessage{models.UserMessage("q")}
	msgs = FormatChatResponse(msgs, stream.MessageResponse{Message: models.ContextFileMessage([]models.ContextFile{file})})
	msgs = FormatChatResponse(msgs, stream.MessageResponse{Message: models.ContextFileMessage([]models.ContextFile{file})})
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleContextFile, msgs[1].Role)
	assert.Equal(t, models.RoleContextFile, msgs[2].Role)

	choice := stream.ChoicesResponse{Choices: []stream.Choice{{Role: models.RoleContextFile, Content: `[{"file_name":"b.go","file_content":"y","line1":1,"line2":1}]`}}}
	msgs = FormatChatResponse(msgs, choice)
	require.Len(t, msgs, 4)
	assert.Equal(t, "b.go", msgs[3].ContextFiles[0].FileName)
}

func TestFormatMergesToolCallDeltasByIndex(t *testing.T) {
	msgs := []models.ChatMessage{models.UserMessage("q")}
	msgs = FormatChatResponse(msgs, toolDelta(0, "call_a", "cat", `{"path":`))
	msgs = FormatChatResponse(msgs, toolDelta(1, "call_b", "tree", `{}`))
	msgs = FormatChatResponse(msgs, toolDelta(0, "", "", `"main.go"}`))

	require.Len(t, msgs, 2)
	calls := msgs[1].ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, `{"path":"main.go"}`, calls[0].Function.Arguments)
	assert.Equal(t, "tree", calls[1].Function.Name)
}

func TestFormatRecordsFinishReason(t *testing.T) {
	msgs := FormatChatResponse([]models.ChatMessage{models.UserMessage("q")}, delta("done"))
	msgs = FormatChatResponse(msgs, stream.ChoicesResponse{Choices: []stream.Choice{{FinishReason: "stop"}}})
	require.Len(t, msgs, 2)
	assert.Equal(t, "stop", msgs[1].FinishReason)
}

func TestFormatIgnoresErrorResponse(t *testing.T) {
	msgs := []models.ChatMessage{models.UserMessage("q")}
	out := FormatChatResponse(msgs, stream.ErrorResponse{Detail: "boom"})
	assert.Equal(t, msgs, out)
}
