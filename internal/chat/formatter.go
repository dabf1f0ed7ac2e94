package chat

import (
	"encoding/json"

	"refactchat/internal/models"
	"refactchat/internal/stream"
)

// FormatChatResponse merges one stream response into messages and returns the
// new list. The input slice and its elements are never modified.
func FormatChatResponse(messages []models.ChatMessage, resp stream.Response) []models.ChatMessage {
	switch r := resp.(type) {
	case stream.MessageResponse:
		out := make([]models.ChatMessage, len(messages), len(messages)+1)
		copy(out, messages)
		return append(out, r.Message.Clone())

	case stream.ChoicesResponse:
		out := make([]models.ChatMessage, len(messages), len(messages)+1)
		copy(out, messages)
		for _, choice := range r.Choices {
			out = applyChoice(out, choice)
		}
		return out

	default:
		return messages
	}
}

// applyChoice works on a list that FormatChatResponse already copied; it may
// replace elements but must clone before changing one.
func applyChoice(out []models.ChatMessage, choice stream.Choice) []models.ChatMessage {
	if choice.Role == models.RoleContextFile {
		var files []models.ContextFile
		if err := json.Unmarshal([]byte(choice.Content), &files); err != nil {
			return out
		}
		return append(out, models.ContextFileMessage(files))
	}

	hasDelta := choice.Content != "" || len(choice.ToolCalls) > 0 || choice.Role == models.RoleAssistant
	last := len(out) - 1

	if !hasDelta {
		if choice.FinishReason != "" && last >= 0 && out[last].IsAssistant() {
			m := out[last].Clone()
			m.FinishReason = choice.FinishReason
			out[last] = m
		}
		return out
	}

	if last < 0 || !out[last].IsAssistant() {
		out = append(out, models.ChatMessage{Role: models.RoleAssistant})
		last = len(out) - 1
	}

	m := out[last].Clone()
	m.Content += choice.Content
	m.ToolCalls = mergeToolCalls(m.ToolCalls, choice.ToolCalls)
	if choice.FinishReason != "" {
		m.FinishReason = choice.FinishReason
	}
	out[last] = m
	return out
}

// mergeToolCalls folds streamed tool-call deltas into prev by index. prev must
// already be a private copy.
func mergeToolCalls(prev, deltas []models.ToolCall) []models.ToolCall {
	for _, d := range deltas {
		i := indexOfCall(prev, d.Index)
		if i < 0 {
			prev = append(prev, d)
			continue
		}
		tc := prev[i]
		if tc.ID == "" {
			tc.ID = d.ID
		}
		if tc.Type == "" {
			tc.Type = d.Type
		}
		if tc.Function.Name == "" {
			tc.Function.Name = d.Function.Name
		}
		tc.Function.Arguments += d.Function.Arguments
		prev[i] = tc
	}
	return prev
}

func indexOfCall(calls []models.ToolCall, index int) int {
	for i, c := range calls {
		if c.Index == index {
			return i
		}
	}
	return -1
}
