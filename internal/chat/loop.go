package chat

import "refactchat/internal/models"

// CheckForToolLoop reports whether the trailing run of tool-call, tool-result
// and CD-instruction messages contains two tool calls with the same name, the
// same arguments and the same result content.
func CheckForToolLoop(messages []models.ChatMessage) bool {
	start := len(messages)
	for start > 0 {
		m := messages[start-1]
		if !m.HasToolCalls() && !m.IsTool() && !m.IsCDInstruction() {
			break
		}
		start--
	}
	tail := messages[start:]
	if len(tail) == 0 {
		return false
	}

	var calls []models.ToolCall
	results := make(map[string]string)
	for _, m := range tail {
		switch {
		case m.IsAssistant():
			calls = append(calls, m.ToolCalls...)
		case m.IsTool():
			if _, seen := results[m.ToolCallID]; !seen {
				results[m.ToolCallID] = m.Content
			}
		}
	}
	if len(calls) < 2 {
		return false
	}

	for i := 0; i < len(calls); i++ {
		a := calls[i]
		aResult, ok := results[a.ID]
		if !ok {
			continue
		}
		for j := i + 1; j < len(calls); j++ {
			b := calls[j]
			if a.Function.Name != b.Function.Name || a.Function.Arguments != b.Function.Arguments {
				continue
			}
			if bResult, ok := results[b.ID]; ok && aResult == bResult {
				return true
			}
		}
	}
	return false
}
