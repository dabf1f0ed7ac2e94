package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ToolUse selects which tools the assistant may call
type ToolUse string

const (
	ToolUseQuick   ToolUse = "quick"   // No tools
	ToolUseExplore ToolUse = "explore" // Read-only (non-agentic) tools
	ToolUseAgent   ToolUse = "agent"   // Full tool access
)

// ToolUseModes lists modes in the order the UI cycles through them
var ToolUseModes = []ToolUse{ToolUseQuick, ToolUseExplore, ToolUseAgent}

func ParseToolUse(s string) (ToolUse, error) {
	switch ToolUse(strings.ToLower(strings.TrimSpace(s))) {
	case ToolUseQuick:
		return ToolUseQuick, nil
	case ToolUseExplore:
		return ToolUseExplore, nil
	case ToolUseAgent:
		return ToolUseAgent, nil
	default:
		return "", fmt.Errorf("unknown tool use mode %q", s)
	}
}

// Next returns the mode after t, wrapping around
func (t ToolUse) Next() ToolUse {
	for i, m := range ToolUseModes {
		if m == t {
			return ToolUseModes[(i+1)%len(ToolUseModes)]
		}
	}
	return ToolUseAgent
}

const (
	RoleUser        = "user"
	RoleAssistant   = "assistant"
	RoleTool        = "tool"
	RoleContextFile = "context_file"
	RoleSystem      = "system"
)

// CDInstructionPrefix marks server-injected user messages that steer the agent.
const CDInstructionPrefix = "💿"

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Index    int              `json:"index"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

type ContextFile struct {
	FileName    string `json:"file_name"`
	FileContent string `json:"file_content"`
	Line1       int    `json:"line1"`
	Line2       int    `json:"line2"`
}

// ChatMessage is a tagged union keyed on Role. Only the fields that belong to
// the role are populated: ToolCalls/FinishReason for assistant, ToolCallID for
// tool, ContextFiles for context_file, Content for everything else.
type ChatMessage struct {
	Role         string
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	ToolCallID   string
	ContextFiles []ContextFile
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

func ToolMessage(toolCallID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

func ContextFileMessage(files []ContextFile) ChatMessage {
	return ChatMessage{Role: RoleContextFile, ContextFiles: files}
}

func (m ChatMessage) IsAssistant() bool { return m.Role == RoleAssistant }
func (m ChatMessage) IsTool() bool      { return m.Role == RoleTool }
func (m ChatMessage) IsUser() bool      { return m.Role == RoleUser }

// HasToolCalls reports an assistant message that is waiting on tool results.
func (m ChatMessage) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func (m ChatMessage) IsCDInstruction() bool {
	return m.Role == RoleUser && strings.HasPrefix(strings.TrimSpace(m.Content), CDInstructionPrefix)
}

// Clone returns a copy that shares no slices with m.
func (m ChatMessage) Clone() ChatMessage {
	c := m
	if m.ToolCalls != nil {
		c.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.ContextFiles != nil {
		c.ContextFiles = append([]ContextFile(nil), m.ContextFiles...)
	}
	return c
}

type wireMessage struct {
	Role         string          `json:"role"`
	Content      json.RawMessage `json:"content"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// MarshalJSON writes the refact-lsp wire form. Context files are sent as a
// JSON-encoded string, which is what the server expects in requests.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Role:         m.Role,
		ToolCallID:   m.ToolCallID,
		FinishReason: m.FinishReason,
	}
	if m.Role == RoleAssistant {
		w.ToolCalls = m.ToolCalls
	}

	var content any = m.Content
	if m.Role == RoleContextFile {
		files := m.ContextFiles
		if files == nil {
			files = []ContextFile{}
		}
		raw, err := json.Marshal(files)
		if err != nil {
			return nil, err
		}
		content = string(raw)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	w.Content = raw
	return json.Marshal(w)
}

// UnmarshalJSON accepts both the request form and the forms the server emits in
// streams: context_file content as an array or as a string holding one, and
// tool content as a string or as {tool_call_id, content}.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant, RoleTool, RoleContextFile, RoleSystem:
	case "":
		return fmt.Errorf("message has no role")
	default:
		return fmt.Errorf("unknown message role %q", w.Role)
	}

	out := ChatMessage{
		Role:         w.Role,
		ToolCallID:   w.ToolCallID,
		FinishReason: w.FinishReason,
	}
	if w.Role == RoleAssistant {
		out.ToolCalls = w.ToolCalls
	}

	content := w.Content
	if len(content) == 0 || string(content) == "null" {
		*m = out
		return nil
	}

	switch w.Role {
	case RoleContextFile:
		files, err := decodeContextFiles(content)
		if err != nil {
			return err
		}
		out.ContextFiles = files
	case RoleTool:
		var s string
		if err := json.Unmarshal(content, &s); err == nil {
			out.Content = s
			break
		}
		var nested struct {
			ToolCallID string `json:"tool_call_id"`
			Content    string `json:"content"`
		}
		if err := json.Unmarshal(content, &nested); err != nil {
			return fmt.Errorf("tool content: %w", err)
		}
		out.Content = nested.Content
		if out.ToolCallID == "" {
			out.ToolCallID = nested.ToolCallID
		}
	default:
		if err := json.Unmarshal(content, &out.Content); err != nil {
			return fmt.Errorf("%s content: %w", w.Role, err)
		}
	}
	*m = out
	return nil
}

func decodeContextFiles(content json.RawMessage) ([]ContextFile, error) {
	var files []ContextFile
	if err := json.Unmarshal(content, &files); err == nil {
		return files, nil
	}
	var s string
	if err := json.Unmarshal(content, &s); err != nil {
		return nil, fmt.Errorf("context_file content: %w", err)
	}
	if err := json.Unmarshal([]byte(s), &files); err != nil {
		return nil, fmt.Errorf("context_file content: %w", err)
	}
	return files, nil
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

type ChatThread struct {
	ID               string
	Messages         []ChatMessage
	Model            string
	Title            string
	ToolUse          *ToolUse
	Read             bool
	IsTitleGenerated bool
	Integration      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a thread that shares no mutable state with t.
func (t ChatThread) Clone() ChatThread {
	c := t
	c.Messages = CloneMessages(t.Messages)
	if t.ToolUse != nil {
		tu := *t.ToolUse
		c.ToolUse = &tu
	}
	return c
}

// LastUserPrompt returns the newest user message that is not a CD instruction.
func (t ChatThread) LastUserPrompt() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		m := t.Messages[i]
		if m.IsUser() && !m.IsCDInstruction() {
			return m.Content
		}
	}
	return ""
}

type PauseType string

const (
	PauseConfirmation PauseType = "confirmation"
	PauseDenial       PauseType = "denial"
)

// PauseReason blocks auto-continuation until the user confirms or rejects.
type PauseReason struct {
	Type       PauseType `json:"type"`
	Command    string    `json:"command"`
	Rule       string    `json:"rule"`
	ToolCallID string    `json:"tool_call_id"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Agentic     bool           `json:"agentic"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCommand is a tool descriptor as listed by the LSP server.
type ToolCommand struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ChatListItem struct {
	ID             string
	Title          string
	ModelID        string
	ToolUse        string
	UpdatedAtUnix  int64
	LastUserPrompt string
}

// ToolAction represents a completed tool action for display
type ToolAction struct {
	Name    string
	Summary string
}
