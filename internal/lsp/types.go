package lsp

import (
	"fmt"

	"refactchat/internal/models"

	"github.com/openai/openai-go/v3"
)

// HTTPError is a non-success status from the server.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:197] + "..."
	}
	if body == "" {
		return fmt.Sprintf("lsp: HTTP %d", e.Status)
	}
	return fmt.Sprintf("lsp: HTTP %d: %s", e.Status, body)
}

type ChatModel struct {
	NCtx            int  `json:"n_ctx"`
	SupportsTools   bool `json:"supports_tools"`
	SupportsAgent   bool `json:"supports_agent"`
	SupportsScratch bool `json:"supports_scratchpads,omitempty"`
}

// Caps is the subset of /v1/caps the chat needs.
type Caps struct {
	CloudName            string               `json:"cloud_name"`
	CodeChatModels       map[string]ChatModel `json:"code_chat_models"`
	CodeChatDefaultModel string               `json:"code_chat_default_model"`
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	ChatID    string
	Messages  []models.ChatMessage
	Model     string
	Tools     []openai.ChatCompletionToolUnionParam
	MaxTokens int
	ToolUse   models.ToolUse
}

type chatBody struct {
	Messages  []models.ChatMessage                  `json:"messages"`
	Model     string                                `json:"model"`
	Stream    bool                                  `json:"stream"`
	Tools     []openai.ChatCompletionToolUnionParam `json:"tools,omitempty"`
	MaxTokens int                                   `json:"max_tokens,omitempty"`
	ToolUse   models.ToolUse                        `json:"tool_use,omitempty"`
	ChatID    string                                `json:"chat_id"`
}

type confirmationBody struct {
	ToolCalls []models.ToolCall    `json:"tool_calls"`
	Messages  []models.ChatMessage `json:"messages"`
}

// ConfirmationResult says whether pending tool calls need the user first.
type ConfirmationResult struct {
	Pause        bool                 `json:"pause"`
	PauseReasons []models.PauseReason `json:"pause_reasons"`
}

// CompletionResult lists @-command completions for the input box.
type CompletionResult struct {
	Completions     []string `json:"completions"`
	Replace         [2]int   `json:"replace"`
	IsCmdExecutable bool     `json:"is_cmd_executable"`
}

type completionBody struct {
	Query  string `json:"query"`
	Cursor int    `json:"cursor"`
	TopN   int    `json:"top_n"`
}

type previewBody struct {
	Query string `json:"query"`
}

type previewResult struct {
	Messages []models.ChatMessage `json:"messages"`
}
