package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"refactchat/internal/models"

	"github.com/openai/openai-go/v3"
)

// Response is one decoded stream frame. It is one of ChoicesResponse,
// MessageResponse or ErrorResponse.
type Response interface {
	isResponse()
}

// Choice is a single delta from an OpenAI-style chunk.
type Choice struct {
	Index        int
	Role         string
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// ChoicesResponse carries incremental assistant output.
type ChoicesResponse struct {
	Model   string
	Choices []Choice
	Usage   *Usage
}

// MessageResponse carries a whole message the server injected into the
// stream, e.g. context files or tool results.
type MessageResponse struct {
	Message models.ChatMessage
}

// ErrorResponse is the server's `{"detail": ...}` error envelope.
type ErrorResponse struct {
	Detail string
}

func (ChoicesResponse) isResponse() {}
func (MessageResponse) isResponse() {}
func (ErrorResponse) isResponse()   {}

// DecodeError reports a frame that does not match any known payload.
type DecodeError struct {
	Data   []byte
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	preview := string(e.Data)
	if len(preview) > 80 {
		preview = preview[:77] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("decode %q: %s: %v", preview, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %q: %s", preview, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type probe struct {
	Choices []json.RawMessage `json:"choices"`
	Role    *string           `json:"role"`
	Detail  json.RawMessage   `json:"detail"`
}

// Decode validates a frame payload and returns the typed response.
func Decode(data []byte) (Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &DecodeError{Data: data, Reason: "empty payload"}
	}

	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &DecodeError{Data: data, Reason: "invalid json", Err: err}
	}

	switch {
	case len(p.Detail) > 0 && string(p.Detail) != "null":
		return decodeError(data, p.Detail)
	case p.Choices != nil:
		return decodeChoices(data)
	case p.Role != nil:
		var msg models.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &DecodeError{Data: data, Reason: "invalid message", Err: err}
		}
		return MessageResponse{Message: msg}, nil
	default:
		return nil, &DecodeError{Data: data, Reason: "unknown payload"}
	}
}

func decodeError(data, detail []byte) (Response, error) {
	var s string
	if err := json.Unmarshal(detail, &s); err == nil {
		return ErrorResponse{Detail: s}, nil
	}
	// FastAPI-style validation errors put a list here.
	return ErrorResponse{Detail: string(detail)}, nil
}

func decodeChoices(data []byte) (Response, error) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, &DecodeError{Data: data, Reason: "invalid chunk", Err: err}
	}

	resp := ChoicesResponse{
		Model:   chunk.Model,
		Choices: make([]Choice, 0, len(chunk.Choices)),
	}
	for _, c := range chunk.Choices {
		choice := Choice{
			Index:        int(c.Index),
			Role:         c.Delta.Role,
			Content:      c.Delta.Content,
			FinishReason: c.FinishReason,
		}
		for _, tc := range c.Delta.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, models.ToolCall{
				ID:    tc.ID,
				Index: int(tc.Index),
				Type:  tc.Type,
				Function: models.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		resp.Choices = append(resp.Choices, choice)
	}
	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		resp.Usage = &Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
		}
	}
	return resp, nil
}
