package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"refactchat/internal/models"
	"refactchat/internal/stream"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", fastRetry(), zaptest.NewLogger(t))
}

func TestCaps(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, capsPath, r.URL.Path)
		_, _ = io.WriteString(w, `{
			"cloud_name": "Refact",
			"code_chat_default_model": "gpt-4o",
			"code_chat_models": {"gpt-4o": {"n_ctx": 128000, "supports_tools": true, "supports_agent": true}}
		}`)
	}))

	caps, err := c.Caps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", caps.CodeChatDefaultModel)
	require.Contains(t, caps.CodeChatModels, "gpt-4o")
	assert.True(t, caps.CodeChatModels["gpt-4o"].SupportsAgent)
}

func TestTools(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"type":"function","function":{"name":"cat","description":"read files","agentic":false,"parameters":{"type":"object"}}},
			{"type":"function","function":{"name":"patch","description":"edit","agentic":true}}
		]`)
	}))

	tools, err := c.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "cat", tools[0].Function.Name)
	assert.True(t, tools[1].Function.Agentic)
}

func TestCheckToolConfirmation(t *testing.T) {
	received := make(chan []byte, 1)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, confirmationPath, r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		received <- data
		_, _ = io.WriteString(w, `{"pause":true,"pause_reasons":[{"type":"confirmation","command":"shell rm","rule":"rm*","tool_call_id":"call_1"}]}`)
	}))

	calls := []models.ToolCall{{ID: "call_1", Function: models.ToolCallFunction{Name: "shell", Arguments: `{"cmd":"rm x"}`}}}
	msgs := []models.ChatMessage{models.UserMessage("clean"), {Role: models.RoleAssistant, ToolCalls: calls}}

	res, err := c.CheckToolConfirmation(context.Background(), calls, msgs)
	require.NoError(t, err)
	assert.True(t, res.Pause)
	require.Len(t, res.PauseReasons, 1)
	assert.Equal(t, models.PauseConfirmation, res.PauseReasons[0].Type)
	assert.Equal(t, "call_1", res.PauseReasons[0].ToolCallID)

	var body struct {
		ToolCalls []models.ToolCall `json:"tool_calls"`
		Messages  []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(<-received, &body))
	assert.Len(t, body.ToolCalls, 1)
	assert.Len(t, body.Messages, 2)
}

func TestStreamChatBody(t *testing.T) {
	received := make(chan []byte, 1)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		received <- data
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n")
	}))

	resp, err := c.StreamChat(context.Background(), ChatRequest{
		ChatID:   "chat-1",
		Messages: []models.ChatMessage{models.UserMessage("hello")},
		Model:    "gpt-4o",
		ToolUse:  models.ToolUseExplore,
		Tools: []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{Name: "cat"}),
		},
	})
	require.NoError(t, err)

	var got []stream.Response
	_, err = stream.NewConsumer(nil).Consume(context.Background(), resp, func(r stream.Response) { got = append(got, r) }, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	var body map[string]any
	require.NoError(t, json.Unmarshal(<-received, &body))
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, "chat-1", body["chat_id"])
	assert.Equal(t, "explore", body["tool_use"])

	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, "cat", tool["function"].(map[string]any)["name"])
}

func TestStreamChatHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"model not found"}`)
	}))

	_, err := c.StreamChat(context.Background(), ChatRequest{ChatID: "x", Model: "nope"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "model not found", httpErr.Body)
	assert.False(t, IsUnavailable(err))
}

func TestRetryOnBusy(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the body must be replayed on every attempt
		data, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"@file","cursor":5,"top_n":3}`, string(data))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"completions":["@file main.go"],"replace":[0,5],"is_cmd_executable":false}`)
	}))

	res, err := c.AtCommandCompletion(context.Background(), "@file", 5, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"@file main.go"}, res.Completions)
	assert.Equal(t, [2]int{0, 5}, res.Replace)
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimit))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDecodeFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))

	_, err := c.Caps(context.Background())
	var decodeErr *stream.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, capsPath, decodeErr.Reason)
}

func TestAtCommandPreview(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"messages":[{"role":"context_file","content":"[{\"file_name\":\"a.go\",\"file_content\":\"package a\",\"line1\":1,\"line2\":1}]"}]}`)
	}))

	msgs, err := c.AtCommandPreview(context.Background(), "@file a.go")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ContextFiles, 1)
	assert.Equal(t, "a.go", msgs[0].ContextFiles[0].FileName)
}

func TestUnavailableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, fastRetry(), nil)
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}
