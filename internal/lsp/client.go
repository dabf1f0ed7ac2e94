// Package lsp talks to the local refact-lsp HTTP server.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"refactchat/internal/models"
	"refactchat/internal/stream"

	"go.uber.org/zap"
)

const (
	capsPath         = "/v1/caps"
	toolsPath        = "/v1/tools"
	confirmationPath = "/v1/tools-check-if-confirmation-needed"
	chatPath         = "/v1/chat"
	completionPath   = "/v1/at-command-completion"
	previewPath      = "/v1/at-command-preview"
	pingPath         = "/v1/ping"
)

type Client struct {
	baseURL string
	http    *retryingClient
	logger  *zap.Logger
}

// New returns a client for the server at baseURL, e.g. http://127.0.0.1:8001.
func New(baseURL string, retry RetryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newRetryingClient(retry, logger),
		logger:  logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Caps(ctx context.Context) (Caps, error) {
	var caps Caps
	err := c.getJSON(ctx, capsPath, &caps)
	return caps, err
}

func (c *Client) Tools(ctx context.Context) ([]models.ToolCommand, error) {
	var tools []models.ToolCommand
	if err := c.getJSON(ctx, toolsPath, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// CheckToolConfirmation asks whether toolCalls may run without the user.
func (c *Client) CheckToolConfirmation(ctx context.Context, toolCalls []models.ToolCall, messages []models.ChatMessage) (ConfirmationResult, error) {
	var res ConfirmationResult
	err := c.postJSON(ctx, confirmationPath, confirmationBody{ToolCalls: toolCalls, Messages: messages}, &res)
	return res, err
}

// StreamChat starts a chat completion and returns the open SSE response. The
// caller owns the body.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (*http.Response, error) {
	messages := req.Messages
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	body, err := json.Marshal(chatBody{
		Messages:  messages,
		Model:     req.Model,
		Stream:    true,
		Tools:     req.Tools,
		MaxTokens: req.MaxTokens,
		ToolUse:   req.ToolUse,
		ChatID:    req.ChatID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := newRequestWithBody(ctx, http.MethodPost, c.baseURL+chatPath, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("starting chat stream",
		zap.String("chat_id", req.ChatID),
		zap.String("model", req.Model),
		zap.Int("messages", len(messages)),
		zap.Int("tools", len(req.Tools)))

	resp, err := c.http.do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) AtCommandCompletion(ctx context.Context, query string, cursor, topN int) (CompletionResult, error) {
	var res CompletionResult
	err := c.postJSON(ctx, completionPath, completionBody{Query: query, Cursor: cursor, TopN: topN}, &res)
	return res, err
}

// AtCommandPreview returns the context messages an @-command would attach.
func (c *Client) AtCommandPreview(ctx context.Context, query string) ([]models.ChatMessage, error) {
	var res previewResult
	if err := c.postJSON(ctx, previewPath, previewBody{Query: query}, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pingPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := newRequestWithBody(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(ctx, req, out)
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.http.do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", req.URL.Path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &stream.DecodeError{Data: data, Reason: req.URL.Path, Err: err}
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	body := strings.TrimSpace(string(data))

	// The server wraps most failures as {"detail": "..."}.
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
		body = detail.Detail
	}
	return &HTTPError{Status: resp.StatusCode, Body: body}
}

// IsUnavailable reports an error caused by the server not answering at all.
func IsUnavailable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	var decodeErr *stream.DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return err != nil && !errors.Is(err, context.Canceled)
}
