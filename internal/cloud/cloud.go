// Package cloud covers the few smallcloud.ai calls the chat makes directly:
// browser login and account info.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://www.smallcloud.ai/v1"
	DefaultPollInterval = 5 * time.Second
)

var ErrNotLoggedIn = errors.New("login ticket not confirmed yet")

// RetcodeError is a response whose retcode is not "OK".
type RetcodeError struct {
	Retcode   string
	HumanText string
}

func (e *RetcodeError) Error() string {
	if e.HumanText != "" {
		return fmt.Sprintf("cloud: %s: %s", e.Retcode, e.HumanText)
	}
	return "cloud: " + e.Retcode
}

type Client struct {
	BaseURL      string
	PollInterval time.Duration

	http   *http.Client
	logger *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		PollInterval: DefaultPollInterval,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

type UserInfo struct {
	Retcode         string  `json:"retcode"`
	HumanReadable   string  `json:"human_readable_message"`
	Account         string  `json:"account"`
	Inference       string  `json:"inference"`
	MeteringBalance float64 `json:"metering_balance"`
}

type ticketResponse struct {
	Retcode       string `json:"retcode"`
	HumanReadable string `json:"human_readable_message"`
	SecretKey     string `json:"secret_key"`
}

// LoginURL is the page the user opens to confirm ticket.
func LoginURL(ticket string) string {
	return "https://refact.smallcloud.ai/authentication?token=" + ticket + "&utm_source=plugin&utm_medium=cli&utm_campaign=login"
}

// PollLogin waits for the user to finish the browser login for ticket and
// returns the account's API key.
func (c *Client) PollLogin(ctx context.Context, ticket string) (string, error) {
	limiter := rate.NewLimiter(rate.Every(c.PollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait fails early when the deadline falls before the next tick.
			<-ctx.Done()
			return "", ctx.Err()
		}

		key, err := c.recallTicket(ctx, ticket)
		switch {
		case err == nil:
			return key, nil
		case errors.Is(err, ErrNotLoggedIn):
			c.logger.Debug("login not confirmed yet")
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			// Transient network failures keep polling; the ticket stays valid.
			c.logger.Warn("login poll failed", zap.Error(err))
		}
	}
}

func (c *Client) recallTicket(ctx context.Context, ticket string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/streamlined-login-recall-ticket", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "codify-"+ticket)

	var res ticketResponse
	if err := c.do(req, &res); err != nil {
		return "", err
	}
	if res.Retcode != "OK" || res.SecretKey == "" {
		return "", ErrNotLoggedIn
	}
	return res.SecretKey, nil
}

func (c *Client) UserInfo(ctx context.Context, apiKey string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/login", nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	var info UserInfo
	if err := c.do(req, &info); err != nil {
		return UserInfo{}, err
	}
	if info.Retcode != "OK" {
		return UserInfo{}, &RetcodeError{Retcode: info.Retcode, HumanText: info.HumanReadable}
	}
	return info, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cloud: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
