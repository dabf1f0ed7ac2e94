package cloud

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL, zaptest.NewLogger(t))
	c.PollInterval = time.Millisecond
	return c
}

func TestPollLoginUntilConfirmed(t *testing.T) {
	var polls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/streamlined-login-recall-ticket", r.URL.Path)
		assert.Equal(t, "codify-ticket42", r.Header.Get("Authorization"))
		switch polls.Add(1) {
		case 1:
			_, _ = io.WriteString(w, `{"retcode":"FAILED","human_readable_message":"not yet"}`)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = io.WriteString(w, `{"retcode":"OK","secret_key":"sk-123"}`)
		}
	}))

	key, err := c.PollLogin(context.Background(), "ticket42")
	require.NoError(t, err)
	assert.Equal(t, "sk-123", key)
	assert.Equal(t, int32(3), polls.Load())
}

func TestPollLoginStopsOnCancel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"retcode":"FAILED"}`)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.PollLogin(ctx, "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUserInfo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			_, _ = io.WriteString(w, `{"retcode":"FAILED","human_readable_message":"bad key"}`)
			return
		}
		_, _ = io.WriteString(w, `{"retcode":"OK","account":"dev@example.com","inference":"PRO","metering_balance":1200}`)
	}))

	info, err := c.UserInfo(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", info.Account)
	assert.Equal(t, 1200.0, info.MeteringBalance)

	_, err = c.UserInfo(context.Background(), "bad")
	var rcErr *RetcodeError
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, "bad key", rcErr.HumanText)
}
