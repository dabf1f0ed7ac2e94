package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3/packages/ssestream"
	"go.uber.org/zap"
)

// ErrAborted is returned by Consume when its context ended mid-stream.
var ErrAborted = errors.New("stream aborted")

var doneMarker = []byte("[DONE]")

// ServerError is an error frame sent by the server inside a stream.
type ServerError struct {
	Detail string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Detail
}

// Stats describes one consumed stream.
type Stats struct {
	Frames     int
	Delivered  int
	Dropped    int
	FirstChunk time.Duration
}

// Consumer turns an SSE response body into decoded chunks.
type Consumer struct {
	logger *zap.Logger
}

func NewConsumer(logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{logger: logger}
}

// Consume reads res until `[DONE]`, end of body, an error frame, or ctx ends.
// onChunk runs synchronously for every decoded frame in arrival order. Frames
// that fail to decode are dropped and counted, never fatal. When ctx ends
// onAbort runs once, nothing more is delivered and ErrAborted is returned.
func (c *Consumer) Consume(ctx context.Context, res *http.Response, onChunk func(Response), onAbort func()) (Stats, error) {
	var stats Stats
	start := time.Now()

	dec := ssestream.NewDecoder(res)
	if dec == nil {
		return stats, errors.New("response has no body")
	}
	defer dec.Close()

	// Unblock a pending read when the caller aborts.
	stop := context.AfterFunc(ctx, func() { _ = res.Body.Close() })
	defer stop()

	aborted := func() (Stats, error) {
		if onAbort != nil {
			onAbort()
		}
		return stats, fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}

	for dec.Next() {
		if ctx.Err() != nil {
			return aborted()
		}

		data := bytes.TrimSpace(dec.Event().Data)
		if len(data) == 0 {
			continue
		}
		stats.Frames++
		if bytes.Equal(data, doneMarker) {
			return stats, nil
		}

		resp, err := Decode(data)
		if err != nil {
			stats.Dropped++
			c.logger.Warn("dropping malformed stream frame", zap.Error(err))
			continue
		}
		if e, ok := resp.(ErrorResponse); ok {
			return stats, &ServerError{Detail: e.Detail}
		}

		if stats.Delivered == 0 {
			stats.FirstChunk = time.Since(start)
		}
		stats.Delivered++
		if onChunk != nil {
			onChunk(resp)
		}
	}

	if ctx.Err() != nil {
		return aborted()
	}
	if err := dec.Err(); err != nil {
		return stats, fmt.Errorf("read stream: %w", err)
	}
	return stats, nil
}
