// Package sender drives chat requests: it prepares a submission, streams the
// answer into the store and keeps agent runs going while the model asks for
// tools.
package sender

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"refactchat/internal/chat"
	"refactchat/internal/lsp"
	"refactchat/internal/models"
	"refactchat/internal/stream"
	"refactchat/internal/tools"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrChatInFlight  = errors.New("a request for this chat is already running")
	ErrNotPaused     = errors.New("chat is not waiting for tool confirmation")
	ErrEmptyQuestion = errors.New("question is empty")
)

// MaxToolIterations caps automatic follow-up requests within one submission.
const MaxToolIterations = 15

const rejectedToolResult = "The user rejected this tool call."

// Backend is the part of the LSP client the sender needs.
type Backend interface {
	Tools(ctx context.Context) ([]models.ToolCommand, error)
	CheckToolConfirmation(ctx context.Context, toolCalls []models.ToolCall, messages []models.ChatMessage) (lsp.ConfirmationResult, error)
	StreamChat(ctx context.Context, req lsp.ChatRequest) (*http.Response, error)
}

type Options struct {
	MaxNewTokens      int
	MaxToolIterations int
}

type Sender struct {
	store    *chat.Store
	backend  Backend
	consumer *stream.Consumer
	logger   *zap.Logger
	opts     Options

	mu       sync.Mutex
	inflight map[string]*task
	wg       sync.WaitGroup
}

// task is one request in flight. mu orders chunk delivery against Abort.
type task struct {
	cancel  context.CancelFunc
	mu      sync.Mutex
	aborted bool
}

func New(store *chat.Store, backend Backend, opts Options, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = MaxToolIterations
	}
	return &Sender{
		store:    store,
		backend:  backend,
		consumer: stream.NewConsumer(logger),
		logger:   logger,
		opts:     opts,
		inflight: make(map[string]*task),
	}
}

type submission struct {
	chatID    string
	messages  []models.ChatMessage
	isRetry   bool
	iteration int
}

// Submit appends question to the active thread and sends it. Request
// failures surface as ChatError state; only misuse is returned.
func (s *Sender) Submit(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}

	st := s.store.State()
	messages := models.CloneMessages(st.Thread.Messages)
	if st.SystemPrompt != "" && (len(messages) == 0 || messages[0].Role != models.RoleSystem) {
		messages = append([]models.ChatMessage{models.SystemMessage(st.SystemPrompt)}, messages...)
	}
	messages = append(messages, models.UserMessage(question))

	return s.send(ctx, submission{chatID: st.Thread.ID, messages: messages})
}

// Retry resends messages, usually the thread cut at an earlier user message.
func (s *Sender) Retry(ctx context.Context, messages []models.ChatMessage) error {
	st := s.store.State()
	return s.send(ctx, submission{
		chatID:   st.Thread.ID,
		messages: models.CloneMessages(messages),
		isRetry:  true,
	})
}

// ConfirmToolUsage lets the paused tool calls run.
func (s *Sender) ConfirmToolUsage(ctx context.Context) error {
	st := s.store.State()
	if !st.Confirmation.Pause {
		return ErrNotPaused
	}
	s.store.Dispatch(chat.ClearPauseReasons{WasInteracted: true})
	return s.send(ctx, submission{chatID: st.Thread.ID, messages: models.CloneMessages(st.Thread.Messages)})
}

// RejectToolUsage answers every paused call with a rejection and lets the
// model carry on without them.
func (s *Sender) RejectToolUsage(ctx context.Context) error {
	st := s.store.State()
	if !st.Confirmation.Pause {
		return ErrNotPaused
	}
	messages := models.CloneMessages(st.Thread.Messages)
	for _, id := range st.Confirmation.PausedToolCallIDs() {
		messages = append(messages, models.ToolMessage(id, rejectedToolResult))
	}
	s.store.Dispatch(chat.ClearPauseReasons{WasInteracted: true})
	return s.send(ctx, submission{chatID: st.Thread.ID, messages: messages})
}

// Abort stops the request for chatID and any follow-up it hands off to. Once
// it returns no further chunk of that request reaches the store. Listeners
// must not call it while a chunk is being dispatched.
func (s *Sender) Abort(chatID string) bool {
	aborted := false
	for {
		s.mu.Lock()
		t, ok := s.inflight[chatID]
		s.mu.Unlock()
		if !ok {
			break
		}

		t.mu.Lock()
		already := t.aborted
		t.aborted = true
		t.cancel()
		t.mu.Unlock()
		if already {
			break
		}
		aborted = true
	}
	if aborted {
		s.logger.Info("chat aborted", zap.String("chat_id", chatID))
	}
	return aborted
}

// InFlight reports whether chatID has a request running.
func (s *Sender) InFlight(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[chatID]
	return ok
}

// Wait blocks until every request, including automatic follow-ups, is done.
func (s *Sender) Wait() {
	s.wg.Wait()
}

func (s *Sender) register(ctx context.Context, chatID string) (context.Context, *task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[chatID]; busy {
		return nil, nil, ErrChatInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel}
	s.inflight[chatID] = t
	return ctx, t, nil
}

func (s *Sender) release(chatID string, t *task) {
	s.mu.Lock()
	if s.inflight[chatID] == t {
		delete(s.inflight, chatID)
	}
	s.mu.Unlock()
	t.cancel()
}

func (s *Sender) send(ctx context.Context, sub submission) error {
	taskCtx, t, err := s.register(ctx, sub.chatID)
	if err != nil {
		return err
	}
	s.start(ctx, taskCtx, t, sub)
	return nil
}

func (s *Sender) start(parent, ctx context.Context, t *task, sub submission) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(parent, ctx, t, sub)
	}()
}

// handOff replaces t with a task for next. The chat stays registered in
// between, so an Abort that lands after the previous request finished still
// stops the follow-up.
func (s *Sender) handOff(parent context.Context, t *task, next submission) bool {
	s.mu.Lock()
	t.mu.Lock()
	aborted := t.aborted
	t.mu.Unlock()
	t.cancel()

	if s.inflight[next.chatID] != t {
		s.mu.Unlock()
		return false
	}
	if aborted {
		delete(s.inflight, next.chatID)
		s.mu.Unlock()
		s.store.Dispatch(chat.SetPreventSend{ID: next.chatID})
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	nt := &task{cancel: cancel}
	s.inflight[next.chatID] = nt
	s.mu.Unlock()

	s.start(parent, ctx, nt, next)
	return true
}

// prepared is what the request needs once tools are known.
type prepared struct {
	tools  []models.ToolCommand
	paused []models.PauseReason
}

// prepare fetches the tool list and, for pending tool calls, asks whether the
// user must confirm them first. Both requests run concurrently.
func (s *Sender) prepare(ctx context.Context, st chat.State, sub submission) (prepared, error) {
	var p prepared
	mode := st.EffectiveToolUse()

	last := lastMessage(sub.messages)
	needCheck := last.HasToolCalls() && !sub.isRetry && !st.Confirmation.WasInteracted

	g, gctx := errgroup.WithContext(ctx)
	if mode != models.ToolUseQuick {
		g.Go(func() error {
			all, err := s.backend.Tools(gctx)
			if err != nil {
				return err
			}
			p.tools = tools.FilterForMode(all, mode)
			return nil
		})
	}
	if needCheck {
		g.Go(func() error {
			res, err := s.backend.CheckToolConfirmation(gctx, last.ToolCalls, sub.messages)
			if err != nil {
				return err
			}
			if res.Pause {
				p.paused = res.PauseReasons
			}
			return nil
		})
	}
	return p, g.Wait()
}

// run owns one request. A follow-up is registered before this goroutine
// exits, so Wait never observes the gap between the two.
func (s *Sender) run(parent, ctx context.Context, t *task, sub submission) {
	log := s.logger.With(zap.String("chat_id", sub.chatID), zap.Int("iteration", sub.iteration))
	next, ok := s.request(ctx, t, sub, log)
	if !ok || parent.Err() != nil {
		s.release(sub.chatID, t)
		return
	}
	if !s.handOff(parent, t, next) {
		log.Info("auto-continue stopped")
	}
}

// request performs one round trip and reports the follow-up to send, if any.
func (s *Sender) request(ctx context.Context, t *task, sub submission, log *zap.Logger) (submission, bool) {
	id := sub.chatID
	if ctx.Err() != nil {
		s.store.Dispatch(chat.SetPreventSend{ID: id})
		return submission{}, false
	}
	st := s.store.State()

	// Waiting starts before prepare: a thread left while tools are fetched
	// must be cached like one left mid-stream.
	s.store.Dispatch(chat.BackUpMessages{ID: id, Messages: sub.messages})
	s.store.Dispatch(chat.ChatAskedQuestion{ID: id})

	p, err := s.prepare(ctx, st, sub)
	if err != nil {
		s.finish(ctx, t, id, err, log)
		return submission{}, false
	}
	if len(p.paused) > 0 {
		log.Info("tool calls need confirmation", zap.Int("reasons", len(p.paused)))
		s.store.Dispatch(chat.SetPauseReasons{ID: id, Reasons: p.paused})
		s.store.Dispatch(chat.DoneStreaming{ID: id})
		return submission{}, false
	}

	resp, err := s.backend.StreamChat(ctx, lsp.ChatRequest{
		ChatID:    id,
		Messages:  sub.messages,
		Model:     st.Thread.Model,
		Tools:     tools.Definitions(p.tools),
		MaxTokens: s.opts.MaxNewTokens,
		ToolUse:   st.EffectiveToolUse(),
	})
	if err != nil {
		s.finish(ctx, t, id, err, log)
		return submission{}, false
	}

	stats, err := s.consumer.Consume(ctx, resp, func(r stream.Response) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.aborted {
			return
		}
		s.store.Dispatch(chat.ChatResponse{ID: id, Response: r})
	}, nil)
	log.Debug("chat stream finished",
		zap.Int("frames", stats.Frames),
		zap.Int("dropped", stats.Dropped),
		zap.Duration("first_chunk", stats.FirstChunk))

	if err != nil {
		s.finish(ctx, t, id, err, log)
		return submission{}, false
	}
	s.finish(ctx, t, id, nil, log)

	return s.followUp(sub, log)
}

// finish turns the outcome of a request into state. DoneStreaming is always
// the last action.
func (s *Sender) finish(ctx context.Context, t *task, id string, err error, log *zap.Logger) {
	t.mu.Lock()
	aborted := t.aborted
	t.mu.Unlock()

	switch {
	case aborted || errors.Is(err, stream.ErrAborted) || (err != nil && ctx.Err() != nil):
		s.store.Dispatch(chat.SetPreventSend{ID: id})
		s.store.Dispatch(chat.FixBrokenToolMessages{ID: id})
	case err != nil:
		log.Error("chat request failed", zap.Error(err))
		s.store.Dispatch(chat.ChatError{ID: id, Message: errorMessage(err)})
	default:
		s.store.Dispatch(chat.ResetConfirmationInteracted{ID: id})
		s.saveTitle(id)
	}
	s.store.Dispatch(chat.DoneStreaming{ID: id})
}

// followUp decides whether the model is waiting for tool results that the
// server will produce on the next request.
func (s *Sender) followUp(sub submission, log *zap.Logger) (submission, bool) {
	st := s.store.State()
	if st.Thread.ID != sub.chatID {
		return submission{}, false
	}
	messages := st.Thread.Messages
	switch {
	case !lastMessage(messages).HasToolCalls():
		return submission{}, false
	case st.PreventSend || st.Confirmation.Pause:
		return submission{}, false
	case chat.CheckForToolLoop(messages):
		log.Warn("tool loop detected, not continuing")
		return submission{}, false
	case sub.iteration+1 >= s.opts.MaxToolIterations:
		log.Warn("tool iteration limit reached", zap.Int("limit", s.opts.MaxToolIterations))
		return submission{}, false
	}
	return submission{
		chatID:    sub.chatID,
		messages:  models.CloneMessages(messages),
		iteration: sub.iteration + 1,
	}, true
}

func (s *Sender) saveTitle(id string) {
	st := s.store.State()
	thread, ok := st.Cache[id]
	if !ok {
		if st.Thread.ID != id {
			return
		}
		thread = st.Thread
	}
	if thread.Title != "" {
		return
	}
	title := thread.LastUserPrompt()
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if r := []rune(title); len(r) > 60 {
		title = string(r[:57]) + "..."
	}
	if title != "" {
		s.store.Dispatch(chat.SaveTitle{ID: id, Title: title})
	}
}

func lastMessage(messages []models.ChatMessage) models.ChatMessage {
	if len(messages) == 0 {
		return models.ChatMessage{}
	}
	return messages[len(messages)-1]
}

func errorMessage(err error) string {
	var serverErr *stream.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Detail
	}
	var httpErr *lsp.HTTPError
	if errors.As(err, &httpErr) && httpErr.Body != "" {
		return httpErr.Body
	}
	if lsp.IsUnavailable(err) {
		return "refact-lsp is not reachable: " + err.Error()
	}
	return err.Error()
}
