package chat

import (
	"context"
	"slices"
	"sync"
	"time"

	"refactchat/internal/models"

	"go.uber.org/zap"
)

// Listener observes every dispatched action together with the state it
// produced.
type Listener func(action Action, state State)

// Store owns the chat State. All changes go through Dispatch, which applies
// actions one at a time in the order they arrive.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	logger    *zap.Logger
}

func NewStore(initial State, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if initial.Cache == nil {
		initial.Cache = map[string]models.ChatThread{}
	}
	return &Store{
		state:     initial,
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// State returns the current state. Callers must treat it as read-only.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces action into the state and then notifies listeners outside
// the lock, so a listener may dispatch again.
func (s *Store) Dispatch(action Action) State {
	s.mu.Lock()
	next := Reduce(s.state, action)
	s.state = next
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	if _, ok := action.(ChatResponse); !ok {
		s.logger.Debug("dispatch",
			zap.String("action", action.Name()),
			zap.String("chat_id", next.Thread.ID),
			zap.Bool("streaming", next.Streaming))
	}

	for _, l := range listeners {
		l(action, next)
	}
	return next
}

// Subscribe registers l and returns a func that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ThreadSaver persists finished threads.
type ThreadSaver interface {
	SaveThread(ctx context.Context, thread models.ChatThread) error
}

// PersistCompleted saves a thread whenever its stream finishes. A finished
// thread that was running in the background is dropped from the cache once it
// is saved.
func PersistCompleted(store *Store, saver ThreadSaver, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	return store.Subscribe(func(action Action, state State) {
		done, ok := action.(DoneStreaming)
		if !ok {
			return
		}

		thread, cached := state.Cache[done.ID]
		if !cached {
			if done.ID != state.Thread.ID {
				return
			}
			thread = state.Thread
		}
		if len(thread.Messages) == 0 {
			return
		}
		thread.UpdatedAt = time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := saver.SaveThread(ctx, thread); err != nil {
			logger.Error("failed to save chat", zap.String("chat_id", thread.ID), zap.Error(err))
			return
		}
		if cached {
			store.Dispatch(RemoveChatFromCache{ID: done.ID})
		}
	})
}
