package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"refactchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []models.ChatThread
	err   error
}

func (f *fakeSaver) SaveThread(_ context.Context, thread models.ChatThread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, thread)
	return nil
}

func TestStoreNotifiesInSubscriptionOrder(t *testing.T) {
	store := NewStore(newTestState(), zaptest.NewLogger(t))

	var order []string
	store.Subscribe(func(Action, State) { order = append(order, "first") })
	unsub := store.Subscribe(func(Action, State) { order = append(order, "second") })
	store.Subscribe(func(Action, State) { order = append(order, "third") })

	store.Dispatch(ClearError{})
	assert.Equal(t, []string{"first", "second", "third"}, order)

	unsub()
	order = nil
	store.Dispatch(ClearError{})
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestStoreListenerSeesReducedState(t *testing.T) {
	store := NewStore(newTestState(), nil)

	var seen State
	store.Subscribe(func(_ Action, s State) { seen = s })
	next := store.Dispatch(ChatAskedQuestion{ID: "active"})

	assert.True(t, seen.Streaming)
	assert.Equal(t, next.Streaming, store.State().Streaming)
}

func TestStoreListenerMayDispatch(t *testing.T) {
	store := NewStore(newTestState(), nil)
	store.Subscribe(func(a Action, _ State) {
		if _, ok := a.(ChatError); ok {
			store.Dispatch(ClearError{})
		}
	})
	store.Dispatch(ChatError{ID: "active", Message: "x"})
	assert.Empty(t, store.State().Error)
}

func TestStoreConcurrentDispatch(t *testing.T) {
	store := NewStore(newTestState(), nil)
	store.Dispatch(BackUpMessages{ID: "active", Messages: []models.ChatMessage{models.UserMessage("q")}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Dispatch(ChatResponse{ID: "active", Response: delta("a")})
		}()
	}
	wg.Wait()

	msgs := store.State().Thread.Messages
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[1].Content, 50)
}

func TestPersistCompletedSavesActiveThread(t *testing.T) {
	store := NewStore(newTestState(), nil)
	saver := &fakeSaver{}
	defer PersistCompleted(store, saver, zaptest.NewLogger(t))()

	store.Dispatch(BackUpMessages{ID: "active", Messages: []models.ChatMessage{models.UserMessage("q")}})
	store.Dispatch(ChatAskedQuestion{ID: "active"})
	store.Dispatch(ChatResponse{ID: "active", Response: delta("a")})
	store.Dispatch(DoneStreaming{ID: "active"})

	require.Len(t, saver.saved, 1)
	assert.Equal(t, "active", saver.saved[0].ID)
	assert.Len(t, saver.saved[0].Messages, 2)
	assert.False(t, saver.saved[0].UpdatedAt.IsZero())
}

func TestPersistCompletedEvictsBackgroundThread(t *testing.T) {
	store := NewStore(newTestState(), nil)
	saver := &fakeSaver{}
	defer PersistCompleted(store, saver, nil)()

	store.Dispatch(BackUpMessages{ID: "active", Messages: []models.ChatMessage{models.UserMessage("q")}})
	store.Dispatch(ChatAskedQuestion{ID: "active"})
	store.Dispatch(NewChat{ID: "fresh"})
	require.True(t, store.State().IsCached("active"))

	store.Dispatch(ChatResponse{ID: "active", Response: delta("a")})
	store.Dispatch(DoneStreaming{ID: "active"})

	require.Len(t, saver.saved, 1)
	assert.Equal(t, "active", saver.saved[0].ID)
	assert.False(t, store.State().IsCached("active"))
}

func TestPersistCompletedSkipsEmptyAndKeepsCacheOnFailure(t *testing.T) {
	store := NewStore(newTestState(), nil)
	saver := &fakeSaver{err: errors.New("disk full")}
	defer PersistCompleted(store, saver, nil)()

	store.Dispatch(DoneStreaming{ID: "active"})
	assert.Empty(t, saver.saved)

	store.Dispatch(BackUpMessages{ID: "active", Messages: []models.ChatMessage{models.UserMessage("q")}})
	store.Dispatch(ChatAskedQuestion{ID: "active"})
	store.Dispatch(NewChat{ID: "fresh"})
	store.Dispatch(DoneStreaming{ID: "active"})
	assert.True(t, store.State().IsCached("active"))
}
