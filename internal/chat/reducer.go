package chat

import (
	"encoding/json"
	"maps"
	"time"

	"refactchat/internal/models"
)

// State is the whole chat state. Values are never mutated in place: Reduce
// returns a new State and only replaces the slices and maps it changes, so a
// State handed out by the Store stays valid.
type State struct {
	Streaming          bool
	Thread             models.ChatThread
	Error              string
	PreventSend        bool
	WaitingForResponse bool
	Cache              map[string]models.ChatThread
	ToolUse            models.ToolUse
	SendImmediately    bool
	SystemPrompt       string
	Confirmation       Confirmation
}

// NewState returns an idle state holding an empty thread.
func NewState(toolUse models.ToolUse, model string) State {
	nc := NewChatAction()
	return State{
		Thread:  emptyThread(nc, model),
		Cache:   map[string]models.ChatThread{},
		ToolUse: toolUse,
	}
}

func emptyThread(a NewChat, model string) models.ChatThread {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return models.ChatThread{
		ID:        a.ID,
		Messages:  []models.ChatMessage{},
		Model:     model,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// IsCached reports whether id is a backgrounded thread.
func (s State) IsCached(id string) bool {
	_, ok := s.Cache[id]
	return ok
}

// EffectiveToolUse is the thread's mode, falling back to the state default.
func (s State) EffectiveToolUse() models.ToolUse {
	if s.Thread.ToolUse != nil {
		return *s.Thread.ToolUse
	}
	return s.ToolUse
}

func (s State) withCache(id string, t models.ChatThread) State {
	next := maps.Clone(s.Cache)
	if next == nil {
		next = map[string]models.ChatThread{}
	}
	next[id] = t
	s.Cache = next
	return s
}

func (s State) withoutCache(id string) State {
	if _, ok := s.Cache[id]; !ok {
		return s
	}
	next := maps.Clone(s.Cache)
	delete(next, id)
	s.Cache = next
	return s
}

// Reduce applies one action and returns the next state.
func Reduce(state State, action Action) State {
	if c, ok := reduceConfirmation(state.Confirmation, state.Thread.ID, action); ok {
		state.Confirmation = c
		return state
	}

	switch a := action.(type) {
	case NewChat:
		next := State{
			Thread:       emptyThread(a, state.Thread.Model),
			Cache:        state.Cache,
			ToolUse:      state.ToolUse,
			SystemPrompt: state.SystemPrompt,
		}
		if state.Thread.ToolUse != nil {
			tu := *state.Thread.ToolUse
			next.Thread.ToolUse = &tu
		}
		if state.Streaming || state.WaitingForResponse {
			cached := state.Thread
			cached.Read = false
			next = next.withCache(cached.ID, cached)
		}
		if next.Cache == nil {
			next.Cache = map[string]models.ChatThread{}
		}
		return next

	case BackUpMessages:
		if a.ID != state.Thread.ID {
			return state
		}
		state.Thread.Messages = models.CloneMessages(a.Messages)
		return state

	case ChatAskedQuestion:
		if a.ID != state.Thread.ID {
			return state
		}
		state.WaitingForResponse = true
		state.Streaming = true
		state.PreventSend = false
		state.Error = ""
		return state

	case ChatResponse:
		if cached, ok := state.Cache[a.ID]; ok {
			cached.Messages = FormatChatResponse(cached.Messages, a.Response)
			return state.withCache(a.ID, cached)
		}
		if a.ID != state.Thread.ID {
			return state
		}
		state.Thread.Messages = FormatChatResponse(state.Thread.Messages, a.Response)
		state.Streaming = true
		state.WaitingForResponse = false
		return state

	case DoneStreaming:
		if a.ID != state.Thread.ID {
			return state
		}
		state.Streaming = false
		state.WaitingForResponse = false
		state.Thread.Read = true
		return state

	case ChatError:
		if a.ID != state.Thread.ID {
			return state
		}
		state.Streaming = false
		state.WaitingForResponse = false
		state.PreventSend = true
		state.Error = a.Message
		return state

	case RestoreChat:
		if a.Thread.ID == state.Thread.ID {
			return state
		}
		restored := a.Thread.Clone()
		cached, wasCached := state.Cache[a.Thread.ID]
		if wasCached {
			restored = cached
		}

		if state.Streaming {
			leaving := state.Thread
			leaving.Read = false
			state = state.withCache(leaving.ID, leaving)
		}
		if wasCached {
			state = state.withoutCache(a.Thread.ID)
			state.Streaming = true
		} else {
			state.Streaming = false
		}
		if restored.ToolUse == nil {
			tu := state.ToolUse
			restored.ToolUse = &tu
		}
		state.Thread = restored
		state.Error = ""
		state.WaitingForResponse = false
		state.PreventSend = true
		state.Confirmation = Confirmation{}
		return state

	case RemoveChatFromCache:
		return state.withoutCache(a.ID)

	case SetPreventSend:
		if a.ID != state.Thread.ID {
			return state
		}
		state.PreventSend = true
		return state

	case EnableSend:
		if a.ID != state.Thread.ID {
			return state
		}
		state.PreventSend = false
		return state

	case SetChatModel:
		state.Thread.Model = a.Model
		return state

	case SetToolUse:
		state.ToolUse = a.ToolUse
		tu := a.ToolUse
		state.Thread.ToolUse = &tu
		return state

	case SetSystemPrompt:
		state.SystemPrompt = a.Prompt
		return state

	case SaveTitle:
		if cached, ok := state.Cache[a.ID]; ok {
			cached.Title = a.Title
			cached.IsTitleGenerated = true
			return state.withCache(a.ID, cached)
		}
		if a.ID != state.Thread.ID {
			return state
		}
		state.Thread.Title = a.Title
		state.Thread.IsTitleGenerated = true
		return state

	case ClearError:
		state.Error = ""
		return state

	case FixBrokenToolMessages:
		if a.ID != state.Thread.ID {
			return state
		}
		state.Thread.Messages = fixBrokenToolCalls(state.Thread.Messages)
		return state
	}

	return state
}

func fixBrokenToolCalls(messages []models.ChatMessage) []models.ChatMessage {
	last := len(messages) - 1
	if last < 0 || !messages[last].HasToolCalls() {
		return messages
	}

	var kept []models.ToolCall
	for _, tc := range messages[last].ToolCalls {
		if tc.Function.Name == "" || !json.Valid([]byte(tc.Function.Arguments)) {
			continue
		}
		kept = append(kept, tc)
	}
	if len(kept) == len(messages[last].ToolCalls) {
		return messages
	}

	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	m := out[last].Clone()
	m.ToolCalls = kept
	out[last] = m
	return out
}
