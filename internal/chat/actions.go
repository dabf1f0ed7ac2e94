package chat

import (
	"time"

	"refactchat/internal/models"
	"refactchat/internal/stream"

	"github.com/google/uuid"
)

// Action is an event applied to State by Reduce.
type Action interface {
	Name() string
}

type (
	// NewChat starts an empty thread; the one being left is cached if it is
	// still streaming.
	NewChat struct {
		ID        string
		CreatedAt time.Time
	}

	BackUpMessages struct {
		ID       string
		Messages []models.ChatMessage
	}

	ChatAskedQuestion struct{ ID string }

	ChatResponse struct {
		ID       string
		Response stream.Response
	}

	DoneStreaming struct{ ID string }

	ChatError struct {
		ID      string
		Message string
	}

	RestoreChat struct{ Thread models.ChatThread }

	RemoveChatFromCache struct{ ID string }

	SetPreventSend struct{ ID string }
	EnableSend     struct{ ID string }

	SetChatModel    struct{ Model string }
	SetToolUse      struct{ ToolUse models.ToolUse }
	SetSystemPrompt struct{ Prompt string }

	SaveTitle struct {
		ID    string
		Title string
	}

	ClearError struct{}

	// FixBrokenToolMessages drops half-streamed tool calls from the last
	// assistant message.
	FixBrokenToolMessages struct{ ID string }

	// SetPauseReasons and ResetConfirmationInteracted only touch the
	// confirmation of the active thread.
	SetPauseReasons struct {
		ID      string
		Reasons []models.PauseReason
	}

	ClearPauseReasons struct{ WasInteracted bool }

	ResetConfirmationInteracted struct{ ID string }
)

// NewChatAction returns a NewChat with a fresh thread id.
func NewChatAction() NewChat {
	return NewChat{ID: uuid.NewString(), CreatedAt: time.Now()}
}

func (NewChat) Name() string                     { return "newChat" }
func (BackUpMessages) Name() string              { return "backUpMessages" }
func (ChatAskedQuestion) Name() string           { return "chatAskedQuestion" }
func (ChatResponse) Name() string                { return "chatResponse" }
func (DoneStreaming) Name() string               { return "doneStreaming" }
func (ChatError) Name() string                   { return "chatError" }
func (RestoreChat) Name() string                 { return "restoreChat" }
func (RemoveChatFromCache) Name() string         { return "removeChatFromCache" }
func (SetPreventSend) Name() string              { return "setPreventSend" }
func (EnableSend) Name() string                  { return "enableSend" }
func (SetChatModel) Name() string                { return "setChatModel" }
func (SetToolUse) Name() string                  { return "setToolUse" }
func (SetSystemPrompt) Name() string             { return "setSystemPrompt" }
func (SaveTitle) Name() string                   { return "saveTitle" }
func (ClearError) Name() string                  { return "clearError" }
func (FixBrokenToolMessages) Name() string       { return "fixBrokenToolMessages" }
func (SetPauseReasons) Name() string             { return "setPauseReasons" }
func (ClearPauseReasons) Name() string           { return "clearPauseReasons" }
func (ResetConfirmationInteracted) Name() string { return "resetConfirmationInteracted" }
