package ui

import (
	"context"

	"refactchat/internal/chat"
	"refactchat/internal/lsp"
	"refactchat/internal/models"
	"refactchat/internal/sender"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"
)

const (
	MaxChatWidth    = 100
	HistoryPageSize = 10
	MaxCompletions  = 6
)

// ModalWidth follows the terminal width, capped by MaxChatWidth.
var ModalWidth = 60

// History is the chat history the UI browses.
type History interface {
	GetRecentChats(ctx context.Context, limit, offset int) (int, []models.ChatListItem, error)
	GetThread(ctx context.Context, id string) (models.ChatThread, error)
	DeleteChat(ctx context.Context, id string) error
}

// Backend is the part of the LSP client the UI calls directly.
type Backend interface {
	Caps(ctx context.Context) (lsp.Caps, error)
	AtCommandCompletion(ctx context.Context, query string, cursor, topN int) (lsp.CompletionResult, error)
	AtCommandPreview(ctx context.Context, query string) ([]models.ChatMessage, error)
}

// Deps are the long-lived collaborators of the terminal UI.
type Deps struct {
	Store   *chat.Store
	Sender  *sender.Sender
	History History
	Backend Backend
	Logger  *zap.Logger
	// WorkingDir is shown in the bottom bar.
	WorkingDir string
}

type Model struct {
	Viewport  viewport.Model
	TextInput textarea.Model
	Spinner   spinner.Model
	Renderer  *glamour.TermRenderer

	ctx    context.Context
	cancel context.CancelFunc

	store   *chat.Store
	sender  *sender.Sender
	history History
	backend Backend
	logger  *zap.Logger

	// changed is signalled by the store listener; State is re-read on receipt.
	changed     chan struct{}
	unsubscribe func()
	State       chat.State

	Width      int
	Height     int
	Ready      bool
	WorkingDir string
	// Status is a transient line for failures outside the chat stream.
	Status string

	HistoryOpen          bool
	HistoryItems         []models.ChatListItem
	HistoryTotal         int
	HistoryPage          int
	SelectedHistoryIndex int

	ModelSelectorOpen  bool
	AvailableModels    []string
	SelectedModelIndex int

	ShortcutsOpen bool

	ShowCompletions bool
	Completions     []string
	CompletionIndex int
	// CompletionReplace is the byte range of the input the chosen completion replaces.
	CompletionReplace [2]int
	// completionSeq drops answers to stale completion requests.
	completionSeq int

	// PendingContext lists the files @-commands in the input will attach.
	PendingContext []string
}

type stateChangedMsg struct{}

type errMsg struct {
	op  string
	err error
}

type historyLoadedMsg struct {
	total int
	items []models.ChatListItem
	page  int
}

type threadLoadedMsg struct {
	thread models.ChatThread
}

type chatDeletedMsg struct {
	id string
}

type capsLoadedMsg struct {
	caps lsp.Caps
}

type completionMsg struct {
	seq    int
	result lsp.CompletionResult
}

type previewMsg struct {
	files []string
}
