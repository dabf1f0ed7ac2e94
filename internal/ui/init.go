package ui

import (
	"context"

	"refactchat/internal/chat"
	"refactchat/internal/styles"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// New builds the UI model and subscribes it to the store. Call Close when the
// program exits.
func New(deps Deps) *Model {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ti := textarea.New()
	ti.Placeholder = "Ask anything, @ for context..."
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(styles.Current.Brand).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(styles.Current.Brand).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Current.Brand)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		TextInput:  ti,
		Viewport:   viewport.New(60, 15),
		Spinner:    sp,
		ctx:        ctx,
		cancel:     cancel,
		store:      deps.Store,
		sender:     deps.Sender,
		history:    deps.History,
		backend:    deps.Backend,
		logger:     logger,
		changed:    make(chan struct{}, 1),
		State:      deps.Store.State(),
		WorkingDir: deps.WorkingDir,
	}
	m.unsubscribe = deps.Store.Subscribe(m.onStateChange)
	return m
}

// onStateChange runs inside Dispatch, possibly on a sender goroutine. It must
// not block: one pending signal is enough since State is re-read on receipt.
func (m *Model) onStateChange(chat.Action, chat.State) {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.TextInput.Cursor.BlinkCmd(),
		m.Spinner.Tick,
		waitForStateCmd(m.changed),
	)
}

// Close aborts the active request and detaches from the store.
func (m *Model) Close() {
	m.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func NewProgram(m *Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}
