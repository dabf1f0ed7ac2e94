package ui

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"refactchat/internal/chat"
	"refactchat/internal/db"
	"refactchat/internal/models"
	"refactchat/internal/sender"
	"refactchat/internal/styles"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.busy() {
			m.UpdateViewport()
		}
		return m, spCmd

	case stateChangedMsg:
		prevID := m.State.Thread.ID
		m.State = m.store.State()
		if m.State.Thread.ID != prevID {
			m.PendingContext = nil
		}
		m.UpdateViewport()
		if m.State.Streaming {
			m.Viewport.GotoBottom()
		}
		return m, waitForStateCmd(m.changed)

	case tea.KeyMsg:
		if m.HistoryOpen {
			return m, m.handleHistoryKey(msg)
		}
		if m.ModelSelectorOpen {
			return m, m.handleModelKey(msg)
		}
		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
			}
			return m, nil
		}
		if m.State.Confirmation.Pause {
			if cmd, handled := m.handlePauseKey(msg); handled {
				return m, cmd
			}
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.updateInputLayout()
			return m, nil
		}

		if m.ShowCompletions {
			switch msg.String() {
			case "esc":
				m.ShowCompletions = false
				return m, nil
			case "up", "ctrl+p":
				m.CompletionIndex--
				if m.CompletionIndex < 0 {
					m.CompletionIndex = len(m.Completions) - 1
				}
				return m, nil
			case "down":
				m.CompletionIndex++
				if m.CompletionIndex >= len(m.Completions) {
					m.CompletionIndex = 0
				}
				return m, nil
			case "tab", "enter":
				return m, m.acceptCompletion()
			}
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.busy() {
				return m, m.abortCmd(m.State.Thread.ID)
			}
			return m, tea.Quit

		case tea.KeyCtrlN:
			m.store.Dispatch(chat.NewChatAction())
			m.Status = ""
			m.TextInput.Reset()
			m.updateInputLayout()
			return m, nil

		case tea.KeyCtrlT:
			m.store.Dispatch(chat.SetToolUse{ToolUse: m.State.EffectiveToolUse().Next()})
			return m, nil

		case tea.KeyCtrlB:
			m.ModelSelectorOpen = true
			m.HistoryOpen = false
			m.ShortcutsOpen = false
			return m, m.loadCapsCmd()

		case tea.KeyCtrlS:
			m.ShortcutsOpen = true
			m.ModelSelectorOpen = false
			m.HistoryOpen = false
			return m, nil

		case tea.KeyCtrlH:
			m.ModelSelectorOpen = false
			m.ShortcutsOpen = false
			m.HistoryOpen = true
			m.HistoryPage = 0
			m.SelectedHistoryIndex = 0
			return m, m.loadHistoryCmd(0)

		case tea.KeyCtrlR:
			if m.busy() {
				return m, nil
			}
			if messages, ok := retryMessages(m.State.Thread.Messages); ok {
				m.Status = ""
				return m, tea.Batch(m.retryCmd(messages), m.Spinner.Tick)
			}
			return m, nil

		case tea.KeyEnter:
			if m.busy() {
				return m, nil
			}
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}
			if input == "/new" || input == "/clear" {
				m.store.Dispatch(chat.NewChatAction())
				m.TextInput.Reset()
				m.updateInputLayout()
				return m, nil
			}
			m.TextInput.Reset()
			m.updateInputLayout()
			m.ShowCompletions = false
			m.PendingContext = nil
			m.Status = ""
			return m, tea.Batch(m.submitCmd(input), m.Spinner.Tick)
		}

	case historyLoadedMsg:
		m.HistoryTotal = msg.total
		m.HistoryItems = msg.items
		m.HistoryPage = msg.page
		if m.SelectedHistoryIndex >= len(m.HistoryItems) {
			m.SelectedHistoryIndex = max(len(m.HistoryItems)-1, 0)
		}
		return m, nil

	case threadLoadedMsg:
		m.HistoryOpen = false
		m.store.Dispatch(chat.RestoreChat{Thread: msg.thread})
		return m, nil

	case chatDeletedMsg:
		if msg.id == m.State.Thread.ID {
			m.store.Dispatch(chat.NewChatAction())
		}
		return m, m.loadHistoryCmd(m.HistoryPage)

	case capsLoadedMsg:
		m.AvailableModels = slices.Sorted(maps.Keys(msg.caps.CodeChatModels))
		current := m.State.Thread.Model
		if current == "" {
			current = msg.caps.CodeChatDefaultModel
		}
		m.SelectedModelIndex = max(slices.Index(m.AvailableModels, current), 0)
		return m, nil

	case completionMsg:
		if msg.seq != m.completionSeq {
			return m, nil
		}
		m.Completions = msg.result.Completions
		m.CompletionReplace = msg.result.Replace
		m.CompletionIndex = 0
		m.ShowCompletions = len(m.Completions) > 0
		return m, nil

	case previewMsg:
		m.PendingContext = msg.files
		return m, nil

	case errMsg:
		m.logger.Warn("ui operation failed", zap.String("op", msg.op), zap.Error(msg.err))
		switch {
		case errors.Is(msg.err, sender.ErrChatInFlight):
			m.Status = "A request is already running for this chat."
		case errors.Is(msg.err, db.ErrNotFound):
			m.Status = "That chat no longer exists."
		default:
			m.Status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		}
		if msg.op == "models" {
			m.ModelSelectorOpen = false
		}
		m.UpdateViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true

		ModalWidth = msg.Width - 10
		if ModalWidth > 60 {
			ModalWidth = 60
		}
		if ModalWidth < 30 {
			ModalWidth = 30
		}
		styles.SetContentWidth(ModalWidth - 6)

		chatWidth := min(msg.Width-2, MaxChatWidth)
		m.Viewport.Width = chatWidth - 2

		m.updateInputLayout()
		glamourStyle := "dark"
		if !lipgloss.HasDarkBackground() {
			glamourStyle = "light"
		}
		m.Renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath(glamourStyle),
			glamour.WithWordWrap(chatWidth-6),
		)
		m.UpdateViewport()
		return m, nil
	}

	before := m.TextInput.Value()
	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// terminal background queries can leak into the input
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
		val = ""
	}

	var cmpCmd tea.Cmd
	if val != before {
		cmpCmd = m.refreshCompletions(val)
	}

	// letter keys belong to the input; the viewport scrolls by page keys and mouse
	switch km := msg.(type) {
	case tea.MouseMsg:
		m.Viewport, vpCmd = m.Viewport.Update(msg)
	case tea.KeyMsg:
		if km.Type == tea.KeyPgUp || km.Type == tea.KeyPgDown {
			m.Viewport, vpCmd = m.Viewport.Update(msg)
		}
	}
	return m, tea.Batch(tiCmd, vpCmd, cmpCmd)
}

// busy reports a request in flight for the active thread.
func (m *Model) busy() bool {
	return m.State.Streaming || m.State.WaitingForResponse
}

func (m *Model) handlePauseKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "y":
		if m.State.Confirmation.HasDenial() {
			m.Status = "Denied commands can only be rejected."
			return nil, true
		}
		return m.confirmCmd(), true
	case "n":
		return m.rejectCmd(), true
	}
	return nil, false
}

func (m *Model) handleHistoryKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "esc", "ctrl+h":
		m.HistoryOpen = false
	case "up", "k":
		if len(m.HistoryItems) > 0 {
			m.SelectedHistoryIndex--
			if m.SelectedHistoryIndex < 0 {
				m.SelectedHistoryIndex = len(m.HistoryItems) - 1
			}
		}
	case "down", "j":
		if len(m.HistoryItems) > 0 {
			m.SelectedHistoryIndex++
			if m.SelectedHistoryIndex >= len(m.HistoryItems) {
				m.SelectedHistoryIndex = 0
			}
		}
	case "left", "h":
		if m.HistoryPage > 0 {
			m.SelectedHistoryIndex = 0
			return m.loadHistoryCmd(m.HistoryPage - 1)
		}
	case "right", "l":
		if (m.HistoryPage+1)*HistoryPageSize < m.HistoryTotal {
			m.SelectedHistoryIndex = 0
			return m.loadHistoryCmd(m.HistoryPage + 1)
		}
	case "d", "delete":
		if item, ok := m.selectedHistoryItem(); ok {
			return m.deleteChatCmd(item.ID)
		}
	case "enter":
		if item, ok := m.selectedHistoryItem(); ok {
			return m.loadThreadCmd(item.ID)
		}
	}
	return nil
}

func (m *Model) selectedHistoryItem() (models.ChatListItem, bool) {
	if m.SelectedHistoryIndex < 0 || m.SelectedHistoryIndex >= len(m.HistoryItems) {
		return models.ChatListItem{}, false
	}
	return m.HistoryItems[m.SelectedHistoryIndex], true
}

func (m *Model) handleModelKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "esc", "ctrl+b":
		m.ModelSelectorOpen = false
	case "up", "k":
		if len(m.AvailableModels) > 0 {
			m.SelectedModelIndex--
			if m.SelectedModelIndex < 0 {
				m.SelectedModelIndex = len(m.AvailableModels) - 1
			}
		}
	case "down", "j":
		if len(m.AvailableModels) > 0 {
			m.SelectedModelIndex++
			if m.SelectedModelIndex >= len(m.AvailableModels) {
				m.SelectedModelIndex = 0
			}
		}
	case "enter":
		if m.SelectedModelIndex < len(m.AvailableModels) {
			m.store.Dispatch(chat.SetChatModel{Model: m.AvailableModels[m.SelectedModelIndex]})
		}
		m.ModelSelectorOpen = false
	}
	return nil
}

// refreshCompletions asks the server for @-command completions when the
// cursor sits in an @ word.
func (m *Model) refreshCompletions(val string) tea.Cmd {
	cursor := TextareaCursorIndex(m.TextInput)
	if _, _, found := GetAtPosition(val, cursor); !found {
		m.ShowCompletions = false
		m.completionSeq++
		if !strings.Contains(val, "@") {
			m.PendingContext = nil
		}
		return nil
	}
	m.completionSeq++
	return m.completionCmd(m.completionSeq, val, utf8.RuneCountInString(val[:cursor]))
}

// acceptCompletion replaces the server-reported range with the chosen
// completion and previews what the input now attaches.
func (m *Model) acceptCompletion() tea.Cmd {
	m.ShowCompletions = false
	if m.CompletionIndex < 0 || m.CompletionIndex >= len(m.Completions) {
		return nil
	}
	val := m.TextInput.Value()
	start := byteIndexForRuneColumn(val, m.CompletionReplace[0])
	end := byteIndexForRuneColumn(val, m.CompletionReplace[1])
	if start > end {
		start, end = end, start
	}
	newVal, cursor := ApplyCompletion(val, start, end, m.Completions[m.CompletionIndex])
	m.TextInput.SetValue(newVal)
	row, col := TextareaCursorFromIndex(newVal, cursor)
	SetTextareaCursor(&m.TextInput, row, col)
	m.updateInputLayout()
	return m.previewCmd(newVal)
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "alt+enter":
		return true
	default:
		return false
	}
}

func (m *Model) updateInputLayout() {
	if m.Width == 0 || m.Height == 0 {
		return
	}

	inputWidth := m.Width - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	contentWidth := inputWidth - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	maxInputHeight := 6
	lineCount := WrappedLineCount(m.TextInput.Value(), contentWidth)
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > maxInputHeight {
		lineCount = maxInputHeight
	}

	m.TextInput.MaxHeight = maxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 5
	if m.State.Confirmation.Pause {
		reserved += 4
	}
	viewportHeight := m.Height - reserved
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.Viewport.Height = viewportHeight
}

// retryMessages cuts the thread after its last real user message.
func retryMessages(messages []models.ChatMessage) ([]models.ChatMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsUser() && !messages[i].IsCDInstruction() {
			return models.CloneMessages(messages[:i+1]), true
		}
	}
	return nil, false
}
