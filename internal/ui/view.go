package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"refactchat/internal/models"
	"refactchat/internal/styles"
	"refactchat/internal/tools"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) RenderModelSelector() string {
	title := styles.ModalTitleStyle.Render("Select Model")

	var body string
	if len(m.AvailableModels) == 0 {
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("Loading models..."))
	} else {
		items := make([]string, 0, len(m.AvailableModels))
		for i, name := range m.AvailableModels {
			line := styles.ModelNameStyle.Render(TruncateRunes(name, styles.ContentWidth-6))
			if name == m.State.Thread.Model {
				line += styles.DescStyle.Render("(current)")
			}
			if i == m.SelectedModelIndex {
				items = append(items, styles.ModalSelectedStyle.Render("> "+line))
			} else {
				items = append(items, styles.ModalItemStyle.Render("  "+line))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • Enter: select • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}

func (m *Model) RenderHistorySelector() string {
	totalPages := max((m.HistoryTotal+HistoryPageSize-1)/HistoryPageSize, 1)
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Recent Chats (%d) - Page %d/%d", m.HistoryTotal, m.HistoryPage+1, totalPages))

	var body string
	if len(m.HistoryItems) == 0 {
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No chats yet"))
	} else {
		items := make([]string, 0, len(m.HistoryItems))
		for i, item := range m.HistoryItems {
			cursor := "  "
			if i == m.SelectedHistoryIndex {
				cursor = "> "
			}
			timeStr := RelativeTime(time.Unix(item.UpdatedAtUnix, 0))
			label := item.Title
			if label == "" {
				label = PromptPreview(item.LastUserPrompt)
			}
			if label == "" {
				label = "(no prompt)"
			}
			available := styles.ContentWidth - 2 - len(cursor) - 1 - len(timeStr)
			label = TruncateRunes(label, available)

			line := fmt.Sprintf("%s%s %s", cursor, label, lipgloss.NewStyle().Foreground(styles.HintColor).Render(timeStr))
			if i == m.SelectedHistoryIndex {
				items = append(items, styles.ModalSelectedStyle.Render(line))
			} else {
				items = append(items, styles.ModalItemStyle.Render(line))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • d: delete • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Ctrl+C", "Quit"},
		{"Esc", "Stop the answer (quit when idle)"},
		{"Ctrl+N", "New chat"},
		{"Ctrl+T", "Cycle quick/explore/agent"},
		{"Ctrl+B", "Select model"},
		{"Ctrl+H", "Chat history"},
		{"Ctrl+R", "Retry last question"},
		{"Ctrl+S", "Shortcuts (this menu)"},
		{"@", "Attach context (in input)"},
		{"y / n", "Run or reject paused tools"},
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFCC80")).
		Bold(true).
		Width(12)

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		line := keyStyle.Render(s.key) + " " + s.desc
		items = append(items, styles.ModalItemStyle.Render(line))
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...), hint)
}

func (m *Model) RenderBottomBar() string {
	toolUse := m.State.EffectiveToolUse()
	mode := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.ModeColor(toolUse)).
		Padding(0, 1).
		Render(strings.ToUpper(string(toolUse)))

	cwdDisplay := m.WorkingDir
	if home, err := os.UserHomeDir(); err == nil && home != "" && strings.HasPrefix(cwdDisplay, home) {
		cwdDisplay = "~" + cwdDisplay[len(home):]
	}
	cwd := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(TruncateRunes(cwdDisplay, 30))

	modelName := m.State.Thread.Model
	if modelName == "" {
		modelName = "default model"
	}
	model := lipgloss.NewStyle().
		Foreground(styles.Current.Brand).
		Render(TruncateRunes(modelName, 25))

	var status string
	switch {
	case m.State.Confirmation.Pause:
		status = lipgloss.NewStyle().Foreground(styles.Current.Warning).Render("waiting for confirmation")
	case m.busy():
		status = lipgloss.NewStyle().Foreground(styles.Current.Muted).Render("streaming")
	case len(m.State.Cache) > 0:
		status = lipgloss.NewStyle().Foreground(styles.Current.Muted).Render(fmt.Sprintf("%d in background", len(m.State.Cache)))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#555555")).
		Render("Help: ^S")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, mode, "  ", cwd, "  ", model)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, status, "  ", help)

	spacer := strings.Repeat(" ", max(m.Width-lipgloss.Width(leftSide)-lipgloss.Width(rightSide)-2, 0))
	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, spacer, rightSide)

	return lipgloss.NewStyle().
		Width(m.Width).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(0, 1).
		Render(bar)
}

func (m *Model) RenderPendingContext() string {
	if len(m.PendingContext) == 0 {
		return ""
	}

	chipStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111111")).
		Background(lipgloss.Color("#80CBC4")).
		Padding(0, 1).
		MarginRight(1)

	chips := make([]string, 0, len(m.PendingContext))
	for _, file := range m.PendingContext {
		chips = append(chips, chipStyle.Render("📄 "+filepath.Base(file)))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("Context: ") + strings.Join(chips, " ")
}

func (m *Model) RenderCompletions() string {
	if !m.ShowCompletions || len(m.Completions) == 0 {
		return ""
	}

	itemStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#E0E0E0")).
		Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111111")).
		Background(styles.Current.Brand).
		Padding(0, 1)

	lines := []string{lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Italic(true).
		Render("  ↑↓ to select, Tab/Enter to insert")}
	for i, c := range m.Completions {
		if i == m.CompletionIndex {
			lines = append(lines, selectedStyle.Render("▸ "+c))
		} else {
			lines = append(lines, itemStyle.Render("  "+c))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Current.Brand).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

// RenderPausePrompt lists the tool calls waiting on the user.
func (m *Model) RenderPausePrompt() string {
	c := m.State.Confirmation
	if !c.Pause {
		return ""
	}
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(styles.Current.Warning).Render("Tool calls need your approval")}
	for _, r := range c.PauseReasons {
		verb := "confirm"
		if r.Type == models.PauseDenial {
			verb = "denied"
		}
		line := fmt.Sprintf("%s %s", styles.ToolNameStyle.Render(verb), TruncateRunes(r.Command, 60))
		if r.Rule != "" {
			line += styles.DescStyle.Render(" (rule " + r.Rule + ")")
		}
		lines = append(lines, line)
	}
	hint := "y: run • n: reject"
	if c.HasDenial() {
		hint = "n: reject"
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(styles.HintColor).Render(hint))
	return styles.PauseStyle.Render(strings.Join(lines, "\n"))
}

func GetWelcomeScreen(width, height int) string {
	art := `
 ╭────────────────────────────────────────────────────╮
 │                                                    │
 │   ██████╗ ███████╗███████╗ █████╗  ██████╗████████╗│
 │   ██╔══██╗██╔════╝██╔════╝██╔══██╗██╔════╝╚══██╔══╝│
 │   ██████╔╝█████╗  █████╗  ███████║██║        ██║   │
 │   ██╔══██╗██╔══╝  ██╔══╝  ██╔══██║██║        ██║   │
 │   ██║  ██║███████╗██║     ██║  ██║╚██████╗   ██║   │
 │   ╚═╝  ╚═╝╚══════╝╚═╝     ╚═╝  ╚═╝ ╚═════╝   ╚═╝   │
 │                                                    │
 ╰────────────────────────────────────────────────────╯
`
	subtitle := "Ask about your code. Type @ to attach files, Ctrl+S for shortcuts."

	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.WelcomeArtStyle.Render(art),
		"",
		styles.WelcomeSubtitleStyle.Render(subtitle),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderMarkdown(s string) string {
	if m.Renderer == nil {
		return s
	}
	rendered, err := m.Renderer.Render(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(rendered)
}

// RenderThread lays out the active thread: each user message followed by the
// assistant turn that answered it, tool calls summarised above the text.
func (m *Model) RenderThread(messages []models.ChatMessage) []string {
	var blocks []string
	var turn []models.ChatMessage

	flush := func() {
		if len(turn) == 0 {
			return
		}
		var parts []string
		var text []string
		for _, msg := range turn {
			switch {
			case msg.Role == models.RoleContextFile:
				parts = append(parts, FormatContextFiles(msg.ContextFiles))
			case msg.IsAssistant() && strings.TrimSpace(msg.Content) != "":
				text = append(text, msg.Content)
			}
		}
		if actions := tools.Actions(turn); len(actions) > 0 {
			parts = append(parts, FormatToolActions(actions))
		}
		content := ""
		if len(text) > 0 {
			content = m.renderMarkdown(strings.Join(text, "\n\n"))
		}
		if len(parts) > 0 || content != "" {
			blocks = append(blocks, FormatAssistantMessage(strings.Join(parts, "\n"), content))
		}
		turn = nil
	}

	for _, msg := range messages {
		switch {
		case msg.Role == models.RoleSystem:
		case msg.IsUser() && !msg.IsCDInstruction():
			flush()
			blocks = append(blocks, FormatUserMessage(msg.Content, m.Viewport.Width))
		default:
			turn = append(turn, msg)
		}
	}
	flush()
	return blocks
}

func (m *Model) UpdateViewport() {
	blocks := m.RenderThread(m.State.Thread.Messages)

	if len(blocks) == 0 && !m.busy() && m.State.Error == "" {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		return
	}

	if m.busy() {
		status := " Generating..."
		if m.State.WaitingForResponse {
			status = " Waiting for refact-lsp..."
		}
		blocks = append(blocks, m.Spinner.View()+status)
	}
	if m.State.Error != "" {
		blocks = append(blocks, styles.ErrorStyle.Render("Error: "+m.State.Error)+
			lipgloss.NewStyle().Foreground(styles.HintColor).Render("  (Ctrl+R to retry)"))
	}
	if m.Status != "" {
		blocks = append(blocks, lipgloss.NewStyle().Foreground(styles.Current.Warning).Render(m.Status))
	}

	atBottom := m.Viewport.AtBottom()
	m.Viewport.SetContent(strings.Join(blocks, "\n\n"))
	if atBottom {
		m.Viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	if !m.Ready {
		return "Starting..."
	}

	inputBox := styles.InputBoxStyle.Width(m.Width - 4).Render(m.TextInput.View())

	var inputParts []string
	if pause := m.RenderPausePrompt(); pause != "" {
		inputParts = append(inputParts, pause)
	}
	if pending := m.RenderPendingContext(); pending != "" {
		inputParts = append(inputParts, pending)
	}
	if popup := m.RenderCompletions(); popup != "" {
		inputParts = append(inputParts, popup)
	}
	inputParts = append(inputParts, inputBox)

	title := "REFACT"
	if m.State.Thread.Title != "" {
		title = "REFACT · " + TruncateRunes(m.State.Thread.Title, 50)
	}
	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render(title),
		"",
		m.Viewport.View(),
		"",
		lipgloss.JoinVertical(lipgloss.Left, inputParts...),
	)
	chatArea := lipgloss.PlaceHorizontal(m.Width, lipgloss.Center, chatContent)
	content := lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())

	var modal string
	switch {
	case m.HistoryOpen:
		modal = m.RenderHistorySelector()
	case m.ModelSelectorOpen:
		modal = m.RenderModelSelector()
	case m.ShortcutsOpen:
		modal = m.RenderShortcutsModal()
	default:
		return content
	}

	return lipgloss.Place(
		m.Width,
		m.Height,
		lipgloss.Center,
		lipgloss.Center,
		styles.ModalStyle.Width(ModalWidth).Render(modal),
	)
}
