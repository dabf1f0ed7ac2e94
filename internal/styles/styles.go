package styles

import "github.com/charmbracelet/lipgloss"

// ContentWidth is the inner width of modal rows. Call SetContentWidth to
// change it so the modal styles pick it up.
var ContentWidth = 54

var (
	TitleStyle           lipgloss.Style
	UserLabelStyle       lipgloss.Style
	UserMsgStyle         lipgloss.Style
	AssistantLabelStyle  lipgloss.Style
	AssistantMsgStyle    lipgloss.Style
	ErrorStyle           lipgloss.Style
	PauseStyle           lipgloss.Style
	ToolActionStyle      lipgloss.Style
	ToolIconStyle        lipgloss.Style
	ToolNameStyle        lipgloss.Style
	ContextFileStyle     lipgloss.Style
	InputBoxStyle        lipgloss.Style
	WelcomeArtStyle      lipgloss.Style
	WelcomeSubtitleStyle lipgloss.Style
	ModalStyle           lipgloss.Style
	ModalTitleStyle      lipgloss.Style
	ModalItemStyle       lipgloss.Style
	ModalSelectedStyle   lipgloss.Style
	ModelNameStyle       lipgloss.Style
	DescStyle            lipgloss.Style

	HintColor lipgloss.Color
)

func init() {
	apply(Current)
}

// SetContentWidth resizes the modal rows.
func SetContentWidth(w int) {
	ContentWidth = w
	apply(Current)
}

func apply(p Palette) {
	HintColor = p.Faint

	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Brand).
		Padding(0, 1)

	UserLabelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(p.Explore).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)

	UserMsgStyle = lipgloss.NewStyle().
		Foreground(p.Text).
		PaddingLeft(2).
		BorderLeft(true).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(p.Explore)

	AssistantLabelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111111")).
		Background(p.Brand).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)

	AssistantMsgStyle = lipgloss.NewStyle().
		Foreground(p.Text).
		BorderLeft(true).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(p.Brand)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(p.Error).
		Bold(true)

	PauseStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Warning).
		Padding(0, 1)

	ToolActionStyle = lipgloss.NewStyle().
		Foreground(p.Muted).
		PaddingLeft(2)

	ToolIconStyle = lipgloss.NewStyle().
		Foreground(p.Accent).
		Bold(true)

	ToolNameStyle = lipgloss.NewStyle().
		Foreground(p.Warning).
		Bold(true)

	ContextFileStyle = lipgloss.NewStyle().
		Foreground(p.Success).
		PaddingLeft(2)

	InputBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Brand).
		Padding(0, 1)

	WelcomeArtStyle = lipgloss.NewStyle().
		Foreground(p.Brand).
		Bold(true)

	WelcomeSubtitleStyle = lipgloss.NewStyle().
		Foreground(p.Faint).
		Italic(true)

	ModalStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Brand).
		Padding(1, 2)

	ModalTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Brand).
		Width(ContentWidth).
		MarginBottom(1)

	ModalItemStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Width(ContentWidth)

	ModalSelectedStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Width(ContentWidth).
		Background(p.Selection).
		Foreground(p.Text)

	ModelNameStyle = lipgloss.NewStyle().
		Bold(true).
		MarginRight(1).
		Foreground(p.Text)

	DescStyle = lipgloss.NewStyle().
		Foreground(p.Muted)
}
