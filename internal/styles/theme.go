package styles

import (
	"refactchat/internal/models"

	"github.com/charmbracelet/lipgloss"
)

// Palette is the set of colors the chat screens draw from.
type Palette struct {
	Brand  lipgloss.Color
	Accent lipgloss.Color

	Text  lipgloss.Color
	Muted lipgloss.Color
	Faint lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	Selection lipgloss.Color

	// one per tool-use mode
	Quick   lipgloss.Color
	Explore lipgloss.Color
	Agent   lipgloss.Color
}

var Dark = Palette{
	Brand:  lipgloss.Color("#7DD3FC"),
	Accent: lipgloss.Color("#F0ABFC"),

	Text:  lipgloss.Color("#E5E7EB"),
	Muted: lipgloss.Color("#9CA3AF"),
	Faint: lipgloss.Color("#545454"),

	Success: lipgloss.Color("#34D399"),
	Warning: lipgloss.Color("#FBBF24"),
	Error:   lipgloss.Color("#FB7185"),

	Selection: lipgloss.Color("#3B4252"),

	Quick:   lipgloss.Color("#A5D6A7"),
	Explore: lipgloss.Color("#81D4FA"),
	Agent:   lipgloss.Color("#CE93D8"),
}

var Light = Palette{
	Brand:  lipgloss.Color("#0369A1"),
	Accent: lipgloss.Color("#A21CAF"),

	Text:  lipgloss.Color("#1F2937"),
	Muted: lipgloss.Color("#4B5563"),
	Faint: lipgloss.Color("#9CA3AF"),

	Success: lipgloss.Color("#059669"),
	Warning: lipgloss.Color("#B45309"),
	Error:   lipgloss.Color("#DC2626"),

	Selection: lipgloss.Color("#DBEAFE"),

	Quick:   lipgloss.Color("#2E7D32"),
	Explore: lipgloss.Color("#0277BD"),
	Agent:   lipgloss.Color("#7B1FA2"),
}

// Current is picked by InitTheme from the terminal background.
var Current = Dark

func InitTheme() {
	if lipgloss.HasDarkBackground() {
		Current = Dark
	} else {
		Current = Light
	}
	apply(Current)
}

// ModeColor is the badge color for a tool-use mode.
func ModeColor(mode models.ToolUse) lipgloss.Color {
	switch mode {
	case models.ToolUseQuick:
		return Current.Quick
	case models.ToolUseExplore:
		return Current.Explore
	default:
		return Current.Agent
	}
}
