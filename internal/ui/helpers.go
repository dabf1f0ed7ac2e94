package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"refactchat/internal/models"
	"refactchat/internal/styles"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/mattn/go-runewidth"
)

// GetAtPosition finds the @-command being typed at cursorPos. The command
// word may be followed by one argument, as in "@file src/main.go".
func GetAtPosition(input string, cursorPos int) (prefix string, startPos int, found bool) {
	if cursorPos > len(input) {
		cursorPos = len(input)
	}

	spaces := 0
	for i := cursorPos - 1; i >= 0; i-- {
		switch input[i] {
		case '@':
			return input[i+1 : cursorPos], i, true
		case ' ':
			spaces++
			if spaces > 1 {
				return "", 0, false
			}
		case '\n', '\t':
			return "", 0, false
		}
	}
	return "", 0, false
}

// ApplyCompletion replaces input[start:end] with completion and returns the
// new value and the byte offset just past the inserted text. A trailing space
// is added so the next word starts fresh.
func ApplyCompletion(input string, start, end int, completion string) (string, int) {
	start = min(max(start, 0), len(input))
	end = min(max(end, start), len(input))
	if !strings.HasSuffix(completion, " ") {
		completion += " "
	}
	rest := strings.TrimPrefix(input[end:], " ")
	return input[:start] + completion + rest, start + len(completion)
}

func TextareaCursorIndex(t textarea.Model) int {
	value := t.Value()
	row := t.Line()
	li := t.LineInfo()
	col := li.StartColumn + li.ColumnOffset
	return cursorIndexFromRowCol(value, row, col)
}

func TextareaCursorFromIndex(value string, index int) (row int, col int) {
	if index < 0 {
		index = 0
	}
	if index > len(value) {
		index = len(value)
	}

	lines := strings.Split(value, "\n")
	pos := 0
	for i, line := range lines {
		if index <= pos+len(line) {
			return i, runeIndexForByteIndex(line, index-pos)
		}
		pos += len(line) + 1
	}

	row = len(lines) - 1
	return row, utf8.RuneCountInString(lines[row])
}

func SetTextareaCursor(t *textarea.Model, row int, col int) {
	lineCount := t.LineCount()
	if lineCount == 0 {
		t.SetCursor(0)
		return
	}
	row = min(max(row, 0), lineCount-1)

	for i := 0; i < 10000 && t.Line() > row; i++ {
		t.CursorUp()
	}
	for i := 0; i < 10000 && t.Line() < row; i++ {
		t.CursorDown()
	}
	t.SetCursor(col)
}

func cursorIndexFromRowCol(value string, row int, col int) int {
	lines := strings.Split(value, "\n")
	row = min(max(row, 0), len(lines)-1)

	index := 0
	for i := 0; i < row; i++ {
		index += len(lines[i]) + 1
	}
	return index + byteIndexForRuneColumn(lines[row], col)
}

// byteIndexForRuneColumn converts a rune offset into s to a byte offset.
func byteIndexForRuneColumn(s string, col int) int {
	if col <= 0 {
		return 0
	}
	count := 0
	for i := range s {
		if count >= col {
			return i
		}
		count++
	}
	return len(s)
}

func runeIndexForByteIndex(s string, idx int) int {
	if idx <= 0 {
		return 0
	}
	count := 0
	for i := range s {
		if i >= idx {
			return count
		}
		count++
	}
	return count
}

// WrappedLineCount is the number of screen rows value takes at width.
func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	count := 0
	for _, line := range strings.Split(value, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

// PromptPreview collapses whitespace so a prompt fits on one row.
func PromptPreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 500
	if r := []rune(s); len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago", unit)
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "min")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hr")
	}
	days := int(d.Hours() / 24)
	if days < 14 {
		return plural(days, "day")
	}
	return plural(days/7, "week")
}

func FormatUserMessage(content string, width int) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(max(width-4, 10)).Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

// FormatAssistantMessage renders an answer, with the tool calls it made above
// the text when there are any.
func FormatAssistantMessage(toolDisplay, content string) string {
	label := styles.AssistantLabelStyle.Render("REFACT")
	parts := []string{label}
	if toolDisplay != "" {
		parts = append(parts, toolDisplay)
	}
	if content != "" {
		parts = append(parts, styles.AssistantMsgStyle.Render(content))
	}
	return strings.Join(parts, "\n")
}

func FormatToolActions(actions []models.ToolAction) string {
	lines := make([]string, 0, len(actions))
	for _, action := range actions {
		icon := styles.ToolIconStyle.Render("→")
		name := styles.ToolNameStyle.Render(action.Summary)
		lines = append(lines, styles.ToolActionStyle.Render(icon+" "+name))
	}
	return strings.Join(lines, "\n")
}

func FormatContextFiles(files []models.ContextFile) string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f.FileName)
		if f.Line1 > 0 && f.Line2 > 0 {
			name = fmt.Sprintf("%s:%d-%d", name, f.Line1, f.Line2)
		}
		lines = append(lines, styles.ContextFileStyle.Render("📎 "+name))
	}
	return strings.Join(lines, "\n")
}
