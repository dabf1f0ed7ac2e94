package ui

import (
	"testing"
	"time"

	"refactchat/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestGetAtPosition(t *testing.T) {
	tests := []struct {
		input  string
		cursor int
		prefix string
		found  bool
	}{
		{"explain @fi", 11, "fi", true},
		{"explain @file src/ma", 20, "file src/ma", true},
		{"explain @file src/main.go and more", 34, "", false},
		{"no mention", 10, "", false},
		{"line one @x\nnext", 16, "", false},
		{"@", 1, "", true},
	}
	for _, tt := range tests {
		prefix, _, found := GetAtPosition(tt.input, tt.cursor)
		assert.Equal(t, tt.found, found, tt.input)
		assert.Equal(t, tt.prefix, prefix, tt.input)
	}
}

func TestApplyCompletion(t *testing.T) {
	val, cursor := ApplyCompletion("look at @fi please", 8, 11, "@file")
	assert.Equal(t, "look at @file please", val)
	assert.Equal(t, 14, cursor)

	val, cursor = ApplyCompletion("@file ma", 6, 8, "main.go")
	assert.Equal(t, "@file main.go ", val)
	assert.Equal(t, len(val), cursor)

	val, _ = ApplyCompletion("abc", 5, 9, "x")
	assert.Equal(t, "abcx ", val)
}

func TestTextareaCursorFromIndex(t *testing.T) {
	row, col := TextareaCursorFromIndex("héllo\nworld", 3)
	assert.Equal(t, 0, row)
	assert.Equal(t, 2, col)

	row, col = TextareaCursorFromIndex("héllo\nworld", 9)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)

	row, col = TextareaCursorFromIndex("ab", 99)
	assert.Equal(t, 0, row)
	assert.Equal(t, 2, col)
}

func TestWrappedLineCount(t *testing.T) {
	assert.Equal(t, 1, WrappedLineCount("", 10))
	assert.Equal(t, 2, WrappedLineCount("12345678901", 10))
	assert.Equal(t, 3, WrappedLineCount("a\n\nb", 10))
	assert.Equal(t, 1, WrappedLineCount("anything", 0))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncateRunes("héllo", 5))
	assert.Equal(t, "hé…", TruncateRunes("héllo", 3))
	assert.Equal(t, "…", TruncateRunes("héllo", 1))
	assert.Equal(t, "", TruncateRunes("héllo", 0))
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", RelativeTime(now))
	assert.Equal(t, "1 min ago", RelativeTime(now.Add(-90*time.Second)))
	assert.Equal(t, "3 hrs ago", RelativeTime(now.Add(-3*time.Hour-time.Minute)))
	assert.Equal(t, "2 days ago", RelativeTime(now.Add(-49*time.Hour)))
	assert.Equal(t, "3 weeks ago", RelativeTime(now.Add(-22*24*time.Hour)))
}

func TestPromptPreview(t *testing.T) {
	assert.Equal(t, "fix the bug in main", PromptPreview("  fix the\nbug\r\n in   main "))
}

func TestRetryMessages(t *testing.T) {
	msgs := []models.ChatMessage{
		models.UserMessage("first"),
		models.AssistantMessage("one"),
		models.UserMessage("second"),
		models.AssistantMessage("partial"),
		models.UserMessage(models.CDInstructionPrefix + " keep going"),
	}
	got, ok := retryMessages(msgs)
	assert.True(t, ok)
	assert.Len(t, got, 3)
	assert.Equal(t, "second", got[2].Content)

	_, ok = retryMessages([]models.ChatMessage{models.AssistantMessage("x")})
	assert.False(t, ok)
}
