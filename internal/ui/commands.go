package ui

import (
	"context"
	"errors"
	"time"

	"refactchat/internal/models"

	tea "github.com/charmbracelet/bubbletea"
)

const requestTimeout = 10 * time.Second

func waitForStateCmd(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func (m *Model) submitCmd(question string) tea.Cmd {
	return func() tea.Msg {
		if err := m.sender.Submit(m.ctx, question); err != nil {
			return errMsg{op: "send", err: err}
		}
		return nil
	}
}

func (m *Model) confirmCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.sender.ConfirmToolUsage(m.ctx); err != nil {
			return errMsg{op: "confirm", err: err}
		}
		return nil
	}
}

func (m *Model) rejectCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.sender.RejectToolUsage(m.ctx); err != nil {
			return errMsg{op: "reject", err: err}
		}
		return nil
	}
}

// retryCmd resends the thread cut after its last user message.
func (m *Model) retryCmd(messages []models.ChatMessage) tea.Cmd {
	return func() tea.Msg {
		if err := m.sender.Retry(m.ctx, messages); err != nil {
			return errMsg{op: "retry", err: err}
		}
		return nil
	}
}

func (m *Model) abortCmd(chatID string) tea.Cmd {
	return func() tea.Msg {
		m.sender.Abort(chatID)
		return nil
	}
}

func (m *Model) loadHistoryCmd(page int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		total, items, err := m.history.GetRecentChats(ctx, HistoryPageSize, page*HistoryPageSize)
		if err != nil {
			return errMsg{op: "history", err: err}
		}
		return historyLoadedMsg{total: total, items: items, page: page}
	}
}

func (m *Model) loadThreadCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		thread, err := m.history.GetThread(ctx, id)
		if err != nil {
			return errMsg{op: "open chat", err: err}
		}
		return threadLoadedMsg{thread: thread}
	}
}

func (m *Model) deleteChatCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		if err := m.history.DeleteChat(ctx, id); err != nil {
			return errMsg{op: "delete chat", err: err}
		}
		return chatDeletedMsg{id: id}
	}
}

func (m *Model) loadCapsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		caps, err := m.backend.Caps(ctx)
		if err != nil {
			return errMsg{op: "models", err: err}
		}
		return capsLoadedMsg{caps: caps}
	}
}

func (m *Model) completionCmd(seq int, query string, cursor int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		res, err := m.backend.AtCommandCompletion(ctx, query, cursor, MaxCompletions)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return errMsg{op: "completion", err: err}
		}
		return completionMsg{seq: seq, result: res}
	}
}

// previewCmd asks which files the @-commands in query will attach.
func (m *Model) previewCmd(query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		msgs, err := m.backend.AtCommandPreview(ctx, query)
		if err != nil {
			return errMsg{op: "preview", err: err}
		}
		var files []string
		for _, msg := range msgs {
			for _, f := range msg.ContextFiles {
				files = append(files, f.FileName)
			}
		}
		return previewMsg{files: files}
	}
}
