package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"refactchat/internal/db"
	"refactchat/internal/models"
	"refactchat/internal/tools"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse saved chats",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent chats, newest first",
	Args:  cobra.NoArgs,
	RunE:  historyList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [chat-id]",
	Short: "Print a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE:  historyShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [chat-id]",
	Short: "Delete a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE:  historyDelete,
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of chats to show")
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of chats to skip")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func withHistory(fn func(h *db.History) error) error {
	h, err := db.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(h)
}

func historyList(cmd *cobra.Command, args []string) error {
	return withHistory(func(h *db.History) error {
		total, items, err := h.GetRecentChats(cmd.Context(), historyLimit, historyOffset)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if total == 0 {
			fmt.Fprintln(out, "No chats yet.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUPDATED\tMODE\tTITLE")
		for _, item := range items {
			title := item.Title
			if title == "" {
				title = oneLine(item.LastUserPrompt, 60)
			}
			updated := time.Unix(item.UpdatedAtUnix, 0).Format("2006-01-02 15:04")
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.ID, updated, item.ToolUse, title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d-%d of %d\n", historyOffset+1, historyOffset+len(items), total)
		return nil
	})
}

func historyShow(cmd *cobra.Command, args []string) error {
	return withHistory(func(h *db.History) error {
		thread, err := h.GetThread(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("chat %s: %w", args[0], err)
		}
		summarizeThread(cmd.OutOrStdout(), thread)
		return nil
	})
}

func historyDelete(cmd *cobra.Command, args []string) error {
	return withHistory(func(h *db.History) error {
		if err := h.DeleteChat(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("chat %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// summarizeThread renders a stored thread as plain text.
func summarizeThread(w io.Writer, thread models.ChatThread) {
	title := thread.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(w, "%s  %s  model=%s\n\n", thread.ID, title, thread.Model)

	actions := tools.Actions(thread.Messages)
	next := 0
	for _, msg := range thread.Messages {
		switch {
		case msg.Role == models.RoleSystem, msg.IsTool():
		case msg.Role == models.RoleContextFile:
			for _, f := range msg.ContextFiles {
				fmt.Fprintf(w, "  📎 %s\n", f.FileName)
			}
		case msg.IsUser():
			fmt.Fprintf(w, "> %s\n\n", msg.Content)
		case msg.IsAssistant():
			if strings.TrimSpace(msg.Content) != "" {
				fmt.Fprintf(w, "%s\n\n", msg.Content)
			}
			for range msg.ToolCalls {
				if next < len(actions) {
					fmt.Fprintf(w, "  → %s\n", actions[next].Summary)
					next++
				}
			}
		}
	}
}
