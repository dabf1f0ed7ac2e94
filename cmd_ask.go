package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"refactchat/internal/chat"
	"refactchat/internal/models"
	"refactchat/internal/stream"
	"refactchat/internal/tools"

	"github.com/spf13/cobra"
)

var (
	askModel   string
	askToolUse string
	askYes     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and stream the answer to stdout",
	Long: `Sends a single question through the same pipeline as the interactive
chat. Tool calls run through refact-lsp; calls that need confirmation are
prompted for on stdin unless --yes is given. Ctrl+C stops the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Model to use (default: config or server default)")
	askCmd.Flags().StringVarP(&askToolUse, "tool-use", "t", "", "quick, explore or agent (default: config)")
	askCmd.Flags().BoolVarP(&askYes, "yes", "y", false, "Run tool calls that need confirmation without asking")
}

func runAsk(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if askModel != "" {
		s.store.Dispatch(chat.SetChatModel{Model: askModel})
	}
	if askToolUse != "" {
		tu, err := models.ParseToolUse(askToolUse)
		if err != nil {
			return err
		}
		s.store.Dispatch(chat.SetToolUse{ToolUse: tu})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	unsubscribe := s.store.Subscribe(printer(out))
	defer unsubscribe()

	if err := s.sender.Submit(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	s.sender.Wait()

	in := bufio.NewReader(cmd.InOrStdin())
	for s.store.State().Confirmation.Pause {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		approve, err := confirmTools(out, in, s.store.State().Confirmation)
		if err != nil {
			return err
		}
		if approve {
			err = s.sender.ConfirmToolUsage(ctx)
		} else {
			err = s.sender.RejectToolUsage(ctx)
		}
		if err != nil {
			return err
		}
		s.sender.Wait()
	}
	fmt.Fprintln(out)

	st := s.store.State()
	switch {
	case st.Error != "":
		return errors.New(st.Error)
	case ctx.Err() != nil:
		return errors.New("interrupted")
	}
	return nil
}

// printer streams assistant text and one line per tool call. It runs inside
// Dispatch, so it only writes.
func printer(w io.Writer) func(chat.Action, chat.State) {
	return func(action chat.Action, state chat.State) {
		resp, ok := action.(chat.ChatResponse)
		if !ok {
			return
		}
		switch r := resp.Response.(type) {
		case stream.ChoicesResponse:
			for _, c := range r.Choices {
				if c.Content != "" {
					fmt.Fprint(w, c.Content)
				}
			}
		case stream.MessageResponse:
			if r.Message.IsTool() {
				fmt.Fprintf(w, "\n  → %s\n", toolLine(state.Thread.Messages, r.Message))
			}
		}
	}
}

func confirmTools(w io.Writer, in *bufio.Reader, c chat.Confirmation) (bool, error) {
	fmt.Fprintln(w, "\nThe model wants to run:")
	for _, r := range c.PauseReasons {
		fmt.Fprintf(w, "  %s  (%s: %s)\n", r.Command, r.Type, r.Rule)
	}
	if c.HasDenial() {
		fmt.Fprintln(w, "A denied command is in the list; rejecting.")
		return false, nil
	}
	if askYes {
		return true, nil
	}
	fmt.Fprint(w, "Run them? [y/N] ")
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// toolLine summarises the call a tool result answers.
func toolLine(messages []models.ChatMessage, result models.ChatMessage) string {
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			if tc.ID == result.ToolCallID {
				return tools.GenerateToolSummary(tc.Function.Name, tc.Function.Arguments, result.Content)
			}
		}
	}
	return "tool " + result.ToolCallID
}
