package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"refactchat/internal/chat"
	"refactchat/internal/config"
	"refactchat/internal/db"
	"refactchat/internal/logging"
	"refactchat/internal/lsp"
	"refactchat/internal/sender"
	"refactchat/internal/styles"
	"refactchat/internal/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	lspPort    int
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "refactchat",
	Short: "Terminal chat for the Refact coding assistant",
	Long: `refactchat talks to a local refact-lsp server and keeps your chats in a
local history.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentPreRunE = setup

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().IntVarP(&lspPort, "port", "p", 0, "refact-lsp HTTP port (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(capsCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and the logger. The interactive UI owns the
// terminal, so it logs to a file only.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.LSP.Port = lspPort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	opts := logging.Options{Level: cfg.Log.Level, Verbose: verbose, File: cfg.Log.File}
	if cmd == rootCmd {
		if opts.File == "" {
			opts.File = filepath.Join(config.Dir(), "refactchat.log")
		}
	} else {
		opts.Console = true
	}
	logger, err = logging.New(opts)
	return err
}

func newLSPClient() *lsp.Client {
	retry := lsp.DefaultRetryConfig()
	retry.MaxAttempts = cfg.LSP.MaxRetries
	return lsp.New(cfg.LSPBaseURL(), retry, logger)
}

// session wires the chat core: one store, its history persistence and the
// sender driving requests against refact-lsp.
type session struct {
	store   *chat.Store
	sender  *sender.Sender
	history *db.History
	client  *lsp.Client

	stopPersist func()
}

func openSession() (*session, error) {
	history, err := db.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}

	client := newLSPClient()
	store := chat.NewStore(chat.NewState(cfg.ToolUse(), cfg.Chat.Model), logger)
	if cfg.Chat.SystemPrompt != "" {
		store.Dispatch(chat.SetSystemPrompt{Prompt: cfg.Chat.SystemPrompt})
	}

	s := &session{
		store:   store,
		history: history,
		client:  client,
		sender: sender.New(store, client, sender.Options{
			MaxNewTokens:      cfg.Chat.MaxNewTokens,
			MaxToolIterations: cfg.Chat.MaxToolIterations,
		}, logger),
	}
	s.stopPersist = chat.PersistCompleted(store, history, logger)
	return s, nil
}

// Close waits for requests to settle so their final state is saved.
func (s *session) Close() {
	s.sender.Wait()
	s.stopPersist()
	if err := s.history.Close(); err != nil {
		logger.Warn("failed to close history", zap.Error(err))
	}
}

func runInteractive(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	if err := s.client.Ping(ctx); err != nil {
		logger.Warn("refact-lsp did not answer ping", zap.String("url", s.client.BaseURL()), zap.Error(err))
	}
	cancel()

	cwd, _ := os.Getwd()
	styles.InitTheme()
	m := ui.New(ui.Deps{
		Store:      s.store,
		Sender:     s.sender,
		History:    s.history,
		Backend:    s.client,
		Logger:     logger,
		WorkingDir: cwd,
	})
	defer m.Close()

	_, err = ui.NewProgram(m).Run()
	return err
}
