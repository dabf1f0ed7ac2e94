package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"refactchat/internal/cloud"
	"refactchat/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Refact cloud and store the API key",
	Long: `Prints a login link, waits until the login is confirmed in the browser
and writes the account's API key to the config file.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the Refact cloud account for the stored API key",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 10*time.Minute, "How long to wait for the browser login")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	client := cloud.New(cfg.Cloud.URL, logger)
	ticket := uuid.NewString()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this link to log in:\n\n  %s\n\nWaiting for confirmation...\n", cloud.LoginURL(ticket))

	key, err := client.PollLogin(ctx, ticket)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("login was not confirmed in time")
		}
		return err
	}

	info, err := client.UserInfo(ctx, key)
	if err != nil {
		return err
	}

	cfg.Cloud.APIKey = key
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s. API key saved to %s\n", info.Account, path)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	if cfg.Cloud.APIKey == "" {
		return errors.New("not logged in; run `refactchat login`")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	info, err := cloud.New(cfg.Cloud.URL, logger).UserInfo(ctx, cfg.Cloud.APIKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account: %s\ninference: %s\nbalance: %.2f\n", info.Account, info.Inference, info.MeteringBalance)
	return nil
}
