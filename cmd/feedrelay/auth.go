package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"feedrelay/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginToken  string
	loginUserID string
	skipVerify  bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the backend credential",
	Long: `Manage the backend access token used for deliveries.

The token is stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - FEEDRELAY_TOKEN environment variable (read only)

When a sync starts without a stored token, feedrelay reads the access_token
cookie of the companion web app from the browser.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a backend access token",
	Example: `  # Prompt for the token
  feedrelay auth login

  # Non-interactive
  feedrelay auth login --token "$TOKEN" --user-id 42`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the stored credential is accepted",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)

	loginCmd.Flags().StringVar(&loginToken, "token", "", "access token (prompted when empty)")
	loginCmd.Flags().StringVar(&loginUserID, "user-id", "", "backend user id")
	loginCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "store without checking the token against the backend")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	deps, err := newOffline(cfg)
	if err != nil {
		return err
	}

	token := strings.TrimSpace(loginToken)
	if token == "" {
		fmt.Print("Access token (hidden): ")
		token, err = readPassword()
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}

	userID := loginUserID
	if !skipVerify {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Backend.RequestTimeout)
		defer cancel()
		user, err := deps.api.Me(ctx, token)
		if err != nil {
			return fmt.Errorf("backend rejected token: %w", err)
		}
		if userID == "" {
			userID = user.ID
		}
	}

	if err := deps.auth.Login(token, userID, "cli"); err != nil {
		return err
	}
	ui.PrintSuccess("Credential stored")
	if userID != "" {
		ui.PrintInfo("User", userID)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	deps, err := newOffline(cfg)
	if err != nil {
		return err
	}
	if err := deps.auth.Logout(); err != nil {
		return err
	}
	ui.PrintSuccess("Logged out")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	deps, err := newOffline(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Backend.RequestTimeout+time.Second)
	defer cancel()
	st := deps.auth.Status(ctx)
	if !st.Authenticated {
		ui.PrintWarning("Not authenticated", st.Reason)
		return nil
	}
	ui.PrintSuccess("Authenticated")
	if st.UserID != "" {
		ui.PrintInfo("User", st.UserID)
	}
	return nil
}

func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
