package main

import (
	"fmt"
	"os"
	"runtime"

	"feedrelay/internal/app"
	"feedrelay/pkg/api"
	"feedrelay/pkg/auth"
	"feedrelay/pkg/config"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/state"
	"feedrelay/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	backendURL    string
	notifications bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feedrelay",
	Short: "Sync your activity feed posts to the feedrelay backend",
	Long: `feedrelay drives a browser to your activity feed, collects every post you
wrote, and queues each one with the feedrelay backend.

Features:
  - Scroll-to-bottom collection with duplicate suppression
  - Staggered, concurrent delivery over HTTP or AMQP
  - Live progress in an interactive terminal UI
  - Local bridge for the companion web app
  - Secure credential storage using the system keychain`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Name() != "version" && cmd.Name() != "help" && verbose {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.feedrelay.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "feedrelay backend base URL")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show logo and one line per progress update")

	rootCmd.SetVersionTemplate(`feedrelay {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges file, env and flags, then starts the global logger
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if backendURL != "" {
		flags["backend-url"] = backendURL
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	logger.GetLogger().WithField("version", version).Debug("feedrelay starting")
	return cfg, nil
}

// offline holds the collaborators commands need without a browser
type offline struct {
	cfg   *config.Config
	store *state.Store
	auth  *auth.Provider
	api   *api.Client
}

func newOffline(cfg *config.Config) (*offline, error) {
	log := logger.GetLogger()
	store, err := state.Open(cfg.State.Directory, log)
	if err != nil {
		return nil, err
	}
	creds, err := auth.NewManager(cfg.State.Directory)
	if err != nil {
		return nil, err
	}

	client := app.NewAPIClient(cfg, log)
	if settings, err := store.Settings(); err == nil && settings.BackendURL != "" && backendURL == "" {
		client.SetBaseURL(settings.BackendURL)
	}

	provider := auth.NewProvider(creds, client, auth.ProviderOptions{
		ValidationInterval: cfg.Auth.ValidationInterval,
		CookieName:         cfg.Auth.CookieName,
		Logger:             log,
	})
	return &offline{cfg: cfg, store: store, auth: provider, api: client}, nil
}
