package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"feedrelay/internal/app"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
	"feedrelay/pkg/progress"
	"feedrelay/pkg/ui"
	"feedrelay/pkg/ui/tui"

	"github.com/spf13/cobra"
)

var (
	activityURL string
	maxScrolls  int
	transport   string
	headless    bool
	chromeURL   string
	plain       bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Collect your activity posts and queue them with the backend",
	Long: `Open (or reuse) the activity page in Chrome, scroll until no new posts
appear, then deliver each post to the backend.

Requires a stored credential ('feedrelay auth login') or a logged-in session
of the companion web app in the same browser profile.`,
	Example: `  # Sync with the interactive terminal UI
  feedrelay sync

  # Attach to a running Chrome and print plain progress lines
  feedrelay sync --chrome-url ws://127.0.0.1:9222 --plain

  # Publish to RabbitMQ instead of the HTTP API
  feedrelay sync --transport amqp`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&activityURL, "activity-url", "", "activity page to open")
	syncCmd.Flags().IntVar(&maxScrolls, "max-scrolls", 0, "maximum scroll attempts (default from config)")
	syncCmd.Flags().StringVar(&transport, "transport", "", "delivery transport (http, amqp)")
	syncCmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	syncCmd.Flags().StringVar(&chromeURL, "chrome-url", "", "DevTools URL of a running Chrome")
	syncCmd.Flags().BoolVar(&plain, "plain", false, "disable the terminal UI")
}

func runSync(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"activity-url": activityURL,
		"transport":    transport,
		"chrome-url":   chromeURL,
	}
	if maxScrolls > 0 {
		flags["max-scroll-attempts"] = maxScrolls
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}

	interactive := !plain && ui.IsInteractive(os.Stdout)
	if interactive && logLevel == "" {
		// keep console logs from drawing over the TUI
		logLevel = "error"
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Logger: logger.GetLogger()})
	if err != nil {
		return err
	}
	defer a.Close()

	data := models.StartSyncData{ActivityURL: activityURL, MaxScrolls: maxScrolls}
	notifier := ui.NewNotifier(os.Stdout, notifications)

	var done *models.CompleteData
	if interactive {
		done, err = syncWithTUI(ctx, a, data)
	} else {
		display := ui.NewProgressDisplay(os.Stdout, verbose)
		a.SetDisplay(display)
		done, err = a.Sync(ctx, data)
		display.Close()
	}

	if err != nil {
		kind := errs.TypeOf(err)
		notifier.RunFailed(models.ErrorData{Kind: string(kind), Error: err.Error(), Recovery: progress.Recovery(kind)})
		return err
	}
	notifier.RunComplete(*done)
	return nil
}

// syncWithTUI runs the sync while the TUI owns the terminal. Quitting the
// TUI cancels the run.
func syncWithTUI(ctx context.Context, a *app.App, data models.StartSyncData) (*models.CompleteData, error) {
	syncCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := tui.NewTUI(func() {
		if err := a.Stop(syncCtx); err != nil {
			logger.GetLogger().WithError(err).Warn("Stop request failed")
		}
	})
	a.SetDisplay(terminal)

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
		cancel()
	}()

	terminal.Log("info", "Opening activity page")
	done, err := a.Sync(syncCtx, data)
	terminal.Close()
	if tuiErr := <-tuiDone; tuiErr != nil {
		logger.GetLogger().WithError(tuiErr).Error("TUI failed")
	}

	if err != nil {
		ui.PrintError("Sync failed", err)
		if r := progress.Recovery(errs.TypeOf(err)); r != "" {
			ui.PrintWarning(r)
		}
		return nil, err
	}
	ui.PrintSuccess(done.Message)
	return done, nil
}
