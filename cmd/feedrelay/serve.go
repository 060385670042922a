package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"feedrelay/internal/app"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/ui"

	"github.com/spf13/cobra"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local bridge for the companion web app",
	Long: `Start the browser and expose the background context on a local HTTP
bridge. The companion web app posts START_SYNC, CONFIGURE, AUTH_SUCCESS and
the other external messages to /external.

Only origins listed under bridge.allowed_origins may call the bridge.`,
	Example: `  feedrelay serve
  feedrelay serve --listen 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "bridge listen address")
	serveCmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	serveCmd.Flags().StringVar(&chromeURL, "chrome-url", "", "DevTools URL of a running Chrome")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"listen":     listenAddr,
		"chrome-url": chromeURL,
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
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

	display := ui.NewProgressDisplay(os.Stdout, true)
	defer display.Close()
	a.SetDisplay(display)

	return a.Serve(ctx, func(addr string) {
		ui.PrintInfo("Bridge listening", "http://"+addr)
	})
}
