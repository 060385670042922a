// Package browser drives a Chrome instance over the DevTools protocol. It
// supplies the page handle the collector scans, tab discovery for the
// background context and a cookie source for the auth provider.
package browser

import (
	"context"
	"fmt"

	"feedrelay/pkg/config"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"

	"github.com/chromedp/chromedp"
)

// Browser owns the allocator and root browser context
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	logger      logger.Logger
}

// Launch starts Chrome, or attaches to one when RemoteURL is set
func Launch(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*Browser, error) {
	log = logger.OrDefault(log).WithField("component", "browser")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// first Run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, errs.Wrap(errs.ErrorTypeUnreachable, err, "failed to start browser")
	}

	logger.LogComponentStart(log, "browser", map[string]interface{}{
		"headless": cfg.Headless,
		"remote":   cfg.RemoteURL != "",
	})

	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      browserCancel,
		logger:      log,
	}, nil
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserData != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserData))
	}
	return opts
}

// Close shuts the browser down
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
	logger.LogComponentStop(b.logger, "browser", "closed")
}

// Context returns the root browser context
func (b *Browser) Context() context.Context {
	return b.ctx
}

// run executes actions in chromedp context cdpCtx and aborts when ctx is done
func run(ctx, cdpCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(cdpCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrorTypeCancelled, ctx.Err(), "browser action cancelled")
		}
		return fmt.Errorf("browser action failed: %w", err)
	}
	return nil
}
