package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const scrollScript = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`

// Tab is one browser tab. It satisfies collector.Page.
type Tab struct {
	ID     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

// URL returns the tab's current location
func (t *Tab) URL(ctx context.Context) (string, error) {
	var url string
	if err := run(ctx, t.ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// HTML returns the serialized document
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := run(ctx, t.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ScrollToBottom scrolls the document to its current height
func (t *Tab) ScrollToBottom(ctx context.Context) error {
	var height float64
	return run(ctx, t.ctx, chromedp.Evaluate(scrollScript, &height))
}

// Close detaches from the tab without closing the browser
func (t *Tab) Close() {
	t.cancel()
}

// TabManager finds or opens the activity tab
type TabManager struct {
	browser     *Browser
	loadTimeout time.Duration
	logger      logger.Logger
}

// NewTabManager creates a manager with the given page-load timeout
func NewTabManager(b *Browser, loadTimeout time.Duration, log logger.Logger) *TabManager {
	return &TabManager{
		browser:     b,
		loadTimeout: loadTimeout,
		logger:      logger.OrDefault(log).WithField("component", "tabs"),
	}
}

// Acquire reuses the first open tab whose URL contains fragment, else opens
// url and waits for it to load
func (m *TabManager) Acquire(ctx context.Context, url, fragment string) (*Tab, error) {
	infos, err := chromedp.Targets(m.browser.ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnreachable, err, "failed to list tabs")
	}

	if info := selectTab(infos, fragment); info != nil {
		m.logger.InfoWithFields("Reusing activity tab", map[string]interface{}{"url": info.URL})
		tabCtx, cancel := chromedp.NewContext(m.browser.ctx, chromedp.WithTargetID(info.TargetID))
		return &Tab{ID: info.TargetID, ctx: tabCtx, cancel: cancel}, nil
	}

	return m.Open(ctx, url)
}

// Open creates a new tab at url and waits up to the load timeout for its body
func (m *TabManager) Open(ctx context.Context, url string) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(m.browser.ctx)

	loadCtx, loadCancel := context.WithTimeout(ctx, m.loadTimeout)
	defer loadCancel()

	m.logger.InfoWithFields("Opening activity tab", map[string]interface{}{"url": url})
	err := run(loadCtx, tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		cancel()
		if loadCtx.Err() == context.DeadlineExceeded {
			return nil, errs.New(errs.ErrorTypeNavigation, "page did not load within %s", m.loadTimeout)
		}
		return nil, errs.Wrap(errs.ErrorTypeNavigation, err, fmt.Sprintf("failed to open %s", url))
	}

	return &Tab{ID: chromedp.FromContext(tabCtx).Target.TargetID, ctx: tabCtx, cancel: cancel}, nil
}

func selectTab(infos []*target.Info, fragment string) *target.Info {
	if fragment == "" {
		return nil
	}
	for _, info := range infos {
		if info.Type == "page" && strings.Contains(info.URL, fragment) {
			return info
		}
	}
	return nil
}
