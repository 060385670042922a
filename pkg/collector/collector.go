// Package collector scans a live activity page for posts, scrolling until
// the feed stops producing new ones.
package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/identity"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
	"feedrelay/pkg/retry"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Page is the browsing context the collector drives
type Page interface {
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	ScrollToBottom(ctx context.Context) error
}

// ErrNavigationRequired means the page never showed the feed layout and is
// no longer on the activity listing
var ErrNavigationRequired = errors.New("navigation required")

// WrongPageError is returned before scanning when the page is not the
// activity listing
type WrongPageError struct {
	URL      string
	Expected string
}

func (e *WrongPageError) Error() string {
	return fmt.Sprintf("page %q is not the activity listing (expected %q in URL)", e.URL, e.Expected)
}

// Options configure one collector
type Options struct {
	URLFragment       string
	ItemSelector      string
	ContainerSelector string
	MaxScrollAttempts int
	MaxEmptyPasses    int
	SettleDelay       time.Duration

	// Active is checked at the top of every pass; returning false stops the run
	Active     func() bool
	OnProgress func(models.ProgressData)
	Sleep      func(ctx context.Context, d time.Duration) error
	Clock      func() time.Time
	Logger     logger.Logger
}

// Result is what one run produced
type Result struct {
	Items     []models.CollectedItem
	Passes    int
	Scrolls   int
	Cancelled bool
}

// Collector runs scan passes over a Page
type Collector struct {
	page Page
	opts Options
	log  logger.Logger

	items     goquery.Matcher
	container goquery.Matcher
}

// New creates a collector with defaults filled in
func New(page Page, opts Options) *Collector {
	if opts.MaxScrollAttempts <= 0 {
		opts.MaxScrollAttempts = 20
	}
	if opts.MaxEmptyPasses <= 0 {
		opts.MaxEmptyPasses = 3
	}
	if opts.Active == nil {
		opts.Active = func() bool { return true }
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Collector{
		page: page,
		opts: opts,
		log:  logger.OrDefault(opts.Logger).WithField("component", "collector"),
	}
}

// FromScrapeConfig maps the START_SCRAPING payload onto Options
func FromScrapeConfig(cfg models.ScrapeConfig) Options {
	return Options{
		URLFragment:       cfg.URLFragment,
		ItemSelector:      cfg.ItemSelector,
		ContainerSelector: cfg.ContainerSelector,
		MaxScrollAttempts: cfg.MaxScrollAttempts,
		MaxEmptyPasses:    cfg.MaxEmptyPasses,
		SettleDelay:       cfg.SettleDelay,
	}
}

// CompileSelectors checks the item and optional container selectors
func CompileSelectors(item, container string) (goquery.Matcher, goquery.Matcher, error) {
	if item == "" {
		return nil, nil, errs.New(errs.ErrorTypeParsing, "item selector is empty")
	}
	itemSel, err := cascadia.Compile(item)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrorTypeParsing, err, fmt.Sprintf("invalid item selector %q", item))
	}
	if container == "" {
		return itemSel, nil, nil
	}
	containerSel, err := cascadia.Compile(container)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrorTypeParsing, err, fmt.Sprintf("invalid container selector %q", container))
	}
	return itemSel, containerSel, nil
}

func (c *Collector) onExpectedPage(ctx context.Context) (string, bool, error) {
	u, err := c.page.URL(ctx)
	if err != nil {
		return "", false, errs.Wrap(errs.ErrorTypeNavigation, err, "read page URL")
	}
	return u, strings.Contains(u, c.opts.URLFragment), nil
}

// Run collects until the feed converges, the scroll cap is hit or the run
// is cancelled. Scroll position changes are left in place.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	items, container, err := CompileSelectors(c.opts.ItemSelector, c.opts.ContainerSelector)
	if err != nil {
		return nil, err
	}
	c.items, c.container = items, container

	pageURL, ok, err := c.onExpectedPage(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Wrap(errs.ErrorTypeWrongPage,
			&WrongPageError{URL: pageURL, Expected: c.opts.URLFragment},
			"not on the activity page")
	}

	res := &Result{}
	seen := identity.NewSet()
	emptyPasses := 0

	for {
		if !c.opts.Active() || ctx.Err() != nil {
			res.Cancelled = true
			c.log.InfoWithFields("Collection cancelled", map[string]interface{}{
				"collected": len(res.Items),
				"passes":    res.Passes,
			})
			return res, nil
		}

		res.Passes++
		matched, added, err := c.scan(ctx, res, seen, pageURL)
		if err != nil {
			return res, err
		}

		if matched == 0 {
			if u, ok, err := c.onExpectedPage(ctx); err == nil && !ok {
				return res, errs.Wrap(errs.ErrorTypeNavigation, ErrNavigationRequired,
					fmt.Sprintf("feed layout not found and page moved to %s", u))
			}
		}

		if added == 0 {
			emptyPasses++
		} else {
			emptyPasses = 0
		}

		logger.LogScanPass(c.log, res.Passes, matched, added, len(res.Items), emptyPasses)
		c.emit(res)

		if emptyPasses >= c.opts.MaxEmptyPasses || res.Scrolls >= c.opts.MaxScrollAttempts {
			break
		}

		if err := c.page.ScrollToBottom(ctx); err != nil {
			return res, errs.Wrap(errs.ErrorTypeNavigation, err, "scroll page")
		}
		res.Scrolls++

		if err := c.opts.Sleep(ctx, c.opts.SettleDelay); err != nil {
			res.Cancelled = true
			return res, nil
		}
	}

	c.log.InfoWithFields("Collection finished", map[string]interface{}{
		"collected": len(res.Items),
		"passes":    res.Passes,
		"scrolls":   res.Scrolls,
	})
	return res, nil
}

// scan runs one pass and appends unseen items to res
func (c *Collector) scan(ctx context.Context, res *Result, seen *identity.Set, pageURL string) (int, int, error) {
	markup, err := c.page.HTML(ctx)
	if err != nil {
		return 0, 0, errs.Wrap(errs.ErrorTypeNavigation, err, "read page content")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 0, 0, errs.Wrap(errs.ErrorTypeParsing, err, "parse page content")
	}

	matches := doc.FindMatcher(c.items)
	containers := make(map[*html.Node]struct{})
	added := 0
	now := c.opts.Clock()

	matches.Each(func(_ int, sel *goquery.Selection) {
		container := sel
		if c.container != nil {
			if closest := sel.ClosestMatcher(c.container); closest.Length() > 0 {
				container = closest
			}
		}

		node := container.Get(0)
		if _, dup := containers[node]; dup {
			return
		}
		index := len(containers)
		containers[node] = struct{}{}

		content, err := goquery.OuterHtml(container)
		if err != nil {
			c.log.WithError(err).Debug("Skipping unserializable element")
			return
		}

		id := identity.ID(content, index)
		if !seen.Add(id) {
			return
		}
		res.Items = append(res.Items, models.CollectedItem{
			ID:             id,
			Content:        content,
			SourceURL:      pageURL,
			DiscoveredAt:   now,
			DiscoveryIndex: index,
			ScrollPass:     res.Passes,
		})
		added++
	})

	return matches.Length(), added, nil
}

func (c *Collector) emit(res *Result) {
	if c.opts.OnProgress == nil {
		return
	}
	c.opts.OnProgress(models.ProgressData{
		Phase:          models.PhaseCollecting,
		TotalCollected: len(res.Items),
		ScrollAttempt:  res.Scrolls,
		MaxAttempts:    c.opts.MaxScrollAttempts,
	})
}
