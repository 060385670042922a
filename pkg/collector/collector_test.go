package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/identity"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activityURL = "https://www.linkedin.com/in/me/recent-activity/all/"

// fakePage serves a scripted DOM snapshot per pass; the last snapshot repeats
type fakePage struct {
	mu        sync.Mutex
	url       string
	snapshots []string
	reads     int
	scrolls   int
	afterRead func(p *fakePage)
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.reads
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	out := p.snapshots[i]
	p.reads++
	if p.afterRead != nil {
		p.afterRead(p)
	}
	return out, nil
}

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func feed(n int) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="feed-shared-update-v2" data-urn="urn:li:activity:%d"><div class="update-components-text">post %d</div></div>`, i, i)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func testOptions() Options {
	return Options{
		URLFragment:       "/recent-activity/",
		ItemSelector:      "div.update-components-text",
		ContainerSelector: "div.feed-shared-update-v2",
		MaxScrollAttempts: 20,
		MaxEmptyPasses:    3,
		SettleDelay:       2 * time.Second,
		Sleep:             func(context.Context, time.Duration) error { return nil },
		Logger:            logger.NewNopLogger(),
	}
}

func TestRunStopsAfterThreeEmptyPasses(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{feed(7)}}
	var progress []models.ProgressData
	opts := testOptions()
	opts.OnProgress = func(p models.ProgressData) { progress = append(progress, p) }

	res, err := New(page, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Items, 7)
	assert.Equal(t, 4, res.Passes)
	assert.Equal(t, 3, res.Scrolls)
	assert.Equal(t, 3, page.scrolls)

	require.Len(t, progress, 4, "one progress event per pass")
	for _, p := range progress {
		assert.Equal(t, models.PhaseCollecting, p.Phase)
		assert.Equal(t, 7, p.TotalCollected)
		assert.Equal(t, 20, p.MaxAttempts)
	}
	assert.Equal(t, 0, progress[0].ScrollAttempt)
	assert.Equal(t, 3, progress[3].ScrollAttempt)
}

func TestRunCollectsAcrossScrolls(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{feed(8), feed(12)}}

	res, err := New(page, testOptions()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Items, 12)
	assert.Equal(t, 5, res.Passes)
	assert.Equal(t, 1, res.Items[0].ScrollPass)
	assert.Equal(t, 2, res.Items[8].ScrollPass)
	assert.Equal(t, 8, res.Items[8].DiscoveryIndex)
	assert.Contains(t, res.Items[3].Content, "urn:li:activity:3")
	assert.Equal(t, activityURL, res.Items[0].SourceURL)

	ids := map[string]bool{}
	for _, it := range res.Items {
		assert.False(t, ids[it.ID], "duplicate id %s", it.ID)
		ids[it.ID] = true
	}
}

func TestRescanIsIdempotent(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{feed(5)}}
	c := New(page, testOptions())
	res := &Result{}
	seen := identity.NewSet()

	res.Passes++
	_, added, err := c.scan(context.Background(), res, seen, activityURL)
	require.NoError(t, err)
	assert.Equal(t, 5, added)

	res.Passes++
	matched, added, err := c.scan(context.Background(), res, seen, activityURL)
	require.NoError(t, err)
	assert.Equal(t, 5, matched)
	assert.Equal(t, 0, added)
	assert.Len(t, res.Items, 5)
}

func TestRunHonoursScrollCap(t *testing.T) {
	reads := 0
	page := &fakePage{url: activityURL}
	page.snapshots = []string{feed(1)}
	page.afterRead = func(p *fakePage) {
		reads++
		p.snapshots = []string{feed(reads + 1)}
	}
	opts := testOptions()
	opts.MaxScrollAttempts = 5

	res, err := New(page, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scrolls)
	assert.Equal(t, 6, res.Passes)
	assert.Len(t, res.Items, 6)
}

func TestRunRejectsWrongPage(t *testing.T) {
	page := &fakePage{url: "https://www.linkedin.com/feed/", snapshots: []string{feed(3)}}

	res, err := New(page, testOptions()).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errs.Is(err, errs.ErrorTypeWrongPage))

	var wp *WrongPageError
	require.True(t, errors.As(err, &wp))
	assert.Equal(t, "/recent-activity/", wp.Expected)
	assert.Equal(t, 0, page.reads, "no scanning before the page check")
}

func TestRunNavigationRequired(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{"<html><body>login</body></html>"}}
	page.afterRead = func(p *fakePage) { p.url = "https://www.linkedin.com/login" }

	_, err := New(page, testOptions()).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNavigationRequired)
	assert.True(t, errs.Is(err, errs.ErrorTypeNavigation))
}

func TestRunEmptyFeedOnRightPageTerminates(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{"<html><body></body></html>"}}

	res, err := New(page, testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 3, res.Passes)
}

func TestRunCancelledBetweenPasses(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{feed(2), feed(4), feed(6)}}
	active := true
	opts := testOptions()
	opts.OnProgress = func(p models.ProgressData) {
		if p.TotalCollected >= 4 {
			active = false
		}
	}
	opts.Active = func() bool { return active }

	res, err := New(page, opts).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Len(t, res.Items, 4)
	assert.Equal(t, 2, res.Passes)
}

func TestContainerFallbackAndDedupWithinPass(t *testing.T) {
	markup := `<html><body>
<div class="feed-shared-update-v2"><div class="update-components-text">a</div><div class="update-components-text">b</div></div>
<div class="update-components-text">orphan</div>
</body></html>`
	page := &fakePage{url: activityURL, snapshots: []string{markup}}

	res, err := New(page, testOptions()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.True(t, strings.HasPrefix(res.Items[0].Content, `<div class="feed-shared-update-v2">`))
	assert.Equal(t, `<div class="update-components-text">orphan</div>`, res.Items[1].Content)
}

func TestRunRejectsMalformedSelector(t *testing.T) {
	page := &fakePage{url: activityURL, snapshots: []string{feed(3)}}
	opts := testOptions()
	opts.ItemSelector = "div[data-urn"

	res, err := New(page, opts).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
	assert.Equal(t, 0, page.reads, "a bad selector must not look like an empty feed")
}

func TestCompileSelectors(t *testing.T) {
	item, container, err := CompileSelectors("div.post", "")
	require.NoError(t, err)
	assert.NotNil(t, item)
	assert.Nil(t, container)

	_, _, err = CompileSelectors("div.post", "li[class=")
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
}
