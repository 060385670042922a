// Package collectortest provides a scripted collector.Page for tests.
package collectortest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Selectors matching the markup produced by Feed
const (
	ItemSelector      = "div.update-components-text"
	ContainerSelector = "div.feed-shared-update-v2"
	URLFragment       = "/recent-activity/"
	ActivityURL       = "https://www.linkedin.com/in/me/recent-activity/all/"
)

// Page serves one scripted DOM snapshot per HTML call; the last repeats
type Page struct {
	mu        sync.Mutex
	url       string
	snapshots []string
	reads     int
	scrolls   int
}

// NewPage creates a page at url serving snapshots in order
func NewPage(url string, snapshots ...string) *Page {
	return &Page{url: url, snapshots: snapshots}
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return "<html><body></body></html>", nil
	}
	i := p.reads
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	p.reads++
	return p.snapshots[i], nil
}

func (p *Page) ScrollToBottom(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

// Scrolls returns how many times the page was scrolled
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// Feed renders n activity posts numbered from 0
func Feed(n int) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="feed-shared-update-v2" data-urn="urn:li:activity:%d"><div class="update-components-text">post %d</div></div>`, i, i)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}
