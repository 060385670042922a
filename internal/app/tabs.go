package app

import (
	"context"
	"sync"

	"feedrelay/internal/page"
	"feedrelay/pkg/browser"
	"feedrelay/pkg/collector"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
)

// PageOpener finds or opens the activity page and returns it with a stable
// tab id
type PageOpener interface {
	Open(ctx context.Context, url, fragment string) (collector.Page, string, error)
}

// browserPages opens activity pages in a chromedp-driven browser
type browserPages struct {
	tabs *browser.TabManager
}

func (b browserPages) Open(ctx context.Context, url, fragment string) (collector.Page, string, error) {
	tab, err := b.tabs.Acquire(ctx, url, fragment)
	if err != nil {
		return nil, "", err
	}
	return tab, string(tab.ID), nil
}

// agents keeps one page agent per tab and satisfies background.Tabs
type agents struct {
	bus    *messaging.Bus
	pages  PageOpener
	opts   page.Options
	logger logger.Logger

	mu   sync.Mutex
	ctx  context.Context
	byID map[string]*page.Agent
	stop []func()
}

func newAgents(ctx context.Context, bus *messaging.Bus, pages PageOpener, opts page.Options, log logger.Logger) *agents {
	return &agents{
		bus:    bus,
		pages:  pages,
		opts:   opts,
		logger: logger.OrDefault(log).WithField("component", "tabs"),
		ctx:    ctx,
		byID:   make(map[string]*page.Agent),
	}
}

// OpenActivity returns the bus address of a listening page context
func (a *agents) OpenActivity(ctx context.Context, url, fragment string) (string, error) {
	pg, id, err := a.pages.Open(ctx, url, fragment)
	if err != nil {
		return "", err
	}
	addr := messaging.PageAddress(id)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byID[id]; ok {
		return addr, nil
	}

	agent := page.NewAgent(a.bus.Endpoint(addr), pg, a.opts)
	a.stop = append(a.stop, agent.Listen(a.ctx))
	a.byID[id] = agent
	a.logger.DebugWithFields("Page context attached", map[string]interface{}{"address": addr})
	return addr, nil
}

// Wait blocks until every agent's run has returned
func (a *agents) Wait() {
	a.mu.Lock()
	list := make([]*page.Agent, 0, len(a.byID))
	for _, ag := range a.byID {
		list = append(list, ag)
	}
	a.mu.Unlock()

	for _, ag := range list {
		ag.Wait()
	}
}

// Close stops every agent and detaches its endpoint
func (a *agents) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ag := range a.byID {
		ag.Stop()
		a.bus.Remove(messaging.PageAddress(id))
	}
	for _, fn := range a.stop {
		fn()
	}
	a.stop = nil
	a.byID = make(map[string]*page.Agent)
}
