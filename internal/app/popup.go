package app

import (
	"context"
	"sync"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"
	"feedrelay/pkg/ui"
)

type outcome struct {
	complete *models.CompleteData
	failure  *models.ErrorData
}

// Popup is the popup context: it renders relayed run events and lets a
// caller wait for a run to end
type Popup struct {
	ep      *messaging.Endpoint
	logger  logger.Logger
	mu      sync.Mutex
	display ui.Display
	waiters map[string]chan outcome
}

// NewPopup binds the popup endpoint; display may be nil
func NewPopup(ep *messaging.Endpoint, display ui.Display, log logger.Logger) *Popup {
	return &Popup{
		ep:      ep,
		display: display,
		logger:  logger.OrDefault(log).WithField("component", "popup"),
		waiters: make(map[string]chan outcome),
	}
}

// SetDisplay swaps the renderer for subsequent events
func (p *Popup) SetDisplay(d ui.Display) {
	p.mu.Lock()
	p.display = d
	p.mu.Unlock()
}

// Listen registers the popup handler
func (p *Popup) Listen() func() {
	return p.ep.OnReceive(p.handle)
}

func (p *Popup) handle(_ context.Context, msg messaging.Message) (interface{}, error) {
	display := p.current()

	switch msg.Type {
	case models.MsgScrapingProgress:
		var d models.ProgressData
		if err := msg.Decode(&d); err != nil {
			return nil, err
		}
		if display != nil {
			display.Progress(d)
		}

	case models.MsgScrapingComplete:
		var d models.CompleteData
		if err := msg.Decode(&d); err != nil {
			return nil, err
		}
		if display != nil {
			display.Complete(d)
		}
		p.resolve(d.RunID, outcome{complete: &d})

	case models.MsgScrapingError:
		var d models.ErrorData
		if err := msg.Decode(&d); err != nil {
			return nil, err
		}
		if display != nil {
			display.Failed(d)
		}
		p.resolve(d.RunID, outcome{failure: &d})

	default:
		return nil, nil
	}
	return models.Ack{OK: true}, nil
}

func (p *Popup) current() ui.Display {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.display
}

// waiter returns the channel for runID, creating it so an event that arrives
// before the caller starts waiting is kept
func (p *Popup) waiter(runID string) chan outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.waiters[runID]
	if !ok {
		ch = make(chan outcome, 1)
		p.waiters[runID] = ch
	}
	return ch
}

func (p *Popup) resolve(runID string, o outcome) {
	select {
	case p.waiter(runID) <- o:
	default:
		p.logger.DebugWithFields("Duplicate run outcome dropped", map[string]interface{}{"run_id": runID})
	}
}

// Start asks the background for a sync
func (p *Popup) Start(ctx context.Context, data models.StartSyncData) (models.StartSyncResult, error) {
	var res models.StartSyncResult
	resp, err := p.ep.Post(ctx, messaging.Background, models.MsgStartSync, data)
	if err != nil {
		return res, err
	}
	if err := resp.Decode(&res); err != nil {
		return res, err
	}
	return res, nil
}

// Stop asks the background to stop the active run
func (p *Popup) Stop(ctx context.Context) error {
	_, err := p.ep.Post(ctx, messaging.Background, models.MsgStopScraping, struct{}{})
	return err
}

// Await blocks until runID completes or fails. A failed run is returned as
// an error carrying the reported kind.
func (p *Popup) Await(ctx context.Context, runID string) (*models.CompleteData, error) {
	ch := p.waiter(runID)
	defer func() {
		p.mu.Lock()
		delete(p.waiters, runID)
		p.mu.Unlock()
	}()

	select {
	case o := <-ch:
		if o.failure != nil {
			return nil, errs.New(errs.ErrorType(o.failure.Kind), "sync failed: %s", o.failure.Error)
		}
		return o.complete, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
