// Package page is the page context: it owns one tab, answers START_SCRAPING
// and STOP_SCRAPING from the background, and runs collection then delivery
// for each sync.
package page

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"feedrelay/pkg/collector"
	"feedrelay/pkg/delivery"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"
	"feedrelay/pkg/progress"
	"feedrelay/pkg/ratelimit"
)

// Options configure an Agent
type Options struct {
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	// DeliveryTimeout bounds one PROCESS_SINGLE_ITEM round trip; zero uses
	// the bus timeout
	DeliveryTimeout time.Duration
	// Limiter paces item relays; nil means unlimited
	Limiter ratelimit.Limiter
	Logger  logger.Logger
}

// Agent runs syncs against one page
type Agent struct {
	ep     *messaging.Endpoint
	page   collector.Page
	opts   Options
	logger logger.Logger

	active  atomic.Bool
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewAgent binds an agent to the page's bus endpoint
func NewAgent(ep *messaging.Endpoint, page collector.Page, opts Options) *Agent {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	return &Agent{
		ep:     ep,
		page:   page,
		opts:   opts,
		logger: logger.OrDefault(opts.Logger).WithFields(map[string]interface{}{"component": "page", "address": ep.Address()}),
	}
}

// Listen registers the agent's handler. Runs started by START_SCRAPING use
// ctx; the returned func unregisters.
func (a *Agent) Listen(ctx context.Context) func() {
	return a.ep.OnReceive(func(_ context.Context, msg messaging.Message) (interface{}, error) {
		switch msg.Type {
		case models.MsgStartScraping:
			var cfg models.ScrapeConfig
			if err := msg.Decode(&cfg); err != nil {
				return nil, err
			}
			if err := a.Start(ctx, cfg); err != nil {
				return nil, err
			}
			return models.Ack{OK: true, Message: "scraping started"}, nil

		case models.MsgStopScraping:
			a.Stop()
			return models.Ack{OK: true}, nil
		}
		return nil, nil
	})
}

// Start launches a run in the background and returns immediately
func (a *Agent) Start(ctx context.Context, cfg models.ScrapeConfig) error {
	if !a.running.CompareAndSwap(false, true) {
		return errs.ErrRunActive
	}
	a.active.Store(true)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.running.Store(false)
		a.run(ctx, cfg)
	}()
	return nil
}

// Stop clears the active flag; the collector halts at its next pass
func (a *Agent) Stop() {
	if a.active.CompareAndSwap(true, false) {
		a.logger.Info("Stop requested")
	}
}

// Running reports whether a run is in progress
func (a *Agent) Running() bool {
	return a.running.Load()
}

// Wait blocks until the current run, if any, has finished
func (a *Agent) Wait() {
	a.wg.Wait()
}

func (a *Agent) run(ctx context.Context, cfg models.ScrapeConfig) {
	log := a.logger.WithField("run_id", cfg.RunID)
	reporter := progress.NewReporter(cfg.RunID, newRelay(ctx, a.ep, log), a.opts.Clock)

	stagger := cfg.Stagger
	if stagger <= 0 {
		stagger = delivery.DefaultStagger
	}
	coord := delivery.NewCoordinator(cfg.RunID, a.sender(cfg.RunID), delivery.Options{
		Stagger: stagger,
		Clock:   a.opts.Clock,
		Logger:  log,
	})

	opts := collector.FromScrapeConfig(cfg)
	opts.Active = a.active.Load
	opts.OnProgress = reporter.Collecting
	opts.Sleep = a.opts.Sleep
	opts.Clock = a.opts.Clock
	opts.Logger = log

	if err := coord.Advance(models.PhaseCollecting); err != nil {
		log.WithError(err).Warn("Could not enter collecting phase")
	}

	res, err := collector.New(a.page, opts).Run(ctx)
	if err != nil {
		a.fail(ctx, coord, cfg.RunID, err)
		return
	}

	// a stop during collection still delivers what was found
	err = coord.Deliver(ctx, res.Items, reporter.Delivery, func(s models.RunState) {
		reporter.Complete(s, res.Cancelled || !a.active.Load())
	})
	if err != nil {
		a.fail(ctx, coord, cfg.RunID, err)
		return
	}

	// scheduled attempts keep running even if ctx ends
	if err := coord.Wait(ctx); err != nil {
		log.WithError(err).Warn("Stopped waiting for delivery")
	}
}

func (a *Agent) fail(ctx context.Context, coord *delivery.Coordinator, runID string, err error) {
	coord.Fail(err.Error())

	kind := errs.TypeOf(err)
	a.logger.WithError(err).ErrorWithFields("Sync run failed", map[string]interface{}{
		"run_id": runID,
		"kind":   kind,
	})

	data := models.ErrorData{
		RunID:    runID,
		Kind:     string(kind),
		Error:    err.Error(),
		Recovery: progress.Recovery(kind),
	}
	if _, sendErr := a.ep.Post(ctx, messaging.Background, models.MsgScrapingError, data); sendErr != nil {
		a.logger.WithError(sendErr).Warn("Could not report run failure")
	}
}

// sender relays each item to the background as PROCESS_SINGLE_ITEM. The
// relay is paced by the limiter and never resent once the background may
// have acted on it.
func (a *Agent) sender(runID string) delivery.Sender {
	return delivery.SenderFunc(func(ctx context.Context, item models.CollectedItem) (string, error) {
		if err := a.opts.Limiter.Wait(ctx); err != nil {
			return "", errs.Wrap(errs.ErrorTypeCancelled, err, "rate limiter wait")
		}
		resp, err := a.ep.PostOnce(ctx, messaging.Background, models.MsgProcessSingleItem, models.ProcessItemData{
			RunID: runID,
			Item:  item,
		}, a.opts.DeliveryTimeout)
		if err != nil {
			return "", err
		}

		var result models.ProcessItemResult
		if err := resp.Decode(&result); err != nil {
			return "", err
		}
		if !result.Success {
			kind := errs.ErrorType(result.Kind)
			if kind == "" {
				kind = errs.ErrorTypeTransport
			}
			return "", errs.New(kind, "%s", result.Error)
		}
		return result.Result, nil
	})
}
