// Package delivery fans collected items out to a Sender and detects when
// every item has settled.
package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
)

// DefaultStagger spaces out item attempts
const DefaultStagger = 100 * time.Millisecond

// Options configure a Coordinator
type Options struct {
	Stagger time.Duration
	Clock   func() time.Time
	Logger  logger.Logger
}

// Coordinator owns the RunState of one sync. All counter mutation happens
// here; callers observe copies.
type Coordinator struct {
	sender  Sender
	stagger time.Duration
	now     func() time.Time
	log     logger.Logger

	mu  sync.Mutex
	run *models.RunState

	emitMu    sync.Mutex
	completed atomic.Bool
	done      chan struct{}
}

// NewCoordinator creates the coordinator and RunState for run id
func NewCoordinator(id string, sender Sender, opts Options) *Coordinator {
	if opts.Stagger < 0 {
		opts.Stagger = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Coordinator{
		sender:  sender,
		stagger: opts.Stagger,
		now:     opts.Clock,
		log:     logger.OrDefault(opts.Logger).WithFields(map[string]interface{}{"component": "coordinator", "run_id": id}),
		run:     models.NewRunState(id, opts.Clock()),
		done:    make(chan struct{}),
	}
}

// Snapshot returns a copy of the run state
func (c *Coordinator) Snapshot() models.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.run
}

// Advance moves the run to phase p
func (c *Coordinator) Advance(p models.Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.Advance(p, c.now())
}

// Fail moves the run to the error phase and releases Wait
func (c *Coordinator) Fail(msg string) models.RunState {
	c.mu.Lock()
	c.run.Fail(msg, c.now())
	snap := *c.run
	c.mu.Unlock()

	if c.completed.CompareAndSwap(false, true) {
		close(c.done)
	}
	return snap
}

// Done is closed once the run completes or fails
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the run completes or fails, or ctx ends
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver schedules one attempt per item, the i-th after i*stagger, and
// returns without waiting. Attempts run concurrently once due. onProgress
// sees a snapshot after every settled item; onComplete fires exactly once
// when processed equals collected. An empty batch completes immediately.
//
// Scheduled attempts are not withdrawn when the run is cancelled; they use
// ctx, which callers keep independent of the user's stop request.
func (c *Coordinator) Deliver(ctx context.Context, items []models.CollectedItem, onProgress, onComplete func(models.RunState)) error {
	c.mu.Lock()
	if err := c.run.SetCollected(len(items)); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.run.Advance(models.PhaseQueueing, c.now()); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	logger.LogComponentStart(c.log, "delivery", map[string]interface{}{
		"items":      len(items),
		"stagger_ms": c.stagger.Milliseconds(),
	})

	if len(items) == 0 {
		c.finish(onComplete)
		return nil
	}

	for i, item := range items {
		item := item
		time.AfterFunc(time.Duration(i)*c.stagger, func() {
			c.attempt(ctx, item, onProgress, onComplete)
		})
	}

	return nil
}

func (c *Coordinator) attempt(ctx context.Context, item models.CollectedItem, onProgress, onComplete func(models.RunState)) {
	_, err := c.sender.Send(ctx, item)

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if recErr := c.run.Record(err == nil); recErr != nil {
		c.mu.Unlock()
		c.log.WithError(recErr).Warn("Ignoring extra settlement")
		return
	}
	snap := *c.run
	done := c.run.Done()
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).DebugWithFields("Item failed", map[string]interface{}{"item_id": item.ID})
	}
	if onProgress != nil {
		onProgress(snap)
	}
	if done {
		c.finish(onComplete)
	}
}

// finish marks the run completed and invokes onComplete once
func (c *Coordinator) finish(onComplete func(models.RunState)) {
	if !c.completed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	if err := c.run.Advance(models.PhaseCompleted, c.now()); err != nil {
		c.log.WithError(err).Warn("Run could not be completed")
	}
	snap := *c.run
	c.mu.Unlock()

	logger.LogRunSummary(c.log, snap.ID, snap.TotalCollected, snap.TotalSuccessful, snap.TotalFailed, snap.Duration(c.now()))
	if onComplete != nil {
		onComplete(snap)
	}
	close(c.done)
}
