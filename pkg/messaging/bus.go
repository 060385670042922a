package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/retry"

	"golang.org/x/sync/errgroup"
)

// Well-known context addresses
const (
	Background = "background"
	Popup      = "popup"
	PagePrefix = "page/"
)

// PageAddress returns the address of the page context in a tab
func PageAddress(tabID string) string {
	return PagePrefix + tabID
}

// IsPage reports whether addr names a page context
func IsPage(addr string) bool {
	return strings.HasPrefix(addr, PagePrefix)
}

// Handler processes one message. Returning a nil response and nil error
// means the handler did not answer; if no handler answers the sender sees
// the target as unreachable.
type Handler func(ctx context.Context, msg Message) (interface{}, error)

// Options tune timeouts and retries for an endpoint
type Options struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Logger         logger.Logger
}

// DefaultOptions matches the messaging config defaults
func DefaultOptions() Options {
	return Options{
		Timeout:        5 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// Bus routes messages between registered endpoints
type Bus struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	opts      Options
	logger    logger.Logger
}

// NewBus creates a bus whose endpoints inherit opts
func NewBus(opts Options) *Bus {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = def.RetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = def.RetryBaseDelay
	}
	return &Bus{
		endpoints: make(map[string]*Endpoint),
		opts:      opts,
		logger:    logger.OrDefault(opts.Logger).WithField("component", "messaging"),
	}
}

// Endpoint returns the endpoint for addr, registering it on first use
func (b *Bus) Endpoint(addr string) *Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ep, ok := b.endpoints[addr]; ok {
		return ep
	}
	ep := &Endpoint{addr: addr, bus: b, handlers: make(map[int]Handler)}
	b.endpoints[addr] = ep
	return ep
}

// Remove drops addr; in-flight sends to it become unreachable
func (b *Bus) Remove(addr string) {
	b.mu.Lock()
	ep, ok := b.endpoints[addr]
	delete(b.endpoints, addr)
	b.mu.Unlock()

	if ok {
		ep.close()
	}
}

// Addresses lists registered endpoints matching the filter, sorted
func (b *Bus) Addresses(match func(addr string) bool) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.endpoints))
	for addr := range b.endpoints {
		if match == nil || match(addr) {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bus) lookup(addr string) (*Endpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ep, ok := b.endpoints[addr]
	return ep, ok
}

// Endpoint is one context's view of the bus
type Endpoint struct {
	addr string
	bus  *Bus

	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	closed   bool
}

// Address returns the endpoint's address
func (e *Endpoint) Address() string {
	return e.addr
}

// OnReceive registers a handler and returns a function removing it
func (e *Endpoint) OnReceive(h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.handlers[id] = h

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

func (e *Endpoint) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[int]Handler)
}

func (e *Endpoint) snapshot() []Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil
	}
	ids := make([]int, 0, len(e.handlers))
	for id := range e.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.handlers[id])
	}
	return out
}

type reply struct {
	resp Response
	err  error
}

// Send delivers msg to the endpoint at target and waits for its reply. It
// fails with an unreachable error when nothing answers, a timeout error
// when the reply does not arrive within the endpoint timeout, and a remote
// error when the target's handler returns one.
func (e *Endpoint) Send(ctx context.Context, target string, msg Message) (Response, error) {
	return e.SendTimeout(ctx, target, msg, e.bus.opts.Timeout)
}

// SendTimeout is Send with its own reply deadline. A non-positive timeout
// uses the bus default.
func (e *Endpoint) SendTimeout(ctx context.Context, target string, msg Message, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = e.bus.opts.Timeout
	}
	msg.From = e.addr
	resp, err := e.send(ctx, target, msg, timeout)
	logger.LogMessage(e.bus.logger, e.addr, target, msg.Type, err)
	return resp, err
}

func (e *Endpoint) send(ctx context.Context, target string, msg Message, timeout time.Duration) (Response, error) {
	dst, ok := e.bus.lookup(target)
	if !ok {
		return nil, errs.New(errs.ErrorTypeUnreachable, "no context at %s", target)
	}
	handlers := dst.snapshot()
	if len(handlers) == 0 {
		return nil, errs.New(errs.ErrorTypeUnreachable, "%s has no listener for %s", target, msg.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	in := Message{ID: msg.ID, Type: msg.Type, From: msg.From, Data: clone(msg.Data)}
	done := make(chan reply, 1)
	go func() {
		done <- dispatch(ctx, handlers, in)
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.ErrorTypeTimeout, ctx.Err(), "no reply from "+target+" to "+msg.Type)
		}
		return nil, errs.Wrap(errs.ErrorTypeCancelled, ctx.Err(), "send "+msg.Type+" cancelled")
	}
}

// dispatch runs handlers in registration order until one answers
func dispatch(ctx context.Context, handlers []Handler, msg Message) reply {
	for _, h := range handlers {
		out, err := h(ctx, msg)
		if err != nil {
			var typed *errs.Error
			if errors.As(err, &typed) && typed.Type == errs.ErrorTypeRemote {
				return reply{err: err}
			}
			return reply{err: errs.Wrap(errs.ErrorTypeRemote, err, err.Error())}
		}
		if out == nil {
			continue
		}
		if raw, ok := out.(Response); ok {
			return reply{resp: Response(clone(raw))}
		}
		raw, mErr := json.Marshal(out)
		if mErr != nil {
			return reply{err: errs.Wrap(errs.ErrorTypeParsing, mErr, "encode reply to "+msg.Type)}
		}
		return reply{resp: raw}
	}
	return reply{err: errs.New(errs.ErrorTypeUnreachable, "no handler answered %s", msg.Type)}
}

// Request is Send with linear-backoff retries on communication failures.
// Errors raised by the remote handler are never retried.
func (e *Endpoint) Request(ctx context.Context, target string, msg Message) (Response, error) {
	cfg := retry.CommunicationConfig(e.bus.opts.RetryAttempts, e.bus.opts.RetryBaseDelay)
	cfg.Logger = e.bus.logger
	return retry.DoWithResult(ctx, func(ctx context.Context) (Response, error) {
		return e.Send(ctx, target, msg)
	}, cfg)
}

// Outcome is one target's result from Broadcast
type Outcome struct {
	Target   string
	Response Response
	Err      error
}

// Broadcast sends msg to every endpoint matching the filter. Each target is
// attempted independently and every outcome is returned, failures included.
func (e *Endpoint) Broadcast(ctx context.Context, match func(addr string) bool, msg Message) []Outcome {
	targets := e.bus.Addresses(func(addr string) bool {
		return addr != e.addr && (match == nil || match(addr))
	})
	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			resp, err := e.Send(ctx, target, msg)
			outcomes[i] = Outcome{Target: target, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Notify sends msg and drops the reply. Unreachable targets are not an
// error; a closed popup simply misses the update.
func (e *Endpoint) Notify(ctx context.Context, target string, msg Message) error {
	_, err := e.Send(ctx, target, msg)
	if err != nil && errs.Is(err, errs.ErrorTypeUnreachable) {
		return nil
	}
	return err
}

// Post builds a message from typ and data and sends it with Request
func (e *Endpoint) Post(ctx context.Context, target, typ string, data interface{}) (Response, error) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		return nil, err
	}
	return e.Request(ctx, target, msg)
}

// PostOnce sends a message that must reach its handler at most once. Only
// unreachable targets are retried, since nothing acted on the message; a
// timeout or handler error is returned as is. The reply deadline is timeout.
func (e *Endpoint) PostOnce(ctx context.Context, target, typ string, data interface{}, timeout time.Duration) (Response, error) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		return nil, err
	}
	cfg := retry.CommunicationConfig(e.bus.opts.RetryAttempts, e.bus.opts.RetryBaseDelay)
	cfg.RetryIf = func(err error) bool { return errs.Is(err, errs.ErrorTypeUnreachable) }
	cfg.Logger = e.bus.logger
	return retry.DoWithResult(ctx, func(ctx context.Context) (Response, error) {
		return e.SendTimeout(ctx, target, msg, timeout)
	}, cfg)
}
