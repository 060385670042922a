// Package app wires the background, page and popup contexts onto one bus and
// connects them to the browser, the delivery transport and persisted state.
package app

import (
	"context"
	"fmt"
	"time"

	"feedrelay/internal/background"
	"feedrelay/internal/bridge"
	"feedrelay/internal/page"
	"feedrelay/pkg/api"
	"feedrelay/pkg/auth"
	"feedrelay/pkg/browser"
	"feedrelay/pkg/config"
	"feedrelay/pkg/delivery"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"
	"feedrelay/pkg/publisher"
	"feedrelay/pkg/ratelimit"
	"feedrelay/pkg/state"
	"feedrelay/pkg/ui"

	"golang.org/x/sync/errgroup"
)

// BridgeAddress is the bus address of the local HTTP bridge
const BridgeAddress = "external"

// Options override collaborators; zero values are built from Config
type Options struct {
	Config      *config.Config
	Logger      logger.Logger
	Pages       PageOpener
	Transport   delivery.Transport
	Verifier    auth.Verifier
	Credentials auth.CredentialStore
	Display     ui.Display
	Limiter     ratelimit.Limiter
	Clock       func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// App owns every context of one feedrelay process
type App struct {
	cfg    *config.Config
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	bus        *messaging.Bus
	api        *api.Client
	auth       *auth.Provider
	store      *state.Store
	browser    *browser.Browser
	background *background.Service
	popup      *Popup
	agents     *agents

	closers  []func() error
	unlisten []func()
}

// New builds the app. Without Options.Pages a browser is launched.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	log := logger.OrDefault(opts.Logger)

	a := &App{cfg: cfg, logger: log.WithField("component", "app")}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := state.Open(cfg.State.Directory, log)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.api = NewAPIClient(cfg, log)
	if settings, err := store.Settings(); err == nil && settings.BackendURL != "" {
		a.api.SetBaseURL(settings.BackendURL)
	}

	pages := opts.Pages
	var cookies auth.CookieSource
	if pages == nil {
		b, err := browser.Launch(ctx, cfg.Browser, log)
		if err != nil {
			return nil, err
		}
		a.browser = b
		a.closers = append(a.closers, func() error { b.Close(); return nil })
		pages = browserPages{tabs: browser.NewTabManager(b, cfg.Feed.PageLoadTimeout, log)}
		cookies = browser.NewCookieSource(b, cfg.Backend.FrontendURL)
	}

	creds := opts.Credentials
	if creds == nil {
		m, err := auth.NewManager(cfg.State.Directory)
		if err != nil {
			return nil, err
		}
		creds = m
	}
	var verifier auth.Verifier = a.api
	if opts.Verifier != nil {
		verifier = opts.Verifier
	}
	a.auth = auth.NewProvider(creds, verifier, auth.ProviderOptions{
		ValidationInterval: cfg.Auth.ValidationInterval,
		Cookies:            cookies,
		CookieName:         cfg.Auth.CookieName,
		Clock:              opts.Clock,
		Logger:             log,
	})

	transport := opts.Transport
	if transport == nil {
		t, closer, err := newTransport(ctx, cfg, a.api, log)
		if err != nil {
			return nil, err
		}
		transport = t
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	a.bus = messaging.NewBus(messaging.Options{
		Timeout:        cfg.Messaging.Timeout,
		RetryAttempts:  cfg.Messaging.RetryAttempts,
		RetryBaseDelay: cfg.Messaging.RetryBaseDelay,
		Logger:         log,
	})

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.PerMinute(cfg.Delivery.RequestsPerMinute)
	}
	a.agents = newAgents(a.ctx, a.bus, pages, page.Options{
		Clock:           opts.Clock,
		Sleep:           opts.Sleep,
		DeliveryTimeout: DeliveryTimeout(cfg),
		Limiter:         limiter,
		Logger:          log,
	}, log)

	a.background = background.New(background.Deps{
		Endpoint:  a.bus.Endpoint(messaging.Background),
		Auth:      a.auth,
		Sender:    delivery.NewGateway(a.auth, transport, log),
		Tabs:      a.agents,
		Store:     store,
		Lock:      state.NewRunLock(cfg.State.Directory),
		Endpoints: a.api,
		Feed:      cfg.Feed,
		Stagger:   cfg.Delivery.Stagger,
		Clock:     opts.Clock,
		Logger:    log,
	})
	a.unlisten = append(a.unlisten, a.background.Listen(a.ctx))

	a.popup = NewPopup(a.bus.Endpoint(messaging.Popup), opts.Display, log)
	a.unlisten = append(a.unlisten, a.popup.Listen())

	ok = true
	return a, nil
}

// NewAPIClient builds the backend client from config. Item deliveries are
// paced by the page before they are relayed, so the client is unthrottled.
func NewAPIClient(cfg *config.Config, log logger.Logger) *api.Client {
	return api.NewClient(api.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.RequestTimeout,
		UserAgent: cfg.Backend.UserAgent,
		Logger:    log,
	})
}

// DeliveryTimeout bounds one relayed item: a backend request plus the
// messaging hop around it
func DeliveryTimeout(cfg *config.Config) time.Duration {
	return cfg.Backend.RequestTimeout + cfg.Messaging.Timeout
}

func newTransport(ctx context.Context, cfg *config.Config, client *api.Client, log logger.Logger) (delivery.Transport, func() error, error) {
	switch cfg.Delivery.Transport {
	case "", "http":
		return client, nil, nil
	case "amqp":
		amqpCfg := cfg.Delivery.AMQP
		pub, err := publisher.NewRabbitMQ(ctx, publisher.Config{
			URL:        amqpCfg.URL,
			Exchange:   amqpCfg.Exchange,
			RoutingKey: amqpCfg.RoutingKey,
			QueueName:  amqpCfg.Queue,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown delivery transport %q", cfg.Delivery.Transport)
}

// Auth returns the credential provider
func (a *App) Auth() *auth.Provider { return a.auth }

// Store returns persisted state
func (a *App) Store() *state.Store { return a.store }

// API returns the backend client
func (a *App) API() *api.Client { return a.api }

// SetDisplay changes where relayed run events are rendered
func (a *App) SetDisplay(d ui.Display) { a.popup.SetDisplay(d) }

// Sync starts a run from the popup and waits for its outcome. Cancelling
// ctx asks the page to stop and waits briefly for the cancelled summary.
func (a *App) Sync(ctx context.Context, data models.StartSyncData) (*models.CompleteData, error) {
	res, err := a.popup.Start(ctx, data)
	if err != nil {
		return nil, err
	}
	if !res.Started {
		return nil, errs.ErrRunActive
	}

	done, err := a.popup.Await(ctx, res.RunID)
	if ctx.Err() == nil {
		return done, err
	}

	grace, cancel := context.WithTimeout(context.Background(), 2*a.cfg.Messaging.Timeout)
	defer cancel()
	if err := a.popup.Stop(grace); err != nil {
		a.logger.WithError(err).Warn("Stop request failed")
	}
	if done, err := a.popup.Await(grace, res.RunID); err == nil {
		return done, nil
	}
	return nil, ctx.Err()
}

// Stop asks the active run to stop
func (a *App) Stop(ctx context.Context) error {
	return a.popup.Stop(ctx)
}

// Status answers GET_STATUS through the bus
func (a *App) Status(ctx context.Context) (models.StatusResult, error) {
	var out models.StatusResult
	resp, err := a.bus.Endpoint(messaging.Popup).Post(ctx, messaging.Background, models.MsgGetStatus, struct{}{})
	if err != nil {
		return out, err
	}
	err = resp.Decode(&out)
	return out, err
}

// Serve exposes the background to the companion frontend over the bridge
// until ctx ends. An active run is asked to stop on shutdown.
func (a *App) Serve(ctx context.Context, ready func(addr string)) error {
	srv := bridge.New(a.cfg.Bridge, a.bus.Endpoint(BridgeAddress), background.Version, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return err
		}
		if ready != nil {
			ready(srv.Addr())
		}
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Messaging.Timeout)
		defer cancel()
		st, err := a.Status(stopCtx)
		if err == nil && st.Active {
			_ = a.Stop(stopCtx)
		}
		return nil
	})
	return g.Wait()
}

// Close stops every context and releases the browser and transport
func (a *App) Close() {
	a.cancel()
	for _, fn := range a.unlisten {
		fn()
	}
	a.unlisten = nil
	if a.agents != nil {
		a.agents.Close()
		a.agents.Wait()
	}
	if a.background != nil {
		a.background.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Close failed")
		}
	}
	a.closers = nil
}
