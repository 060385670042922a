// Package background is the background context. It owns the credential,
// performs deliveries, discovers the activity tab, and relays run progress
// from the page to the popup.
package background

import (
	"context"
	"sync"
	"time"

	"feedrelay/pkg/auth"
	"feedrelay/pkg/config"
	"feedrelay/pkg/delivery"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"
	"feedrelay/pkg/state"

	"github.com/google/uuid"
)

// Version is reported to CHECK_EXTENSION
const Version = "1.0.0"

// Auth is the credential surface the background needs
type Auth interface {
	Status(ctx context.Context) auth.Status
	Login(token, userID, source string) error
	Logout() error
}

// Tabs finds or opens the activity page and returns its bus address. The
// page context must be listening when it returns.
type Tabs interface {
	OpenActivity(ctx context.Context, url, fragment string) (string, error)
}

// Store persists settings and stats
type Store interface {
	Put(key string, v interface{}) error
	Stats() (models.SyncStats, error)
	UpdateStats(fn func(*models.SyncStats)) (models.SyncStats, error)
}

// Lock guards against a second process running a sync
type Lock interface {
	Acquire() error
	Release() error
}

// Endpoints is updated when CONFIGURE carries a backend URL
type Endpoints interface {
	SetBaseURL(u string)
}

// Deps are the collaborators of a Service
type Deps struct {
	Endpoint  *messaging.Endpoint
	Auth      Auth
	Sender    delivery.Sender
	Tabs      Tabs
	Store     Store
	Lock      Lock
	Endpoints Endpoints
	Feed      config.FeedConfig
	Stagger   time.Duration
	Clock     func() time.Time
	Logger    logger.Logger
}

// Service handles every message addressed to the background
type Service struct {
	deps   Deps
	ep     *messaging.Endpoint
	now    func() time.Time
	logger logger.Logger

	mu     sync.Mutex
	ctx    context.Context
	active bool
	page   string
	run    *models.RunState
	wg     sync.WaitGroup
}

// New creates the service; call Listen to attach it to the bus
func New(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		deps:   deps,
		ep:     deps.Endpoint,
		now:    deps.Clock,
		logger: logger.OrDefault(deps.Logger).WithField("component", "background"),
		ctx:    context.Background(),
	}
}

// Listen registers handlers. Work outliving a single message, such as tab
// discovery, runs under ctx.
func (s *Service) Listen(ctx context.Context) func() {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	logger.LogComponentStart(s.logger, "background", nil)
	return s.ep.OnReceive(s.Handle)
}

// Wait blocks until background work started by START_SYNC has returned
func (s *Service) Wait() {
	s.wg.Wait()
}

// Handle dispatches one message
func (s *Service) Handle(ctx context.Context, msg messaging.Message) (interface{}, error) {
	switch msg.Type {
	case models.MsgStartSync:
		var data models.StartSyncData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		return s.StartSync(data)

	case models.MsgCheckExtension:
		return models.CheckExtensionResult{Installed: true, Version: Version}, nil

	case models.MsgConfigure:
		var data models.ConfigureData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		return s.configure(data)

	case models.MsgAuthSuccess:
		var data models.AuthSuccessData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		if err := s.deps.Auth.Login(data.AccessToken, data.UserID, "frontend"); err != nil {
			return nil, err
		}
		return models.Ack{OK: true, Message: "authenticated"}, nil

	case models.MsgAuthLogout:
		if err := s.deps.Auth.Logout(); err != nil {
			return nil, err
		}
		return models.Ack{OK: true, Message: "logged out"}, nil

	case models.MsgGetStatus:
		return s.Status(ctx), nil

	case models.MsgStopScraping:
		return s.stop(ctx)

	case models.MsgProcessSingleItem:
		var data models.ProcessItemData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		return s.processItem(ctx, data), nil

	case models.MsgScrapingProgress:
		var data models.ProgressData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		s.onProgress(data)
		s.forward(ctx, msg)
		return models.Ack{OK: true}, nil

	case models.MsgScrapingComplete:
		var data models.CompleteData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		s.onComplete(data)
		s.forward(ctx, msg)
		return models.Ack{OK: true}, nil

	case models.MsgScrapingError:
		var data models.ErrorData
		if err := msg.Decode(&data); err != nil {
			return nil, err
		}
		s.onError(data)
		s.forward(ctx, msg)
		return models.Ack{OK: true}, nil
	}

	return nil, nil
}

// StartSync reserves the run and hands tab discovery and START_SCRAPING to
// a goroutine, so the caller is answered before the page has loaded
func (s *Service) StartSync(data models.StartSyncData) (models.StartSyncResult, error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return models.StartSyncResult{}, errs.ErrRunActive
	}
	if s.deps.Lock != nil {
		if err := s.deps.Lock.Acquire(); err != nil {
			s.mu.Unlock()
			return models.StartSyncResult{}, err
		}
	}

	runID := uuid.NewString()
	s.active = true
	s.page = ""
	s.run = models.NewRunState(runID, s.now())
	ctx := s.ctx
	s.mu.Unlock()

	url := data.ActivityURL
	if url == "" {
		url = s.deps.Feed.ActivityURL
	}
	cfg := s.scrapeConfig(runID, data)

	s.logger.InfoWithFields("Sync run started", map[string]interface{}{
		"run_id": runID,
		"url":    url,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.launch(ctx, url, cfg)
	}()

	return models.StartSyncResult{Started: true, RunID: runID}, nil
}

func (s *Service) scrapeConfig(runID string, data models.StartSyncData) models.ScrapeConfig {
	feed := s.deps.Feed
	maxScrolls := feed.MaxScrollAttempts
	if data.MaxScrolls > 0 {
		maxScrolls = data.MaxScrolls
	}
	return models.ScrapeConfig{
		RunID:             runID,
		URLFragment:       feed.URLFragment,
		ItemSelector:      feed.ItemSelector,
		ContainerSelector: feed.ContainerSelector,
		MaxScrollAttempts: maxScrolls,
		MaxEmptyPasses:    feed.MaxEmptyPasses,
		SettleDelay:       feed.SettleDelay,
		Stagger:           s.deps.Stagger,
	}
}

func (s *Service) launch(ctx context.Context, url string, cfg models.ScrapeConfig) {
	addr, err := s.deps.Tabs.OpenActivity(ctx, url, cfg.URLFragment)
	if err == nil {
		s.mu.Lock()
		s.page = addr
		s.mu.Unlock()
		_, err = s.ep.Post(ctx, addr, models.MsgStartScraping, cfg)
	}
	if err == nil {
		return
	}

	kind := errs.TypeOf(err)
	if kind != errs.ErrorTypeAuth {
		kind = errs.ErrorTypeNavigation
	}
	s.logger.WithError(err).ErrorWithFields("Could not start scraping", map[string]interface{}{"run_id": cfg.RunID})

	msg, mErr := messaging.NewMessage(models.MsgScrapingError, models.ErrorData{
		RunID:    cfg.RunID,
		Kind:     string(kind),
		Error:    err.Error(),
		Recovery: navigationHelp(url),
	})
	if mErr != nil {
		return
	}
	// route through Handle so state and popup see it like a page-reported error
	if _, hErr := s.Handle(ctx, msg); hErr != nil {
		s.logger.WithError(hErr).Warn("Failed to record start failure")
	}
}

func (s *Service) configure(data models.ConfigureData) (models.Ack, error) {
	if data.AuthToken != "" {
		if err := s.deps.Auth.Login(data.AuthToken, data.UserID, "configure"); err != nil {
			return models.Ack{}, err
		}
	}
	if data.BackendURL != "" && s.deps.Endpoints != nil {
		s.deps.Endpoints.SetBaseURL(data.BackendURL)
	}
	if s.deps.Store != nil && (data.FrontendURL != "" || data.BackendURL != "") {
		err := s.deps.Store.Put(state.KeySettings, state.Settings{
			FrontendURL: data.FrontendURL,
			BackendURL:  data.BackendURL,
			UpdatedAt:   s.now(),
		})
		if err != nil {
			return models.Ack{}, err
		}
	}
	return models.Ack{OK: true, Message: "configured"}, nil
}

// Status answers GET_STATUS
func (s *Service) Status(ctx context.Context) models.StatusResult {
	st := s.deps.Auth.Status(ctx)

	s.mu.Lock()
	out := models.StatusResult{
		Authenticated: st.Authenticated,
		Reason:        st.Reason,
		UserID:        st.UserID,
		Active:        s.active,
	}
	if s.run != nil {
		run := *s.run
		out.Run = &run
	}
	s.mu.Unlock()

	if s.deps.Store != nil {
		if stats, err := s.deps.Store.Stats(); err == nil {
			out.Stats = stats
		} else {
			s.logger.WithError(err).Warn("Failed to read stats")
		}
	}
	return out
}

func (s *Service) stop(ctx context.Context) (models.Ack, error) {
	s.mu.Lock()
	page, active := s.page, s.active
	s.mu.Unlock()

	if !active || page == "" {
		return models.Ack{OK: false, Message: "no active run"}, nil
	}
	if _, err := s.ep.Post(ctx, page, models.MsgStopScraping, struct{}{}); err != nil {
		return models.Ack{}, err
	}
	return models.Ack{OK: true, Message: "stopping"}, nil
}

func (s *Service) processItem(ctx context.Context, data models.ProcessItemData) models.ProcessItemResult {
	start := time.Now()
	result, err := s.deps.Sender.Send(ctx, data.Item)
	logger.LogDelivery(s.logger, data.Item.ID, err == nil, err, time.Since(start))

	if err != nil {
		return models.ProcessItemResult{
			ItemID: data.Item.ID,
			Error:  err.Error(),
			Kind:   string(errs.TypeOf(err)),
		}
	}
	return models.ProcessItemResult{Success: true, ItemID: data.Item.ID, Result: result}
}

func (s *Service) onProgress(d models.ProgressData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil || s.run.ID != d.RunID || s.run.Phase.Terminal() {
		return
	}
	if d.Phase != s.run.Phase {
		_ = s.run.Advance(d.Phase, s.now())
	}
	s.run.TotalCollected = d.TotalCollected
	s.run.TotalProcessed = d.TotalProcessed
	s.run.TotalSuccessful = d.TotalSuccessful
	s.run.TotalFailed = d.TotalFailed
}

func (s *Service) onComplete(d models.CompleteData) {
	s.mu.Lock()
	if s.run != nil && s.run.ID == d.RunID {
		s.run.TotalCollected = d.TotalCollected
		s.run.TotalProcessed = d.TotalProcessed
		s.run.TotalSuccessful = d.TotalSuccessful
		s.run.TotalFailed = d.TotalFailed
		_ = s.run.Advance(models.PhaseCompleted, s.now())
	}
	s.mu.Unlock()

	s.finish(d.RunID, func(st *models.SyncStats) { st.AddRun(d, s.now()) })
}

func (s *Service) onError(d models.ErrorData) {
	s.mu.Lock()
	if s.run != nil && s.run.ID == d.RunID {
		s.run.Fail(d.Error, s.now())
	}
	s.mu.Unlock()

	s.finish(d.RunID, func(st *models.SyncStats) { st.AddFailure(d.RunID, s.now()) })
}

// finish releases the run slot and records stats once per run
func (s *Service) finish(runID string, record func(*models.SyncStats)) {
	s.mu.Lock()
	if !s.active || s.run == nil || s.run.ID != runID {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.page = ""
	s.mu.Unlock()

	if s.deps.Lock != nil {
		if err := s.deps.Lock.Release(); err != nil {
			s.logger.WithError(err).Warn("Failed to release run lock")
		}
	}
	if s.deps.Store != nil {
		if _, err := s.deps.Store.UpdateStats(record); err != nil {
			s.logger.WithError(err).Warn("Failed to persist stats")
		}
	}
}

// forward relays page events to the popup; a closed popup is not an error
func (s *Service) forward(ctx context.Context, msg messaging.Message) {
	out := messaging.Message{ID: msg.ID, Type: msg.Type, Data: msg.Data}
	if err := s.ep.Notify(ctx, messaging.Popup, out); err != nil {
		s.logger.WithError(err).DebugWithFields("Popup did not take update", map[string]interface{}{"type": msg.Type})
	}
}
