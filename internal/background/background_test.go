package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedrelay/pkg/auth"
	"feedrelay/pkg/config"
	"feedrelay/pkg/delivery"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"
	"feedrelay/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu     sync.Mutex
	token  string
	userID string
	source string
}

func (f *fakeAuth) Status(context.Context) auth.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		return auth.Status{Reason: auth.ReasonNotConfigured}
	}
	return auth.Status{Authenticated: true, Token: f.token, UserID: f.userID}
}

func (f *fakeAuth) Login(token, userID, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token, f.userID, f.source = token, userID, source
	return nil
}

func (f *fakeAuth) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token, f.userID = "", ""
	return nil
}

type fakeTabs struct {
	addr string
	err  error
}

func (f fakeTabs) OpenActivity(ctx context.Context, url, fragment string) (string, error) {
	return f.addr, f.err
}

type fakeEndpoints struct{ url string }

func (f *fakeEndpoints) SetBaseURL(u string) { f.url = u }

// listener records every message an endpoint receives
type listener struct {
	mu   sync.Mutex
	msgs []messaging.Message
	seen chan string
}

func listen(bus *messaging.Bus, addr string) *listener {
	l := &listener{seen: make(chan string, 16)}
	bus.Endpoint(addr).OnReceive(func(ctx context.Context, msg messaging.Message) (interface{}, error) {
		l.mu.Lock()
		l.msgs = append(l.msgs, msg)
		l.mu.Unlock()
		l.seen <- msg.Type
		return models.Ack{OK: true}, nil
	})
	return l
}

func (l *listener) await(t *testing.T, typ string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case got := <-l.seen:
			if got == typ {
				return
			}
		case <-timeout:
			t.Fatalf("no %s received", typ)
		}
	}
}

type harness struct {
	bus       *messaging.Bus
	svc       *Service
	auth      *fakeAuth
	store     *state.Store
	endpoints *fakeEndpoints
	client    *messaging.Endpoint
}

func newHarness(t *testing.T, tabs Tabs, sender delivery.Sender) *harness {
	t.Helper()
	bus := messaging.NewBus(messaging.DefaultOptions())
	store, err := state.Open(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	h := &harness{bus: bus, auth: &fakeAuth{}, store: store, endpoints: &fakeEndpoints{}}
	h.svc = New(Deps{
		Endpoint:  bus.Endpoint(messaging.Background),
		Auth:      h.auth,
		Sender:    sender,
		Tabs:      tabs,
		Store:     store,
		Lock:      state.NewRunLock(t.TempDir()),
		Endpoints: h.endpoints,
		Feed:      config.DefaultConfig().Feed,
		Logger:    logger.NewNopLogger(),
	})
	t.Cleanup(h.svc.Listen(context.Background()))
	h.client = bus.Endpoint("external")
	return h
}

func (h *harness) post(t *testing.T, typ string, data interface{}, out interface{}) error {
	t.Helper()
	resp, err := h.client.Post(context.Background(), messaging.Background, typ, data)
	if err != nil {
		return err
	}
	if out != nil {
		require.NoError(t, resp.Decode(out))
	}
	return nil
}

func TestCheckExtension(t *testing.T) {
	h := newHarness(t, fakeTabs{}, nil)

	var res models.CheckExtensionResult
	require.NoError(t, h.post(t, models.MsgCheckExtension, struct{}{}, &res))
	assert.True(t, res.Installed)
	assert.Equal(t, Version, res.Version)
}

func TestConfigureAndAuthMessages(t *testing.T) {
	h := newHarness(t, fakeTabs{}, nil)

	var ack models.Ack
	require.NoError(t, h.post(t, models.MsgConfigure, models.ConfigureData{
		AuthToken:   "tok-1",
		UserID:      "u1",
		FrontendURL: "http://localhost:3000",
		BackendURL:  "http://api.local",
	}, &ack))
	assert.True(t, ack.OK)
	assert.Equal(t, "configure", h.auth.source)
	assert.Equal(t, "http://api.local", h.endpoints.url)

	settings, err := h.store.Settings()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", settings.FrontendURL)

	require.NoError(t, h.post(t, models.MsgAuthSuccess, models.AuthSuccessData{AccessToken: "tok-2", UserID: "u2"}, &ack))
	var status models.StatusResult
	require.NoError(t, h.post(t, models.MsgGetStatus, struct{}{}, &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, "u2", status.UserID)

	require.NoError(t, h.post(t, models.MsgAuthLogout, struct{}{}, &ack))
	require.NoError(t, h.post(t, models.MsgGetStatus, struct{}{}, &status))
	assert.False(t, status.Authenticated)
	assert.Equal(t, auth.ReasonNotConfigured, status.Reason)
}

func TestProcessSingleItem(t *testing.T) {
	sender := delivery.SenderFunc(func(ctx context.Context, item models.CollectedItem) (string, error) {
		if item.ID == "bad" {
			return "", errs.New(errs.ErrorTypeAuth, "authentication required (expired)")
		}
		return "queued", nil
	})
	h := newHarness(t, fakeTabs{}, sender)

	var res models.ProcessItemResult
	require.NoError(t, h.post(t, models.MsgProcessSingleItem, models.ProcessItemData{Item: models.CollectedItem{ID: "ok"}}, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "queued", res.Result)

	require.NoError(t, h.post(t, models.MsgProcessSingleItem, models.ProcessItemData{Item: models.CollectedItem{ID: "bad"}}, &res))
	assert.False(t, res.Success)
	assert.Equal(t, "bad", res.ItemID)
	assert.Equal(t, string(errs.ErrorTypeAuth), res.Kind)
}

func TestStartSyncLifecycle(t *testing.T) {
	pageAddr := messaging.PageAddress("tab-1")
	h := newHarness(t, fakeTabs{addr: pageAddr}, nil)
	page := listen(h.bus, pageAddr)
	popup := listen(h.bus, messaging.Popup)

	var started models.StartSyncResult
	require.NoError(t, h.post(t, models.MsgStartSync, models.StartSyncData{MaxScrolls: 5}, &started))
	assert.True(t, started.Started)
	assert.NotEmpty(t, started.RunID)
	page.await(t, models.MsgStartScraping)

	var cfg models.ScrapeConfig
	page.mu.Lock()
	require.NoError(t, page.msgs[0].Decode(&cfg))
	page.mu.Unlock()
	assert.Equal(t, started.RunID, cfg.RunID)
	assert.Equal(t, 5, cfg.MaxScrollAttempts)
	assert.Equal(t, "/recent-activity/", cfg.URLFragment)

	err := h.post(t, models.MsgStartSync, models.StartSyncData{}, nil)
	assert.ErrorIs(t, err, errs.ErrRunActive)

	var ack models.Ack
	require.NoError(t, h.post(t, models.MsgStopScraping, struct{}{}, &ack))
	assert.True(t, ack.OK)
	page.await(t, models.MsgStopScraping)

	pageEp := h.bus.Endpoint(pageAddr)
	_, err = pageEp.Post(context.Background(), messaging.Background, models.MsgScrapingProgress, models.ProgressData{
		RunID: started.RunID, Phase: models.PhaseQueueing, TotalCollected: 4, TotalProcessed: 2, TotalSuccessful: 2,
	})
	require.NoError(t, err)
	popup.await(t, models.MsgScrapingProgress)

	var status models.StatusResult
	require.NoError(t, h.post(t, models.MsgGetStatus, struct{}{}, &status))
	assert.True(t, status.Active)
	require.NotNil(t, status.Run)
	assert.Equal(t, 2, status.Run.TotalProcessed)

	done := models.CompleteData{RunID: started.RunID, TotalCollected: 4, TotalProcessed: 4, TotalSuccessful: 3, TotalFailed: 1}
	_, err = pageEp.Post(context.Background(), messaging.Background, models.MsgScrapingComplete, done)
	require.NoError(t, err)
	popup.await(t, models.MsgScrapingComplete)

	// a duplicate completion is not counted twice
	_, err = pageEp.Post(context.Background(), messaging.Background, models.MsgScrapingComplete, done)
	require.NoError(t, err)

	require.NoError(t, h.post(t, models.MsgGetStatus, struct{}{}, &status))
	assert.False(t, status.Active)
	assert.Equal(t, models.PhaseCompleted, status.Run.Phase)
	assert.Equal(t, 1, status.Stats.TotalRuns)
	assert.Equal(t, 3, status.Stats.TotalSuccessful)

	require.NoError(t, h.post(t, models.MsgStartSync, models.StartSyncData{}, &started), "slot is free again")
	h.svc.Wait()
}

func TestStartSyncTabFailure(t *testing.T) {
	h := newHarness(t, fakeTabs{err: errors.New("page did not load")}, nil)
	popup := listen(h.bus, messaging.Popup)

	var started models.StartSyncResult
	require.NoError(t, h.post(t, models.MsgStartSync, models.StartSyncData{}, &started))
	popup.await(t, models.MsgScrapingError)
	h.svc.Wait()

	popup.mu.Lock()
	var data models.ErrorData
	require.NoError(t, popup.msgs[len(popup.msgs)-1].Decode(&data))
	popup.mu.Unlock()
	assert.Equal(t, string(errs.ErrorTypeNavigation), data.Kind)
	assert.Contains(t, data.Recovery, "Activity")

	var status models.StatusResult
	require.NoError(t, h.post(t, models.MsgGetStatus, struct{}{}, &status))
	assert.False(t, status.Active)
	assert.Equal(t, 1, status.Stats.FailedRuns)
	assert.Equal(t, models.PhaseError, status.Run.Phase)
}

func TestStopWithoutRun(t *testing.T) {
	h := newHarness(t, fakeTabs{}, nil)
	var ack models.Ack
	require.NoError(t, h.post(t, models.MsgStopScraping, struct{}{}, &ack))
	assert.False(t, ack.OK)
}
