package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	calls int32
	err   error
	user  *models.User
}

func (f *fakeVerifier) Me(ctx context.Context, token string) (*models.User, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeCookies struct{ token string }

func (f fakeCookies) ReadCookie(ctx context.Context, name string) (string, error) {
	if f.token == "" {
		return "", ErrCredentialsNotFound
	}
	return f.token, nil
}

func newProvider(t *testing.T, store CredentialStore, v Verifier, clock *fakeClock) *Provider {
	t.Helper()
	return NewProvider(store, v, ProviderOptions{Clock: clock.Now, Logger: logger.NewNopLogger()})
}

func TestStatusFreshnessWindow(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	store := NewMemoryStore(&models.AuthConfig{Token: "tok", UserID: "u1", LastValidatedAt: t0})
	v := &fakeVerifier{user: &models.User{ID: "u1"}}
	p := newProvider(t, store, v, clock)

	clock.Advance(4 * time.Minute)
	st := p.Status(context.Background())
	assert.True(t, st.Authenticated)
	assert.Equal(t, "tok", st.Token)
	assert.Equal(t, int32(0), atomic.LoadInt32(&v.calls), "fresh credential must not be rechecked")

	clock.Advance(2 * time.Minute)
	st = p.Status(context.Background())
	assert.True(t, st.Authenticated)
	assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))

	// the successful check refreshed the window
	clock.Advance(time.Minute)
	p.Status(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))
}

func TestStatusUnauthorizedClearsCredential(t *testing.T) {
	for _, code := range []int{401, 403} {
		clock := &fakeClock{now: time.Now()}
		store := NewMemoryStore(&models.AuthConfig{Token: "tok"})
		v := &fakeVerifier{err: errs.WithCode(errs.ErrorTypeAuth, code, "invalid token")}
		p := newProvider(t, store, v, clock)

		st := p.Status(context.Background())
		assert.False(t, st.Authenticated)
		assert.Equal(t, ReasonExpired, st.Reason)

		_, err := store.Load()
		assert.ErrorIs(t, err, ErrCredentialsNotFound, "status %d", code)
		assert.Nil(t, p.Current(context.Background()))
	}
}

func TestStatusServerErrorKeepsCredential(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(&models.AuthConfig{Token: "tok"})
	v := &fakeVerifier{err: errs.WithCode(errs.ErrorTypeServerError, 500, "boom")}
	p := newProvider(t, store, v, clock)

	st := p.Status(context.Background())
	assert.False(t, st.Authenticated)
	assert.Equal(t, ReasonNetworkError, st.Reason)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Token)

	v.err = errs.New(errs.ErrorTypeNetwork, "connection refused")
	st = p.Status(context.Background())
	assert.Equal(t, ReasonNetworkError, st.Reason)
	assert.NotNil(t, p.Current(context.Background()))
}

func TestStatusNotConfigured(t *testing.T) {
	p := newProvider(t, NewMemoryStore(nil), &fakeVerifier{}, &fakeClock{now: time.Now()})
	st := p.Status(context.Background())
	assert.False(t, st.Authenticated)
	assert.Equal(t, ReasonNotConfigured, st.Reason)
}

func TestLoginIsTrustedWithoutRemoteCheck(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(nil)
	v := &fakeVerifier{}
	p := newProvider(t, store, v, clock)

	require.NoError(t, p.Login("fresh", "u9", "frontend"))
	st := p.Status(context.Background())
	assert.True(t, st.Authenticated)
	assert.Equal(t, "u9", st.UserID)
	assert.Equal(t, int32(0), atomic.LoadInt32(&v.calls))
	assert.Equal(t, 1, store.Saves)

	require.NoError(t, p.Logout())
	assert.False(t, p.Status(context.Background()).Authenticated)
	assert.Error(t, p.Login("", "", "frontend"))
}

func TestCookieCredentialIsValidatedAndPersisted(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(nil)
	v := &fakeVerifier{user: &models.User{ID: "from-me"}}
	p := NewProvider(store, v, ProviderOptions{
		Clock:   clock.Now,
		Cookies: fakeCookies{token: "cookie-token"},
		Logger:  logger.NewNopLogger(),
	})

	st := p.Status(context.Background())
	require.True(t, st.Authenticated)
	assert.Equal(t, "cookie-token", st.Token)
	assert.Equal(t, "from-me", st.UserID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "cookie", saved.Source)
}

func TestConcurrentStatusSharesOneCheck(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	v := &fakeVerifier{user: &models.User{ID: "u1"}}
	p := newProvider(t, NewMemoryStore(&models.AuthConfig{Token: "tok"}), v, clock)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Status(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))
}

func TestInvalidateClearsRejectedToken(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	store := NewMemoryStore(&models.AuthConfig{Token: "tok", UserID: "u1", LastValidatedAt: t0})
	v := &fakeVerifier{user: &models.User{ID: "u1"}}
	p := newProvider(t, store, v, clock)

	require.True(t, p.Status(context.Background()).Authenticated)

	p.Invalidate("tok")
	st := p.Status(context.Background())
	assert.False(t, st.Authenticated)
	assert.Equal(t, ReasonNotConfigured, st.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&v.calls))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestInvalidateKeepsNewerToken(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	p := newProvider(t, NewMemoryStore(nil), &fakeVerifier{}, clock)
	require.NoError(t, p.Login("fresh", "u1", "frontend"))

	p.Invalidate("stale")
	st := p.Status(context.Background())
	assert.True(t, st.Authenticated)
	assert.Equal(t, "fresh", st.Token)
}
