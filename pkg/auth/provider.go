package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
)

// Reasons reported by Status when not authenticated
const (
	ReasonNotConfigured = "not-configured"
	ReasonExpired       = "expired"
	ReasonNetworkError  = "network-error"
)

// DefaultValidationInterval is how long a checked credential is trusted
const DefaultValidationInterval = 5 * time.Minute

// Verifier checks a token against the backend's "who am I" endpoint
type Verifier interface {
	Me(ctx context.Context, token string) (*models.User, error)
}

// CookieSource reads a cookie from the companion frontend's origin
type CookieSource interface {
	ReadCookie(ctx context.Context, name string) (string, error)
}

// Status is the answer to "is the user authenticated"
type Status struct {
	Authenticated bool   `json:"authenticated"`
	Token         string `json:"-"`
	UserID        string `json:"userId,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// ProviderOptions configures a Provider
type ProviderOptions struct {
	ValidationInterval time.Duration
	Cookies            CookieSource
	CookieName         string
	Clock              func() time.Time
	Logger             logger.Logger
}

// Provider answers auth status from a cached credential, revalidating it
// remotely once the freshness window has passed. It never logs in
// interactively.
type Provider struct {
	mu       sync.Mutex
	store    CredentialStore
	verifier Verifier
	cookies  CookieSource
	cookie   string
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger

	cached *models.AuthConfig
	loaded bool
}

// NewProvider creates a Provider backed by store and verifier
func NewProvider(store CredentialStore, verifier Verifier, opts ProviderOptions) *Provider {
	if opts.ValidationInterval <= 0 {
		opts.ValidationInterval = DefaultValidationInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CookieName == "" {
		opts.CookieName = "access_token"
	}
	return &Provider{
		store:    store,
		verifier: verifier,
		cookies:  opts.Cookies,
		cookie:   opts.CookieName,
		interval: opts.ValidationInterval,
		now:      opts.Clock,
		logger:   logger.OrDefault(opts.Logger).WithField("component", "auth"),
	}
}

// Status resolves the current credential. Calls are serialized so
// concurrent deliveries share one remote check.
func (p *Provider) Status(ctx context.Context) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.current(ctx)
	if !cfg.Valid() {
		return Status{Reason: ReasonNotConfigured}
	}

	now := p.now()
	if !cfg.LastValidatedAt.IsZero() && now.Sub(cfg.LastValidatedAt) < p.interval {
		return Status{Authenticated: true, Token: cfg.Token, UserID: cfg.UserID}
	}

	user, err := p.verifier.Me(ctx, cfg.Token)
	if err != nil {
		if errs.IsAuthRejection(err) {
			p.logger.WarnWithFields("Credential rejected by backend", map[string]interface{}{
				"status_code": errs.CodeOf(err),
				"source":      cfg.Source,
			})
			p.forget()
			return Status{Reason: ReasonExpired}
		}

		p.logger.WithError(err).Warn("Credential check failed, keeping cached credential")
		return Status{Reason: ReasonNetworkError, UserID: cfg.UserID}
	}

	cfg.LastValidatedAt = now
	if user != nil && user.ID != "" {
		cfg.UserID = user.ID
	}
	p.persist(cfg)

	return Status{Authenticated: true, Token: cfg.Token, UserID: cfg.UserID}
}

// Login records a credential delivered by the companion frontend. It is
// trusted for one freshness window without a remote check.
func (p *Provider) Login(token, userID, source string) error {
	if token == "" {
		return ErrInvalidCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := &models.AuthConfig{
		Token:           token,
		UserID:          userID,
		LastValidatedAt: p.now(),
		Source:          source,
	}
	p.cached = cfg
	p.loaded = true

	if err := p.store.Save(cfg); err != nil {
		return err
	}
	p.logger.InfoWithFields("Credential stored", map[string]interface{}{
		"user_id": userID,
		"source":  source,
	})
	return nil
}

// Logout clears the cached and persisted credential
func (p *Provider) Logout() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forget()
}

// Invalidate drops token after the backend rejected it. A credential
// stored since then is left alone.
func (p *Provider) Invalidate(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == nil || p.cached.Token != token {
		return
	}
	p.logger.WarnWithFields("Credential rejected during delivery", map[string]interface{}{
		"source": p.cached.Source,
	})
	if err := p.forget(); err != nil {
		p.logger.WithError(err).Warn("Could not clear rejected credential")
	}
}

// Current returns a copy of the cached credential, or nil
func (p *Provider) Current(ctx context.Context) *models.AuthConfig {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.current(ctx)
	if !cfg.Valid() {
		return nil
	}
	out := *cfg
	return &out
}

func (p *Provider) current(ctx context.Context) *models.AuthConfig {
	if p.loaded && p.cached.Valid() {
		return p.cached
	}
	p.loaded = true

	if cfg, err := p.store.Load(); err == nil && cfg.Valid() {
		p.cached = cfg
		return cfg
	}

	if p.cookies != nil {
		token, err := p.cookies.ReadCookie(ctx, p.cookie)
		if err == nil && token != "" {
			p.logger.Debug("Using credential from frontend cookie")
			p.cached = &models.AuthConfig{Token: token, Source: "cookie"}
			return p.cached
		}
	}

	p.cached = nil
	return nil
}

func (p *Provider) persist(cfg *models.AuthConfig) {
	p.cached = cfg
	if err := p.store.Save(cfg); err != nil {
		p.logger.WithError(err).Debug("Could not persist refreshed credential")
	}
}

func (p *Provider) forget() error {
	p.cached = nil
	p.loaded = true
	err := p.store.Clear()
	if errors.Is(err, ErrCredentialsNotFound) {
		return nil
	}
	return err
}
