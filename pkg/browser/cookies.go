package browser

import (
	"context"

	"feedrelay/pkg/auth"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// CookieSource reads cookies set by the companion frontend
type CookieSource struct {
	browser *Browser
	origin  string
}

var _ auth.CookieSource = (*CookieSource)(nil)

// NewCookieSource reads cookies scoped to origin
func NewCookieSource(b *Browser, origin string) *CookieSource {
	return &CookieSource{browser: b, origin: origin}
}

// ReadCookie returns the named cookie's value, or auth.ErrCredentialsNotFound
func (c *CookieSource) ReadCookie(ctx context.Context, name string) (string, error) {
	var cookies []*network.Cookie
	err := run(ctx, c.browser.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{c.origin}).Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}

	if value, ok := findCookie(cookies, name); ok {
		return value, nil
	}
	return "", auth.ErrCredentialsNotFound
}

func findCookie(cookies []*network.Cookie, name string) (string, bool) {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
