package browser

import (
	"testing"

	"feedrelay/pkg/config"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
)

func TestSelectTab(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "sw", Type: "service_worker", URL: "https://social.example/in/me/recent-activity/all/"},
		{TargetID: "home", Type: "page", URL: "https://social.example/feed/"},
		{TargetID: "act", Type: "page", URL: "https://social.example/in/me/recent-activity/all/"},
	}

	got := selectTab(infos, "/recent-activity/")
	if assert.NotNil(t, got) {
		assert.Equal(t, target.ID("act"), got.TargetID)
	}

	assert.Nil(t, selectTab(infos, "/messaging/"))
	assert.Nil(t, selectTab(infos, ""))
}

func TestFindCookie(t *testing.T) {
	cookies := []*network.Cookie{
		{Name: "session", Value: ""},
		{Name: "theme", Value: "dark"},
		{Name: "session", Value: "tok-123"},
	}

	v, ok := findCookie(cookies, "session")
	assert.True(t, ok)
	assert.Equal(t, "tok-123", v)

	_, ok = findCookie(cookies, "missing")
	assert.False(t, ok)
}

func TestAllocatorOptions(t *testing.T) {
	base := len(allocatorOptions(config.BrowserConfig{}))
	withPaths := allocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium", UserData: "/tmp/profile"})
	assert.Equal(t, base+2, len(withPaths))
}
