package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedrelay/pkg/config"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler messaging.Handler) *httptest.Server {
	t.Helper()
	bus := messaging.NewBus(messaging.DefaultOptions())
	if handler != nil {
		bus.Endpoint(messaging.Background).OnReceive(handler)
	}
	s := New(config.BridgeConfig{
		Listen:         "127.0.0.1:0",
		AllowedOrigins: []string{"http://localhost:3000/"},
	}, bus.Endpoint("bridge"), "1.0.0", logger.NewNopLogger())

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postEnvelope(t *testing.T, url, origin, body string) (*http.Response, Reply) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/external", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var reply Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return resp, reply
}

func background(ctx context.Context, msg messaging.Message) (interface{}, error) {
	switch msg.Type {
	case models.MsgCheckExtension:
		return models.CheckExtensionResult{Installed: true, Version: "1.0.0"}, nil
	case models.MsgStartSync:
		return nil, errs.ErrRunActive
	case models.MsgAuthSuccess:
		return nil, errs.New(errs.ErrorTypeAuth, "token rejected")
	}
	return nil, nil
}

func TestExternalForwardsToBackground(t *testing.T) {
	srv := newTestServer(t, background)

	resp, reply := postEnvelope(t, srv.URL, "http://localhost:3000", `{"type":"CHECK_EXTENSION","data":{}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	require.True(t, reply.Success)

	var result models.CheckExtensionResult
	require.NoError(t, reply.Data.Decode(&result))
	assert.True(t, result.Installed)
}

func TestExternalErrors(t *testing.T) {
	srv := newTestServer(t, background)

	tests := []struct {
		name   string
		origin string
		body   string
		status int
		kind   string
	}{
		{name: "foreign origin", origin: "https://evil.example", body: `{"type":"CHECK_EXTENSION"}`, status: http.StatusForbidden},
		{name: "bad json", body: `{"type":`, status: http.StatusBadRequest, kind: "parsing"},
		{name: "internal type", body: `{"type":"PROCESS_SINGLE_ITEM"}`, status: http.StatusBadRequest},
		{name: "run active", body: `{"type":"START_SYNC"}`, status: http.StatusConflict, kind: "run_active"},
		{name: "auth", body: `{"type":"AUTH_SUCCESS","data":{"accessToken":"x"}}`, status: http.StatusUnauthorized, kind: "auth"},
		{name: "nobody answers", body: `{"type":"GET_STATUS"}`, status: http.StatusServiceUnavailable, kind: "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, reply := postEnvelope(t, srv.URL, tt.origin, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.False(t, reply.Success)
			assert.NotEmpty(t, reply.Error)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, reply.Kind)
			}
		})
	}
}

func TestPreflightAndHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/external", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}
