package delivery

import (
	"context"
	"errors"
	"testing"

	"feedrelay/pkg/auth"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuth auth.Status

func (s staticAuth) Status(context.Context) auth.Status { return auth.Status(s) }
func (s staticAuth) Invalidate(string)                  {}

// revocableAuth hands out token until it is invalidated
type revocableAuth struct {
	token       string
	invalidated []string
}

func (r *revocableAuth) Status(context.Context) auth.Status {
	if r.token == "" {
		return auth.Status{Reason: auth.ReasonNotConfigured}
	}
	return auth.Status{Authenticated: true, Token: r.token}
}

func (r *revocableAuth) Invalidate(token string) {
	r.invalidated = append(r.invalidated, token)
	if r.token == token {
		r.token = ""
	}
}

type fakeTransport struct {
	calls  int
	token  string
	userID string
	err    error
}

func (f *fakeTransport) Deliver(ctx context.Context, token, userID string, item models.CollectedItem) (string, error) {
	f.calls++
	f.token, f.userID = token, userID
	if f.err != nil {
		return "", f.err
	}
	return "queued:" + item.ID, nil
}

func TestGatewayDelivers(t *testing.T) {
	tr := &fakeTransport{}
	g := NewGateway(staticAuth{Authenticated: true, Token: "tok", UserID: "u1"}, tr, logger.NewNopLogger())

	res, err := g.Send(context.Background(), models.CollectedItem{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "queued:a", res)
	assert.Equal(t, "tok", tr.token)
	assert.Equal(t, "u1", tr.userID)
}

func TestGatewayRejectsWithoutAuth(t *testing.T) {
	tr := &fakeTransport{}
	g := NewGateway(staticAuth{Reason: auth.ReasonExpired}, tr, logger.NewNopLogger())

	_, err := g.Send(context.Background(), models.CollectedItem{ID: "a"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Contains(t, err.Error(), "expired")
	assert.Equal(t, 0, tr.calls)
}

func TestGatewayPassesTransportErrors(t *testing.T) {
	tr := &fakeTransport{err: errors.New("connection reset")}
	g := NewGateway(staticAuth{Authenticated: true, Token: "tok"}, tr, logger.NewNopLogger())

	_, err := g.Send(context.Background(), models.CollectedItem{ID: "a"})
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 1, tr.calls)
}

func TestGatewayInvalidatesRejectedCredential(t *testing.T) {
	a := &revocableAuth{token: "tok"}
	tr := &fakeTransport{err: errs.WithCode(errs.ErrorTypeAuth, 401, "token expired")}
	g := NewGateway(a, tr, logger.NewNopLogger())

	_, err := g.Send(context.Background(), models.CollectedItem{ID: "a"})
	require.Error(t, err)
	assert.Equal(t, []string{"tok"}, a.invalidated)

	_, err = g.Send(context.Background(), models.CollectedItem{ID: "b"})
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Equal(t, 1, tr.calls, "rejected token must not be reused")
}

func TestGatewayKeepsCredentialOnServerError(t *testing.T) {
	a := &revocableAuth{token: "tok"}
	tr := &fakeTransport{err: errs.WithCode(errs.ErrorTypeServerError, 500, "boom")}
	g := NewGateway(a, tr, logger.NewNopLogger())

	_, err := g.Send(context.Background(), models.CollectedItem{ID: "a"})
	require.Error(t, err)
	assert.Empty(t, a.invalidated)
	assert.Equal(t, "tok", a.token)
}
