package delivery

import (
	"context"
	"time"

	"feedrelay/pkg/auth"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
)

// Transport delivers one item with a bearer token. It makes one attempt
// and never retries.
type Transport interface {
	Deliver(ctx context.Context, token, userID string, item models.CollectedItem) (string, error)
}

// AuthSource reports the current credential and drops one the backend
// has refused
type AuthSource interface {
	Status(ctx context.Context) auth.Status
	Invalidate(token string)
}

// Sender settles one item, returning a result string on success
type Sender interface {
	Send(ctx context.Context, item models.CollectedItem) (string, error)
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, item models.CollectedItem) (string, error)

func (f SenderFunc) Send(ctx context.Context, item models.CollectedItem) (string, error) {
	return f(ctx, item)
}

// Gateway checks auth and then hands the item to the transport
type Gateway struct {
	auth      AuthSource
	transport Transport
	logger    logger.Logger
}

// NewGateway creates a Gateway
func NewGateway(a AuthSource, t Transport, log logger.Logger) *Gateway {
	return &Gateway{
		auth:      a,
		transport: t,
		logger:    logger.OrDefault(log).WithField("component", "gateway"),
	}
}

// Send fails immediately with an auth error when no credential is usable
func (g *Gateway) Send(ctx context.Context, item models.CollectedItem) (string, error) {
	st := g.auth.Status(ctx)
	if !st.Authenticated {
		err := errs.New(errs.ErrorTypeAuth, "authentication required (%s)", st.Reason)
		logger.LogDelivery(g.logger, item.ID, false, err, 0)
		return "", err
	}

	start := time.Now()
	result, err := g.transport.Deliver(ctx, st.Token, st.UserID, item)
	logger.LogDelivery(g.logger, item.ID, err == nil, err, time.Since(start))
	if err != nil {
		if errs.IsAuthRejection(err) {
			g.auth.Invalidate(st.Token)
		}
		return "", err
	}
	return result, nil
}
