package page

import (
	"context"

	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"
)

// relay is a progress.Presenter that forwards snapshots to the background
type relay struct {
	ctx    context.Context
	ep     *messaging.Endpoint
	logger logger.Logger
}

func newRelay(ctx context.Context, ep *messaging.Endpoint, log logger.Logger) *relay {
	return &relay{ctx: ctx, ep: ep, logger: log}
}

func (r *relay) Progress(d models.ProgressData) {
	r.post(models.MsgScrapingProgress, d)
}

func (r *relay) Complete(d models.CompleteData) {
	r.post(models.MsgScrapingComplete, d)
}

func (r *relay) post(typ string, data interface{}) {
	if _, err := r.ep.Post(r.ctx, messaging.Background, typ, data); err != nil {
		r.logger.WithError(err).DebugWithFields("Progress not delivered", map[string]interface{}{"type": typ})
	}
}
