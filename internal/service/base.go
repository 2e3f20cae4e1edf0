package service

import (
	"context"
	"encoding/json"
	"time"

	"opsconsole/internal/logger"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"go.uber.org/zap"
)

// Publisher receives change events for connected consoles. The websocket hub implements it.
type Publisher interface {
	Publish(event model.ChangeEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.ChangeEvent) {}

// Option customises the shared dependencies of a service
type Option func(*base)

// WithPublisher routes change events to p
func WithPublisher(p Publisher) Option {
	return func(b *base) {
		if p != nil {
			b.events = p
		}
	}
}

// WithClock overrides time.Now, used for lastUpdated stamps
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// base carries what every engine service needs: the injected store, a logger,
// the change feed and a clock.
type base struct {
	store  *repository.Store
	log    *zap.Logger
	events Publisher
	now    func() time.Time
}

func newBase(store *repository.Store, log *zap.Logger, opts []Option) base {
	b := base{
		store:  store,
		log:    logger.OrNop(log),
		events: nopPublisher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// writeAuditLog is best-effort: a failed audit row never fails the operation
func (b *base) writeAuditLog(ctx context.Context, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)

	entry := model.AuditLog{
		Actor:      ActorFrom(ctx),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    detailsJSON,
	}

	if err := b.store.Audit.Log(ctx, &entry); err != nil {
		b.log.Warn("failed to write audit log", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}
