package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"go.uber.org/zap"
)

func requireActor(actor domain.Actor) error {
	if !actor.Role.IsValid() {
		return ErrUnauthorized
	}
	return nil
}

// requireInternal rejects callers outside the sales organization
func requireInternal(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.Role.IsInternal() {
		return forbidden("role %s may not perform this action", actor.Role)
	}
	return nil
}

func logTransition(logger *zap.Logger, entity domain.EntityType, id uuid.UUID, from, to string, actor domain.Actor) {
	logger.Info("status transition applied",
		zap.String("entity", string(entity)),
		zap.String("id", id.String()),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("actor_id", actor.ID.String()),
		zap.String("actor_role", string(actor.Role)),
	)
}

// notify hands the event to the notifier after commit. Failures never reach
// the caller of the transition.
func notify(ctx context.Context, notifier Notifier, logger *zap.Logger, event Event) {
	if notifier == nil || len(event.Recipients) == 0 {
		return
	}
	if err := notifier.Notify(ctx, event); err != nil {
		logger.Warn("failed to dispatch notification",
			zap.String("type", string(event.Type)),
			zap.String("entity_id", event.EntityID.String()),
			zap.Error(err),
		)
	}
}

func recipients(ids ...*uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != nil && *id != uuid.Nil {
			out = append(out, *id)
		}
	}
	return out
}
