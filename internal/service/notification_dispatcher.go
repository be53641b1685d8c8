package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
)

// Event is something that happened in the pipeline that users should hear about
type Event struct {
	Type       domain.NotificationType
	EntityType domain.EntityType
	EntityID   uuid.UUID
	Title      string
	Message    string
	Recipients []uuid.UUID
}

// Notifier delivers pipeline events. Services call it only after the
// transaction that produced the event has committed.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotificationDispatcher is the Notifier backed by in-app notifications.
// Delivery runs in the background with a bounded timeout so a slow or failing
// write never affects the request that raised the event.
type NotificationDispatcher struct {
	notificationRepo *repository.NotificationRepository
	logger           *zap.Logger
	timeout          time.Duration
	wg               sync.WaitGroup
}

// NewNotificationDispatcher creates a NotificationDispatcher
func NewNotificationDispatcher(notificationRepo *repository.NotificationRepository, timeout time.Duration, logger *zap.Logger) *NotificationDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationDispatcher{
		notificationRepo: notificationRepo,
		logger:           logger,
		timeout:          timeout,
	}
}

// Notify queues one notification per distinct recipient and returns immediately
func (d *NotificationDispatcher) Notify(_ context.Context, event Event) error {
	notifications := buildNotifications(event)
	if len(notifications) == 0 {
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notificationRepo.CreateBatch(ctx, notifications); err != nil {
			d.logger.Warn("failed to deliver notifications",
				zap.String("type", string(event.Type)),
				zap.String("entity_type", string(event.EntityType)),
				zap.String("entity_id", event.EntityID.String()),
				zap.Int("recipients", len(notifications)),
				zap.Error(err),
			)
			return
		}

		d.logger.Debug("notifications delivered",
			zap.String("type", string(event.Type)),
			zap.Int("recipients", len(notifications)),
		)
	}()
	return nil
}

// Wait blocks until all queued deliveries have finished
func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}

func buildNotifications(event Event) []domain.Notification {
	seen := make(map[uuid.UUID]bool, len(event.Recipients))
	notifications := make([]domain.Notification, 0, len(event.Recipients))
	entityID := event.EntityID

	for _, userID := range event.Recipients {
		if userID == uuid.Nil || seen[userID] {
			continue
		}
		seen[userID] = true
		notifications = append(notifications, domain.Notification{
			UserID:     userID,
			Type:       string(event.Type),
			Title:      truncate(event.Title, 200),
			Message:    truncate(event.Message, 500),
			EntityType: string(event.EntityType),
			EntityID:   &entityID,
		})
	}
	return notifications
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
