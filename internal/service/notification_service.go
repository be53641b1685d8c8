package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService handles reading and acknowledging a user's notifications
type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	logger           *zap.Logger
}

// NewNotificationService creates a new NotificationService instance
func NewNotificationService(
	notificationRepo *repository.NotificationRepository,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

// ListForUser returns the actor's notifications with pagination
func (s *NotificationService) ListForUser(
	ctx context.Context,
	actor domain.Actor,
	page int,
	pageSize int,
	unreadOnly bool,
	notificationType string,
) (*domain.PaginatedResponse, error) {
	if actor.ID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	page, pageSize = clampPage(page, pageSize)

	notifications, total, err := s.notificationRepo.ListByUser(ctx, actor.ID, page, pageSize, unreadOnly, notificationType)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	dtos := make([]domain.NotificationDTO, len(notifications))
	for i, notification := range notifications {
		dtos[i] = mapper.ToNotificationDTO(&notification)
	}

	return paginated(dtos, total, page, pageSize), nil
}

// MarkAsRead marks one of the actor's notifications as read
func (s *NotificationService) MarkAsRead(ctx context.Context, actor domain.Actor, notificationID uuid.UUID) error {
	if actor.ID == uuid.Nil {
		return ErrUnauthorized
	}

	if err := s.notificationRepo.MarkAsRead(ctx, notificationID, actor.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: notification", ErrNotFound)
		}
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}

	s.logger.Debug("notification marked as read",
		zap.String("notificationID", notificationID.String()),
		zap.String("userID", actor.ID.String()),
	)
	return nil
}

// MarkAllAsRead marks all of the actor's notifications as read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, actor domain.Actor) error {
	if actor.ID == uuid.Nil {
		return ErrUnauthorized
	}

	if err := s.notificationRepo.MarkAllAsRead(ctx, actor.ID); err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}

	s.logger.Info("all notifications marked as read",
		zap.String("userID", actor.ID.String()),
	)
	return nil
}

// GetUnreadCount returns the count of the actor's unread notifications
func (s *NotificationService) GetUnreadCount(ctx context.Context, actor domain.Actor) (*domain.UnreadCountDTO, error) {
	if actor.ID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	count, err := s.notificationRepo.CountUnread(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return &domain.UnreadCountDTO{Count: count}, nil
}

func clampPage(page, pageSize int) (int, int) {
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page < 1 {
		page = 1
	}
	return page, pageSize
}

func paginated(data interface{}, total int64, page, pageSize int) *domain.PaginatedResponse {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &domain.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
