package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotificationDispatcher_DeliversOncePerRecipient(t *testing.T) {
	f := newFixture(t)
	dispatcher := service.NewNotificationDispatcher(repository.NewNotificationRepository(f.DB), time.Second, zap.NewNop())

	entityID := uuid.New()
	err := dispatcher.Notify(f.ctx, service.Event{
		Type:       domain.NotificationCloseRequestPending,
		EntityType: domain.EntityCloseRequest,
		EntityID:   entityID,
		Title:      "Close request awaiting approval",
		Message:    strings.Repeat("x", 600),
		Recipients: []uuid.UUID{f.client.ID, f.client.ID, uuid.Nil, f.sales.ID},
	})
	require.NoError(t, err)
	dispatcher.Wait()

	result, err := f.Notifications.ListForUser(f.ctx, f.client, 1, 20, false, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	dtos, ok := result.Data.([]domain.NotificationDTO)
	require.True(t, ok)
	require.Len(t, dtos, 1)
	assert.Equal(t, string(domain.NotificationCloseRequestPending), dtos[0].Type)
	assert.Len(t, dtos[0].Message, 500)
	require.NotNil(t, dtos[0].EntityID)
	assert.Equal(t, entityID, *dtos[0].EntityID)

	result, err = f.Notifications.ListForUser(f.ctx, f.sales, 1, 20, false, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
}

func TestNotificationDispatcher_NoRecipients(t *testing.T) {
	f := newFixture(t)
	dispatcher := service.NewNotificationDispatcher(repository.NewNotificationRepository(f.DB), 0, zap.NewNop())

	require.NoError(t, dispatcher.Notify(f.ctx, service.Event{Type: domain.NotificationProposalSent}))
	dispatcher.Wait()

	var count int64
	require.NoError(t, f.DB.Model(&domain.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestNotificationService_ReadState(t *testing.T) {
	f := newFixture(t)
	dispatcher := service.NewNotificationDispatcher(repository.NewNotificationRepository(f.DB), time.Second, zap.NewNop())

	for _, eventType := range []domain.NotificationType{
		domain.NotificationProposalSent,
		domain.NotificationCloseRequestPending,
		domain.NotificationCloseRequestReminder,
	} {
		require.NoError(t, dispatcher.Notify(f.ctx, service.Event{
			Type:       eventType,
			EntityType: domain.EntityProposal,
			EntityID:   uuid.New(),
			Title:      "t",
			Recipients: []uuid.UUID{f.client.ID},
		}))
	}
	dispatcher.Wait()

	unread, err := f.Notifications.GetUnreadCount(f.ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 3, unread.Count)

	result, err := f.Notifications.ListForUser(f.ctx, f.client, 1, 20, false, string(domain.NotificationProposalSent))
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	dto := result.Data.([]domain.NotificationDTO)[0]

	// someone else's notification is not found
	err = f.Notifications.MarkAsRead(f.ctx, f.sales, dto.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	require.NoError(t, f.Notifications.MarkAsRead(f.ctx, f.client, dto.ID))
	unread, err = f.Notifications.GetUnreadCount(f.ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 2, unread.Count)

	result, err = f.Notifications.ListForUser(f.ctx, f.client, 1, 20, true, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)

	require.NoError(t, f.Notifications.MarkAllAsRead(f.ctx, f.client))
	unread, err = f.Notifications.GetUnreadCount(f.ctx, f.client)
	require.NoError(t, err)
	assert.Zero(t, unread.Count)

	_, err = f.Notifications.GetUnreadCount(f.ctx, domain.Actor{})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestNotificationService_Pagination(t *testing.T) {
	f := newFixture(t)
	dispatcher := service.NewNotificationDispatcher(repository.NewNotificationRepository(f.DB), time.Second, zap.NewNop())
	user := testutil.Actor(domain.RoleSales)

	for i := 0; i < 5; i++ {
		require.NoError(t, dispatcher.Notify(f.ctx, service.Event{
			Type:       domain.NotificationProposalReviewed,
			EntityType: domain.EntityProposal,
			EntityID:   uuid.New(),
			Title:      "Proposal reviewed",
			Recipients: []uuid.UUID{user.ID},
		}))
	}
	dispatcher.Wait()

	result, err := f.Notifications.ListForUser(f.ctx, user, 2, 2, false, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total)
	assert.Equal(t, 3, result.TotalPages)
	assert.Len(t, result.Data, 2)
}
