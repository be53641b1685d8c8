package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// validNotificationTypes contains all valid notification type values
var validNotificationTypes = map[string]bool{
	string(domain.NotificationProposalReviewRequested): true,
	string(domain.NotificationProposalReviewed):        true,
	string(domain.NotificationProposalSent):            true,
	string(domain.NotificationProposalClientFeedback):  true,
	string(domain.NotificationContactConverted):        true,
	string(domain.NotificationChangeRequestDecided):    true,
	string(domain.NotificationCloseRequestPending):     true,
	string(domain.NotificationCloseRequestDecided):     true,
	string(domain.NotificationCloseRequestReminder):    true,
}

// NotificationHandler handles HTTP requests for notifications
type NotificationHandler struct {
	notificationService *service.NotificationService
	logger              *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler instance
func NewNotificationHandler(notificationService *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// List godoc
// @Summary List notifications
// @Description Get paginated list of notifications for the current user
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param unreadOnly query bool false "Filter to show only unread notifications" default(false)
// @Param type query string false "Filter by notification type"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.NotificationDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	notificationType := r.URL.Query().Get("type")
	if notificationType != "" && !validNotificationTypes[notificationType] {
		respondWithError(w, http.StatusBadRequest, "Invalid notification type: "+notificationType)
		return
	}

	result, err := h.notificationService.ListForUser(r.Context(), actor, page, pageSize, unreadOnly, notificationType)
	if err != nil {
		respondServiceError(w, h.logger, err, "list notifications")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetUnreadCount godoc
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} domain.UnreadCountDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/count [get]
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	count, err := h.notificationService.GetUnreadCount(r.Context(), actor)
	if err != nil {
		respondServiceError(w, h.logger, err, "count notifications")
		return
	}

	respondJSON(w, http.StatusOK, count)
}

// MarkAsRead godoc
// @Summary Mark notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "notification")
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(r.Context(), actor, id); err != nil {
		respondServiceError(w, h.logger, err, "mark notification as read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllAsRead godoc
// @Summary Mark all notifications as read
// @Tags Notifications
// @Success 204
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAllAsRead(r.Context(), actor); err != nil {
		respondServiceError(w, h.logger, err, "mark notifications as read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
