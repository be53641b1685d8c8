package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// AuditHandler exposes the API audit trail
type AuditHandler struct {
	auditService *service.AuditLogService
	logger       *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditService *service.AuditLogService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// List godoc
// @Summary List audit logs
// @Description Admin only
// @Tags Audit
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page" default(20)
// @Param userId query string false "Filter by user ID"
// @Param action query string false "Filter by action" Enums(create, update, delete, read, transition)
// @Param entityType query string false "Filter by entity type"
// @Param entityId query string false "Filter by entity ID"
// @Param actorRole query string false "Filter by acting role" Enums(client, sales, sales_manager, admin)
// @Param startTime query string false "RFC3339 lower bound"
// @Param endTime query string false "RFC3339 upper bound"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.AuditLogDTO}
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /audit [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	q := r.URL.Query()

	params := service.AuditLogQueryParams{
		UserID:     q.Get("userId"),
		EntityType: q.Get("entityType"),
		Page:       page,
		PageSize:   pageSize,
	}

	if raw := q.Get("action"); raw != "" {
		action := domain.AuditAction(raw)
		params.Action = &action
	}
	if raw := q.Get("actorRole"); raw != "" {
		role, ok := domain.ParseActorRole(raw)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid actorRole")
			return
		}
		params.ActorRole = &role
	}
	entityID, ok := queryUUID(w, r, "entityId")
	if !ok {
		return
	}
	params.EntityID = entityID

	for name, dst := range map[string]**time.Time{"startTime": &params.StartTime, "endTime": &params.EndTime} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid "+name+": must be RFC3339")
			return
		}
		*dst = &t
	}

	result, err := h.auditService.List(r.Context(), actor, params)
	if err != nil {
		respondServiceError(w, h.logger, err, "list audit logs")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetByEntity godoc
// @Summary Audit logs for an entity
// @Tags Audit
// @Produce json
// @Param entityType path string true "Entity type"
// @Param entityId path string true "Entity ID"
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {array} domain.AuditLogDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /audit/entity/{entityType}/{entityId} [get]
func (h *AuditHandler) GetByEntity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	entityID, ok := pathID(w, r, "entityId", "entity")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	logs, err := h.auditService.GetByEntity(r.Context(), actor, chi.URLParam(r, "entityType"), entityID, limit)
	if err != nil {
		respondServiceError(w, h.logger, err, "get audit logs")
		return
	}

	dtos := make([]domain.AuditLogDTO, len(logs))
	for i := range logs {
		dtos[i] = mapper.ToAuditLogDTO(&logs[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}
