package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
)

// AuditLogService handles audit logging operations
type AuditLogService struct {
	auditRepo *repository.AuditLogRepository
	logger    *zap.Logger
}

// NewAuditLogService creates a new audit log service
func NewAuditLogService(auditRepo *repository.AuditLogRepository, logger *zap.Logger) *AuditLogService {
	return &AuditLogService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// LogEntry represents the input for creating an audit log entry
type LogEntry struct {
	Action     domain.AuditAction
	EntityType string
	EntityID   *uuid.UUID
	Actor      *domain.Actor
	NewValues  interface{}
}

// Log creates an audit log entry for a mutation made through the API
func (s *AuditLogService) Log(ctx context.Context, r *http.Request, entry LogEntry) error {
	auditLog := &domain.AuditLog{
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		PerformedAt: time.Now().UTC(),
	}

	if entry.Actor != nil {
		auditLog.UserID = entry.Actor.ID.String()
		auditLog.UserName = entry.Actor.Name
		auditLog.ActorRole = entry.Actor.Role
	}

	if r != nil {
		auditLog.IPAddress = getClientIP(r)
		auditLog.UserAgent = r.UserAgent()
		auditLog.RequestID = r.Header.Get("X-Request-ID")
	}

	// Serialize new values (use "null" for JSONB compatibility when no value)
	auditLog.NewValues = "null"
	if entry.NewValues != nil {
		if newJSON, err := json.Marshal(entry.NewValues); err == nil {
			auditLog.NewValues = string(newJSON)
		}
	}

	if err := s.auditRepo.Create(ctx, auditLog); err != nil {
		s.logger.Error("failed to create audit log",
			zap.String("action", string(entry.Action)),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err))
		return err
	}
	return nil
}

// AuditLogQueryParams represents query parameters for listing audit logs
type AuditLogQueryParams struct {
	UserID     string
	Action     *domain.AuditAction
	EntityType string
	EntityID   *uuid.UUID
	ActorRole  *domain.ActorRole
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// List retrieves audit logs with filters. Only admins read the audit trail.
func (s *AuditLogService) List(ctx context.Context, actor domain.Actor, params AuditLogQueryParams) (*domain.PaginatedResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return nil, forbidden("only admins may read the audit log")
	}

	filter := &repository.AuditLogFilter{
		UserID:     params.UserID,
		Action:     params.Action,
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		ActorRole:  params.ActorRole,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
	}

	page, pageSize := clampPage(params.Page, params.PageSize)
	logs, total, err := s.auditRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.AuditLogDTO, len(logs))
	for i := range logs {
		dtos[i] = mapper.ToAuditLogDTO(&logs[i])
	}
	return paginated(dtos, total, page, pageSize), nil
}

// GetByEntity retrieves audit logs for a specific entity
func (s *AuditLogService) GetByEntity(ctx context.Context, actor domain.Actor, entityType string, entityID uuid.UUID, limit int) ([]domain.AuditLog, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByEntity(ctx, entityType, entityID, limit)
}

// CleanupOldLogs removes logs older than the specified retention period
func (s *AuditLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	before := time.Now().AddDate(0, 0, -retentionDays)
	count, err := s.auditRepo.DeleteOlderThan(ctx, before)
	if err != nil {
		s.logger.Error("failed to cleanup old audit logs",
			zap.Int("retention_days", retentionDays),
			zap.Error(err))
		return 0, err
	}

	if count > 0 {
		s.logger.Info("cleaned up old audit logs",
			zap.Int64("deleted_count", count),
			zap.Int("retention_days", retentionDays))
	}
	return count, nil
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr (remove port)
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
