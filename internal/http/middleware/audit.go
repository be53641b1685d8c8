package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// maxAuditBody caps how much of a JSON request body is kept for the audit trail
const maxAuditBody = 64 * 1024

// AuditConfig holds configuration for audit middleware
type AuditConfig struct {
	SkipPaths   []string
	SkipMethods []string
	// AuditReads records GET requests as well
	AuditReads bool
}

// DefaultAuditConfig returns default audit configuration
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		SkipPaths:   []string{"/health", "/swagger"},
		SkipMethods: []string{http.MethodOptions, http.MethodHead},
	}
}

// resource path segments and the entity they are recorded as
var auditEntities = map[string]string{
	"contacts":        string(domain.EntityContact),
	"opportunities":   string(domain.EntityOpportunity),
	"proposals":       string(domain.EntityProposal),
	"contracts":       "contract",
	"sows":            string(domain.EntitySOW),
	"change-requests": string(domain.EntityChangeRequest),
	"close-requests":  string(domain.EntityCloseRequest),
	"files":           "file",
	"notifications":   "notification",
}

// sub-resource verbs that move an entity through its workflow
var workflowVerbs = map[string]bool{
	"transition": true,
	"convert":    true,
	"submit":     true,
	"withdraw":   true,
	"review":     true,
	"send":       true,
	"feedback":   true,
	"decide":     true,
	"resubmit":   true,
	"approve":    true,
	"reject":     true,
}

var redactedFields = []string{"password", "secret", "token", "apiKey", "confirm"}

// AuditMiddleware writes an audit log row for every successful mutation
type AuditMiddleware struct {
	auditService *service.AuditLogService
	config       *AuditConfig
	logger       *zap.Logger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(auditService *service.AuditLogService, config *AuditConfig, logger *zap.Logger) *AuditMiddleware {
	if config == nil {
		config = DefaultAuditConfig()
	}
	return &AuditMiddleware{
		auditService: auditService,
		config:       config,
		logger:       logger,
	}
}

// Audit records the request after the handler has answered with a 2xx
func (m *AuditMiddleware) Audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.auditService == nil || !m.shouldAudit(r) {
			next.ServeHTTP(w, r)
			return
		}

		body := captureJSONBody(r)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.statusCode < 200 || rw.statusCode >= 300 {
			return
		}

		// the route pattern is only complete once the router has matched
		entry, ok := buildAuditEntry(r, body)
		if !ok {
			return
		}
		go m.write(context.WithoutCancel(r.Context()), r, entry)
	})
}

func (m *AuditMiddleware) shouldAudit(r *http.Request) bool {
	for _, method := range m.config.SkipMethods {
		if r.Method == method {
			return false
		}
	}
	if r.Method == http.MethodGet && !m.config.AuditReads {
		return false
	}
	for _, prefix := range m.config.SkipPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}

func (m *AuditMiddleware) write(ctx context.Context, r *http.Request, entry service.LogEntry) {
	if err := m.auditService.Log(ctx, r.WithContext(ctx), entry); err != nil {
		m.logger.Warn("failed to create audit log entry",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err),
		)
	}
}

// captureJSONBody reads up to maxAuditBody bytes of a JSON body and puts them back in front of the rest
func captureJSONBody(r *http.Request) []byte {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodDelete {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return nil
	}
	if mediaType != "" && mediaType != "application/json" {
		return nil
	}

	head, _ := io.ReadAll(io.LimitReader(r.Body, maxAuditBody+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	if len(head) > maxAuditBody {
		return nil
	}
	return head
}

// buildAuditEntry derives entity, id and action from the matched chi route
func buildAuditEntry(r *http.Request, body []byte) (service.LogEntry, bool) {
	pattern := r.URL.Path
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		pattern = rctx.RoutePattern()
	}

	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	entityIdx := -1
	for i := len(segments) - 1; i >= 0; i-- {
		if _, ok := auditEntities[segments[i]]; ok {
			entityIdx = i
			break
		}
	}
	if entityIdx < 0 {
		return service.LogEntry{}, false
	}

	entry := service.LogEntry{EntityType: auditEntities[segments[entityIdx]]}
	rest := segments[entityIdx+1:]
	hasID := len(rest) > 0 && rest[0] == "{id}"

	if hasID && rctx != nil {
		if id, err := uuid.Parse(rctx.URLParam("id")); err == nil {
			entry.EntityID = &id
		}
	}

	switch {
	case r.Method == http.MethodDelete:
		entry.Action = domain.AuditActionDelete
	case r.Method == http.MethodGet:
		entry.Action = domain.AuditActionRead
	case hasID && len(rest) > 1 && workflowVerbs[rest[1]]:
		entry.Action = domain.AuditActionTransition
	case r.Method == http.MethodPost && !hasID:
		entry.Action = domain.AuditActionCreate
	default:
		entry.Action = domain.AuditActionUpdate
	}

	entry.NewValues = redact(body)
	if actor, ok := auth.ActorFromContext(r.Context()); ok {
		entry.Actor = &actor
	}
	return entry, true
}

func redact(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	var parsed map[string]interface{}
	if json.Unmarshal(body, &parsed) != nil {
		return nil
	}
	for _, field := range redactedFields {
		delete(parsed, field)
	}
	return parsed
}
