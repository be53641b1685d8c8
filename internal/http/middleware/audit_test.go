package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuditMiddleware_DefaultConfig(t *testing.T) {
	cfg := middleware.DefaultAuditConfig()

	assert.Contains(t, cfg.SkipPaths, "/health")
	assert.Contains(t, cfg.SkipPaths, "/swagger")
	assert.Contains(t, cfg.SkipMethods, http.MethodOptions)
	assert.False(t, cfg.AuditReads)
}

func TestAuditMiddleware_PassesThroughWithoutService(t *testing.T) {
	am := middleware.NewAuditMiddleware(nil, nil, zap.NewNop())

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions} {
		called := false
		handler := am.Audit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(method, "/api/v1/contacts", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.True(t, called, method)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestAuditMiddleware_RecordsMutations(t *testing.T) {
	db := testutil.NewTestDB(t)
	auditService := service.NewAuditLogService(repository.NewAuditLogRepository(db), zap.NewNop())
	am := middleware.NewAuditMiddleware(auditService, nil, zap.NewNop())

	actor := testutil.Actor(domain.RoleClient)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithUserContext(req.Context(), &auth.UserContext{
				UserID:      actor.ID,
				DisplayName: actor.Name,
				ActingRole:  actor.Role,
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Use(am.Audit)
	r.Post("/close-requests/{id}/approve", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/close-requests/{id}/reject", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	r.Get("/close-requests/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/contracts/{id}/close-requests", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	id := uuid.New()
	send := func(method, path, body string) {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set(middleware.RequestIDHeader, "req-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
	}

	send(http.MethodGet, "/close-requests/"+id.String(), "")
	send(http.MethodPost, "/close-requests/"+id.String()+"/reject", `{"reason":""}`)
	send(http.MethodPost, "/close-requests/"+id.String()+"/approve", `{"confirm":true}`)
	send(http.MethodPost, "/contracts/"+uuid.NewString()+"/close-requests", `{"message":"All delivered"}`)

	var logs []domain.AuditLog
	require.Eventually(t, func() bool {
		logs = nil
		return db.Order("action").Find(&logs).Error == nil && len(logs) == 2
	}, 5*time.Second, 20*time.Millisecond)

	created := logs[0]
	assert.Equal(t, domain.AuditActionCreate, created.Action)
	assert.Equal(t, string(domain.EntityCloseRequest), created.EntityType)
	assert.Nil(t, created.EntityID, "the path id belongs to the parent contract")

	entry := logs[1]
	assert.Equal(t, domain.AuditActionTransition, entry.Action)
	assert.Equal(t, string(domain.EntityCloseRequest), entry.EntityType)
	require.NotNil(t, entry.EntityID)
	assert.Equal(t, id, *entry.EntityID)
	assert.Equal(t, actor.ID.String(), entry.UserID)
	assert.Equal(t, domain.RoleClient, entry.ActorRole)
	assert.NotContains(t, entry.NewValues, "confirm")
}
