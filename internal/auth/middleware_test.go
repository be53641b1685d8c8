package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *recorder) RecordSignIn(_ context.Context, _ *auth.UserContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func testConfig() *config.Config {
	return &config.Config{
		Auth:   *portalConfig(),
		ApiKey: config.ApiKeyConfig{Value: "test-api-key"},
	}
}

// captured runs the middleware and returns the user context the next handler saw
func captured(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request) (*httptest.ResponseRecorder, *auth.UserContext) {
	t.Helper()
	var seen *auth.UserContext
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func bearer(t *testing.T, roles ...string) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	token, err := auth.SignPortalToken(portalConfig(), id, "Ola Nordmann", "ola@example.com", roles, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token, id
}

func TestMiddleware_Authenticate(t *testing.T) {
	users := &recorder{}
	m := auth.NewMiddleware(testConfig(), users, zap.NewNop())

	t.Run("api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("X-API-Key", "test-api-key")
		rr, user := captured(t, m.Authenticate, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, user)
		assert.Equal(t, auth.AuthTypeAPIKey, user.AuthType)
		assert.Equal(t, domain.RoleAdmin, user.ActingRole)
	})

	t.Run("wrong api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("X-API-Key", "guess")
		rr, user := captured(t, m.Authenticate, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, user)
	})

	t.Run("missing credentials", func(t *testing.T) {
		rr, _ := captured(t, m.Authenticate, httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("Authorization", "Basic abc")
		rr, _ := captured(t, m.Authenticate, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("token defaults to the highest role", func(t *testing.T) {
		header, id := bearer(t, "sales", "sales_manager")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("Authorization", header)
		rr, user := captured(t, m.Authenticate, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, id, user.UserID)
		assert.Equal(t, domain.RoleSalesManager, user.ActingRole)
	})

	t.Run("acting role header", func(t *testing.T) {
		header, _ := bearer(t, "sales", "sales_manager")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("Authorization", header)
		req.Header.Set("X-Acting-Role", "sales")
		rr, user := captured(t, m.Authenticate, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, domain.RoleSales, user.ActingRole)
	})

	t.Run("acting role not held", func(t *testing.T) {
		header, _ := bearer(t, "client")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("Authorization", header)
		req.Header.Set("X-Acting-Role", "admin")
		rr, _ := captured(t, m.Authenticate, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestMiddleware_RecordsSignInOnce(t *testing.T) {
	users := &recorder{}
	m := auth.NewMiddleware(testConfig(), users, zap.NewNop())
	header, _ := bearer(t, "client")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		req.Header.Set("Authorization", header)
		rr, _ := captured(t, m.Authenticate, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, 1, users.calls)

	t.Run("failed writes are retried", func(t *testing.T) {
		failing := &recorder{err: errors.New("db down")}
		m := auth.NewMiddleware(testConfig(), failing, zap.NewNop())
		header, _ := bearer(t, "client")
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
			req.Header.Set("Authorization", header)
			rr, _ := captured(t, m.Authenticate, req)
			require.Equal(t, http.StatusOK, rr.Code)
		}
		assert.Equal(t, 2, failing.calls)
	})
}

func TestMiddleware_OptionalAuthenticate(t *testing.T) {
	m := auth.NewMiddleware(testConfig(), nil, zap.NewNop())

	rr, user := captured(t, m.OptionalAuthenticate, httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, user)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil)
	req.Header.Set("Authorization", "Bearer expired.or.garbage")
	rr, user = captured(t, m.OptionalAuthenticate, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, user)

	header, id := bearer(t, "client")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil)
	req.Header.Set("Authorization", header)
	rr, user = captured(t, m.OptionalAuthenticate, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, user)
	assert.Equal(t, id, user.UserID)
	assert.Equal(t, domain.RoleClient, user.ActingRole)
}

func TestMiddleware_RequireRole(t *testing.T) {
	m := auth.NewMiddleware(testConfig(), nil, zap.NewNop())
	adminOnly := m.RequireRole(domain.RoleAdmin)

	rr, _ := captured(t, adminOnly, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	for role, want := range map[domain.ActorRole]int{
		domain.RoleAdmin:        http.StatusOK,
		domain.RoleSalesManager: http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
		req = req.WithContext(auth.WithUserContext(req.Context(), &auth.UserContext{UserID: uuid.New(), ActingRole: role}))
		rr, _ := captured(t, adminOnly, req)
		assert.Equal(t, want, rr.Code, role)
	}
}
