package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const actingRoleHeader = "X-Acting-Role"

func corsHandler(cfg *config.CORSConfig, environment string) http.Handler {
	return middleware.CORS(cfg, actingRoleHeader, environment, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func preflight(origin, requestHeaders string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/contacts", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	if requestHeaders != "" {
		req.Header.Set("Access-Control-Request-Headers", requestHeaders)
	}
	return req
}

func TestCORS_DevelopmentAllowsAllOrigins(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	w := httptest.NewRecorder()
	corsHandler(cfg, "development").ServeHTTP(w, preflight("http://localhost:3000", ""))

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins:   []string{"https://portal.example.com"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	handler := corsHandler(cfg, "production")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, preflight("https://portal.example.com", ""))
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, preflight("https://evil.example.com", ""))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ProductionWithoutOriginsDeniesAll(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Content-Type"},
	}

	w := httptest.NewRecorder()
	corsHandler(cfg, "production").ServeHTTP(w, preflight("https://portal.example.com", ""))

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ActingRoleHeaderAllowed(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins: []string{"https://portal.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}

	w := httptest.NewRecorder()
	corsHandler(cfg, "production").ServeHTTP(w, preflight("https://portal.example.com", "Authorization, "+actingRoleHeader))

	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-acting-role")
}
