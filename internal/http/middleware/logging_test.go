package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging_RequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var seen string
	handler := middleware.Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(middleware.RequestIDHeader)
		w.WriteHeader(http.StatusCreated)
	}))

	t.Run("inbound id is kept", func(t *testing.T) {
		id := uuid.New().String()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil)
		req.Header.Set(middleware.RequestIDHeader, id)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, id, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, id, seen)
	})

	t.Run("malformed id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil)
		req.Header.Set(middleware.RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		_, err := uuid.Parse(w.Header().Get(middleware.RequestIDHeader))
		assert.NoError(t, err)
	})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(http.StatusCreated), entries[0].ContextMap()["status_code"])
}

func TestLogging_ServerErrorsAtErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := middleware.Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := middleware.Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/proposals", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, domain.ErrorTypeInternal, problem.Type)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := middleware.Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
