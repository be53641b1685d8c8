package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCloseRequestHandler_Lifecycle(t *testing.T) {
	p := testutil.NewPipeline(t)
	h := handler.NewCloseRequestHandler(p.CloseRequests, zap.NewNop())

	sales := testutil.Actor(domain.RoleSales)
	client := testutil.Actor(domain.RoleClient)
	sow := seedActiveSOW(t, p.DB, client.ID)
	sowID := sow.ID.String()

	t.Run("latest is null before any request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetLatest(rr, newRequest(actorContext(sales), http.MethodGet, "/contracts/"+sowID+"/close-requests/latest", nil, "id", sowID))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()))
	})

	var created domain.CloseRequestDTO
	t.Run("sales opens a close request", func(t *testing.T) {
		body := domain.CreateCloseRequestRequest{
			Message: "All work delivered",
			Links:   []string{"https://docs.example.com/handover"},
		}
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests", body, "id", sowID))

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
		assert.Equal(t, domain.CloseRequestStatusPending, created.Status)
		assert.Equal(t, sow.ID, created.SOWID)
	})

	t.Run("second pending request conflicts", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests",
			domain.CreateCloseRequestRequest{Message: "Again"}, "id", sowID))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, domain.ErrorTypeConflictingState, decodeProblem(t, rr).Type)
	})

	t.Run("client must confirm", func(t *testing.T) {
		id := created.ID.String()
		rr := httptest.NewRecorder()
		h.Approve(rr, newRequest(actorContext(client), http.MethodPost, "/close-requests/"+id+"/approve",
			domain.ApproveCloseRequestRequest{Confirm: false}, "id", id))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, domain.ErrorTypeValidation, decodeProblem(t, rr).Type)
	})

	t.Run("sales cannot approve", func(t *testing.T) {
		id := created.ID.String()
		rr := httptest.NewRecorder()
		h.Approve(rr, newRequest(actorContext(sales), http.MethodPost, "/close-requests/"+id+"/approve",
			domain.ApproveCloseRequestRequest{Confirm: true}, "id", id))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("client approves", func(t *testing.T) {
		id := created.ID.String()
		rr := httptest.NewRecorder()
		h.Approve(rr, newRequest(actorContext(client), http.MethodPost, "/close-requests/"+id+"/approve",
			domain.ApproveCloseRequestRequest{Confirm: true}, "id", id))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var approved domain.CloseRequestDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &approved))
		assert.Equal(t, domain.CloseRequestStatusClientApproved, approved.Status)
	})

	t.Run("approving twice is an invalid transition", func(t *testing.T) {
		id := created.ID.String()
		rr := httptest.NewRecorder()
		h.Approve(rr, newRequest(actorContext(client), http.MethodPost, "/close-requests/"+id+"/approve",
			domain.ApproveCloseRequestRequest{Confirm: true}, "id", id))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, domain.ErrorTypeInvalidTransition, decodeProblem(t, rr).Type)
	})

	t.Run("latest returns the request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetLatest(rr, newRequest(actorContext(client), http.MethodGet, "/contracts/"+sowID+"/close-requests/latest", nil, "id", sowID))

		require.Equal(t, http.StatusOK, rr.Code)
		var latest domain.CloseRequestDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &latest))
		assert.Equal(t, created.ID, latest.ID)
	})
}

func TestCloseRequestHandler_BadInput(t *testing.T) {
	p := testutil.NewPipeline(t)
	h := handler.NewCloseRequestHandler(p.CloseRequests, zap.NewNop())
	sales := testutil.Actor(domain.RoleSales)
	sow := seedActiveSOW(t, p.DB, uuid.New())
	sowID := sow.ID.String()

	t.Run("invalid id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetLatest(rr, newRequest(actorContext(sales), http.MethodGet, "/contracts/nope/close-requests/latest", nil, "id", "nope"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown sow", func(t *testing.T) {
		id := uuid.New().String()
		rr := httptest.NewRecorder()
		h.GetLatest(rr, newRequest(actorContext(sales), http.MethodGet, "/contracts/"+id+"/close-requests/latest", nil, "id", id))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing message", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests", `{"links":[]}`, "id", sowID))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		problem := decodeProblem(t, rr)
		assert.Equal(t, domain.ErrorTypeValidation, problem.Type)
		assert.Contains(t, problem.Errors, "message")
	})

	t.Run("links must be urls", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests",
			`{"message":"Done","links":["not a url"]}`, "id", sowID))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("wrong shape", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests", `{"message":42}`, "id", sowID))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, decodeProblem(t, rr).Errors, "message")
	})

	t.Run("unknown field", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests",
			`{"message":"Done","status":"ClientApproved"}`, "id", sowID))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, newRequest(actorContext(sales), http.MethodPost, "/contracts/"+sowID+"/close-requests", "", "id", sowID))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("no user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Create(rr, httptest.NewRequest(http.MethodPost, "/contracts/"+sowID+"/close-requests", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
