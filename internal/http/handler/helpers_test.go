package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func actorContext(actor domain.Actor) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID:      actor.ID,
		DisplayName: actor.Name,
		Email:       "test@example.com",
		Roles:       []string{string(actor.Role)},
		ActingRole:  actor.Role,
		AuthType:    auth.AuthTypeJWT,
	})
}

// newRequest builds a request carrying the actor and chi URL params given as
// key/value pairs
func newRequest(ctx context.Context, method, target string, body interface{}, params ...string) *http.Request {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem domain.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	return problem
}

// seedActiveSOW stores an active MSA with one active retainer SOW for the client
func seedActiveSOW(t *testing.T, db *gorm.DB, clientID uuid.UUID) *domain.Contract {
	t.Helper()
	engagement := domain.EngagementRetainer
	suffix := uuid.New().String()[:6]

	msa := &domain.Contract{
		DisplayID:     fmt.Sprintf("MSA-T-%s", suffix),
		Type:          domain.ContractTypeMSA,
		Title:         "Framework agreement",
		Status:        domain.ContractStatusActive,
		Value:         decimal.NewFromInt(100000),
		Currency:      "USD",
		ClientCompany: "Fjord Logistics",
		ClientUserID:  &clientID,
	}
	require.NoError(t, db.Create(msa).Error)

	sow := &domain.Contract{
		DisplayID:      fmt.Sprintf("SOW-T-%s", suffix),
		Type:           domain.ContractTypeSOW,
		ParentID:       &msa.ID,
		EngagementType: &engagement,
		Title:          "Platform team",
		Status:         domain.ContractStatusActive,
		Value:          decimal.NewFromInt(50000),
		Currency:       "USD",
		ClientCompany:  "Fjord Logistics",
		ClientUserID:   &clientID,
	}
	require.NoError(t, db.Create(sow).Error)
	return sow
}
