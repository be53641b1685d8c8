package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func contactForm() domain.CreateContactRequest {
	return domain.CreateContactRequest{
		RequesterName:  "Kari Nordmann",
		RequesterEmail: "kari@example.com",
		Company:        "Fjord Logistics",
		Consultation:   "We want to modernise our booking platform",
	}
}

func TestContactHandler_CreateContact(t *testing.T) {
	p := testutil.NewPipeline(t)
	h := handler.NewContactHandler(p.Contacts, zap.NewNop())

	t.Run("anonymous submission", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.CreateContact(rr, newRequest(context.Background(), http.MethodPost, "/contacts", contactForm()))

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var contact domain.ContactDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contact))
		assert.Equal(t, domain.ContactStatusNew, contact.Status)
		assert.Equal(t, domain.ContactPriorityMedium, contact.Priority)
		assert.Nil(t, contact.RequesterUserID)
		assert.NotEmpty(t, contact.DisplayID)
	})

	t.Run("signed in client is linked", func(t *testing.T) {
		client := testutil.Actor(domain.RoleClient)
		rr := httptest.NewRecorder()
		h.CreateContact(rr, newRequest(actorContext(client), http.MethodPost, "/contacts", contactForm()))

		require.Equal(t, http.StatusCreated, rr.Code)
		var contact domain.ContactDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contact))
		require.NotNil(t, contact.RequesterUserID)
		assert.Equal(t, client.ID, *contact.RequesterUserID)
	})

	t.Run("invalid email", func(t *testing.T) {
		form := contactForm()
		form.RequesterEmail = "not-an-email"
		rr := httptest.NewRecorder()
		h.CreateContact(rr, newRequest(context.Background(), http.MethodPost, "/contacts", form))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		problem := decodeProblem(t, rr)
		assert.Equal(t, domain.ErrorTypeValidation, problem.Type)
		assert.Equal(t, "Must be a valid email address", problem.Errors["requesterEmail"])
	})

	t.Run("unknown priority", func(t *testing.T) {
		form := contactForm()
		form.Priority = "Critical"
		rr := httptest.NewRecorder()
		h.CreateContact(rr, newRequest(context.Background(), http.MethodPost, "/contacts", form))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeProblem(t, rr).Errors, "priority")
	})
}

func TestContactHandler_ConvertContact(t *testing.T) {
	p := testutil.NewPipeline(t)
	h := handler.NewContactHandler(p.Contacts, zap.NewNop())

	form := contactForm()
	contact, err := p.Contacts.Create(context.Background(), domain.Actor{}, &form)
	require.NoError(t, err)
	id := contact.ID.String()

	t.Run("client cannot convert", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ConvertContact(rr, newRequest(actorContext(testutil.Actor(domain.RoleClient)), http.MethodPost, "/contacts/"+id+"/convert", nil, "id", id))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("sales converts without a body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ConvertContact(rr, newRequest(actorContext(testutil.Actor(domain.RoleSales)), http.MethodPost, "/contacts/"+id+"/convert", nil, "id", id))

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var opp domain.OpportunityDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &opp))
		require.NotNil(t, opp.ContactID)
		assert.Equal(t, contact.ID, *opp.ContactID)
		assert.Equal(t, "Fjord Logistics", opp.Company)
	})

	t.Run("second conversion is rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ConvertContact(rr, newRequest(actorContext(testutil.Actor(domain.RoleSales)), http.MethodPost, "/contacts/"+id+"/convert", nil, "id", id))

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
