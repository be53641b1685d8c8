package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// ContactHandler handles HTTP requests for inbound contacts
type ContactHandler struct {
	contactService *service.ContactService
	logger         *zap.Logger
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(contactService *service.ContactService, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		logger:         logger,
	}
}

// CreateContact godoc
// @Summary Submit contact
// @Description Record an inbound consultation request. Authentication is optional; signed-in clients are linked as the requester.
// @Tags Contacts
// @Accept json
// @Produce json
// @Param request body domain.CreateContactRequest true "Contact data"
// @Success 201 {object} domain.ContactDTO
// @Failure 400 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Router /contacts [post]
func (h *ContactHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Anonymous submissions carry the zero actor
	actor, _ := auth.ActorFromContext(r.Context())

	contact, err := h.contactService.Create(r.Context(), actor, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create contact")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToContactDTO(contact))
}

// ListContacts godoc
// @Summary List contacts
// @Description Get paginated list of contacts with optional filters. Clients only see their own submissions.
// @Tags Contacts
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page" default(20)
// @Param status query string false "Filter by status" Enums(New, InProgress, ConvertedToOpportunity, Closed, Cancelled)
// @Param priority query string false "Filter by priority" Enums(Low, Medium, High, Urgent)
// @Param assigneeId query string false "Filter by assignee"
// @Param search query string false "Search by requester, email or company"
// @Success 200 {object} domain.PaginatedResponse
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts [get]
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filters := &repository.ContactFilters{}
	if status := q.Get("status"); status != "" {
		s := domain.ContactStatus(status)
		if !s.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status: must be one of New, InProgress, ConvertedToOpportunity, Closed, Cancelled")
			return
		}
		filters.Status = &s
	}
	if priority := q.Get("priority"); priority != "" {
		p := domain.ContactPriority(priority)
		if !p.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid priority: must be one of Low, Medium, High, Urgent")
			return
		}
		filters.Priority = &p
	}
	assignee, ok := queryUUID(w, r, "assigneeId")
	if !ok {
		return
	}
	filters.AssigneeID = assignee
	if search := q.Get("search"); search != "" {
		filters.SearchQuery = &search
	}

	result, err := h.contactService.List(r.Context(), actor, page, pageSize, filters)
	if err != nil {
		respondServiceError(w, h.logger, err, "list contacts")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetContact godoc
// @Summary Get contact
// @Description Get a contact by ID with its communication log
// @Tags Contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} domain.ContactDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts/{id} [get]
func (h *ContactHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contact")
	if !ok {
		return
	}

	contact, err := h.contactService.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get contact")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContactDTO(contact))
}

// TransitionContact godoc
// @Summary Change contact status
// @Description Move a contact to InProgress, Closed or Cancelled. Conversion has its own endpoint.
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body domain.TransitionRequest true "Target status"
// @Success 200 {object} domain.ContactDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts/{id}/transition [post]
func (h *ContactHandler) TransitionContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contact")
	if !ok {
		return
	}
	var req domain.TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contact, err := h.contactService.Transition(r.Context(), actor, id, domain.ContactStatus(req.Status))
	if err != nil {
		respondServiceError(w, h.logger, err, "transition contact")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContactDTO(contact))
}

// AssignContact godoc
// @Summary Assign contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body domain.AssignRequest true "Assignee"
// @Success 200 {object} domain.ContactDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts/{id}/assign [post]
func (h *ContactHandler) AssignContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contact")
	if !ok {
		return
	}
	var req domain.AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contact, err := h.contactService.Assign(r.Context(), actor, id, req.AssigneeID, req.AssigneeName)
	if err != nil {
		respondServiceError(w, h.logger, err, "assign contact")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContactDTO(contact))
}

// SetPriority godoc
// @Summary Set contact priority
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body domain.SetPriorityRequest true "Priority"
// @Success 200 {object} domain.ContactDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts/{id}/priority [post]
func (h *ContactHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contact")
	if !ok {
		return
	}
	var req domain.SetPriorityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contact, err := h.contactService.SetPriority(r.Context(), actor, id, req.Priority)
	if err != nil {
		respondServiceError(w, h.logger, err, "set contact priority")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContactDTO(contact))
}

// AddCommunication godoc
// @Summary Append to communication log
// @Description The log stays writable after conversion or closure
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body domain.AddCommunicationRequest true "Entry"
// @Success 201 {object} domain.CommunicationDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts/{id}/communications [post]
func (h *ContactHandler) AddCommunication(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contact")
	if !ok {
		return
	}
	var req domain.AddCommunicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.contactService.AppendCommunication(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "append communication")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToCommunicationDTO(entry))
}

// ConvertContact godoc
// @Summary Convert contact to opportunity
// @Description Creates exactly one opportunity from an open contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body domain.ConvertContactRequest false "Opportunity seed values"
// @Success 201 {object} domain.OpportunityDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contacts/{id}/convert [post]
func (h *ContactHandler) ConvertContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contact")
	if !ok {
		return
	}
	var req domain.ConvertContactRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	opp, err := h.contactService.ConvertToOpportunity(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "convert contact")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToOpportunityDTO(opp))
}
