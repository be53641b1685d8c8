package handler

import (
	"net/http"
	"strconv"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// OpportunityHandler handles HTTP requests for opportunities
type OpportunityHandler struct {
	opportunityService *service.OpportunityService
	contractService    *service.ContractService
	logger             *zap.Logger
}

// NewOpportunityHandler creates a new OpportunityHandler
func NewOpportunityHandler(opportunityService *service.OpportunityService, contractService *service.ContractService, logger *zap.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		opportunityService: opportunityService,
		contractService:    contractService,
		logger:             logger,
	}
}

// Create godoc
// @Summary Create opportunity
// @Description Create a standalone opportunity without an originating contact
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param request body domain.CreateOpportunityRequest true "Opportunity data"
// @Success 201 {object} domain.OpportunityDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities [post]
func (h *OpportunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req domain.CreateOpportunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opp, err := h.opportunityService.Create(r.Context(), actor, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create opportunity")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToOpportunityDTO(opp))
}

// List godoc
// @Summary List opportunities
// @Tags Opportunities
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page" default(20)
// @Param status query string false "Filter by status" Enums(New, ProposalDrafting, ProposalSent, Revision, Won, Lost)
// @Param assigneeId query string false "Filter by assignee"
// @Param minValue query number false "Minimum estimated value"
// @Param maxValue query number false "Maximum estimated value"
// @Param search query string false "Search by title or company"
// @Param sortBy query string false "Sort option" Enums(created_desc, created_asc, value_desc, value_asc)
// @Success 200 {object} domain.PaginatedResponse
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities [get]
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filters := &repository.OpportunityFilters{}
	if status := q.Get("status"); status != "" {
		s := domain.OpportunityStatus(status)
		if !s.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status: must be one of New, ProposalDrafting, ProposalSent, Revision, Won, Lost")
			return
		}
		filters.Status = &s
	}
	assignee, ok := queryUUID(w, r, "assigneeId")
	if !ok {
		return
	}
	filters.AssigneeID = assignee
	for name, dst := range map[string]**float64{"minValue": &filters.MinValue, "maxValue": &filters.MaxValue} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid "+name+": must be a non-negative number")
			return
		}
		*dst = &v
	}
	if search := q.Get("search"); search != "" {
		filters.SearchQuery = &search
	}

	sortBy := repository.OpportunitySortByCreatedDesc
	switch s := repository.OpportunitySortOption(q.Get("sortBy")); s {
	case "":
	case repository.OpportunitySortByCreatedDesc, repository.OpportunitySortByCreatedAsc,
		repository.OpportunitySortByValueDesc, repository.OpportunitySortByValueAsc:
		sortBy = s
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid sortBy: must be one of created_desc, created_asc, value_desc, value_asc")
		return
	}

	result, err := h.opportunityService.List(r.Context(), actor, page, pageSize, filters, sortBy)
	if err != nil {
		respondServiceError(w, h.logger, err, "list opportunities")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get opportunity
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} domain.OpportunityDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id} [get]
func (h *OpportunityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}

	opp, err := h.opportunityService.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get opportunity")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToOpportunityDTO(opp))
}

// Assign godoc
// @Summary Assign opportunity
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param request body domain.AssignRequest true "Assignee"
// @Success 200 {object} domain.OpportunityDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/assign [post]
func (h *OpportunityHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}
	var req domain.AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opp, err := h.opportunityService.Assign(r.Context(), actor, id, req.AssigneeID, req.AssigneeName)
	if err != nil {
		respondServiceError(w, h.logger, err, "assign opportunity")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToOpportunityDTO(opp))
}

// UpdateEstimate godoc
// @Summary Update estimate
// @Description Update estimated value, currency and win probability while the opportunity is open
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param request body domain.UpdateEstimateRequest true "Estimate"
// @Success 200 {object} domain.OpportunityDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/estimate [put]
func (h *OpportunityHandler) UpdateEstimate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}
	var req domain.UpdateEstimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opp, err := h.opportunityService.UpdateEstimate(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update opportunity estimate")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToOpportunityDTO(opp))
}

// Transition godoc
// @Summary Close opportunity
// @Description Mark an opportunity Won (requires an approved or accepted proposal) or Lost (note is the reason). Other statuses follow the proposal workflow.
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param request body domain.TransitionRequest true "Target status"
// @Success 200 {object} domain.OpportunityDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/transition [post]
func (h *OpportunityHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}
	var req domain.TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opp, err := h.opportunityService.Transition(r.Context(), actor, id, domain.OpportunityStatus(req.Status), req.Note)
	if err != nil {
		respondServiceError(w, h.logger, err, "transition opportunity")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToOpportunityDTO(opp))
}

// ConvertToContract godoc
// @Summary Convert won opportunity to contract
// @Description Creates an MSA, or a SOW under an Active or Draft MSA
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param request body domain.ConvertToContractRequest true "Contract data"
// @Success 201 {object} domain.ContractDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/convert [post]
func (h *OpportunityHandler) ConvertToContract(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}
	var req domain.ConvertToContractRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contract, err := h.contractService.ConvertFromOpportunity(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "convert opportunity")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToContractDTO(contract))
}
