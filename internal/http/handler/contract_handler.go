package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// ContractHandler handles MSAs and SOWs
type ContractHandler struct {
	contractService *service.ContractService
	logger          *zap.Logger
}

// NewContractHandler creates a new ContractHandler
func NewContractHandler(contractService *service.ContractService, logger *zap.Logger) *ContractHandler {
	return &ContractHandler{
		contractService: contractService,
		logger:          logger,
	}
}

// List godoc
// @Summary List contracts
// @Tags Contracts
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page" default(20)
// @Param type query string false "Filter by type" Enums(MSA, SOW)
// @Param status query string false "Filter by status" Enums(Draft, Active, OnHold, Completed, Terminated)
// @Param parentId query string false "Filter SOWs by MSA"
// @Success 200 {object} domain.PaginatedResponse
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts [get]
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filters := &repository.ContractFilters{}
	if t := q.Get("type"); t != "" {
		ct := domain.ContractType(t)
		if !ct.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid type: must be one of MSA, SOW")
			return
		}
		filters.Type = &ct
	}
	if status := q.Get("status"); status != "" {
		s := domain.ContractStatus(status)
		if !s.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status: must be one of Draft, Active, OnHold, Completed, Terminated")
			return
		}
		filters.Status = &s
	}
	parent, ok := queryUUID(w, r, "parentId")
	if !ok {
		return
	}
	filters.ParentID = parent

	result, err := h.contractService.List(r.Context(), actor, page, pageSize, filters)
	if err != nil {
		respondServiceError(w, h.logger, err, "list contracts")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get contract
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} domain.ContractDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id} [get]
func (h *ContractHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}

	contract, err := h.contractService.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get contract")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContractDTO(contract))
}

// GetHistory godoc
// @Summary Contract history
// @Description Append-only audit trail, oldest first
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {array} domain.ContractHistoryDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/history [get]
func (h *ContractHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}

	entries, err := h.contractService.GetHistory(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get contract history")
		return
	}

	dtos := make([]domain.ContractHistoryDTO, len(entries))
	for i := range entries {
		dtos[i] = mapper.ToContractHistoryDTO(&entries[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// Transition godoc
// @Summary Change contract status
// @Description Activating a SOW requires its MSA to be Active
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param request body domain.TransitionRequest true "Target status"
// @Success 200 {object} domain.ContractDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/transition [post]
func (h *ContractHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}
	var req domain.TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contract, err := h.contractService.Transition(r.Context(), actor, id, domain.ContractStatus(req.Status), req.Note)
	if err != nil {
		respondServiceError(w, h.logger, err, "transition contract")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContractDTO(contract))
}

// ListSOWs godoc
// @Summary List SOWs under an MSA
// @Tags Contracts
// @Produce json
// @Param id path string true "MSA ID"
// @Success 200 {array} domain.ContractDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/sows [get]
func (h *ContractHandler) ListSOWs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}

	sows, err := h.contractService.ListSOWs(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "list sows")
		return
	}

	dtos := make([]domain.ContractDTO, len(sows))
	for i := range sows {
		dtos[i] = mapper.ToContractDTO(&sows[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// CreateSOW godoc
// @Summary Create SOW under an MSA
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "MSA ID"
// @Param request body domain.CreateSOWRequest true "SOW data"
// @Success 201 {object} domain.ContractDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/sows [post]
func (h *ContractHandler) CreateSOW(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	msaID, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}
	var req domain.CreateSOWRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sow, err := h.contractService.CreateSOW(r.Context(), actor, msaID, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create sow")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToContractDTO(sow))
}

// UpdateBilling godoc
// @Summary Replace SOW billing schedule
// @Description Milestones for FixedPrice, retainer items for Retainer. Only while Draft.
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "SOW ID"
// @Param request body domain.UpdateBillingRequest true "Billing schedule"
// @Success 200 {object} domain.ContractDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/billing [post]
func (h *ContractHandler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}
	var req domain.UpdateBillingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contract, err := h.contractService.UpdateBilling(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update billing")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToContractDTO(contract))
}
