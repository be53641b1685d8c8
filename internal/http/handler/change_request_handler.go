package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// ChangeRequestHandler handles amendments raised against active SOWs
type ChangeRequestHandler struct {
	changeRequestService *service.ChangeRequestService
	logger               *zap.Logger
}

// NewChangeRequestHandler creates a new ChangeRequestHandler
func NewChangeRequestHandler(changeRequestService *service.ChangeRequestService, logger *zap.Logger) *ChangeRequestHandler {
	return &ChangeRequestHandler{
		changeRequestService: changeRequestService,
		logger:               logger,
	}
}

// Submit godoc
// @Summary Submit change request
// @Description Raise a change request against an Active SOW. The impact analysis must match the SOW engagement type.
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param request body domain.SubmitChangeRequestRequest true "Change request"
// @Success 201 {object} domain.ChangeRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/change-requests [post]
func (h *ChangeRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	contractID, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}
	var req domain.SubmitChangeRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cr, err := h.changeRequestService.Submit(r.Context(), actor, contractID, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "submit change request")
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToChangeRequestDTO(cr))
}

// List godoc
// @Summary List change requests for a contract
// @Tags Change Requests
// @Produce json
// @Param id path string true "Contract ID"
// @Param status query string false "Filter by status" Enums(Submitted, UnderReview, Approved, Rejected)
// @Success 200 {array} domain.ChangeRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/change-requests [get]
func (h *ChangeRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	contractID, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}

	var status *domain.ChangeRequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.ChangeRequestStatus(raw)
		if !s.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status: must be one of Submitted, UnderReview, Approved, Rejected")
			return
		}
		status = &s
	}

	crs, err := h.changeRequestService.List(r.Context(), actor, contractID, status)
	if err != nil {
		respondServiceError(w, h.logger, err, "list change requests")
		return
	}

	dtos := make([]domain.ChangeRequestDTO, len(crs))
	for i := range crs {
		dtos[i] = mapper.ToChangeRequestDTO(&crs[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetByID godoc
// @Summary Get change request
// @Tags Change Requests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} domain.ChangeRequestDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "change request")
	if !ok {
		return
	}

	cr, err := h.changeRequestService.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get change request")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToChangeRequestDTO(cr))
}

// StartReview godoc
// @Summary Start reviewing a change request
// @Tags Change Requests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} domain.ChangeRequestDTO
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /change-requests/{id}/review [post]
func (h *ChangeRequestHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "change request")
	if !ok {
		return
	}

	cr, err := h.changeRequestService.StartReview(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "start change request review")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToChangeRequestDTO(cr))
}

// Decide godoc
// @Summary Approve or reject a change request
// @Description A reason is required to reject and must be empty on approval
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param request body domain.DecideChangeRequestRequest true "Decision"
// @Success 200 {object} domain.ChangeRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /change-requests/{id}/decide [post]
func (h *ChangeRequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "change request")
	if !ok {
		return
	}
	var req domain.DecideChangeRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cr, err := h.changeRequestService.Decide(r.Context(), actor, id, req.Action, req.Reason)
	if err != nil {
		respondServiceError(w, h.logger, err, "decide change request")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToChangeRequestDTO(cr))
}
