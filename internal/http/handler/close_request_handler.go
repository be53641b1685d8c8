package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// CloseRequestHandler handles requests to close an active SOW
type CloseRequestHandler struct {
	closeRequestService *service.CloseRequestService
	logger              *zap.Logger
}

// NewCloseRequestHandler creates a new CloseRequestHandler
func NewCloseRequestHandler(closeRequestService *service.CloseRequestService, logger *zap.Logger) *CloseRequestHandler {
	return &CloseRequestHandler{
		closeRequestService: closeRequestService,
		logger:              logger,
	}
}

func (h *CloseRequestHandler) respond(w http.ResponseWriter, status int, req *domain.CloseRequest) {
	respondJSON(w, status, mapper.ToCloseRequestDTO(req))
}

// Create godoc
// @Summary Request SOW closure
// @Description Only Active SOWs accept close requests and a SOW has at most one Pending request
// @Tags Close Requests
// @Accept json
// @Produce json
// @Param id path string true "SOW ID"
// @Param request body domain.CreateCloseRequestRequest true "Close request"
// @Success 201 {object} domain.CloseRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/close-requests [post]
func (h *CloseRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	sowID, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}
	var req domain.CreateCloseRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.closeRequestService.Create(r.Context(), actor, sowID, req.Message, req.Links)
	if err != nil {
		respondServiceError(w, h.logger, err, "create close request")
		return
	}
	h.respond(w, http.StatusCreated, created)
}

// ListBySOW godoc
// @Summary List close requests for a SOW
// @Tags Close Requests
// @Produce json
// @Param id path string true "SOW ID"
// @Success 200 {array} domain.CloseRequestDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/close-requests [get]
func (h *CloseRequestHandler) ListBySOW(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	sowID, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}

	reqs, err := h.closeRequestService.ListBySOW(r.Context(), actor, sowID)
	if err != nil {
		respondServiceError(w, h.logger, err, "list close requests")
		return
	}

	dtos := make([]domain.CloseRequestDTO, len(reqs))
	for i := range reqs {
		dtos[i] = mapper.ToCloseRequestDTO(&reqs[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetLatest godoc
// @Summary Latest close request for a SOW
// @Description Responds with null when the SOW has no close request
// @Tags Close Requests
// @Produce json
// @Param id path string true "SOW ID"
// @Success 200 {object} domain.CloseRequestDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /contracts/{id}/close-requests/latest [get]
func (h *CloseRequestHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	sowID, ok := pathID(w, r, "id", "contract")
	if !ok {
		return
	}

	latest, err := h.closeRequestService.GetLatest(r.Context(), actor, sowID)
	if err != nil {
		respondServiceError(w, h.logger, err, "get latest close request")
		return
	}
	if latest == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("null\n"))
		return
	}
	h.respond(w, http.StatusOK, latest)
}

// GetByID godoc
// @Summary Get close request
// @Tags Close Requests
// @Produce json
// @Param id path string true "Close request ID"
// @Success 200 {object} domain.CloseRequestDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /close-requests/{id} [get]
func (h *CloseRequestHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "close request")
	if !ok {
		return
	}

	req, err := h.closeRequestService.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get close request")
		return
	}
	h.respond(w, http.StatusOK, req)
}

// GetHistory godoc
// @Summary Close request history
// @Tags Close Requests
// @Produce json
// @Param id path string true "Close request ID"
// @Success 200 {array} domain.CloseRequestHistoryDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /close-requests/{id}/history [get]
func (h *CloseRequestHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "close request")
	if !ok {
		return
	}

	entries, err := h.closeRequestService.ListHistory(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get close request history")
		return
	}

	dtos := make([]domain.CloseRequestHistoryDTO, len(entries))
	for i := range entries {
		dtos[i] = mapper.ToCloseRequestHistoryDTO(&entries[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// Resubmit godoc
// @Summary Resubmit a rejected close request
// @Tags Close Requests
// @Accept json
// @Produce json
// @Param id path string true "Close request ID"
// @Param request body domain.CreateCloseRequestRequest true "Updated message and links"
// @Success 200 {object} domain.CloseRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /close-requests/{id}/resubmit [post]
func (h *CloseRequestHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "close request")
	if !ok {
		return
	}
	var req domain.CreateCloseRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.closeRequestService.Resubmit(r.Context(), actor, id, req.Message, req.Links)
	if err != nil {
		respondServiceError(w, h.logger, err, "resubmit close request")
		return
	}
	h.respond(w, http.StatusOK, updated)
}

// Approve godoc
// @Summary Approve a close request
// @Description Client approval completes the SOW. confirm must be true.
// @Tags Close Requests
// @Accept json
// @Produce json
// @Param id path string true "Close request ID"
// @Param request body domain.ApproveCloseRequestRequest true "Confirmation"
// @Success 200 {object} domain.CloseRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /close-requests/{id}/approve [post]
func (h *CloseRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "close request")
	if !ok {
		return
	}
	var req domain.ApproveCloseRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	approved, err := h.closeRequestService.Approve(r.Context(), actor, id, req.Confirm)
	if err != nil {
		respondServiceError(w, h.logger, err, "approve close request")
		return
	}
	h.respond(w, http.StatusOK, approved)
}

// Reject godoc
// @Summary Reject a close request
// @Tags Close Requests
// @Accept json
// @Produce json
// @Param id path string true "Close request ID"
// @Param request body domain.RejectCloseRequestRequest true "Reason"
// @Success 200 {object} domain.CloseRequestDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /close-requests/{id}/reject [post]
func (h *CloseRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "close request")
	if !ok {
		return
	}
	var req domain.RejectCloseRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rejected, err := h.closeRequestService.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		respondServiceError(w, h.logger, err, "reject close request")
		return
	}
	h.respond(w, http.StatusOK, rejected)
}
