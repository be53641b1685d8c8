package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// ProposalHandler handles proposal versions and their review sub-flow
type ProposalHandler struct {
	proposalService *service.ProposalService
	maxUploadMB     int64
	logger          *zap.Logger
}

// NewProposalHandler creates a new ProposalHandler
func NewProposalHandler(proposalService *service.ProposalService, maxUploadMB int64, logger *zap.Logger) *ProposalHandler {
	return &ProposalHandler{
		proposalService: proposalService,
		maxUploadMB:     maxUploadMB,
		logger:          logger,
	}
}

func (h *ProposalHandler) respondProposal(w http.ResponseWriter, status int, p *domain.Proposal) {
	respondJSON(w, status, mapper.ToProposalDTO(p))
}

// Create godoc
// @Summary Create proposal version
// @Description Create the next proposal version for an open opportunity. The new version becomes current.
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param request body domain.CreateProposalRequest true "Proposal data"
// @Success 201 {object} domain.ProposalDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/proposals [post]
func (h *ProposalHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	oppID, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}
	var req domain.CreateProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proposal, err := h.proposalService.Create(r.Context(), actor, oppID, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create proposal")
		return
	}
	h.respondProposal(w, http.StatusCreated, proposal)
}

// ListVersions godoc
// @Summary List proposal versions
// @Description All versions for an opportunity, oldest first
// @Tags Proposals
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {array} domain.ProposalDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/proposals [get]
func (h *ProposalHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	oppID, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}

	proposals, err := h.proposalService.ListVersions(r.Context(), actor, oppID)
	if err != nil {
		respondServiceError(w, h.logger, err, "list proposal versions")
		return
	}

	dtos := make([]domain.ProposalDTO, len(proposals))
	for i := range proposals {
		dtos[i] = mapper.ToProposalDTO(&proposals[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetCurrent godoc
// @Summary Get current proposal
// @Tags Proposals
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} domain.ProposalDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /opportunities/{id}/proposals/current [get]
func (h *ProposalHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	oppID, ok := pathID(w, r, "id", "opportunity")
	if !ok {
		return
	}

	proposal, err := h.proposalService.GetCurrent(r.Context(), actor, oppID)
	if err != nil {
		respondServiceError(w, h.logger, err, "get current proposal")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// GetByID godoc
// @Summary Get proposal
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} domain.ProposalDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id} [get]
func (h *ProposalHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}

	proposal, err := h.proposalService.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get proposal")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// UpdateDraft godoc
// @Summary Update draft proposal
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param request body domain.UpdateProposalRequest true "Proposal content"
// @Success 200 {object} domain.ProposalDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id} [put]
func (h *ProposalHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}
	var req domain.UpdateProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proposal, err := h.proposalService.UpdateDraft(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update proposal")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// SubmitForReview godoc
// @Summary Submit proposal for internal review
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param request body domain.SubmitForReviewRequest true "Reviewer"
// @Success 200 {object} domain.ProposalDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id}/submit [post]
func (h *ProposalHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}
	var req domain.SubmitForReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proposal, err := h.proposalService.SubmitForReview(r.Context(), actor, id, req.ReviewerID)
	if err != nil {
		respondServiceError(w, h.logger, err, "submit proposal for review")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// Withdraw godoc
// @Summary Withdraw proposal from review
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} domain.ProposalDTO
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id}/withdraw [post]
func (h *ProposalHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}

	proposal, err := h.proposalService.WithdrawFromReview(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "withdraw proposal")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// Review godoc
// @Summary Record internal review decision
// @Description Approve, request revision (back to draft, same version) or reject. Only the assigned reviewer or an admin may decide.
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param request body domain.ReviewProposalRequest true "Decision"
// @Success 200 {object} domain.ProposalDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id}/review [post]
func (h *ProposalHandler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}
	var req domain.ReviewProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proposal, err := h.proposalService.SubmitReview(r.Context(), actor, id, req.Action, req.Notes)
	if err != nil {
		respondServiceError(w, h.logger, err, "review proposal")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// Send godoc
// @Summary Send approved proposal to client
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} domain.ProposalDTO
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id}/send [post]
func (h *ProposalHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}

	proposal, err := h.proposalService.SendToClient(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "send proposal")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// Feedback godoc
// @Summary Record client feedback
// @Description Accept the proposal, or request a revision which creates the next version as a draft
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param request body domain.ClientFeedbackRequest true "Feedback"
// @Success 200 {object} domain.ProposalDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id}/feedback [post]
func (h *ProposalHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}
	var req domain.ClientFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proposal, err := h.proposalService.ClientFeedback(r.Context(), actor, id, req.Action, req.Feedback)
	if err != nil {
		respondServiceError(w, h.logger, err, "record client feedback")
		return
	}
	h.respondProposal(w, http.StatusOK, proposal)
}

// Attach godoc
// @Summary Attach document to draft proposal
// @Description Replaces any previous attachment
// @Tags Proposals
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Proposal ID"
// @Param file formData file true "Document"
// @Success 201 {object} domain.FileDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /proposals/{id}/attachment [post]
func (h *ProposalHandler) Attach(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "proposal")
	if !ok {
		return
	}

	file, header, ok := readUpload(w, r, h.maxUploadMB)
	if !ok {
		return
	}
	defer file.Close()

	stored, err := h.proposalService.Attach(r.Context(), actor, id, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondServiceError(w, h.logger, err, "attach proposal document")
		return
	}
	respondJSON(w, http.StatusCreated, mapper.ToFileDTO(stored))
}
