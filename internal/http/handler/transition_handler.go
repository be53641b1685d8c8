package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// TransitionHandler answers questions about the transition graphs without
// touching any entity
type TransitionHandler struct {
	machine *service.StateMachine
	logger  *zap.Logger
}

// NewTransitionHandler creates a new TransitionHandler
func NewTransitionHandler(machine *service.StateMachine, logger *zap.Logger) *TransitionHandler {
	return &TransitionHandler{
		machine: machine,
		logger:  logger,
	}
}

// Check godoc
// @Summary Probe a transition
// @Description Without from and to, returns the entity's transition graph. With them, reports whether role (default: the caller's acting role) may take the edge.
// @Tags Transitions
// @Produce json
// @Param entity path string true "Entity type" Enums(contact, opportunity, proposal, msa, sow, change_request, close_request)
// @Param from query string false "Current status"
// @Param to query string false "Target status"
// @Param role query string false "Role to check" Enums(client, sales, sales_manager, admin)
// @Success 200 {object} domain.TransitionCheckDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /transitions/{entity} [get]
func (h *TransitionHandler) Check(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	entity := domain.EntityType(chi.URLParam(r, "entity"))
	if !entity.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid entity: must be one of contact, opportunity, proposal, msa, sow, change_request, close_request")
		return
	}

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		graph, err := h.machine.Graph(entity)
		if err != nil {
			respondServiceError(w, h.logger, err, "get transition graph")
			return
		}
		respondJSON(w, http.StatusOK, graph)
		return
	}
	if from == "" || to == "" {
		respondWithError(w, http.StatusBadRequest, "from and to must be given together")
		return
	}

	role := actor.Role
	if raw := q.Get("role"); raw != "" {
		parsed, ok := domain.ParseActorRole(raw)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid role: must be one of client, sales, sales_manager, admin")
			return
		}
		role = parsed
	}

	result := h.machine.CanTransition(entity, from, to, role)
	respondJSON(w, http.StatusOK, domain.TransitionCheckDTO{
		Allowed: result.Allowed,
		Reason:  result.Reason,
	})
}
