package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// AuthHandler exposes the caller's identity and the user directory
type AuthHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(userService *service.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

// Me godoc
// @Summary Current user
// @Description The authenticated user, the role this request acts in and the roles they may switch to with X-Acting-Role
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.AuthUserDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	respondJSON(w, http.StatusOK, h.userService.Me(userCtx))
}

// ListReviewers godoc
// @Summary List proposal reviewers
// @Description Active users holding the sales manager role
// @Tags Auth
// @Produce json
// @Success 200 {array} domain.UserDTO
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /users/reviewers [get]
func (h *AuthHandler) ListReviewers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	users, err := h.userService.ListReviewers(r.Context(), actor)
	if err != nil {
		respondServiceError(w, h.logger, err, "list reviewers")
		return
	}

	dtos := make([]domain.UserDTO, len(users))
	for i := range users {
		dtos[i] = mapper.ToUserDTO(&users[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}
