package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// maxJSONBody bounds request bodies that are decoded as JSON
const maxJSONBody = 1 << 20

var validate = validator.New()

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondProblem(w http.ResponseWriter, problem domain.APIError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	errs := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			errs[fieldPath(fe)] = formatValidationError(fe)
		}
	}

	respondProblem(w, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: errs,
	})
}

// fieldPath renders a nested field as its JSON path, e.g. milestones[0].name
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = toJSONFieldName(p)
	}
	return strings.Join(parts, ".")
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "email":
		return "Must be a valid email address"
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "url":
		return "Must be a valid URL"
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// toJSONFieldName converts a Go struct field name to its JSON equivalent (camelCase)
func toJSONFieldName(field string) string {
	if len(field) == 0 {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondProblem(w, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	default:
		return domain.ErrorTypeInternal
	}
}

// respondServiceError maps the service error taxonomy onto problem responses.
// Unknown errors are logged and reported as 500 without detail.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, operation string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondProblem(w, domain.APIError{
			Type:   domain.ErrorTypeValidation,
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: "One or more fields failed validation",
			Errors: verr.Fields,
		})
	case errors.Is(err, service.ErrValidation):
		respondProblem(w, domain.APIError{
			Type:   domain.ErrorTypeValidation,
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		})
	case errors.Is(err, service.ErrInvalidTransition):
		respondProblem(w, domain.APIError{
			Type:   domain.ErrorTypeInvalidTransition,
			Title:  "Invalid Transition",
			Status: http.StatusConflict,
			Detail: err.Error(),
		})
	case errors.Is(err, service.ErrConflictingState):
		respondProblem(w, domain.APIError{
			Type:   domain.ErrorTypeConflictingState,
			Title:  "Conflicting State",
			Status: http.StatusConflict,
			Detail: err.Error(),
		})
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
	default:
		logger.Error("failed to "+operation, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+operation)
	}
}

// decodeJSON reads and validates a request body. A body that is not JSON or
// whose shape does not match the target is a 422; struct tag failures are a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			respondWithError(w, http.StatusBadRequest, "Request body is required")
		case errors.As(err, &typeErr):
			respondProblem(w, domain.APIError{
				Type:   domain.ErrorTypeValidation,
				Title:  "Unprocessable Entity",
				Status: http.StatusUnprocessableEntity,
				Detail: "Payload does not match the expected shape",
				Errors: map[string]string{typeErr.Field: "Must be " + typeErr.Type.String()},
			})
		default:
			respondWithError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		}
		return false
	}

	if err := validate.Struct(dst); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// actorFrom returns the actor for the authenticated request, answering 401 when there is none
func actorFrom(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return domain.Actor{}, false
	}
	return actor, true
}

// pathID parses a UUID route parameter
func pathID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s ID: must be a valid UUID", label))
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID parses an optional UUID query parameter
func queryUUID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: must be a valid UUID", name))
		return nil, false
	}
	return &id, true
}

// pagination reads page and pageSize; the services clamp the values
func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}
