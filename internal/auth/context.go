package auth

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
)

// ErrRoleNotHeld is returned when a request asks to act in a role the user lacks
var ErrRoleNotHeld = errors.New("requested role not held by user")

// Authentication methods recorded on the user context
const (
	AuthTypeJWT    = "jwt"
	AuthTypeAPIKey = "api_key"
)

// UserContext holds authenticated user information
type UserContext struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	// Roles are the raw role claims from the token
	Roles []string
	// ActingRole is the role this request is performed in
	ActingRole domain.ActorRole
	AuthType   string
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// ActorFromContext returns the actor for the authenticated request
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	user, ok := FromContext(ctx)
	if !ok || user == nil {
		return domain.Actor{}, false
	}
	return user.Actor(), true
}

// Actor converts the user context into the principal passed to services
func (u *UserContext) Actor() domain.Actor {
	return domain.Actor{
		ID:   u.UserID,
		Name: u.DisplayName,
		Role: u.ActingRole,
	}
}

// HasRole checks if any role claim maps to role
func (u *UserContext) HasRole(role domain.ActorRole) bool {
	for _, r := range u.Roles {
		if parsed, ok := domain.ParseActorRole(r); ok && parsed == role {
			return true
		}
	}
	return false
}

// AvailableRoles returns the distinct pipeline roles the user holds, most privileged first
func (u *UserContext) AvailableRoles() []domain.ActorRole {
	seen := make(map[domain.ActorRole]bool)
	roles := []domain.ActorRole{}
	for _, r := range u.Roles {
		role, ok := domain.ParseActorRole(r)
		if !ok || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		best, _ := domain.HighestRole([]string{string(roles[i]), string(roles[j])})
		return best == roles[i] && roles[i] != roles[j]
	})
	return roles
}

// ResolveActingRole picks the role for this request. An empty request selects
// the highest role held; anything else must be one of the user's roles.
func (u *UserContext) ResolveActingRole(requested string) (domain.ActorRole, error) {
	if strings.TrimSpace(requested) == "" {
		role, ok := domain.HighestRole(u.Roles)
		if !ok {
			return "", ErrRoleNotHeld
		}
		return role, nil
	}
	role, ok := domain.ParseActorRole(requested)
	if !ok || !u.HasRole(role) {
		return "", ErrRoleNotHeld
	}
	return role, nil
}

// GetDisplayNameInitials returns initials from the display name (e.g., "John Doe" -> "JD")
func (u *UserContext) GetDisplayNameInitials() string {
	if u.DisplayName == "" {
		return ""
	}
	parts := strings.Fields(u.DisplayName)
	initials := ""
	for _, part := range parts {
		if len(part) > 0 {
			initials += strings.ToUpper(string(part[0]))
		}
	}
	return initials
}
