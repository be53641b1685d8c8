package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContext_ResolveActingRole(t *testing.T) {
	user := &auth.UserContext{
		UserID: uuid.New(),
		Roles:  []string{"Sales", "SalesManager", "portal-viewer"},
	}

	tests := []struct {
		name      string
		requested string
		want      domain.ActorRole
		wantErr   bool
	}{
		{name: "empty picks highest", requested: "", want: domain.RoleSalesManager},
		{name: "held role", requested: "sales", want: domain.RoleSales},
		{name: "hyphenated manager", requested: "sales-manager", want: domain.RoleSalesManager},
		{name: "role not held", requested: "admin", wantErr: true},
		{name: "unknown role", requested: "owner", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := user.ResolveActingRole(tt.requested)
			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrRoleNotHeld)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}

	t.Run("no pipeline role at all", func(t *testing.T) {
		_, err := (&auth.UserContext{Roles: []string{"viewer"}}).ResolveActingRole("")
		assert.ErrorIs(t, err, auth.ErrRoleNotHeld)
	})
}

func TestUserContext_AvailableRoles(t *testing.T) {
	user := &auth.UserContext{Roles: []string{"client", "Admin", "sales", "admin", "unknown"}}

	assert.Equal(t, []domain.ActorRole{domain.RoleAdmin, domain.RoleSales, domain.RoleClient}, user.AvailableRoles())
	assert.True(t, user.HasRole(domain.RoleAdmin))
	assert.False(t, user.HasRole(domain.RoleSalesManager))
}

func TestUserContext_GetDisplayNameInitials(t *testing.T) {
	assert.Equal(t, "KN", (&auth.UserContext{DisplayName: "kari Nordmann"}).GetDisplayNameInitials())
	assert.Equal(t, "", (&auth.UserContext{}).GetDisplayNameInitials())
}

func TestActorFromContext(t *testing.T) {
	_, ok := auth.ActorFromContext(context.Background())
	assert.False(t, ok)

	user := &auth.UserContext{
		UserID:      uuid.New(),
		DisplayName: "Ola Sales",
		ActingRole:  domain.RoleSales,
	}
	actor, ok := auth.ActorFromContext(auth.WithUserContext(context.Background(), user))
	require.True(t, ok)
	assert.Equal(t, domain.Actor{ID: user.UserID, Name: "Ola Sales", Role: domain.RoleSales}, actor)
}
