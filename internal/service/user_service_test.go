package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_RecordSignIn(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	require.NoError(t, f.Users.RecordSignIn(f.ctx, &auth.UserContext{
		UserID:      id,
		DisplayName: "Marte Manager",
		Email:       "marte@example.com",
		Roles:       []string{"SalesManager"},
		AuthType:    auth.AuthTypeJWT,
	}))

	var user domain.User
	require.NoError(t, f.DB.First(&user, "id = ?", id).Error)
	assert.Equal(t, "Marte Manager", user.DisplayName)
	assert.True(t, user.IsActive)
	assert.True(t, user.HasRole(domain.RoleSalesManager))
	assert.NotNil(t, user.LastLoginAt)

	// a later sign in refreshes the role claims
	require.NoError(t, f.Users.RecordSignIn(f.ctx, &auth.UserContext{
		UserID:   id,
		Email:    "marte@example.com",
		Roles:    []string{"Sales"},
		AuthType: auth.AuthTypeJWT,
	}))
	require.NoError(t, f.DB.First(&user, "id = ?", id).Error)
	assert.False(t, user.HasRole(domain.RoleSalesManager))
	assert.True(t, user.HasRole(domain.RoleSales))
}

func TestUserService_RecordSignInSkipsAPIKeys(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	require.NoError(t, f.Users.RecordSignIn(f.ctx, &auth.UserContext{
		UserID:   id,
		Email:    "system@example.com",
		AuthType: auth.AuthTypeAPIKey,
	}))
	require.NoError(t, f.Users.RecordSignIn(f.ctx, nil))

	var count int64
	require.NoError(t, f.DB.Model(&domain.User{}).Where("id = ?", id).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUserService_ListReviewers(t *testing.T) {
	f := newFixture(t)
	testutil.SeedUser(t, f.DB, f.sales)
	inactive := testutil.SeedUser(t, f.DB, testutil.Actor(domain.RoleSalesManager))
	require.NoError(t, f.DB.Model(inactive).Update("is_active", false).Error)

	reviewers, err := f.Users.ListReviewers(f.ctx, f.sales)
	require.NoError(t, err)
	require.Len(t, reviewers, 1)
	assert.Equal(t, f.manager.ID, reviewers[0].ID)

	_, err = f.Users.ListReviewers(f.ctx, f.client)
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestUserService_Me(t *testing.T) {
	f := newFixture(t)
	me := f.Users.Me(&auth.UserContext{
		UserID:      uuid.New(),
		DisplayName: "Kari Nordmann",
		Roles:       []string{"Sales", "SalesManager"},
		ActingRole:  domain.RoleSales,
	})
	assert.Equal(t, domain.RoleSales, me.ActingRole)
	assert.Equal(t, "KN", me.Initials)
	assert.Contains(t, me.Available, domain.RoleSalesManager)
}
