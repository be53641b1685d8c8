package service

import (
	"context"
	"time"

	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
)

// UserService keeps the user directory in step with identity provider claims
type UserService struct {
	userRepo *repository.UserRepository
	logger   *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(userRepo *repository.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// RecordSignIn upserts the directory entry for an authenticated user.
// The system principal used by API keys is never recorded.
func (s *UserService) RecordSignIn(ctx context.Context, user *auth.UserContext) error {
	if user == nil || user.AuthType == auth.AuthTypeAPIKey {
		return nil
	}

	now := time.Now().UTC()
	name := user.DisplayName
	if name == "" {
		name = user.Email
	}
	return s.userRepo.Upsert(ctx, &domain.User{
		ID:          user.UserID,
		Email:       user.Email,
		DisplayName: name,
		Roles:       user.Roles,
		LastLoginAt: &now,
	})
}

// Me describes the caller and the roles they may act in
func (s *UserService) Me(user *auth.UserContext) *domain.AuthUserDTO {
	return &domain.AuthUserDTO{
		ID:         user.UserID,
		Name:       user.DisplayName,
		Email:      user.Email,
		Roles:      user.Roles,
		ActingRole: user.ActingRole,
		Available:  user.AvailableRoles(),
		Initials:   user.GetDisplayNameInitials(),
	}
}

// ListReviewers returns active users who may review proposals
func (s *UserService) ListReviewers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}
	users, err := s.userRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	reviewers := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.HasRole(domain.RoleSalesManager) {
			reviewers = append(reviewers, u)
		}
	}
	return reviewers, nil
}
