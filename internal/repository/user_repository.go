package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListActive returns every active user. Role claims are stored as a JSON
// list, so callers filter on domain.User.HasRole.
func (r *UserRepository) ListActive(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

// Upsert creates the user on first sign-in and afterwards refreshes the
// fields that come from the identity provider
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) error {
	var existing domain.User
	err := r.db.WithContext(ctx).Where("id = ?", user.ID).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user.IsActive = true
		return r.db.WithContext(ctx).Create(user).Error
	}

	if err != nil {
		return err
	}

	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"name":          user.DisplayName,
		"roles":         string(roles),
		"last_login_at": user.LastLoginAt,
		"updated_at":    time.Now().UTC(),
	}

	// Only update email if it has a value (don't overwrite with empty)
	if user.Email != "" {
		updates["email"] = user.Email
	}

	return r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", existing.ID).Updates(updates).Error
}
