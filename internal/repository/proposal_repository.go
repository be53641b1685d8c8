package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	var proposal domain.Proposal
	if err := r.db.WithContext(ctx).First(&proposal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

// GetCurrent returns the version flagged current for the opportunity
func (r *ProposalRepository) GetCurrent(ctx context.Context, tx *gorm.DB, opportunityID uuid.UUID) (*domain.Proposal, error) {
	var proposal domain.Proposal
	err := r.conn(tx).WithContext(ctx).
		Where("opportunity_id = ? AND is_current = ?", opportunityID, true).
		First(&proposal).Error
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListVersions returns every version of an opportunity's proposal, oldest first
func (r *ProposalRepository) ListVersions(ctx context.Context, opportunityID uuid.UUID) ([]domain.Proposal, error) {
	var proposals []domain.Proposal
	err := r.db.WithContext(ctx).
		Where("opportunity_id = ?", opportunityID).
		Order("version ASC").
		Find(&proposals).Error
	return proposals, err
}

// CountByStatus counts an opportunity's versions that are in any of the statuses
func (r *ProposalRepository) CountByStatus(ctx context.Context, tx *gorm.DB, opportunityID uuid.UUID, statuses ...domain.ProposalStatus) (int64, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&domain.Proposal{}).
		Where("opportunity_id = ? AND status IN ?", opportunityID, statuses).
		Count(&count).Error
	return count, err
}

// Update writes the given columns without touching status or version bookkeeping
func (r *ProposalRepository) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	delete(updates, "status")
	delete(updates, "version")
	delete(updates, "is_current")
	updates["updated_at"] = time.Now().UTC()

	result := r.conn(tx).WithContext(ctx).
		Model(&domain.Proposal{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update proposal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
