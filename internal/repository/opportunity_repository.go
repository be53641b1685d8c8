package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpportunityFilters contains all filter options for listing opportunities
type OpportunityFilters struct {
	Status       *domain.OpportunityStatus
	AssigneeID   *uuid.UUID
	ClientUserID *uuid.UUID
	MinValue     *float64
	MaxValue     *float64
	SearchQuery  *string
}

// OpportunitySortOption represents available sort options
type OpportunitySortOption string

const (
	OpportunitySortByCreatedDesc OpportunitySortOption = "created_desc"
	OpportunitySortByCreatedAsc  OpportunitySortOption = "created_asc"
	OpportunitySortByValueDesc   OpportunitySortOption = "value_desc"
	OpportunitySortByValueAsc    OpportunitySortOption = "value_asc"
)

type OpportunityRepository struct {
	db *gorm.DB
}

func NewOpportunityRepository(db *gorm.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

func (r *OpportunityRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *OpportunityRepository) Create(ctx context.Context, tx *gorm.DB, opp *domain.Opportunity) error {
	return r.conn(tx).WithContext(ctx).Omit(clause.Associations).Create(opp).Error
}

func (r *OpportunityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Opportunity, error) {
	var opp domain.Opportunity
	if err := r.db.WithContext(ctx).First(&opp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &opp, nil
}

// GetByContactID returns the opportunity a contact was converted into
func (r *OpportunityRepository) GetByContactID(ctx context.Context, tx *gorm.DB, contactID uuid.UUID) (*domain.Opportunity, error) {
	var opp domain.Opportunity
	if err := r.conn(tx).WithContext(ctx).First(&opp, "contact_id = ?", contactID).Error; err != nil {
		return nil, err
	}
	return &opp, nil
}

func (r *OpportunityRepository) List(ctx context.Context, page, pageSize int, filters *OpportunityFilters, sortBy OpportunitySortOption) ([]domain.Opportunity, int64, error) {
	var opps []domain.Opportunity
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Opportunity{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = r.applySorting(query, sortBy)

	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Find(&opps).Error

	return opps, total, err
}

// Update writes the given columns without touching status
func (r *OpportunityRepository) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	delete(updates, "status")
	updates["updated_at"] = time.Now().UTC()

	result := r.conn(tx).WithContext(ctx).
		Model(&domain.Opportunity{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update opportunity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// LinkContract records the contract an opportunity was converted into. It only
// succeeds once per opportunity.
func (r *OpportunityRepository) LinkContract(ctx context.Context, tx *gorm.DB, id, contractID uuid.UUID) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&domain.Opportunity{}).
		Where("id = ? AND contract_id IS NULL", id).
		Updates(map[string]interface{}{
			"contract_id": contractID,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to link contract: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *OpportunityRepository) applyFilters(query *gorm.DB, filters *OpportunityFilters) *gorm.DB {
	if filters == nil {
		return query
	}

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	if filters.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *filters.AssigneeID)
	}

	if filters.ClientUserID != nil {
		query = query.Where("client_user_id = ?", *filters.ClientUserID)
	}

	if filters.MinValue != nil {
		query = query.Where("estimated_value >= ?", *filters.MinValue)
	}

	if filters.MaxValue != nil {
		query = query.Where("estimated_value <= ?", *filters.MaxValue)
	}

	if filters.SearchQuery != nil && *filters.SearchQuery != "" {
		like := "%" + strings.ToLower(*filters.SearchQuery) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(company) LIKE ? OR LOWER(display_id) LIKE ?", like, like, like)
	}

	return query
}

func (r *OpportunityRepository) applySorting(query *gorm.DB, sortBy OpportunitySortOption) *gorm.DB {
	switch sortBy {
	case OpportunitySortByCreatedAsc:
		return query.Order("created_at ASC")
	case OpportunitySortByValueDesc:
		return query.Order("estimated_value DESC")
	case OpportunitySortByValueAsc:
		return query.Order("estimated_value ASC")
	default:
		return query.Order("created_at DESC")
	}
}
