package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChangeRequestRepository struct {
	db *gorm.DB
}

func NewChangeRequestRepository(db *gorm.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) Create(ctx context.Context, tx *gorm.DB, cr *domain.ChangeRequest) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(cr).Error
}

func (r *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChangeRequest, error) {
	var cr domain.ChangeRequest
	if err := r.db.WithContext(ctx).First(&cr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

// ListByContract returns a SOW's change requests, newest first
func (r *ChangeRequestRepository) ListByContract(ctx context.Context, contractID uuid.UUID, status *domain.ChangeRequestStatus) ([]domain.ChangeRequest, error) {
	var crs []domain.ChangeRequest
	query := r.db.WithContext(ctx).Where("contract_id = ?", contractID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	err := query.Order("created_at DESC").Find(&crs).Error
	return crs, err
}
