package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type CloseRequestRepository struct {
	db *gorm.DB
}

func NewCloseRequestRepository(db *gorm.DB) *CloseRequestRepository {
	return &CloseRequestRepository{db: db}
}

func (r *CloseRequestRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *CloseRequestRepository) Create(ctx context.Context, tx *gorm.DB, req *domain.CloseRequest) error {
	return r.conn(tx).WithContext(ctx).Create(req).Error
}

func (r *CloseRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CloseRequest, error) {
	var req domain.CloseRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// CountPending counts the SOW's close requests that are still awaiting a client decision
func (r *CloseRequestRepository) CountPending(ctx context.Context, tx *gorm.DB, sowID uuid.UUID) (int64, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&domain.CloseRequest{}).
		Where("sow_id = ? AND status = ?", sowID, domain.CloseRequestStatusPending).
		Count(&count).Error
	return count, err
}

// GetLatestForSOW returns the most recently created close request for a SOW,
// or nil when the SOW never had one
func (r *CloseRequestRepository) GetLatestForSOW(ctx context.Context, sowID uuid.UUID) (*domain.CloseRequest, error) {
	var reqs []domain.CloseRequest
	err := r.db.WithContext(ctx).
		Where("sow_id = ?", sowID).
		Order("created_at DESC").
		Limit(1).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return &reqs[0], nil
}

func (r *CloseRequestRepository) ListBySOW(ctx context.Context, sowID uuid.UUID) ([]domain.CloseRequest, error) {
	var reqs []domain.CloseRequest
	err := r.db.WithContext(ctx).
		Where("sow_id = ?", sowID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// ListPendingOlderThan returns pending requests last notified (or created)
// before the cutoff
func (r *CloseRequestRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.CloseRequest, error) {
	var reqs []domain.CloseRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.CloseRequestStatusPending).
		Where("COALESCE(last_notified_at, updated_at) < ?", cutoff).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// Update writes the given columns without touching status
func (r *CloseRequestRepository) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	delete(updates, "status")
	result := r.conn(tx).WithContext(ctx).
		Model(&domain.CloseRequest{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update close request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CloseRequestRepository) AppendHistory(ctx context.Context, tx *gorm.DB, entry *domain.CloseRequestHistoryEntry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	return r.conn(tx).WithContext(ctx).Create(entry).Error
}

// ListHistory returns the close request's attempts and decisions in order
func (r *CloseRequestRepository) ListHistory(ctx context.Context, closeRequestID uuid.UUID) ([]domain.CloseRequestHistoryEntry, error) {
	var entries []domain.CloseRequestHistoryEntry
	err := r.db.WithContext(ctx).
		Where("close_request_id = ?", closeRequestID).
		Order("occurred_at ASC, attempt ASC").
		Find(&entries).Error
	return entries, err
}
