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

// ContactFilters contains all filter options for listing contacts
type ContactFilters struct {
	Status          *domain.ContactStatus
	Priority        *domain.ContactPriority
	AssigneeID      *uuid.UUID
	RequesterUserID *uuid.UUID
	SearchQuery     *string
}

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *ContactRepository) Create(ctx context.Context, tx *gorm.DB, contact *domain.Contact) error {
	return r.conn(tx).WithContext(ctx).Omit(clause.Associations).Create(contact).Error
}

func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.WithContext(ctx).
		Preload("Communications", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&contact, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *ContactRepository) List(ctx context.Context, page, pageSize int, filters *ContactFilters) ([]domain.Contact, int64, error) {
	var contacts []domain.Contact
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Contact{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&contacts).Error

	return contacts, total, err
}

// Update writes the given columns without touching status, which only
// changes through PipelineRepository.CompareAndSetStatus
func (r *ContactRepository) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	delete(updates, "status")
	updates["updated_at"] = time.Now().UTC()

	result := r.conn(tx).WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update contact: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendCommunication adds the entry to the end of the contact's communication
// log. Sequence numbers are dense and start at 1.
func (r *ContactRepository) AppendCommunication(ctx context.Context, tx *gorm.DB, entry *domain.CommunicationLogEntry) error {
	db := r.conn(tx).WithContext(ctx)

	var maxSeq int
	if err := db.Model(&domain.CommunicationLogEntry{}).
		Where("contact_id = ?", entry.ContactID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error; err != nil {
		return fmt.Errorf("failed to read communication log: %w", err)
	}

	entry.Sequence = maxSeq + 1
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	return db.Create(entry).Error
}

func (r *ContactRepository) applyFilters(query *gorm.DB, filters *ContactFilters) *gorm.DB {
	if filters == nil {
		return query
	}

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	if filters.Priority != nil {
		query = query.Where("priority = ?", *filters.Priority)
	}

	if filters.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *filters.AssigneeID)
	}

	if filters.RequesterUserID != nil {
		query = query.Where("requester_user_id = ?", *filters.RequesterUserID)
	}

	if filters.SearchQuery != nil && *filters.SearchQuery != "" {
		like := "%" + strings.ToLower(*filters.SearchQuery) + "%"
		query = query.Where(
			"LOWER(requester_name) LIKE ? OR LOWER(company) LIKE ? OR LOWER(display_id) LIKE ?",
			like, like, like,
		)
	}

	return query
}
