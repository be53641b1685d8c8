package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContractFilters contains all filter options for listing contracts
type ContractFilters struct {
	Type         *domain.ContractType
	Status       *domain.ContractStatus
	ParentID     *uuid.UUID
	ClientUserID *uuid.UUID
}

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts the contract together with its milestones and retainer items
func (r *ContractRepository) Create(ctx context.Context, tx *gorm.DB, contract *domain.Contract) error {
	return r.conn(tx).WithContext(ctx).Create(contract).Error
}

func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	var contract domain.Contract
	err := r.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("RetainerItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&contract, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// Lock reads the contract row with a row lock held until tx ends
func (r *ContractRepository) Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Contract, error) {
	var contract domain.Contract
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&contract, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *ContractRepository) List(ctx context.Context, page, pageSize int, filters *ContractFilters) ([]domain.Contract, int64, error) {
	var contracts []domain.Contract
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Contract{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&contracts).Error

	return contracts, total, err
}

// ListSOWs returns the statements of work under an MSA
func (r *ContractRepository) ListSOWs(ctx context.Context, msaID uuid.UUID) ([]domain.Contract, error) {
	var sows []domain.Contract
	err := r.db.WithContext(ctx).
		Where("parent_id = ? AND type = ?", msaID, domain.ContractTypeSOW).
		Order("created_at ASC").
		Find(&sows).Error
	return sows, err
}

// ListByStatuses returns every contract in one of the statuses
func (r *ContractRepository) ListByStatuses(ctx context.Context, statuses ...domain.ContractStatus) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("display_id ASC").
		Find(&contracts).Error
	return contracts, err
}

// ReplaceBilling swaps the contract's milestones and retainer items for the given ones
func (r *ContractRepository) ReplaceBilling(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, milestones []domain.ContractMilestone, items []domain.RetainerItem) error {
	db := r.conn(tx).WithContext(ctx)

	if err := db.Where("contract_id = ?", contractID).Delete(&domain.ContractMilestone{}).Error; err != nil {
		return fmt.Errorf("failed to clear milestones: %w", err)
	}
	if err := db.Where("contract_id = ?", contractID).Delete(&domain.RetainerItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear retainer items: %w", err)
	}

	for i := range milestones {
		milestones[i].ContractID = contractID
		milestones[i].Sequence = i + 1
	}
	for i := range items {
		items[i].ContractID = contractID
		items[i].Sequence = i + 1
	}

	if len(milestones) > 0 {
		if err := db.Create(&milestones).Error; err != nil {
			return fmt.Errorf("failed to create milestones: %w", err)
		}
	}
	if len(items) > 0 {
		if err := db.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to create retainer items: %w", err)
		}
	}
	return nil
}

// AddValue increases the contract value by delta under a row lock and returns the new value
func (r *ContractRepository) AddValue(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	contract, err := r.Lock(ctx, tx, id)
	if err != nil {
		return decimal.Zero, err
	}

	value := contract.Value.Add(delta)
	if err := tx.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"value":      value,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to update contract value: %w", err)
	}
	return value, nil
}

// UpdateBillingSync stores the invoiced amount reported by the data warehouse
func (r *ContractRepository) UpdateBillingSync(ctx context.Context, id uuid.UUID, invoiced decimal.Decimal, syncedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"invoiced_amount":   invoiced,
			"billing_synced_at": syncedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update billing sync: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ContractRepository) applyFilters(query *gorm.DB, filters *ContractFilters) *gorm.DB {
	if filters == nil {
		return query
	}

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	if filters.ParentID != nil {
		query = query.Where("parent_id = ?", *filters.ParentID)
	}

	if filters.ClientUserID != nil {
		query = query.Where("client_user_id = ?", *filters.ClientUserID)
	}

	return query
}
