package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStatusMismatch is returned by CompareAndSetStatus when the stored status
// is no longer the one the caller read
var ErrStatusMismatch = errors.New("status mismatch")

// StatusMismatchError carries the status that was found instead of the expected one
type StatusMismatchError struct {
	Entity   domain.EntityType
	Expected string
	Current  string
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("%s status is %s, expected %s", e.Entity, e.Current, e.Expected)
}

func (e *StatusMismatchError) Unwrap() error {
	return ErrStatusMismatch
}

// PipelineRepository holds the persistence primitives every lifecycle
// operation is built on: generic lookup, atomic status compare-and-set,
// contract history append and proposal versioning.
type PipelineRepository struct {
	db *gorm.DB
}

func NewPipelineRepository(db *gorm.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

// WithTransaction executes operations within a transaction
func (r *PipelineRepository) WithTransaction(ctx context.Context, fn func(*gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *PipelineRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Get loads the entity with the given id into dest, which must point at the
// model matching the entity type
func (r *PipelineRepository) Get(ctx context.Context, entity domain.EntityType, id uuid.UUID, dest interface{}) error {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	query = scopeContractType(query, entity)
	return query.First(dest).Error
}

// Exists returns gorm.ErrRecordNotFound when no entity with the id exists
func (r *PipelineRepository) Exists(ctx context.Context, entity domain.EntityType, id uuid.UUID) error {
	var count int64
	query := r.db.WithContext(ctx).Table(entity.TableName()).Where("id = ?", id)
	query = scopeContractType(query, entity)
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up %s: %w", entity, err)
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CompareAndSetStatus moves the entity from expected to next in a single
// conditional update. When no row matches, the row is re-read to tell a
// missing entity (gorm.ErrRecordNotFound) from a concurrent change
// (*StatusMismatchError). extra columns are written in the same statement.
// Setting a status to itself is a no-op that only checks the current value.
func (r *PipelineRepository) CompareAndSetStatus(ctx context.Context, tx *gorm.DB, entity domain.EntityType, id uuid.UUID, expected, next string, extra map[string]interface{}) error {
	db := r.conn(tx).WithContext(ctx)
	table := entity.TableName()
	if table == "" {
		return fmt.Errorf("unknown entity type %q", entity)
	}

	if expected == next {
		return r.checkStatus(db, entity, id, expected)
	}

	updates := map[string]interface{}{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	query := db.Table(table).Where("id = ? AND status = ?", id, expected)
	query = scopeContractType(query, entity)

	result := query.Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update %s status: %w", entity, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.checkStatus(db, entity, id, expected)
	}
	return nil
}

func (r *PipelineRepository) checkStatus(db *gorm.DB, entity domain.EntityType, id uuid.UUID, expected string) error {
	var statuses []string
	query := db.Table(entity.TableName()).Where("id = ?", id)
	query = scopeContractType(query, entity)
	if err := query.Pluck("status", &statuses).Error; err != nil {
		return fmt.Errorf("failed to read %s status: %w", entity, err)
	}
	if len(statuses) == 0 {
		return gorm.ErrRecordNotFound
	}
	if statuses[0] != expected {
		return &StatusMismatchError{Entity: entity, Expected: expected, Current: statuses[0]}
	}
	return nil
}

// AppendHistory adds an entry to the contract's audit trail. Entries get the
// next sequence number and their occurred_at is clamped so it never precedes
// the previous entry.
func (r *PipelineRepository) AppendHistory(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, entry *domain.ContractHistoryEntry) error {
	db := r.conn(tx).WithContext(ctx)

	var last domain.ContractHistoryEntry
	err := db.Where("contract_id = ?", contractID).
		Order("sequence DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return fmt.Errorf("failed to read contract history: %w", err)
	}

	entry.ContractID = contractID
	entry.Sequence = last.Sequence + 1
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if entry.OccurredAt.Before(last.OccurredAt) {
		entry.OccurredAt = last.OccurredAt
	}

	if err := db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append contract history: %w", err)
	}
	return nil
}

// ListHistory returns a contract's history in the order it was written
func (r *PipelineRepository) ListHistory(ctx context.Context, contractID uuid.UUID) ([]domain.ContractHistoryEntry, error) {
	var entries []domain.ContractHistoryEntry
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

// CreateVersion inserts payload as the next proposal version of an
// opportunity and makes it the current one. The opportunity row is locked
// for the duration of the transaction so concurrent calls serialize, and the
// previous current version loses its flag in the same transaction.
func (r *PipelineRepository) CreateVersion(ctx context.Context, tx *gorm.DB, opportunityID uuid.UUID, payload *domain.Proposal) error {
	if tx == nil {
		return r.WithTransaction(ctx, func(tx *gorm.DB) error {
			return r.CreateVersion(ctx, tx, opportunityID, payload)
		})
	}
	db := tx.WithContext(ctx)

	var opp domain.Opportunity
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", opportunityID).
		First(&opp).Error; err != nil {
		return err
	}

	var maxVersion int
	if err := db.Model(&domain.Proposal{}).
		Where("opportunity_id = ?", opportunityID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error; err != nil {
		return fmt.Errorf("failed to read proposal versions: %w", err)
	}

	result := db.Model(&domain.Proposal{}).
		Where("opportunity_id = ? AND is_current = ?", opportunityID, true).
		Updates(map[string]interface{}{
			"is_current": false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to clear current proposal: %w", result.Error)
	}
	if result.RowsAffected > 1 {
		return fmt.Errorf("opportunity %s had %d current proposals", opportunityID, result.RowsAffected)
	}

	payload.OpportunityID = opportunityID
	payload.Version = maxVersion + 1
	payload.IsCurrent = true
	if payload.Status == "" {
		payload.Status = domain.ProposalStatusDraft
	}
	if err := db.Omit(clause.Associations).Create(payload).Error; err != nil {
		return fmt.Errorf("failed to create proposal version: %w", err)
	}
	return nil
}

func scopeContractType(query *gorm.DB, entity domain.EntityType) *gorm.DB {
	switch entity {
	case domain.EntityMSA:
		return query.Where("type = ?", domain.ContractTypeMSA)
	case domain.EntitySOW:
		return query.Where("type = ?", domain.ContractTypeSOW)
	}
	return query
}
