package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSequenceRepository handles database operations for display number
// sequences. Each prefix (CT, OP, CHR, CR, MSA, SOW) counts independently per year.
type NumberSequenceRepository struct {
	db *gorm.DB
}

// NewNumberSequenceRepository creates a new NumberSequenceRepository
func NewNumberSequenceRepository(db *gorm.DB) *NumberSequenceRepository {
	return &NumberSequenceRepository{db: db}
}

// GetNextNumber atomically retrieves and increments the sequence for a prefix/year.
// The sequence row is locked with SELECT FOR UPDATE. When tx is given the
// increment joins the caller's transaction, so a rolled back create does not
// consume a number.
//
// Returns the next sequence number to use (already incremented in DB).
func (r *NumberSequenceRepository) GetNextNumber(ctx context.Context, tx *gorm.DB, prefix string, year int) (int, error) {
	if tx == nil {
		var next int
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			next, err = r.GetNextNumber(ctx, tx, prefix, year)
			return err
		})
		return next, err
	}

	var seq domain.NumberSequence
	now := time.Now().UTC()

	result := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND year = ?", prefix, year).
		First(&seq)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		seq = domain.NumberSequence{
			Prefix:       prefix,
			Year:         year,
			LastSequence: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&seq).Error; err != nil {
			return 0, fmt.Errorf("failed to create number sequence: %w", err)
		}
		return 1, nil
	}
	if result.Error != nil {
		return 0, fmt.Errorf("failed to get number sequence: %w", result.Error)
	}

	next := seq.LastSequence + 1
	if err := tx.WithContext(ctx).
		Model(&domain.NumberSequence{}).
		Where("prefix = ? AND year = ?", prefix, year).
		Updates(map[string]interface{}{
			"last_sequence": next,
			"updated_at":    now,
		}).Error; err != nil {
		return 0, fmt.Errorf("failed to update number sequence: %w", err)
	}
	return next, nil
}

// GetCurrentSequence retrieves the current sequence value without incrementing.
// Returns 0 if no sequence exists for the prefix/year.
func (r *NumberSequenceRepository) GetCurrentSequence(ctx context.Context, prefix string, year int) (int, error) {
	var seq domain.NumberSequence
	result := r.db.WithContext(ctx).
		Where("prefix = ? AND year = ?", prefix, year).
		First(&seq)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if result.Error != nil {
		return 0, fmt.Errorf("failed to get number sequence: %w", result.Error)
	}

	return seq.LastSequence, nil
}
