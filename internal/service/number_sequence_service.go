package service

import (
	"context"
	"fmt"
	"time"

	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Display id prefixes. Each prefix has its own counter per calendar year.
const (
	PrefixContact       = "CT"
	PrefixOpportunity   = "OP"
	PrefixChangeRequest = "CHR"
	PrefixCloseRequest  = "CR"
	PrefixMSA           = "MSA"
	PrefixSOW           = "SOW"
)

// NumberSequenceService hands out human readable display ids.
//
// Format: {PREFIX}-{YEAR}-{SEQUENCE}, with the sequence zero padded to two digits
// Example: CT-2025-07, CHR-2025-112
type NumberSequenceService struct {
	repo   *repository.NumberSequenceRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewNumberSequenceService creates a new NumberSequenceService
func NewNumberSequenceService(
	repo *repository.NumberSequenceRepository,
	logger *zap.Logger,
) *NumberSequenceService {
	return &NumberSequenceService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Next generates the next display id for prefix. Passing the caller's
// transaction ties the number to the entity insert.
func (s *NumberSequenceService) Next(ctx context.Context, tx *gorm.DB, prefix string) (string, error) {
	year := s.now().UTC().Year()

	seq, err := s.repo.GetNextNumber(ctx, tx, prefix, year)
	if err != nil {
		s.logger.Error("failed to generate display id",
			zap.String("prefix", prefix),
			zap.Int("year", year),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to generate %s number: %w", prefix, err)
	}

	displayID := FormatDisplayID(prefix, year, seq)

	s.logger.Debug("generated display id",
		zap.String("prefix", prefix),
		zap.String("display_id", displayID),
	)

	return displayID, nil
}

// FormatDisplayID renders a display id like "CR-2025-03"
func FormatDisplayID(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%02d", prefix, year, seq)
}
