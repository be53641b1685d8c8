package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpportunityService handles qualified sales engagements up to Won or Lost
type OpportunityService struct {
	pipelineRepo    *repository.PipelineRepository
	opportunityRepo *repository.OpportunityRepository
	proposalRepo    *repository.ProposalRepository
	numbers         *NumberSequenceService
	machine         *StateMachine
	logger          *zap.Logger
}

// NewOpportunityService creates a new OpportunityService
func NewOpportunityService(
	pipelineRepo *repository.PipelineRepository,
	opportunityRepo *repository.OpportunityRepository,
	proposalRepo *repository.ProposalRepository,
	numbers *NumberSequenceService,
	machine *StateMachine,
	logger *zap.Logger,
) *OpportunityService {
	return &OpportunityService{
		pipelineRepo:    pipelineRepo,
		opportunityRepo: opportunityRepo,
		proposalRepo:    proposalRepo,
		numbers:         numbers,
		machine:         machine,
		logger:          logger,
	}
}

// Create opens an opportunity that did not come from a contact
func (s *OpportunityService) Create(ctx context.Context, actor domain.Actor, req *domain.CreateOpportunityRequest) (*domain.Opportunity, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	assignee := actor.ID

	opp := &domain.Opportunity{
		Title:          req.Title,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Company:        req.Company,
		EstimatedValue: decimal.NewFromFloat(req.EstimatedValue),
		Currency:       currency,
		WinProbability: req.WinProbability,
		AssigneeID:     &assignee,
		AssigneeName:   actor.Name,
		Status:         domain.OpportunityStatusNew,
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		displayID, err := s.numbers.Next(ctx, tx, PrefixOpportunity)
		if err != nil {
			return err
		}
		opp.DisplayID = displayID
		return s.opportunityRepo.Create(ctx, tx, opp)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}

	s.logger.Info("opportunity created",
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("display_id", opp.DisplayID),
		zap.String("actor_id", actor.ID.String()),
	)
	return opp, nil
}

// Get returns an opportunity. Clients only see opportunities they are the client on.
func (s *OpportunityService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Opportunity, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	opp, err := s.opportunityRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(opp.ClientUserID, actor.ID) {
		return nil, fmt.Errorf("%w: opportunity", ErrNotFound)
	}
	return opp, nil
}

// List returns opportunities with pagination
func (s *OpportunityService) List(ctx context.Context, actor domain.Actor, page, pageSize int, filters *repository.OpportunityFilters, sortBy repository.OpportunitySortOption) (*domain.PaginatedResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &repository.OpportunityFilters{}
	}
	if actor.Role == domain.RoleClient {
		id := actor.ID
		filters.ClientUserID = &id
	}

	page, pageSize = clampPage(page, pageSize)
	opps, total, err := s.opportunityRepo.List(ctx, page, pageSize, filters, sortBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}

	dtos := make([]domain.OpportunityDTO, len(opps))
	for i := range opps {
		dtos[i] = mapper.ToOpportunityDTO(&opps[i])
	}
	return paginated(dtos, total, page, pageSize), nil
}

// Assign sets the responsible sales rep
func (s *OpportunityService) Assign(ctx context.Context, actor domain.Actor, id, assigneeID uuid.UUID, assigneeName string) (*domain.Opportunity, error) {
	return s.updateOpen(ctx, actor, id, map[string]interface{}{
		"assignee_id":   assigneeID,
		"assignee_name": assigneeName,
	})
}

// UpdateEstimate changes the estimated value and win probability
func (s *OpportunityService) UpdateEstimate(ctx context.Context, actor domain.Actor, id uuid.UUID, req *domain.UpdateEstimateRequest) (*domain.Opportunity, error) {
	if req.WinProbability < 0 || req.WinProbability > 100 {
		return nil, newValidationError("winProbability", "Must be between 0 and 100")
	}
	if req.EstimatedValue < 0 {
		return nil, newValidationError("estimatedValue", "Must be greater than or equal to minimum value")
	}
	updates := map[string]interface{}{
		"estimated_value": decimal.NewFromFloat(req.EstimatedValue),
		"win_probability": req.WinProbability,
	}
	if req.Currency != "" {
		updates["currency"] = strings.ToUpper(req.Currency)
	}
	return s.updateOpen(ctx, actor, id, updates)
}

func (s *OpportunityService) updateOpen(ctx context.Context, actor domain.Actor, id uuid.UUID, updates map[string]interface{}) (*domain.Opportunity, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	var opp domain.Opportunity
	if err := s.pipelineRepo.Get(ctx, domain.EntityOpportunity, id, &opp); err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}
	if opp.IsReadOnly() {
		return nil, invalidTransition("opportunity %s is %s and read-only", opp.DisplayID, opp.Status)
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityOpportunity, id, string(opp.Status), string(opp.Status), nil); err != nil {
			return err
		}
		return s.opportunityRepo.Update(ctx, tx, id, updates)
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}
	return s.opportunityRepo.GetByID(ctx, id)
}

// Transition applies a manual status change. Only Won and Lost are set by
// hand, the other edges follow the proposal workflow.
func (s *OpportunityService) Transition(ctx context.Context, actor domain.Actor, id uuid.UUID, to domain.OpportunityStatus, reason string) (*domain.Opportunity, error) {
	switch to {
	case domain.OpportunityStatusWon:
		return s.MarkWon(ctx, actor, id)
	case domain.OpportunityStatusLost:
		return s.MarkLost(ctx, actor, id, reason)
	}
	if !to.IsValid() {
		return nil, newValidationError("status", "Must be one of the allowed values")
	}
	return nil, newValidationError("status", fmt.Sprintf("%s is set by the proposal workflow", to))
}

// MarkWon closes the opportunity as won. At least one proposal version must
// have been approved internally or accepted by the client.
func (s *OpportunityService) MarkWon(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Opportunity, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var opp domain.Opportunity
	if err := s.pipelineRepo.Get(ctx, domain.EntityOpportunity, id, &opp); err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}

	from, to := string(opp.Status), string(domain.OpportunityStatusWon)
	if err := s.machine.Check(domain.EntityOpportunity, from, to, actor.Role); err != nil {
		return nil, err
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		count, err := s.proposalRepo.CountByStatus(ctx, tx, id,
			domain.ProposalStatusApproved, domain.ProposalStatusAccepted)
		if err != nil {
			return err
		}
		if count == 0 {
			return conflictingState("opportunity %s has no approved or accepted proposal", opp.DisplayID)
		}
		return s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityOpportunity, id, from, to, map[string]interface{}{
			"closed_at":       time.Now().UTC(),
			"win_probability": 100,
		})
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}

	logTransition(s.logger, domain.EntityOpportunity, id, from, to, actor)
	return s.opportunityRepo.GetByID(ctx, id)
}

// MarkLost closes the opportunity as lost with a reason
func (s *OpportunityService) MarkLost(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Opportunity, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newValidationError("reason", "This field is required")
	}

	var opp domain.Opportunity
	if err := s.pipelineRepo.Get(ctx, domain.EntityOpportunity, id, &opp); err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}

	from, to := string(opp.Status), string(domain.OpportunityStatusLost)
	if err := s.machine.Check(domain.EntityOpportunity, from, to, actor.Role); err != nil {
		return nil, err
	}

	err := s.pipelineRepo.CompareAndSetStatus(ctx, nil, domain.EntityOpportunity, id, from, to, map[string]interface{}{
		"lost_reason":     reason,
		"closed_at":       time.Now().UTC(),
		"win_probability": 0,
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}

	logTransition(s.logger, domain.EntityOpportunity, id, from, to, actor)
	return s.opportunityRepo.GetByID(ctx, id)
}
