package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangeRequestService handles amendments to active SOWs
type ChangeRequestService struct {
	pipelineRepo      *repository.PipelineRepository
	changeRequestRepo *repository.ChangeRequestRepository
	contractRepo      *repository.ContractRepository
	numbers           *NumberSequenceService
	machine           *StateMachine
	notifier          Notifier
	logger            *zap.Logger
}

// NewChangeRequestService creates a new ChangeRequestService
func NewChangeRequestService(
	pipelineRepo *repository.PipelineRepository,
	changeRequestRepo *repository.ChangeRequestRepository,
	contractRepo *repository.ContractRepository,
	numbers *NumberSequenceService,
	machine *StateMachine,
	notifier Notifier,
	logger *zap.Logger,
) *ChangeRequestService {
	return &ChangeRequestService{
		pipelineRepo:      pipelineRepo,
		changeRequestRepo: changeRequestRepo,
		contractRepo:      contractRepo,
		numbers:           numbers,
		machine:           machine,
		notifier:          notifier,
		logger:            logger,
	}
}

// Submit files a change request against an Active SOW. The impact analysis
// must use the fields of the SOW's engagement type only.
func (s *ChangeRequestService) Submit(ctx context.Context, actor domain.Actor, contractID uuid.UUID, req *domain.SubmitChangeRequestRequest) (*domain.ChangeRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !req.Type.IsValid() {
		return nil, newValidationError("type", "Must be one of the allowed values")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, newValidationError("title", "This field is required")
	}
	if req.ExpectedExtraCost < 0 {
		return nil, newValidationError("expectedExtraCost", "Must be greater than or equal to minimum value")
	}

	contract, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, translateRepoError("contract", err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(contract.ClientUserID, actor.ID) {
		return nil, fmt.Errorf("%w: contract", ErrNotFound)
	}
	if !contract.IsSOW() || contract.EngagementType == nil {
		return nil, newValidationError("contractId", "Change requests target a SOW")
	}
	if err := ValidateImpact(*contract.EngagementType, req.ImpactAnalysis); err != nil {
		return nil, err
	}

	start, err := parseDate(req.DesiredStart)
	if err != nil {
		return nil, newValidationError("desiredStart", "Must be a date in YYYY-MM-DD format")
	}
	end, err := parseDate(req.DesiredEnd)
	if err != nil {
		return nil, newValidationError("desiredEnd", "Must be a date in YYYY-MM-DD format")
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, newValidationError("desiredEnd", "Must not be before desiredStart")
	}

	cr := &domain.ChangeRequest{
		ContractID:        contract.ID,
		Type:              req.Type,
		Title:             req.Title,
		Description:       req.Description,
		DesiredStart:      start,
		DesiredEnd:        end,
		ExpectedExtraCost: decimal.NewFromFloat(req.ExpectedExtraCost),
		Impact:            req.ImpactAnalysis,
		Status:            domain.ChangeRequestStatusSubmitted,
		SubmittedByID:     actor.ID,
		SubmittedByName:   actor.Name,
	}

	active := string(domain.ContractStatusActive)
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntitySOW, contract.ID, active, active, nil); err != nil {
			return err
		}
		displayID, err := s.numbers.Next(ctx, tx, PrefixChangeRequest)
		if err != nil {
			return err
		}
		cr.DisplayID = displayID
		return s.changeRequestRepo.Create(ctx, tx, cr)
	})
	if err != nil {
		if isStatusMismatch(err) {
			return nil, conflictingState("SOW %s is not Active", contract.DisplayID)
		}
		return nil, translateRepoError(domain.EntityChangeRequest, err)
	}

	s.logger.Info("change request submitted",
		zap.String("change_request_id", cr.ID.String()),
		zap.String("display_id", cr.DisplayID),
		zap.String("contract_id", contract.ID.String()),
	)
	return cr, nil
}

// ValidateImpact checks the impact analysis against the engagement type.
// Field errors are keyed by their JSON path.
func ValidateImpact(engagement domain.EngagementType, impact domain.ImpactAnalysis) error {
	fields := domain.FieldErrors{}
	notApplicable := fmt.Sprintf("Not applicable to a %s SOW", engagement)

	switch engagement {
	case domain.EngagementFixedPrice:
		if impact.DevHours == nil {
			fields["impactAnalysis.devHours"] = "This field is required"
		}
		if impact.EngagedEngineers != nil {
			fields["impactAnalysis.engagedEngineers"] = notApplicable
		}
		if impact.BillingDelta != nil {
			fields["impactAnalysis.billingDelta"] = notApplicable
		}
	case domain.EngagementRetainer:
		if impact.EngagedEngineers == nil {
			fields["impactAnalysis.engagedEngineers"] = "This field is required"
		}
		if impact.DevHours != nil {
			fields["impactAnalysis.devHours"] = notApplicable
		}
		if impact.TestHours != nil {
			fields["impactAnalysis.testHours"] = notApplicable
		}
		if impact.ScheduleDelayDays != nil {
			fields["impactAnalysis.scheduleDelayDays"] = notApplicable
		}
	default:
		fields["engagementType"] = "Must be one of the allowed values"
	}

	if impact.DevHours != nil && *impact.DevHours < 0 {
		fields["impactAnalysis.devHours"] = "Must be greater than or equal to minimum value"
	}
	if impact.TestHours != nil && *impact.TestHours < 0 {
		fields["impactAnalysis.testHours"] = "Must be greater than or equal to minimum value"
	}
	if impact.ScheduleDelayDays != nil && *impact.ScheduleDelayDays < 0 {
		fields["impactAnalysis.scheduleDelayDays"] = "Must be greater than or equal to minimum value"
	}
	if impact.EngagedEngineers != nil && *impact.EngagedEngineers < 0 {
		fields["impactAnalysis.engagedEngineers"] = "Must be greater than or equal to minimum value"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Get returns a change request
func (s *ChangeRequestService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.ChangeRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	cr, err := s.changeRequestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityChangeRequest, err)
	}
	if actor.Role == domain.RoleClient {
		contract, err := s.contractRepo.GetByID(ctx, cr.ContractID)
		if err != nil {
			return nil, translateRepoError("contract", err)
		}
		if !ownedBy(contract.ClientUserID, actor.ID) {
			return nil, fmt.Errorf("%w: change request", ErrNotFound)
		}
	}
	return cr, nil
}

// List returns a contract's change requests, newest first
func (s *ChangeRequestService) List(ctx context.Context, actor domain.Actor, contractID uuid.UUID, status *domain.ChangeRequestStatus) ([]domain.ChangeRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	contract, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, translateRepoError("contract", err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(contract.ClientUserID, actor.ID) {
		return nil, fmt.Errorf("%w: contract", ErrNotFound)
	}
	crs, err := s.changeRequestRepo.ListByContract(ctx, contractID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list change requests: %w", err)
	}
	return crs, nil
}

// StartReview picks up a submitted change request
func (s *ChangeRequestService) StartReview(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.ChangeRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	cr, err := s.changeRequestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityChangeRequest, err)
	}

	from, to := string(cr.Status), string(domain.ChangeRequestStatusUnderReview)
	if err := s.machine.Check(domain.EntityChangeRequest, from, to, actor.Role); err != nil {
		return nil, err
	}
	if err := s.pipelineRepo.CompareAndSetStatus(ctx, nil, domain.EntityChangeRequest, id, from, to, nil); err != nil {
		return nil, translateRepoError(domain.EntityChangeRequest, err)
	}

	logTransition(s.logger, domain.EntityChangeRequest, id, from, to, actor)
	return s.changeRequestRepo.GetByID(ctx, id)
}

// Decide approves or rejects a change request under review. A reason is
// required to reject and not accepted on approval. Approval adds the
// expected extra cost to the contract value and records it in the
// contract history in the same transaction.
func (s *ChangeRequestService) Decide(ctx context.Context, actor domain.Actor, id uuid.UUID, action domain.DecisionAction, reason string) (*domain.ChangeRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	var to domain.ChangeRequestStatus
	switch action {
	case domain.DecisionApprove:
		if reason != "" {
			return nil, newValidationError("reason", "Must be empty when approving")
		}
		to = domain.ChangeRequestStatusApproved
	case domain.DecisionReject:
		if reason == "" {
			return nil, newValidationError("reason", "This field is required when rejecting")
		}
		to = domain.ChangeRequestStatusRejected
	default:
		return nil, newValidationError("action", "Must be one of the allowed values")
	}

	cr, err := s.changeRequestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityChangeRequest, err)
	}

	from := string(cr.Status)
	if err := s.machine.Check(domain.EntityChangeRequest, from, string(to), actor.Role); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityChangeRequest, id, from, string(to), map[string]interface{}{
			"decision_reason": reason,
			"decided_by_id":   actor.ID,
			"decided_at":      now,
		}); err != nil {
			return err
		}
		if to != domain.ChangeRequestStatusApproved {
			return nil
		}

		value, err := s.contractRepo.AddValue(ctx, tx, cr.ContractID, cr.ExpectedExtraCost)
		if err != nil {
			return err
		}
		contract, err := s.contractRepo.Lock(ctx, tx, cr.ContractID)
		if err != nil {
			return err
		}
		return s.pipelineRepo.AppendHistory(ctx, tx, cr.ContractID, &domain.ContractHistoryEntry{
			Event:      domain.ContractEventChangeRequestApproved,
			FromStatus: contract.Status,
			ToStatus:   contract.Status,
			Note:       fmt.Sprintf("%s approved, value now %s %s", cr.DisplayID, value.StringFixed(2), contract.Currency),
			ActorID:    actor.ID,
			ActorName:  actor.Name,
			ActorRole:  actor.Role,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityChangeRequest, err)
	}

	logTransition(s.logger, domain.EntityChangeRequest, id, from, string(to), actor)

	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationChangeRequestDecided,
		EntityType: domain.EntityChangeRequest,
		EntityID:   id,
		Title:      "Change request decided",
		Message:    fmt.Sprintf("%s was %s", cr.DisplayID, strings.ToLower(string(to))),
		Recipients: recipients(&cr.SubmittedByID),
	})

	return s.changeRequestRepo.GetByID(ctx, id)
}
