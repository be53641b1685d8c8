package service

import (
	"context"
	"errors"
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

const dateLayout = "2006-01-02"

// ContractService handles MSAs and SOWs from conversion to completion
type ContractService struct {
	pipelineRepo    *repository.PipelineRepository
	contractRepo     *repository.ContractRepository
	opportunityRepo  *repository.OpportunityRepository
	closeRequestRepo *repository.CloseRequestRepository
	numbers          *NumberSequenceService
	machine          *StateMachine
	logger           *zap.Logger
}

// NewContractService creates a new ContractService
func NewContractService(
	pipelineRepo *repository.PipelineRepository,
	contractRepo *repository.ContractRepository,
	opportunityRepo *repository.OpportunityRepository,
	closeRequestRepo *repository.CloseRequestRepository,
	numbers *NumberSequenceService,
	machine *StateMachine,
	logger *zap.Logger,
) *ContractService {
	return &ContractService{
		pipelineRepo:     pipelineRepo,
		contractRepo:     contractRepo,
		opportunityRepo:  opportunityRepo,
		closeRequestRepo: closeRequestRepo,
		numbers:          numbers,
		machine:          machine,
		logger:           logger,
	}
}

// billingInput is the billing schedule of a SOW before it is persisted
type billingInput struct {
	milestones []domain.ContractMilestone
	items      []domain.RetainerItem
}

// ConvertFromOpportunity creates an MSA or a SOW from a Won opportunity and
// links the two. An opportunity converts at most once.
func (s *ContractService) ConvertFromOpportunity(ctx context.Context, actor domain.Actor, opportunityID uuid.UUID, req *domain.ConvertToContractRequest) (*domain.Contract, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}
	if !req.Type.IsValid() {
		return nil, newValidationError("type", "Must be one of the allowed values")
	}

	opp, err := s.opportunityRepo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}
	if opp.Status != domain.OpportunityStatusWon {
		return nil, invalidTransition("opportunity %s is %s, only Won opportunities convert", opp.DisplayID, opp.Status)
	}
	if opp.ContractID != nil {
		return nil, conflictingState("opportunity %s already has a contract", opp.DisplayID)
	}

	contract := &domain.Contract{
		Type:          req.Type,
		OpportunityID: &opp.ID,
		Title:         req.Title,
		Status:        domain.ContractStatusDraft,
		Value:         opp.EstimatedValue,
		Currency:      opp.Currency,
		ClientCompany: opp.Company,
		ClientUserID:  opp.ClientUserID,
	}
	if contract.Title == "" {
		contract.Title = opp.Title
	}
	if req.Value != nil {
		contract.Value = decimal.NewFromFloat(*req.Value)
	}
	if req.Currency != "" {
		contract.Currency = strings.ToUpper(req.Currency)
	}
	if err := applyDates(contract, req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	var billing *billingInput
	if req.Type == domain.ContractTypeSOW {
		if req.ParentID == nil {
			return nil, newValidationError("parentId", "A SOW requires a parent MSA")
		}
		if req.EngagementType == nil {
			return nil, newValidationError("engagementType", "A SOW requires an engagement type")
		}
		contract.ParentID = req.ParentID
		contract.EngagementType = req.EngagementType
		billing, err = buildBilling(*req.EngagementType, req.Milestones, req.RetainerItems)
		if err != nil {
			return nil, err
		}
	} else if len(req.Milestones) > 0 || len(req.RetainerItems) > 0 || req.EngagementType != nil {
		return nil, newValidationError("type", "Billing details belong on a SOW")
	}

	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityOpportunity, opp.ID,
			string(domain.OpportunityStatusWon), string(domain.OpportunityStatusWon), nil); err != nil {
			return err
		}
		if contract.ParentID != nil {
			if err := s.checkParent(ctx, tx, *contract.ParentID); err != nil {
				return err
			}
		}
		if err := s.insert(ctx, tx, actor, contract, billing); err != nil {
			return err
		}
		linked, err := s.opportunityRepo.LinkContract(ctx, tx, opp.ID, contract.ID)
		if err != nil {
			return err
		}
		if !linked {
			return conflictingState("opportunity %s already has a contract", opp.DisplayID)
		}
		return nil
	})
	if err != nil {
		return nil, translateRepoError(domain.ContractEntity(req.Type), err)
	}

	s.logger.Info("opportunity converted to contract",
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.String("display_id", contract.DisplayID),
		zap.String("type", string(contract.Type)),
	)
	return s.contractRepo.GetByID(ctx, contract.ID)
}

// CreateSOW adds a statement of work under an existing MSA
func (s *ContractService) CreateSOW(ctx context.Context, actor domain.Actor, msaID uuid.UUID, req *domain.CreateSOWRequest) (*domain.Contract, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}
	if !req.EngagementType.IsValid() {
		return nil, newValidationError("engagementType", "Must be one of the allowed values")
	}

	msa, err := s.contractRepo.GetByID(ctx, msaID)
	if err != nil {
		return nil, translateRepoError(domain.EntityMSA, err)
	}
	if msa.Type != domain.ContractTypeMSA {
		return nil, newValidationError("parentId", "Parent must be an MSA")
	}

	billing, err := buildBilling(req.EngagementType, req.Milestones, req.RetainerItems)
	if err != nil {
		return nil, err
	}

	engagement := req.EngagementType
	contract := &domain.Contract{
		Type:           domain.ContractTypeSOW,
		ParentID:       &msa.ID,
		OpportunityID:  msa.OpportunityID,
		EngagementType: &engagement,
		Title:          req.Title,
		Status:         domain.ContractStatusDraft,
		Value:          decimal.NewFromFloat(req.Value),
		Currency:       msa.Currency,
		ClientCompany:  msa.ClientCompany,
		ClientUserID:   msa.ClientUserID,
	}
	if req.Currency != "" {
		contract.Currency = strings.ToUpper(req.Currency)
	}
	if err := applyDates(contract, req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkParent(ctx, tx, msa.ID); err != nil {
			return err
		}
		return s.insert(ctx, tx, actor, contract, billing)
	})
	if err != nil {
		return nil, translateRepoError(domain.EntitySOW, err)
	}

	s.logger.Info("sow created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("display_id", contract.DisplayID),
		zap.String("msa_id", msa.ID.String()),
	)
	return s.contractRepo.GetByID(ctx, contract.ID)
}

// checkParent verifies the MSA a SOW is created under can still take work
func (s *ContractService) checkParent(ctx context.Context, tx *gorm.DB, msaID uuid.UUID) error {
	msa, err := s.contractRepo.Lock(ctx, tx, msaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newValidationError("parentId", "Parent MSA does not exist")
		}
		return err
	}
	if msa.Type != domain.ContractTypeMSA {
		return newValidationError("parentId", "Parent must be an MSA")
	}
	if msa.Status != domain.ContractStatusActive && msa.Status != domain.ContractStatusDraft {
		return conflictingState("MSA %s is %s", msa.DisplayID, msa.Status)
	}
	return nil
}

func (s *ContractService) insert(ctx context.Context, tx *gorm.DB, actor domain.Actor, contract *domain.Contract, billing *billingInput) error {
	prefix := PrefixMSA
	if contract.IsSOW() {
		prefix = PrefixSOW
	}
	displayID, err := s.numbers.Next(ctx, tx, prefix)
	if err != nil {
		return err
	}
	contract.DisplayID = displayID
	if billing != nil {
		contract.Milestones = billing.milestones
		contract.RetainerItems = billing.items
		for i := range contract.Milestones {
			contract.Milestones[i].Sequence = i + 1
		}
		for i := range contract.RetainerItems {
			contract.RetainerItems[i].Sequence = i + 1
		}
	}

	if err := s.contractRepo.Create(ctx, tx, contract); err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return s.pipelineRepo.AppendHistory(ctx, tx, contract.ID, &domain.ContractHistoryEntry{
		Event:     domain.ContractEventCreated,
		ToStatus:  contract.Status,
		Note:      fmt.Sprintf("%s %s created", contract.Type, contract.DisplayID),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ActorRole: actor.Role,
	})
}

// Get returns a contract. Clients only see contracts they are the client on.
func (s *ContractService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Contract, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	contract, err := s.contractRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError("contract", err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(contract.ClientUserID, actor.ID) {
		return nil, fmt.Errorf("%w: contract", ErrNotFound)
	}
	return contract, nil
}

// List returns contracts with pagination
func (s *ContractService) List(ctx context.Context, actor domain.Actor, page, pageSize int, filters *repository.ContractFilters) (*domain.PaginatedResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &repository.ContractFilters{}
	}
	if actor.Role == domain.RoleClient {
		id := actor.ID
		filters.ClientUserID = &id
	}

	page, pageSize = clampPage(page, pageSize)
	contracts, total, err := s.contractRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	dtos := make([]domain.ContractDTO, len(contracts))
	for i := range contracts {
		dtos[i] = mapper.ToContractDTO(&contracts[i])
	}
	return paginated(dtos, total, page, pageSize), nil
}

// ListSOWs returns the statements of work under an MSA
func (s *ContractService) ListSOWs(ctx context.Context, actor domain.Actor, msaID uuid.UUID) ([]domain.Contract, error) {
	if _, err := s.Get(ctx, actor, msaID); err != nil {
		return nil, err
	}
	sows, err := s.contractRepo.ListSOWs(ctx, msaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sows: %w", err)
	}
	return sows, nil
}

// GetHistory returns the contract's audit trail in chronological order
func (s *ContractService) GetHistory(ctx context.Context, actor domain.Actor, id uuid.UUID) ([]domain.ContractHistoryEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.pipelineRepo.ListHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract history: %w", err)
	}
	return entries, nil
}

// Transition moves a contract along its graph and records it in the history.
// A SOW can only be activated while its MSA is Active, and cannot be closed
// out while a close request is waiting for the client.
func (s *ContractService) Transition(ctx context.Context, actor domain.Actor, id uuid.UUID, to domain.ContractStatus, note string) (*domain.Contract, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !to.IsValid() {
		return nil, newValidationError("status", "Must be one of the allowed values")
	}

	contract, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	entity := domain.ContractEntity(contract.Type)
	from := string(contract.Status)
	if err := s.machine.Check(entity, from, string(to), actor.Role); err != nil {
		return nil, err
	}

	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if contract.IsSOW() && to == domain.ContractStatusActive {
			if contract.ParentID == nil {
				return conflictingState("SOW %s has no MSA", contract.DisplayID)
			}
			msa, err := s.contractRepo.Lock(ctx, tx, *contract.ParentID)
			if err != nil {
				return err
			}
			if msa.Status != domain.ContractStatusActive {
				return conflictingState("MSA %s is %s, a SOW can only be activated under an Active MSA", msa.DisplayID, msa.Status)
			}
		}
		if contract.IsSOW() && (to == domain.ContractStatusCompleted || to == domain.ContractStatusTerminated) {
			if _, err := s.contractRepo.Lock(ctx, tx, id); err != nil {
				return err
			}
			pending, err := s.closeRequestRepo.CountPending(ctx, tx, id)
			if err != nil {
				return err
			}
			if pending > 0 {
				return conflictingState("SOW %s has a close request awaiting the client", contract.DisplayID)
			}
		}
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, entity, id, from, string(to), nil); err != nil {
			return err
		}
		return s.pipelineRepo.AppendHistory(ctx, tx, id, &domain.ContractHistoryEntry{
			Event:      domain.ContractEventStatusChanged,
			FromStatus: contract.Status,
			ToStatus:   to,
			Note:       note,
			ActorID:    actor.ID,
			ActorName:  actor.Name,
			ActorRole:  actor.Role,
		})
	})
	if err != nil {
		return nil, translateRepoError(entity, err)
	}

	logTransition(s.logger, entity, id, from, string(to), actor)
	return s.contractRepo.GetByID(ctx, id)
}

// UpdateBilling replaces the billing schedule of a Draft SOW
func (s *ContractService) UpdateBilling(ctx context.Context, actor domain.Actor, id uuid.UUID, req *domain.UpdateBillingRequest) (*domain.Contract, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	contract, err := s.contractRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError("contract", err)
	}
	if !contract.IsSOW() || contract.EngagementType == nil {
		return nil, newValidationError("type", "Billing details belong on a SOW")
	}
	if contract.Status != domain.ContractStatusDraft {
		return nil, invalidTransition("SOW %s is %s, billing can only change while Draft", contract.DisplayID, contract.Status)
	}

	billing, err := buildBilling(*contract.EngagementType, req.Milestones, req.RetainerItems)
	if err != nil {
		return nil, err
	}

	draft := string(domain.ContractStatusDraft)
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntitySOW, id, draft, draft, nil); err != nil {
			return err
		}
		if err := s.contractRepo.ReplaceBilling(ctx, tx, id, billing.milestones, billing.items); err != nil {
			return err
		}
		return s.pipelineRepo.AppendHistory(ctx, tx, id, &domain.ContractHistoryEntry{
			Event:      domain.ContractEventBillingUpdated,
			FromStatus: domain.ContractStatusDraft,
			ToStatus:   domain.ContractStatusDraft,
			Note:       fmt.Sprintf("%d milestones, %d retainer items", len(billing.milestones), len(billing.items)),
			ActorID:    actor.ID,
			ActorName:  actor.Name,
			ActorRole:  actor.Role,
		})
	})
	if err != nil {
		if isStatusMismatch(err) {
			return nil, invalidTransition("SOW %s is no longer Draft", contract.DisplayID)
		}
		return nil, translateRepoError(domain.EntitySOW, err)
	}
	return s.contractRepo.GetByID(ctx, id)
}

// buildBilling checks the schedule against the engagement type. FixedPrice
// SOWs bill by milestone, Retainer SOWs by retainer item, never both.
func buildBilling(engagement domain.EngagementType, milestones []domain.MilestoneInput, items []domain.RetainerItemInput) (*billingInput, error) {
	fields := domain.FieldErrors{}
	switch engagement {
	case domain.EngagementFixedPrice:
		if len(milestones) == 0 {
			fields["milestones"] = "A FixedPrice SOW requires at least one milestone"
		}
		if len(items) > 0 {
			fields["retainerItems"] = "Not allowed for a FixedPrice SOW"
		}
	case domain.EngagementRetainer:
		if len(items) == 0 {
			fields["retainerItems"] = "A Retainer SOW requires at least one retainer item"
		}
		if len(milestones) > 0 {
			fields["milestones"] = "Not allowed for a Retainer SOW"
		}
	default:
		fields["engagementType"] = "Must be one of the allowed values"
	}

	billing := &billingInput{}
	for i, m := range milestones {
		if strings.TrimSpace(m.Name) == "" {
			fields[fmt.Sprintf("milestones[%d].name", i)] = "This field is required"
		}
		if m.Amount < 0 {
			fields[fmt.Sprintf("milestones[%d].amount", i)] = "Must be greater than or equal to minimum value"
		}
		due, err := parseDate(m.DueDate)
		if err != nil {
			fields[fmt.Sprintf("milestones[%d].dueDate", i)] = "Must be a date in YYYY-MM-DD format"
		}
		billing.milestones = append(billing.milestones, domain.ContractMilestone{
			Name:    m.Name,
			Amount:  decimal.NewFromFloat(m.Amount),
			DueDate: due,
		})
	}
	for i, item := range items {
		if strings.TrimSpace(item.Role) == "" {
			fields[fmt.Sprintf("retainerItems[%d].role", i)] = "This field is required"
		}
		if item.Engineers < 1 {
			fields[fmt.Sprintf("retainerItems[%d].engineers", i)] = "Must be at least 1"
		}
		if item.MonthlyRate < 0 {
			fields[fmt.Sprintf("retainerItems[%d].monthlyRate", i)] = "Must be greater than or equal to minimum value"
		}
		billing.items = append(billing.items, domain.RetainerItem{
			Role:        item.Role,
			Engineers:   item.Engineers,
			MonthlyRate: decimal.NewFromFloat(item.MonthlyRate),
			Description: item.Description,
		})
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return billing, nil
}

func applyDates(contract *domain.Contract, start, end *string) error {
	startDate, err := parseDate(start)
	if err != nil {
		return newValidationError("startDate", "Must be a date in YYYY-MM-DD format")
	}
	endDate, err := parseDate(end)
	if err != nil {
		return newValidationError("endDate", "Must be a date in YYYY-MM-DD format")
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		return newValidationError("endDate", "Must not be before startDate")
	}
	contract.StartDate = startDate
	contract.EndDate = endDate
	return nil
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
