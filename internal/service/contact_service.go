package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ContactService handles inbound inquiries up to their conversion into an opportunity
type ContactService struct {
	pipelineRepo    *repository.PipelineRepository
	contactRepo     *repository.ContactRepository
	opportunityRepo *repository.OpportunityRepository
	numbers         *NumberSequenceService
	machine         *StateMachine
	notifier        Notifier
	logger          *zap.Logger
}

// NewContactService creates a new ContactService
func NewContactService(
	pipelineRepo *repository.PipelineRepository,
	contactRepo *repository.ContactRepository,
	opportunityRepo *repository.OpportunityRepository,
	numbers *NumberSequenceService,
	machine *StateMachine,
	notifier Notifier,
	logger *zap.Logger,
) *ContactService {
	return &ContactService{
		pipelineRepo:    pipelineRepo,
		contactRepo:     contactRepo,
		opportunityRepo: opportunityRepo,
		numbers:         numbers,
		machine:         machine,
		notifier:        notifier,
		logger:          logger,
	}
}

// Create records an inbound submission. Clients who are signed in are linked
// as the requester so they can follow the inquiry.
func (s *ContactService) Create(ctx context.Context, actor domain.Actor, req *domain.CreateContactRequest) (*domain.Contact, error) {
	priority := req.Priority
	if priority == "" {
		priority = domain.ContactPriorityMedium
	}
	if !priority.IsValid() {
		return nil, newValidationError("priority", "Must be one of the allowed values")
	}

	contact := &domain.Contact{
		RequesterName:  strings.TrimSpace(req.RequesterName),
		RequesterEmail: strings.TrimSpace(req.RequesterEmail),
		RequesterPhone: req.RequesterPhone,
		Company:        strings.TrimSpace(req.Company),
		Consultation:   req.Consultation,
		Status:         domain.ContactStatusNew,
		Priority:       priority,
	}
	if actor.Role == domain.RoleClient && actor.ID != uuid.Nil {
		id := actor.ID
		contact.RequesterUserID = &id
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		displayID, err := s.numbers.Next(ctx, tx, PrefixContact)
		if err != nil {
			return err
		}
		contact.DisplayID = displayID
		return s.contactRepo.Create(ctx, tx, contact)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	s.logger.Info("contact created",
		zap.String("contact_id", contact.ID.String()),
		zap.String("display_id", contact.DisplayID),
		zap.String("priority", string(contact.Priority)),
	)
	return contact, nil
}

// Get returns a contact with its communication log. Clients only see their own inquiries.
func (s *ContactService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Contact, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	contact, err := s.contactRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(contact.RequesterUserID, actor.ID) {
		return nil, fmt.Errorf("%w: contact", ErrNotFound)
	}
	return contact, nil
}

// List returns contacts with pagination. Clients are restricted to their own inquiries.
func (s *ContactService) List(ctx context.Context, actor domain.Actor, page, pageSize int, filters *repository.ContactFilters) (*domain.PaginatedResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &repository.ContactFilters{}
	}
	if actor.Role == domain.RoleClient {
		id := actor.ID
		filters.RequesterUserID = &id
	}

	page, pageSize = clampPage(page, pageSize)
	contacts, total, err := s.contactRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	dtos := make([]domain.ContactDTO, len(contacts))
	for i := range contacts {
		dtos[i] = mapper.ToContactDTO(&contacts[i])
	}
	return paginated(dtos, total, page, pageSize), nil
}

// Assign sets the sales rep responsible for the inquiry
func (s *ContactService) Assign(ctx context.Context, actor domain.Actor, id uuid.UUID, assigneeID uuid.UUID, assigneeName string) (*domain.Contact, error) {
	return s.updateOpen(ctx, actor, id, map[string]interface{}{
		"assignee_id":   assigneeID,
		"assignee_name": assigneeName,
	})
}

// SetPriority changes how urgently the inquiry should be handled
func (s *ContactService) SetPriority(ctx context.Context, actor domain.Actor, id uuid.UUID, priority domain.ContactPriority) (*domain.Contact, error) {
	if !priority.IsValid() {
		return nil, newValidationError("priority", "Must be one of the allowed values")
	}
	return s.updateOpen(ctx, actor, id, map[string]interface{}{
		"priority": priority,
	})
}

// updateOpen applies field updates while the contact is still open. The
// status is part of the WHERE clause so a concurrent conversion wins.
func (s *ContactService) updateOpen(ctx context.Context, actor domain.Actor, id uuid.UUID, updates map[string]interface{}) (*domain.Contact, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	var contact domain.Contact
	if err := s.pipelineRepo.Get(ctx, domain.EntityContact, id, &contact); err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}
	if contact.Status.IsTerminal() {
		return nil, invalidTransition("contact %s is %s and can no longer be edited", contact.DisplayID, contact.Status)
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		// Re-asserting the status inside the transaction fails the edit if the
		// contact was converted or closed after it was read.
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityContact, id, string(contact.Status), string(contact.Status), nil); err != nil {
			return err
		}
		return s.contactRepo.Update(ctx, tx, id, updates)
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}
	return s.contactRepo.GetByID(ctx, id)
}

// Transition moves the contact along its graph. Conversion has its own operation.
func (s *ContactService) Transition(ctx context.Context, actor domain.Actor, id uuid.UUID, to domain.ContactStatus) (*domain.Contact, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !to.IsValid() {
		return nil, newValidationError("status", "Must be one of the allowed values")
	}
	if to == domain.ContactStatusConvertedToOpportunity {
		return nil, newValidationError("status", "Use the convert operation to create an opportunity")
	}

	var contact domain.Contact
	if err := s.pipelineRepo.Get(ctx, domain.EntityContact, id, &contact); err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(contact.RequesterUserID, actor.ID) {
		return nil, fmt.Errorf("%w: contact", ErrNotFound)
	}

	if err := s.machine.Check(domain.EntityContact, string(contact.Status), string(to), actor.Role); err != nil {
		return nil, err
	}

	if err := s.pipelineRepo.CompareAndSetStatus(ctx, nil, domain.EntityContact, id, string(contact.Status), string(to), nil); err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}
	logTransition(s.logger, domain.EntityContact, id, string(contact.Status), string(to), actor)

	return s.contactRepo.GetByID(ctx, id)
}

// AppendCommunication adds to the communication log. The log stays writable
// after conversion and closure.
func (s *ContactService) AppendCommunication(ctx context.Context, actor domain.Actor, id uuid.UUID, req *domain.AddCommunicationRequest) (*domain.CommunicationLogEntry, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}
	if !req.Channel.IsValid() {
		return nil, newValidationError("channel", "Must be one of the allowed values")
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, newValidationError("body", "This field is required")
	}

	var contact domain.Contact
	if err := s.pipelineRepo.Get(ctx, domain.EntityContact, id, &contact); err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}

	entry := &domain.CommunicationLogEntry{
		ContactID:  id,
		Channel:    req.Channel,
		Body:       req.Body,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
	}
	if err := s.contactRepo.AppendCommunication(ctx, nil, entry); err != nil {
		return nil, fmt.Errorf("failed to append communication: %w", err)
	}
	return entry, nil
}

// ConvertToOpportunity turns an open contact into exactly one opportunity.
// The opportunity insert and the contact status change commit together.
func (s *ContactService) ConvertToOpportunity(ctx context.Context, actor domain.Actor, id uuid.UUID, req *domain.ConvertContactRequest) (*domain.Opportunity, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var contact domain.Contact
	if err := s.pipelineRepo.Get(ctx, domain.EntityContact, id, &contact); err != nil {
		return nil, translateRepoError(domain.EntityContact, err)
	}

	from := string(contact.Status)
	to := string(domain.ContactStatusConvertedToOpportunity)
	if err := s.machine.Check(domain.EntityContact, from, to, actor.Role); err != nil {
		return nil, err
	}

	title := contact.Company
	currency := "USD"
	estimate := decimal.Zero
	if req != nil {
		if req.Title != "" {
			title = req.Title
		}
		if req.Currency != "" {
			currency = strings.ToUpper(req.Currency)
		}
		estimate = decimal.NewFromFloat(req.EstimatedValue)
	}

	contactID := contact.ID
	opp := &domain.Opportunity{
		ContactID:      &contactID,
		Title:          title,
		RequesterName:  contact.RequesterName,
		RequesterEmail: contact.RequesterEmail,
		Company:        contact.Company,
		ClientUserID:   contact.RequesterUserID,
		EstimatedValue: estimate,
		Currency:       currency,
		AssigneeID:     contact.AssigneeID,
		AssigneeName:   contact.AssigneeName,
		Status:         domain.OpportunityStatusNew,
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityContact, id, from, to, nil); err != nil {
			return err
		}

		displayID, err := s.numbers.Next(ctx, tx, PrefixOpportunity)
		if err != nil {
			return err
		}
		opp.DisplayID = displayID
		if err := s.opportunityRepo.Create(ctx, tx, opp); err != nil {
			return err
		}

		return s.contactRepo.Update(ctx, tx, id, map[string]interface{}{
			"opportunity_id": opp.ID,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflictingState("contact %s already has an opportunity", contact.DisplayID)
		}
		return nil, translateRepoError(domain.EntityContact, err)
	}

	logTransition(s.logger, domain.EntityContact, id, from, to, actor)
	s.logger.Info("contact converted to opportunity",
		zap.String("contact_id", id.String()),
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("display_id", opp.DisplayID),
	)

	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationContactConverted,
		EntityType: domain.EntityOpportunity,
		EntityID:   opp.ID,
		Title:      "Contact converted",
		Message:    fmt.Sprintf("%s was converted to opportunity %s", contact.DisplayID, opp.DisplayID),
		Recipients: recipients(contact.AssigneeID),
	})

	return opp, nil
}

func ownedBy(owner *uuid.UUID, userID uuid.UUID) bool {
	return owner != nil && *owner == userID
}
