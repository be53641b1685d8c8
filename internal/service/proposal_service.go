package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// clientVisibleProposals are the statuses a client can see
var clientVisibleProposals = map[domain.ProposalStatus]bool{
	domain.ProposalStatusSentToClient:      true,
	domain.ProposalStatusAccepted:          true,
	domain.ProposalStatusRevisionRequested: true,
}

// ProposalService handles proposal versions and their review and client feedback flow
type ProposalService struct {
	pipelineRepo    *repository.PipelineRepository
	proposalRepo    *repository.ProposalRepository
	opportunityRepo *repository.OpportunityRepository
	userRepo        *repository.UserRepository
	fileService     *FileService
	machine         *StateMachine
	notifier        Notifier
	logger          *zap.Logger
}

// NewProposalService creates a new ProposalService
func NewProposalService(
	pipelineRepo *repository.PipelineRepository,
	proposalRepo *repository.ProposalRepository,
	opportunityRepo *repository.OpportunityRepository,
	userRepo *repository.UserRepository,
	fileService *FileService,
	machine *StateMachine,
	notifier Notifier,
	logger *zap.Logger,
) *ProposalService {
	return &ProposalService{
		pipelineRepo:    pipelineRepo,
		proposalRepo:    proposalRepo,
		opportunityRepo: opportunityRepo,
		userRepo:        userRepo,
		fileService:     fileService,
		machine:         machine,
		notifier:        notifier,
		logger:          logger,
	}
}

// Create adds a new draft version to the opportunity and makes it current.
// It is used for the first proposal and after a version was rejected.
func (s *ProposalService) Create(ctx context.Context, actor domain.Actor, opportunityID uuid.UUID, req *domain.CreateProposalRequest) (*domain.Proposal, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	proposal := &domain.Proposal{
		Title:         req.Title,
		Body:          req.Body,
		Status:        domain.ProposalStatusDraft,
		CreatedByID:   actor.ID,
		CreatedByName: actor.Name,
	}

	var oppFrom domain.OpportunityStatus
	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var opp domain.Opportunity
		if err := tx.WithContext(ctx).First(&opp, "id = ?", opportunityID).Error; err != nil {
			return err
		}
		if opp.IsReadOnly() {
			return conflictingState("opportunity %s is %s", opp.DisplayID, opp.Status)
		}

		current, err := s.proposalRepo.GetCurrent(ctx, tx, opportunityID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if current != nil && current.Status != domain.ProposalStatusRejected && current.Status != domain.ProposalStatusRevisionRequested {
			return conflictingState("version %d is still %s", current.Version, current.Status)
		}

		if opp.Status == domain.OpportunityStatusNew {
			oppFrom = opp.Status
			to := string(domain.OpportunityStatusProposalDrafting)
			if err := s.machine.Check(domain.EntityOpportunity, string(opp.Status), to, actor.Role); err != nil {
				return err
			}
			if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityOpportunity, opportunityID, string(opp.Status), to, nil); err != nil {
				return err
			}
		}

		return s.pipelineRepo.CreateVersion(ctx, tx, opportunityID, proposal)
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}

	if oppFrom != "" {
		logTransition(s.logger, domain.EntityOpportunity, opportunityID, string(oppFrom), string(domain.OpportunityStatusProposalDrafting), actor)
	}
	s.logger.Info("proposal version created",
		zap.String("proposal_id", proposal.ID.String()),
		zap.String("opportunity_id", opportunityID.String()),
		zap.Int("version", proposal.Version),
	)
	return proposal, nil
}

// Get returns a proposal version
func (s *ProposalService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}
	if actor.Role == domain.RoleClient {
		if !clientVisibleProposals[proposal.Status] {
			return nil, fmt.Errorf("%w: proposal", ErrNotFound)
		}
		if _, err := s.clientOpportunity(ctx, actor, proposal.OpportunityID); err != nil {
			return nil, err
		}
	}
	return proposal, nil
}

// GetCurrent returns the version flagged current for the opportunity
func (s *ProposalService) GetCurrent(ctx context.Context, actor domain.Actor, opportunityID uuid.UUID) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleClient {
		if _, err := s.clientOpportunity(ctx, actor, opportunityID); err != nil {
			return nil, err
		}
	}
	proposal, err := s.proposalRepo.GetCurrent(ctx, nil, opportunityID)
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}
	if actor.Role == domain.RoleClient && !clientVisibleProposals[proposal.Status] {
		return nil, fmt.Errorf("%w: proposal", ErrNotFound)
	}
	return proposal, nil
}

// ListVersions returns every version of the opportunity's proposal by version ascending
func (s *ProposalService) ListVersions(ctx context.Context, actor domain.Actor, opportunityID uuid.UUID) ([]domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleClient {
		if _, err := s.clientOpportunity(ctx, actor, opportunityID); err != nil {
			return nil, err
		}
	}

	proposals, err := s.proposalRepo.ListVersions(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal versions: %w", err)
	}
	if actor.Role != domain.RoleClient {
		return proposals, nil
	}

	visible := make([]domain.Proposal, 0, len(proposals))
	for _, p := range proposals {
		if clientVisibleProposals[p.Status] {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// UpdateDraft edits title and body while the version is still a draft
func (s *ProposalService) UpdateDraft(ctx context.Context, actor domain.Actor, id uuid.UUID, req *domain.UpdateProposalRequest) (*domain.Proposal, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.assertDraft(ctx, tx, id); err != nil {
			return err
		}
		return s.proposalRepo.Update(ctx, tx, id, map[string]interface{}{
			"title": req.Title,
			"body":  req.Body,
		})
	})
	if err != nil {
		return nil, s.draftError(err)
	}
	return s.proposalRepo.GetByID(ctx, id)
}

func (s *ProposalService) assertDraft(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	draft := string(domain.ProposalStatusDraft)
	return s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityProposal, id, draft, draft, nil)
}

func (s *ProposalService) draftError(err error) error {
	if isStatusMismatch(err) {
		return invalidTransition("proposal can only be edited while in draft")
	}
	return translateRepoError(domain.EntityProposal, err)
}

// SubmitForReview sends a draft to a sales manager for internal review
func (s *ProposalService) SubmitForReview(ctx context.Context, actor domain.Actor, id, reviewerID uuid.UUID) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if reviewerID == uuid.Nil {
		return nil, newValidationError("reviewerId", "This field is required")
	}

	reviewer, err := s.userRepo.GetByID(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newValidationError("reviewerId", "Reviewer is unknown")
		}
		return nil, fmt.Errorf("failed to look up reviewer: %w", err)
	}
	if !reviewer.IsActive || !reviewer.HasRole(domain.RoleSalesManager) {
		return nil, newValidationError("reviewerId", "Reviewer must hold the sales manager role")
	}

	proposal, err := s.transition(ctx, actor, id, domain.ProposalStatusInternalReview, map[string]interface{}{
		"reviewer_id":   reviewer.ID,
		"reviewer_name": reviewer.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationProposalReviewRequested,
		EntityType: domain.EntityProposal,
		EntityID:   proposal.ID,
		Title:      "Proposal review requested",
		Message:    fmt.Sprintf("%s submitted version %d of %q for review", actor.Name, proposal.Version, proposal.Title),
		Recipients: []uuid.UUID{reviewer.ID},
	})
	return proposal, nil
}

// WithdrawFromReview pulls a proposal back to draft before it is reviewed
func (s *ProposalService) WithdrawFromReview(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, domain.ProposalStatusDraft, nil)
}

// SubmitReview records a sales manager's decision. Approve and Reject end
// the review, RequestRevision sends the same version back to draft.
// Concurrent reviews of the same version race on the status and only one wins.
func (s *ProposalService) SubmitReview(ctx context.Context, actor domain.Actor, id uuid.UUID, action domain.ReviewAction, notes string) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleSalesManager {
		return nil, forbidden("only a sales manager may review a proposal")
	}

	var to domain.ProposalStatus
	switch action {
	case domain.ReviewActionApprove:
		to = domain.ProposalStatusApproved
	case domain.ReviewActionRequestRevision:
		to = domain.ProposalStatusDraft
	case domain.ReviewActionReject:
		to = domain.ProposalStatusRejected
	default:
		return nil, newValidationError("action", "Must be one of the allowed values")
	}

	proposal, err := s.transition(ctx, actor, id, to, map[string]interface{}{
		"reviewer_id":   actor.ID,
		"reviewer_name": actor.Name,
		"review_action": action,
		"review_notes":  notes,
		"reviewed_at":   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationProposalReviewed,
		EntityType: domain.EntityProposal,
		EntityID:   proposal.ID,
		Title:      "Proposal reviewed",
		Message:    fmt.Sprintf("Version %d of %q: %s", proposal.Version, proposal.Title, action),
		Recipients: []uuid.UUID{proposal.CreatedByID},
	})
	return proposal, nil
}

// SendToClient delivers an approved proposal and moves the opportunity to ProposalSent
func (s *ProposalService) SendToClient(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}

	from, to := string(proposal.Status), string(domain.ProposalStatusSentToClient)
	if err := s.machine.Check(domain.EntityProposal, from, to, actor.Role); err != nil {
		return nil, err
	}

	var opp domain.Opportunity
	var oppFrom string
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).First(&opp, "id = ?", proposal.OpportunityID).Error; err != nil {
			return err
		}
		if opp.Status != domain.OpportunityStatusProposalDrafting && opp.Status != domain.OpportunityStatusRevision {
			return conflictingState("opportunity %s is %s", opp.DisplayID, opp.Status)
		}
		oppFrom = string(opp.Status)
		oppTo := string(domain.OpportunityStatusProposalSent)
		if err := s.machine.Check(domain.EntityOpportunity, oppFrom, oppTo, actor.Role); err != nil {
			return err
		}
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityProposal, id, from, to, map[string]interface{}{
			"sent_at": time.Now().UTC(),
		}); err != nil {
			return err
		}
		return s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityOpportunity, opp.ID, oppFrom, oppTo, nil)
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}

	logTransition(s.logger, domain.EntityProposal, id, from, to, actor)
	logTransition(s.logger, domain.EntityOpportunity, opp.ID, oppFrom, string(domain.OpportunityStatusProposalSent), actor)

	sent, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationProposalSent,
		EntityType: domain.EntityProposal,
		EntityID:   sent.ID,
		Title:      "New proposal",
		Message:    fmt.Sprintf("Proposal %q (version %d) is ready for your review", sent.Title, sent.Version),
		Recipients: recipients(opp.ClientUserID),
	})
	return sent, nil
}

// ClientFeedback records the client's answer to a proposal sent to them.
// Accept leaves the opportunity ready to be won. RequestRevision marks the
// version revision_requested, moves the opportunity to Revision and creates
// the next draft version as current, all in one transaction.
func (s *ProposalService) ClientFeedback(ctx context.Context, actor domain.Actor, id uuid.UUID, action domain.ClientFeedbackAction, feedback string) (*domain.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !action.IsValid() {
		return nil, newValidationError("action", "Must be one of the allowed values")
	}

	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}

	to := domain.ProposalStatusAccepted
	if action == domain.ClientFeedbackRequestRevision {
		to = domain.ProposalStatusRevisionRequested
	}
	from := string(proposal.Status)
	if err := s.machine.Check(domain.EntityProposal, from, string(to), actor.Role); err != nil {
		return nil, err
	}

	opp, err := s.opportunityRepo.GetByID(ctx, proposal.OpportunityID)
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}
	if !ownedBy(opp.ClientUserID, actor.ID) {
		return nil, forbidden("proposal belongs to another client")
	}

	var next *domain.Proposal
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityProposal, id, from, string(to), map[string]interface{}{
			"client_feedback": feedback,
			"responded_at":    time.Now().UTC(),
		}); err != nil {
			return err
		}
		if to != domain.ProposalStatusRevisionRequested {
			return nil
		}

		oppFrom, oppTo := string(opp.Status), string(domain.OpportunityStatusRevision)
		if err := s.machine.Check(domain.EntityOpportunity, oppFrom, oppTo, actor.Role); err != nil {
			return err
		}
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityOpportunity, opp.ID, oppFrom, oppTo, nil); err != nil {
			return err
		}

		next = &domain.Proposal{
			Title:         proposal.Title,
			Body:          proposal.Body,
			Status:        domain.ProposalStatusDraft,
			CreatedByID:   proposal.CreatedByID,
			CreatedByName: proposal.CreatedByName,
		}
		return s.pipelineRepo.CreateVersion(ctx, tx, opp.ID, next)
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}

	logTransition(s.logger, domain.EntityProposal, id, from, string(to), actor)
	if next != nil {
		logTransition(s.logger, domain.EntityOpportunity, opp.ID, string(opp.Status), string(domain.OpportunityStatusRevision), actor)
		s.logger.Info("proposal revision created",
			zap.String("proposal_id", next.ID.String()),
			zap.Int("version", next.Version),
		)
	}

	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationProposalClientFeedback,
		EntityType: domain.EntityProposal,
		EntityID:   id,
		Title:      "Client responded to proposal",
		Message:    fmt.Sprintf("%s: %s on version %d", opp.DisplayID, action, proposal.Version),
		Recipients: recipients(&proposal.CreatedByID, opp.AssigneeID),
	})

	return s.proposalRepo.GetByID(ctx, id)
}

// Attach stores a file as the proposal's attachment, replacing any previous
// one. The old blob is removed after the new attachment is committed.
func (s *ProposalService) Attach(ctx context.Context, actor domain.Actor, id uuid.UUID, filename, contentType string, data io.Reader) (*domain.File, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}

	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}
	if proposal.Status != domain.ProposalStatusDraft {
		return nil, invalidTransition("proposal can only be edited while in draft")
	}

	blob, err := s.fileService.Store(ctx, domain.FileOwnerProposal, id, filename, contentType, data)
	if err != nil {
		return nil, err
	}

	var file *domain.File
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.assertDraft(ctx, tx, id); err != nil {
			return err
		}
		var err error
		file, err = s.fileService.Record(ctx, tx, blob, actor)
		if err != nil {
			return err
		}
		return s.proposalRepo.Update(ctx, tx, id, map[string]interface{}{
			"attachment_id": file.ID,
		})
	})
	if err != nil {
		s.fileService.Discard(ctx, blob)
		return nil, s.draftError(err)
	}

	if proposal.AttachmentID != nil {
		s.fileService.Remove(ctx, *proposal.AttachmentID)
	}
	return file, nil
}

// transition performs a single-entity proposal status change
func (s *ProposalService) transition(ctx context.Context, actor domain.Actor, id uuid.UUID, to domain.ProposalStatus, extra map[string]interface{}) (*domain.Proposal, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}

	from := string(proposal.Status)
	if err := s.machine.Check(domain.EntityProposal, from, string(to), actor.Role); err != nil {
		return nil, err
	}

	if err := s.pipelineRepo.CompareAndSetStatus(ctx, nil, domain.EntityProposal, id, from, string(to), extra); err != nil {
		return nil, translateRepoError(domain.EntityProposal, err)
	}
	logTransition(s.logger, domain.EntityProposal, id, from, string(to), actor)

	return s.proposalRepo.GetByID(ctx, id)
}

func (s *ProposalService) clientOpportunity(ctx context.Context, actor domain.Actor, opportunityID uuid.UUID) (*domain.Opportunity, error) {
	opp, err := s.opportunityRepo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, translateRepoError(domain.EntityOpportunity, err)
	}
	if !ownedBy(opp.ClientUserID, actor.ID) {
		return nil, fmt.Errorf("%w: opportunity", ErrNotFound)
	}
	return opp, nil
}
