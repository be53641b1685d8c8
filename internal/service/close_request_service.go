package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CloseRequestService asks clients to confirm a SOW is finished. A SOW has at
// most one Pending close request; the transaction that inserts one holds the
// SOW row lock and a partial unique index backs the rule.
type CloseRequestService struct {
	pipelineRepo     *repository.PipelineRepository
	closeRequestRepo *repository.CloseRequestRepository
	contractRepo     *repository.ContractRepository
	numbers          *NumberSequenceService
	machine          *StateMachine
	notifier         Notifier
	logger           *zap.Logger
	now              func() time.Time
}

// NewCloseRequestService creates a new CloseRequestService
func NewCloseRequestService(
	pipelineRepo *repository.PipelineRepository,
	closeRequestRepo *repository.CloseRequestRepository,
	contractRepo *repository.ContractRepository,
	numbers *NumberSequenceService,
	machine *StateMachine,
	notifier Notifier,
	logger *zap.Logger,
) *CloseRequestService {
	return &CloseRequestService{
		pipelineRepo:     pipelineRepo,
		closeRequestRepo: closeRequestRepo,
		contractRepo:     contractRepo,
		numbers:          numbers,
		machine:          machine,
		notifier:         notifier,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a close request for an Active SOW
func (s *CloseRequestService) Create(ctx context.Context, actor domain.Actor, sowID uuid.UUID, message string, links []string) (*domain.CloseRequest, error) {
	if err := requireInternal(actor); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, newValidationError("message", "This field is required")
	}

	req := &domain.CloseRequest{
		SOWID:         sowID,
		Message:       message,
		Links:         normalizeLinks(links),
		Status:        domain.CloseRequestStatusPending,
		Attempt:       1,
		RequesterID:   actor.ID,
		RequesterName: actor.Name,
	}

	var sow *domain.Contract
	err := s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		sow, err = s.contractRepo.Lock(ctx, tx, sowID)
		if err != nil {
			return err
		}
		if !sow.IsSOW() {
			return newValidationError("sowId", "Close requests target a SOW")
		}
		if sow.Status != domain.ContractStatusActive {
			return conflictingState("SOW %s is %s, only Active SOWs can be closed", sow.DisplayID, sow.Status)
		}

		pending, err := s.closeRequestRepo.CountPending(ctx, tx, sowID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return conflictingState("SOW %s already has a pending close request", sow.DisplayID)
		}

		displayID, err := s.numbers.Next(ctx, tx, PrefixCloseRequest)
		if err != nil {
			return err
		}
		req.DisplayID = displayID
		if err := s.closeRequestRepo.Create(ctx, tx, req); err != nil {
			return err
		}
		return s.closeRequestRepo.AppendHistory(ctx, tx, &domain.CloseRequestHistoryEntry{
			CloseRequestID: req.ID,
			Attempt:        req.Attempt,
			Event:          domain.CloseRequestEventSubmitted,
			Status:         req.Status,
			Message:        req.Message,
			ActorID:        actor.ID,
			ActorName:      actor.Name,
			OccurredAt:     s.now(),
		})
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityCloseRequest, err)
	}

	s.logger.Info("close request created",
		zap.String("close_request_id", req.ID.String()),
		zap.String("display_id", req.DisplayID),
		zap.String("sow_id", sowID.String()),
	)
	s.notifyClient(ctx, sow, req, "Close request awaiting approval")
	return req, nil
}

// Resubmit reopens a Rejected close request under the same id with a new
// message. The rejection reason is cleared and the attempt counter grows.
func (s *CloseRequestService) Resubmit(ctx context.Context, actor domain.Actor, id uuid.UUID, message string, links []string) (*domain.CloseRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, newValidationError("message", "This field is required")
	}

	req, err := s.closeRequestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(domain.EntityCloseRequest, err)
	}
	if req.Status != domain.CloseRequestStatusRejected {
		return nil, invalidTransition("cannot resubmit a close request that is %s, only Rejected requests can be resubmitted", req.Status)
	}

	from, to := string(req.Status), string(domain.CloseRequestStatusPending)
	if err := s.machine.Check(domain.EntityCloseRequest, from, to, actor.Role); err != nil {
		return nil, err
	}

	// status updates go through a table-level update, which skips the model serializer
	encodedLinks, err := json.Marshal(normalizeLinks(links))
	if err != nil {
		return nil, fmt.Errorf("failed to encode links: %w", err)
	}

	var sow *domain.Contract
	attempt := req.Attempt + 1
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		sow, err = s.contractRepo.Lock(ctx, tx, req.SOWID)
		if err != nil {
			return err
		}
		if sow.Status != domain.ContractStatusActive {
			return conflictingState("SOW %s is %s, only Active SOWs can be closed", sow.DisplayID, sow.Status)
		}
		pending, err := s.closeRequestRepo.CountPending(ctx, tx, req.SOWID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return conflictingState("SOW %s already has a pending close request", sow.DisplayID)
		}

		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityCloseRequest, id, from, to, map[string]interface{}{
			"message":          message,
			"links":            string(encodedLinks),
			"reject_reason":    "",
			"attempt":          attempt,
			"decided_by_id":    nil,
			"decided_at":       nil,
			"last_notified_at": nil,
		}); err != nil {
			return err
		}
		return s.closeRequestRepo.AppendHistory(ctx, tx, &domain.CloseRequestHistoryEntry{
			CloseRequestID: id,
			Attempt:        attempt,
			Event:          domain.CloseRequestEventResubmitted,
			Status:         domain.CloseRequestStatusPending,
			Message:        message,
			ActorID:        actor.ID,
			ActorName:      actor.Name,
			OccurredAt:     s.now(),
		})
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityCloseRequest, err)
	}

	logTransition(s.logger, domain.EntityCloseRequest, id, from, to, actor)

	updated, err := s.closeRequestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyClient(ctx, sow, updated, "Close request resubmitted")
	return updated, nil
}

// Approve records the client's confirmation and completes the SOW in the same
// transaction. confirm must be set explicitly.
func (s *CloseRequestService) Approve(ctx context.Context, actor domain.Actor, id uuid.UUID, confirm bool) (*domain.CloseRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !confirm {
		return nil, newValidationError("confirm", "Approval must be confirmed")
	}

	req, sow, err := s.loadForDecision(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	from, to := string(req.Status), string(domain.CloseRequestStatusClientApproved)
	if err := s.machine.Check(domain.EntityCloseRequest, from, to, actor.Role); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityCloseRequest, id, from, to, map[string]interface{}{
			"decided_by_id": actor.ID,
			"decided_at":    now,
		}); err != nil {
			return err
		}

		active, completed := string(domain.ContractStatusActive), string(domain.ContractStatusCompleted)
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntitySOW, sow.ID, active, completed, nil); err != nil {
			if isStatusMismatch(err) {
				return conflictingState("SOW %s is no longer Active", sow.DisplayID)
			}
			return err
		}
		if err := s.pipelineRepo.AppendHistory(ctx, tx, sow.ID, &domain.ContractHistoryEntry{
			Event:      domain.ContractEventCloseRequestApproved,
			FromStatus: domain.ContractStatusActive,
			ToStatus:   domain.ContractStatusCompleted,
			Note:       fmt.Sprintf("%s approved by client", req.DisplayID),
			ActorID:    actor.ID,
			ActorName:  actor.Name,
			ActorRole:  actor.Role,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		return s.closeRequestRepo.AppendHistory(ctx, tx, &domain.CloseRequestHistoryEntry{
			CloseRequestID: id,
			Attempt:        req.Attempt,
			Event:          domain.CloseRequestEventApproved,
			Status:         domain.CloseRequestStatusClientApproved,
			ActorID:        actor.ID,
			ActorName:      actor.Name,
			OccurredAt:     now,
		})
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityCloseRequest, err)
	}

	logTransition(s.logger, domain.EntityCloseRequest, id, from, to, actor)
	logTransition(s.logger, domain.EntitySOW, sow.ID, string(domain.ContractStatusActive), string(domain.ContractStatusCompleted), actor)
	s.notifyRequester(ctx, req, fmt.Sprintf("%s was approved, %s is completed", req.DisplayID, sow.DisplayID))

	return s.closeRequestRepo.GetByID(ctx, id)
}

// Reject records the client's refusal with a reason
func (s *CloseRequestService) Reject(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.CloseRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newValidationError("reason", "This field is required")
	}

	req, _, err := s.loadForDecision(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	from, to := string(req.Status), string(domain.CloseRequestStatusRejected)
	if err := s.machine.Check(domain.EntityCloseRequest, from, to, actor.Role); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.pipelineRepo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.pipelineRepo.CompareAndSetStatus(ctx, tx, domain.EntityCloseRequest, id, from, to, map[string]interface{}{
			"reject_reason": reason,
			"decided_by_id": actor.ID,
			"decided_at":    now,
		}); err != nil {
			return err
		}
		return s.closeRequestRepo.AppendHistory(ctx, tx, &domain.CloseRequestHistoryEntry{
			CloseRequestID: id,
			Attempt:        req.Attempt,
			Event:          domain.CloseRequestEventRejected,
			Status:         domain.CloseRequestStatusRejected,
			Reason:         reason,
			ActorID:        actor.ID,
			ActorName:      actor.Name,
			OccurredAt:     now,
		})
	})
	if err != nil {
		return nil, translateRepoError(domain.EntityCloseRequest, err)
	}

	logTransition(s.logger, domain.EntityCloseRequest, id, from, to, actor)
	s.notifyRequester(ctx, req, fmt.Sprintf("%s was rejected: %s", req.DisplayID, reason))

	return s.closeRequestRepo.GetByID(ctx, id)
}

// GetLatest returns the newest close request of a SOW. A SOW without any
// close request yields nil and no error.
func (s *CloseRequestService) GetLatest(ctx context.Context, actor domain.Actor, sowID uuid.UUID) (*domain.CloseRequest, error) {
	if _, err := s.visibleSOW(ctx, actor, sowID); err != nil {
		return nil, err
	}
	req, err := s.closeRequestRepo.GetLatestForSOW(ctx, sowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest close request: %w", err)
	}
	return req, nil
}

// Get returns a close request
func (s *CloseRequestService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.CloseRequest, error) {
	req, err := s.closeRequestRepo.GetByID(ctx, id)
	if err != nil {
		if err := requireActor(actor); err != nil {
			return nil, err
		}
		return nil, translateRepoError(domain.EntityCloseRequest, err)
	}
	if _, err := s.visibleSOW(ctx, actor, req.SOWID); err != nil {
		return nil, err
	}
	return req, nil
}

// ListBySOW returns every close request of a SOW, newest first
func (s *CloseRequestService) ListBySOW(ctx context.Context, actor domain.Actor, sowID uuid.UUID) ([]domain.CloseRequest, error) {
	if _, err := s.visibleSOW(ctx, actor, sowID); err != nil {
		return nil, err
	}
	reqs, err := s.closeRequestRepo.ListBySOW(ctx, sowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list close requests: %w", err)
	}
	return reqs, nil
}

// ListHistory returns the attempts and decisions of a close request in order
func (s *CloseRequestService) ListHistory(ctx context.Context, actor domain.Actor, id uuid.UUID) ([]domain.CloseRequestHistoryEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.closeRequestRepo.ListHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list close request history: %w", err)
	}
	return entries, nil
}

// RemindPending re-notifies the client about requests that have been
// waiting longer than age. It returns the number of reminders sent.
func (s *CloseRequestService) RemindPending(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)
	reqs, err := s.closeRequestRepo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending close requests: %w", err)
	}

	sent := 0
	for i := range reqs {
		req := &reqs[i]
		sow, err := s.contractRepo.GetByID(ctx, req.SOWID)
		if err != nil {
			s.logger.Warn("skipping close request reminder",
				zap.String("close_request_id", req.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if sow.ClientUserID == nil {
			continue
		}

		notify(ctx, s.notifier, s.logger, Event{
			Type:       domain.NotificationCloseRequestReminder,
			EntityType: domain.EntityCloseRequest,
			EntityID:   req.ID,
			Title:      "Close request still awaiting approval",
			Message:    fmt.Sprintf("%s for %s is waiting for your decision", req.DisplayID, sow.DisplayID),
			Recipients: recipients(sow.ClientUserID),
		})
		if err := s.closeRequestRepo.Update(ctx, nil, req.ID, map[string]interface{}{
			"last_notified_at": s.now(),
		}); err != nil {
			s.logger.Warn("failed to record close request reminder",
				zap.String("close_request_id", req.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent, nil
}

// loadForDecision loads a close request and its SOW, checking a client
// decides only on their own contracts
func (s *CloseRequestService) loadForDecision(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.CloseRequest, *domain.Contract, error) {
	req, err := s.closeRequestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, translateRepoError(domain.EntityCloseRequest, err)
	}
	sow, err := s.contractRepo.GetByID(ctx, req.SOWID)
	if err != nil {
		return nil, nil, translateRepoError(domain.EntitySOW, err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(sow.ClientUserID, actor.ID) {
		return nil, nil, forbidden("close request belongs to another client")
	}
	return req, sow, nil
}

func (s *CloseRequestService) visibleSOW(ctx context.Context, actor domain.Actor, sowID uuid.UUID) (*domain.Contract, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	sow, err := s.contractRepo.GetByID(ctx, sowID)
	if err != nil {
		return nil, translateRepoError(domain.EntitySOW, err)
	}
	if actor.Role == domain.RoleClient && !ownedBy(sow.ClientUserID, actor.ID) {
		return nil, fmt.Errorf("%w: sow", ErrNotFound)
	}
	return sow, nil
}

func (s *CloseRequestService) notifyClient(ctx context.Context, sow *domain.Contract, req *domain.CloseRequest, title string) {
	if sow == nil {
		return
	}
	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationCloseRequestPending,
		EntityType: domain.EntityCloseRequest,
		EntityID:   req.ID,
		Title:      title,
		Message:    fmt.Sprintf("%s asks to close %s", req.DisplayID, sow.DisplayID),
		Recipients: recipients(sow.ClientUserID),
	})
}

func (s *CloseRequestService) notifyRequester(ctx context.Context, req *domain.CloseRequest, message string) {
	notify(ctx, s.notifier, s.logger, Event{
		Type:       domain.NotificationCloseRequestDecided,
		EntityType: domain.EntityCloseRequest,
		EntityID:   req.ID,
		Title:      "Close request decided",
		Message:    message,
		Recipients: recipients(&req.RequesterID),
	})
}

func normalizeLinks(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
