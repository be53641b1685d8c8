package mapper

import (
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
)

const (
	timestampLayout = "2006-01-02T15:04:05Z"
	dateLayout      = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// ToContactDTO converts Contact to ContactDTO
func ToContactDTO(contact *domain.Contact) domain.ContactDTO {
	dto := domain.ContactDTO{
		ID:              contact.ID,
		DisplayID:       contact.DisplayID,
		RequesterName:   contact.RequesterName,
		RequesterEmail:  contact.RequesterEmail,
		RequesterPhone:  contact.RequesterPhone,
		RequesterUserID: contact.RequesterUserID,
		Company:         contact.Company,
		Consultation:    contact.Consultation,
		Status:          contact.Status,
		Priority:        contact.Priority,
		AssigneeID:      contact.AssigneeID,
		AssigneeName:    contact.AssigneeName,
		OpportunityID:   contact.OpportunityID,
		CreatedAt:       formatTime(contact.CreatedAt),
		UpdatedAt:       formatTime(contact.UpdatedAt),
	}
	for i := range contact.Communications {
		dto.Communications = append(dto.Communications, ToCommunicationDTO(&contact.Communications[i]))
	}
	return dto
}

// ToCommunicationDTO converts a communication log entry
func ToCommunicationDTO(c *domain.CommunicationLogEntry) domain.CommunicationDTO {
	return domain.CommunicationDTO{
		ID:         c.ID,
		Sequence:   c.Sequence,
		Channel:    c.Channel,
		Body:       c.Body,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		OccurredAt: formatTime(c.OccurredAt),
	}
}

// ToOpportunityDTO converts Opportunity to OpportunityDTO
func ToOpportunityDTO(opp *domain.Opportunity) domain.OpportunityDTO {
	value, _ := opp.EstimatedValue.Float64()
	return domain.OpportunityDTO{
		ID:             opp.ID,
		DisplayID:      opp.DisplayID,
		ContactID:      opp.ContactID,
		Title:          opp.Title,
		RequesterName:  opp.RequesterName,
		RequesterEmail: opp.RequesterEmail,
		Company:        opp.Company,
		EstimatedValue: value,
		Currency:       opp.Currency,
		WinProbability: opp.WinProbability,
		AssigneeID:     opp.AssigneeID,
		AssigneeName:   opp.AssigneeName,
		Status:         opp.Status,
		LostReason:     opp.LostReason,
		ContractID:     opp.ContractID,
		ReadOnly:       opp.IsReadOnly(),
		ClosedAt:       formatTimePtr(opp.ClosedAt),
		CreatedAt:      formatTime(opp.CreatedAt),
		UpdatedAt:      formatTime(opp.UpdatedAt),
	}
}

// ToProposalDTO converts Proposal to ProposalDTO
func ToProposalDTO(p *domain.Proposal) domain.ProposalDTO {
	return domain.ProposalDTO{
		ID:             p.ID,
		OpportunityID:  p.OpportunityID,
		Version:        p.Version,
		Title:          p.Title,
		Body:           p.Body,
		Status:         p.Status,
		IsCurrent:      p.IsCurrent,
		ReviewerID:     p.ReviewerID,
		ReviewerName:   p.ReviewerName,
		ReviewAction:   p.ReviewAction,
		ReviewNotes:    p.ReviewNotes,
		ReviewedAt:     formatTimePtr(p.ReviewedAt),
		AttachmentID:   p.AttachmentID,
		ClientFeedback: p.ClientFeedback,
		SentAt:         formatTimePtr(p.SentAt),
		RespondedAt:    formatTimePtr(p.RespondedAt),
		CreatedByID:    p.CreatedByID,
		CreatedByName:  p.CreatedByName,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

// ToContractDTO converts Contract to ContractDTO
func ToContractDTO(c *domain.Contract) domain.ContractDTO {
	value, _ := c.Value.Float64()
	dto := domain.ContractDTO{
		ID:              c.ID,
		DisplayID:       c.DisplayID,
		Type:            c.Type,
		ParentID:        c.ParentID,
		OpportunityID:   c.OpportunityID,
		EngagementType:  c.EngagementType,
		Title:           c.Title,
		Status:          c.Status,
		Value:           value,
		Currency:        c.Currency,
		ClientCompany:   c.ClientCompany,
		StartDate:       formatDatePtr(c.StartDate),
		EndDate:         formatDatePtr(c.EndDate),
		BillingSyncedAt: formatTimePtr(c.BillingSyncedAt),
		CreatedAt:       formatTime(c.CreatedAt),
		UpdatedAt:       formatTime(c.UpdatedAt),
	}
	if c.InvoicedAmount.Valid {
		invoiced, _ := c.InvoicedAmount.Decimal.Float64()
		dto.InvoicedAmount = &invoiced
	}
	for _, m := range c.Milestones {
		amount, _ := m.Amount.Float64()
		dto.Milestones = append(dto.Milestones, domain.MilestoneDTO{
			Sequence: m.Sequence,
			Name:     m.Name,
			Amount:   amount,
			DueDate:  formatDatePtr(m.DueDate),
		})
	}
	for _, item := range c.RetainerItems {
		rate, _ := item.MonthlyRate.Float64()
		dto.RetainerItems = append(dto.RetainerItems, domain.RetainerItemDTO{
			Sequence:    item.Sequence,
			Role:        item.Role,
			Engineers:   item.Engineers,
			MonthlyRate: rate,
			Description: item.Description,
		})
	}
	return dto
}

// ToContractHistoryDTO converts a contract history entry
func ToContractHistoryDTO(e *domain.ContractHistoryEntry) domain.ContractHistoryDTO {
	return domain.ContractHistoryDTO{
		Sequence:   e.Sequence,
		Event:      e.Event,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		Note:       e.Note,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		ActorRole:  e.ActorRole,
		OccurredAt: formatTime(e.OccurredAt),
	}
}

// ToChangeRequestDTO converts ChangeRequest to ChangeRequestDTO
func ToChangeRequestDTO(cr *domain.ChangeRequest) domain.ChangeRequestDTO {
	cost, _ := cr.ExpectedExtraCost.Float64()
	return domain.ChangeRequestDTO{
		ID:                cr.ID,
		DisplayID:         cr.DisplayID,
		ContractID:        cr.ContractID,
		Type:              cr.Type,
		Title:             cr.Title,
		Description:       cr.Description,
		DesiredStart:      formatDatePtr(cr.DesiredStart),
		DesiredEnd:        formatDatePtr(cr.DesiredEnd),
		ExpectedExtraCost: cost,
		ImpactAnalysis:    cr.Impact,
		Status:            cr.Status,
		SubmittedByID:     cr.SubmittedByID,
		SubmittedByName:   cr.SubmittedByName,
		DecisionReason:    cr.DecisionReason,
		DecidedByID:       cr.DecidedByID,
		DecidedAt:         formatTimePtr(cr.DecidedAt),
		CreatedAt:         formatTime(cr.CreatedAt),
		UpdatedAt:         formatTime(cr.UpdatedAt),
	}
}

// ToCloseRequestDTO converts CloseRequest to CloseRequestDTO
func ToCloseRequestDTO(req *domain.CloseRequest) domain.CloseRequestDTO {
	links := req.Links
	if links == nil {
		links = []string{}
	}
	return domain.CloseRequestDTO{
		ID:            req.ID,
		DisplayID:     req.DisplayID,
		SOWID:         req.SOWID,
		Message:       req.Message,
		Links:         links,
		Status:        req.Status,
		RejectReason:  req.RejectReason,
		Attempt:       req.Attempt,
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
		DecidedByID:   req.DecidedByID,
		DecidedAt:     formatTimePtr(req.DecidedAt),
		CreatedAt:     formatTime(req.CreatedAt),
		UpdatedAt:     formatTime(req.UpdatedAt),
	}
}

// ToCloseRequestHistoryDTO converts a close request history entry
func ToCloseRequestHistoryDTO(e *domain.CloseRequestHistoryEntry) domain.CloseRequestHistoryDTO {
	return domain.CloseRequestHistoryDTO{
		Attempt:    e.Attempt,
		Event:      e.Event,
		Status:     e.Status,
		Message:    e.Message,
		Reason:     e.Reason,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		OccurredAt: formatTime(e.OccurredAt),
	}
}

// ToNotificationDTO converts Notification to NotificationDTO
func ToNotificationDTO(notification *domain.Notification) domain.NotificationDTO {
	return domain.NotificationDTO{
		ID:         notification.ID,
		Type:       notification.Type,
		Title:      notification.Title,
		Message:    notification.Message,
		Read:       notification.Read,
		CreatedAt:  formatTime(notification.CreatedAt),
		EntityID:   notification.EntityID,
		EntityType: notification.EntityType,
	}
}

// ToFileDTO converts File to FileDTO
func ToFileDTO(file *domain.File) domain.FileDTO {
	return domain.FileDTO{
		ID:          file.ID,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Size:        file.Size,
		OwnerType:   file.OwnerType,
		OwnerID:     file.OwnerID,
		CreatedAt:   formatTime(file.CreatedAt),
	}
}

// ToAuditLogDTO converts AuditLog to AuditLogDTO
func ToAuditLogDTO(log *domain.AuditLog) domain.AuditLogDTO {
	return domain.AuditLogDTO{
		ID:          log.ID,
		UserID:      log.UserID,
		UserName:    log.UserName,
		ActorRole:   log.ActorRole,
		Action:      log.Action,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		IPAddress:   log.IPAddress,
		RequestID:   log.RequestID,
		PerformedAt: formatTime(log.PerformedAt),
	}
}

// ToUserDTO converts User to UserDTO
func ToUserDTO(user *domain.User) domain.UserDTO {
	return domain.UserDTO{
		ID:    user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
	}
}
