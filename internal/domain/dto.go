package domain

import (
	"github.com/google/uuid"
)

// DTOs for API responses

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Pagination response wrapper
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

type ContactDTO struct {
	ID              uuid.UUID          `json:"id"`
	DisplayID       string             `json:"displayId"`
	RequesterName   string             `json:"requesterName"`
	RequesterEmail  string             `json:"requesterEmail"`
	RequesterPhone  string             `json:"requesterPhone,omitempty"`
	RequesterUserID *uuid.UUID         `json:"requesterUserId,omitempty"`
	Company         string             `json:"company"`
	Consultation    string             `json:"consultation"`
	Status          ContactStatus      `json:"status"`
	Priority        ContactPriority    `json:"priority"`
	AssigneeID      *uuid.UUID         `json:"assigneeId,omitempty"`
	AssigneeName    string             `json:"assigneeName,omitempty"`
	OpportunityID   *uuid.UUID         `json:"opportunityId,omitempty"`
	Communications  []CommunicationDTO `json:"communications,omitempty"`
	CreatedAt       string             `json:"createdAt"` // ISO 8601
	UpdatedAt       string             `json:"updatedAt"` // ISO 8601
}

type CommunicationDTO struct {
	ID         uuid.UUID            `json:"id"`
	Sequence   int                  `json:"sequence"`
	Channel    CommunicationChannel `json:"channel"`
	Body       string               `json:"body"`
	AuthorID   uuid.UUID            `json:"authorId"`
	AuthorName string               `json:"authorName,omitempty"`
	OccurredAt string               `json:"occurredAt"`
}

type OpportunityDTO struct {
	ID             uuid.UUID         `json:"id"`
	DisplayID      string            `json:"displayId"`
	ContactID      *uuid.UUID        `json:"contactId,omitempty"`
	Title          string            `json:"title"`
	RequesterName  string            `json:"requesterName,omitempty"`
	RequesterEmail string            `json:"requesterEmail,omitempty"`
	Company        string            `json:"company,omitempty"`
	EstimatedValue float64           `json:"estimatedValue"`
	Currency       string            `json:"currency"`
	WinProbability int               `json:"winProbability"`
	AssigneeID     *uuid.UUID        `json:"assigneeId,omitempty"`
	AssigneeName   string            `json:"assigneeName,omitempty"`
	Status         OpportunityStatus `json:"status"`
	LostReason     string            `json:"lostReason,omitempty"`
	ContractID     *uuid.UUID        `json:"contractId,omitempty"`
	ReadOnly       bool              `json:"readOnly"`
	ClosedAt       *string           `json:"closedAt,omitempty"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

type ProposalDTO struct {
	ID             uuid.UUID      `json:"id"`
	OpportunityID  uuid.UUID      `json:"opportunityId"`
	Version        int            `json:"version"`
	Title          string         `json:"title"`
	Body           string         `json:"body,omitempty"`
	Status         ProposalStatus `json:"status"`
	IsCurrent      bool           `json:"isCurrent"`
	ReviewerID     *uuid.UUID     `json:"reviewerId,omitempty"`
	ReviewerName   string         `json:"reviewerName,omitempty"`
	ReviewAction   *ReviewAction  `json:"reviewAction,omitempty"`
	ReviewNotes    string         `json:"reviewNotes,omitempty"`
	ReviewedAt     *string        `json:"reviewedAt,omitempty"`
	AttachmentID   *uuid.UUID     `json:"attachmentId,omitempty"`
	ClientFeedback string         `json:"clientFeedback,omitempty"`
	SentAt         *string        `json:"sentAt,omitempty"`
	RespondedAt    *string        `json:"respondedAt,omitempty"`
	CreatedByID    uuid.UUID      `json:"createdById"`
	CreatedByName  string         `json:"createdByName,omitempty"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
}

type ContractDTO struct {
	ID              uuid.UUID         `json:"id"`
	DisplayID       string            `json:"displayId"`
	Type            ContractType      `json:"type"`
	ParentID        *uuid.UUID        `json:"parentId,omitempty"`
	OpportunityID   *uuid.UUID        `json:"opportunityId,omitempty"`
	EngagementType  *EngagementType   `json:"engagementType,omitempty"`
	Title           string            `json:"title"`
	Status          ContractStatus    `json:"status"`
	Value           float64           `json:"value"`
	Currency        string            `json:"currency"`
	ClientCompany   string            `json:"clientCompany,omitempty"`
	StartDate       *string           `json:"startDate,omitempty"`
	EndDate         *string           `json:"endDate,omitempty"`
	InvoicedAmount  *float64          `json:"invoicedAmount,omitempty"`
	BillingSyncedAt *string           `json:"billingSyncedAt,omitempty"`
	Milestones      []MilestoneDTO    `json:"milestones,omitempty"`
	RetainerItems   []RetainerItemDTO `json:"retainerItems,omitempty"`
	CreatedAt       string            `json:"createdAt"`
	UpdatedAt       string            `json:"updatedAt"`
}

type MilestoneDTO struct {
	Sequence int     `json:"sequence"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	DueDate  *string `json:"dueDate,omitempty"`
}

type RetainerItemDTO struct {
	Sequence    int     `json:"sequence"`
	Role        string  `json:"role"`
	Engineers   int     `json:"engineers"`
	MonthlyRate float64 `json:"monthlyRate"`
	Description string  `json:"description,omitempty"`
}

type ContractHistoryDTO struct {
	Sequence   int            `json:"sequence"`
	Event      ContractEvent  `json:"event"`
	FromStatus ContractStatus `json:"fromStatus,omitempty"`
	ToStatus   ContractStatus `json:"toStatus,omitempty"`
	Note       string         `json:"note,omitempty"`
	ActorID    uuid.UUID      `json:"actorId"`
	ActorName  string         `json:"actorName,omitempty"`
	ActorRole  ActorRole      `json:"actorRole,omitempty"`
	OccurredAt string         `json:"occurredAt"`
}

type ChangeRequestDTO struct {
	ID                uuid.UUID           `json:"id"`
	DisplayID         string              `json:"displayId"`
	ContractID        uuid.UUID           `json:"contractId"`
	Type              ChangeRequestType   `json:"type"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	DesiredStart      *string             `json:"desiredStart,omitempty"`
	DesiredEnd        *string             `json:"desiredEnd,omitempty"`
	ExpectedExtraCost float64             `json:"expectedExtraCost"`
	ImpactAnalysis    ImpactAnalysis      `json:"impactAnalysis"`
	Status            ChangeRequestStatus `json:"status"`
	SubmittedByID     uuid.UUID           `json:"submittedById"`
	SubmittedByName   string              `json:"submittedByName,omitempty"`
	DecisionReason    string              `json:"decisionReason,omitempty"`
	DecidedByID       *uuid.UUID          `json:"decidedById,omitempty"`
	DecidedAt         *string             `json:"decidedAt,omitempty"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt"`
}

type CloseRequestDTO struct {
	ID            uuid.UUID          `json:"id"`
	DisplayID     string             `json:"displayId"`
	SOWID         uuid.UUID          `json:"sowId"`
	Message       string             `json:"message"`
	Links         []string           `json:"links"`
	Status        CloseRequestStatus `json:"status"`
	RejectReason  string             `json:"rejectReason,omitempty"`
	Attempt       int                `json:"attempt"`
	RequesterID   uuid.UUID          `json:"requesterId"`
	RequesterName string             `json:"requesterName,omitempty"`
	DecidedByID   *uuid.UUID         `json:"decidedById,omitempty"`
	DecidedAt     *string            `json:"decidedAt,omitempty"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt"`
}

type CloseRequestHistoryDTO struct {
	Attempt    int                `json:"attempt"`
	Event      CloseRequestEvent  `json:"event"`
	Status     CloseRequestStatus `json:"status"`
	Message    string             `json:"message,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	ActorID    uuid.UUID          `json:"actorId"`
	ActorName  string             `json:"actorName,omitempty"`
	OccurredAt string             `json:"occurredAt"`
}

// TransitionGraphDTO exposes an entity's transition table so clients can
// derive status labels and available actions from the same source
type TransitionGraphDTO struct {
	Entity   EntityType          `json:"entity"`
	Statuses []string            `json:"statuses"`
	Edges    []TransitionEdgeDTO `json:"edges"`
}

type TransitionEdgeDTO struct {
	From  string      `json:"from"`
	To    string      `json:"to"`
	Roles []ActorRole `json:"roles"`
}

// TransitionCheckDTO is the answer to a "can this role move this entity" probe
type TransitionCheckDTO struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type NotificationDTO struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Read       bool       `json:"read"`
	CreatedAt  string     `json:"createdAt"` // ISO 8601
	EntityID   *uuid.UUID `json:"entityId,omitempty"`
	EntityType string     `json:"entityType,omitempty"`
}

// UnreadCountDTO represents the count of unread notifications
type UnreadCountDTO struct {
	Count int `json:"count"`
}

type FileDTO struct {
	ID          uuid.UUID     `json:"id"`
	Filename    string        `json:"filename"`
	ContentType string        `json:"contentType"`
	Size        int64         `json:"size"`
	OwnerType   FileOwnerType `json:"ownerType"`
	OwnerID     uuid.UUID     `json:"ownerId"`
	CreatedAt   string        `json:"createdAt"`
}

type AuditLogDTO struct {
	ID          uuid.UUID   `json:"id"`
	UserID      string      `json:"userId,omitempty"`
	UserName    string      `json:"userName,omitempty"`
	ActorRole   ActorRole   `json:"actorRole,omitempty"`
	Action      AuditAction `json:"action"`
	EntityType  string      `json:"entityType"`
	EntityID    *uuid.UUID  `json:"entityId,omitempty"`
	IPAddress   string      `json:"ipAddress,omitempty"`
	RequestID   string      `json:"requestId,omitempty"`
	PerformedAt string      `json:"performedAt"`
}

// Request DTOs

type CreateContactRequest struct {
	RequesterName  string          `json:"requesterName" validate:"required,max=200"`
	RequesterEmail string          `json:"requesterEmail" validate:"required,email,max=255"`
	RequesterPhone string          `json:"requesterPhone,omitempty" validate:"max=50"`
	Company        string          `json:"company" validate:"required,max=200"`
	Consultation   string          `json:"consultation" validate:"required,max=10000"`
	Priority       ContactPriority `json:"priority,omitempty" validate:"omitempty,oneof=Low Medium High Urgent"`
}

type AssignRequest struct {
	AssigneeID   uuid.UUID `json:"assigneeId" validate:"required"`
	AssigneeName string    `json:"assigneeName,omitempty" validate:"max=200"`
}

type SetPriorityRequest struct {
	Priority ContactPriority `json:"priority" validate:"required,oneof=Low Medium High Urgent"`
}

// TransitionRequest moves an entity along an edge that has no dedicated
// operation of its own
type TransitionRequest struct {
	Status string `json:"status" validate:"required,max=50"`
	Note   string `json:"note,omitempty" validate:"max=2000"`
}

type AddCommunicationRequest struct {
	Channel CommunicationChannel `json:"channel" validate:"required,oneof=email phone meeting note"`
	Body    string               `json:"body" validate:"required,max=10000"`
}

type ConvertContactRequest struct {
	Title          string  `json:"title,omitempty" validate:"max=200"`
	EstimatedValue float64 `json:"estimatedValue,omitempty" validate:"gte=0"`
	Currency       string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type CreateOpportunityRequest struct {
	Title          string  `json:"title" validate:"required,max=200"`
	RequesterName  string  `json:"requesterName,omitempty" validate:"max=200"`
	RequesterEmail string  `json:"requesterEmail,omitempty" validate:"omitempty,email,max=255"`
	Company        string  `json:"company" validate:"required,max=200"`
	EstimatedValue float64 `json:"estimatedValue,omitempty" validate:"gte=0"`
	Currency       string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	WinProbability int     `json:"winProbability,omitempty" validate:"min=0,max=100"`
}

type UpdateEstimateRequest struct {
	EstimatedValue float64 `json:"estimatedValue" validate:"gte=0"`
	Currency       string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	WinProbability int     `json:"winProbability" validate:"min=0,max=100"`
}

type CreateProposalRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body,omitempty" validate:"max=100000"`
}

type UpdateProposalRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body,omitempty" validate:"max=100000"`
}

type ReviewProposalRequest struct {
	Action ReviewAction `json:"action" validate:"required,oneof=Approve RequestRevision Reject"`
	Notes  string       `json:"notes,omitempty" validate:"max=5000"`
}

type ClientFeedbackRequest struct {
	Action   ClientFeedbackAction `json:"action" validate:"required,oneof=Accept RequestRevision"`
	Feedback string               `json:"feedback,omitempty" validate:"max=5000"`
}

type MilestoneInput struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Amount  float64 `json:"amount" validate:"gte=0"`
	DueDate *string `json:"dueDate,omitempty"`
}

type RetainerItemInput struct {
	Role        string  `json:"role" validate:"required,max=100"`
	Engineers   int     `json:"engineers" validate:"min=1"`
	MonthlyRate float64 `json:"monthlyRate" validate:"gte=0"`
	Description string  `json:"description,omitempty" validate:"max=2000"`
}

// ConvertToContractRequest converts a Won opportunity into an MSA or a SOW
type ConvertToContractRequest struct {
	Type           ContractType        `json:"type" validate:"required,oneof=MSA SOW"`
	Title          string              `json:"title,omitempty" validate:"max=200"`
	ParentID       *uuid.UUID          `json:"parentId,omitempty"`
	EngagementType *EngagementType     `json:"engagementType,omitempty" validate:"omitempty,oneof=FixedPrice Retainer"`
	Value          *float64            `json:"value,omitempty" validate:"omitempty,gte=0"`
	Currency       string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	StartDate      *string             `json:"startDate,omitempty"`
	EndDate        *string             `json:"endDate,omitempty"`
	Milestones     []MilestoneInput    `json:"milestones,omitempty" validate:"dive"`
	RetainerItems  []RetainerItemInput `json:"retainerItems,omitempty" validate:"dive"`
}

type CreateSOWRequest struct {
	Title          string              `json:"title" validate:"required,max=200"`
	EngagementType EngagementType      `json:"engagementType" validate:"required,oneof=FixedPrice Retainer"`
	Value          float64             `json:"value" validate:"gte=0"`
	Currency       string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	StartDate      *string             `json:"startDate,omitempty"`
	EndDate        *string             `json:"endDate,omitempty"`
	Milestones     []MilestoneInput    `json:"milestones,omitempty" validate:"dive"`
	RetainerItems  []RetainerItemInput `json:"retainerItems,omitempty" validate:"dive"`
}

type UpdateBillingRequest struct {
	Milestones    []MilestoneInput    `json:"milestones,omitempty" validate:"dive"`
	RetainerItems []RetainerItemInput `json:"retainerItems,omitempty" validate:"dive"`
}

type SubmitChangeRequestRequest struct {
	Type              ChangeRequestType `json:"type" validate:"required,oneof=Scope Schedule Resource Other"`
	Title             string            `json:"title" validate:"required,max=200"`
	Description       string            `json:"description,omitempty" validate:"max=10000"`
	DesiredStart      *string           `json:"desiredStart,omitempty"`
	DesiredEnd        *string           `json:"desiredEnd,omitempty"`
	ExpectedExtraCost float64           `json:"expectedExtraCost" validate:"gte=0"`
	ImpactAnalysis    ImpactAnalysis    `json:"impactAnalysis"`
}

type DecideChangeRequestRequest struct {
	Action DecisionAction `json:"action" validate:"required,oneof=Approve Reject"`
	Reason string         `json:"reason,omitempty" validate:"max=5000"`
}

type CreateCloseRequestRequest struct {
	Message string   `json:"message" validate:"required,max=10000"`
	Links   []string `json:"links,omitempty" validate:"max=20,dive,url"`
}

type RejectCloseRequestRequest struct {
	Reason string `json:"reason" validate:"required,max=5000"`
}

// UserDTO is a directory entry, used to pick a proposal reviewer
type UserDTO struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type AuthUserDTO struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Roles      []string    `json:"roles"`
	ActingRole ActorRole   `json:"actingRole"`
	Available  []ActorRole `json:"availableRoles"`
	Initials   string      `json:"initials"`
}

type SubmitForReviewRequest struct {
	ReviewerID uuid.UUID `json:"reviewerId" validate:"required"`
}

type ApproveCloseRequestRequest struct {
	Confirm bool `json:"confirm"`
}
