package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate assigns a UUID when the caller did not set one. Postgres also
// defaults the column with gen_random_uuid(), but generating it here keeps the
// id available to the caller inside the same transaction.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// ============================================================================
// Contact
// ============================================================================

// ContactStatus represents the lifecycle status of an inbound contact
type ContactStatus string

const (
	ContactStatusNew                    ContactStatus = "New"
	ContactStatusInProgress             ContactStatus = "InProgress"
	ContactStatusConvertedToOpportunity ContactStatus = "ConvertedToOpportunity"
	ContactStatusClosed                 ContactStatus = "Closed"
	ContactStatusCancelled              ContactStatus = "Cancelled"
)

// IsValid checks if the ContactStatus is a valid enum value
func (s ContactStatus) IsValid() bool {
	switch s {
	case ContactStatusNew, ContactStatusInProgress, ContactStatusConvertedToOpportunity,
		ContactStatusClosed, ContactStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transitions are defined.
// Closed and Cancelled are distinct terminal states.
func (s ContactStatus) IsTerminal() bool {
	switch s {
	case ContactStatusConvertedToOpportunity, ContactStatusClosed, ContactStatusCancelled:
		return true
	}
	return false
}

// ContactPriority represents how urgently an inquiry should be handled
type ContactPriority string

const (
	ContactPriorityLow    ContactPriority = "Low"
	ContactPriorityMedium ContactPriority = "Medium"
	ContactPriorityHigh   ContactPriority = "High"
	ContactPriorityUrgent ContactPriority = "Urgent"
)

// IsValid checks if the ContactPriority is a valid enum value
func (p ContactPriority) IsValid() bool {
	switch p {
	case ContactPriorityLow, ContactPriorityMedium, ContactPriorityHigh, ContactPriorityUrgent:
		return true
	}
	return false
}

// Contact is an inbound inquiry and the root of a pipeline instance
type Contact struct {
	BaseModel
	DisplayID       string                  `gorm:"type:varchar(20);not null;uniqueIndex;column:display_id"`
	RequesterName   string                  `gorm:"type:varchar(200);not null;column:requester_name"`
	RequesterEmail  string                  `gorm:"type:varchar(255);not null;column:requester_email"`
	RequesterPhone  string                  `gorm:"type:varchar(50);column:requester_phone"`
	RequesterUserID *uuid.UUID              `gorm:"type:uuid;column:requester_user_id"`
	Company         string                  `gorm:"type:varchar(200);not null"`
	Consultation    string                  `gorm:"type:text;not null"`
	Status          ContactStatus           `gorm:"type:varchar(50);not null;default:'New';index"`
	Priority        ContactPriority         `gorm:"type:varchar(20);not null;default:'Medium'"`
	AssigneeID      *uuid.UUID              `gorm:"type:uuid;index;column:assignee_id"`
	AssigneeName    string                  `gorm:"type:varchar(200);column:assignee_name"`
	OpportunityID   *uuid.UUID              `gorm:"type:uuid;column:opportunity_id"`
	Communications  []CommunicationLogEntry `gorm:"foreignKey:ContactID"`
}

// CommunicationChannel is the medium a communication log entry was recorded on
type CommunicationChannel string

const (
	ChannelEmail   CommunicationChannel = "email"
	ChannelPhone   CommunicationChannel = "phone"
	ChannelMeeting CommunicationChannel = "meeting"
	ChannelNote    CommunicationChannel = "note"
)

// IsValid checks if the CommunicationChannel is a valid enum value
func (c CommunicationChannel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPhone, ChannelMeeting, ChannelNote:
		return true
	}
	return false
}

// CommunicationLogEntry is one append-only entry in a contact's communication log
type CommunicationLogEntry struct {
	ID         uuid.UUID            `gorm:"type:uuid;primaryKey"`
	ContactID  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_contact_comm_seq;column:contact_id"`
	Sequence   int                  `gorm:"not null;uniqueIndex:idx_contact_comm_seq"`
	Channel    CommunicationChannel `gorm:"type:varchar(20);not null"`
	Body       string               `gorm:"type:text;not null"`
	AuthorID   uuid.UUID            `gorm:"type:uuid;not null;column:author_id"`
	AuthorName string               `gorm:"type:varchar(200);column:author_name"`
	OccurredAt time.Time            `gorm:"not null;column:occurred_at"`
}

// TableName overrides the default table name to match the migration
func (CommunicationLogEntry) TableName() string {
	return "contact_communications"
}

func (e *CommunicationLogEntry) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ============================================================================
// Opportunity
// ============================================================================

// OpportunityStatus represents the stage of a qualified sales engagement
type OpportunityStatus string

const (
	OpportunityStatusNew              OpportunityStatus = "New"
	OpportunityStatusProposalDrafting OpportunityStatus = "ProposalDrafting"
	OpportunityStatusProposalSent     OpportunityStatus = "ProposalSent"
	OpportunityStatusRevision         OpportunityStatus = "Revision"
	OpportunityStatusWon              OpportunityStatus = "Won"
	OpportunityStatusLost             OpportunityStatus = "Lost"
)

// IsValid checks if the OpportunityStatus is a valid enum value
func (s OpportunityStatus) IsValid() bool {
	switch s {
	case OpportunityStatusNew, OpportunityStatusProposalDrafting, OpportunityStatusProposalSent,
		OpportunityStatusRevision, OpportunityStatusWon, OpportunityStatusLost:
		return true
	}
	return false
}

// IsTerminal reports whether the opportunity is Won or Lost
func (s OpportunityStatus) IsTerminal() bool {
	return s == OpportunityStatusWon || s == OpportunityStatusLost
}

// Opportunity is a qualified, assignable sales engagement
type Opportunity struct {
	BaseModel
	DisplayID      string            `gorm:"type:varchar(20);not null;uniqueIndex;column:display_id"`
	ContactID      *uuid.UUID        `gorm:"type:uuid;uniqueIndex;column:contact_id"`
	Title          string            `gorm:"type:varchar(200);not null"`
	RequesterName  string            `gorm:"type:varchar(200);column:requester_name"`
	RequesterEmail string            `gorm:"type:varchar(255);column:requester_email"`
	Company        string            `gorm:"type:varchar(200)"`
	ClientUserID   *uuid.UUID        `gorm:"type:uuid;column:client_user_id"`
	EstimatedValue decimal.Decimal   `gorm:"type:decimal(15,2);not null;default:0;column:estimated_value"`
	Currency       string            `gorm:"type:varchar(3);not null;default:'USD'"`
	WinProbability int               `gorm:"not null;default:0;column:win_probability"`
	AssigneeID     *uuid.UUID        `gorm:"type:uuid;index;column:assignee_id"`
	AssigneeName   string            `gorm:"type:varchar(200);column:assignee_name"`
	Status         OpportunityStatus `gorm:"type:varchar(50);not null;default:'New';index"`
	LostReason     string            `gorm:"type:varchar(500);column:lost_reason"`
	ContractID     *uuid.UUID        `gorm:"type:uuid;column:contract_id"`
	ClosedAt       *time.Time        `gorm:"column:closed_at"`
}

// IsReadOnly reports whether the opportunity no longer accepts edits
func (o *Opportunity) IsReadOnly() bool {
	return o.Status.IsTerminal() || o.ContractID != nil
}

// ============================================================================
// Proposal
// ============================================================================

// ProposalStatus represents the review/delivery state of a proposal version
type ProposalStatus string

const (
	ProposalStatusDraft             ProposalStatus = "draft"
	ProposalStatusInternalReview    ProposalStatus = "internal_review"
	ProposalStatusApproved          ProposalStatus = "approved"
	ProposalStatusSentToClient      ProposalStatus = "sent_to_client"
	ProposalStatusRevisionRequested ProposalStatus = "revision_requested"
	ProposalStatusAccepted          ProposalStatus = "accepted"
	ProposalStatusRejected          ProposalStatus = "rejected"
)

// IsValid checks if the ProposalStatus is a valid enum value
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalStatusDraft, ProposalStatusInternalReview, ProposalStatusApproved,
		ProposalStatusSentToClient, ProposalStatusRevisionRequested,
		ProposalStatusAccepted, ProposalStatusRejected:
		return true
	}
	return false
}

// ReviewAction is the outcome a sales manager records on an internal review
type ReviewAction string

const (
	ReviewActionApprove         ReviewAction = "Approve"
	ReviewActionRequestRevision ReviewAction = "RequestRevision"
	ReviewActionReject          ReviewAction = "Reject"
)

// IsValid checks if the ReviewAction is a valid enum value
func (a ReviewAction) IsValid() bool {
	switch a {
	case ReviewActionApprove, ReviewActionRequestRevision, ReviewActionReject:
		return true
	}
	return false
}

// ClientFeedbackAction is the client's response to a proposal sent to them
type ClientFeedbackAction string

const (
	ClientFeedbackAccept          ClientFeedbackAction = "Accept"
	ClientFeedbackRequestRevision ClientFeedbackAction = "RequestRevision"
)

// IsValid checks if the ClientFeedbackAction is a valid enum value
func (a ClientFeedbackAction) IsValid() bool {
	return a == ClientFeedbackAccept || a == ClientFeedbackRequestRevision
}

// Proposal is one version of a proposal document attached to an opportunity.
// Superseded versions are retained and never deleted.
type Proposal struct {
	BaseModel
	OpportunityID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_proposal_opp_version;column:opportunity_id"`
	Version        int            `gorm:"not null;uniqueIndex:idx_proposal_opp_version"`
	Title          string         `gorm:"type:varchar(200);not null"`
	Body           string         `gorm:"type:text"`
	Status         ProposalStatus `gorm:"type:varchar(50);not null;default:'draft';index"`
	IsCurrent      bool           `gorm:"not null;default:false;column:is_current"`
	ReviewerID     *uuid.UUID     `gorm:"type:uuid;column:reviewer_id"`
	ReviewerName   string         `gorm:"type:varchar(200);column:reviewer_name"`
	ReviewAction   *ReviewAction  `gorm:"type:varchar(30);column:review_action"`
	ReviewNotes    string         `gorm:"type:text;column:review_notes"`
	ReviewedAt     *time.Time     `gorm:"column:reviewed_at"`
	AttachmentID   *uuid.UUID     `gorm:"type:uuid;column:attachment_id"`
	ClientFeedback string         `gorm:"type:text;column:client_feedback"`
	SentAt         *time.Time     `gorm:"column:sent_at"`
	RespondedAt    *time.Time     `gorm:"column:responded_at"`
	CreatedByID    uuid.UUID      `gorm:"type:uuid;not null;column:created_by_id"`
	CreatedByName  string         `gorm:"type:varchar(200);column:created_by_name"`
}

// ============================================================================
// Contract
// ============================================================================

// ContractType distinguishes master agreements from statements of work
type ContractType string

const (
	ContractTypeMSA ContractType = "MSA"
	ContractTypeSOW ContractType = "SOW"
)

// IsValid checks if the ContractType is a valid enum value
func (t ContractType) IsValid() bool {
	return t == ContractTypeMSA || t == ContractTypeSOW
}

// EngagementType is the SOW sub-kind that fixes its billing and impact schema
type EngagementType string

const (
	EngagementFixedPrice EngagementType = "FixedPrice"
	EngagementRetainer   EngagementType = "Retainer"
)

// IsValid checks if the EngagementType is a valid enum value
func (t EngagementType) IsValid() bool {
	return t == EngagementFixedPrice || t == EngagementRetainer
}

// ContractStatus represents the lifecycle status of an MSA or SOW
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "Draft"
	ContractStatusActive     ContractStatus = "Active"
	ContractStatusOnHold     ContractStatus = "OnHold"
	ContractStatusCompleted  ContractStatus = "Completed"
	ContractStatusTerminated ContractStatus = "Terminated"
)

// IsValid checks if the ContractStatus is a valid enum value
func (s ContractStatus) IsValid() bool {
	switch s {
	case ContractStatusDraft, ContractStatusActive, ContractStatusOnHold,
		ContractStatusCompleted, ContractStatusTerminated:
		return true
	}
	return false
}

// Contract is a binding agreement, either an MSA or a SOW under an MSA
type Contract struct {
	BaseModel
	DisplayID       string              `gorm:"type:varchar(20);not null;uniqueIndex;column:display_id"`
	Type            ContractType        `gorm:"type:varchar(10);not null;index"`
	ParentID        *uuid.UUID          `gorm:"type:uuid;index;column:parent_id"`
	OpportunityID   *uuid.UUID          `gorm:"type:uuid;index;column:opportunity_id"`
	EngagementType  *EngagementType     `gorm:"type:varchar(20);column:engagement_type"`
	Title           string              `gorm:"type:varchar(200);not null"`
	Status          ContractStatus      `gorm:"type:varchar(50);not null;default:'Draft';index"`
	Value           decimal.Decimal     `gorm:"type:decimal(15,2);not null;default:0"`
	Currency        string              `gorm:"type:varchar(3);not null;default:'USD'"`
	ClientCompany   string              `gorm:"type:varchar(200);column:client_company"`
	ClientUserID    *uuid.UUID          `gorm:"type:uuid;column:client_user_id"`
	StartDate       *time.Time          `gorm:"type:date;column:start_date"`
	EndDate         *time.Time          `gorm:"type:date;column:end_date"`
	InvoicedAmount  decimal.NullDecimal `gorm:"type:decimal(15,2);column:invoiced_amount"`
	BillingSyncedAt *time.Time          `gorm:"column:billing_synced_at"`
	Milestones      []ContractMilestone `gorm:"foreignKey:ContractID"`
	RetainerItems   []RetainerItem      `gorm:"foreignKey:ContractID"`
}

// IsSOW reports whether the contract is a statement of work
func (c *Contract) IsSOW() bool {
	return c.Type == ContractTypeSOW
}

// ContractMilestone is a billing milestone of a FixedPrice SOW
type ContractMilestone struct {
	BaseModel
	ContractID uuid.UUID       `gorm:"type:uuid;not null;index;column:contract_id"`
	Sequence   int             `gorm:"not null"`
	Name       string          `gorm:"type:varchar(200);not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	DueDate    *time.Time      `gorm:"type:date;column:due_date"`
}

// RetainerItem is a delivery line of a Retainer SOW
type RetainerItem struct {
	BaseModel
	ContractID  uuid.UUID       `gorm:"type:uuid;not null;index;column:contract_id"`
	Sequence    int             `gorm:"not null"`
	Role        string          `gorm:"type:varchar(100);not null"`
	Engineers   int             `gorm:"not null;default:1"`
	MonthlyRate decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0;column:monthly_rate"`
	Description string          `gorm:"type:text"`
}

// ContractEvent classifies a contract history entry
type ContractEvent string

const (
	ContractEventCreated               ContractEvent = "created"
	ContractEventStatusChanged         ContractEvent = "status_changed"
	ContractEventBillingUpdated        ContractEvent = "billing_updated"
	ContractEventChangeRequestApproved ContractEvent = "change_request_approved"
	ContractEventCloseRequestApproved  ContractEvent = "close_request_approved"
)

// ContractHistoryEntry is one entry in a contract's append-only audit trail
type ContractHistoryEntry struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ContractID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_contract_history_seq;column:contract_id"`
	Sequence   int            `gorm:"not null;uniqueIndex:idx_contract_history_seq"`
	Event      ContractEvent  `gorm:"type:varchar(50);not null"`
	FromStatus ContractStatus `gorm:"type:varchar(50);column:from_status"`
	ToStatus   ContractStatus `gorm:"type:varchar(50);column:to_status"`
	Note       string         `gorm:"type:text"`
	ActorID    uuid.UUID      `gorm:"type:uuid;not null;column:actor_id"`
	ActorName  string         `gorm:"type:varchar(200);column:actor_name"`
	ActorRole  ActorRole      `gorm:"type:varchar(30);column:actor_role"`
	OccurredAt time.Time      `gorm:"not null;column:occurred_at"`
}

// TableName overrides the default table name to match the migration
func (ContractHistoryEntry) TableName() string {
	return "contract_history"
}

func (e *ContractHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ============================================================================
// Change Request
// ============================================================================

// ChangeRequestType classifies the requested amendment
type ChangeRequestType string

const (
	ChangeRequestScope    ChangeRequestType = "Scope"
	ChangeRequestSchedule ChangeRequestType = "Schedule"
	ChangeRequestResource ChangeRequestType = "Resource"
	ChangeRequestOther    ChangeRequestType = "Other"
)

// IsValid checks if the ChangeRequestType is a valid enum value
func (t ChangeRequestType) IsValid() bool {
	switch t {
	case ChangeRequestScope, ChangeRequestSchedule, ChangeRequestResource, ChangeRequestOther:
		return true
	}
	return false
}

// ChangeRequestStatus represents the review state of a change request
type ChangeRequestStatus string

const (
	ChangeRequestStatusSubmitted   ChangeRequestStatus = "Submitted"
	ChangeRequestStatusUnderReview ChangeRequestStatus = "UnderReview"
	ChangeRequestStatusApproved    ChangeRequestStatus = "Approved"
	ChangeRequestStatusRejected    ChangeRequestStatus = "Rejected"
)

// IsValid checks if the ChangeRequestStatus is a valid enum value
func (s ChangeRequestStatus) IsValid() bool {
	switch s {
	case ChangeRequestStatusSubmitted, ChangeRequestStatusUnderReview,
		ChangeRequestStatusApproved, ChangeRequestStatusRejected:
		return true
	}
	return false
}

// DecisionAction is the outcome of a change request review
type DecisionAction string

const (
	DecisionApprove DecisionAction = "Approve"
	DecisionReject  DecisionAction = "Reject"
)

// IsValid checks if the DecisionAction is a valid enum value
func (a DecisionAction) IsValid() bool {
	return a == DecisionApprove || a == DecisionReject
}

// ImpactAnalysis carries the engagement-type-specific impact of a change.
// FixedPrice contracts use the hours and delay fields, Retainer contracts use
// the engineer and billing deltas. Exactly one group may be populated.
type ImpactAnalysis struct {
	DevHours          *float64 `json:"devHours,omitempty"`
	TestHours         *float64 `json:"testHours,omitempty"`
	ScheduleDelayDays *int     `json:"scheduleDelayDays,omitempty"`
	EngagedEngineers  *int     `json:"engagedEngineers,omitempty"`
	BillingDelta      *float64 `json:"billingDelta,omitempty"`
}

// HasFixedPriceFields reports whether any FixedPrice field is populated
func (i ImpactAnalysis) HasFixedPriceFields() bool {
	return i.DevHours != nil || i.TestHours != nil || i.ScheduleDelayDays != nil
}

// HasRetainerFields reports whether any Retainer field is populated
func (i ImpactAnalysis) HasRetainerFields() bool {
	return i.EngagedEngineers != nil || i.BillingDelta != nil
}

// ChangeRequest is an amendment workflow attached to a SOW
type ChangeRequest struct {
	BaseModel
	DisplayID         string              `gorm:"type:varchar(20);not null;uniqueIndex;column:display_id"`
	ContractID        uuid.UUID           `gorm:"type:uuid;not null;index;column:contract_id"`
	Type              ChangeRequestType   `gorm:"type:varchar(30);not null"`
	Title             string              `gorm:"type:varchar(200);not null"`
	Description       string              `gorm:"type:text"`
	DesiredStart      *time.Time          `gorm:"type:date;column:desired_start"`
	DesiredEnd        *time.Time          `gorm:"type:date;column:desired_end"`
	ExpectedExtraCost decimal.Decimal     `gorm:"type:decimal(15,2);not null;default:0;column:expected_extra_cost"`
	Impact            ImpactAnalysis      `gorm:"type:text;serializer:json;column:impact_analysis"`
	Status            ChangeRequestStatus `gorm:"type:varchar(30);not null;default:'Submitted';index"`
	SubmittedByID     uuid.UUID           `gorm:"type:uuid;not null;column:submitted_by_id"`
	SubmittedByName   string              `gorm:"type:varchar(200);column:submitted_by_name"`
	DecisionReason    string              `gorm:"type:text;column:decision_reason"`
	DecidedByID       *uuid.UUID          `gorm:"type:uuid;column:decided_by_id"`
	DecidedAt         *time.Time          `gorm:"column:decided_at"`
}

// ============================================================================
// Project Close Request
// ============================================================================

// CloseRequestStatus represents the state of a project close request
type CloseRequestStatus string

const (
	CloseRequestStatusPending        CloseRequestStatus = "Pending"
	CloseRequestStatusClientApproved CloseRequestStatus = "ClientApproved"
	CloseRequestStatusRejected       CloseRequestStatus = "Rejected"
)

// IsValid checks if the CloseRequestStatus is a valid enum value
func (s CloseRequestStatus) IsValid() bool {
	switch s {
	case CloseRequestStatusPending, CloseRequestStatusClientApproved, CloseRequestStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the status counts as terminal for the
// one-open-request-per-SOW rule. Rejected is terminal even though it can be
// resubmitted.
func (s CloseRequestStatus) IsTerminal() bool {
	return s == CloseRequestStatusClientApproved || s == CloseRequestStatusRejected
}

// CloseRequest asks the client to confirm a SOW is finished
type CloseRequest struct {
	BaseModel
	DisplayID     string             `gorm:"type:varchar(20);not null;uniqueIndex;column:display_id"`
	SOWID         uuid.UUID          `gorm:"type:uuid;not null;index;column:sow_id"`
	Message       string             `gorm:"type:text;not null"`
	Links         []string           `gorm:"type:text;serializer:json"`
	Status        CloseRequestStatus `gorm:"type:varchar(30);not null;default:'Pending'"`
	RejectReason  string             `gorm:"type:text;column:reject_reason"`
	Attempt       int                `gorm:"not null;default:1"`
	RequesterID   uuid.UUID          `gorm:"type:uuid;not null;column:requester_id"`
	RequesterName string             `gorm:"type:varchar(200);column:requester_name"`
	DecidedByID   *uuid.UUID         `gorm:"type:uuid;column:decided_by_id"`
	DecidedAt     *time.Time         `gorm:"column:decided_at"`
	LastNotified  *time.Time         `gorm:"column:last_notified_at"`
}

// CloseRequestEvent classifies a close request history entry
type CloseRequestEvent string

const (
	CloseRequestEventSubmitted   CloseRequestEvent = "submitted"
	CloseRequestEventResubmitted CloseRequestEvent = "resubmitted"
	CloseRequestEventApproved    CloseRequestEvent = "approved"
	CloseRequestEventRejected    CloseRequestEvent = "rejected"
)

// CloseRequestHistoryEntry records each attempt and decision on a close request
type CloseRequestHistoryEntry struct {
	ID             uuid.UUID          `gorm:"type:uuid;primaryKey"`
	CloseRequestID uuid.UUID          `gorm:"type:uuid;not null;index;column:close_request_id"`
	Attempt        int                `gorm:"not null"`
	Event          CloseRequestEvent  `gorm:"type:varchar(30);not null"`
	Status         CloseRequestStatus `gorm:"type:varchar(30);not null"`
	Message        string             `gorm:"type:text"`
	Reason         string             `gorm:"type:text"`
	ActorID        uuid.UUID          `gorm:"type:uuid;not null;column:actor_id"`
	ActorName      string             `gorm:"type:varchar(200);column:actor_name"`
	OccurredAt     time.Time          `gorm:"not null;column:occurred_at"`
}

// TableName overrides the default table name to match the migration
func (CloseRequestHistoryEntry) TableName() string {
	return "close_request_history"
}

func (e *CloseRequestHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ============================================================================
// Supporting records
// ============================================================================

// User is a directory entry for a person who has signed in. It is refreshed
// from token claims and lets the pipeline check a reviewer's role and find
// notification recipients.
type User struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email       string     `gorm:"type:varchar(255);not null;uniqueIndex"`
	DisplayName string     `gorm:"type:varchar(200);not null;column:name"`
	Roles       []string   `gorm:"type:text;serializer:json;not null"`
	IsActive    bool       `gorm:"not null;default:true;column:is_active"`
	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// HasRole reports whether any of the user's role claims maps to role
func (u *User) HasRole(role ActorRole) bool {
	for _, r := range u.Roles {
		if parsed, ok := ParseActorRole(r); ok && parsed == role {
			return true
		}
	}
	return false
}

// NumberSequence tracks the last display number handed out per prefix and year
type NumberSequence struct {
	Prefix       string    `gorm:"type:varchar(10);primaryKey"`
	Year         int       `gorm:"primaryKey"`
	LastSequence int       `gorm:"not null;default:0;column:last_sequence"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionRead   AuditAction = "read"
	// AuditActionTransition is a workflow step such as submit, approve or convert
	AuditActionTransition AuditAction = "transition"
)

// AuditLog represents an audit trail entry for an API mutation
type AuditLog struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey"`
	UserID      string      `gorm:"type:varchar(100);column:user_id"`
	UserName    string      `gorm:"type:varchar(200);column:user_name"`
	ActorRole   ActorRole   `gorm:"type:varchar(30);column:actor_role"`
	Action      AuditAction `gorm:"type:varchar(30);not null"`
	EntityType  string      `gorm:"type:varchar(50);not null;column:entity_type"`
	EntityID    *uuid.UUID  `gorm:"type:uuid;column:entity_id"`
	NewValues   string      `gorm:"type:text;column:new_values"`
	IPAddress   string      `gorm:"type:varchar(64);column:ip_address"`
	UserAgent   string      `gorm:"type:text;column:user_agent"`
	RequestID   string      `gorm:"type:varchar(100);column:request_id"`
	PerformedAt time.Time   `gorm:"not null;column:performed_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// FileOwnerType identifies which pipeline entity an uploaded file belongs to
type FileOwnerType string

const (
	FileOwnerProposal      FileOwnerType = "proposal"
	FileOwnerChangeRequest FileOwnerType = "change_request"
	FileOwnerContract      FileOwnerType = "contract"
)

// IsValid checks if the FileOwnerType is a valid enum value
func (t FileOwnerType) IsValid() bool {
	switch t {
	case FileOwnerProposal, FileOwnerChangeRequest, FileOwnerContract:
		return true
	}
	return false
}

// File represents an uploaded attachment
type File struct {
	BaseModel
	Filename     string        `gorm:"type:varchar(255);not null"`
	ContentType  string        `gorm:"type:varchar(100);not null;column:content_type"`
	Size         int64         `gorm:"not null"`
	StoragePath  string        `gorm:"type:varchar(500);not null;uniqueIndex;column:storage_path"`
	OwnerType    FileOwnerType `gorm:"type:varchar(30);not null;index:idx_file_owner;column:owner_type"`
	OwnerID      uuid.UUID     `gorm:"type:uuid;not null;index:idx_file_owner;column:owner_id"`
	UploadedByID uuid.UUID     `gorm:"type:uuid;not null;column:uploaded_by_id"`
}

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationProposalReviewRequested NotificationType = "proposal_review_requested"
	NotificationProposalReviewed        NotificationType = "proposal_reviewed"
	NotificationProposalSent            NotificationType = "proposal_sent"
	NotificationProposalClientFeedback  NotificationType = "proposal_client_feedback"
	NotificationContactConverted        NotificationType = "contact_converted"
	NotificationChangeRequestDecided    NotificationType = "change_request_decided"
	NotificationCloseRequestPending     NotificationType = "close_request_pending"
	NotificationCloseRequestDecided     NotificationType = "close_request_decided"
	NotificationCloseRequestReminder    NotificationType = "close_request_reminder"
)

// Notification represents an in-app user notification
type Notification struct {
	BaseModel
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type       string     `gorm:"type:varchar(50);not null"`
	Title      string     `gorm:"type:varchar(200);not null"`
	Message    string     `gorm:"type:varchar(500);not null"`
	Read       bool       `gorm:"column:read;not null;default:false;index"`
	ReadAt     *time.Time `gorm:"column:read_at"`
	EntityID   *uuid.UUID `gorm:"type:uuid"`
	EntityType string     `gorm:"type:varchar(50)"`
}
