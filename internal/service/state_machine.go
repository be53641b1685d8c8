package service

import (
	"fmt"

	"github.com/straye-as/pipeline-api/internal/domain"
)

// Transition is a directed edge in an entity's lifecycle graph, labeled with
// the roles allowed to take it
type Transition struct {
	From  string
	To    string
	Roles []domain.ActorRole
}

// TransitionResult is the answer to CanTransition. Err is nil when Allowed,
// and otherwise wraps ErrInvalidTransition, ErrForbidden or ErrValidation.
type TransitionResult struct {
	Allowed bool
	Reason  string
	Err     error
}

func edge[S ~string](from, to S, roles ...domain.ActorRole) Transition {
	return Transition{From: string(from), To: string(to), Roles: roles}
}

var (
	salesTeam = []domain.ActorRole{domain.RoleSales, domain.RoleSalesManager, domain.RoleAdmin}
	managers  = []domain.ActorRole{domain.RoleSalesManager, domain.RoleAdmin}
)

// transitionGraphs is the single source of truth for every status change in
// the pipeline. Any edge not listed here is rejected.
var transitionGraphs = map[domain.EntityType][]Transition{
	domain.EntityContact: {
		edge(domain.ContactStatusNew, domain.ContactStatusInProgress, salesTeam...),
		edge(domain.ContactStatusNew, domain.ContactStatusConvertedToOpportunity, domain.RoleSales),
		edge(domain.ContactStatusInProgress, domain.ContactStatusConvertedToOpportunity, domain.RoleSales),
		edge(domain.ContactStatusNew, domain.ContactStatusClosed, salesTeam...),
		edge(domain.ContactStatusInProgress, domain.ContactStatusClosed, salesTeam...),
		edge(domain.ContactStatusNew, domain.ContactStatusCancelled, append([]domain.ActorRole{domain.RoleClient}, salesTeam...)...),
		edge(domain.ContactStatusInProgress, domain.ContactStatusCancelled, append([]domain.ActorRole{domain.RoleClient}, salesTeam...)...),
	},
	domain.EntityOpportunity: {
		edge(domain.OpportunityStatusNew, domain.OpportunityStatusProposalDrafting, salesTeam...),
		edge(domain.OpportunityStatusProposalDrafting, domain.OpportunityStatusProposalSent, salesTeam...),
		edge(domain.OpportunityStatusProposalSent, domain.OpportunityStatusRevision, domain.RoleClient, domain.RoleSales, domain.RoleSalesManager, domain.RoleAdmin),
		edge(domain.OpportunityStatusRevision, domain.OpportunityStatusProposalSent, salesTeam...),
		edge(domain.OpportunityStatusProposalSent, domain.OpportunityStatusWon, salesTeam...),
		edge(domain.OpportunityStatusProposalSent, domain.OpportunityStatusLost, salesTeam...),
	},
	domain.EntityProposal: {
		edge(domain.ProposalStatusDraft, domain.ProposalStatusInternalReview, salesTeam...),
		edge(domain.ProposalStatusInternalReview, domain.ProposalStatusDraft, domain.RoleSales, domain.RoleSalesManager),
		edge(domain.ProposalStatusInternalReview, domain.ProposalStatusApproved, domain.RoleSalesManager),
		edge(domain.ProposalStatusInternalReview, domain.ProposalStatusRejected, domain.RoleSalesManager),
		edge(domain.ProposalStatusApproved, domain.ProposalStatusSentToClient, salesTeam...),
		edge(domain.ProposalStatusSentToClient, domain.ProposalStatusAccepted, domain.RoleClient),
		edge(domain.ProposalStatusSentToClient, domain.ProposalStatusRevisionRequested, domain.RoleClient),
	},
	domain.EntityMSA: {
		edge(domain.ContractStatusDraft, domain.ContractStatusActive, salesTeam...),
		edge(domain.ContractStatusActive, domain.ContractStatusCompleted, managers...),
		edge(domain.ContractStatusActive, domain.ContractStatusTerminated, domain.RoleAdmin),
	},
	domain.EntitySOW: {
		edge(domain.ContractStatusDraft, domain.ContractStatusActive, salesTeam...),
		edge(domain.ContractStatusActive, domain.ContractStatusOnHold, managers...),
		edge(domain.ContractStatusOnHold, domain.ContractStatusActive, managers...),
		edge(domain.ContractStatusActive, domain.ContractStatusCompleted, domain.RoleAdmin),
		edge(domain.ContractStatusActive, domain.ContractStatusTerminated, domain.RoleAdmin),
		edge(domain.ContractStatusOnHold, domain.ContractStatusTerminated, domain.RoleAdmin),
	},
	domain.EntityChangeRequest: {
		edge(domain.ChangeRequestStatusSubmitted, domain.ChangeRequestStatusUnderReview, salesTeam...),
		edge(domain.ChangeRequestStatusUnderReview, domain.ChangeRequestStatusApproved, managers...),
		edge(domain.ChangeRequestStatusUnderReview, domain.ChangeRequestStatusRejected, managers...),
	},
	domain.EntityCloseRequest: {
		edge(domain.CloseRequestStatusPending, domain.CloseRequestStatusClientApproved, domain.RoleClient),
		edge(domain.CloseRequestStatusPending, domain.CloseRequestStatusRejected, domain.RoleClient),
		edge(domain.CloseRequestStatusRejected, domain.CloseRequestStatusPending, salesTeam...),
	},
}

// entityStatuses lists each entity's status domain in lifecycle order
var entityStatuses = map[domain.EntityType][]string{
	domain.EntityContact: statuses(domain.ContactStatusNew, domain.ContactStatusInProgress,
		domain.ContactStatusConvertedToOpportunity, domain.ContactStatusClosed, domain.ContactStatusCancelled),
	domain.EntityOpportunity: statuses(domain.OpportunityStatusNew, domain.OpportunityStatusProposalDrafting,
		domain.OpportunityStatusProposalSent, domain.OpportunityStatusRevision,
		domain.OpportunityStatusWon, domain.OpportunityStatusLost),
	domain.EntityProposal: statuses(domain.ProposalStatusDraft, domain.ProposalStatusInternalReview,
		domain.ProposalStatusApproved, domain.ProposalStatusSentToClient,
		domain.ProposalStatusRevisionRequested, domain.ProposalStatusAccepted, domain.ProposalStatusRejected),
	domain.EntityMSA: statuses(domain.ContractStatusDraft, domain.ContractStatusActive,
		domain.ContractStatusCompleted, domain.ContractStatusTerminated),
	domain.EntitySOW: statuses(domain.ContractStatusDraft, domain.ContractStatusActive, domain.ContractStatusOnHold,
		domain.ContractStatusCompleted, domain.ContractStatusTerminated),
	domain.EntityChangeRequest: statuses(domain.ChangeRequestStatusSubmitted, domain.ChangeRequestStatusUnderReview,
		domain.ChangeRequestStatusApproved, domain.ChangeRequestStatusRejected),
	domain.EntityCloseRequest: statuses(domain.CloseRequestStatusPending,
		domain.CloseRequestStatusClientApproved, domain.CloseRequestStatusRejected),
}

func statuses[S ~string](values ...S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// StateMachine answers transition questions from the graphs above
type StateMachine struct {
	index map[domain.EntityType]map[string]map[string][]domain.ActorRole
}

// NewStateMachine indexes the transition graphs for lookup
func NewStateMachine() *StateMachine {
	index := make(map[domain.EntityType]map[string]map[string][]domain.ActorRole, len(transitionGraphs))
	for entity, transitions := range transitionGraphs {
		byFrom := make(map[string]map[string][]domain.ActorRole)
		for _, t := range transitions {
			if byFrom[t.From] == nil {
				byFrom[t.From] = make(map[string][]domain.ActorRole)
			}
			byFrom[t.From][t.To] = t.Roles
		}
		index[entity] = byFrom
	}
	return &StateMachine{index: index}
}

// CanTransition reports whether role may move an entity of the given type from
// one status to another. A missing edge is an invalid transition, an edge
// without the role is forbidden.
func (m *StateMachine) CanTransition(entity domain.EntityType, from, to string, role domain.ActorRole) TransitionResult {
	graph, ok := m.index[entity]
	if !ok {
		return denied(ErrValidation, fmt.Sprintf("unknown entity type %q", entity))
	}
	if !role.IsValid() {
		return denied(ErrForbidden, fmt.Sprintf("unknown role %q", role))
	}

	roles, ok := graph[from][to]
	if !ok {
		return denied(ErrInvalidTransition, fmt.Sprintf("%s cannot move from %s to %s", entity, from, to))
	}
	for _, r := range roles {
		if r == role {
			return TransitionResult{Allowed: true}
		}
	}
	return denied(ErrForbidden, fmt.Sprintf("role %s may not move %s from %s to %s", role, entity, from, to))
}

// Check is CanTransition returning only the error
func (m *StateMachine) Check(entity domain.EntityType, from, to string, role domain.ActorRole) error {
	return m.CanTransition(entity, from, to, role).Err
}

// Next returns the statuses role can move the entity to from its current status
func (m *StateMachine) Next(entity domain.EntityType, from string, role domain.ActorRole) []string {
	var next []string
	for _, t := range transitionGraphs[entity] {
		if t.From != from {
			continue
		}
		for _, r := range t.Roles {
			if r == role {
				next = append(next, t.To)
				break
			}
		}
	}
	return next
}

// Graph returns the entity's full transition table
func (m *StateMachine) Graph(entity domain.EntityType) (domain.TransitionGraphDTO, error) {
	transitions, ok := transitionGraphs[entity]
	if !ok {
		return domain.TransitionGraphDTO{}, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entity)
	}

	dto := domain.TransitionGraphDTO{
		Entity:   entity,
		Statuses: append([]string(nil), entityStatuses[entity]...),
		Edges:    make([]domain.TransitionEdgeDTO, 0, len(transitions)),
	}
	for _, t := range transitions {
		dto.Edges = append(dto.Edges, domain.TransitionEdgeDTO{
			From:  t.From,
			To:    t.To,
			Roles: append([]domain.ActorRole(nil), t.Roles...),
		})
	}
	return dto, nil
}

func denied(kind error, reason string) TransitionResult {
	return TransitionResult{
		Allowed: false,
		Reason:  reason,
		Err:     fmt.Errorf("%w: %s", kind, reason),
	}
}
