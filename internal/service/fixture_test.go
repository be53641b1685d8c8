package service_test

import (
	"context"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/require"
)

// fixture drives the pipeline through its stages for tests that need an
// entity in a later state
type fixture struct {
	*testutil.Pipeline
	ctx     context.Context
	sales   domain.Actor
	manager domain.Actor
	admin   domain.Actor
	client  domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		Pipeline: testutil.NewPipeline(t),
		ctx:      context.Background(),
		sales:    testutil.Actor(domain.RoleSales),
		manager:  testutil.Actor(domain.RoleSalesManager),
		admin:    testutil.Actor(domain.RoleAdmin),
		client:   testutil.Actor(domain.RoleClient),
	}
	testutil.SeedUser(t, f.DB, f.manager)
	return f
}

func (f *fixture) contact(t *testing.T) *domain.Contact {
	t.Helper()
	contact, err := f.Contacts.Create(f.ctx, f.client, &domain.CreateContactRequest{
		RequesterName:  "Kari Nordmann",
		RequesterEmail: "kari@example.com",
		Company:        "Fjord Logistics",
		Consultation:   "We need a partner to rebuild our booking platform",
	})
	require.NoError(t, err)
	return contact
}

func (f *fixture) opportunity(t *testing.T) *domain.Opportunity {
	t.Helper()
	contact := f.contact(t)
	opp, err := f.Contacts.ConvertToOpportunity(f.ctx, f.sales, contact.ID, &domain.ConvertContactRequest{
		EstimatedValue: 120000,
	})
	require.NoError(t, err)
	return opp
}

func (f *fixture) draftProposal(t *testing.T, opp *domain.Opportunity) *domain.Proposal {
	t.Helper()
	proposal, err := f.Proposals.Create(f.ctx, f.sales, opp.ID, &domain.CreateProposalRequest{
		Title: "Booking platform rebuild",
		Body:  "Scope, plan and price",
	})
	require.NoError(t, err)
	return proposal
}

func (f *fixture) inReview(t *testing.T, proposal *domain.Proposal) *domain.Proposal {
	t.Helper()
	reviewed, err := f.Proposals.SubmitForReview(f.ctx, f.sales, proposal.ID, f.manager.ID)
	require.NoError(t, err)
	return reviewed
}

func (f *fixture) approvedProposal(t *testing.T, opp *domain.Opportunity) *domain.Proposal {
	t.Helper()
	proposal := f.inReview(t, f.draftProposal(t, opp))
	approved, err := f.Proposals.SubmitReview(f.ctx, f.manager, proposal.ID, domain.ReviewActionApprove, "")
	require.NoError(t, err)
	return approved
}

func (f *fixture) sentProposal(t *testing.T) (*domain.Opportunity, *domain.Proposal) {
	t.Helper()
	opp := f.opportunity(t)
	proposal := f.approvedProposal(t, opp)
	sent, err := f.Proposals.SendToClient(f.ctx, f.sales, proposal.ID)
	require.NoError(t, err)
	return opp, sent
}

func (f *fixture) wonOpportunity(t *testing.T) *domain.Opportunity {
	t.Helper()
	opp, proposal := f.sentProposal(t)
	_, err := f.Proposals.ClientFeedback(f.ctx, f.client, proposal.ID, domain.ClientFeedbackAccept, "Looks good")
	require.NoError(t, err)
	won, err := f.Opportunities.MarkWon(f.ctx, f.sales, opp.ID)
	require.NoError(t, err)
	return won
}

func (f *fixture) msa(t *testing.T) *domain.Contract {
	t.Helper()
	opp := f.wonOpportunity(t)
	msa, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
		Type: domain.ContractTypeMSA,
	})
	require.NoError(t, err)
	return msa
}

func (f *fixture) activeMSA(t *testing.T) *domain.Contract {
	t.Helper()
	msa := f.msa(t)
	active, err := f.Contracts.Transition(f.ctx, f.sales, msa.ID, domain.ContractStatusActive, "")
	require.NoError(t, err)
	return active
}

func (f *fixture) sowRequest(engagement domain.EngagementType) *domain.CreateSOWRequest {
	req := &domain.CreateSOWRequest{
		Title:          "Phase 1",
		EngagementType: engagement,
		Value:          50000,
	}
	if engagement == domain.EngagementFixedPrice {
		due := "2026-12-01"
		req.Milestones = []domain.MilestoneInput{{Name: "Go-live", Amount: 50000, DueDate: &due}}
	} else {
		req.RetainerItems = []domain.RetainerItemInput{{Role: "Backend engineer", Engineers: 2, MonthlyRate: 18000}}
	}
	return req
}

func (f *fixture) draftSOW(t *testing.T, msa *domain.Contract, engagement domain.EngagementType) *domain.Contract {
	t.Helper()
	sow, err := f.Contracts.CreateSOW(f.ctx, f.sales, msa.ID, f.sowRequest(engagement))
	require.NoError(t, err)
	return sow
}

func (f *fixture) activeSOW(t *testing.T, engagement domain.EngagementType) *domain.Contract {
	t.Helper()
	sow := f.draftSOW(t, f.activeMSA(t), engagement)
	active, err := f.Contracts.Transition(f.ctx, f.sales, sow.ID, domain.ContractStatusActive, "")
	require.NoError(t, err)
	return active
}

func float(v float64) *float64 { return &v }

func integer(v int) *int { return &v }
