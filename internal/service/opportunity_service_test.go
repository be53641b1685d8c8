package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpportunityService_Create(t *testing.T) {
	f := newFixture(t)

	opp, err := f.Opportunities.Create(f.ctx, f.sales, &domain.CreateOpportunityRequest{
		Title:          "Data platform",
		Company:        "Havn AS",
		EstimatedValue: 90000,
		WinProbability: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OpportunityStatusNew, opp.Status)
	assert.Equal(t, "USD", opp.Currency)
	require.NotNil(t, opp.AssigneeID)
	assert.Equal(t, f.sales.ID, *opp.AssigneeID)

	_, err = f.Opportunities.Create(f.ctx, f.client, &domain.CreateOpportunityRequest{Title: "x", Company: "y"})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestOpportunityService_UpdateEstimate(t *testing.T) {
	f := newFixture(t)
	opp := f.opportunity(t)

	updated, err := f.Opportunities.UpdateEstimate(f.ctx, f.sales, opp.ID, &domain.UpdateEstimateRequest{
		EstimatedValue: 150000.50,
		Currency:       "eur",
		WinProbability: 60,
	})
	require.NoError(t, err)
	assert.True(t, updated.EstimatedValue.Equal(decimal.NewFromFloat(150000.5)))
	assert.Equal(t, "EUR", updated.Currency)
	assert.Equal(t, 60, updated.WinProbability)

	_, err = f.Opportunities.UpdateEstimate(f.ctx, f.sales, opp.ID, &domain.UpdateEstimateRequest{WinProbability: 101})
	assert.ErrorIs(t, err, service.ErrValidation)

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "winProbability")
}

func TestOpportunityService_Visibility(t *testing.T) {
	f := newFixture(t)
	opp := f.opportunity(t)

	got, err := f.Opportunities.Get(f.ctx, f.client, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, opp.ID, got.ID)

	stranger := domain.Actor{ID: uuid.New(), Name: "Stranger", Role: domain.RoleClient}
	_, err = f.Opportunities.Get(f.ctx, stranger, opp.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	result, err := f.Opportunities.List(f.ctx, stranger, 1, 20, nil, repository.OpportunitySortByCreatedDesc)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Total)
}

func TestOpportunityService_MarkWon(t *testing.T) {
	f := newFixture(t)

	t.Run("requires an approved or accepted proposal", func(t *testing.T) {
		opp, proposal := f.sentProposal(t)
		// the sent version was approved before it went out, so it no longer counts
		require.Equal(t, domain.ProposalStatusSentToClient, proposal.Status)

		_, err := f.Opportunities.MarkWon(f.ctx, f.sales, opp.ID)
		assert.ErrorIs(t, err, service.ErrConflictingState)
	})

	t.Run("won after client acceptance", func(t *testing.T) {
		won := f.wonOpportunity(t)
		assert.Equal(t, domain.OpportunityStatusWon, won.Status)
		assert.Equal(t, 100, won.WinProbability)
		assert.NotNil(t, won.ClosedAt)
		assert.True(t, won.IsReadOnly())
	})

	t.Run("only from ProposalSent", func(t *testing.T) {
		opp := f.opportunity(t)
		_, err := f.Opportunities.MarkWon(f.ctx, f.sales, opp.ID)
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("won opportunity is read-only", func(t *testing.T) {
		won := f.wonOpportunity(t)
		_, err := f.Opportunities.Assign(f.ctx, f.sales, won.ID, uuid.New(), "Someone")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)

		_, err = f.Proposals.Create(f.ctx, f.sales, won.ID, &domain.CreateProposalRequest{Title: "late"})
		assert.ErrorIs(t, err, service.ErrConflictingState)
	})
}

func TestOpportunityService_MarkLost(t *testing.T) {
	f := newFixture(t)
	opp, _ := f.sentProposal(t)

	_, err := f.Opportunities.Transition(f.ctx, f.sales, opp.ID, domain.OpportunityStatusLost, " ")
	assert.ErrorIs(t, err, service.ErrValidation)

	lost, err := f.Opportunities.Transition(f.ctx, f.sales, opp.ID, domain.OpportunityStatusLost, "Went with a competitor")
	require.NoError(t, err)
	assert.Equal(t, domain.OpportunityStatusLost, lost.Status)
	assert.Equal(t, "Went with a competitor", lost.LostReason)

	_, err = f.Opportunities.Transition(f.ctx, f.sales, opp.ID, domain.OpportunityStatusWon, "")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestOpportunityService_TransitionOnlyWonOrLost(t *testing.T) {
	f := newFixture(t)
	opp := f.opportunity(t)

	_, err := f.Opportunities.Transition(f.ctx, f.sales, opp.ID, domain.OpportunityStatusProposalDrafting, "")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.Opportunities.Transition(f.ctx, f.sales, opp.ID, "Abandoned", "")
	assert.ErrorIs(t, err, service.ErrValidation)
}
