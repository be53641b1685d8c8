package service_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractService_ConvertFromOpportunity(t *testing.T) {
	f := newFixture(t)

	t.Run("msa inherits the opportunity", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		msa, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type: domain.ContractTypeMSA,
		})
		require.NoError(t, err)

		assert.Equal(t, domain.ContractStatusDraft, msa.Status)
		assert.True(t, strings.HasPrefix(msa.DisplayID, service.PrefixMSA+"-"))
		assert.Equal(t, opp.Title, msa.Title)
		assert.Equal(t, opp.Company, msa.ClientCompany)
		assert.True(t, msa.Value.Equal(opp.EstimatedValue))
		require.NotNil(t, msa.ClientUserID)
		assert.Equal(t, f.client.ID, *msa.ClientUserID)

		got, err := f.Opportunities.Get(f.ctx, f.sales, opp.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ContractID)
		assert.Equal(t, msa.ID, *got.ContractID)
	})

	t.Run("converts only once", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		req := &domain.ConvertToContractRequest{Type: domain.ContractTypeMSA}
		_, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, req)
		require.NoError(t, err)

		_, err = f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, req)
		assert.ErrorIs(t, err, service.ErrConflictingState)
	})

	t.Run("opportunity must be won", func(t *testing.T) {
		opp, _ := f.sentProposal(t)
		_, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type: domain.ContractTypeMSA,
		})
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("sow needs a parent and an engagement type", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		engagement := domain.EngagementRetainer

		_, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type:           domain.ContractTypeSOW,
			EngagementType: &engagement,
		})
		assert.ErrorIs(t, err, service.ErrValidation)

		msa := f.msa(t)
		_, err = f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type:     domain.ContractTypeSOW,
			ParentID: &msa.ID,
		})
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("sow directly from opportunity", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		msa := f.msa(t)
		engagement := domain.EngagementRetainer
		sow, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type:           domain.ContractTypeSOW,
			ParentID:       &msa.ID,
			EngagementType: &engagement,
			RetainerItems:  []domain.RetainerItemInput{{Role: "Designer", Engineers: 1, MonthlyRate: 12000}},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sow.DisplayID, service.PrefixSOW+"-"))
		require.NotNil(t, sow.ParentID)
		assert.Equal(t, msa.ID, *sow.ParentID)
		require.Len(t, sow.RetainerItems, 1)
		assert.Equal(t, 1, sow.RetainerItems[0].Sequence)
	})

	t.Run("msa takes no billing", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		_, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type:       domain.ContractTypeMSA,
			Milestones: []domain.MilestoneInput{{Name: "Kickoff", Amount: 1000}},
		})
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("end date before start date", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		start, end := "2026-06-01", "2026-05-01"
		_, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.sales, opp.ID, &domain.ConvertToContractRequest{
			Type:      domain.ContractTypeMSA,
			StartDate: &start,
			EndDate:   &end,
		})
		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "endDate")
	})

	t.Run("clients cannot convert", func(t *testing.T) {
		opp := f.wonOpportunity(t)
		_, err := f.Contracts.ConvertFromOpportunity(f.ctx, f.client, opp.ID, &domain.ConvertToContractRequest{
			Type: domain.ContractTypeMSA,
		})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})
}

func TestContractService_CreateSOW(t *testing.T) {
	f := newFixture(t)
	msa := f.activeMSA(t)

	t.Run("fixed price with milestones", func(t *testing.T) {
		sow := f.draftSOW(t, msa, domain.EngagementFixedPrice)
		assert.Equal(t, domain.ContractTypeSOW, sow.Type)
		assert.Equal(t, domain.ContractStatusDraft, sow.Status)
		require.NotNil(t, sow.EngagementType)
		assert.Equal(t, domain.EngagementFixedPrice, *sow.EngagementType)
		assert.Equal(t, msa.Currency, sow.Currency)
		require.Len(t, sow.Milestones, 1)
		assert.Equal(t, "Go-live", sow.Milestones[0].Name)
		require.NotNil(t, sow.Milestones[0].DueDate)
		assert.Equal(t, "2026-12-01", sow.Milestones[0].DueDate.Format("2006-01-02"))
	})

	t.Run("listed under the msa", func(t *testing.T) {
		sows, err := f.Contracts.ListSOWs(f.ctx, f.sales, msa.ID)
		require.NoError(t, err)
		assert.Len(t, sows, 1)
	})

	t.Run("billing must match the engagement", func(t *testing.T) {
		req := f.sowRequest(domain.EngagementFixedPrice)
		req.RetainerItems = []domain.RetainerItemInput{{Role: "QA", Engineers: 1}}
		_, err := f.Contracts.CreateSOW(f.ctx, f.sales, msa.ID, req)

		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "retainerItems")

		req = f.sowRequest(domain.EngagementRetainer)
		req.RetainerItems = nil
		_, err = f.Contracts.CreateSOW(f.ctx, f.sales, msa.ID, req)
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "retainerItems")
	})

	t.Run("line level validation", func(t *testing.T) {
		bad := "01/12/2026"
		req := f.sowRequest(domain.EngagementFixedPrice)
		req.Milestones = []domain.MilestoneInput{
			{Name: "ok", Amount: 10},
			{Name: " ", Amount: -1, DueDate: &bad},
		}
		_, err := f.Contracts.CreateSOW(f.ctx, f.sales, msa.ID, req)

		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "milestones[1].name")
		assert.Contains(t, verr.Fields, "milestones[1].amount")
		assert.Contains(t, verr.Fields, "milestones[1].dueDate")
		assert.NotContains(t, verr.Fields, "milestones[0].name")
	})

	t.Run("parent must be an msa", func(t *testing.T) {
		sow := f.draftSOW(t, msa, domain.EngagementRetainer)
		_, err := f.Contracts.CreateSOW(f.ctx, f.sales, sow.ID, f.sowRequest(domain.EngagementRetainer))
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("terminated msa takes no new work", func(t *testing.T) {
		other := f.activeMSA(t)
		_, err := f.Contracts.Transition(f.ctx, f.admin, other.ID, domain.ContractStatusTerminated, "Ended")
		require.NoError(t, err)

		_, err = f.Contracts.CreateSOW(f.ctx, f.sales, other.ID, f.sowRequest(domain.EngagementRetainer))
		assert.ErrorIs(t, err, service.ErrConflictingState)
	})

	t.Run("unknown msa", func(t *testing.T) {
		_, err := f.Contracts.CreateSOW(f.ctx, f.sales, uuid.New(), f.sowRequest(domain.EngagementRetainer))
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestContractService_Transition(t *testing.T) {
	f := newFixture(t)

	t.Run("sow waits for an active msa", func(t *testing.T) {
		msa := f.msa(t)
		sow := f.draftSOW(t, msa, domain.EngagementRetainer)

		_, err := f.Contracts.Transition(f.ctx, f.sales, sow.ID, domain.ContractStatusActive, "")
		assert.ErrorIs(t, err, service.ErrConflictingState)

		_, err = f.Contracts.Transition(f.ctx, f.sales, msa.ID, domain.ContractStatusActive, "")
		require.NoError(t, err)

		active, err := f.Contracts.Transition(f.ctx, f.sales, sow.ID, domain.ContractStatusActive, "")
		require.NoError(t, err)
		assert.Equal(t, domain.ContractStatusActive, active.Status)
	})

	t.Run("hold and resume", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementFixedPrice)

		held, err := f.Contracts.Transition(f.ctx, f.manager, sow.ID, domain.ContractStatusOnHold, "Budget freeze")
		require.NoError(t, err)
		assert.Equal(t, domain.ContractStatusOnHold, held.Status)

		_, err = f.Contracts.Transition(f.ctx, f.sales, sow.ID, domain.ContractStatusActive, "")
		assert.ErrorIs(t, err, service.ErrForbidden)

		resumed, err := f.Contracts.Transition(f.ctx, f.manager, sow.ID, domain.ContractStatusActive, "")
		require.NoError(t, err)
		assert.Equal(t, domain.ContractStatusActive, resumed.Status)
	})

	t.Run("history is appended in order", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementRetainer)
		_, err := f.Contracts.Transition(f.ctx, f.manager, sow.ID, domain.ContractStatusOnHold, "Budget freeze")
		require.NoError(t, err)

		history, err := f.Contracts.GetHistory(f.ctx, f.sales, sow.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)

		assert.Equal(t, domain.ContractEventCreated, history[0].Event)
		assert.Equal(t, domain.ContractEventStatusChanged, history[1].Event)
		assert.Equal(t, domain.ContractStatusActive, history[1].ToStatus)
		assert.Equal(t, domain.ContractStatusOnHold, history[2].ToStatus)
		assert.Equal(t, "Budget freeze", history[2].Note)
		assert.Equal(t, f.manager.ID, history[2].ActorID)
		for i := 1; i < len(history); i++ {
			assert.Greater(t, history[i].Sequence, history[i-1].Sequence)
		}
	})

	t.Run("pending close request blocks closing the sow", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementFixedPrice)
		req, err := f.CloseRequests.Create(f.ctx, f.sales, sow.ID, "All milestones delivered", nil)
		require.NoError(t, err)

		_, err = f.Contracts.Transition(f.ctx, f.client, sow.ID, domain.ContractStatusCompleted, "")
		assert.ErrorIs(t, err, service.ErrForbidden)

		for _, to := range []domain.ContractStatus{domain.ContractStatusCompleted, domain.ContractStatusTerminated} {
			_, err = f.Contracts.Transition(f.ctx, f.admin, sow.ID, to, "")
			assert.ErrorIs(t, err, service.ErrConflictingState, "to %s", to)
		}

		approved, err := f.CloseRequests.Approve(f.ctx, f.client, req.ID, true)
		require.NoError(t, err)
		assert.Equal(t, domain.CloseRequestStatusClientApproved, approved.Status)

		stored, err := f.Contracts.Get(f.ctx, f.sales, sow.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ContractStatusCompleted, stored.Status)
	})

	t.Run("admin terminates a sow without a pending close request", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementRetainer)
		terminated, err := f.Contracts.Transition(f.ctx, f.admin, sow.ID, domain.ContractStatusTerminated, "Client went bankrupt")
		require.NoError(t, err)
		assert.Equal(t, domain.ContractStatusTerminated, terminated.Status)
	})

	t.Run("msa cannot be held", func(t *testing.T) {
		msa := f.activeMSA(t)
		_, err := f.Contracts.Transition(f.ctx, f.admin, msa.ID, domain.ContractStatusOnHold, "")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("unknown status", func(t *testing.T) {
		msa := f.msa(t)
		_, err := f.Contracts.Transition(f.ctx, f.sales, msa.ID, "Paused", "")
		assert.ErrorIs(t, err, service.ErrValidation)
	})
}

func TestContractService_UpdateBilling(t *testing.T) {
	f := newFixture(t)
	msa := f.activeMSA(t)
	sow := f.draftSOW(t, msa, domain.EngagementFixedPrice)

	updated, err := f.Contracts.UpdateBilling(f.ctx, f.sales, sow.ID, &domain.UpdateBillingRequest{
		Milestones: []domain.MilestoneInput{
			{Name: "Design", Amount: 20000},
			{Name: "Build", Amount: 30000},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Milestones, 2)
	assert.Equal(t, "Design", updated.Milestones[0].Name)
	assert.Equal(t, 2, updated.Milestones[1].Sequence)
	assert.True(t, updated.Milestones[1].Amount.Equal(decimal.NewFromInt(30000)))

	history, err := f.Contracts.GetHistory(f.ctx, f.sales, sow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractEventBillingUpdated, history[len(history)-1].Event)

	t.Run("msa has no billing", func(t *testing.T) {
		_, err := f.Contracts.UpdateBilling(f.ctx, f.sales, msa.ID, &domain.UpdateBillingRequest{})
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("frozen once active", func(t *testing.T) {
		_, err := f.Contracts.Transition(f.ctx, f.sales, sow.ID, domain.ContractStatusActive, "")
		require.NoError(t, err)

		_, err = f.Contracts.UpdateBilling(f.ctx, f.sales, sow.ID, &domain.UpdateBillingRequest{
			Milestones: []domain.MilestoneInput{{Name: "Late", Amount: 1}},
		})
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})
}

func TestContractService_ClientScope(t *testing.T) {
	f := newFixture(t)
	msa := f.msa(t)

	got, err := f.Contracts.Get(f.ctx, f.client, msa.ID)
	require.NoError(t, err)
	assert.Equal(t, msa.ID, got.ID)

	stranger := testutil.Actor(domain.RoleClient)
	_, err = f.Contracts.Get(f.ctx, stranger, msa.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.Contracts.GetHistory(f.ctx, stranger, msa.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	result, err := f.Contracts.List(f.ctx, stranger, 1, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Total)

	result, err = f.Contracts.List(f.ctx, f.sales, 1, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
}
