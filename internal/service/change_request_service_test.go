package service_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImpact(t *testing.T) {
	tests := []struct {
		name       string
		engagement domain.EngagementType
		impact     domain.ImpactAnalysis
		wantFields []string
	}{
		{
			name:       "fixed price with hours",
			engagement: domain.EngagementFixedPrice,
			impact:     domain.ImpactAnalysis{DevHours: float(40), TestHours: float(8), ScheduleDelayDays: integer(5)},
		},
		{
			name:       "fixed price needs dev hours",
			engagement: domain.EngagementFixedPrice,
			impact:     domain.ImpactAnalysis{TestHours: float(8)},
			wantFields: []string{"impactAnalysis.devHours"},
		},
		{
			name:       "fixed price rejects retainer fields",
			engagement: domain.EngagementFixedPrice,
			impact:     domain.ImpactAnalysis{DevHours: float(40), EngagedEngineers: integer(2), BillingDelta: float(1000)},
			wantFields: []string{"impactAnalysis.engagedEngineers", "impactAnalysis.billingDelta"},
		},
		{
			name:       "retainer with engineers",
			engagement: domain.EngagementRetainer,
			impact:     domain.ImpactAnalysis{EngagedEngineers: integer(3), BillingDelta: float(-2000)},
		},
		{
			name:       "retainer needs engaged engineers",
			engagement: domain.EngagementRetainer,
			impact:     domain.ImpactAnalysis{BillingDelta: float(500)},
			wantFields: []string{"impactAnalysis.engagedEngineers"},
		},
		{
			name:       "retainer rejects fixed price fields",
			engagement: domain.EngagementRetainer,
			impact:     domain.ImpactAnalysis{EngagedEngineers: integer(1), DevHours: float(10), TestHours: float(2), ScheduleDelayDays: integer(1)},
			wantFields: []string{"impactAnalysis.devHours", "impactAnalysis.testHours", "impactAnalysis.scheduleDelayDays"},
		},
		{
			name:       "negative hours",
			engagement: domain.EngagementFixedPrice,
			impact:     domain.ImpactAnalysis{DevHours: float(-1)},
			wantFields: []string{"impactAnalysis.devHours"},
		},
		{
			name:       "unknown engagement",
			engagement: "TimeAndMaterials",
			wantFields: []string{"engagementType"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateImpact(tt.engagement, tt.impact)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *service.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, service.ErrValidation)
			for _, field := range tt.wantFields {
				assert.Contains(t, verr.Fields, field)
			}
			assert.Len(t, verr.Fields, len(tt.wantFields))
		})
	}
}

func changeRequest(impact domain.ImpactAnalysis) *domain.SubmitChangeRequestRequest {
	return &domain.SubmitChangeRequestRequest{
		Type:              domain.ChangeRequestScope,
		Title:             "Add reporting module",
		Description:       "Monthly revenue reports",
		ExpectedExtraCost: 7500,
		ImpactAnalysis:    impact,
	}
}

func TestChangeRequestService_Submit(t *testing.T) {
	f := newFixture(t)
	sow := f.activeSOW(t, domain.EngagementFixedPrice)

	t.Run("client submits against own active sow", func(t *testing.T) {
		cr, err := f.ChangeRequests.Submit(f.ctx, f.client, sow.ID, changeRequest(domain.ImpactAnalysis{DevHours: float(60)}))
		require.NoError(t, err)
		assert.Equal(t, domain.ChangeRequestStatusSubmitted, cr.Status)
		assert.True(t, strings.HasPrefix(cr.DisplayID, service.PrefixChangeRequest+"-"))
		assert.Equal(t, f.client.ID, cr.SubmittedByID)

		got, err := f.ChangeRequests.Get(f.ctx, f.sales, cr.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Impact.DevHours)
		assert.Equal(t, 60.0, *got.Impact.DevHours)
	})

	t.Run("impact must match the engagement", func(t *testing.T) {
		_, err := f.ChangeRequests.Submit(f.ctx, f.sales, sow.ID, changeRequest(domain.ImpactAnalysis{EngagedEngineers: integer(2)}))
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("msa is not a target", func(t *testing.T) {
		require.NotNil(t, sow.ParentID)
		_, err := f.ChangeRequests.Submit(f.ctx, f.sales, *sow.ParentID, changeRequest(domain.ImpactAnalysis{DevHours: float(1)}))
		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "contractId")
	})

	t.Run("sow must be active", func(t *testing.T) {
		draft := f.draftSOW(t, f.activeMSA(t), domain.EngagementRetainer)
		_, err := f.ChangeRequests.Submit(f.ctx, f.sales, draft.ID, changeRequest(domain.ImpactAnalysis{EngagedEngineers: integer(1)}))
		assert.ErrorIs(t, err, service.ErrConflictingState)
	})

	t.Run("other client cannot see the sow", func(t *testing.T) {
		stranger := testutil.Actor(domain.RoleClient)
		_, err := f.ChangeRequests.Submit(f.ctx, stranger, sow.ID, changeRequest(domain.ImpactAnalysis{DevHours: float(1)}))
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("desired window", func(t *testing.T) {
		start, end := "2026-09-01", "2026-08-01"
		req := changeRequest(domain.ImpactAnalysis{DevHours: float(1)})
		req.DesiredStart, req.DesiredEnd = &start, &end
		_, err := f.ChangeRequests.Submit(f.ctx, f.sales, sow.ID, req)
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("blank title", func(t *testing.T) {
		req := changeRequest(domain.ImpactAnalysis{DevHours: float(1)})
		req.Title = " "
		_, err := f.ChangeRequests.Submit(f.ctx, f.sales, sow.ID, req)
		assert.ErrorIs(t, err, service.ErrValidation)
	})
}

func TestChangeRequestService_Decide(t *testing.T) {
	f := newFixture(t)

	underReview := func(t *testing.T, sow *domain.Contract) *domain.ChangeRequest {
		t.Helper()
		cr, err := f.ChangeRequests.Submit(f.ctx, f.client, sow.ID, changeRequest(domain.ImpactAnalysis{EngagedEngineers: integer(1)}))
		require.NoError(t, err)
		reviewing, err := f.ChangeRequests.StartReview(f.ctx, f.sales, cr.ID)
		require.NoError(t, err)
		require.Equal(t, domain.ChangeRequestStatusUnderReview, reviewing.Status)
		return reviewing
	}

	t.Run("approval adds the extra cost to the sow", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementRetainer)
		cr := underReview(t, sow)

		approved, err := f.ChangeRequests.Decide(f.ctx, f.manager, cr.ID, domain.DecisionApprove, "")
		require.NoError(t, err)
		assert.Equal(t, domain.ChangeRequestStatusApproved, approved.Status)
		require.NotNil(t, approved.DecidedByID)
		assert.Equal(t, f.manager.ID, *approved.DecidedByID)
		assert.NotNil(t, approved.DecidedAt)

		contract, err := f.Contracts.Get(f.ctx, f.sales, sow.ID)
		require.NoError(t, err)
		assert.True(t, contract.Value.Equal(decimal.NewFromInt(57500)), "value %s", contract.Value)

		history, err := f.Contracts.GetHistory(f.ctx, f.sales, sow.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, domain.ContractEventChangeRequestApproved, last.Event)
		assert.Contains(t, last.Note, cr.DisplayID)

		events := f.Notifier.Events(domain.NotificationChangeRequestDecided)
		require.NotEmpty(t, events)
		assert.Contains(t, events[len(events)-1].Recipients, f.client.ID)
	})

	t.Run("rejection needs a reason and leaves the value", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementRetainer)
		cr := underReview(t, sow)

		_, err := f.ChangeRequests.Decide(f.ctx, f.manager, cr.ID, domain.DecisionReject, "  ")
		assert.ErrorIs(t, err, service.ErrValidation)

		rejected, err := f.ChangeRequests.Decide(f.ctx, f.manager, cr.ID, domain.DecisionReject, "Out of budget")
		require.NoError(t, err)
		assert.Equal(t, domain.ChangeRequestStatusRejected, rejected.Status)
		assert.Equal(t, "Out of budget", rejected.DecisionReason)

		contract, err := f.Contracts.Get(f.ctx, f.sales, sow.ID)
		require.NoError(t, err)
		assert.True(t, contract.Value.Equal(decimal.NewFromInt(50000)))
	})

	t.Run("approval takes no reason", func(t *testing.T) {
		cr := underReview(t, f.activeSOW(t, domain.EngagementRetainer))
		_, err := f.ChangeRequests.Decide(f.ctx, f.manager, cr.ID, domain.DecisionApprove, "because")
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("sales cannot decide", func(t *testing.T) {
		cr := underReview(t, f.activeSOW(t, domain.EngagementRetainer))
		_, err := f.ChangeRequests.Decide(f.ctx, f.sales, cr.ID, domain.DecisionApprove, "")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("must be under review", func(t *testing.T) {
		sow := f.activeSOW(t, domain.EngagementRetainer)
		cr, err := f.ChangeRequests.Submit(f.ctx, f.client, sow.ID, changeRequest(domain.ImpactAnalysis{EngagedEngineers: integer(1)}))
		require.NoError(t, err)
		_, err = f.ChangeRequests.Decide(f.ctx, f.manager, cr.ID, domain.DecisionApprove, "")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("decided once", func(t *testing.T) {
		cr := underReview(t, f.activeSOW(t, domain.EngagementRetainer))
		_, err := f.ChangeRequests.Decide(f.ctx, f.manager, cr.ID, domain.DecisionApprove, "")
		require.NoError(t, err)
		_, err = f.ChangeRequests.Decide(f.ctx, f.admin, cr.ID, domain.DecisionReject, "changed my mind")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})
}

func TestChangeRequestService_List(t *testing.T) {
	f := newFixture(t)
	sow := f.activeSOW(t, domain.EngagementFixedPrice)

	for i := 0; i < 2; i++ {
		_, err := f.ChangeRequests.Submit(f.ctx, f.client, sow.ID, changeRequest(domain.ImpactAnalysis{DevHours: float(8)}))
		require.NoError(t, err)
	}

	all, err := f.ChangeRequests.List(f.ctx, f.sales, sow.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := domain.ChangeRequestStatusApproved
	approved, err := f.ChangeRequests.List(f.ctx, f.client, sow.ID, &status)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = f.ChangeRequests.List(f.ctx, testutil.Actor(domain.RoleClient), sow.ID, nil)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
