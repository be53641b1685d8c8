package service_test

import (
	"strings"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_CanTransition(t *testing.T) {
	m := service.NewStateMachine()

	tests := []struct {
		name    string
		entity  domain.EntityType
		from    string
		to      string
		role    domain.ActorRole
		allowed bool
		err     error
	}{
		{"sales starts work on contact", domain.EntityContact, "New", "InProgress", domain.RoleSales, true, nil},
		{"only sales converts a contact", domain.EntityContact, "InProgress", "ConvertedToOpportunity", domain.RoleSales, true, nil},
		{"manager may not convert a contact", domain.EntityContact, "InProgress", "ConvertedToOpportunity", domain.RoleSalesManager, false, service.ErrForbidden},
		{"client cancels own contact", domain.EntityContact, "New", "Cancelled", domain.RoleClient, true, nil},
		{"closed contact is terminal", domain.EntityContact, "Closed", "InProgress", domain.RoleAdmin, false, service.ErrInvalidTransition},
		{"opportunity revision loop", domain.EntityOpportunity, "Revision", "ProposalSent", domain.RoleSales, true, nil},
		{"opportunity cannot skip to sent", domain.EntityOpportunity, "New", "ProposalSent", domain.RoleSales, false, service.ErrInvalidTransition},
		{"client requests opportunity revision", domain.EntityOpportunity, "ProposalSent", "Revision", domain.RoleClient, true, nil},
		{"won is terminal", domain.EntityOpportunity, "Won", "Lost", domain.RoleAdmin, false, service.ErrInvalidTransition},
		{"manager approves proposal", domain.EntityProposal, "internal_review", "approved", domain.RoleSalesManager, true, nil},
		{"admin may not approve proposal", domain.EntityProposal, "internal_review", "approved", domain.RoleAdmin, false, service.ErrForbidden},
		{"sales may not approve proposal", domain.EntityProposal, "internal_review", "approved", domain.RoleSales, false, service.ErrForbidden},
		{"client accepts sent proposal", domain.EntityProposal, "sent_to_client", "accepted", domain.RoleClient, true, nil},
		{"sales may not accept for the client", domain.EntityProposal, "sent_to_client", "accepted", domain.RoleSales, false, service.ErrForbidden},
		{"draft cannot be sent", domain.EntityProposal, "draft", "sent_to_client", domain.RoleSales, false, service.ErrInvalidTransition},
		{"sales activates msa", domain.EntityMSA, "Draft", "Active", domain.RoleSales, true, nil},
		{"only admin terminates msa", domain.EntityMSA, "Active", "Terminated", domain.RoleSalesManager, false, service.ErrForbidden},
		{"msa has no hold", domain.EntityMSA, "Active", "OnHold", domain.RoleAdmin, false, service.ErrInvalidTransition},
		{"manager holds sow", domain.EntitySOW, "Active", "OnHold", domain.RoleSalesManager, true, nil},
		{"manager resumes sow", domain.EntitySOW, "OnHold", "Active", domain.RoleSalesManager, true, nil},
		{"client completes sow only through a close request", domain.EntitySOW, "Active", "Completed", domain.RoleClient, false, service.ErrForbidden},
		{"admin completes sow", domain.EntitySOW, "Active", "Completed", domain.RoleAdmin, true, nil},
		{"sales may not complete sow", domain.EntitySOW, "Active", "Completed", domain.RoleSales, false, service.ErrForbidden},
		{"admin terminates held sow", domain.EntitySOW, "OnHold", "Terminated", domain.RoleAdmin, true, nil},
		{"manager decides change request", domain.EntityChangeRequest, "UnderReview", "Approved", domain.RoleSalesManager, true, nil},
		{"change request must be reviewed first", domain.EntityChangeRequest, "Submitted", "Approved", domain.RoleSalesManager, false, service.ErrInvalidTransition},
		{"client approves close request", domain.EntityCloseRequest, "Pending", "ClientApproved", domain.RoleClient, true, nil},
		{"sales may not approve close request", domain.EntityCloseRequest, "Pending", "ClientApproved", domain.RoleSales, false, service.ErrForbidden},
		{"sales resubmits rejected close request", domain.EntityCloseRequest, "Rejected", "Pending", domain.RoleSales, true, nil},
		{"approved close request is terminal", domain.EntityCloseRequest, "ClientApproved", "Pending", domain.RoleAdmin, false, service.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.CanTransition(tt.entity, tt.from, tt.to, tt.role)
			assert.Equal(t, tt.allowed, result.Allowed)
			if tt.err == nil {
				assert.NoError(t, result.Err)
				return
			}
			assert.ErrorIs(t, result.Err, tt.err)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestStateMachine_RejectsUnknownInputs(t *testing.T) {
	m := service.NewStateMachine()

	t.Run("unknown entity", func(t *testing.T) {
		result := m.CanTransition("invoice", "New", "Paid", domain.RoleAdmin)
		assert.False(t, result.Allowed)
		assert.ErrorIs(t, result.Err, service.ErrValidation)
	})

	t.Run("invalid role", func(t *testing.T) {
		result := m.CanTransition(domain.EntityContact, "New", "InProgress", "guest")
		assert.False(t, result.Allowed)
		assert.ErrorIs(t, result.Err, service.ErrForbidden)
	})

	t.Run("check returns the same error", func(t *testing.T) {
		err := m.Check(domain.EntityProposal, "draft", "accepted", domain.RoleClient)
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})
}

func TestStateMachine_IsPure(t *testing.T) {
	m := service.NewStateMachine()
	first := m.CanTransition(domain.EntitySOW, "Active", "OnHold", domain.RoleSalesManager)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.CanTransition(domain.EntitySOW, "Active", "OnHold", domain.RoleSalesManager))
	}
}

func TestStateMachine_Next(t *testing.T) {
	m := service.NewStateMachine()

	assert.ElementsMatch(t,
		[]string{"InProgress", "ConvertedToOpportunity", "Closed", "Cancelled"},
		m.Next(domain.EntityContact, "New", domain.RoleSales),
	)
	assert.ElementsMatch(t,
		[]string{"InProgress", "Closed", "Cancelled"},
		m.Next(domain.EntityContact, "New", domain.RoleSalesManager),
	)
	assert.ElementsMatch(t,
		[]string{"Cancelled"},
		m.Next(domain.EntityContact, "New", domain.RoleClient),
	)
	assert.Empty(t, m.Next(domain.EntityOpportunity, "Lost", domain.RoleAdmin))
}

func TestStateMachine_Graph(t *testing.T) {
	m := service.NewStateMachine()

	graph, err := m.Graph(domain.EntityCloseRequest)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityCloseRequest, graph.Entity)
	assert.ElementsMatch(t, []string{"Pending", "ClientApproved", "Rejected"}, graph.Statuses)
	assert.Len(t, graph.Edges, 3)

	for _, edge := range graph.Edges {
		if edge.From == "Rejected" {
			assert.Equal(t, "Pending", edge.To)
			assert.ElementsMatch(t, []domain.ActorRole{domain.RoleSales, domain.RoleSalesManager, domain.RoleAdmin}, edge.Roles)
		}
	}

	_, err = m.Graph("invoice")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestStateMachine_EveryPair(t *testing.T) {
	m := service.NewStateMachine()
	roles := map[byte]domain.ActorRole{
		'c': domain.RoleClient,
		's': domain.RoleSales,
		'm': domain.RoleSalesManager,
		'a': domain.RoleAdmin,
	}

	// "from>to" -> roles allowed on that edge, one letter per role
	tables := []struct {
		entity   domain.EntityType
		statuses []string
		edges    map[string]string
	}{
		{
			entity:   domain.EntityContact,
			statuses: []string{"New", "InProgress", "ConvertedToOpportunity", "Closed", "Cancelled"},
			edges: map[string]string{
				"New>InProgress":                    "sma",
				"New>ConvertedToOpportunity":        "s",
				"InProgress>ConvertedToOpportunity": "s",
				"New>Closed":                        "sma",
				"InProgress>Closed":                 "sma",
				"New>Cancelled":                     "csma",
				"InProgress>Cancelled":              "csma",
			},
		},
		{
			entity:   domain.EntityOpportunity,
			statuses: []string{"New", "ProposalDrafting", "ProposalSent", "Revision", "Won", "Lost"},
			edges: map[string]string{
				"New>ProposalDrafting":          "sma",
				"ProposalDrafting>ProposalSent": "sma",
				"ProposalSent>Revision":         "csma",
				"Revision>ProposalSent":         "sma",
				"ProposalSent>Won":              "sma",
				"ProposalSent>Lost":             "sma",
			},
		},
		{
			entity: domain.EntityProposal,
			statuses: []string{"draft", "internal_review", "approved", "sent_to_client",
				"revision_requested", "accepted", "rejected"},
			edges: map[string]string{
				"draft>internal_review":             "sma",
				"internal_review>draft":             "sm",
				"internal_review>approved":          "m",
				"internal_review>rejected":          "m",
				"approved>sent_to_client":           "sma",
				"sent_to_client>accepted":           "c",
				"sent_to_client>revision_requested": "c",
			},
		},
		{
			entity:   domain.EntityMSA,
			statuses: []string{"Draft", "Active", "Completed", "Terminated"},
			edges: map[string]string{
				"Draft>Active":      "sma",
				"Active>Completed":  "ma",
				"Active>Terminated": "a",
			},
		},
		{
			entity:   domain.EntitySOW,
			statuses: []string{"Draft", "Active", "OnHold", "Completed", "Terminated"},
			edges: map[string]string{
				"Draft>Active":      "sma",
				"Active>OnHold":     "ma",
				"OnHold>Active":     "ma",
				"Active>Completed":  "a",
				"Active>Terminated": "a",
				"OnHold>Terminated": "a",
			},
		},
		{
			entity:   domain.EntityChangeRequest,
			statuses: []string{"Submitted", "UnderReview", "Approved", "Rejected"},
			edges: map[string]string{
				"Submitted>UnderReview": "sma",
				"UnderReview>Approved":  "ma",
				"UnderReview>Rejected":  "ma",
			},
		},
		{
			entity:   domain.EntityCloseRequest,
			statuses: []string{"Pending", "ClientApproved", "Rejected"},
			edges: map[string]string{
				"Pending>ClientApproved": "c",
				"Pending>Rejected":       "c",
				"Rejected>Pending":       "sma",
			},
		},
	}

	for _, tt := range tables {
		t.Run(string(tt.entity), func(t *testing.T) {
			graph, err := m.Graph(tt.entity)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.statuses, graph.Statuses)
			assert.Len(t, graph.Edges, len(tt.edges))

			for _, from := range tt.statuses {
				for _, to := range tt.statuses {
					allowed, exists := tt.edges[from+">"+to]
					for code, role := range roles {
						result := m.CanTransition(tt.entity, from, to, role)
						switch {
						case !exists:
							assert.ErrorIs(t, result.Err, service.ErrInvalidTransition, "%s -> %s as %s", from, to, role)
						case strings.IndexByte(allowed, code) >= 0:
							assert.True(t, result.Allowed, "%s -> %s as %s", from, to, role)
						default:
							assert.ErrorIs(t, result.Err, service.ErrForbidden, "%s -> %s as %s", from, to, role)
						}
					}
				}
			}
		})
	}
}
