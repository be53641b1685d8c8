package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ActorRole is the role an authenticated caller acts in for a single request
type ActorRole string

const (
	RoleClient       ActorRole = "client"
	RoleSales        ActorRole = "sales"
	RoleSalesManager ActorRole = "sales_manager"
	RoleAdmin        ActorRole = "admin"
)

// IsValid checks if the ActorRole is a valid enum value
func (r ActorRole) IsValid() bool {
	switch r {
	case RoleClient, RoleSales, RoleSalesManager, RoleAdmin:
		return true
	}
	return false
}

// IsInternal reports whether the role belongs to the sales organization
func (r ActorRole) IsInternal() bool {
	return r == RoleSales || r == RoleSalesManager || r == RoleAdmin
}

// roleRank orders roles from least to most privileged
var roleRank = map[ActorRole]int{
	RoleClient:       1,
	RoleSales:        2,
	RoleSalesManager: 3,
	RoleAdmin:        4,
}

// ParseActorRole normalizes role claims like "SalesManager", "sales-manager"
// or "sales_manager" into an ActorRole
func ParseActorRole(s string) (ActorRole, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if normalized == "salesmanager" {
		normalized = string(RoleSalesManager)
	}
	role := ActorRole(normalized)
	return role, role.IsValid()
}

// HighestRole returns the most privileged valid role in the list
func HighestRole(roles []string) (ActorRole, bool) {
	var best ActorRole
	for _, r := range roles {
		role, ok := ParseActorRole(r)
		if !ok {
			continue
		}
		if roleRank[role] > roleRank[best] {
			best = role
		}
	}
	return best, best != ""
}

// Actor is the authenticated principal performing an operation
type Actor struct {
	ID   uuid.UUID
	Name string
	Role ActorRole
}

// EntityType names a pipeline entity kind with its own transition graph
type EntityType string

const (
	EntityContact       EntityType = "contact"
	EntityOpportunity   EntityType = "opportunity"
	EntityProposal      EntityType = "proposal"
	EntityMSA           EntityType = "msa"
	EntitySOW           EntityType = "sow"
	EntityChangeRequest EntityType = "change_request"
	EntityCloseRequest  EntityType = "close_request"
)

// IsValid checks if the EntityType is a valid enum value
func (e EntityType) IsValid() bool {
	switch e {
	case EntityContact, EntityOpportunity, EntityProposal, EntityMSA, EntitySOW,
		EntityChangeRequest, EntityCloseRequest:
		return true
	}
	return false
}

// TableName returns the table backing the entity type
func (e EntityType) TableName() string {
	switch e {
	case EntityContact:
		return "contacts"
	case EntityOpportunity:
		return "opportunities"
	case EntityProposal:
		return "proposals"
	case EntityMSA, EntitySOW:
		return "contracts"
	case EntityChangeRequest:
		return "change_requests"
	case EntityCloseRequest:
		return "close_requests"
	}
	return ""
}

// ContractEntity maps a contract type onto its transition graph entity
func ContractEntity(t ContractType) EntityType {
	if t == ContractTypeSOW {
		return EntitySOW
	}
	return EntityMSA
}
