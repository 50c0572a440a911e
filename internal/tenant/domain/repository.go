package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id snowflake.ID) (*Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	// ChildrenOf is the adjacency lookup for the one-deep hierarchy.
	ChildrenOf(ctx context.Context, orgID snowflake.ID) ([]Tenant, error)
	UpdateTenant(ctx context.Context, tenant *Tenant) error
	SetActive(ctx context.Context, id snowflake.ID, active bool) error

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, tenantID, userID snowflake.ID) (*Membership, error)
	GetMembershipByID(ctx context.Context, id snowflake.ID) (*Membership, error)
	ListMembershipsByUser(ctx context.Context, userID snowflake.ID) ([]Membership, error)
	ListMembersByTenant(ctx context.Context, tenantID snowflake.ID) ([]Membership, error)
	UpdateMembership(ctx context.Context, m *Membership) error
}
