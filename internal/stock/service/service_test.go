package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	catalogrepo "github.com/dukahub/dukahub/internal/catalog/repository"
	"github.com/dukahub/dukahub/internal/stock/domain"
	stockrepo "github.com/dukahub/dukahub/internal/stock/repository"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	tenantrepo "github.com/dukahub/dukahub/internal/tenant/repository"
	"github.com/dukahub/dukahub/pkg/principal"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	genID *snowflake.Node

	org    snowflake.ID
	branch snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&catalogdomain.Category{},
		&catalogdomain.Unit{},
		&catalogdomain.Product{},
		&domain.BranchStock{},
		&domain.StockMovement{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{db: db, genID: node}
	f.svc = NewService(
		db,
		stockrepo.NewRepository(db),
		catalogrepo.NewRepository(db),
		tenantrepo.NewRepository(db),
		node,
		nil,
		zap.NewNop(),
	)

	org := &tenantdomain.Tenant{
		ID:                 node.Generate(),
		Subdomain:          "acme",
		Name:               "Acme Traders",
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionTrial,
		IsActive:           true,
	}
	require.NoError(t, db.Create(org).Error)
	branch := &tenantdomain.Tenant{
		ID:                 node.Generate(),
		Subdomain:          "acme-westlands",
		Name:               "Westlands",
		ParentID:           &org.ID,
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionTrial,
		IsActive:           true,
	}
	require.NoError(t, db.Create(branch).Error)

	f.org = org.ID
	f.branch = branch.ID
	return f
}

func (f *fixture) seedProduct(t *testing.T, sku string, isService bool, quantity int64) snowflake.ID {
	t.Helper()

	product := &catalogdomain.Product{
		ID:           f.genID.Generate(),
		TenantID:     f.org,
		SKU:          sku,
		Name:         sku,
		CategoryID:   f.genID.Generate(),
		UnitID:       f.genID.Generate(),
		BaseCost:     decimal.NewFromInt(50),
		SellingPrice: decimal.NewFromInt(80),
		IsService:    isService,
		IsAvailable:  true,
	}
	require.NoError(t, f.db.Create(product).Error)

	if !isService {
		require.NoError(t, f.db.Create(&domain.BranchStock{
			ID:        f.genID.Generate(),
			TenantID:  f.branch,
			ProductID: product.ID,
			Quantity:  quantity,
		}).Error)
	}
	return product.ID
}

func (f *fixture) quantity(t *testing.T, productID snowflake.ID) int64 {
	t.Helper()

	var stock domain.BranchStock
	require.NoError(t, f.db.Where("tenant_id = ? AND product_id = ?", f.branch, productID).First(&stock).Error)
	return stock.Quantity
}

func (f *fixture) cashier() principal.Principal {
	return principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: f.branch,
		OrgID:    f.org,
		Role:     principal.RoleStaff,
	}
}

func TestValidateMovement(t *testing.T) {
	tests := []struct {
		name    string
		reason  domain.MovementReason
		delta   int64
		wantErr error
	}{
		{"receive adds", domain.ReasonReceive, 10, nil},
		{"receive cannot remove", domain.ReasonReceive, -1, domain.ErrInvalidDelta},
		{"return adds", domain.ReasonReturn, 2, nil},
		{"return cannot remove", domain.ReasonReturn, -2, domain.ErrInvalidDelta},
		{"sale removes", domain.ReasonSale, -3, nil},
		{"sale cannot add", domain.ReasonSale, 3, domain.ErrInvalidDelta},
		{"adjust goes either way", domain.ReasonAdjust, -5, nil},
		{"zero delta is meaningless", domain.ReasonAdjust, 0, domain.ErrInvalidDelta},
		{"unknown reason", domain.MovementReason("theft"), -1, domain.ErrInvalidReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMovement(tt.reason, tt.delta)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestApplyMovementReceive(t *testing.T) {
	f := newFixture(t)
	productID := f.seedProduct(t, "MAIZE-FLOUR-2KG", false, 5)
	c := f.cashier()

	stock, err := f.svc.ApplyMovement(context.Background(), c, domain.ApplyMovementRequest{
		ProductID: productID,
		Delta:     10,
		Reason:    domain.ReasonReceive,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), stock.Quantity)
	assert.Equal(t, int64(15), f.quantity(t, productID))

	var movements []domain.StockMovement
	require.NoError(t, f.db.Where("tenant_id = ?", f.branch).Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.ReasonReceive, movements[0].Reason)
	assert.Equal(t, int64(10), movements[0].Delta)
	assert.Equal(t, c.UserID, movements[0].ActorID)
}

func TestApplyMovementInsufficient(t *testing.T) {
	f := newFixture(t)
	productID := f.seedProduct(t, "SUGAR-1KG", false, 3)

	_, err := f.svc.ApplyMovement(context.Background(), f.cashier(), domain.ApplyMovementRequest{
		ProductID: productID,
		Delta:     -10,
		Reason:    domain.ReasonAdjust,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "SUGAR-1KG")

	assert.Equal(t, int64(3), f.quantity(t, productID), "failed movement must not change the quantity")
	var count int64
	require.NoError(t, f.db.Model(&domain.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count, "failed movement must not reach the ledger")
}

func TestApplyMovementServiceProduct(t *testing.T) {
	f := newFixture(t)
	productID := f.seedProduct(t, "MPESA-WITHDRAWAL", true, 0)

	_, err := f.svc.ApplyMovement(context.Background(), f.cashier(), domain.ApplyMovementRequest{
		ProductID: productID,
		Delta:     5,
		Reason:    domain.ReasonReceive,
	})
	assert.ErrorIs(t, err, domain.ErrNotTracked)
}

func TestBulkApplyAllOrNothing(t *testing.T) {
	f := newFixture(t)
	plenty := f.seedProduct(t, "MILK-500ML", false, 100)
	scarce := f.seedProduct(t, "COOKING-OIL-1L", false, 1)
	c := f.cashier()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.BulkApply(context.Background(), tx, f.org, f.branch, c.UserID, []domain.MovementInput{
			{ProductID: plenty, Delta: -2, Reason: domain.ReasonSale, Reference: "sale-1"},
			{ProductID: scarce, Delta: -5, Reason: domain.ReasonSale, Reference: "sale-1"},
		})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "COOKING-OIL-1L")

	assert.Equal(t, int64(100), f.quantity(t, plenty), "rollback must restore every line")
	assert.Equal(t, int64(1), f.quantity(t, scarce))
}

func (f *fixture) seedRivalOrg(t *testing.T) principal.Principal {
	t.Helper()

	rival := &tenantdomain.Tenant{
		ID:                 f.genID.Generate(),
		Subdomain:          "rival",
		Name:               "Rival Traders",
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionTrial,
		IsActive:           true,
	}
	require.NoError(t, f.db.Create(rival).Error)

	return principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: rival.ID,
		OrgID:    rival.ID,
		Role:     principal.RoleOwner,
	}
}

func TestApplyMovementCrossOrganizationBranch(t *testing.T) {
	f := newFixture(t)
	productID := f.seedProduct(t, "MAIZE-FLOUR-2KG", false, 5)
	rival := f.seedRivalOrg(t)

	_, err := f.svc.ApplyMovement(context.Background(), rival, domain.ApplyMovementRequest{
		BranchID:  f.branch,
		ProductID: productID,
		Delta:     10,
		Reason:    domain.ReasonReceive,
	})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)

	assert.Equal(t, int64(5), f.quantity(t, productID))
	var count int64
	require.NoError(t, f.db.Model(&domain.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListMovementsCrossOrganizationBranch(t *testing.T) {
	f := newFixture(t)
	rival := f.seedRivalOrg(t)

	_, _, err := f.svc.ListMovements(context.Background(), rival, domain.ListMovementsRequest{
		BranchID: f.branch,
	})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)

	_, err = f.svc.LowStock(context.Background(), rival, f.branch)
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)
}

func TestBranchScopeWithinOrganization(t *testing.T) {
	f := newFixture(t)
	sibling := &tenantdomain.Tenant{
		ID:                 f.genID.Generate(),
		Subdomain:          "acme-karen",
		Name:               "Karen",
		ParentID:           &f.org,
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionTrial,
		IsActive:           true,
	}
	require.NoError(t, f.db.Create(sibling).Error)

	// Staff on one branch cannot reach into a sibling branch.
	_, _, err := f.svc.ListMovements(context.Background(), f.cashier(), domain.ListMovementsRequest{
		BranchID: sibling.ID,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Owners roam freely inside their organization.
	owner := principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: f.org,
		OrgID:    f.org,
		Role:     principal.RoleOwner,
	}
	_, _, err = f.svc.ListMovements(context.Background(), owner, domain.ListMovementsRequest{
		BranchID: sibling.ID,
	})
	assert.NoError(t, err)
}

func TestEnsureBranchRows(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "MAIZE-FLOUR-2KG", false, 5)
	f.seedProduct(t, "SUGAR-1KG", false, 2)

	other := &tenantdomain.Tenant{
		ID:                 f.genID.Generate(),
		Subdomain:          "acme-karen",
		Name:               "Karen",
		ParentID:           &f.org,
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionTrial,
		IsActive:           true,
	}
	require.NoError(t, f.db.Create(other).Error)

	require.NoError(t, f.svc.EnsureBranchRows(context.Background(), f.org, other.ID))
	// Re-running must not duplicate rows.
	require.NoError(t, f.svc.EnsureBranchRows(context.Background(), f.org, other.ID))

	var rows []domain.BranchStock
	require.NoError(t, f.db.Where("tenant_id = ?", other.ID).Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Zero(t, row.Quantity)
	}
}

func TestEnsureProductRows(t *testing.T) {
	f := newFixture(t)
	productID := f.genID.Generate()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.EnsureProductRows(context.Background(), tx, f.org, productID, 5)
	})
	require.NoError(t, err)

	var rows []domain.BranchStock
	require.NoError(t, f.db.Where("product_id = ?", productID).Find(&rows).Error)
	require.Len(t, rows, 2, "one row for the organization, one per branch")
	tenants := map[snowflake.ID]bool{}
	for _, row := range rows {
		tenants[row.TenantID] = true
		assert.Equal(t, int64(5), row.ReorderLevel)
	}
	assert.True(t, tenants[f.org])
	assert.True(t, tenants[f.branch])
}
