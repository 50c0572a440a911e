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
	"github.com/dukahub/dukahub/internal/sales/domain"
	salesrepo "github.com/dukahub/dukahub/internal/sales/repository"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	stockrepo "github.com/dukahub/dukahub/internal/stock/repository"
	stockservice "github.com/dukahub/dukahub/internal/stock/service"
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
		&catalogdomain.Product{},
		&stockdomain.BranchStock{},
		&stockdomain.StockMovement{},
		&domain.Sale{},
		&domain.SaleItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	catalogRepo := catalogrepo.NewRepository(db)
	tenantRepo := tenantrepo.NewRepository(db)
	stockSvc := stockservice.NewService(db, stockrepo.NewRepository(db), catalogRepo, tenantRepo, node, nil, zap.NewNop())

	f := &fixture{db: db, genID: node}
	f.svc = NewService(db, salesrepo.NewRepository(db), catalogRepo, tenantRepo, stockSvc, node, nil, zap.NewNop())

	org := &tenantdomain.Tenant{
		ID:                 node.Generate(),
		Subdomain:          "acme",
		Name:               "Acme Traders",
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionActive,
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
		SubscriptionStatus: tenantdomain.SubscriptionActive,
		IsActive:           true,
	}
	require.NoError(t, db.Create(branch).Error)

	f.org = org.ID
	f.branch = branch.ID
	return f
}

func (f *fixture) seedProduct(t *testing.T, sku string, price string, isService bool, quantity int64) snowflake.ID {
	t.Helper()

	product := &catalogdomain.Product{
		ID:           f.genID.Generate(),
		TenantID:     f.org,
		SKU:          sku,
		Name:         sku,
		CategoryID:   f.genID.Generate(),
		UnitID:       f.genID.Generate(),
		BaseCost:     decimal.NewFromInt(10),
		SellingPrice: decimal.RequireFromString(price),
		IsService:    isService,
		IsAvailable:  true,
	}
	require.NoError(t, f.db.Create(product).Error)

	if !isService {
		require.NoError(t, f.db.Create(&stockdomain.BranchStock{
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

	var stock stockdomain.BranchStock
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

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateSale(t *testing.T) {
	f := newFixture(t)
	flour := f.seedProduct(t, "MAIZE-FLOUR-2KG", "100.00", false, 10)
	oil := f.seedProduct(t, "COOKING-OIL-1L", "50.00", false, 5)
	c := f.cashier()

	override := dec("45.50")
	sale, err := f.svc.CreateSale(context.Background(), c, domain.CreateSaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: flour, Quantity: 2},
			{ProductID: oil, Quantity: 1, PriceOverride: &override},
		},
		PaymentMethod: domain.PaymentCash,
		CustomerName:  "  Wanjiku  ",
	})
	require.NoError(t, err)

	assert.True(t, dec("245.50").Equal(sale.Total), "total %s", sale.Total)
	assert.True(t, dec("211.64").Equal(sale.Subtotal), "subtotal %s", sale.Subtotal)
	assert.True(t, dec("33.86").Equal(sale.Tax), "tax %s", sale.Tax)
	assert.Equal(t, 0.16, sale.TaxRate)
	assert.Equal(t, "KES", sale.Currency)
	assert.Equal(t, "Wanjiku", sale.CustomerName)

	require.Len(t, sale.Items, 2)
	first, second := sale.Items[0], sale.Items[1]
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, "MAIZE-FLOUR-2KG", first.SKU)
	assert.False(t, first.IsPriceOverride)
	assert.True(t, first.Variance.IsZero())

	assert.Equal(t, 1, second.Position)
	assert.True(t, second.IsPriceOverride)
	assert.True(t, dec("45.50").Equal(second.UnitPrice))
	assert.True(t, dec("50.00").Equal(second.SellingPrice), "catalog price snapshotted")
	assert.True(t, dec("-4.50").Equal(second.Variance))

	assert.Equal(t, int64(8), f.quantity(t, flour))
	assert.Equal(t, int64(4), f.quantity(t, oil))

	var movements []stockdomain.StockMovement
	require.NoError(t, f.db.Where("reference = ?", sale.ID.String()).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, stockdomain.ReasonSale, m.Reason)
		assert.Equal(t, c.UserID, m.ActorID)
	}
}

func TestCreateSaleInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	flour := f.seedProduct(t, "MAIZE-FLOUR-2KG", "100.00", false, 10)
	oil := f.seedProduct(t, "COOKING-OIL-1L", "50.00", false, 1)

	_, err := f.svc.CreateSale(context.Background(), f.cashier(), domain.CreateSaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: flour, Quantity: 2},
			{ProductID: oil, Quantity: 5},
		},
		PaymentMethod: domain.PaymentCash,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, stockdomain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "COOKING-OIL-1L", "the error names the short product")

	assert.Equal(t, int64(10), f.quantity(t, flour), "no partial decrement survives")
	assert.Equal(t, int64(1), f.quantity(t, oil))
	var sales, items int64
	require.NoError(t, f.db.Model(&domain.Sale{}).Count(&sales).Error)
	require.NoError(t, f.db.Model(&domain.SaleItem{}).Count(&items).Error)
	assert.Zero(t, sales)
	assert.Zero(t, items)
}

func TestCreateSaleServiceProduct(t *testing.T) {
	f := newFixture(t)
	withdrawal := f.seedProduct(t, "MPESA-WITHDRAWAL", "20.00", true, 0)

	sale, err := f.svc.CreateSale(context.Background(), f.cashier(), domain.CreateSaleRequest{
		Items:         []domain.SaleItemInput{{ProductID: withdrawal, Quantity: 3}},
		PaymentMethod: domain.PaymentMobileMoney,
	})
	require.NoError(t, err)
	assert.True(t, dec("60.00").Equal(sale.Total))

	var movements int64
	require.NoError(t, f.db.Model(&stockdomain.StockMovement{}).Count(&movements).Error)
	assert.Zero(t, movements, "services never touch stock")
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)
	flour := f.seedProduct(t, "MAIZE-FLOUR-2KG", "100.00", false, 10)
	negative := dec("-5")

	tests := []struct {
		name    string
		req     domain.CreateSaleRequest
		wantErr error
	}{
		{
			name:    "no items",
			req:     domain.CreateSaleRequest{PaymentMethod: domain.PaymentCash},
			wantErr: domain.ErrEmptySale,
		},
		{
			name: "unknown payment method",
			req: domain.CreateSaleRequest{
				Items:         []domain.SaleItemInput{{ProductID: flour, Quantity: 1}},
				PaymentMethod: domain.PaymentMethod("barter"),
			},
			wantErr: domain.ErrInvalidPaymentMethod,
		},
		{
			name: "zero quantity",
			req: domain.CreateSaleRequest{
				Items:         []domain.SaleItemInput{{ProductID: flour, Quantity: 0}},
				PaymentMethod: domain.PaymentCash,
			},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name: "negative override",
			req: domain.CreateSaleRequest{
				Items:         []domain.SaleItemInput{{ProductID: flour, Quantity: 1, PriceOverride: &negative}},
				PaymentMethod: domain.PaymentCash,
			},
			wantErr: domain.ErrInvalidPrice,
		},
		{
			name: "unknown product",
			req: domain.CreateSaleRequest{
				Items:         []domain.SaleItemInput{{ProductID: f.genID.Generate(), Quantity: 1}},
				PaymentMethod: domain.PaymentCash,
			},
			wantErr: domain.ErrUnknownProduct,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSale(context.Background(), f.cashier(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListSalesStaffSeeOnlyTheirOwn(t *testing.T) {
	f := newFixture(t)
	flour := f.seedProduct(t, "MAIZE-FLOUR-2KG", "100.00", false, 100)
	alice := f.cashier()
	bob := f.cashier()

	for _, c := range []principal.Principal{alice, alice, bob} {
		_, err := f.svc.CreateSale(context.Background(), c, domain.CreateSaleRequest{
			Items:         []domain.SaleItemInput{{ProductID: flour, Quantity: 1}},
			PaymentMethod: domain.PaymentCash,
		})
		require.NoError(t, err)
	}

	own, _, err := f.svc.ListSales(context.Background(), alice, domain.ListSalesRequest{})
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, sale := range own {
		assert.Equal(t, alice.UserID, sale.UserID)
	}

	owner := principal.Principal{UserID: f.genID.Generate(), TenantID: f.org, OrgID: f.org, Role: principal.RoleOwner}
	all, _, err := f.svc.ListSales(context.Background(), owner, domain.ListSalesRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3, "owners on the organization see every branch")
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
		SubscriptionStatus: tenantdomain.SubscriptionActive,
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

func TestListSalesCrossOrganizationBranch(t *testing.T) {
	f := newFixture(t)
	flour := f.seedProduct(t, "MAIZE-FLOUR-2KG", "100.00", false, 10)
	_, err := f.svc.CreateSale(context.Background(), f.cashier(), domain.CreateSaleRequest{
		Items:         []domain.SaleItemInput{{ProductID: flour, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	// An owner of another organization filtering on this branch gets
	// nothing back, not even the branch's existence.
	rivalOwner := f.seedRivalOrg(t)
	sales, _, err := f.svc.ListSales(context.Background(), rivalOwner, domain.ListSalesRequest{BranchID: f.branch})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)
	assert.Empty(t, sales)
}

func TestCreateSaleCrossOrganizationBranch(t *testing.T) {
	f := newFixture(t)
	rivalOwner := f.seedRivalOrg(t)

	_, err := f.svc.CreateSale(context.Background(), rivalOwner, domain.CreateSaleRequest{
		Items:         []domain.SaleItemInput{{ProductID: f.genID.Generate(), Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
		BranchID:      f.branch,
	})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)

	var sales int64
	require.NoError(t, f.db.Model(&domain.Sale{}).Where("tenant_id = ?", f.branch).Count(&sales).Error)
	assert.Zero(t, sales, "no sale lands in the foreign branch")
}

func TestListSalesBranchAdminStaysOnOwnBranch(t *testing.T) {
	f := newFixture(t)
	sibling := &tenantdomain.Tenant{
		ID:                 f.genID.Generate(),
		Subdomain:          "acme-karen",
		Name:               "Karen",
		ParentID:           &f.org,
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "Africa/Nairobi",
		SubscriptionStatus: tenantdomain.SubscriptionActive,
		IsActive:           true,
	}
	require.NoError(t, f.db.Create(sibling).Error)

	admin := principal.Principal{
		UserID:         f.genID.Generate(),
		TenantID:       f.branch,
		OrgID:          f.org,
		Role:           principal.RoleBranchAdmin,
		PinnedBranchID: &f.branch,
	}
	_, _, err := f.svc.ListSales(context.Background(), admin, domain.ListSalesRequest{BranchID: sibling.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.svc.ListSales(context.Background(), admin, domain.ListSalesRequest{BranchID: f.branch})
	assert.NoError(t, err)

	owner := principal.Principal{UserID: f.genID.Generate(), TenantID: f.org, OrgID: f.org, Role: principal.RoleOwner}
	_, _, err = f.svc.ListSales(context.Background(), owner, domain.ListSalesRequest{BranchID: sibling.ID})
	assert.NoError(t, err, "owners reach every branch of their organization")
}

func TestCreateSaleConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	soda := f.seedProduct(t, "SODA-500ML", "50.00", false, 1)

	// A single pooled connection serializes the two transactions the
	// way row locks would on postgres.
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	errs := make(chan error, 2)
	for _, c := range []principal.Principal{f.cashier(), f.cashier()} {
		go func(p principal.Principal) {
			_, err := f.svc.CreateSale(context.Background(), p, domain.CreateSaleRequest{
				Items:         []domain.SaleItemInput{{ProductID: soda, Quantity: 1}},
				PaymentMethod: domain.PaymentCash,
			})
			errs <- err
		}(c)
	}

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1, "exactly one sale wins the last unit")
	assert.ErrorIs(t, failures[0], stockdomain.ErrInsufficientStock)

	assert.Equal(t, int64(0), f.quantity(t, soda))
	var sales, movements int64
	require.NoError(t, f.db.Model(&domain.Sale{}).Count(&sales).Error)
	require.NoError(t, f.db.Model(&stockdomain.StockMovement{}).Count(&movements).Error)
	assert.Equal(t, int64(1), sales)
	assert.Equal(t, int64(1), movements)
}

func TestGetSaleScope(t *testing.T) {
	f := newFixture(t)
	flour := f.seedProduct(t, "MAIZE-FLOUR-2KG", "100.00", false, 100)
	alice := f.cashier()
	bob := f.cashier()

	sale, err := f.svc.CreateSale(context.Background(), alice, domain.CreateSaleRequest{
		Items:         []domain.SaleItemInput{{ProductID: flour, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	_, err = f.svc.GetSale(context.Background(), alice, sale.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetSale(context.Background(), bob, sale.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden, "staff cannot read another cashier's sale")

	foreignOrg := f.genID.Generate()
	stranger := principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: foreignOrg,
		OrgID:    foreignOrg,
		Role:     principal.RoleOwner,
	}
	_, err = f.svc.GetSale(context.Background(), stranger, sale.ID)
	assert.ErrorIs(t, err, domain.ErrSaleNotFound, "cross-organization reads look like missing rows")
}
