package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/reporting/domain"
	"github.com/dukahub/dukahub/internal/reporting/repository"
	salesdomain "github.com/dukahub/dukahub/internal/sales/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	tenantrepo "github.com/dukahub/dukahub/internal/tenant/repository"
	"github.com/dukahub/dukahub/pkg/principal"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clk   *clock.FakeClock
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
		&salesdomain.Sale{},
		&salesdomain.SaleItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:    db,
		clk:   clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
		genID: node,
	}
	f.svc = NewService(repository.NewRepository(db), tenantrepo.NewRepository(db), f.clk, zap.NewNop())

	org := &tenantdomain.Tenant{
		ID:                 node.Generate(),
		Subdomain:          "acme",
		Name:               "Acme Traders",
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "UTC",
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
		Timezone:           "UTC",
		SubscriptionStatus: tenantdomain.SubscriptionActive,
		IsActive:           true,
	}
	require.NoError(t, db.Create(branch).Error)

	f.org = org.ID
	f.branch = branch.ID
	return f
}

type itemSpec struct {
	productID snowflake.ID
	quantity  int64
	unitPrice string
	variance  string
}

func (f *fixture) seedSale(t *testing.T, userID snowflake.ID, createdAt time.Time, items ...itemSpec) snowflake.ID {
	t.Helper()

	sale := &salesdomain.Sale{
		ID:            f.genID.Generate(),
		TenantID:      f.branch,
		UserID:        userID,
		PaymentMethod: salesdomain.PaymentCash,
		TaxRate:       0.16,
		Currency:      "KES",
		CreatedAt:     createdAt,
	}
	total := decimal.Zero
	for i, spec := range items {
		unitPrice := decimal.RequireFromString(spec.unitPrice)
		variance := decimal.RequireFromString(spec.variance)
		total = total.Add(unitPrice.Mul(decimal.NewFromInt(spec.quantity)))
		sale.Items = append(sale.Items, salesdomain.SaleItem{
			ID:              f.genID.Generate(),
			SaleID:          sale.ID,
			ProductID:       spec.productID,
			SKU:             "SKU-" + spec.productID.String(),
			Name:            "Product " + spec.productID.String(),
			Quantity:        spec.quantity,
			UnitPrice:       unitPrice,
			SellingPrice:    unitPrice.Sub(variance),
			Variance:        variance,
			IsPriceOverride: !variance.IsZero(),
			Position:        i,
			CreatedAt:       createdAt,
		})
	}
	sale.Total = total
	sale.Subtotal, sale.Tax = salesdomain.ExtractVAT(total, sale.TaxRate)
	require.NoError(t, f.db.Create(sale).Error)
	return sale.ID
}

func (f *fixture) owner() principal.Principal {
	return principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: f.org,
		OrgID:    f.org,
		Role:     principal.RoleOwner,
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	product := f.genID.Generate()
	user := f.genID.Generate()

	day1 := time.Date(2026, time.March, 8, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.March, 9, 15, 30, 0, 0, time.UTC)
	f.seedSale(t, user, day1, itemSpec{product, 1, "100.00", "0"})
	f.seedSale(t, user, day2, itemSpec{product, 2, "100.00", "0"})
	f.seedSale(t, user, day2, itemSpec{product, 1, "50.00", "0"})
	// Outside the requested range.
	f.seedSale(t, user, time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC), itemSpec{product, 1, "999.00", "0"})

	dash, err := f.svc.Dashboard(context.Background(), f.owner(), domain.DashboardRequest{
		FromDate: "2026-03-01",
		ToDate:   "2026-03-09",
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("350").Equal(dash.Revenue), "revenue %s", dash.Revenue)
	assert.Equal(t, int64(3), dash.SalesCount)

	require.Len(t, dash.RevenueByDay, 2)
	assert.Equal(t, "2026-03-08", dash.RevenueByDay[0].Date)
	assert.Equal(t, int64(1), dash.RevenueByDay[0].SalesCount)
	assert.Equal(t, "2026-03-09", dash.RevenueByDay[1].Date)
	assert.Equal(t, int64(2), dash.RevenueByDay[1].SalesCount)
	assert.True(t, decimal.RequireFromString("250").Equal(dash.RevenueByDay[1].Revenue))

	require.NotEmpty(t, dash.TopProducts)
	assert.Equal(t, product, dash.TopProducts[0].ProductID)
	assert.Equal(t, int64(4), dash.TopProducts[0].Quantity)
}

func TestDashboardInvalidRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Dashboard(context.Background(), f.owner(), domain.DashboardRequest{
		FromDate: "2026-03-09",
		ToDate:   "2026-03-01",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = f.svc.Dashboard(context.Background(), f.owner(), domain.DashboardRequest{FromDate: "not-a-date"})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestPriceVarianceCountsDistinctSales(t *testing.T) {
	f := newFixture(t)
	product := f.genID.Generate()
	alice := f.genID.Generate()
	bob := f.genID.Generate()
	at := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

	// One sale with two overridden lines of the same product: it must
	// count once, not twice.
	f.seedSale(t, alice, at,
		itemSpec{product, 1, "90.00", "-10.00"},
		itemSpec{product, 2, "95.00", "-5.00"},
	)
	f.seedSale(t, alice, at, itemSpec{product, 1, "100.00", "0"})
	f.seedSale(t, bob, at, itemSpec{product, 3, "110.00", "10.00"})

	rows, err := f.svc.PriceVariance(context.Background(), f.owner(), domain.VarianceRequest{
		Dimension: domain.DimensionProduct,
		FromDate:  "2026-03-01",
		ToDate:    "2026-03-09",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, product, row.KeyID)
	assert.Equal(t, int64(3), row.TotalSales)
	assert.Equal(t, int64(2), row.OverrideSales, "distinct sales, not item rows")
	assert.InDelta(t, 2.0/3.0, row.OverrideRate, 1e-9)
	// -10*1 + -5*2 + 10*3 = 10
	assert.True(t, decimal.RequireFromString("10").Equal(row.VarianceSum), "variance sum %s", row.VarianceSum)
}

func TestPriceVarianceByStaff(t *testing.T) {
	f := newFixture(t)
	product := f.genID.Generate()
	alice := f.genID.Generate()
	bob := f.genID.Generate()
	at := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

	f.seedSale(t, alice, at, itemSpec{product, 1, "90.00", "-10.00"})
	f.seedSale(t, alice, at, itemSpec{product, 1, "100.00", "0"})
	f.seedSale(t, bob, at, itemSpec{product, 1, "100.00", "0"})

	rows, err := f.svc.PriceVariance(context.Background(), f.owner(), domain.VarianceRequest{
		Dimension: domain.DimensionStaff,
		FromDate:  "2026-03-01",
		ToDate:    "2026-03-09",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byKey := map[snowflake.ID]domain.VarianceRow{}
	for _, row := range rows {
		byKey[row.KeyID] = row
	}
	assert.Equal(t, int64(2), byKey[alice].TotalSales)
	assert.Equal(t, int64(1), byKey[alice].OverrideSales)
	assert.Equal(t, int64(1), byKey[bob].TotalSales)
	assert.Equal(t, int64(0), byKey[bob].OverrideSales)
}

func TestPriceVarianceByBranchNamesBranches(t *testing.T) {
	f := newFixture(t)
	product := f.genID.Generate()
	user := f.genID.Generate()
	at := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

	f.seedSale(t, user, at, itemSpec{product, 1, "90.00", "-10.00"})

	rows, err := f.svc.PriceVariance(context.Background(), f.owner(), domain.VarianceRequest{
		Dimension: domain.DimensionBranch,
		FromDate:  "2026-03-01",
		ToDate:    "2026-03-09",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.branch, rows[0].KeyID)
	assert.Equal(t, "Westlands", rows[0].KeyName)
}

func TestReportsCrossOrganizationBranch(t *testing.T) {
	f := newFixture(t)

	rivalOrg := &tenantdomain.Tenant{
		ID:                 f.genID.Generate(),
		Subdomain:          "rival",
		Name:               "Rival Traders",
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "UTC",
		SubscriptionStatus: tenantdomain.SubscriptionActive,
		IsActive:           true,
	}
	require.NoError(t, f.db.Create(rivalOrg).Error)
	rival := principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: rivalOrg.ID,
		OrgID:    rivalOrg.ID,
		Role:     principal.RoleOwner,
	}

	_, err := f.svc.Dashboard(context.Background(), rival, domain.DashboardRequest{
		BranchID: f.branch,
	})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)

	_, err = f.svc.PriceVariance(context.Background(), rival, domain.VarianceRequest{
		Dimension: domain.DimensionProduct,
		BranchID:  f.branch,
	})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)
}

func TestReportsBranchScopeWithinOrganization(t *testing.T) {
	f := newFixture(t)

	sibling := &tenantdomain.Tenant{
		ID:                 f.genID.Generate(),
		Subdomain:          "acme-karen",
		Name:               "Karen",
		ParentID:           &f.org,
		Currency:           "KES",
		TaxRate:            0.16,
		Timezone:           "UTC",
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

	_, err := f.svc.Dashboard(context.Background(), admin, domain.DashboardRequest{
		BranchID: sibling.ID,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Dashboard(context.Background(), admin, domain.DashboardRequest{
		BranchID: f.branch,
	})
	assert.NoError(t, err)

	_, err = f.svc.Dashboard(context.Background(), f.owner(), domain.DashboardRequest{
		BranchID: sibling.ID,
	})
	assert.NoError(t, err)
}

func TestPriceVarianceInvalidDimension(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PriceVariance(context.Background(), f.owner(), domain.VarianceRequest{
		Dimension: domain.VarianceDimension("cashier"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDimension)
}
