// Package seed creates a demo organization so a local install is
// usable out of the box.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	authdomain "github.com/dukahub/dukahub/internal/auth/domain"
	"github.com/dukahub/dukahub/internal/auth/password"
	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/config"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

const (
	demoSubdomain     = "demo"
	demoOrgName       = "Demo Duka"
	demoBranchName    = "Westlands Branch"
	demoAdminUsername = "demo-admin"
	demoAdminEmail    = "admin@demo.dukahub.app"
	demoAdminPassword = "demo1234"
	demoAdminDisplay  = "Demo Admin"
)

type demoProduct struct {
	sku      string
	name     string
	unit     string
	cost     string
	price    string
	reorder  int64
	quantity int64
	service  bool
}

var demoProducts = []demoProduct{
	{sku: "MAIZE-FLOUR-2KG", name: "Maize Flour 2kg", unit: "Piece", cost: "145.00", price: "189.00", reorder: 10, quantity: 48},
	{sku: "COOKING-OIL-1L", name: "Cooking Oil 1L", unit: "Piece", cost: "260.00", price: "320.00", reorder: 6, quantity: 24},
	{sku: "SUGAR-1KG", name: "Sugar 1kg", unit: "Kilogram", cost: "130.00", price: "165.00", reorder: 12, quantity: 60},
	{sku: "MILK-500ML", name: "Milk 500ml", unit: "Piece", cost: "48.00", price: "60.00", reorder: 20, quantity: 96},
	{sku: "MPESA-WITHDRAWAL", name: "M-Pesa Withdrawal", unit: "Piece", cost: "0.00", price: "30.00", service: true},
}

// EnsureDemo seeds the demo organization, branch, admin user, and a
// small catalog with stock. Idempotent: it backs off entirely when the
// demo subdomain already exists.
func EnsureDemo(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tenantdomain.Tenant{}).
			Where("subdomain = ?", demoSubdomain).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		trialEnds := now.AddDate(0, 0, cfg.TrialPeriodDays)

		org := tenantdomain.Tenant{
			ID:                 node.Generate(),
			Subdomain:          demoSubdomain,
			Name:               demoOrgName,
			OwnerEmail:         demoAdminEmail,
			Currency:           cfg.CurrencyDefault,
			TaxRate:            cfg.TaxRateDefault,
			Timezone:           "Africa/Nairobi",
			SubscriptionStatus: tenantdomain.SubscriptionTrial,
			TrialEndsAt:        &trialEnds,
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		branch := tenantdomain.Tenant{
			ID:                 node.Generate(),
			Subdomain:          demoSubdomain + "-westlands",
			Name:               demoBranchName,
			OwnerEmail:         demoAdminEmail,
			ParentID:           &org.ID,
			Currency:           org.Currency,
			TaxRate:            org.TaxRate,
			Timezone:           org.Timezone,
			SubscriptionStatus: tenantdomain.SubscriptionTrial,
			TrialEndsAt:        &trialEnds,
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Create(&branch).Error; err != nil {
			return err
		}

		admin, err := ensureAdmin(tx, node, now)
		if err != nil {
			return err
		}

		membership := tenantdomain.Membership{
			ID:       node.Generate(),
			TenantID: org.ID,
			UserID:   admin.ID,
			Role:     tenantdomain.RoleAdmin,
			IsOwner:  true,
			IsActive: true,
			JoinedAt: now,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		return seedCatalog(tx, node, org.ID, branch.ID, now)
	})
}

func ensureAdmin(tx *gorm.DB, node *snowflake.Node, now time.Time) (*authdomain.User, error) {
	var user authdomain.User
	err := tx.Where("username = ?", demoAdminUsername).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(demoAdminPassword)
	if err != nil {
		return nil, err
	}
	user = authdomain.User{
		ID:           node.Generate(),
		Username:     demoAdminUsername,
		Email:        demoAdminEmail,
		PasswordHash: hashed,
		DisplayName:  demoAdminDisplay,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func seedCatalog(tx *gorm.DB, node *snowflake.Node, orgID, branchID snowflake.ID, now time.Time) error {
	category := catalogdomain.Category{
		ID:        node.Generate(),
		TenantID:  orgID,
		Name:      "General",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&category).Error; err != nil {
		return err
	}

	unitNames := []struct{ name, abbr string }{
		{"Piece", "pcs"},
		{"Kilogram", "kg"},
		{"Gram", "g"},
		{"Litre", "l"},
		{"Packet", "pkt"},
		{"Dozen", "dz"},
	}
	units := make(map[string]snowflake.ID, len(unitNames))
	for _, u := range unitNames {
		row := catalogdomain.Unit{
			ID:           node.Generate(),
			TenantID:     orgID,
			Name:         u.name,
			Abbreviation: u.abbr,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		units[u.name] = row.ID
	}

	for _, p := range demoProducts {
		cost, err := decimal.NewFromString(p.cost)
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return err
		}

		product := catalogdomain.Product{
			ID:           node.Generate(),
			TenantID:     orgID,
			SKU:          p.sku,
			Name:         p.name,
			CategoryID:   category.ID,
			UnitID:       units[p.unit],
			BaseCost:     cost,
			SellingPrice: price,
			IsService:    p.service,
			ReorderLevel: p.reorder,
			IsAvailable:  true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}

		// One stock row per location; the branch carries the demo
		// quantities.
		for _, loc := range []struct {
			tenantID snowflake.ID
			quantity int64
		}{
			{orgID, 0},
			{branchID, p.quantity},
		} {
			stock := stockdomain.BranchStock{
				ID:           node.Generate(),
				TenantID:     loc.tenantID,
				ProductID:    product.ID,
				Quantity:     loc.quantity,
				ReorderLevel: p.reorder,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&stock).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
