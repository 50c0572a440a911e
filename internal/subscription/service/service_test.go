package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/subscription/domain"
	"github.com/dukahub/dukahub/internal/subscription/gateway"
	subscriptionrepo "github.com/dukahub/dukahub/internal/subscription/repository"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	tenantrepo "github.com/dukahub/dukahub/internal/tenant/repository"
	"github.com/dukahub/dukahub/pkg/principal"
)

// fakeGateway scripts gateway responses and counts calls so tests can
// prove which paths never reach the gateway.
type fakeGateway struct {
	initCalls   int
	verifyCalls int

	verifyTx  *gateway.Transaction
	verifyErr error
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, params gateway.InitializeParams) (*gateway.Authorization, error) {
	g.initCalls++
	return &gateway.Authorization{
		AuthorizationURL: "https://pay.example/" + params.Reference,
		Reference:        params.Reference,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(context.Context, string) (*gateway.Transaction, error) {
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyTx, nil
}

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	gateway *fakeGateway
	clk     *clock.FakeClock
	genID   *snowflake.Node

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
		&domain.SubscriptionTransaction{},
		&domain.BranchSubscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		gateway: &fakeGateway{},
		clk:     clock.NewFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)),
		genID:   node,
	}
	f.svc = NewService(
		db,
		subscriptionrepo.NewRepository(db),
		tenantrepo.NewRepository(db),
		f.gateway,
		config.NewStaticPricingHolder(config.DefaultPricingConfig()),
		config.Config{},
		node,
		f.clk,
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

func (f *fixture) owner() principal.Principal {
	return principal.Principal{
		UserID:   f.genID.Generate(),
		TenantID: f.org,
		OrgID:    f.org,
		Role:     principal.RoleOwner,
	}
}

func (f *fixture) tenant(t *testing.T) *tenantdomain.Tenant {
	t.Helper()

	var tenant tenantdomain.Tenant
	require.NoError(t, f.db.First(&tenant, "id = ?", f.org).Error)
	return &tenant
}

func TestInitializePricesSelection(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{
		Cycle:     domain.CycleMonthly,
		BranchIDs: []snowflake.ID{f.branch},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.Amount, "base plus one discounted branch")
	assert.Equal(t, "KES", resp.Currency)
	assert.NotEmpty(t, resp.Reference)
	assert.Equal(t, 1, f.gateway.initCalls)

	var row domain.SubscriptionTransaction
	require.NoError(t, f.db.First(&row, "reference = ?", resp.Reference).Error)
	assert.Equal(t, domain.TransactionPending, row.Status)
	assert.False(t, row.Prorata)
}

func TestInitializeRejectsForeignBranch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{
		Cycle:     domain.CycleMonthly,
		BranchIDs: []snowflake.ID{f.genID.Generate()},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownBranch)

	_, err = f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{
		Cycle: domain.BillingCycle("weekly"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCycle)
}

func TestVerifyActivatesTenant(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{
		Cycle:     domain.CycleMonthly,
		BranchIDs: []snowflake.ID{f.branch},
	})
	require.NoError(t, err)

	f.gateway.verifyTx = &gateway.Transaction{
		Reference:         resp.Reference,
		Status:            "success",
		Amount:            resp.Amount,
		AuthorizationCode: "AUTH_x",
	}
	result, err := f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSuccess, result.Status)
	require.NotNil(t, result.SubscriptionEnd)
	assert.WithinDuration(t, f.clk.Now().AddDate(0, 1, 0), *result.SubscriptionEnd, time.Second)
	assert.Len(t, result.Branches, 2, "main location plus the selected branch")

	tenant := f.tenant(t)
	assert.Equal(t, tenantdomain.SubscriptionActive, tenant.SubscriptionStatus)
	require.NotNil(t, tenant.NextBillingDate)
	assert.Equal(t, "AUTH_x", tenant.GatewayAuthorization)
	require.NotNil(t, tenant.LastPaymentDate)
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{
		Cycle:     domain.CycleMonthly,
		BranchIDs: []snowflake.ID{f.branch},
	})
	require.NoError(t, err)

	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "success"}
	first, err := f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	// Redirect handler, webhook, and an impatient retry all land here.
	for i := 0; i < 3; i++ {
		again, err := f.svc.Verify(context.Background(), resp.Reference)
		require.NoError(t, err)
		assert.Equal(t, first.Status, again.Status)
		assert.ElementsMatch(t, first.Branches, again.Branches)
	}
	assert.Equal(t, 1, f.gateway.verifyCalls, "settled references never touch the gateway again")

	var coverage int64
	require.NoError(t, f.db.Model(&domain.BranchSubscription{}).Count(&coverage).Error)
	assert.Equal(t, int64(2), coverage, "repetition must not extend coverage")
}

func TestVerifyGatewayErrorLeavesPending(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{Cycle: domain.CycleMonthly})
	require.NoError(t, err)

	f.gateway.verifyErr = fmt.Errorf("%w: connection refused", domain.ErrGatewayUnavailable)
	_, err = f.svc.Verify(context.Background(), resp.Reference)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	var row domain.SubscriptionTransaction
	require.NoError(t, f.db.First(&row, "reference = ?", resp.Reference).Error)
	assert.Equal(t, domain.TransactionPending, row.Status, "a later verify can still settle it")

	// The gateway recovers; the same reference settles.
	f.gateway.verifyErr = nil
	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "success"}
	result, err := f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSuccess, result.Status)
}

func TestVerifyFailedCharge(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Initialize(context.Background(), f.owner(), domain.InitializeRequest{Cycle: domain.CycleMonthly})
	require.NoError(t, err)

	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "abandoned"}
	result, err := f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionFailed, result.Status)

	tenant := f.tenant(t)
	assert.Equal(t, tenantdomain.SubscriptionTrial, tenant.SubscriptionStatus, "a failed charge changes nothing")
}

func TestVerifyUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), "no-such-reference")
	assert.Error(t, err)
}

func TestCancelAndReactivate(t *testing.T) {
	f := newFixture(t)
	owner := f.owner()

	// Not yet active: nothing to cancel.
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), owner), domain.ErrNotCancellable)

	resp, err := f.svc.Initialize(context.Background(), owner, domain.InitializeRequest{Cycle: domain.CycleMonthly})
	require.NoError(t, err)
	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "success"}
	_, err = f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), owner))
	tenant := f.tenant(t)
	assert.Equal(t, tenantdomain.SubscriptionCancelled, tenant.SubscriptionStatus)
	assert.False(t, tenant.AutoRenewalEnabled)

	// Within the paid period reactivation restores active.
	require.NoError(t, f.svc.Reactivate(context.Background(), owner))
	assert.Equal(t, tenantdomain.SubscriptionActive, f.tenant(t).SubscriptionStatus)

	// Past the period there is nothing left to reactivate.
	require.NoError(t, f.svc.Cancel(context.Background(), owner))
	f.clk.Advance(32 * 24 * time.Hour)
	assert.ErrorIs(t, f.svc.Reactivate(context.Background(), owner), domain.ErrNotReactivatable)
}

func TestExpireDeactivatesCoverage(t *testing.T) {
	f := newFixture(t)
	owner := f.owner()

	resp, err := f.svc.Initialize(context.Background(), owner, domain.InitializeRequest{
		Cycle:     domain.CycleMonthly,
		BranchIDs: []snowflake.ID{f.branch},
	})
	require.NoError(t, err)
	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "success"}
	_, err = f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	f.clk.Advance(32 * 24 * time.Hour)
	require.NoError(t, f.svc.Expire(context.Background(), f.org, f.clk.Now()))

	assert.Equal(t, tenantdomain.SubscriptionExpired, f.tenant(t).SubscriptionStatus)
	var active int64
	require.NoError(t, f.db.Model(&domain.BranchSubscription{}).Where("is_active = ?", true).Count(&active).Error)
	assert.Zero(t, active)
}

func TestAddBranchMidCycleProrata(t *testing.T) {
	f := newFixture(t)
	owner := f.owner()

	// Subscribe the main location only.
	resp, err := f.svc.Initialize(context.Background(), owner, domain.InitializeRequest{Cycle: domain.CycleMonthly})
	require.NoError(t, err)
	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "success"}
	_, err = f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	// Ten days into a 31-day period, 21 days remain.
	f.clk.Advance(10 * 24 * time.Hour)
	add, err := f.svc.AddBranchMidCycle(context.Background(), owner, f.branch)
	require.NoError(t, err)
	assert.Equal(t, int64(1084), add.Amount, "1600 * 21/31 rounded")

	f.gateway.verifyTx = &gateway.Transaction{Reference: add.Reference, Status: "success"}
	result, err := f.svc.Verify(context.Background(), add.Reference)
	require.NoError(t, err)
	require.NotNil(t, result.SubscriptionEnd)

	tenant := f.tenant(t)
	assert.WithinDuration(t, *tenant.NextBillingDate, *result.SubscriptionEnd, time.Second,
		"the branch expires with the running cycle, not a month from payment")
	assert.Len(t, result.Branches, 1, "pro-rata coverage is the branch alone")

	// Adding the same branch again while covered is refused.
	_, err = f.svc.AddBranchMidCycle(context.Background(), owner, f.branch)
	assert.ErrorIs(t, err, domain.ErrBranchCovered)
}

func TestReconcileAutoRenewalDropsDeletedBranches(t *testing.T) {
	f := newFixture(t)
	owner := f.owner()

	resp, err := f.svc.Initialize(context.Background(), owner, domain.InitializeRequest{
		Cycle:     domain.CycleAnnual,
		BranchIDs: []snowflake.ID{f.branch},
	})
	require.NoError(t, err)
	f.gateway.verifyTx = &gateway.Transaction{Reference: resp.Reference, Status: "success", AuthorizationCode: "AUTH_r"}
	_, err = f.svc.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	require.NoError(t, f.svc.EnableAutoRenewal(context.Background(), owner))

	plan, err := f.svc.ReconcileAutoRenewal(context.Background(), f.org)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleAnnual, plan.Cycle)
	assert.Equal(t, []snowflake.ID{f.branch}, plan.BranchIDs)
	assert.Equal(t, int64(36000), plan.Amount)

	// The branch is deactivated; the renewal must not charge for it.
	require.NoError(t, f.db.Model(&tenantdomain.Tenant{}).
		Where("id = ?", f.branch).Update("is_active", false).Error)
	plan, err = f.svc.ReconcileAutoRenewal(context.Background(), f.org)
	require.NoError(t, err)
	assert.Empty(t, plan.BranchIDs)
	assert.Equal(t, int64(20000), plan.Amount)
}

func TestAutoRenewalRequiresAuthorization(t *testing.T) {
	f := newFixture(t)
	owner := f.owner()

	assert.ErrorIs(t, f.svc.EnableAutoRenewal(context.Background(), owner), domain.ErrNoAuthorization)

	assert.NoError(t, f.svc.DisableAutoRenewal(context.Background(), owner))
	_, err := f.svc.ReconcileAutoRenewal(context.Background(), f.org)
	assert.True(t, errors.Is(err, domain.ErrNotSubscribed))
}
