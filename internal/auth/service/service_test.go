package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/auth/domain"
	authrepo "github.com/dukahub/dukahub/internal/auth/repository"
	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	tenantrepo "github.com/dukahub/dukahub/internal/tenant/repository"
	tenantservice "github.com/dukahub/dukahub/internal/tenant/service"
	"github.com/dukahub/dukahub/pkg/principal"
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	tenants tenantdomain.Service
	clk     *clock.FakeClock
	genID   *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&tenantdomain.Tenant{},
		&tenantdomain.Membership{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))

	cfg := config.Config{
		TrialPeriodDays: 14,
		CurrencyDefault: "KES",
		TaxRateDefault:  0.16,
	}
	tenants := tenantservice.NewService(db, tenantrepo.NewRepository(db), nil, node, cfg, clk, zap.NewNop())
	svc := NewService(
		authrepo.NewRepository(db),
		authrepo.NewSessionRepository(db),
		tenants,
		tenantrepo.NewRepository(db),
		node,
		clk,
		nil,
		zap.NewNop(),
	)
	return &fixture{db: db, svc: svc, tenants: tenants, clk: clk, genID: node}
}

// registerOwner creates a user and an organization owned by them.
func (f *fixture) registerOwner(t *testing.T, username, subdomain string) (snowflake.ID, snowflake.ID) {
	t.Helper()

	user, err := f.svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	org, err := f.tenants.RegisterOrganization(context.Background(), tenantdomain.RegisterOrganizationRequest{
		Name:        subdomain,
		Subdomain:   subdomain,
		OwnerUserID: user.ID,
	})
	require.NoError(t, err)
	orgID, err := snowflake.ParseString(org.ID)
	require.NoError(t, err)
	return user.ID, orgID
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	userID, orgID := f.registerOwner(t, "wanjiku", "acme")

	result, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "wanjiku",
		Password:   "correct horse battery",
		Subdomain:  "acme",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RawToken)
	assert.Equal(t, userID, result.User.ID)
	assert.Equal(t, orgID, result.Tenant.ID)
	assert.Equal(t, principal.RoleOwner, result.Principal.Role)

	session, err := f.svc.Authenticate(context.Background(), result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)
	assert.Equal(t, orgID, session.TenantID)

	// Email works as the credential too.
	_, err = f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "wanjiku@example.com",
		Password:   "correct horse battery",
		Subdomain:  "acme",
	})
	assert.NoError(t, err)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newFixture(t)
	f.registerOwner(t, "wanjiku", "acme")

	// Wrong password and unknown credential produce the same error.
	_, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "wanjiku", Password: "wrong", Subdomain: "acme",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "nobody", Password: "wrong", Subdomain: "acme",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	// Subdomains are public, so a missing tenant is named.
	_, err = f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "wanjiku", Password: "correct horse battery", Subdomain: "ghost",
	})
	assert.ErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestLoginRequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.registerOwner(t, "wanjiku", "acme")
	f.registerOwner(t, "otieno", "rivals")

	// Valid credentials, wrong shop.
	_, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "otieno", Password: "correct horse battery", Subdomain: "acme",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrNotAMember)
}

func TestLoginSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	_, orgID := f.registerOwner(t, "wanjiku", "acme")

	require.NoError(t, f.db.Model(&tenantdomain.Tenant{}).
		Where("id = ?", orgID).Update("is_active", false).Error)

	_, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "wanjiku", Password: "correct horse battery", Subdomain: "acme",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrInactive)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.registerOwner(t, "wanjiku", "acme")
	login := func() string {
		result, err := f.svc.Login(context.Background(), domain.LoginRequest{
			Credential: "wanjiku", Password: "correct horse battery", Subdomain: "acme",
		})
		require.NoError(t, err)
		return result.RawToken
	}

	revoked := login()
	require.NoError(t, f.svc.Logout(context.Background(), revoked))
	_, err := f.svc.Authenticate(context.Background(), revoked)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)

	stale := login()
	f.clk.Advance(8 * 24 * time.Hour)
	_, err = f.svc.Authenticate(context.Background(), stale)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = f.svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	_, err = f.svc.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSwitchTenant(t *testing.T) {
	f := newFixture(t)
	userID, orgID := f.registerOwner(t, "wanjiku", "acme")

	owner := principal.Principal{
		UserID:   userID,
		TenantID: orgID,
		OrgID:    orgID,
		Role:     principal.RoleOwner,
	}
	branchResp, err := f.tenants.CreateBranch(context.Background(), owner, tenantdomain.CreateBranchRequest{
		Name: "Westlands",
	})
	require.NoError(t, err)
	branchID, err := snowflake.ParseString(branchResp.ID)
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "wanjiku", Password: "correct horse battery", Subdomain: "acme",
	})
	require.NoError(t, err)

	// An org admin switches to any branch through the super-user rule.
	switched, err := f.svc.SwitchTenant(context.Background(), result.RawToken, branchID)
	require.NoError(t, err)
	assert.Equal(t, branchID, switched.Tenant.ID)
	assert.Equal(t, principal.RoleOwner, switched.Principal.Role)
	assert.Equal(t, branchID, switched.Principal.TenantID)
	assert.Equal(t, orgID, switched.Principal.OrgID)

	session, err := f.svc.Authenticate(context.Background(), result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, branchID, session.TenantID, "the session follows the switch")

	// A staff member of the org pinned to no branch cannot.
	staff, err := f.svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Username: "otieno",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	_, err = f.tenants.AddMember(context.Background(), owner, tenantdomain.AddMemberRequest{
		UserID: staff.ID,
		Role:   tenantdomain.RoleStaff,
	})
	require.NoError(t, err)

	staffLogin, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Credential: "otieno", Password: "correct horse battery", Subdomain: "acme",
	})
	require.NoError(t, err)
	_, err = f.svc.SwitchTenant(context.Background(), staffLogin.RawToken, branchID)
	assert.ErrorIs(t, err, tenantdomain.ErrSwitchForbidden)
}
