package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/db"
	"github.com/dukahub/dukahub/pkg/principal"
)

type service struct {
	db           *gorm.DB
	repo         domain.Repository
	bootstrapper domain.StockBootstrapper
	genID        *snowflake.Node
	cfg          config.Config
	clk          clock.Clock
	log          *zap.Logger
}

func NewService(
	conn *gorm.DB,
	repo domain.Repository,
	bootstrapper domain.StockBootstrapper,
	genID *snowflake.Node,
	cfg config.Config,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:           conn,
		repo:         repo,
		bootstrapper: bootstrapper,
		genID:        genID,
		cfg:          cfg,
		clk:          clk,
		log:          log.Named("tenant"),
	}
}

func (s *service) RegisterOrganization(ctx context.Context, req domain.RegisterOrganizationRequest) (*domain.TenantResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	subdomain := normalizeSubdomain(req.Subdomain)
	if subdomain == "" {
		subdomain = normalizeSubdomain(name)
	}
	if subdomain == "" {
		return nil, domain.ErrInvalidSubdomain
	}
	if req.OwnerUserID == 0 {
		return nil, domain.ErrNotAMember
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.CurrencyDefault
	}
	taxRate := req.TaxRate
	if taxRate <= 0 {
		taxRate = s.cfg.TaxRateDefault
	}
	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, domain.ErrInvalidTimezone
	}

	now := s.clk.Now()
	trialEnds := now.AddDate(0, 0, s.cfg.TrialPeriodDays)
	tenant := domain.Tenant{
		ID:                 s.genID.Generate(),
		Subdomain:          subdomain,
		Name:               name,
		OwnerEmail:         strings.TrimSpace(req.OwnerEmail),
		Currency:           currency,
		TaxRate:            taxRate,
		Timezone:           timezone,
		SubscriptionStatus: domain.SubscriptionTrial,
		TrialEndsAt:        &trialEnds,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTenant(ctx, &tenant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSubdomainTaken
			}
			return err
		}
		member := domain.Membership{
			ID:       s.genID.Generate(),
			TenantID: tenant.ID,
			UserID:   req.OwnerUserID,
			Role:     domain.RoleAdmin,
			IsOwner:  true,
			IsActive: true,
			JoinedAt: now,
		}
		return repo.CreateMembership(ctx, &member)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization registered",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("subdomain", tenant.Subdomain),
	)

	resp := toTenantResponse(tenant)
	return &resp, nil
}

func (s *service) CreateBranch(ctx context.Context, p principal.Principal, req domain.CreateBranchRequest) (*domain.TenantResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	org, err := s.repo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	if !org.IsOrganization() {
		return nil, domain.ErrBranchNesting
	}

	subdomain := normalizeSubdomain(req.Subdomain)
	if subdomain == "" {
		subdomain = normalizeSubdomain(org.Subdomain + "-" + name)
	}
	if subdomain == "" {
		return nil, domain.ErrInvalidSubdomain
	}

	now := s.clk.Now()
	parentID := org.ID
	branch := domain.Tenant{
		ID:                 s.genID.Generate(),
		Subdomain:          subdomain,
		Name:               name,
		OwnerEmail:         org.OwnerEmail,
		ParentID:           &parentID,
		Currency:           org.Currency,
		TaxRate:            org.TaxRate,
		Timezone:           org.Timezone,
		SubscriptionStatus: org.SubscriptionStatus,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTenant(ctx, &branch); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSubdomainTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Every existing product becomes visible to the branch with zero
	// quantity.
	if s.bootstrapper != nil {
		if err := s.bootstrapper.EnsureBranchRows(ctx, org.ID, branch.ID); err != nil {
			return nil, err
		}
	}

	s.log.Info("branch created",
		zap.String("tenant_id", org.ID.String()),
		zap.String("branch_id", branch.ID.String()),
	)

	resp := toTenantResponse(branch)
	return &resp, nil
}

func (s *service) Get(ctx context.Context, p principal.Principal, id snowflake.ID) (*domain.TenantResponse, error) {
	tenant, err := s.repo.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.inScope(*tenant, p) {
		// Cross-tenant reads never reveal existence.
		return nil, domain.ErrTenantNotFound
	}
	resp := toTenantResponse(*tenant)
	return &resp, nil
}

func (s *service) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	return s.repo.GetTenantBySubdomain(ctx, subdomain)
}

func (s *service) ListBranches(ctx context.Context, p principal.Principal) ([]domain.TenantResponse, error) {
	branches, err := s.repo.ChildrenOf(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.TenantResponse, 0, len(branches))
	for _, b := range branches {
		resp = append(resp, toTenantResponse(b))
	}
	return resp, nil
}

func (s *service) UpdateSettings(ctx context.Context, p principal.Principal, req domain.UpdateSettingsRequest) (*domain.TenantResponse, error) {
	tenant, err := s.repo.GetTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		tenant.Name = name
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if len(currency) != 3 {
			return nil, domain.ErrInvalidName
		}
		tenant.Currency = currency
	}
	if req.TaxRate != nil {
		if *req.TaxRate < 0 || *req.TaxRate >= 1 {
			return nil, domain.ErrInvalidName
		}
		tenant.TaxRate = *req.TaxRate
	}
	if req.Timezone != nil {
		timezone := strings.TrimSpace(*req.Timezone)
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, domain.ErrInvalidTimezone
		}
		tenant.Timezone = timezone
	}
	tenant.UpdatedAt = s.clk.Now()

	if err := s.repo.UpdateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	resp := toTenantResponse(*tenant)
	return &resp, nil
}

func (s *service) Suspend(ctx context.Context, p principal.Principal, id snowflake.ID) error {
	tenant, err := s.repo.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if !s.inScope(*tenant, p) {
		return domain.ErrTenantNotFound
	}
	return s.repo.SetActive(ctx, id, false)
}

func (s *service) Unsuspend(ctx context.Context, p principal.Principal, id snowflake.ID) error {
	tenant, err := s.repo.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if !s.inScope(*tenant, p) {
		return domain.ErrTenantNotFound
	}
	return s.repo.SetActive(ctx, id, true)
}

func (s *service) AddMember(ctx context.Context, p principal.Principal, req domain.AddMemberRequest) (*domain.MemberResponse, error) {
	if req.UserID == 0 {
		return nil, domain.ErrMemberNotFound
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		return nil, domain.ErrInvalidRole
	}

	tenant, err := s.repo.GetTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	if req.BranchID != nil {
		branch, err := s.repo.GetTenant(ctx, *req.BranchID)
		if err != nil {
			return nil, domain.ErrInvalidBranch
		}
		if branch.ParentID == nil || *branch.ParentID != tenant.ID {
			return nil, domain.ErrInvalidBranch
		}
	}

	m := domain.Membership{
		ID:       s.genID.Generate(),
		TenantID: tenant.ID,
		UserID:   req.UserID,
		Role:     role,
		BranchID: req.BranchID,
		IsActive: true,
		JoinedAt: s.clk.Now(),
	}
	if err := s.repo.CreateMembership(ctx, &m); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}

	resp := toMemberResponse(m, *tenant)
	return &resp, nil
}

func (s *service) UpdateMember(ctx context.Context, p principal.Principal, req domain.UpdateMemberRequest) (*domain.MemberResponse, error) {
	m, err := s.repo.GetMembershipByID(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if m.TenantID != p.TenantID {
		return nil, domain.ErrMemberNotFound
	}
	tenant, err := s.repo.GetTenant(ctx, m.TenantID)
	if err != nil {
		return nil, err
	}

	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		if role != domain.RoleAdmin && role != domain.RoleStaff {
			return nil, domain.ErrInvalidRole
		}
		m.Role = role
	}
	if req.BranchID != nil {
		if *req.BranchID == 0 {
			m.BranchID = nil
		} else {
			branch, err := s.repo.GetTenant(ctx, *req.BranchID)
			if err != nil {
				return nil, domain.ErrInvalidBranch
			}
			if branch.ParentID == nil || *branch.ParentID != m.TenantID {
				return nil, domain.ErrInvalidBranch
			}
			m.BranchID = req.BranchID
		}
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if err := s.repo.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	resp := toMemberResponse(*m, *tenant)
	return &resp, nil
}

func (s *service) DeactivateMember(ctx context.Context, p principal.Principal, memberID snowflake.ID) error {
	m, err := s.repo.GetMembershipByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m.TenantID != p.TenantID {
		return domain.ErrMemberNotFound
	}
	m.IsActive = false
	return s.repo.UpdateMembership(ctx, m)
}

func (s *service) ListMembers(ctx context.Context, p principal.Principal) ([]domain.MemberResponse, error) {
	tenant, err := s.repo.GetTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembersByTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.MemberResponse, 0, len(members))
	for _, m := range members {
		// Branch admins see only members pinned to their branch.
		if p.Role == principal.RoleBranchAdmin && p.PinnedBranchID != nil {
			if m.BranchID == nil || *m.BranchID != *p.PinnedBranchID {
				if m.TenantID != *p.PinnedBranchID {
					continue
				}
			}
		}
		resp = append(resp, toMemberResponse(m, *tenant))
	}
	return resp, nil
}

// ResolvePrincipal recomputes the caller's effective role for the given
// tenant from the current membership rows. A parent-org admin resolves
// on any branch through the super-user rule.
func (s *service) ResolvePrincipal(ctx context.Context, userID, tenantID snowflake.ID) (*principal.Principal, error) {
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, domain.ErrInactive
	}

	orgID := tenantID
	var parent *domain.Tenant
	if tenant.ParentID != nil {
		orgID = *tenant.ParentID
		parent, err = s.repo.GetTenant(ctx, orgID)
		if err != nil {
			return nil, err
		}
		// Suspending a parent transitively denies its branches.
		if !parent.IsActive {
			return nil, domain.ErrInactive
		}
	}

	m, err := s.repo.GetMembership(ctx, tenantID, userID)
	if err == nil && m.IsActive {
		role := domain.DeriveRoleType(*m, *tenant)
		return &principal.Principal{
			UserID:         userID,
			TenantID:       tenantID,
			OrgID:          orgID,
			Role:           role,
			PinnedBranchID: m.BranchID,
		}, nil
	}

	if parent != nil {
		pm, perr := s.repo.GetMembership(ctx, orgID, userID)
		if perr == nil && pm.IsActive {
			if pm.Role == domain.RoleAdmin {
				// Super-user: org admins operate on every branch
				// regardless of any branch pin.
				role := domain.DeriveRoleType(*pm, *parent)
				return &principal.Principal{
					UserID:         userID,
					TenantID:       tenantID,
					OrgID:          orgID,
					Role:           role,
					PinnedBranchID: pm.BranchID,
				}, nil
			}
			if pm.BranchID != nil && *pm.BranchID == tenantID {
				return &principal.Principal{
					UserID:         userID,
					TenantID:       tenantID,
					OrgID:          orgID,
					Role:           principal.RoleStaff,
					PinnedBranchID: pm.BranchID,
				}, nil
			}
		}
	}

	return nil, domain.ErrNotAMember
}

func (s *service) SwitchTenant(ctx context.Context, userID, fromTenantID, targetTenantID snowflake.ID) (*principal.Principal, error) {
	target, err := s.repo.GetTenant(ctx, targetTenantID)
	if err != nil {
		return nil, err
	}
	memberships, err := s.repo.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := domain.CanSwitch(memberships, fromTenantID, *target); err != nil {
		return nil, err
	}
	return s.ResolvePrincipal(ctx, userID, targetTenantID)
}

func (s *service) inScope(tenant domain.Tenant, p principal.Principal) bool {
	if tenant.ID == p.TenantID || tenant.ID == p.OrgID {
		return true
	}
	return tenant.ParentID != nil && *tenant.ParentID == p.OrgID
}

func normalizeSubdomain(raw string) string {
	return slug.Make(strings.TrimSpace(raw))
}

func toTenantResponse(t domain.Tenant) domain.TenantResponse {
	resp := domain.TenantResponse{
		ID:                 t.ID.String(),
		Subdomain:          t.Subdomain,
		Name:               t.Name,
		Currency:           t.Currency,
		TaxRate:            t.TaxRate,
		Timezone:           t.Timezone,
		SubscriptionStatus: t.SubscriptionStatus,
		TrialEndsAt:        t.TrialEndsAt,
		NextBillingDate:    t.NextBillingDate,
		IsActive:           t.IsActive,
	}
	if t.ParentID != nil {
		resp.ParentID = t.ParentID.String()
	}
	return resp
}

func toMemberResponse(m domain.Membership, t domain.Tenant) domain.MemberResponse {
	resp := domain.MemberResponse{
		ID:       m.ID.String(),
		UserID:   m.UserID.String(),
		Role:     m.Role,
		RoleType: string(domain.DeriveRoleType(m, t)),
		IsActive: m.IsActive,
		JoinedAt: m.JoinedAt,
	}
	if m.BranchID != nil {
		resp.BranchID = m.BranchID.String()
	}
	return resp
}
