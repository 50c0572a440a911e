package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/observability/metrics"
	"github.com/dukahub/dukahub/internal/subscription/domain"
	"github.com/dukahub/dukahub/internal/subscription/gateway"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/db"
	"github.com/dukahub/dukahub/pkg/principal"
)

// verifyAttempts bounds the retry loop for racing verifies; a loser
// re-reads and hits the cached-success early return.
const verifyAttempts = 3

// savedSelection is the branch selection persisted on the tenant for
// auto-renewal reconciliation.
type savedSelection struct {
	Cycle     domain.BillingCycle `json:"cycle"`
	BranchIDs []string            `json:"branch_ids"`
}

type service struct {
	db         *gorm.DB
	repo       domain.Repository
	tenantRepo tenantdomain.Repository
	gateway    gateway.Client
	pricing    *config.PricingHolder
	cfg        config.Config
	genID      *snowflake.Node
	clk        clock.Clock
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewService(
	conn *gorm.DB,
	repo domain.Repository,
	tenantRepo tenantdomain.Repository,
	client gateway.Client,
	pricing *config.PricingHolder,
	cfg config.Config,
	genID *snowflake.Node,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:         conn,
		repo:       repo,
		tenantRepo: tenantRepo,
		gateway:    client,
		pricing:    pricing,
		cfg:        cfg,
		genID:      genID,
		clk:        clk,
		metrics:    m,
		log:        log.Named("subscription"),
	}
}

func (s *service) Status(ctx context.Context, p principal.Principal) (*domain.Status, error) {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	branches, err := s.tenantRepo.ChildrenOf(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	tenantIDs := make([]snowflake.ID, 0, len(branches)+1)
	tenantIDs = append(tenantIDs, p.OrgID)
	for _, branch := range branches {
		tenantIDs = append(tenantIDs, branch.ID)
	}
	covered, err := s.repo.ListActiveBranchSubscriptions(ctx, tenantIDs)
	if err != nil {
		return nil, err
	}

	pricing := s.pricing.Get()
	locationCount := 1 + len(branches)
	prices := map[domain.BillingCycle]int64{
		domain.CycleMonthly:    domain.Price(pricing, domain.CycleMonthly, locationCount),
		domain.CycleSemiAnnual: domain.Price(pricing, domain.CycleSemiAnnual, locationCount),
		domain.CycleAnnual:     domain.Price(pricing, domain.CycleAnnual, locationCount),
	}

	return &domain.Status{
		SubscriptionStatus: tenant.SubscriptionStatus,
		TrialEndsAt:        tenant.TrialEndsAt,
		NextBillingDate:    tenant.NextBillingDate,
		LastPaymentDate:    tenant.LastPaymentDate,
		AutoRenewalEnabled: tenant.AutoRenewalEnabled,
		CoveredBranches:    covered,
		Prices:             prices,
	}, nil
}

func (s *service) Initialize(ctx context.Context, p principal.Principal, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	if !req.Cycle.Valid() {
		return nil, domain.ErrInvalidCycle
	}
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	if err := s.validateBranchSelection(ctx, p.OrgID, req.BranchIDs); err != nil {
		return nil, err
	}

	pricing := s.pricing.Get()
	amount := domain.Price(pricing, req.Cycle, 1+len(req.BranchIDs))
	reference := uuid.NewString()

	branchJSON, err := marshalBranchIDs(req.BranchIDs)
	if err != nil {
		return nil, err
	}
	row := &domain.SubscriptionTransaction{
		ID:           s.genID.Generate(),
		TenantID:     p.OrgID,
		Reference:    reference,
		Amount:       amount,
		Currency:     tenant.Currency,
		BillingCycle: req.Cycle,
		Status:       domain.TransactionPending,
		BranchIDs:    branchJSON,
	}
	if err := s.repo.CreateTransaction(ctx, row); err != nil {
		return nil, err
	}

	selection, err := json.Marshal(savedSelection{Cycle: req.Cycle, BranchIDs: idStrings(req.BranchIDs)})
	if err != nil {
		return nil, err
	}
	tenant.SavedBranchSelection = datatypes.JSON(selection)
	if err := s.tenantRepo.UpdateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	auth, err := s.gateway.InitializeTransaction(ctx, gateway.InitializeParams{
		Reference: reference,
		Amount:    amount,
		Currency:  tenant.Currency,
		Email:     billingEmail(tenant.Subdomain),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription initialized",
		zap.String("tenant_id", p.OrgID.String()),
		zap.String("reference", reference),
		zap.Int64("amount", amount),
		zap.String("cycle", string(req.Cycle)),
	)
	return &domain.InitializeResponse{
		AuthorizationURL: auth.AuthorizationURL,
		Reference:        reference,
		Amount:           amount,
		Currency:         tenant.Currency,
	}, nil
}

func (s *service) Verify(ctx context.Context, reference string) (*domain.VerifyResult, error) {
	var lastErr error
	for attempt := 0; attempt < verifyAttempts; attempt++ {
		result, retry, err := s.verifyOnce(ctx, reference)
		if err == nil {
			return result, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// verifyOnce runs one pass of the verification protocol. retry is true
// only for uniqueness races with a concurrent verify of the same
// reference, which the next pass resolves through the cached-success
// early return.
func (s *service) verifyOnce(ctx context.Context, reference string) (*domain.VerifyResult, bool, error) {
	row, err := s.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, false, err
	}

	// Settled references never touch the gateway or the database again.
	if row.Status == domain.TransactionSuccess {
		rows, err := s.repo.ListBranchSubscriptionsByTransaction(ctx, row.ID)
		if err != nil {
			return nil, false, err
		}
		s.metrics.RecordVerifyResult("cached")
		return verifyResult(row, rows), false, nil
	}

	gtx, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		// Row stays pending; the next verify completes it.
		s.metrics.RecordVerifyResult("gateway_error")
		return nil, false, err
	}
	if !gtx.Succeeded() {
		row.Status = domain.TransactionFailed
		if err := s.repo.UpdateTransaction(ctx, row); err != nil {
			return nil, false, err
		}
		s.metrics.RecordVerifyResult("failed")
		return verifyResult(row, nil), false, nil
	}

	now := s.clk.Now()
	start := now
	var end time.Time
	if row.Prorata && row.SubscriptionEnd != nil {
		end = *row.SubscriptionEnd
	} else {
		end = domain.CycleEnd(now, row.BillingCycle)
	}
	branchIDs, err := unmarshalBranchIDs(row.BranchIDs)
	if err != nil {
		return nil, false, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tenantRepo := s.tenantRepo.WithTx(tx)

		rows := make([]domain.BranchSubscription, 0, len(branchIDs)+1)
		if !row.Prorata {
			rows = append(rows, domain.BranchSubscription{
				ID:                s.genID.Generate(),
				TransactionID:     row.ID,
				TenantID:          row.TenantID,
				IsMainLocation:    true,
				SubscriptionStart: start,
				SubscriptionEnd:   end,
				IsActive:          true,
			})
		}
		for _, branchID := range branchIDs {
			rows = append(rows, domain.BranchSubscription{
				ID:                s.genID.Generate(),
				TransactionID:     row.ID,
				TenantID:          branchID,
				SubscriptionStart: start,
				SubscriptionEnd:   end,
				IsActive:          true,
			})
		}
		if err := repo.CreateBranchSubscriptions(ctx, rows); err != nil {
			return err
		}

		tenant, err := tenantRepo.GetTenant(ctx, row.TenantID)
		if err != nil {
			return err
		}
		if !row.Prorata {
			tenant.SubscriptionStatus = tenantdomain.SubscriptionActive
			tenant.NextBillingDate = &end
		}
		paidAt := now
		tenant.LastPaymentDate = &paidAt
		if gtx.AuthorizationCode != "" {
			tenant.GatewayAuthorization = gtx.AuthorizationCode
		}
		if err := tenantRepo.UpdateTenant(ctx, tenant); err != nil {
			return err
		}

		row.Status = domain.TransactionSuccess
		row.SubscriptionStart = &start
		row.SubscriptionEnd = &end
		row.GatewayAuthorization = gtx.AuthorizationCode
		return repo.UpdateTransaction(ctx, row)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, true, fmt.Errorf("verify race on %s: %w", reference, err)
		}
		return nil, false, err
	}

	s.metrics.RecordVerifyResult("success")
	s.log.Info("subscription verified",
		zap.String("tenant_id", row.TenantID.String()),
		zap.String("reference", reference),
		zap.Time("subscription_end", end),
	)
	rows, err := s.repo.ListBranchSubscriptionsByTransaction(ctx, row.ID)
	if err != nil {
		return nil, false, err
	}
	return verifyResult(row, rows), false, nil
}

func (s *service) AddBranchMidCycle(ctx context.Context, p principal.Principal, branchID snowflake.ID) (*domain.InitializeResponse, error) {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if tenant.SubscriptionStatus != tenantdomain.SubscriptionActive ||
		tenant.NextBillingDate == nil || !tenant.NextBillingDate.After(now) {
		return nil, domain.ErrNotSubscribed
	}
	if err := s.validateBranchSelection(ctx, p.OrgID, []snowflake.ID{branchID}); err != nil {
		return nil, err
	}
	covered, err := s.repo.ListActiveBranchSubscriptions(ctx, []snowflake.ID{branchID})
	if err != nil {
		return nil, err
	}
	for _, row := range covered {
		if row.SubscriptionEnd.After(now) {
			return nil, domain.ErrBranchCovered
		}
	}

	cycle := s.currentCycle(ctx, tenant)
	end := *tenant.NextBillingDate
	periodStart := end.AddDate(0, -cycle.Months(), 0)
	periodDays := int(math.Round(end.Sub(periodStart).Hours() / 24))
	remainingDays := int(math.Ceil(end.Sub(now).Hours() / 24))

	pricing := s.pricing.Get()
	amount := domain.Prorata(domain.PerBranch(pricing, cycle), remainingDays, periodDays)
	reference := uuid.NewString()

	branchJSON, err := marshalBranchIDs([]snowflake.ID{branchID})
	if err != nil {
		return nil, err
	}
	row := &domain.SubscriptionTransaction{
		ID:              s.genID.Generate(),
		TenantID:        p.OrgID,
		Reference:       reference,
		Amount:          amount,
		Currency:        tenant.Currency,
		BillingCycle:    cycle,
		Status:          domain.TransactionPending,
		Prorata:         true,
		BranchIDs:       branchJSON,
		SubscriptionEnd: &end,
	}
	if err := s.repo.CreateTransaction(ctx, row); err != nil {
		return nil, err
	}

	auth, err := s.gateway.InitializeTransaction(ctx, gateway.InitializeParams{
		Reference: reference,
		Amount:    amount,
		Currency:  tenant.Currency,
		Email:     billingEmail(tenant.Subdomain),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("mid-cycle branch add initialized",
		zap.String("tenant_id", p.OrgID.String()),
		zap.String("branch_id", branchID.String()),
		zap.String("reference", reference),
		zap.Int64("amount", amount),
	)
	return &domain.InitializeResponse{
		AuthorizationURL: auth.AuthorizationURL,
		Reference:        reference,
		Amount:           amount,
		Currency:         tenant.Currency,
	}, nil
}

func (s *service) Cancel(ctx context.Context, p principal.Principal) error {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return err
	}
	if tenant.SubscriptionStatus != tenantdomain.SubscriptionActive {
		return domain.ErrNotCancellable
	}
	tenant.SubscriptionStatus = tenantdomain.SubscriptionCancelled
	tenant.AutoRenewalEnabled = false
	if err := s.tenantRepo.UpdateTenant(ctx, tenant); err != nil {
		return err
	}
	s.log.Info("subscription cancelled", zap.String("tenant_id", p.OrgID.String()))
	return nil
}

func (s *service) Reactivate(ctx context.Context, p principal.Principal) error {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return err
	}
	if tenant.SubscriptionStatus != tenantdomain.SubscriptionCancelled {
		return domain.ErrNotReactivatable
	}
	now := s.clk.Now()
	if tenant.NextBillingDate == nil || !tenant.NextBillingDate.After(now) {
		return domain.ErrNotReactivatable
	}
	if tenant.TrialEndsAt != nil && tenant.TrialEndsAt.After(now) {
		tenant.SubscriptionStatus = tenantdomain.SubscriptionTrial
	} else {
		tenant.SubscriptionStatus = tenantdomain.SubscriptionActive
	}
	if err := s.tenantRepo.UpdateTenant(ctx, tenant); err != nil {
		return err
	}
	s.log.Info("subscription reactivated",
		zap.String("tenant_id", p.OrgID.String()),
		zap.String("status", string(tenant.SubscriptionStatus)),
	)
	return nil
}

func (s *service) EnableAutoRenewal(ctx context.Context, p principal.Principal) error {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return err
	}
	if tenant.GatewayAuthorization == "" {
		return domain.ErrNoAuthorization
	}
	tenant.AutoRenewalEnabled = true
	return s.tenantRepo.UpdateTenant(ctx, tenant)
}

func (s *service) DisableAutoRenewal(ctx context.Context, p principal.Principal) error {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.OrgID)
	if err != nil {
		return err
	}
	tenant.AutoRenewalEnabled = false
	return s.tenantRepo.UpdateTenant(ctx, tenant)
}

func (s *service) ReconcileAutoRenewal(ctx context.Context, tenantID snowflake.ID) (*domain.RenewalPlan, error) {
	tenant, err := s.tenantRepo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.AutoRenewalEnabled {
		return nil, domain.ErrNotSubscribed
	}

	var selection savedSelection
	if len(tenant.SavedBranchSelection) > 0 {
		if err := json.Unmarshal(tenant.SavedBranchSelection, &selection); err != nil {
			return nil, err
		}
	}
	cycle := selection.Cycle
	if !cycle.Valid() {
		cycle = s.currentCycle(ctx, tenant)
	}

	// Branches removed since the selection was saved drop out of the
	// renewal instead of being charged for.
	branches, err := s.tenantRepo.ChildrenOf(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]snowflake.ID, len(branches))
	for _, branch := range branches {
		if branch.IsActive {
			existing[branch.ID.String()] = branch.ID
		}
	}
	valid := make([]snowflake.ID, 0, len(selection.BranchIDs))
	for _, raw := range selection.BranchIDs {
		if id, ok := existing[raw]; ok {
			valid = append(valid, id)
		}
	}

	pricing := s.pricing.Get()
	return &domain.RenewalPlan{
		Cycle:     cycle,
		BranchIDs: valid,
		Amount:    domain.Price(pricing, cycle, 1+len(valid)),
	}, nil
}

func (s *service) Expire(ctx context.Context, tenantID snowflake.ID, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tenantRepo := s.tenantRepo.WithTx(tx)

		tenant, err := tenantRepo.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		tenant.SubscriptionStatus = tenantdomain.SubscriptionExpired
		if err := tenantRepo.UpdateTenant(ctx, tenant); err != nil {
			return err
		}

		branches, err := tenantRepo.ChildrenOf(ctx, tenantID)
		if err != nil {
			return err
		}
		tenantIDs := make([]snowflake.ID, 0, len(branches)+1)
		tenantIDs = append(tenantIDs, tenantID)
		for _, branch := range branches {
			tenantIDs = append(tenantIDs, branch.ID)
		}
		return repo.DeactivateBranchSubscriptions(ctx, tenantIDs, now)
	})
}

// currentCycle falls back through the last settled transaction to
// monthly when the tenant never picked one.
func (s *service) currentCycle(ctx context.Context, tenant *tenantdomain.Tenant) domain.BillingCycle {
	var selection savedSelection
	if len(tenant.SavedBranchSelection) > 0 {
		if err := json.Unmarshal(tenant.SavedBranchSelection, &selection); err == nil && selection.Cycle.Valid() {
			return selection.Cycle
		}
	}
	txs, err := s.repo.ListTransactions(ctx, tenant.ID)
	if err == nil {
		for _, tx := range txs {
			if tx.Status == domain.TransactionSuccess && !tx.Prorata {
				return tx.BillingCycle
			}
		}
	}
	return domain.CycleMonthly
}

func (s *service) validateBranchSelection(ctx context.Context, orgID snowflake.ID, branchIDs []snowflake.ID) error {
	if len(branchIDs) == 0 {
		return nil
	}
	branches, err := s.tenantRepo.ChildrenOf(ctx, orgID)
	if err != nil {
		return err
	}
	existing := make(map[snowflake.ID]bool, len(branches))
	for _, branch := range branches {
		existing[branch.ID] = true
	}
	seen := make(map[snowflake.ID]bool, len(branchIDs))
	for _, id := range branchIDs {
		if !existing[id] || seen[id] {
			return domain.ErrUnknownBranch
		}
		seen[id] = true
	}
	return nil
}

func verifyResult(row *domain.SubscriptionTransaction, rows []domain.BranchSubscription) *domain.VerifyResult {
	branches := make([]snowflake.ID, 0, len(rows))
	for _, r := range rows {
		branches = append(branches, r.TenantID)
	}
	return &domain.VerifyResult{
		Reference:       row.Reference,
		Status:          row.Status,
		SubscriptionEnd: row.SubscriptionEnd,
		Branches:        branches,
	}
}

func marshalBranchIDs(ids []snowflake.ID) ([]byte, error) {
	return json.Marshal(idStrings(ids))
}

func unmarshalBranchIDs(raw []byte) ([]snowflake.ID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(strs))
	for _, s := range strs {
		id, err := snowflake.ParseString(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func idStrings(ids []snowflake.ID) []string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return strs
}

func billingEmail(subdomain string) string {
	return fmt.Sprintf("billing@%s.dukahub.app", subdomain)
}
