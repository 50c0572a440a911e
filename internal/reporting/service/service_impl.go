package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/reporting/domain"
	"github.com/dukahub/dukahub/internal/reporting/repository"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/principal"
)

const (
	defaultRangeDays = 30
	topProductLimit  = 5
	dateLayout       = "2006-01-02"
)

type service struct {
	repo       repository.Repository
	tenantRepo tenantdomain.Repository
	clk        clock.Clock
	log        *zap.Logger
}

func NewService(
	repo repository.Repository,
	tenantRepo tenantdomain.Repository,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		repo:       repo,
		tenantRepo: tenantRepo,
		clk:        clk,
		log:        log.Named("reporting"),
	}
}

func (s *service) Dashboard(ctx context.Context, p principal.Principal, req domain.DashboardRequest) (*domain.Dashboard, error) {
	loc, err := s.location(ctx, p)
	if err != nil {
		return nil, err
	}
	from, to, err := s.rangeBounds(req.FromDate, req.ToDate, loc)
	if err != nil {
		return nil, err
	}
	tenantIDs, err := s.scope(ctx, p, req.BranchID)
	if err != nil {
		return nil, err
	}

	revenue, salesCount, err := s.repo.Totals(ctx, tenantIDs, from, to)
	if err != nil {
		return nil, err
	}
	saleTotals, err := s.repo.SaleTotals(ctx, tenantIDs, from, to)
	if err != nil {
		return nil, err
	}
	topProducts, err := s.repo.TopProducts(ctx, tenantIDs, from, to, topProductLimit)
	if err != nil {
		return nil, err
	}

	return &domain.Dashboard{
		Revenue:      revenue,
		SalesCount:   salesCount,
		RevenueByDay: groupByLocalDay(saleTotals, loc),
		TopProducts:  topProducts,
	}, nil
}

func (s *service) PriceVariance(ctx context.Context, p principal.Principal, req domain.VarianceRequest) ([]domain.VarianceRow, error) {
	if !req.Dimension.Valid() {
		return nil, domain.ErrInvalidDimension
	}
	loc, err := s.location(ctx, p)
	if err != nil {
		return nil, err
	}
	from, to, err := s.rangeBounds(req.FromDate, req.ToDate, loc)
	if err != nil {
		return nil, err
	}
	tenantIDs, err := s.scope(ctx, p, req.BranchID)
	if err != nil {
		return nil, err
	}

	var rows []domain.VarianceRow
	switch req.Dimension {
	case domain.DimensionProduct:
		rows, err = s.repo.VarianceByProduct(ctx, tenantIDs, from, to)
	case domain.DimensionStaff:
		rows, err = s.repo.VarianceByStaff(ctx, tenantIDs, from, to)
	case domain.DimensionBranch:
		rows, err = s.repo.VarianceByBranch(ctx, tenantIDs, from, to)
	}
	if err != nil {
		return nil, err
	}

	for i := range rows {
		if rows[i].TotalSales > 0 {
			rows[i].OverrideRate = float64(rows[i].OverrideSales) / float64(rows[i].TotalSales)
		}
	}
	if req.Dimension == domain.DimensionBranch {
		if err := s.resolveBranchNames(ctx, p.OrgID, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// rangeBounds turns inclusive local dates into a half-open UTC
// interval. Missing dates default to the last 30 local days.
func (s *service) rangeBounds(fromDate, toDate string, loc *time.Location) (time.Time, time.Time, error) {
	now := s.clk.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	from := today.AddDate(0, 0, -defaultRangeDays+1)
	to := today.AddDate(0, 0, 1)
	if fromDate != "" {
		parsed, err := time.ParseInLocation(dateLayout, fromDate, loc)
		if err != nil {
			return time.Time{}, time.Time{}, domain.ErrInvalidRange
		}
		from = parsed
	}
	if toDate != "" {
		parsed, err := time.ParseInLocation(dateLayout, toDate, loc)
		if err != nil {
			return time.Time{}, time.Time{}, domain.ErrInvalidRange
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, domain.ErrInvalidRange
	}
	return from.UTC(), to.UTC(), nil
}

func (s *service) location(ctx context.Context, p principal.Principal) (*time.Location, error) {
	tenant, err := s.tenantRepo.GetTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

func (s *service) scope(ctx context.Context, p principal.Principal, branchID snowflake.ID) ([]snowflake.ID, error) {
	if branchID != 0 {
		branch, err := s.tenantRepo.GetTenant(ctx, branchID)
		if err != nil {
			return nil, err
		}
		// Other organizations' branches look like missing tenants.
		if !branch.BelongsTo(p.OrgID) {
			return nil, tenantdomain.ErrTenantNotFound
		}
		if !p.IsOwner() && branchID != p.TenantID && branchID != p.Pinned() {
			return nil, domain.ErrForbidden
		}
		return []snowflake.ID{branchID}, nil
	}
	if p.TenantID == p.OrgID && p.IsOwner() {
		branches, err := s.tenantRepo.ChildrenOf(ctx, p.OrgID)
		if err != nil {
			return nil, err
		}
		ids := make([]snowflake.ID, 0, len(branches)+1)
		ids = append(ids, p.OrgID)
		for _, branch := range branches {
			ids = append(ids, branch.ID)
		}
		return ids, nil
	}
	return []snowflake.ID{p.TenantID}, nil
}

func (s *service) resolveBranchNames(ctx context.Context, orgID snowflake.ID, rows []domain.VarianceRow) error {
	names := map[snowflake.ID]string{}
	org, err := s.tenantRepo.GetTenant(ctx, orgID)
	if err != nil {
		return err
	}
	names[org.ID] = org.Name
	branches, err := s.tenantRepo.ChildrenOf(ctx, orgID)
	if err != nil {
		return err
	}
	for _, branch := range branches {
		names[branch.ID] = branch.Name
	}
	for i := range rows {
		rows[i].KeyName = names[rows[i].KeyID]
	}
	return nil
}

func groupByLocalDay(saleTotals []repository.SaleTotal, loc *time.Location) []domain.DayRevenue {
	byDay := map[string]*domain.DayRevenue{}
	for _, row := range saleTotals {
		date := row.CreatedAt.In(loc).Format(dateLayout)
		day, ok := byDay[date]
		if !ok {
			day = &domain.DayRevenue{Date: date, Revenue: decimal.Zero}
			byDay[date] = day
		}
		day.Revenue = day.Revenue.Add(row.Total)
		day.SalesCount++
	}

	days := make([]domain.DayRevenue, 0, len(byDay))
	for _, day := range byDay {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}
