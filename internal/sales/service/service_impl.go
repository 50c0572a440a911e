package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/observability/metrics"
	"github.com/dukahub/dukahub/internal/sales/domain"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/db/pagination"
	"github.com/dukahub/dukahub/pkg/principal"
)

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	tenantRepo  tenantdomain.Repository
	stock       stockdomain.Service
	genID       *snowflake.Node
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewService(
	conn *gorm.DB,
	repo domain.Repository,
	catalogRepo catalogdomain.Repository,
	tenantRepo tenantdomain.Repository,
	stock stockdomain.Service,
	genID *snowflake.Node,
	m *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:          conn,
		repo:        repo,
		catalogRepo: catalogRepo,
		tenantRepo:  tenantRepo,
		stock:       stock,
		genID:       genID,
		metrics:     m,
		log:         log.Named("sales"),
	}
}

func (s *service) CreateSale(ctx context.Context, p principal.Principal, req domain.CreateSaleRequest) (*domain.Sale, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptySale
	}
	if !req.PaymentMethod.Valid() {
		return nil, domain.ErrInvalidPaymentMethod
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if item.PriceOverride != nil && !item.PriceOverride.IsPositive() {
			return nil, domain.ErrInvalidPrice
		}
	}

	branchID := req.BranchID
	if branchID == 0 {
		branchID = p.TenantID
	}
	branch, err := s.resolveBranch(ctx, p, branchID)
	if err != nil {
		return nil, err
	}

	sale := &domain.Sale{
		ID:            s.genID.Generate(),
		TenantID:      branchID,
		UserID:        p.UserID,
		TaxRate:       branch.TaxRate,
		Currency:      branch.Currency,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		catalogRepo := s.catalogRepo.WithTx(tx)

		total := decimal.Zero
		items := make([]domain.SaleItem, 0, len(req.Items))
		movements := make([]stockdomain.MovementInput, 0, len(req.Items))
		for i, input := range req.Items {
			product, err := catalogRepo.GetProduct(ctx, p.OrgID, input.ProductID)
			if err != nil {
				if err == catalogdomain.ErrProductNotFound {
					return fmt.Errorf("%w: %s", domain.ErrUnknownProduct, input.ProductID)
				}
				return err
			}
			if !product.IsAvailable {
				return fmt.Errorf("%w: %s", domain.ErrUnknownProduct, product.SKU)
			}

			unitPrice := product.SellingPrice
			if input.PriceOverride != nil {
				unitPrice = input.PriceOverride.Round(2)
			}
			variance := unitPrice.Sub(product.SellingPrice)
			total = total.Add(unitPrice.Mul(decimal.NewFromInt(input.Quantity)))

			items = append(items, domain.SaleItem{
				ID:              s.genID.Generate(),
				SaleID:          sale.ID,
				ProductID:       product.ID,
				SKU:             product.SKU,
				Name:            product.Name,
				Quantity:        input.Quantity,
				UnitPrice:       unitPrice,
				SellingPrice:    product.SellingPrice,
				Variance:        variance,
				IsPriceOverride: !variance.IsZero(),
				Position:        i,
			})
			if !product.IsService {
				movements = append(movements, stockdomain.MovementInput{
					ProductID: product.ID,
					Delta:     -input.Quantity,
					Reason:    stockdomain.ReasonSale,
					Reference: sale.ID.String(),
				})
			}
		}

		if err := s.stock.BulkApply(ctx, tx, p.OrgID, branchID, p.UserID, movements); err != nil {
			return err
		}

		sale.Total = total
		sale.Subtotal, sale.Tax = domain.ExtractVAT(total, branch.TaxRate)
		sale.Items = items
		return s.repo.WithTx(tx).CreateSale(ctx, sale)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSaleCreated(string(req.PaymentMethod))
	s.log.Info("sale recorded",
		zap.String("tenant_id", branchID.String()),
		zap.String("sale_id", sale.ID.String()),
		zap.String("total", sale.Total.String()),
		zap.String("payment_method", string(req.PaymentMethod)),
	)
	return sale, nil
}

func (s *service) GetSale(ctx context.Context, p principal.Principal, saleID snowflake.ID) (*domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	inScope, err := s.saleInScope(ctx, p, sale)
	if err != nil {
		return nil, err
	}
	if !inScope {
		return nil, domain.ErrSaleNotFound
	}
	if p.Role == principal.RoleStaff && sale.UserID != p.UserID {
		return nil, domain.ErrForbidden
	}
	return sale, nil
}

func (s *service) ListSales(ctx context.Context, p principal.Principal, req domain.ListSalesRequest) ([]domain.Sale, *pagination.PageInfo, error) {
	if p.Role == principal.RoleStaff {
		userID := p.UserID
		req.CashierID = &userID
	}

	var tenantIDs []snowflake.ID
	switch {
	case req.BranchID != 0:
		if _, err := s.resolveBranch(ctx, p, req.BranchID); err != nil {
			return nil, nil, err
		}
		// Branch admins stay inside their own branch; staff rows are
		// already filtered to their own sales.
		if !p.IsOwner() && p.Role != principal.RoleStaff &&
			req.BranchID != p.TenantID && req.BranchID != p.Pinned() {
			return nil, nil, domain.ErrForbidden
		}
		tenantIDs = []snowflake.ID{req.BranchID}
	case p.IsOwner() && p.TenantID == p.OrgID:
		branches, err := s.tenantRepo.ChildrenOf(ctx, p.OrgID)
		if err != nil {
			return nil, nil, err
		}
		tenantIDs = append(tenantIDs, p.OrgID)
		for _, branch := range branches {
			tenantIDs = append(tenantIDs, branch.ID)
		}
	default:
		tenantIDs = []snowflake.ID{p.TenantID}
	}

	return s.repo.ListSales(ctx, tenantIDs, req)
}

func (s *service) MarkEmailSent(ctx context.Context, p principal.Principal, saleID snowflake.ID) error {
	if _, err := s.GetSale(ctx, p, saleID); err != nil {
		return err
	}
	sent := true
	return s.repo.UpdateFlags(ctx, saleID, &sent, nil)
}

func (s *service) MarkWhatsappSent(ctx context.Context, p principal.Principal, saleID snowflake.ID) error {
	if _, err := s.GetSale(ctx, p, saleID); err != nil {
		return err
	}
	sent := true
	return s.repo.UpdateFlags(ctx, saleID, nil, &sent)
}

// saleInScope reports whether the sale's branch belongs to the
// caller's organization.
func (s *service) saleInScope(ctx context.Context, p principal.Principal, sale *domain.Sale) (bool, error) {
	if sale.TenantID == p.OrgID || sale.TenantID == p.TenantID {
		return true, nil
	}
	branch, err := s.tenantRepo.GetTenant(ctx, sale.TenantID)
	if err != nil {
		if err == tenantdomain.ErrTenantNotFound {
			return false, nil
		}
		return false, err
	}
	return branch.BelongsTo(p.OrgID), nil
}

// resolveBranch loads a caller-supplied branch target. Branches of
// other organizations look like missing tenants.
func (s *service) resolveBranch(ctx context.Context, p principal.Principal, branchID snowflake.ID) (*tenantdomain.Tenant, error) {
	branch, err := s.tenantRepo.GetTenant(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if !branch.BelongsTo(p.OrgID) {
		return nil, tenantdomain.ErrTenantNotFound
	}
	return branch, nil
}
