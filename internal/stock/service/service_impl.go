package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/observability/metrics"
	"github.com/dukahub/dukahub/internal/stock/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/db/pagination"
	"github.com/dukahub/dukahub/pkg/principal"
)

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	tenantRepo  tenantdomain.Repository
	genID       *snowflake.Node
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewService(
	conn *gorm.DB,
	repo domain.Repository,
	catalogRepo catalogdomain.Repository,
	tenantRepo tenantdomain.Repository,
	genID *snowflake.Node,
	m *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:          conn,
		repo:        repo,
		catalogRepo: catalogRepo,
		tenantRepo:  tenantRepo,
		genID:       genID,
		metrics:     m,
		log:         log.Named("stock"),
	}
}

func (s *service) ApplyMovement(ctx context.Context, p principal.Principal, req domain.ApplyMovementRequest) (*domain.BranchStock, error) {
	branchID := req.BranchID
	if branchID == 0 {
		branchID = p.TenantID
	}
	if err := s.checkBranch(ctx, p, branchID); err != nil {
		return nil, err
	}
	if err := validateMovement(req.Reason, req.Delta); err != nil {
		return nil, err
	}

	product, err := s.catalogRepo.GetProduct(ctx, p.OrgID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.IsService {
		return nil, domain.ErrNotTracked
	}

	var updated *domain.BranchStock
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock, err := repo.GetForUpdate(ctx, branchID, req.ProductID)
		if err != nil {
			return err
		}
		if stock.Quantity+req.Delta < 0 {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, product.SKU)
		}
		stock.Quantity += req.Delta
		if err := repo.Save(ctx, stock); err != nil {
			return err
		}
		movement := &domain.StockMovement{
			ID:        s.genID.Generate(),
			TenantID:  branchID,
			ProductID: req.ProductID,
			Delta:     req.Delta,
			Reason:    req.Reason,
			Reference: req.Reference,
			ActorID:   p.UserID,
		}
		if err := repo.CreateMovement(ctx, movement); err != nil {
			return err
		}
		updated = stock
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStockMovement(string(req.Reason))
	s.log.Info("stock movement applied",
		zap.String("tenant_id", branchID.String()),
		zap.String("product_id", req.ProductID.String()),
		zap.Int64("delta", req.Delta),
		zap.String("reason", string(req.Reason)),
	)
	return updated, nil
}

func (s *service) BulkApply(ctx context.Context, tx *gorm.DB, orgID, branchID, actorID snowflake.ID, movements []domain.MovementInput) error {
	if len(movements) == 0 {
		return nil
	}

	// Lock in product-id order so two concurrent bulk callers never
	// hold rows the other waits for.
	sorted := make([]domain.MovementInput, len(movements))
	copy(sorted, movements)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})

	repo := s.repo.WithTx(tx)
	catalogRepo := s.catalogRepo.WithTx(tx)
	for _, input := range sorted {
		if !input.Reason.Valid() {
			return domain.ErrInvalidReason
		}
		product, err := catalogRepo.GetProduct(ctx, orgID, input.ProductID)
		if err != nil {
			return err
		}
		if product.IsService {
			return fmt.Errorf("%w: %s", domain.ErrNotTracked, product.SKU)
		}
		stock, err := repo.GetForUpdate(ctx, branchID, input.ProductID)
		if err != nil {
			return err
		}
		if stock.Quantity+input.Delta < 0 {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, product.SKU)
		}
		stock.Quantity += input.Delta
		if err := repo.Save(ctx, stock); err != nil {
			return err
		}
		movement := &domain.StockMovement{
			ID:        s.genID.Generate(),
			TenantID:  branchID,
			ProductID: input.ProductID,
			Delta:     input.Delta,
			Reason:    input.Reason,
			Reference: input.Reference,
			ActorID:   actorID,
		}
		if err := repo.CreateMovement(ctx, movement); err != nil {
			return err
		}
		s.metrics.RecordStockMovement(string(input.Reason))
	}
	return nil
}

func (s *service) GetQuantity(ctx context.Context, p principal.Principal, branchID, productID snowflake.ID) (*domain.BranchStock, error) {
	if branchID == 0 {
		branchID = p.TenantID
	}
	if err := s.checkBranch(ctx, p, branchID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, branchID, productID)
}

func (s *service) ListMovements(ctx context.Context, p principal.Principal, req domain.ListMovementsRequest) ([]domain.StockMovement, *pagination.PageInfo, error) {
	if req.BranchID == 0 {
		req.BranchID = p.TenantID
	}
	if err := s.checkBranch(ctx, p, req.BranchID); err != nil {
		return nil, nil, err
	}
	return s.repo.ListMovements(ctx, req)
}

func (s *service) LowStock(ctx context.Context, p principal.Principal, branchID snowflake.ID) ([]domain.LowStockRow, error) {
	if branchID == 0 {
		branchID = p.TenantID
	}
	if err := s.checkBranch(ctx, p, branchID); err != nil {
		return nil, err
	}
	return s.repo.LowStock(ctx, branchID)
}

// checkBranch verifies a caller-supplied branch target. Branches of
// other organizations look like missing tenants; in-org branches are
// reachable only by owners or by the principal operating on them.
func (s *service) checkBranch(ctx context.Context, p principal.Principal, branchID snowflake.ID) error {
	if branchID == p.TenantID {
		return nil
	}
	branch, err := s.tenantRepo.GetTenant(ctx, branchID)
	if err != nil {
		return err
	}
	if !branch.BelongsTo(p.OrgID) {
		return tenantdomain.ErrTenantNotFound
	}
	if !p.IsOwner() && branchID != p.Pinned() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *service) EnsureBranchRows(ctx context.Context, orgID, branchID snowflake.ID) error {
	products, err := s.catalogRepo.ListProducts(ctx, orgID)
	if err != nil {
		return err
	}
	rows := make([]domain.BranchStock, 0, len(products))
	for _, product := range products {
		rows = append(rows, domain.BranchStock{
			ID:           s.genID.Generate(),
			TenantID:     branchID,
			ProductID:    product.ID,
			Quantity:     0,
			ReorderLevel: product.ReorderLevel,
		})
	}
	return s.repo.CreateRows(ctx, rows)
}

func (s *service) EnsureProductRows(ctx context.Context, tx *gorm.DB, orgID, productID snowflake.ID, reorderLevel int64) error {
	branches, err := s.tenantRepo.WithTx(tx).ChildrenOf(ctx, orgID)
	if err != nil {
		return err
	}
	rows := make([]domain.BranchStock, 0, len(branches)+1)
	rows = append(rows, domain.BranchStock{
		ID:           s.genID.Generate(),
		TenantID:     orgID,
		ProductID:    productID,
		ReorderLevel: reorderLevel,
	})
	for _, branch := range branches {
		rows = append(rows, domain.BranchStock{
			ID:           s.genID.Generate(),
			TenantID:     branch.ID,
			ProductID:    productID,
			ReorderLevel: reorderLevel,
		})
	}
	return s.repo.WithTx(tx).CreateRows(ctx, rows)
}

func validateMovement(reason domain.MovementReason, delta int64) error {
	if !reason.Valid() {
		return domain.ErrInvalidReason
	}
	if delta == 0 {
		return domain.ErrInvalidDelta
	}
	switch reason {
	case domain.ReasonReceive, domain.ReasonReturn:
		if delta < 0 {
			return domain.ErrInvalidDelta
		}
	case domain.ReasonSale:
		if delta > 0 {
			return domain.ErrInvalidDelta
		}
	}
	return nil
}
