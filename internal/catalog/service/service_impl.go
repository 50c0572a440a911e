package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/catalog/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/db"
	"github.com/dukahub/dukahub/pkg/principal"
)

// Seeded for every new organization; owners extend the lists later.
var (
	defaultCategories = []string{"General"}
	defaultUnits      = [][2]string{
		{"Piece", "pcs"},
		{"Kilogram", "kg"},
		{"Gram", "g"},
		{"Litre", "l"},
		{"Packet", "pkt"},
		{"Dozen", "dz"},
	}
)

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	provisioner domain.StockProvisioner
	tenantRepo  tenantdomain.Repository
	genID       *snowflake.Node
	log         *zap.Logger
}

func NewService(
	conn *gorm.DB,
	repo domain.Repository,
	provisioner domain.StockProvisioner,
	tenantRepo tenantdomain.Repository,
	genID *snowflake.Node,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:          conn,
		repo:        repo,
		provisioner: provisioner,
		tenantRepo:  tenantRepo,
		genID:       genID,
		log:         log.Named("catalog"),
	}
}

func (s *service) CreateProduct(ctx context.Context, p principal.Principal, req domain.CreateProductRequest) (*domain.Product, error) {
	sku := normalizeSKU(req.SKU)
	if sku == "" {
		return nil, domain.ErrInvalidSKU
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if !req.SellingPrice.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if req.BaseCost.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	if req.IsService && req.ReorderLevel != 0 {
		return nil, domain.ErrServiceHasStock
	}

	orgID := p.OrgID
	if _, err := s.repo.GetCategory(ctx, orgID, req.CategoryID); err != nil {
		if err == domain.ErrCategoryNotFound {
			return nil, domain.ErrUnknownCategory
		}
		return nil, err
	}
	if _, err := s.repo.GetUnit(ctx, orgID, req.UnitID); err != nil {
		return nil, err
	}

	product := &domain.Product{
		ID:           s.genID.Generate(),
		TenantID:     orgID,
		SKU:          sku,
		Name:         name,
		CategoryID:   req.CategoryID,
		UnitID:       req.UnitID,
		BaseCost:     req.BaseCost.Round(2),
		SellingPrice: req.SellingPrice.Round(2),
		IsService:    req.IsService,
		ImageKey:     strings.TrimSpace(req.ImageKey),
		ReorderLevel: req.ReorderLevel,
		IsAvailable:  true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateProduct(ctx, product); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSKU
			}
			return err
		}
		if s.provisioner != nil {
			return s.provisioner.EnsureProductRows(ctx, tx, orgID, product.ID, product.ReorderLevel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("tenant_id", orgID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("sku", product.SKU),
	)
	return product, nil
}

func (s *service) UpdateProduct(ctx context.Context, p principal.Principal, productID snowflake.ID, req domain.UpdateProductRequest) (*domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, p.OrgID, productID)
	if err != nil {
		return nil, err
	}

	if req.SKU != nil {
		sku := normalizeSKU(*req.SKU)
		if sku == "" {
			return nil, domain.ErrInvalidSKU
		}
		product.SKU = sku
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		product.Name = name
	}
	if req.CategoryID != nil {
		if _, err := s.repo.GetCategory(ctx, p.OrgID, *req.CategoryID); err != nil {
			if err == domain.ErrCategoryNotFound {
				return nil, domain.ErrUnknownCategory
			}
			return nil, err
		}
		product.CategoryID = *req.CategoryID
	}
	if req.UnitID != nil {
		if _, err := s.repo.GetUnit(ctx, p.OrgID, *req.UnitID); err != nil {
			return nil, err
		}
		product.UnitID = *req.UnitID
	}
	if req.BaseCost != nil {
		if req.BaseCost.IsNegative() {
			return nil, domain.ErrInvalidPrice
		}
		product.BaseCost = req.BaseCost.Round(2)
	}
	if req.SellingPrice != nil {
		if !req.SellingPrice.IsPositive() {
			return nil, domain.ErrInvalidPrice
		}
		product.SellingPrice = req.SellingPrice.Round(2)
	}
	if req.ImageKey != nil {
		product.ImageKey = strings.TrimSpace(*req.ImageKey)
	}
	if req.ReorderLevel != nil {
		if product.IsService && *req.ReorderLevel != 0 {
			return nil, domain.ErrServiceHasStock
		}
		product.ReorderLevel = *req.ReorderLevel
	}
	if req.IsAvailable != nil {
		product.IsAvailable = *req.IsAvailable
	}

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSKU
		}
		return nil, err
	}
	return product, nil
}

func (s *service) DeactivateProduct(ctx context.Context, p principal.Principal, productID snowflake.ID) error {
	product, err := s.repo.GetProduct(ctx, p.OrgID, productID)
	if err != nil {
		return err
	}
	if !product.IsAvailable {
		return nil
	}
	product.IsAvailable = false
	return s.repo.UpdateProduct(ctx, product)
}

func (s *service) GetProduct(ctx context.Context, p principal.Principal, productID snowflake.ID) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, p.OrgID, productID)
}

func (s *service) ListProducts(ctx context.Context, p principal.Principal, req domain.ListProductsRequest) ([]domain.EffectiveProduct, error) {
	stockTenantID := p.TenantID
	if p.TenantID == p.OrgID && req.BranchViewID != nil && *req.BranchViewID != 0 {
		branch, err := s.tenantRepo.GetTenant(ctx, *req.BranchViewID)
		if err != nil {
			return nil, err
		}
		// Other organizations' branches look like missing tenants.
		if !branch.BelongsTo(p.OrgID) {
			return nil, tenantdomain.ErrTenantNotFound
		}
		stockTenantID = *req.BranchViewID
	}
	return s.repo.ListEffective(ctx, p.OrgID, stockTenantID, domain.EffectiveFilter{
		Search:             req.Search,
		CategoryID:         req.CategoryID,
		IncludeUnavailable: req.IncludeUnavailable,
	})
}

func (s *service) GetCategories(ctx context.Context, p principal.Principal) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, p.OrgID)
}

func (s *service) CreateCategory(ctx context.Context, p principal.Principal, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	category := &domain.Category{
		ID:       s.genID.Generate(),
		TenantID: p.OrgID,
		Name:     name,
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCategory
		}
		return nil, err
	}
	return category, nil
}

func (s *service) GetUnits(ctx context.Context, p principal.Principal) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx, p.OrgID)
}

func (s *service) CreateUnit(ctx context.Context, p principal.Principal, name, abbreviation string) (*domain.Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	unit := &domain.Unit{
		ID:           s.genID.Generate(),
		TenantID:     p.OrgID,
		Name:         name,
		Abbreviation: strings.TrimSpace(abbreviation),
	}
	if err := s.repo.CreateUnit(ctx, unit); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateUnit
		}
		return nil, err
	}
	return unit, nil
}

func (s *service) EnsureDefaults(ctx context.Context, orgID snowflake.ID) error {
	categories, err := s.repo.ListCategories(ctx, orgID)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		for _, name := range defaultCategories {
			category := &domain.Category{ID: s.genID.Generate(), TenantID: orgID, Name: name}
			if err := s.repo.CreateCategory(ctx, category); err != nil && !db.IsDuplicateKeyErr(err) {
				return err
			}
		}
	}

	units, err := s.repo.ListUnits(ctx, orgID)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		for _, u := range defaultUnits {
			unit := &domain.Unit{ID: s.genID.Generate(), TenantID: orgID, Name: u[0], Abbreviation: u[1]}
			if err := s.repo.CreateUnit(ctx, unit); err != nil && !db.IsDuplicateKeyErr(err) {
				return err
			}
		}
	}
	return nil
}

func normalizeSKU(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), "-"))
}
