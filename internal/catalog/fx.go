package catalog

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/catalog/repository"
	"github.com/dukahub/dukahub/internal/catalog/service"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

type serviceParams struct {
	fx.In

	DB          *gorm.DB
	Repo        domain.Repository
	Provisioner domain.StockProvisioner `optional:"true"`
	TenantRepo  tenantdomain.Repository
	GenID       *snowflake.Node
	Log         *zap.Logger
}

var Module = fx.Module("catalog.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(p serviceParams) domain.Service {
		return service.NewService(p.DB, p.Repo, p.Provisioner, p.TenantRepo, p.GenID, p.Log)
	}),
)
