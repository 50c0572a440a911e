package tenant

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/internal/tenant/repository"
	"github.com/dukahub/dukahub/internal/tenant/service"
)

type serviceParams struct {
	fx.In

	DB           *gorm.DB
	Repo         domain.Repository
	Bootstrapper domain.StockBootstrapper `optional:"true"`
	GenID        *snowflake.Node
	Config       config.Config
	Clock        clock.Clock
	Log          *zap.Logger
}

var Module = fx.Module("tenant.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(p serviceParams) domain.Service {
		return service.NewService(p.DB, p.Repo, p.Bootstrapper, p.GenID, p.Config, p.Clock, p.Log)
	}),
)
