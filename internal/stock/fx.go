package stock

import (
	"go.uber.org/fx"

	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/stock/domain"
	"github.com/dukahub/dukahub/internal/stock/repository"
	"github.com/dukahub/dukahub/internal/stock/service"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

var Module = fx.Module("stock.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	// The stock service doubles as the bootstrapper the tenant service
	// uses on branch creation and the provisioner the catalog service
	// uses on product creation.
	fx.Provide(func(s domain.Service) tenantdomain.StockBootstrapper { return s }),
	fx.Provide(func(s domain.Service) catalogdomain.StockProvisioner { return s }),
)
