package sales

import (
	"go.uber.org/fx"

	"github.com/dukahub/dukahub/internal/sales/repository"
	"github.com/dukahub/dukahub/internal/sales/service"
)

var Module = fx.Module("sales.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
