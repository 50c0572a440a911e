package reporting

import (
	"go.uber.org/fx"

	"github.com/dukahub/dukahub/internal/reporting/repository"
	"github.com/dukahub/dukahub/internal/reporting/service"
)

var Module = fx.Module("reporting.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
