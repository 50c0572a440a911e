package subscription

import (
	"go.uber.org/fx"

	"github.com/dukahub/dukahub/internal/subscription/gateway"
	"github.com/dukahub/dukahub/internal/subscription/repository"
	"github.com/dukahub/dukahub/internal/subscription/service"
)

var Module = fx.Module("subscription.service",
	fx.Provide(gateway.NewClient),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
