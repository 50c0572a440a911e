package auth

import (
	"go.uber.org/fx"

	"github.com/dukahub/dukahub/internal/auth/repository"
	"github.com/dukahub/dukahub/internal/auth/service"
	"github.com/dukahub/dukahub/internal/auth/session"
)

var Module = fx.Module("auth.service",
	session.Module,
	fx.Provide(repository.NewRepository),
	fx.Provide(repository.NewSessionRepository),
	fx.Provide(service.NewService),
)
