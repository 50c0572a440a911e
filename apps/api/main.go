// API-only deployment: serves HTTP without the scheduler loop.
package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/dukahub/dukahub/internal/auth"
	"github.com/dukahub/dukahub/internal/auth/session"
	"github.com/dukahub/dukahub/internal/authorization"
	"github.com/dukahub/dukahub/internal/catalog"
	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/migration"
	"github.com/dukahub/dukahub/internal/notification"
	"github.com/dukahub/dukahub/internal/observability"
	"github.com/dukahub/dukahub/internal/reporting"
	"github.com/dukahub/dukahub/internal/sales"
	"github.com/dukahub/dukahub/internal/server"
	"github.com/dukahub/dukahub/internal/stock"
	"github.com/dukahub/dukahub/internal/subscription"
	"github.com/dukahub/dukahub/internal/tenant"
	"github.com/dukahub/dukahub/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		auth.Module,
		session.Module,
		tenant.Module,
		authorization.Module,
		catalog.Module,
		stock.Module,
		sales.Module,
		reporting.Module,
		subscription.Module,
		notification.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
