// Scheduler-only deployment: runs the daily jobs against the shared
// database; the redis lock keeps replicas from double-firing.
package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/lock"
	"github.com/dukahub/dukahub/internal/notification"
	"github.com/dukahub/dukahub/internal/observability"
	"github.com/dukahub/dukahub/internal/scheduler"
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
		lock.Module,

		tenant.Module,
		subscription.Module,
		notification.Module,

		scheduler.Module,
		fx.Invoke(scheduler.Run),
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
