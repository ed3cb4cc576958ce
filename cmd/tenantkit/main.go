package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/internal/config"
	"github.com/smallbiznis/tenantkit/internal/migration"
	"github.com/smallbiznis/tenantkit/internal/observability"
	"github.com/smallbiznis/tenantkit/internal/server"
	"github.com/smallbiznis/tenantkit/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Identity, organizations, users, invitations and the HTTP surface
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
