package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/metricsexport"
	"github.com/smallbiznis/paycore/internal/migration"
	"github.com/smallbiznis/paycore/internal/observability"
	"github.com/smallbiznis/paycore/internal/payment"
	"github.com/smallbiznis/paycore/internal/server"
	"github.com/smallbiznis/paycore/pkg/db"
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

		// Payments
		payment.Module,
		server.Module,

		// Settlement metrics push
		metricsexport.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeID)
}
