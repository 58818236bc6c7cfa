package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/config"
	"github.com/lendstack/underwriting/internal/decision"
	"github.com/lendstack/underwriting/internal/observability"
	"github.com/lendstack/underwriting/internal/outbox"
	"github.com/lendstack/underwriting/internal/override"
	"github.com/lendstack/underwriting/internal/rule"
	"github.com/lendstack/underwriting/internal/scoring"
	"github.com/lendstack/underwriting/internal/server"
	"github.com/lendstack/underwriting/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		rule.Module,
		scoring.Module,
		decision.Module,
		override.Module,
		outbox.Module,

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
