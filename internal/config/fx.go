package config

import (
	"github.com/lendstack/underwriting/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) db.Config { return cfg.DBConfig() }),
	fx.Provide(func(cfg Config) EngineConfig { return cfg.Engine }),
	fx.Provide(func(cfg Config) ScoringConfig { return cfg.Scoring }),
	fx.Provide(func(cfg Config) PublisherConfig { return cfg.Publisher }),
)
