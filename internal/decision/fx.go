package decision

import (
	"github.com/lendstack/underwriting/internal/decision/repository"
	"github.com/lendstack/underwriting/internal/decision/service"
	"go.uber.org/fx"
)

var Module = fx.Module("decision.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
