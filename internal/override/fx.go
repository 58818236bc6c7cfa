package override

import (
	"github.com/lendstack/underwriting/internal/override/repository"
	"github.com/lendstack/underwriting/internal/override/service"
	"go.uber.org/fx"
)

var Module = fx.Module("override.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
