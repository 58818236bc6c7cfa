package rule

import (
	"github.com/lendstack/underwriting/internal/rule/repository"
	"github.com/lendstack/underwriting/internal/rule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
