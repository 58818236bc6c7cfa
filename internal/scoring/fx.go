package scoring

import (
	"strings"
	"time"

	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/config"
	"github.com/lendstack/underwriting/internal/scoring/adapter"
	"github.com/lendstack/underwriting/internal/scoring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scoring",
	fx.Provide(provideInternal),
	fx.Provide(provideThirdParty),
	fx.Provide(provideFallback),
	fx.Provide(provideRegistry),
)

func provideInternal(clk clock.Clock) *adapter.Internal {
	return adapter.NewInternal(domain.DefaultWeights(), clk)
}

func provideThirdParty(cfg config.ScoringConfig, clk clock.Clock, log *zap.Logger) *adapter.ThirdParty {
	name := strings.ToUpper(strings.TrimSpace(cfg.Provider))
	if name == "" || name == adapter.InternalProvider {
		name = "CUSTOM"
	}
	return adapter.NewThirdParty(adapter.ThirdPartyConfig{
		Name:          name,
		URL:           cfg.ProviderURL,
		APIKey:        cfg.APIKey,
		APISecret:     cfg.APISecret,
		Timeout:       time.Duration(cfg.TimeoutMs) * time.Millisecond,
		RetryAttempts: cfg.RetryAttempts,
	}, clk, log)
}

// provideFallback builds the adapter the decision engine calls: the
// configured primary provider backed by the internal model.
func provideFallback(cfg config.ScoringConfig, internal *adapter.Internal, thirdParty *adapter.ThirdParty, log *zap.Logger) *adapter.Fallback {
	provider := strings.ToUpper(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == adapter.InternalProvider {
		return adapter.NewFallback(internal, internal, log)
	}
	return adapter.NewFallback(thirdParty, internal, log)
}

func provideRegistry(internal *adapter.Internal, thirdParty *adapter.ThirdParty) *adapter.Registry {
	return adapter.NewRegistry(internal, thirdParty)
}
