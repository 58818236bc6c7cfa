// Package adapter holds the pluggable risk-scoring providers.
package adapter

import (
	"context"

	"github.com/lendstack/underwriting/internal/scoring/domain"
	"go.uber.org/zap"
)

// Adapter is the provider contract. Calculate must be safe for concurrent
// use; Available reports whether the provider is configured to be called.
type Adapter interface {
	Name() string
	Available() bool
	Calculate(ctx context.Context, req domain.Request) (domain.Result, error)
}

// Fallback tries the primary provider and falls back to the internal model
// on any failure. The internal model is unconditionally available, so a
// Fallback never returns an error for provider reasons alone.
type Fallback struct {
	primary  Adapter
	internal Adapter
	log      *zap.Logger
}

func NewFallback(primary, internal Adapter, log *zap.Logger) *Fallback {
	return &Fallback{
		primary:  primary,
		internal: internal,
		log:      log.Named("scoring.fallback"),
	}
}

func (f *Fallback) Name() string    { return f.primary.Name() }
func (f *Fallback) Available() bool { return true }

func (f *Fallback) Calculate(ctx context.Context, req domain.Request) (domain.Result, error) {
	if f.primary != nil && f.primary.Name() != f.internal.Name() {
		if !f.primary.Available() {
			f.log.Warn("primary scoring provider not configured, using internal model",
				zap.String("provider", f.primary.Name()),
			)
		} else {
			result, err := f.primary.Calculate(ctx, req)
			if err == nil {
				return result, nil
			}
			f.log.Warn("primary scoring provider failed, falling back to internal model",
				zap.String("provider", f.primary.Name()),
				zap.String("application_id", req.ApplicationID),
				zap.Error(err),
			)
		}
	}

	return f.internal.Calculate(ctx, req)
}
